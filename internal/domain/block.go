package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BlockMinutes is the weather-correlation granularity: measurement
// timestamps are quantized down to the nearest 5-minute boundary.
const BlockMinutes = 5

// BlockKeyLayout is the string form of a block boundary used as the
// weather table's time key.
const BlockKeyLayout = "2006-01-02 15:04"

// BlockOf quantizes t down to its 5-minute block boundary, dropping
// seconds and sub-second precision.
func BlockOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(),
		t.Minute()-t.Minute()%BlockMinutes, 0, 0, t.Location())
}

// BlockKey returns the persistence key for the block containing t.
func BlockKey(t time.Time) string {
	return BlockOf(t).Format(BlockKeyLayout)
}

// BlockTime quantizes a local clock string ("HH:MM" or "HH:MM:SS") down to
// its 5-minute boundary and returns it as "HH:MM". Malformed input is
// returned unchanged.
func BlockTime(clock string) string {
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return clock
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return clock
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return clock
	}
	return fmt.Sprintf("%02d:%02d", hour, minute-minute%BlockMinutes)
}
