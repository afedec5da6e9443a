package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the ingestion core. Row- and block-level failures are
// absorbed into counters by their owning component; only file-level and
// argument errors surface to callers.
var (
	// ErrInvalidArgument rejects scheduling calls with missing or invalid
	// inputs. Nothing is enqueued.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFileRead is fatal for a single job: the file could not be opened
	// or read. Other jobs keep running.
	ErrFileRead = errors.New("file read failed")

	// ErrRowParse marks a structurally malformed row. Counted and skipped;
	// never aborts the file.
	ErrRowParse = errors.New("row parse failed")

	// ErrWeatherFetch marks a failed weather source call. The affected
	// block keeps its stale or absent data; the job is unaffected.
	ErrWeatherFetch = errors.New("weather fetch failed")
)

// InvalidArgumentf wraps ErrInvalidArgument with a formatted detail.
func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidArgument}, args...)...)
}
