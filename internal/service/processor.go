package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/noisewatch/internal/config"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/repository"
)

// Processor turns one measurement file into store rows. Row-level problems
// never abort a file: duplicates are silently absorbed, malformed rows are
// counted and skipped. Only an unreadable file fails the whole call.
type Processor struct {
	measurements *repository.MeasurementRepository
	stations     config.StationsConfig
	imports      config.ImportConfig
	log          *logger.Logger
}

// ProcessResult reports the outcome of processing one file.
type ProcessResult struct {
	Inserted  int
	RowErrors int
	// Blocks are the distinct 5-minute blocks touched by inserted rows,
	// handed to the weather correlator afterwards.
	Blocks []time.Time
}

// NewProcessor creates a Processor.
// Parameters:
//   - measurements: measurement repository.
//   - stations: station directory layout.
//   - imports: parsing options (extension, delimiter, ignore prefix).
//   - log: base logger.
// Returns:
//   - *Processor: initialized processor.
func NewProcessor(measurements *repository.MeasurementRepository, stations config.StationsConfig, imports config.ImportConfig, log *logger.Logger) *Processor {
	return &Processor{
		measurements: measurements,
		stations:     stations,
		imports:      imports,
		log:          log.WithComponent("processor"),
	}
}

// timestampLayouts are tried in order against the raw time column.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2006-01-02 15:04",
}

// clockLayouts match time-of-day-only columns; the date then comes from
// the file's modification time.
var clockLayouts = []string{"15:04:05", "15:04"}

// ProcessFile parses one delimited file and inserts its rows.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - station: owning station.
//   - path: file path.
// Returns:
//   - *ProcessResult: inserted count, row error count, affected blocks.
//   - error: wraps domain.ErrFileRead if the file cannot be opened or its
//     header is unusable; row-level problems are not errors.
func (p *Processor) ProcessFile(ctx context.Context, station, path string) (*ProcessResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFileRead, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFileRead, err)
	}
	fileDate := info.ModTime()

	reader := csv.NewReader(f)
	reader.Comma = p.delimiter()
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", domain.ErrFileRead, err)
	}
	timeCol, levelCol, err := locateColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFileRead, err)
	}

	result := &ProcessResult{}
	blocks := make(map[time.Time]struct{})
	sourceFile := filepath.Base(path)

	for {
		if ctx.Err() != nil {
			break
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// structurally broken record; the reader resumes on the
				// next one, so later rows still get their chance
				result.RowErrors++
				continue
			}
			break // unreadable underlying stream; rows so far stand
		}
		if timeCol >= len(record) || levelCol >= len(record) {
			result.RowErrors++
			continue
		}

		rawTime := strings.TrimSpace(record[timeCol])
		datetime, ok := parseTimestamp(rawTime, fileDate)
		if !ok {
			result.RowErrors++
			continue
		}
		level, ok := parseLevel(record[levelCol])
		if !ok {
			result.RowErrors++
			continue
		}

		m := &domain.Measurement{
			Station:    station,
			Time:       rawTime,
			Level:      level,
			SourceFile: sourceFile,
			Datetime:   datetime,
			RawFields:  rawFields(header, record),
		}
		inserted, err := p.measurements.Insert(ctx, m)
		if err != nil {
			result.RowErrors++
			continue
		}
		if inserted {
			result.Inserted++
			blocks[domain.BlockOf(datetime)] = struct{}{}
		}
		// duplicate (station, time): silent skip, not counted either way
	}

	for b := range blocks {
		result.Blocks = append(result.Blocks, b)
	}

	p.log.WithFields(logger.Fields{
		"station":    station,
		"file":       sourceFile,
		"inserted":   result.Inserted,
		"row_errors": result.RowErrors,
	}).Info("File processed")

	return result, nil
}

// ProcessAllFiles processes every eligible file across all station
// directories and returns the total inserted count. Individual file
// failures are logged and skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: total rows inserted.
//   - error: non-nil only if a station directory cannot be listed.
func (p *Processor) ProcessAllFiles(ctx context.Context) (int, error) {
	total := 0
	for _, station := range p.stations.Names {
		files, err := p.EligibleFiles(p.stations.Dir(station))
		if err != nil {
			return total, err
		}
		for _, path := range files {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			res, err := p.ProcessFile(ctx, station, path)
			if err != nil {
				p.log.WithError(err).WithField("file", path).Warn("Skipping unreadable file")
				continue
			}
			total += res.Inserted
		}
	}
	return total, nil
}

// EligibleFiles lists importable files in a directory in name order:
// matching extension, not hidden, not marked with the ignore prefix.
// Parameters:
//   - dir: directory to enumerate.
// Returns:
//   - []string: full paths in discovery order.
//   - error: non-nil if the directory cannot be read.
func (p *Processor) EligibleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !EligibleFileName(e.Name(), p.imports.FileExtension, p.imports.IgnorePrefix) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// EligibleFileName reports whether a file name should be imported.
func EligibleFileName(name, ext, ignorePrefix string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return false
	}
	if ignorePrefix != "" && strings.HasPrefix(name, ignorePrefix) {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ext)
}

func (p *Processor) delimiter() rune {
	if p.imports.Delimiter == "" {
		return ';'
	}
	return rune(p.imports.Delimiter[0])
}

// locateColumns finds the timestamp and level columns by fuzzy header
// match; station CSVs use both German and English names.
func locateColumns(header []string) (timeCol, levelCol int, err error) {
	timeCol, levelCol = -1, -1
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case timeCol < 0 && (strings.Contains(name, "zeit") || strings.Contains(name, "time")):
			timeCol = i
		case levelCol < 0 && (strings.Contains(name, "pegel") || strings.Contains(name, "level") || strings.Contains(name, "laf")):
			levelCol = i
		}
	}
	if timeCol < 0 || levelCol < 0 {
		return 0, 0, fmt.Errorf("header has no recognizable time/level columns: %v", header)
	}
	return timeCol, levelCol, nil
}

func parseTimestamp(raw string, fileDate time.Time) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(fileDate.Year(), fileDate.Month(), fileDate.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.Local), true
		}
	}
	return time.Time{}, false
}

func parseLevel(raw string) (float64, bool) {
	// decimal commas appear in exports from German measurement software
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	level, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return level, true
}

func rawFields(header, record []string) domain.RawFields {
	fields := make(domain.RawFields, len(header))
	for i, h := range header {
		if i < len(record) {
			fields[strings.TrimSpace(h)] = record[i]
		}
	}
	return fields
}
