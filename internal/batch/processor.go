package batch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"codeberg.org/snonux/virtualtourist/internal/geo"
)

// PinEntry is one location read from a batch file
type PinEntry struct {
	Location geo.Location
	Line     int // 1-based line number in the file
}

// ReadBatchFile reads pin locations from a file
func ReadBatchFile(filename string) ([]PinEntry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	defer f.Close()

	return ReadBatch(f)
}

// ReadBatch parses one "latitude,longitude" pair per line.
// Supports formats:
// - "37.7749,-122.4194"
// - "37.7749, -122.4194" or "37.7749 -122.4194"
// - Lines starting with '#' and blank lines are skipped
func ReadBatch(r io.Reader) ([]PinEntry, error) {
	var entries []PinEntry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		loc, err := parseLocation(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, PinEntry{Location: loc, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	return entries, nil
}

func parseLocation(line string) (geo.Location, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return geo.Location{}, fmt.Errorf("expected \"latitude,longitude\", got %q", line)
	}

	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("invalid latitude %q", fields[0])
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return geo.Location{}, fmt.Errorf("invalid longitude %q", fields[1])
	}

	loc := geo.Location{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		return geo.Location{}, err
	}
	return loc, nil
}
