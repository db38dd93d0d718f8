package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads a bar history from a CSV file for backtesting.
//
// Expected columns: timestamp,open,high,low,close,volume. The timestamp may
// be Unix seconds, Unix milliseconds, or RFC3339. A header row is skipped
// automatically.
func LoadCSV(path string) ([]Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var bars []Bar
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", path, line+1, err)
		}
		line++

		if len(record) < 6 {
			return nil, fmt.Errorf("%s line %d: expected 6 columns, got %d", path, line, len(record))
		}

		// Skip a header row
		if line == 1 {
			if _, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64); err != nil {
				continue
			}
		}

		bar, err := parseBarRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func parseBarRecord(record []string) (Bar, error) {
	openTime, err := parseTimestamp(strings.TrimSpace(record[0]))
	if err != nil {
		return Bar{}, err
	}

	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("invalid numeric field %q: %w", record[i+1], err)
		}
		values[i] = v
	}

	return Bar{
		OpenTime:  openTime,
		CloseTime: openTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

// parseTimestamp accepts Unix seconds, Unix milliseconds, or RFC3339.
func parseTimestamp(s string) (int64, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Heuristic: values past the year 2286 in seconds are milliseconds
		if unix > 1e12 {
			return unix, nil
		}
		return unix * 1000, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UnixMilli(), nil
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}
