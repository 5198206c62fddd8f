package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/t77yq/script-supervisor/internal/model"
)

var unescaper = strings.NewReplacer(`\\`, "\\", `\n`, "\n", `\r`, "\r")

// ParseRecord parses one line of the log file
func ParseRecord(line string) (model.LogRecord, error) {
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), Separator, 3)
	if len(parts) != 3 {
		return model.LogRecord{}, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}

	ts, err := time.Parse(TimeLayout, parts[0])
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("%w: bad timestamp: %v", ErrMalformedRecord, err)
	}

	level, err := model.ParseLevel(parts[1])
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	return model.LogRecord{
		Timestamp: ts,
		Level:     level,
		Message:   unescaper.Replace(parts[2]),
	}, nil
}

// ReadRecords parses every complete line of the file at path. A trailing
// partial line written concurrently is ignored, as are lines in any other
// format, such as those left by an older writer.
func ReadRecords(path string) ([]model.LogRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	// The element after the last newline is empty or a partial line
	lines := strings.Split(string(data), "\n")
	lines = lines[:len(lines)-1]

	var records []model.LogRecord
	for _, line := range lines {
		if line == "" {
			continue
		}
		record, err := ParseRecord(line)
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
