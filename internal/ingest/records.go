package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/extract"
)

// recordLine is one JSON object in a .jsonl spool file.
type recordLine struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ReadRecords loads extraction records from a spool or input file.
//
// Files named *.jsonl or *.ndjson hold one JSON object per line with
// "id" and "text" fields; blank lines are skipped and a missing id is
// derived from the file name and line number. Any other file is read as
// a single record whose id is the file's base name. An empty file yields
// no records and no error.
func ReadRecords(path string) ([]extract.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mcerrors.New(mcerrors.ErrCodeSpoolIO, fmt.Sprintf("failed to read record file %s", path), err)
	}

	base := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return parseRecordLines(base, data)
	default:
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []extract.Record{{ID: base, Text: text}}, nil
	}
}

func parseRecordLines(base string, data []byte) ([]extract.Record, error) {
	var records []extract.Record

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rl recordLine
		if err := json.Unmarshal(line, &rl); err != nil {
			return nil, mcerrors.New(mcerrors.ErrCodeInvalidInput,
				fmt.Sprintf("malformed record in %s line %d", base, lineNo), err)
		}
		if strings.TrimSpace(rl.Text) == "" {
			continue
		}
		if rl.ID == "" {
			rl.ID = fmt.Sprintf("%s#%d", base, lineNo)
		}
		records = append(records, extract.Record{ID: rl.ID, Text: rl.Text})
	}
	if err := scanner.Err(); err != nil {
		return nil, mcerrors.New(mcerrors.ErrCodeSpoolIO, fmt.Sprintf("failed to scan %s", base), err)
	}

	return records, nil
}
