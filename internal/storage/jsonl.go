package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moose-code/snubb/internal/model"
)

// JsonlSink writes the approval report to a JSONL file, one row per line.
// The file is truncated on each run: the report is a snapshot, not a log.
type JsonlSink struct {
	path string
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{path: path}
}

// PutApprovals writes the report as JSON lines.
func (s *JsonlSink) PutApprovals(_ context.Context, approvals []model.ReconciledApproval) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, approval := range approvals {
		line, err := json.Marshal(approval)
		if err != nil {
			return fmt.Errorf("marshal approval: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write approval: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
