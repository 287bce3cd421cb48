package logsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const DefaultBatchLines = 200

// ReadLines returns every line of r with trailing carriage returns removed.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

type fileSource struct {
	label   string
	lines   []string
	size    int
	pos     int
	batchNo int
}

// FileSource splits the file at path into batches of batchSize lines. The whole
// file is read up front.
func FileSource(path string, batchSize int) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()
	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchLines
	}
	return &fileSource{label: filepath.Base(path), lines: lines, size: batchSize}, nil
}

func (s *fileSource) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.pos >= len(s.lines) {
		return Batch{}, io.EOF
	}
	end := s.pos + s.size
	if end > len(s.lines) {
		end = len(s.lines)
	}
	s.batchNo++
	b := Batch{
		Label: fmt.Sprintf("%s#%d", s.label, s.batchNo),
		Lines: append([]string(nil), s.lines[s.pos:end]...),
	}
	s.pos = end
	return b, nil
}
