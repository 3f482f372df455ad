package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"tabular/internal/record"
)

func init() {
	Register("file", newFileSource)
}

// fileSource reads records from a local JSON document (root array, envelope
// object, or JSONL) and serves them in page-sized batches. The file is
// decoded once up front; batches then slice the decoded records, which keeps
// batch boundaries deterministic for merge-order tests and reruns.
type fileSource struct {
	recs     []*record.Record
	pageSize int
	offset   int
}

func newFileSource(params Params) (Source, error) {
	path := params.Options.String("path", "")
	if path == "" {
		return nil, fmt.Errorf("file source: options.path is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file source: open: %w", err)
	}
	defer f.Close()

	recs, err := record.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("file source: decode %s: %w", path, err)
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	return &fileSource{recs: recs, pageSize: pageSize}, nil
}

func (s *fileSource) Next(ctx context.Context) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.offset >= len(s.recs) {
		return nil, io.EOF
	}
	end := s.offset + s.pageSize
	if end > len(s.recs) {
		end = len(s.recs)
	}
	batch := s.recs[s.offset:end]
	s.offset = end
	return batch, nil
}

func (s *fileSource) Close() error { return nil }
