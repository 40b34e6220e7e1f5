package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tkingovr/procfilter/api"
)

const maxLineSize = 1 << 20

// JSONLStore is an append-only JSONL file audit store with date-based rotation.
// Queries read the files back, so records written by earlier runs are seen.
type JSONLStore struct {
	mu          sync.Mutex
	dir         string
	currentDate string
	file        *os.File
	writer      *bufio.Writer
}

// NewJSONLStore creates a new JSONL audit store writing to the given directory.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	return &JSONLStore{dir: dir}, nil
}

func (s *JSONLStore) Write(_ context.Context, record *api.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	// Rotate file if date changed
	dateStr := record.Timestamp.Format("2006-01-02")
	if dateStr != s.currentDate {
		if err := s.rotate(dateStr); err != nil {
			return err
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	return s.writer.Flush()
}

func (s *JSONLStore) Query(ctx context.Context, filter api.QueryFilter) ([]*api.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files(filter)
	if err != nil {
		return nil, err
	}

	var results []*api.AuditRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readFile(path)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if matchesFilter(r, filter) {
				results = append(results, r)
			}
		}
	}

	// Apply offset and limit
	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *JSONLStore) Stats(ctx context.Context) (*api.AuditStats, error) {
	records, err := s.Query(ctx, api.QueryFilter{})
	if err != nil {
		return nil, err
	}

	stats := &api.AuditStats{ByFilter: make(map[string]int)}
	for _, r := range records {
		stats.TotalInvocations++
		switch r.Verdict {
		case api.VerdictKeep:
			stats.KeepCount++
		case api.VerdictDrop:
			stats.DropCount++
		case api.VerdictError:
			stats.ErrorCount++
		}
		if r.Filter != "" {
			stats.ByFilter[r.Filter]++
		}
	}
	return stats, nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		err := s.file.Close()
		s.file, s.writer, s.currentDate = nil, nil, ""
		return err
	}
	return nil
}

func (s *JSONLStore) rotate(dateStr string) error {
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return err
		}
	}

	path := filepath.Join(s.dir, dateStr+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit log file: %w", err)
	}

	s.file = f
	s.writer = bufio.NewWriter(f)
	s.currentDate = dateStr
	return nil
}

// files lists the daily logs that can hold records in the filter's range.
func (s *JSONLStore) files(filter api.QueryFilter) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []string
	for _, p := range paths {
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSuffix(filepath.Base(p), ".jsonl"), time.Local)
		if err != nil {
			continue
		}
		if !filter.Since.IsZero() && day.AddDate(0, 0, 1).Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && day.After(filter.Until) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func readFile(path string) ([]*api.AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	defer f.Close()

	var records []*api.AuditRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r api.AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn last line from an interrupted run is skipped.
			continue
		}
		records = append(records, &r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

func matchesFilter(r *api.AuditRecord, f api.QueryFilter) bool {
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	if f.Filter != "" && r.Filter != f.Filter {
		return false
	}
	if f.Verdict != "" && r.Verdict != f.Verdict {
		return false
	}
	return true
}
