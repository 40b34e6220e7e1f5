package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tkingovr/procfilter/api"
)

func TestJSONLStore_WriteAndQuery(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	record := &api.AuditRecord{
		Timestamp: time.Now(),
		Filter:    "spamc",
		Type:      "external",
		ExitCode:  0,
		Verdict:   api.VerdictKeep,
		Duration:  15 * time.Millisecond,
	}
	if err := store.Write(ctx, record); err != nil {
		t.Fatal(err)
	}
	if record.ID == "" {
		t.Error("expected an ID to be assigned")
	}

	results, err := store.Query(ctx, api.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Filter != "spamc" || results[0].Duration != 15*time.Millisecond {
		t.Errorf("unexpected record: %+v", results[0])
	}
}

func TestJSONLStore_QueryFilter(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	records := []*api.AuditRecord{
		{Timestamp: time.Now(), Filter: "spamc", ExitCode: 0, Verdict: api.VerdictKeep},
		{Timestamp: time.Now(), Filter: "spamc", ExitCode: 99, Verdict: api.VerdictDrop},
		{Timestamp: time.Now(), Filter: "tmda", ExitCode: 0, Verdict: api.VerdictKeep},
	}
	for _, r := range records {
		if err := store.Write(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	results, err := store.Query(ctx, api.QueryFilter{Verdict: api.VerdictDrop})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 drop result, got %d", len(results))
	}

	results, err = store.Query(ctx, api.QueryFilter{Filter: "tmda"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 tmda result, got %d", len(results))
	}

	results, err = store.Query(ctx, api.QueryFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results with limit, got %d", len(results))
	}

	results, err = store.Query(ctx, api.QueryFilter{Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Filter != "tmda" {
		t.Fatalf("expected the last record after offset, got %+v", results)
	}
}

func TestJSONLStore_Stats(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()

	records := []*api.AuditRecord{
		{Timestamp: time.Now(), Filter: "spamc", Verdict: api.VerdictKeep},
		{Timestamp: time.Now(), Filter: "spamc", Verdict: api.VerdictDrop},
		{Timestamp: time.Now(), Filter: "bogofilter", Verdict: api.VerdictError},
		{Timestamp: time.Now(), Filter: "spamc", Verdict: api.VerdictKeep},
	}
	for _, r := range records {
		if err := store.Write(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalInvocations != 4 {
		t.Errorf("expected 4 total, got %d", stats.TotalInvocations)
	}
	if stats.KeepCount != 2 || stats.DropCount != 1 || stats.ErrorCount != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.ByFilter["spamc"] != 3 {
		t.Errorf("expected 3 spamc invocations, got %d", stats.ByFilter["spamc"])
	}
}

func TestJSONLStore_FileCreation(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	record := &api.AuditRecord{
		Timestamp: now,
		Filter:    "test",
		Verdict:   api.VerdictKeep,
	}
	if err := store.Write(context.Background(), record); err != nil {
		t.Fatal(err)
	}
	store.Close()

	expectedFile := filepath.Join(dir, now.Format("2006-01-02")+".jsonl")
	if _, err := os.Stat(expectedFile); os.IsNotExist(err) {
		t.Errorf("expected audit log file %s to exist", expectedFile)
	}
}

func TestJSONLStore_ReadsEarlierRuns(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	yesterday := time.Now().AddDate(0, 0, -1)
	if err := first.Write(ctx, &api.AuditRecord{Timestamp: yesterday, Filter: "old", Verdict: api.VerdictKeep}); err != nil {
		t.Fatal(err)
	}
	first.Close()

	// A torn line from an interrupted run must not break reading.
	f, err := os.OpenFile(filepath.Join(dir, yesterday.Format("2006-01-02")+".jsonl"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"id":"torn","filt`)
	f.Close()

	second, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if err := second.Write(ctx, &api.AuditRecord{Filter: "new", Verdict: api.VerdictDrop}); err != nil {
		t.Fatal(err)
	}

	results, err := second.Query(ctx, api.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Filter != "old" || results[1].Filter != "new" {
		t.Fatalf("expected old then new, got %+v", results)
	}

	results, err = second.Query(ctx, api.QueryFilter{Since: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Filter != "new" {
		t.Fatalf("expected only the new record, got %+v", results)
	}
}
