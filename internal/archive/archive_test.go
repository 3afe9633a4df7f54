package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/storage"
)

func sampleResult() session.ExecutionResult {
	return session.ExecutionResult{
		Success: true,
		Columns: []string{"id", "name"},
		Rows: []map[string]any{
			{"id": int64(1), "name": "ada"},
			{"id": int64(2), "name": nil},
		},
		RowCount: 2,
	}
}

func TestEncodeResultToParquet(t *testing.T) {
	encoded, err := EncodeResultToParquet(sampleResult())
	if err != nil {
		t.Fatalf("EncodeResultToParquet() error = %v", err)
	}
	if encoded.CellCount != 4 {
		t.Fatalf("CellCount = %d", encoded.CellCount)
	}

	reader := parquet.NewGenericReader[parquetCell](bytes.NewReader(encoded.Data))
	defer func() { _ = reader.Close() }()
	cells := make([]parquetCell, 4)
	count, err := reader.Read(cells)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 4 {
		t.Fatalf("read cells = %d", count)
	}
	if cells[1].ColumnName != "name" || cells[1].Value != "ada" {
		t.Fatalf("cells[1] = %+v", cells[1])
	}
	if cells[2].Value != "2" || cells[2].RowIndex != 1 {
		t.Fatalf("cells[2] = %+v", cells[2])
	}
	if !cells[3].IsNull {
		t.Fatalf("cells[3] = %+v, want null", cells[3])
	}
}

func TestEncodeResultRequiresColumns(t *testing.T) {
	if _, err := EncodeResultToParquet(session.ExecutionResult{}); err == nil {
		t.Fatal("expected error for result without columns")
	}
}

func TestArchiveUploadsUnderTargetPrefix(t *testing.T) {
	objects := &fakeObjects{data: map[string]storage.ObjectInfo{}}
	archiver, err := NewArchiver(objects, "primary", nil)
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}
	key, err := archiver.Archive(context.Background(), "s-1", sampleResult(), time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if !strings.HasPrefix(key, "results/primary/date=2026-04-02/s-1-") {
		t.Fatalf("key = %q", key)
	}
	info, ok := objects.data[key]
	if !ok {
		t.Fatalf("object %q not stored", key)
	}
	if info.Metadata[storage.MetaSessionID] != "s-1" || info.Metadata[storage.MetaRowCount] != "2" {
		t.Fatalf("metadata = %v", info.Metadata)
	}
}

func TestPruneRemovesOldArchives(t *testing.T) {
	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	objects := &fakeObjects{data: map[string]storage.ObjectInfo{
		"results/primary/date=2026-03-01/a.parquet": {Key: "results/primary/date=2026-03-01/a.parquet", LastModified: now.Add(-40 * 24 * time.Hour)},
		"results/primary/date=2026-04-09/b.parquet": {Key: "results/primary/date=2026-04-09/b.parquet", LastModified: now.Add(-24 * time.Hour)},
		"results/other/date=2026-03-01/c.parquet":   {Key: "results/other/date=2026-03-01/c.parquet", LastModified: now.Add(-40 * 24 * time.Hour)},
	}}
	archiver, err := NewArchiver(objects, "primary", nil)
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}
	removed, err := archiver.Prune(context.Background(), now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
	if _, ok := objects.data["results/primary/date=2026-03-01/a.parquet"]; ok {
		t.Fatal("old archive should be deleted")
	}
	if len(objects.data) != 2 {
		t.Fatalf("remaining = %d", len(objects.data))
	}
}

type fakeObjects struct {
	mu   sync.Mutex
	data map[string]storage.ObjectInfo
}

func (f *fakeObjects) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	_, _ = io.Copy(io.Discard, body)
	f.mu.Lock()
	defer f.mu.Unlock()
	info := storage.ObjectInfo{Key: key, Size: size, LastModified: time.Now().UTC(), Metadata: opts.Metadata}
	f.data[key] = info
	return info, nil
}

func (f *fakeObjects) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (f *fakeObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.data[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.ObjectInfo, 0)
	for key, info := range f.data {
		if strings.HasPrefix(key, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}
