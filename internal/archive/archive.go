package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/storage"
)

const resultsPrefix = "results/"

// parquetCell is one value of a result set in long format. Result sets have
// arbitrary shapes, so each cell becomes its own row.
type parquetCell struct {
	RowIndex    int64  `parquet:"row_index"`
	ColumnIndex int32  `parquet:"column_index"`
	ColumnName  string `parquet:"column_name"`
	Value       string `parquet:"value"`
	IsNull      bool   `parquet:"is_null"`
}

type EncodeResult struct {
	Data      []byte
	CellCount int64
}

func EncodeResultToParquet(result session.ExecutionResult) (EncodeResult, error) {
	if len(result.Columns) == 0 {
		return EncodeResult{}, fmt.Errorf("result has no columns")
	}

	cells := make([]parquetCell, 0, len(result.Rows)*len(result.Columns))
	for rowIndex, row := range result.Rows {
		for columnIndex, column := range result.Columns {
			value, ok := row[column]
			cell := parquetCell{
				RowIndex:    int64(rowIndex),
				ColumnIndex: int32(columnIndex),
				ColumnName:  column,
			}
			if !ok || value == nil {
				cell.IsNull = true
			} else {
				cell.Value = formatValue(value)
			}
			cells = append(cells, cell)
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetCell](buf)
	if len(cells) > 0 {
		if _, err := writer.Write(cells); err != nil {
			return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return EncodeResult{Data: buf.Bytes(), CellCount: int64(len(cells))}, nil
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}

// Archiver exports successful result sets to object storage.
type Archiver struct {
	store  storage.ObjectStore
	target string
	logger *slog.Logger
}

func NewArchiver(store storage.ObjectStore, targetName string, logger *slog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if err := storage.ValidatePathComponent(targetName, "target name"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, target: targetName, logger: logger}, nil
}

// Archive writes the result and returns its object key.
func (a *Archiver) Archive(ctx context.Context, sessionID string, result session.ExecutionResult, executedAt time.Time) (string, error) {
	key, err := storage.BuildResultArchivePath(a.target, sessionID, executedAt)
	if err != nil {
		return "", err
	}
	encoded, err := EncodeResultToParquet(result)
	if err != nil {
		return "", err
	}
	opts := storage.PutOptions{
		ContentType: "application/octet-stream",
		Metadata: map[string]string{
			storage.MetaSessionID: sessionID,
			storage.MetaTarget:    a.target,
			storage.MetaRowCount:  strconv.Itoa(result.RowCount),
		},
	}
	if _, err := a.store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), opts); err != nil {
		return "", fmt.Errorf("upload result archive: %w", err)
	}
	a.logger.DebugContext(ctx, "result archived", "key", key, "cells", encoded.CellCount)
	return key, nil
}

// Prune deletes archives last modified before cutoff and returns how many
// were removed.
func (a *Archiver) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	objects, err := a.store.List(ctx, resultsPrefix+a.target+"/")
	if err != nil {
		return 0, fmt.Errorf("list result archives: %w", err)
	}
	removed := 0
	for _, object := range objects {
		if object.LastModified.IsZero() || !object.LastModified.Before(cutoff) {
			continue
		}
		if err := a.store.Delete(ctx, object.Key); err != nil {
			return removed, fmt.Errorf("delete result archive %q: %w", object.Key, err)
		}
		removed++
	}
	return removed, nil
}
