package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/session"
)

// Entry is one line of the interaction log.
type Entry struct {
	SessionID             string    `json:"session_id"`
	Timestamp             time.Time `json:"timestamp"`
	Target                string    `json:"target"`
	UserInput             string    `json:"user_input"`
	SQLGenerated          string    `json:"sql_generated"`
	SQLType               string    `json:"sql_type"`
	RequiresHumanApproval bool      `json:"requires_human_approval"`
	HumanApproved         bool      `json:"human_approved"`
	Status                string    `json:"status"`
	Success               bool      `json:"success"`
	RowCount              int       `json:"row_count"`
	RetryCount            int       `json:"retry_count"`
	Error                 string    `json:"error"`
}

func EntryFromState(state session.State, at time.Time) Entry {
	entry := Entry{
		SessionID:             state.SessionID,
		Timestamp:             at.UTC(),
		Target:                state.Target,
		UserInput:             state.UserInput,
		SQLGenerated:          state.GeneratedSQL,
		SQLType:               string(state.SQLKind),
		RequiresHumanApproval: state.RequiresApproval(),
		HumanApproved:         state.HumanApproved,
		Status:                string(state.Status),
		RetryCount:            state.RetryCount,
		Error:                 state.SQLError,
	}
	if state.ExecutionResult != nil {
		entry.Success = state.ExecutionResult.Success
		entry.RowCount = state.ExecutionResult.RowCount
	}
	return entry
}

// Writer appends entries to <dir>/<YYYY-MM-DD>.jsonl. A Writer with an empty
// directory discards everything.
type Writer struct {
	mu  sync.Mutex
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Write(entry Entry) error {
	if w == nil || w.dir == "" {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	path := filepath.Join(w.dir, entry.Timestamp.UTC().Format("2006-01-02")+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close audit file: %w", err)
	}
	return nil
}
