package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/session"
)

// Store keeps session state in the sqlpilot_session table as JSONB.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping session db: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (session.State, error) {
	query := `
SELECT state_json
FROM sqlpilot_session
WHERE session_id = $1`

	var payload []byte
	if err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.State{}, session.ErrNotFound
		}
		return session.State{}, fmt.Errorf("load session: %w", err)
	}
	var state session.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return session.State{}, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state session.State) error {
	if strings.TrimSpace(state.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", state.SessionID, err)
	}
	query := `
INSERT INTO sqlpilot_session (session_id, target_name, status, state_json)
VALUES ($1, $2, $3, $4::jsonb)
ON CONFLICT (session_id)
DO UPDATE SET status = EXCLUDED.status, state_json = EXCLUDED.state_json, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, state.SessionID, state.Target, string(state.Status), string(payload)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// RecordDecision appends one row to the approval audit trail.
func (s *Store) RecordDecision(ctx context.Context, entry session.DecisionRecord) error {
	query := `
INSERT INTO sqlpilot_approval_audit (ticket_id, session_id, action, decided_by, comments, sql_text)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, query, entry.TicketID, entry.SessionID, entry.Action, entry.DecidedBy, entry.Comments, entry.SQL); err != nil {
		return fmt.Errorf("record approval decision: %w", err)
	}
	return nil
}
