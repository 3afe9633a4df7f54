package session

import (
	"time"

	"github.com/sqlpilot/sqlpilot/internal/intent"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
)

// Status is where a session's workflow currently rests.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusFinalized Status = "finalized"
)

type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
	EstimatedCost    int      `json:"estimated_cost"`
	RequiresApproval bool     `json:"requires_approval"`
	Blocked          bool     `json:"blocked"`
}

type ExecutionResult struct {
	Success        bool             `json:"success"`
	Columns        []string         `json:"columns"`
	Rows           []map[string]any `json:"rows"`
	RowCount       int              `json:"row_count"`
	RowsAffected   int64            `json:"rows_affected,omitempty"`
	Truncated      bool             `json:"truncated,omitempty"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	Error          string           `json:"error,omitempty"`
	ArchiveKey     string           `json:"archive_key,omitempty"`
}

// Correction records one pass of the self-correction loop.
type Correction struct {
	Attempt    int      `json:"attempt"`
	Errors     []string `json:"errors"`
	SQL        string   `json:"sql"`
	Progressed bool     `json:"progressed"`
}

type Decision struct {
	TicketID  string    `json:"ticket_id"`
	Approved  bool      `json:"approved"`
	Comments  string    `json:"comments,omitempty"`
	DecidedBy string    `json:"decided_by,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

type State struct {
	SessionID  string    `json:"session_id"`
	Target     string    `json:"target"`
	UserInput  string    `json:"user_input"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Step       string    `json:"step"`
	TicketID   string    `json:"ticket_id,omitempty"`
	AnswerLang string    `json:"answer_lang"`

	ParsedIntent   intent.Intent    `json:"parsed_intent"`
	SchemaSnapshot *schema.Metadata `json:"schema_snapshot,omitempty"`

	GeneratedSQL     string           `json:"generated_sql"`
	SQLKind          sqlkind.Kind     `json:"sql_kind"`
	ValidationResult ValidationResult `json:"validation_result"`
	HumanApproved    bool             `json:"human_approved"`
	Decision         *Decision        `json:"decision,omitempty"`
	ExecutionResult  *ExecutionResult `json:"execution_result,omitempty"`

	RetryCount  int          `json:"retry_count"`
	MaxRetries  int          `json:"max_retries"`
	Corrections []Correction `json:"corrections,omitempty"`

	FinalAnswer string `json:"final_answer"`
	SQLError    string `json:"sql_error,omitempty"`
}

// RequiresApproval reports whether the current statement still needs a
// human decision before it may run.
func (s State) RequiresApproval() bool {
	return s.ValidationResult.RequiresApproval || s.ParsedIntent.RequiresApproval || s.SQLKind.IsMutation()
}

// Clone returns a deep copy. Approval tickets hold clones so a parked session
// cannot be changed by anything still holding the live state.
func (s State) Clone() State {
	out := s
	out.ParsedIntent = s.ParsedIntent.Clone()
	if s.SchemaSnapshot != nil {
		snapshot := s.SchemaSnapshot.Clone()
		out.SchemaSnapshot = &snapshot
	}
	out.ValidationResult.Errors = append([]string(nil), s.ValidationResult.Errors...)
	out.ValidationResult.Warnings = append([]string(nil), s.ValidationResult.Warnings...)
	if s.Decision != nil {
		decision := *s.Decision
		out.Decision = &decision
	}
	if s.ExecutionResult != nil {
		result := *s.ExecutionResult
		result.Columns = append([]string(nil), s.ExecutionResult.Columns...)
		result.Rows = make([]map[string]any, 0, len(s.ExecutionResult.Rows))
		for _, row := range s.ExecutionResult.Rows {
			copied := make(map[string]any, len(row))
			for key, value := range row {
				copied[key] = value
			}
			result.Rows = append(result.Rows, copied)
		}
		out.ExecutionResult = &result
	}
	out.Corrections = make([]Correction, 0, len(s.Corrections))
	for _, correction := range s.Corrections {
		correction.Errors = append([]string(nil), correction.Errors...)
		out.Corrections = append(out.Corrections, correction)
	}
	return out
}
