package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/approval"
	"github.com/sqlpilot/sqlpilot/internal/archive"
	"github.com/sqlpilot/sqlpilot/internal/audit"
	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/executor"
	"github.com/sqlpilot/sqlpilot/internal/intent"
	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
	"github.com/sqlpilot/sqlpilot/internal/storage"
	"github.com/sqlpilot/sqlpilot/internal/synth"
	"github.com/sqlpilot/sqlpilot/internal/validate"
)

const (
	expiredReason = "approval expired"
	systemActor   = "system"

	// decisionTimeout bounds a resumed session once its ticket is consumed.
	decisionTimeout = 5 * time.Minute
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrUnknownTarget = errors.New("unknown target")
	ErrNoTargets     = errors.New("at least one target is required")

	// ErrInvalidSessionID rejects caller-supplied ids that no session store
	// can key on.
	ErrInvalidSessionID = errors.New("invalid session id")
)

type Config struct {
	MaxRetries       int
	RowLimit         int
	StatementTimeout time.Duration
	ApprovalTTL      time.Duration
	SchemaCacheSize  int
	GenerationModel  string
	ClassifierModel  string
	Temperature      float64
	Now              func() time.Time
}

type Dependencies struct {
	// Targets are the databases questions can be asked against. The first
	// one is used when a request names none.
	Targets   []database.Target
	Models    *llm.Registry
	Store     session.Store
	Audit     *audit.Writer
	Archivers map[string]*archive.Archiver
	Logger    *slog.Logger
}

type targetRuntime struct {
	target    database.Target
	inspector *schema.Inspector
	synth     *synth.Synthesizer
	validator *validate.Validator
	executor  *executor.Executor
	archiver  *archive.Archiver
}

// Orchestrator drives each session through the pipeline state machine.
type Orchestrator struct {
	cfg           Config
	targets       map[string]*targetRuntime
	defaultTarget string
	extractor     *intent.Extractor
	gate          *approval.Gate
	store         session.Store
	audit         *audit.Writer
	logger        *slog.Logger
	now           func() time.Time
}

func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if len(deps.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if deps.Models == nil {
		return nil, fmt.Errorf("model registry is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	store := deps.Store
	if store == nil {
		store = session.NewMemoryStore()
	}

	generator, err := deps.Models.Resolve(cfg.GenerationModel)
	if err != nil {
		return nil, fmt.Errorf("resolve generation model: %w", err)
	}
	var classifier llm.Provider
	if strings.TrimSpace(cfg.ClassifierModel) != "" {
		classifier, err = deps.Models.Resolve(cfg.ClassifierModel)
		if err != nil {
			return nil, fmt.Errorf("resolve classifier model: %w", err)
		}
	}

	o := &Orchestrator{
		cfg:           cfg,
		targets:       make(map[string]*targetRuntime, len(deps.Targets)),
		defaultTarget: deps.Targets[0].Name,
		extractor:     intent.NewExtractor(classifier),
		gate:          approval.NewGate(approval.Config{TTL: cfg.ApprovalTTL, Now: now}),
		store:         store,
		audit:         deps.Audit,
		logger:        logger,
		now:           now,
	}
	for _, target := range deps.Targets {
		if strings.TrimSpace(target.Name) == "" {
			return nil, fmt.Errorf("target name is required")
		}
		if _, exists := o.targets[target.Name]; exists {
			return nil, fmt.Errorf("duplicate target %q", target.Name)
		}
		if target.QueryTimeout <= 0 {
			target.QueryTimeout = cfg.StatementTimeout
		}
		inspector, err := schema.NewInspector(target, cfg.SchemaCacheSize, logger)
		if err != nil {
			return nil, fmt.Errorf("create schema inspector for %q: %w", target.Name, err)
		}
		synthesizer, err := synth.New(generator, target.Dialect, synth.Config{Temperature: cfg.Temperature}, logger)
		if err != nil {
			return nil, err
		}
		o.targets[target.Name] = &targetRuntime{
			target:    target,
			inspector: inspector,
			synth:     synthesizer,
			validator: validate.New(target, logger),
			executor:  executor.New(target, executor.Config{RowLimit: cfg.RowLimit, StatementTimeout: cfg.StatementTimeout}, logger),
			archiver:  deps.Archivers[target.Name],
		}
	}
	return o, nil
}

type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Target    string `json:"target,omitempty"`
}

// Outcome is what a caller sees after Ask or Decide.
type Outcome struct {
	Answer           string           `json:"answer"`
	SessionID        string           `json:"session_id"`
	Target           string           `json:"target"`
	Status           session.Status   `json:"status"`
	SQLGenerated     string           `json:"sql_generated"`
	SQLKind          sqlkind.Kind     `json:"sql_kind"`
	RequiresApproval bool             `json:"requires_approval"`
	HumanApproved    bool             `json:"human_approved"`
	TicketID         string           `json:"ticket_id,omitempty"`
	ExecutionSuccess bool             `json:"execution_success"`
	RowCount         int              `json:"row_count"`
	ElapsedSeconds   float64          `json:"elapsed_seconds"`
	RetryCount       int              `json:"retry_count"`
	Columns          []string         `json:"columns,omitempty"`
	Rows             []map[string]any `json:"rows,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Ask runs a question through the pipeline until it finalizes or parks on an
// approval ticket. Component failures end up in the outcome; an error is
// returned only for bad input, store failures and cancellation.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (Outcome, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Outcome{}, ErrEmptyQuestion
	}
	rt, err := o.runtime(req.Target)
	if err != nil {
		return Outcome{}, err
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if err := storage.ValidatePathComponent(sessionID, "session id"); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}

	now := o.now().UTC()
	state := &session.State{
		SessionID:  sessionID,
		Target:     rt.target.Name,
		UserInput:  question,
		Status:     session.StatusRunning,
		StartedAt:  now,
		UpdatedAt:  now,
		AnswerLang: detectLanguage(question),
		MaxRetries: o.cfg.MaxRetries,
	}
	err = o.run(ctx, rt, state, stepParseIntent)
	if err == nil {
		err = o.save(ctx, state)
	}
	if err != nil {
		o.withdrawTicket(state)
		return Outcome{}, err
	}
	return outcomeFrom(*state), nil
}

// ListPending returns tickets awaiting a decision, oldest first.
func (o *Orchestrator) ListPending() []approval.Summary {
	return o.gate.List()
}

type DecideRequest struct {
	Approve   bool   `json:"approve"`
	Comments  string `json:"comments,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
}

type DecideResult struct {
	Success  bool    `json:"success"`
	Action   string  `json:"action"`
	SQL      string  `json:"sql"`
	Comments string  `json:"comments,omitempty"`
	Outcome  Outcome `json:"outcome"`
}

// Decide consumes a ticket. Approval resumes the parked session at Execute;
// rejection finalizes it without running anything. Unknown or already
// decided tickets fail with approval.ErrTicketNotFound.
func (o *Orchestrator) Decide(ctx context.Context, ticketID string, req DecideRequest) (DecideResult, error) {
	ticket, err := o.gate.Take(strings.TrimSpace(ticketID))
	if err != nil {
		return DecideResult{}, err
	}
	// The ticket is gone from the gate, so the session must reach a stored
	// terminal state even if the caller disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), decisionTimeout)
	defer cancel()
	observability.SetPendingApprovals(o.gate.Len())

	action := "rejected"
	if req.Approve {
		action = "approved"
	}
	observability.ObserveApproval(action)

	state := o.resume(ticket, session.Decision{
		TicketID:  ticket.ID,
		Approved:  req.Approve,
		Comments:  req.Comments,
		DecidedBy: req.DecidedBy,
		DecidedAt: o.now().UTC(),
	})
	o.recordDecision(ctx, ticket, action, req.DecidedBy, req.Comments)

	from := stepFinalize
	if req.Approve {
		state.HumanApproved = true
		from = stepExecute
	} else {
		state.FinalAnswer = rejectedAnswer(state.AnswerLang, req.Comments)
	}

	rt, err := o.runtime(state.Target)
	if err != nil {
		state.SQLError = err.Error()
		from = stepFinalize
		rt = nil
	}
	if err := o.run(ctx, rt, state, from); err != nil {
		return DecideResult{}, err
	}
	if err := o.save(ctx, state); err != nil {
		return DecideResult{}, err
	}
	return DecideResult{
		Success:  true,
		Action:   action,
		SQL:      ticket.SQL,
		Comments: req.Comments,
		Outcome:  outcomeFrom(*state),
	}, nil
}

// ExpireTickets auto-rejects every ticket past its deadline and returns how
// many were expired.
func (o *Orchestrator) ExpireTickets(ctx context.Context) (int, error) {
	expired := o.gate.Expire(o.now().UTC())
	observability.SetPendingApprovals(o.gate.Len())

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), decisionTimeout)
	defer cancel()

	var errs []error
	for _, ticket := range expired {
		observability.ObserveApproval("expired")
		state := o.resume(ticket, session.Decision{
			TicketID:  ticket.ID,
			Approved:  false,
			Comments:  expiredReason,
			DecidedBy: systemActor,
			DecidedAt: o.now().UTC(),
		})
		o.recordDecision(ctx, ticket, "expired", systemActor, expiredReason)
		state.FinalAnswer = expiredAnswer(state.AnswerLang)
		if err := o.run(ctx, nil, state, stepFinalize); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := o.save(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	return len(expired), errors.Join(errs...)
}

func (o *Orchestrator) PendingCount() int {
	return o.gate.Len()
}

func (o *Orchestrator) Session(ctx context.Context, sessionID string) (session.State, error) {
	return o.store.Load(ctx, strings.TrimSpace(sessionID))
}

// ReloadSchema drops the cached schema for a target. An empty name reloads
// the default target.
func (o *Orchestrator) ReloadSchema(targetName string) error {
	rt, err := o.runtime(targetName)
	if err != nil {
		return err
	}
	rt.inspector.Reload()
	return nil
}

// TargetNames lists configured targets, default first.
func (o *Orchestrator) TargetNames() []string {
	others := make([]string, 0, len(o.targets)-1)
	for name := range o.targets {
		if name != o.defaultTarget {
			others = append(others, name)
		}
	}
	sort.Strings(others)
	return append([]string{o.defaultTarget}, others...)
}

func (o *Orchestrator) HealthCheck(ctx context.Context) error {
	for name, rt := range o.targets {
		if rt.target.DB == nil {
			return fmt.Errorf("target %q has no connection", name)
		}
		if err := rt.target.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("ping target %q: %w", name, err)
		}
	}
	return nil
}

func (o *Orchestrator) resume(ticket approval.Ticket, decision session.Decision) *session.State {
	state := ticket.Snapshot.Clone()
	state.TicketID = ticket.ID
	state.Decision = &decision
	state.Status = session.StatusRunning
	state.FinalAnswer = ""
	return &state
}

func (o *Orchestrator) recordDecision(ctx context.Context, ticket approval.Ticket, action, decidedBy, comments string) {
	recorder, ok := o.store.(session.DecisionRecorder)
	if !ok {
		return
	}
	err := recorder.RecordDecision(ctx, session.DecisionRecord{
		TicketID:  ticket.ID,
		SessionID: ticket.SessionID,
		Action:    action,
		DecidedBy: decidedBy,
		Comments:  comments,
		SQL:       ticket.SQL,
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "record approval decision failed", "ticket_id", ticket.ID, slog.Any("error", err))
	}
}

func (o *Orchestrator) runtime(name string) (*targetRuntime, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = o.defaultTarget
	}
	rt, ok := o.targets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return rt, nil
}

// withdrawTicket drops a ticket enqueued for a session whose Ask failed, so no
// approver can run SQL for a session that was never stored.
func (o *Orchestrator) withdrawTicket(state *session.State) {
	if state.Status != session.StatusSuspended || state.TicketID == "" {
		return
	}
	if _, err := o.gate.Take(state.TicketID); err == nil {
		observability.SetPendingApprovals(o.gate.Len())
		o.logger.Warn("approval ticket withdrawn", "ticket_id", state.TicketID, "session_id", state.SessionID)
	}
}

func (o *Orchestrator) save(ctx context.Context, state *session.State) error {
	state.UpdatedAt = o.now().UTC()
	if err := o.store.Save(ctx, *state); err != nil {
		return fmt.Errorf("save session %q: %w", state.SessionID, err)
	}
	return nil
}

func outcomeFrom(state session.State) Outcome {
	outcome := Outcome{
		Answer:           state.FinalAnswer,
		SessionID:        state.SessionID,
		Target:           state.Target,
		Status:           state.Status,
		SQLGenerated:     state.GeneratedSQL,
		SQLKind:          state.SQLKind,
		RequiresApproval: state.RequiresApproval(),
		HumanApproved:    state.HumanApproved,
		TicketID:         state.TicketID,
		RetryCount:       state.RetryCount,
		Error:            state.SQLError,
	}
	if state.ExecutionResult != nil {
		outcome.ExecutionSuccess = state.ExecutionResult.Success
		outcome.RowCount = state.ExecutionResult.RowCount
		outcome.ElapsedSeconds = state.ExecutionResult.ElapsedSeconds
		outcome.Columns = state.ExecutionResult.Columns
		outcome.Rows = state.ExecutionResult.Rows
	}
	return outcome
}
