package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/audit"
	"github.com/sqlpilot/sqlpilot/internal/executor"
	"github.com/sqlpilot/sqlpilot/internal/intent"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
	"github.com/sqlpilot/sqlpilot/internal/validate"
)

type step string

const (
	stepParseIntent   step = "parse_intent"
	stepAnalyzeSchema step = "analyze_schema"
	stepGenerateSQL   step = "generate_sql"
	stepValidateSQL   step = "validate_sql"
	stepCheckApproval step = "check_approval"
	stepExecute       step = "execute"
	stepSelfCorrect   step = "self_correct"
	stepFinalize      step = "finalize"

	// stepDone ends the loop. The session is then either finalized or
	// suspended on a ticket.
	stepDone step = ""
)

// run advances the state machine from the given step until it finalizes or
// suspends. rt may be nil only when starting at finalize.
func (o *Orchestrator) run(ctx context.Context, rt *targetRuntime, state *session.State, from step) error {
	current := from
	for current != stepDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		state.Step = string(current)
		switch current {
		case stepParseIntent:
			current = o.parseIntent(ctx, rt, state)
		case stepAnalyzeSchema:
			current = o.analyzeSchema(ctx, rt, state)
		case stepGenerateSQL:
			current = o.generateSQL(ctx, rt, state)
		case stepValidateSQL:
			current = o.validateSQL(ctx, rt, state)
		case stepCheckApproval:
			current = o.checkApproval(ctx, state)
		case stepExecute:
			current = o.execute(ctx, rt, state)
		case stepSelfCorrect:
			current = o.selfCorrect(ctx, rt, state)
		case stepFinalize:
			current = o.finalize(ctx, state)
		default:
			return fmt.Errorf("unknown workflow step %q", current)
		}
	}
	return nil
}

func (o *Orchestrator) parseIntent(ctx context.Context, rt *targetRuntime, state *session.State) step {
	known, err := rt.inspector.TableNames(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "list tables for intent failed", "session_id", state.SessionID, slog.Any("error", err))
	}
	parsed, err := o.extractor.Extract(ctx, state.UserInput, known)
	if err != nil {
		o.logger.WarnContext(ctx, "intent classifier failed, using keyword intent", "session_id", state.SessionID, slog.Any("error", err))
	}
	state.ParsedIntent = parsed
	return stepAnalyzeSchema
}

func (o *Orchestrator) analyzeSchema(ctx context.Context, rt *targetRuntime, state *session.State) step {
	metadata, err := rt.inspector.Inspect(ctx, state.ParsedIntent.Tables)
	if err != nil {
		state.SQLError = err.Error()
		return stepFinalize
	}
	state.SchemaSnapshot = &metadata
	if len(metadata.Warnings) > 0 {
		o.logger.WarnContext(ctx, "partial schema snapshot", "session_id", state.SessionID, "warnings", metadata.Warnings)
	}
	if state.ParsedIntent.Action == intent.ActionDescribe {
		state.FinalAnswer = schemaSummary(state.AnswerLang, metadata)
		return stepFinalize
	}
	return stepGenerateSQL
}

func (o *Orchestrator) generateSQL(ctx context.Context, rt *targetRuntime, state *session.State) step {
	sql, kind, err := rt.synth.Generate(ctx, state.UserInput, state.ParsedIntent, o.snapshot(state))
	if err != nil {
		state.SQLError = err.Error()
		return o.retryOrFinalize(state)
	}
	state.GeneratedSQL = sql
	state.SQLKind = kind
	return stepValidateSQL
}

func (o *Orchestrator) validateSQL(ctx context.Context, rt *targetRuntime, state *session.State) step {
	result := rt.validator.Validate(ctx, state.GeneratedSQL, state.SQLKind, o.snapshot(state))
	state.ValidationResult = result
	if !result.IsValid {
		observability.ObserveValidationFailure(validationReason(result))
	}
	switch {
	case result.Blocked:
		return stepFinalize
	case result.IsValid && state.RequiresApproval() && !state.HumanApproved:
		return stepCheckApproval
	default:
		return stepExecute
	}
}

func (o *Orchestrator) checkApproval(ctx context.Context, state *session.State) step {
	if state.HumanApproved {
		return stepExecute
	}
	state.Status = session.StatusSuspended
	reason := approvalReason(state)
	ticket := o.gate.Enqueue(state.GeneratedSQL, reason, *state)
	state.TicketID = ticket.ID
	state.FinalAnswer = pendingAnswer(state.AnswerLang, ticket.ID, state.GeneratedSQL, reason)

	observability.SetPendingApprovals(o.gate.Len())
	observability.ObserveAsk("pending")
	o.logger.InfoContext(ctx, "session suspended for approval", "session_id", state.SessionID, "ticket_id", ticket.ID, "kind", state.SQLKind)
	o.writeAudit(ctx, *state)
	return stepDone
}

func (o *Orchestrator) execute(ctx context.Context, rt *targetRuntime, state *session.State) step {
	if !state.ValidationResult.IsValid {
		return o.retryOrFinalize(state)
	}
	if state.RequiresApproval() && !state.HumanApproved {
		return stepCheckApproval
	}

	result := rt.executor.Execute(ctx, executor.Request{SQL: state.GeneratedSQL, Approved: state.HumanApproved})
	state.ExecutionResult = &result
	if !result.Success {
		state.SQLError = result.Error
		return o.retryOrFinalize(state)
	}

	state.SQLError = ""
	if rt.archiver != nil && len(result.Columns) > 0 {
		key, err := rt.archiver.Archive(ctx, state.SessionID, result, o.now())
		if err != nil {
			o.logger.WarnContext(ctx, "archive result failed", "session_id", state.SessionID, slog.Any("error", err))
		} else {
			state.ExecutionResult.ArchiveKey = key
		}
	}
	state.FinalAnswer = executionAnswer(state.AnswerLang, result, state.SQLKind.IsMutation())
	return stepFinalize
}

// selfCorrect spends one retry asking the model to repair the statement with
// every error and warning collected so far, then loops back to validation.
func (o *Orchestrator) selfCorrect(ctx context.Context, rt *targetRuntime, state *session.State) step {
	if state.RetryCount >= state.MaxRetries {
		return stepFinalize
	}
	state.RetryCount++
	feedback := correctionFeedback(state)

	var (
		sql  string
		kind sqlkind.Kind
		err  error
	)
	if state.GeneratedSQL == "" {
		sql, kind, err = rt.synth.Generate(ctx, state.UserInput, state.ParsedIntent, o.snapshot(state))
	} else {
		sql, kind, err = rt.synth.Correct(ctx, state.GeneratedSQL, feedback, o.snapshot(state))
	}

	correction := session.Correction{Attempt: state.RetryCount, Errors: feedback, SQL: sql}
	if err != nil {
		state.Corrections = append(state.Corrections, correction)
		state.SQLError = err.Error()
		observability.ObserveSelfCorrection(false)
		o.logger.WarnContext(ctx, "self-correction failed", "session_id", state.SessionID, "attempt", state.RetryCount, slog.Any("error", err))
		if state.GeneratedSQL == "" {
			return o.retryOrFinalize(state)
		}
		return stepValidateSQL
	}

	correction.Progressed = sql != state.GeneratedSQL
	state.Corrections = append(state.Corrections, correction)
	observability.ObserveSelfCorrection(correction.Progressed)
	if correction.Progressed {
		state.GeneratedSQL = sql
		state.SQLKind = kind
		state.ExecutionResult = nil
		// An approval covers one exact statement.
		state.HumanApproved = false
	}
	state.SQLError = ""
	o.logger.InfoContext(ctx, "self-correction attempt", "session_id", state.SessionID, "attempt", state.RetryCount, "progressed", correction.Progressed)
	return stepValidateSQL
}

func (o *Orchestrator) finalize(ctx context.Context, state *session.State) step {
	executed := state.ExecutionResult != nil && state.ExecutionResult.Success
	if state.SQLError == "" && !executed && state.GeneratedSQL != "" && !state.ValidationResult.IsValid && len(state.ValidationResult.Errors) > 0 {
		state.SQLError = strings.Join(state.ValidationResult.Errors, "; ")
	}
	if state.FinalAnswer == "" {
		state.FinalAnswer = fallbackAnswer(*state)
	}
	if executed {
		state.FinalAnswer += statsFooter(state.AnswerLang, *state.ExecutionResult)
	}
	state.Status = session.StatusFinalized

	observability.ObserveAsk(outcomeLabel(*state))
	o.writeAudit(ctx, *state)
	return stepDone
}

func (o *Orchestrator) retryOrFinalize(state *session.State) step {
	if isBlocked(state) || state.RetryCount >= state.MaxRetries {
		return stepFinalize
	}
	return stepSelfCorrect
}

func (o *Orchestrator) snapshot(state *session.State) schema.Metadata {
	if state.SchemaSnapshot == nil {
		return schema.Metadata{}
	}
	return *state.SchemaSnapshot
}

func (o *Orchestrator) writeAudit(ctx context.Context, state session.State) {
	if err := o.audit.Write(audit.EntryFromState(state, o.now())); err != nil {
		o.logger.WarnContext(ctx, "write audit entry failed", "session_id", state.SessionID, slog.Any("error", err))
	}
}

// isBlocked reports a security violation from either the validator or the
// executor's own refusal. Neither is ever retried.
func isBlocked(state *session.State) bool {
	return state.ValidationResult.Blocked || strings.HasPrefix(state.SQLError, validate.SecurityMarker)
}

func correctionFeedback(state *session.State) []string {
	feedback := make([]string, 0, 1+len(state.ValidationResult.Errors)+len(state.ValidationResult.Warnings))
	if state.SQLError != "" {
		feedback = append(feedback, state.SQLError)
	}
	feedback = append(feedback, state.ValidationResult.Errors...)
	for _, warning := range state.ValidationResult.Warnings {
		feedback = append(feedback, "warning: "+warning)
	}
	return feedback
}

func approvalReason(state *session.State) string {
	if state.ValidationResult.RequiresApproval && len(state.ValidationResult.Warnings) > 0 {
		return state.ValidationResult.Warnings[len(state.ValidationResult.Warnings)-1]
	}
	return "request was classified as a data modification and requires human approval"
}

func validationReason(result session.ValidationResult) string {
	if result.Blocked {
		return "security"
	}
	for _, message := range result.Errors {
		if strings.HasPrefix(message, string(pipeline.StageSyntax)) {
			return "syntax"
		}
	}
	return "other"
}

func outcomeLabel(state session.State) string {
	switch {
	case state.Decision != nil && state.Decision.Comments == expiredReason && !state.Decision.Approved:
		return "expired"
	case state.Decision != nil && !state.Decision.Approved:
		return "rejected"
	case state.ExecutionResult != nil && state.ExecutionResult.Success:
		return "executed"
	case state.ParsedIntent.Action == intent.ActionDescribe && state.SQLError == "":
		return "described"
	case state.ValidationResult.Blocked:
		return "blocked"
	default:
		return "failed"
	}
}
