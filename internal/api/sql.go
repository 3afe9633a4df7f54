package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/approval"
	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/workflow"
)

type decideRequest struct {
	Approve   *bool  `json:"approve"`
	Comments  string `json:"comments"`
	DecidedBy string `json:"decided_by"`
}

type schemaReloadRequest struct {
	Target string `json:"target"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workflow == nil {
		writeWorkflowMissing(w, r)
		return
	}

	var request workflow.AskRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	outcome, err := deps.Workflow.Ask(r.Context(), request)
	switch {
	case errors.Is(err, workflow.ErrEmptyQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
		return
	case errors.Is(err, workflow.ErrInvalidSessionID):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SESSION_ID", err.Error(), false, nil)
		return
	case errors.Is(err, workflow.ErrUnknownTarget):
		writeError(r.Context(), w, http.StatusNotFound, "TARGET_NOT_FOUND", err.Error(), false, nil)
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", "question could not be processed", true, map[string]any{"details": err.Error()})
		return
	}

	status := http.StatusOK
	if outcome.Status == session.StatusSuspended {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

func handleListApprovals(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workflow == nil {
		writeWorkflowMissing(w, r)
		return
	}
	pending := deps.Workflow.ListPending()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}

func handleDecide(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workflow == nil {
		writeWorkflowMissing(w, r)
		return
	}

	ticketID := strings.TrimSpace(r.PathValue("id"))
	var request decideRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid approval request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.Approve == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "DECISION_REQUIRED", "approve must be true or false", false, nil)
		return
	}

	decidedBy := strings.TrimSpace(request.DecidedBy)
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		decidedBy = identity.Subject
	}

	result, err := deps.Workflow.Decide(r.Context(), ticketID, workflow.DecideRequest{
		Approve:   *request.Approve,
		Comments:  request.Comments,
		DecidedBy: decidedBy,
	})
	if errors.Is(err, approval.ErrTicketNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "TICKET_NOT_FOUND", "approval ticket not found or already decided", false, map[string]any{"ticket_id": ticketID})
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DECISION_FAILED", "approval decision failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workflow == nil {
		writeWorkflowMissing(w, r)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("id"))
	state, err := deps.Workflow.Session(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": sessionID})
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "failed to load session", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func handleListTargets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workflow == nil {
		writeWorkflowMissing(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": deps.Workflow.TargetNames()})
}

func handleSchemaReload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workflow == nil {
		writeWorkflowMissing(w, r)
		return
	}

	var request schemaReloadRequest
	if r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid schema reload body", false, map[string]any{"details": err.Error()})
			return
		}
	}
	if err := deps.Workflow.ReloadSchema(request.Target); err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "TARGET_NOT_FOUND", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "target": request.Target})
}

func writeWorkflowMissing(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotImplemented, "WORKFLOW_NOT_CONFIGURED", "sql workflow is not configured", false, nil)
}
