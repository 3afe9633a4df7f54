package sqlpilotctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Target     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("sqlpilotctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "sqlpilot API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	target := fs.String("target", defaults.Target, "target database name (default: server default)")
	sessionID := fs.String("session-id", "", "session id to reuse for ask")
	comments := fs.String("comments", "", "reviewer comments for approve/reject")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "ask":
		question := strings.TrimSpace(strings.Join(rest, " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		req = request{method: http.MethodPost, path: "/v1/sql/ask", body: map[string]string{
			"question":   question,
			"session_id": strings.TrimSpace(*sessionID),
			"target":     strings.TrimSpace(*target),
		}}
	case "pending":
		req = request{method: http.MethodGet, path: "/v1/sql/approvals"}
	case "approve", "reject":
		id, ok := singleArg(stderr, command, "ticket id", rest)
		if !ok {
			return 2
		}
		req = request{method: http.MethodPost, path: "/v1/sql/approvals/" + url.PathEscape(id), body: map[string]any{
			"approve":  command == "approve",
			"comments": *comments,
		}}
	case "session":
		id, ok := singleArg(stderr, command, "session id", rest)
		if !ok {
			return 2
		}
		req = request{method: http.MethodGet, path: "/v1/sql/sessions/" + url.PathEscape(id)}
	case "targets":
		req = request{method: http.MethodGet, path: "/v1/targets"}
	case "reload-schema":
		req = request{method: http.MethodPost, path: "/v1/schema/reload", body: map[string]string{"target": strings.TrimSpace(*target)}}
	case "expiry-run":
		req = request{method: http.MethodPost, path: "/v1/maintenance/expiry/run"}
	case "retention-run":
		req = request{method: http.MethodPost, path: "/v1/maintenance/retention/run"}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if command == "ask" {
		if answer, ok := answerText(responseBody); ok {
			_, _ = fmt.Fprintln(stdout, answer)
			return 0
		}
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

// answerText prints the rendered answer followed by the session and ticket
// ids a caller needs for follow-up commands.
func answerText(raw []byte) (string, bool) {
	var outcome struct {
		Answer    string `json:"answer"`
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
		TicketID  string `json:"ticket_id"`
	}
	if err := json.Unmarshal(raw, &outcome); err != nil || outcome.Answer == "" {
		return "", false
	}
	var b strings.Builder
	b.WriteString(outcome.Answer)
	b.WriteString("\n\nsession: ")
	b.WriteString(outcome.SessionID)
	b.WriteString(" (")
	b.WriteString(outcome.Status)
	b.WriteString(")")
	if outcome.TicketID != "" && outcome.Status == "suspended" {
		b.WriteString("\nticket: ")
		b.WriteString(outcome.TicketID)
	}
	return b.String(), true
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func singleArg(stderr io.Writer, command, name string, rest []string) (string, bool) {
	if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
		_, _ = fmt.Fprintf(stderr, "%s requires exactly one %s\n", command, name)
		return "", false
	}
	return strings.TrimSpace(rest[0]), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: sqlpilotctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  ask <question>      POST /v1/sql/ask")
	_, _ = fmt.Fprintln(w, "  pending             GET /v1/sql/approvals")
	_, _ = fmt.Fprintln(w, "  approve <ticket>    POST /v1/sql/approvals/{id}")
	_, _ = fmt.Fprintln(w, "  reject <ticket>     POST /v1/sql/approvals/{id}")
	_, _ = fmt.Fprintln(w, "  session <id>        GET /v1/sql/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  targets             GET /v1/targets")
	_, _ = fmt.Fprintln(w, "  reload-schema       POST /v1/schema/reload")
	_, _ = fmt.Fprintln(w, "  expiry-run          POST /v1/maintenance/expiry/run")
	_, _ = fmt.Fprintln(w, "  retention-run       POST /v1/maintenance/retention/run")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
