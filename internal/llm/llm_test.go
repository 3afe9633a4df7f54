package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIProviderComplete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  SELECT 1;  "}}]}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "key-1", Model: "gpt-test", Temperature: 0.1})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	got, err := provider.Complete(context.Background(), "list users", Options{System: "sql only", MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT 1;" {
		t.Fatalf("Complete() = %q", got)
	}
	if captured["model"] != "gpt-test" {
		t.Fatalf("model = %v", captured["model"])
	}
	messages, ok := captured["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %#v", captured["messages"])
	}
	if captured["max_tokens"] != float64(64) {
		t.Fatalf("max_tokens = %v", captured["max_tokens"])
	}
}

func TestOpenAIProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Case") {
		case "empty":
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`upstream down`))
		}
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	_, err = provider.Complete(context.Background(), "x", Options{})
	if err == nil || !strings.Contains(err.Error(), "status=502") {
		t.Fatalf("Complete() error = %v", err)
	}

	provider.client.Transport = headerTransport{key: "X-Case", value: "empty"}
	_, err = provider.Complete(context.Background(), "x", Options{})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("Complete() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestNewOpenAIProviderValidation(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	mock := &MockProvider{Responses: []string{"ok"}}
	if err := registry.Register("Primary", mock); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register("primary", mock); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	got, err := registry.Resolve(" PRIMARY ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != mock {
		t.Fatal("Resolve() returned a different provider")
	}
	if _, err := registry.Resolve("other"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownProvider", err)
	}
	if names := registry.Names(); len(names) != 1 || names[0] != "primary" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestMockProviderReplaysScript(t *testing.T) {
	mock := &MockProvider{Responses: []string{"a", "b"}}
	for _, want := range []string{"a", "b", "b"} {
		got, err := mock.Complete(context.Background(), "p", Options{})
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if got != want {
			t.Fatalf("Complete() = %q, want %q", got, want)
		}
	}
	if len(mock.Prompts()) != 3 {
		t.Fatalf("Prompts() = %v", mock.Prompts())
	}
}

type headerTransport struct {
	key   string
	value string
}

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(h.key, h.value)
	return http.DefaultTransport.RoundTrip(r)
}
