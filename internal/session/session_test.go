package session

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/intent"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
)

func sampleState() State {
	snapshot := schema.Metadata{Tables: map[string]schema.Table{
		"users": {Name: "users", Columns: []schema.Column{{Name: "id", Type: "INTEGER"}}, PrimaryKeys: []string{"id"}},
	}}
	return State{
		SessionID:      "s-1",
		UserInput:      "向用户表添加一条新记录",
		ParsedIntent:   intent.Intent{Action: intent.ActionModify, Tables: []string{"users"}, RequiresApproval: true},
		SchemaSnapshot: &snapshot,
		GeneratedSQL:   "INSERT INTO users (id) VALUES (1);",
		SQLKind:        sqlkind.Insert,
		ValidationResult: ValidationResult{
			IsValid:          true,
			Warnings:         []string{"mutation requires approval"},
			RequiresApproval: true,
		},
		ExecutionResult: &ExecutionResult{Columns: []string{"id"}, Rows: []map[string]any{{"id": 1}}},
		Corrections:     []Correction{{Attempt: 1, Errors: []string{"e1"}}},
		MaxRetries:      3,
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := sampleState()
	clone := original.Clone()

	clone.ParsedIntent.Tables[0] = "orders"
	clone.SchemaSnapshot.Tables["users"].Columns[0].Name = "changed"
	clone.ValidationResult.Warnings[0] = "changed"
	clone.ExecutionResult.Rows[0]["id"] = 2
	clone.Corrections[0].Errors[0] = "changed"
	delete(clone.SchemaSnapshot.Tables, "users")

	if original.ParsedIntent.Tables[0] != "users" {
		t.Fatal("intent tables shared")
	}
	if original.SchemaSnapshot.Tables["users"].Columns[0].Name != "id" {
		t.Fatal("schema columns shared")
	}
	if original.ValidationResult.Warnings[0] != "mutation requires approval" {
		t.Fatal("warnings shared")
	}
	if original.ExecutionResult.Rows[0]["id"] != 1 {
		t.Fatal("rows shared")
	}
	if original.Corrections[0].Errors[0] != "e1" {
		t.Fatal("corrections shared")
	}
}

func TestRequiresApproval(t *testing.T) {
	state := State{SQLKind: sqlkind.Select}
	if state.RequiresApproval() {
		t.Fatal("select should not require approval")
	}
	state.SQLKind = sqlkind.Delete
	if !state.RequiresApproval() {
		t.Fatal("delete should require approval")
	}
	state = State{SQLKind: sqlkind.Select, ParsedIntent: intent.Intent{Action: intent.ActionModify, RequiresApproval: true}}
	if !state.RequiresApproval() {
		t.Fatal("modify intent should require approval")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
	if err := store.Save(ctx, State{}); err == nil {
		t.Fatal("expected error for empty session id")
	}

	state := sampleState()
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	state.GeneratedSQL = "mutated after save"

	loaded, err := store.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.GeneratedSQL != "INSERT INTO users (id) VALUES (1);" {
		t.Fatalf("GeneratedSQL = %q", loaded.GeneratedSQL)
	}
}
