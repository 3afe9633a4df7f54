package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/intent"
	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "```sql\nSELECT id\nFROM users\n```", want: "SELECT id FROM users;"},
		{in: "  SELECT 1  ", want: "SELECT 1;"},
		{in: "SELECT 1;;", want: "SELECT 1;"},
		{in: "-- list users\nSELECT *\n  FROM users;", want: "SELECT * FROM users;"},
		{in: "```\nDELETE FROM orders WHERE id = 3\n```", want: "DELETE FROM orders WHERE id = 3;"},
		{in: "", want: ""},
		{in: "```sql\n```", want: ""},
		{in: "SELECT '--not a comment' AS marker FROM t", want: "SELECT '--not a comment' AS marker FROM t;"},
		{in: "DELETE FROM users -- only bob\nWHERE id = 2", want: "DELETE FROM users WHERE id = 2;"},
		{in: "SELECT id -- just alice\nFROM users\nWHERE id = 1", want: "SELECT id FROM users WHERE id = 1;"},
		{in: "SELECT id /* primary key */ FROM users\nWHERE name = 'a  b'", want: "SELECT id FROM users WHERE name = 'a  b';"},
		{in: "SELECT id FROM users /* unterminated", want: "SELECT id FROM users;"},
		{in: "SELECT \"odd--name\" FROM t -- trailing", want: "SELECT \"odd--name\" FROM t;"},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	got := truncate("查询用户表", 2)
	if got != "查询..." {
		t.Fatalf("truncate() = %q", got)
	}
	if got := truncate("SELECT 1;", 200); got != "SELECT 1;" {
		t.Fatalf("truncate() = %q", got)
	}
}

func TestGenerateNormalizesAndDetectsKind(t *testing.T) {
	provider := &llm.MockProvider{Responses: []string{"```sql\nINSERT INTO users (name)\nVALUES ('a')\n```"}}
	synthesizer, err := New(provider, database.DialectSQLite, Config{Temperature: 0.1}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sql, kind, err := synthesizer.Generate(context.Background(), "向用户表添加一条新记录", intent.Intent{Action: intent.ActionModify, Tables: []string{"users"}}, sampleMetadata())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sql != "INSERT INTO users (name) VALUES ('a');" {
		t.Fatalf("sql = %q", sql)
	}
	if kind != sqlkind.Insert {
		t.Fatalf("kind = %q", kind)
	}

	prompts := provider.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("prompts = %d", len(prompts))
	}
	for _, snippet := range []string{"Table: users", "  - id: INTEGER NOT NULL", "Primary key: id", "SQLite", `"action":"modify"`, "向用户表添加一条新记录"} {
		if !strings.Contains(prompts[0], snippet) {
			t.Fatalf("prompt missing %q:\n%s", snippet, prompts[0])
		}
	}
}

func TestCorrectIncludesErrors(t *testing.T) {
	provider := &llm.MockProvider{Responses: []string{"SELECT id FROM users"}}
	synthesizer, err := New(provider, database.DialectPostgres, Config{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sql, kind, err := synthesizer.Correct(context.Background(), "SELEC id FROM users;", []string{"syntax error near SELEC"}, sampleMetadata())
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if sql != "SELECT id FROM users;" || kind != sqlkind.Select {
		t.Fatalf("Correct() = %q, %q", sql, kind)
	}
	prompt := provider.Prompts()[0]
	if !strings.Contains(prompt, "SELEC id FROM users;") || !strings.Contains(prompt, "syntax error near SELEC") {
		t.Fatalf("prompt = %s", prompt)
	}
}

func TestGenerateFailuresAreGenerationErrors(t *testing.T) {
	cases := []llm.Provider{
		&llm.MockProvider{Err: errors.New("connection refused")},
		&llm.MockProvider{Responses: []string{"```\n```"}},
	}
	for _, provider := range cases {
		synthesizer, err := New(provider, database.DialectSQLite, Config{}, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		_, _, err = synthesizer.Generate(context.Background(), "q", intent.Intent{}, schema.Metadata{})
		if !pipeline.IsStage(err, pipeline.StageGenerate) {
			t.Fatalf("Generate() error = %v, want generate stage", err)
		}
		if !pipeline.IsRetryable(err) {
			t.Fatal("generation errors should be retryable")
		}
	}
}

func TestNewRequiresProvider(t *testing.T) {
	if _, err := New(nil, database.DialectSQLite, Config{}, nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestFormatSchemaEmpty(t *testing.T) {
	if got := FormatSchema(schema.Metadata{}); got != "No table structure available.\n" {
		t.Fatalf("FormatSchema() = %q", got)
	}
}

func TestFormatSchemaRendersKeys(t *testing.T) {
	got := FormatSchema(sampleMetadata())
	for _, snippet := range []string{
		"Table: orders",
		"  - total: REAL NULL DEFAULT 0 COMMENT 'gross amount'",
		"Foreign key: (user_id) -> users(id)",
		"Rows: 3",
	} {
		if !strings.Contains(got, snippet) {
			t.Fatalf("FormatSchema() missing %q:\n%s", snippet, got)
		}
	}
}

func sampleMetadata() schema.Metadata {
	return schema.Metadata{Tables: map[string]schema.Table{
		"users": {
			Name:        "users",
			Columns:     []schema.Column{{Name: "id", Type: "INTEGER"}, {Name: "name", Type: "TEXT", Nullable: true}},
			PrimaryKeys: []string{"id"},
			RowCount:    2,
		},
		"orders": {
			Name: "orders",
			Columns: []schema.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "user_id", Type: "INTEGER"},
				{Name: "total", Type: "REAL", Nullable: true, Default: "0", Comment: "gross amount"},
			},
			PrimaryKeys: []string{"id"},
			ForeignKeys: []schema.ForeignKey{{Columns: []string{"user_id"}, ReferencedTable: "users", ReferencedColumns: []string{"id"}}},
			RowCount:    3,
		},
	}}
}
