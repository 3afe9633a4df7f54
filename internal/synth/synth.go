package synth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/intent"
	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/sqlkind"
)

var fenceMarker = regexp.MustCompile("```[A-Za-z]*")

type Config struct {
	Temperature float64
	MaxTokens   int
}

// Synthesizer asks a model for SQL and normalizes what comes back.
type Synthesizer struct {
	provider llm.Provider
	dialect  database.Dialect
	options  llm.Options
	logger   *slog.Logger
}

func New(provider llm.Provider, dialect database.Dialect, cfg Config, logger *slog.Logger) (*Synthesizer, error) {
	if provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		provider: provider,
		dialect:  dialect,
		options: llm.Options{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			System:      systemPrompt,
		},
		logger: logger,
	}, nil
}

// Generate produces the first candidate statement for a question.
func (s *Synthesizer) Generate(ctx context.Context, question string, in intent.Intent, metadata schema.Metadata) (string, sqlkind.Kind, error) {
	return s.complete(ctx, generationPrompt(question, in, metadata, s.dialect))
}

// Correct asks for a replacement of sql that addresses errs.
func (s *Synthesizer) Correct(ctx context.Context, sql string, errs []string, metadata schema.Metadata) (string, sqlkind.Kind, error) {
	return s.complete(ctx, correctionPrompt(sql, errs, metadata, s.dialect))
}

func (s *Synthesizer) complete(ctx context.Context, prompt string) (string, sqlkind.Kind, error) {
	text, err := s.provider.Complete(ctx, prompt, s.options)
	if err != nil {
		return "", sqlkind.Other, pipeline.GenerationError("model request failed", err)
	}
	sql := Normalize(text)
	if sql == "" {
		return "", sqlkind.Other, pipeline.GenerationError("model returned no SQL", llm.ErrEmptyCompletion)
	}
	kind := sqlkind.Detect(sql)
	s.logger.DebugContext(ctx, "sql generated", "kind", kind, "sql", truncate(sql, 200))
	return sql, kind, nil
}

// Normalize strips code fences and comments, collapses whitespace outside
// quoted text and terminates the statement with a semicolon. Empty input stays
// empty.
func Normalize(text string) string {
	sql := compact(fenceMarker.ReplaceAllString(text, ""))
	sql = strings.TrimSpace(strings.TrimRight(sql, "; "))
	if sql == "" {
		return ""
	}
	return sql + ";"
}

// compact drops -- and /* */ comments and folds whitespace runs to a single
// space. Single-quoted literals and double-quoted or backticked identifiers
// are copied verbatim. A comment always ends as whitespace, so text after a
// line comment keeps its own token boundary.
func compact(sql string) string {
	runes := []rune(sql)
	var b strings.Builder
	var quote rune
	gap := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case r == '-' && next == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			gap = true
			continue
		case r == '/' && next == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i++
			gap = true
			continue
		case unicode.IsSpace(r):
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteByte(' ')
		}
		gap = false
		if r == '\'' || r == '"' || r == '`' {
			quote = r
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
