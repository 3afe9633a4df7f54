package sqlkind

import (
	"regexp"
	"strings"
)

type Kind string

const (
	Select Kind = "SELECT"
	Insert Kind = "INSERT"
	Update Kind = "UPDATE"
	Delete Kind = "DELETE"
	DDL    Kind = "DDL"
	Other  Kind = "OTHER"
)

// IsMutation reports whether statements of this kind change table data.
func (k Kind) IsMutation() bool {
	return k == Insert || k == Update || k == Delete
}

var (
	leadingLineComment  = regexp.MustCompile(`^--[^\n]*(\n|$)`)
	leadingBlockComment = regexp.MustCompile(`^/\*(?s:.*?)\*/`)
	mutationInCTE       = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE)\b`)
	leadingWord         = regexp.MustCompile(`^[A-Za-z]+`)
)

var verbs = map[string]Kind{
	"SELECT":   Select,
	"VALUES":   Select,
	"TABLE":    Select,
	"INSERT":   Insert,
	"REPLACE":  Insert,
	"UPDATE":   Update,
	"MERGE":    Update,
	"DELETE":   Delete,
	"CREATE":   DDL,
	"ALTER":    DDL,
	"DROP":     DDL,
	"TRUNCATE": DDL,
	"RENAME":   DDL,
}

// Detect classifies a statement by its leading verb. Leading comments and
// parentheses are skipped. A WITH statement is a mutation if its body holds
// INSERT, UPDATE or DELETE, and a Select otherwise.
func Detect(sql string) Kind {
	body := StripLeadingNoise(sql)
	word := strings.ToUpper(leadingWord.FindString(body))
	if word == "" {
		return Other
	}
	if word == "WITH" {
		if match := mutationInCTE.FindString(body); match != "" {
			return verbs[strings.ToUpper(match)]
		}
		return Select
	}
	if kind, ok := verbs[word]; ok {
		return kind
	}
	return Other
}

// StripLeadingNoise removes whitespace, comments and opening parentheses that
// precede the first keyword of a statement.
func StripLeadingNoise(sql string) string {
	body := sql
	for {
		trimmed := strings.TrimLeft(body, " \t\r\n(")
		trimmed = leadingLineComment.ReplaceAllString(trimmed, "")
		trimmed = leadingBlockComment.ReplaceAllString(trimmed, "")
		if trimmed == body {
			return body
		}
		body = trimmed
	}
}
