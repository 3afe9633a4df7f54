package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
)

type Action string

const (
	ActionQuery    Action = "query"
	ActionModify   Action = "modify"
	ActionDescribe Action = "describe"
	ActionExplain  Action = "explain"
)

type Target string

const (
	TargetData   Target = "data"
	TargetSchema Target = "schema"
	TargetBoth   Target = "both"
)

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

type Intent struct {
	Action           Action     `json:"action"`
	Target           Target     `json:"target"`
	Complexity       Complexity `json:"complexity"`
	Tables           []string   `json:"tables"`
	RequiresApproval bool       `json:"requires_approval"`
}

func (i Intent) Clone() Intent {
	out := i
	out.Tables = append([]string(nil), i.Tables...)
	return out
}

// cues pairs substring keywords (CJK) with word-bounded English keywords.
type cues struct {
	substrings []string
	words      *regexp.Regexp
}

func newCues(substrings []string, words ...string) cues {
	c := cues{substrings: substrings}
	if len(words) > 0 {
		c.words = regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	}
	return c
}

func (c cues) match(text string) bool {
	for _, keyword := range c.substrings {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return c.words != nil && c.words.MatchString(text)
}

var (
	insertCues   = newCues([]string{"添加", "插入", "新增"}, "insert", "add")
	updateCues   = newCues([]string{"更新", "修改"}, "update", "modify", "change")
	deleteCues   = newCues([]string{"删除"}, "delete", "remove")
	queryCues    = newCues([]string{"查询", "查找", "获取", "列出", "显示"}, "select", "find", "list", "show", "get", "query")
	describeCues = newCues([]string{"表结构", "结构"}, "schema", "describe", "structure")
	explainCues  = newCues([]string{"解释", "分析"}, "explain", "analy[sz]e")

	complexCues  = newCues([]string{"复杂", "关联", "统计", "汇总", "分组", "多表"}, "join", "group by", "aggregate", "sum", "count", "average", "avg", "total")
	moderateCues = newCues([]string{"条件", "筛选", "过滤", "大于", "小于", "等于", "最近", "排序"}, "where", "filter", "greater", "less", "between", "order by", "sort", "recent", "top")
	columnCues   = newCues([]string{"字段", "列"}, "column", "columns", "field", "fields")
)

// Extractor classifies requests by keyword. When no action keyword matches
// and a classifier is configured, the model is asked for the action.
type Extractor struct {
	classifier llm.Provider
}

func NewExtractor(classifier llm.Provider) *Extractor {
	return &Extractor{classifier: classifier}
}

// Extract never fails: a classifier error is returned alongside the keyword
// result so callers can log it and carry on.
func (e *Extractor) Extract(ctx context.Context, text string, knownTables []string) (Intent, error) {
	lowered := strings.ToLower(text)
	result, matched := classifyAction(lowered)
	result.Tables = matchTables(text, knownTables)
	result.Complexity = classifyComplexity(lowered, len(result.Tables))

	var classifyErr error
	if !matched && e != nil && e.classifier != nil {
		action, err := e.classify(ctx, text)
		if err != nil {
			classifyErr = pipeline.IntentParseError(err)
		} else {
			result.Action = action
			if action == ActionDescribe {
				result.Target = TargetSchema
			}
		}
	}

	if result.Action == ActionModify {
		result.RequiresApproval = true
	}
	if result.Target == TargetData && (result.Action == ActionQuery || result.Action == ActionExplain) && columnCues.match(lowered) {
		result.Target = TargetBoth
	}
	return result, classifyErr
}

// classifyAction checks mutation verbs first so that no other cue can mask a
// write request.
func classifyAction(text string) (Intent, bool) {
	intent := Intent{Action: ActionQuery, Target: TargetData, Tables: []string{}}
	switch {
	case insertCues.match(text), updateCues.match(text), deleteCues.match(text):
		intent.Action = ActionModify
		intent.RequiresApproval = true
	case describeCues.match(text):
		intent.Action = ActionDescribe
		intent.Target = TargetSchema
	case explainCues.match(text):
		intent.Action = ActionExplain
	case queryCues.match(text):
		intent.Action = ActionQuery
	default:
		return intent, false
	}
	return intent, true
}

func classifyComplexity(text string, tableCount int) Complexity {
	switch {
	case complexCues.match(text) || tableCount > 1:
		return ComplexityComplex
	case moderateCues.match(text):
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

func matchTables(text string, known []string) []string {
	tables := []string{}
	lowered := strings.ToLower(text)
	for _, name := range known {
		if name == "" {
			continue
		}
		pattern := `(?i)(^|[^a-z0-9_])` + regexp.QuoteMeta(strings.ToLower(name)) + `($|[^a-z0-9_])`
		if regexp.MustCompile(pattern).MatchString(lowered) {
			tables = append(tables, name)
		}
	}
	return tables
}

const classifierPrompt = `Classify the database request below into exactly one word:
query (read data), modify (insert, update or delete data), describe (show table structure), explain (analyse a query or data).

Request:
%s

Answer with one word.`

func (e *Extractor) classify(ctx context.Context, text string) (Action, error) {
	answer, err := e.classifier.Complete(ctx, fmt.Sprintf(classifierPrompt, text), llm.Options{Temperature: 0, MaxTokens: 5})
	if err != nil {
		return "", err
	}
	word := strings.ToLower(strings.Trim(strings.TrimSpace(answer), ".\"'`"))
	switch Action(word) {
	case ActionQuery, ActionModify, ActionDescribe, ActionExplain:
		return Action(word), nil
	default:
		return "", fmt.Errorf("unrecognized classification %q", answer)
	}
}
