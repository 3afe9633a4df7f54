package workflow

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/session"
)

const (
	langZH = "zh"
	langEN = "en"

	previewRows     = 10
	previewCellSize = 50
	summaryColumns  = 5
)

type messages struct {
	errorTemplate     string
	notExecuted       string
	validated         string
	notValidated      string
	nothing           string
	statsFooter       string
	querySuccess      string
	mutationSuccess   string
	previewHeader     string
	moreRows          string
	emptyResult       string
	pending           string
	rejected          string
	rejectedComments  string
	expired           string
	schemaHeader      string
	schemaTable       string
	schemaColumns     string
	schemaRows        string
	schemaPrimaryKeys string
	schemaMainColumns string
	schemaMoreColumns string
	schemaTotals      string
	schemaEmpty       string
	schemaWarnings    string
}

var catalog = map[string]messages{
	langZH: {
		errorTemplate:     "抱歉，处理您的请求时出现错误:\n\n**错误信息**: %s\n\n请检查您的查询或联系管理员。",
		notExecuted:       "SQL已生成但未执行:\n\n```sql\n%s\n```\n\n类型: %s\n状态: %s",
		validated:         "已验证",
		notValidated:      "未验证",
		nothing:           "未能处理您的请求，请提供更详细的信息。",
		statsFooter:       "\n\n---\n**执行统计**:\n- 返回行数: %d\n- 执行时间: %.2f秒\n- 查询列数: %d",
		querySuccess:      "✅ 查询成功！",
		mutationSuccess:   "✅ 执行成功！影响行数: %d",
		previewHeader:     "**数据预览** (最多显示10行):",
		moreRows:          "... 还有 %d 行数据未显示",
		emptyResult:       "**查询结果为空**",
		pending:           "您的SQL操作需要人工审核，已加入审核队列（编号: %s）\n\n**待审核SQL**:\n```sql\n%s\n```\n\n**审核原因**: %s\n\n请等待管理员审核后继续执行。",
		rejected:          "您的SQL操作已被审核人拒绝，未执行任何修改。",
		rejectedComments:  "\n\n**审核意见**: %s",
		expired:           "您的SQL操作审核已超时（%s），已自动拒绝，未执行任何修改。",
		schemaHeader:      "📋 数据库表结构摘要：",
		schemaTable:       "**表名**: %s",
		schemaColumns:     "  列数: %d",
		schemaRows:        "  行数: %d",
		schemaPrimaryKeys: "  主键: %s",
		schemaMainColumns: "  主要列:",
		schemaMoreColumns: "    ... 还有 %d 个列",
		schemaTotals:      "📊 统计信息：\n  总表数: %d\n  总列数: %d\n  总行数: %d",
		schemaEmpty:       "无可用表结构信息",
		schemaWarnings:    "⚠️ 部分表结构读取失败: %s",
	},
	langEN: {
		errorTemplate:     "Sorry, an error occurred while processing your request:\n\n**Error**: %s\n\nPlease check your query or contact an administrator.",
		notExecuted:       "SQL was generated but not executed:\n\n```sql\n%s\n```\n\nKind: %s\nStatus: %s",
		validated:         "validated",
		notValidated:      "not validated",
		nothing:           "Your request could not be processed. Please provide more detail.",
		statsFooter:       "\n\n---\n**Execution stats**:\n- Rows returned: %d\n- Elapsed: %.2fs\n- Columns: %d",
		querySuccess:      "✅ Query succeeded!",
		mutationSuccess:   "✅ Statement executed. Rows affected: %d",
		previewHeader:     "**Data preview** (up to 10 rows):",
		moreRows:          "... %d more rows not shown",
		emptyResult:       "**The query returned no rows**",
		pending:           "Your SQL operation needs human review and has been queued (ticket: %s)\n\n**SQL awaiting review**:\n```sql\n%s\n```\n\n**Reason**: %s\n\nExecution continues once an administrator approves it.",
		rejected:          "Your SQL operation was rejected by a reviewer. No changes were made.",
		rejectedComments:  "\n\n**Reviewer comments**: %s",
		expired:           "The review of your SQL operation timed out (%s) and it was rejected automatically. No changes were made.",
		schemaHeader:      "📋 Database schema summary:",
		schemaTable:       "**Table**: %s",
		schemaColumns:     "  Columns: %d",
		schemaRows:        "  Rows: %d",
		schemaPrimaryKeys: "  Primary key: %s",
		schemaMainColumns: "  Main columns:",
		schemaMoreColumns: "    ... %d more columns",
		schemaTotals:      "📊 Totals:\n  Tables: %d\n  Columns: %d\n  Rows: %d",
		schemaEmpty:       "No table structure available.",
		schemaWarnings:    "⚠️ Some tables could not be read: %s",
	},
}

// detectLanguage answers in Chinese when the question contains Han script.
func detectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return langZH
		}
	}
	return langEN
}

func messagesFor(lang string) messages {
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog[langEN]
}

func fallbackAnswer(state session.State) string {
	m := messagesFor(state.AnswerLang)
	switch {
	case state.SQLError != "":
		return fmt.Sprintf(m.errorTemplate, state.SQLError)
	case state.GeneratedSQL != "":
		status := m.notValidated
		if state.ValidationResult.IsValid {
			status = m.validated
		}
		return fmt.Sprintf(m.notExecuted, state.GeneratedSQL, state.SQLKind, status)
	default:
		return m.nothing
	}
}

func statsFooter(lang string, result session.ExecutionResult) string {
	return fmt.Sprintf(messagesFor(lang).statsFooter, result.RowCount, result.ElapsedSeconds, len(result.Columns))
}

func executionAnswer(lang string, result session.ExecutionResult, mutation bool) string {
	m := messagesFor(lang)
	if mutation {
		return fmt.Sprintf(m.mutationSuccess, result.RowsAffected)
	}

	var b strings.Builder
	b.WriteString(m.querySuccess)
	b.WriteString("\n\n")
	if result.RowCount == 0 {
		b.WriteString(m.emptyResult)
		return b.String()
	}

	b.WriteString(m.previewHeader)
	b.WriteString("\n\n| ")
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString(" |\n|")
	for range result.Columns {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for i, row := range result.Rows {
		if i >= previewRows {
			break
		}
		cells := make([]string, 0, len(result.Columns))
		for _, column := range result.Columns {
			cells = append(cells, previewCell(row[column]))
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}
	if result.RowCount > previewRows {
		b.WriteString("\n")
		fmt.Fprintf(&b, m.moreRows, result.RowCount-previewRows)
	}
	return strings.TrimRight(b.String(), "\n")
}

func previewCell(value any) string {
	if value == nil {
		return ""
	}
	text := strings.ReplaceAll(fmt.Sprint(value), "\n", " ")
	text = strings.ReplaceAll(text, "|", `\|`)
	runes := []rune(text)
	if len(runes) > previewCellSize {
		return string(runes[:previewCellSize])
	}
	return text
}

func pendingAnswer(lang, ticketID, sql, reason string) string {
	return fmt.Sprintf(messagesFor(lang).pending, ticketID, sql, reason)
}

func rejectedAnswer(lang, comments string) string {
	m := messagesFor(lang)
	answer := m.rejected
	if strings.TrimSpace(comments) != "" {
		answer += fmt.Sprintf(m.rejectedComments, comments)
	}
	return answer
}

func expiredAnswer(lang string) string {
	return fmt.Sprintf(messagesFor(lang).expired, expiredReason)
}

func schemaSummary(lang string, metadata schema.Metadata) string {
	m := messagesFor(lang)
	if metadata.Empty() {
		return m.schemaEmpty
	}

	var b strings.Builder
	b.WriteString(m.schemaHeader)
	b.WriteString("\n\n")
	totalColumns := 0
	var totalRows int64
	for _, name := range metadata.TableNames() {
		table := metadata.Tables[name]
		totalColumns += len(table.Columns)
		totalRows += table.RowCount

		fmt.Fprintf(&b, m.schemaTable+"\n", name)
		fmt.Fprintf(&b, m.schemaColumns+"\n", len(table.Columns))
		fmt.Fprintf(&b, m.schemaRows+"\n", table.RowCount)
		if len(table.PrimaryKeys) > 0 {
			fmt.Fprintf(&b, m.schemaPrimaryKeys+"\n", strings.Join(table.PrimaryKeys, ", "))
		}
		if len(table.Columns) > 0 {
			b.WriteString(m.schemaMainColumns + "\n")
			for i, column := range table.Columns {
				if i >= summaryColumns {
					break
				}
				nullable := "NOT NULL"
				if column.Nullable {
					nullable = "NULL"
				}
				fmt.Fprintf(&b, "    - %s (%s) %s\n", column.Name, column.Type, nullable)
			}
			if len(table.Columns) > summaryColumns {
				fmt.Fprintf(&b, m.schemaMoreColumns+"\n", len(table.Columns)-summaryColumns)
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, m.schemaTotals, len(metadata.Tables), totalColumns, totalRows)
	if len(metadata.Warnings) > 0 {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, m.schemaWarnings, strings.Join(metadata.Warnings, "; "))
	}
	return b.String()
}
