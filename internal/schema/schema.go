package schema

import (
	"sort"
	"strings"
)

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

type ForeignKey struct {
	Name              string   `json:"name,omitempty"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
}

type Index struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns,omitempty"`
	Unique     bool     `json:"unique"`
	Definition string   `json:"definition,omitempty"`
}

type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	RowCount    int64        `json:"row_count"`
}

// Metadata is a point-in-time structural snapshot of a target database.
// Warnings lists the parts that could not be read.
type Metadata struct {
	Tables   map[string]Table `json:"tables"`
	Warnings []string         `json:"warnings,omitempty"`
}

func (m Metadata) TableNames() []string {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTable matches name case-insensitively, ignoring any schema qualifier.
func (m Metadata) HasTable(name string) bool {
	name = strings.ToLower(unqualified(name))
	for candidate := range m.Tables {
		if strings.ToLower(candidate) == name {
			return true
		}
	}
	return false
}

func (m Metadata) Empty() bool {
	return len(m.Tables) == 0
}

func (m Metadata) Clone() Metadata {
	out := Metadata{Warnings: append([]string(nil), m.Warnings...)}
	if m.Tables == nil {
		return out
	}
	out.Tables = make(map[string]Table, len(m.Tables))
	for name, table := range m.Tables {
		out.Tables[name] = table.clone()
	}
	return out
}

func (t Table) clone() Table {
	out := t
	out.Columns = append([]Column(nil), t.Columns...)
	out.PrimaryKeys = append([]string(nil), t.PrimaryKeys...)
	out.ForeignKeys = make([]ForeignKey, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		fk.Columns = append([]string(nil), fk.Columns...)
		fk.ReferencedColumns = append([]string(nil), fk.ReferencedColumns...)
		out.ForeignKeys = append(out.ForeignKeys, fk)
	}
	out.Indexes = make([]Index, 0, len(t.Indexes))
	for _, idx := range t.Indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		out.Indexes = append(out.Indexes, idx)
	}
	return out
}

func unqualified(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "`\"[]")
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	return strings.Trim(name, "`\"[]")
}
