// Package models contains domain types for the sequencing metadata warehouse.
package models

import (
	"fmt"
	"time"
)

// TableKind identifies which data source a record came from.
type TableKind string

const (
	TableExperimental TableKind = "experimental"
	TableSample       TableKind = "sample"
	TableSequence     TableKind = "sequence"
)

// SourceLocation points back at the row a record was built from.
type SourceLocation struct {
	Path  string `json:"path"`
	Sheet string `json:"sheet,omitempty"`
	Row   int    `json:"row"` // 1-based, header excluded
}

func (l SourceLocation) String() string {
	if l.Sheet != "" {
		return fmt.Sprintf("%s[%s]:%d", l.Path, l.Sheet, l.Row)
	}
	return fmt.Sprintf("%s:%d", l.Path, l.Row)
}

// ValidatedRecord maps attribute names to typed values. A nil value means
// the field was absent or failed coercion; the reasons live in the
// attached issues. Values are string, int64, float64 or time.Time.
type ValidatedRecord struct {
	Attributes map[string]any `json:"attributes"`
	Location   SourceLocation `json:"location"`
	Issues     []Issue        `json:"issues,omitempty"`
}

// Valid reports whether the record carries no issues.
func (r *ValidatedRecord) Valid() bool { return len(r.Issues) == 0 }

// Identifier returns the value of the given identifier attribute as a
// string, or "" when it is null.
func (r *ValidatedRecord) Identifier(attribute string) string {
	v, ok := r.Attributes[attribute]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%g", t)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", v)
}
