package models

import "fmt"

// IssueKind classifies a non-fatal problem found while validating,
// reconciling or aggregating.
type IssueKind string

const (
	// Row-level validation issues.
	IssueMissingRequiredField IssueKind = "missing_required_field"
	IssueTypeMismatch         IssueKind = "type_mismatch"
	IssueDateFormatMismatch   IssueKind = "date_format_mismatch"
	IssueMissingIdentifier    IssueKind = "missing_identifier"
	IssueMalformedRow         IssueKind = "malformed_row"

	// Reconciliation issues.
	IssueOrphanIdentifier    IssueKind = "orphan_identifier"
	IssueDuplicateIdentifier IssueKind = "duplicate_identifier"
	IssueConflict            IssueKind = "conflict"

	// Source / aggregation issues.
	IssueSourceUnreadable IssueKind = "source_unreadable"
	IssueTargetNotFound   IssueKind = "target_not_found"
	IssueTargetAmbiguous  IssueKind = "target_ambiguous"
	IssueCopyFailed       IssueKind = "copy_failed"
)

// Issue is one reportable problem. Non-fatal by construction: issues are
// collected alongside the best achievable output, never raised.
type Issue struct {
	Kind       IssueKind      `json:"kind"`
	Attribute  string         `json:"attribute,omitempty"`
	Identifier string         `json:"identifier,omitempty"`
	Table      TableKind      `json:"table,omitempty"`
	Location   SourceLocation `json:"location,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

func (i Issue) String() string {
	s := string(i.Kind)
	if i.Attribute != "" {
		s += "(" + i.Attribute + ")"
	}
	if i.Identifier != "" {
		s += " id=" + i.Identifier
	}
	if i.Detail != "" {
		s = fmt.Sprintf("%s: %s", s, i.Detail)
	}
	return s
}
