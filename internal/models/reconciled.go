package models

// ConflictValue records one table's candidate value for a disputed
// attribute. The chosen value sits in the canonical attribute slot; the
// full candidate list stays here so nothing is silently swallowed.
type ConflictValue struct {
	Table TableKind `json:"table"`
	Value any       `json:"value"`
}

// ReconciledRecord is the union of attributes from every table that
// contributed a record for one identifier value.
type ReconciledRecord struct {
	ID         string                           `json:"id"`
	Attributes map[string]any                   `json:"attributes"`
	PresentIn  []TableKind                      `json:"presentIn"`
	Conflicts  map[string][]ConflictValue       `json:"conflicts,omitempty"`
	Children   map[TableKind][]*ValidatedRecord `json:"children,omitempty"`
}

// HasKind reports whether the given table contributed to this record.
func (r *ReconciledRecord) HasKind(kind TableKind) bool {
	for _, k := range r.PresentIn {
		if k == kind {
			return true
		}
	}
	return false
}
