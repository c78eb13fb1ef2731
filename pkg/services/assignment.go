package services

import (
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// Standing status messages for duplicate target selections.
const (
	DuplicateMessage          = "Validation Error: One or more target columns are selected multiple times. Please resolve."
	DuplicatesResolvedMessage = "Duplicate target selections resolved."
)

// ClaimSet is the set of targets already held by a definite selection.
type ClaimSet map[string]struct{}

// Has reports whether target is claimed.
func (s ClaimSet) Has(target string) bool {
	_, ok := s[target]
	return ok
}

// Claim marks target as used.
func (s ClaimSet) Claim(target string) {
	s[target] = struct{}{}
}

// MappingTable holds one MappingRow per source header, in header order. It only
// derives consistency facts; choosing values is left to callers.
// Not safe for concurrent use; the owning session serializes access.
type MappingTable struct {
	rows  []*models.MappingRow
	index map[string]int
}

// NewMappingTable creates an empty table.
func NewMappingTable() *MappingTable {
	return &MappingTable{index: map[string]int{}}
}

// Rebuild replaces every row with a fresh empty row per header.
func (t *MappingTable) Rebuild(headers []string) {
	t.rows = make([]*models.MappingRow, len(headers))
	t.index = make(map[string]int, len(headers))
	for i, h := range headers {
		t.rows[i] = models.NewMappingRow(h)
		t.index[h] = i
	}
}

// Clear removes all rows.
func (t *MappingTable) Clear() {
	t.Rebuild(nil)
}

// Len returns the number of rows.
func (t *MappingTable) Len() int {
	return len(t.rows)
}

// Row returns the row for header.
func (t *MappingTable) Row(header string) (*models.MappingRow, bool) {
	i, ok := t.index[header]
	if !ok {
		return nil, false
	}
	return t.rows[i], true
}

// Rows returns the live rows in header order.
func (t *MappingTable) Rows() []*models.MappingRow {
	return t.rows
}

// Snapshot returns copies of the rows.
func (t *MappingTable) Snapshot() []models.MappingRow {
	out := make([]models.MappingRow, len(t.rows))
	for i, r := range t.rows {
		out[i] = *r
	}
	return out
}

// Unresolved returns the rows suggestion phases may still assign, in header order.
func (t *MappingTable) Unresolved() []*models.MappingRow {
	var out []*models.MappingRow
	for _, r := range t.rows {
		if r.IsUnresolved() {
			out = append(out, r)
		}
	}
	return out
}

// RecomputeDuplicates flags every row whose definite selection is shared with
// another row and reports whether any duplicate exists.
func (t *MappingTable) RecomputeDuplicates() bool {
	counts := make(map[string]int, len(t.rows))
	for _, r := range t.rows {
		r.IsDuplicate = false
		if r.HasDefiniteSelection() {
			counts[r.SelectedTarget]++
		}
	}

	found := false
	for _, r := range t.rows {
		if r.HasDefiniteSelection() && counts[r.SelectedTarget] > 1 {
			r.IsDuplicate = true
			found = true
		}
	}
	return found
}

// ClaimedTargets returns the targets held by definite selections.
func (t *MappingTable) ClaimedTargets() ClaimSet {
	claims := make(ClaimSet, len(t.rows))
	for _, r := range t.rows {
		if r.HasDefiniteSelection() {
			claims.Claim(r.SelectedTarget)
		}
	}
	return claims
}

// HasDefiniteMapping reports whether any row maps to a real target.
func (t *MappingTable) HasDefiniteMapping() bool {
	for _, r := range t.rows {
		if r.HasDefiniteSelection() {
			return true
		}
	}
	return false
}

// Selections returns header to selected target for every row with a selection.
func (t *MappingTable) Selections() map[string]string {
	out := make(map[string]string, len(t.rows))
	for _, r := range t.rows {
		if r.SelectedTarget != "" {
			out[r.SourceHeader] = r.SelectedTarget
		}
	}
	return out
}
