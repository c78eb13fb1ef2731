package models

import "strings"

// NotApplicable is the selection sentinel meaning "this source column has no target".
// It never claims a target and is never duplicated.
const NotApplicable = "N/A"

// legacyNotApplicable is the sentinel older knowledge-base files were written with.
const legacyNotApplicable = "__N/A_MAPPING__"

// MaxSampleRows bounds the sample rows retained from a source file.
const MaxSampleRows = 10

// IsNotApplicable reports whether value is the N/A sentinel in any accepted spelling.
func IsNotApplicable(value string) bool {
	v := strings.TrimSpace(value)
	return strings.EqualFold(v, NotApplicable) || v == legacyNotApplicable
}

// IsDefinite reports whether a selection names a real target (non-empty, not N/A).
func IsDefinite(target string) bool {
	return target != "" && !IsNotApplicable(target)
}

// SourceColumn is a column of the uploaded source file. Immutable once parsed.
type SourceColumn struct {
	Header   string `json:"header"`
	Position int    `json:"position"`
}

// SampleRow holds one data row; its length equals the header count.
type SampleRow []string

// TripletFact is an anchor/positive/negative record seeding knowledge-based suggestions.
// Anchor is a target display name; Positive and Negative are source header spellings.
type TripletFact struct {
	Anchor   string `json:"anchor" yaml:"anchor"`
	Positive string `json:"positive,omitempty" yaml:"positive,omitempty"`
	Negative string `json:"negative,omitempty" yaml:"negative,omitempty"`
}

// SuggestionOrigin records which phase last proposed a row's target.
type SuggestionOrigin string

const (
	SuggestionOriginNone      SuggestionOrigin = "none"
	SuggestionOriginKnowledge SuggestionOrigin = "knowledge"
	SuggestionOriginProvider  SuggestionOrigin = "provider"
)

// MappingRow is the mapping state of a single source column.
type MappingRow struct {
	SourceHeader         string           `json:"source_header" yaml:"source_header"`
	SelectedTarget       string           `json:"selected_target" yaml:"selected_target"`
	SuggestedTarget      string           `json:"suggested_target,omitempty" yaml:"suggested_target,omitempty"`
	SuggestionOrigin     SuggestionOrigin `json:"suggestion_origin" yaml:"suggestion_origin"`
	IsDuplicate          bool             `json:"is_duplicate" yaml:"-"`
	IsTransientHighlight bool             `json:"is_transient_highlight" yaml:"-"`
}

// NewMappingRow returns an empty, unresolved row for header.
func NewMappingRow(header string) *MappingRow {
	return &MappingRow{
		SourceHeader:     header,
		SuggestionOrigin: SuggestionOriginNone,
	}
}

// IsUnresolved reports whether suggestion phases may still assign this row.
func (r *MappingRow) IsUnresolved() bool {
	return r.SelectedTarget == "" || IsNotApplicable(r.SelectedTarget)
}

// HasDefiniteSelection reports whether the row claims a real target.
func (r *MappingRow) HasDefiniteSelection() bool {
	return IsDefinite(r.SelectedTarget)
}
