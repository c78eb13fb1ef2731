package models

import (
	"strings"
	"time"
)

// TermListSeparator separates synonyms and antonyms in the schema provider's wire format.
const TermListSeparator = ";"

// TargetProperty is one entry of the target schema a source column may be mapped onto.
type TargetProperty struct {
	DisplayName string   `json:"display_name"` // Unique; used as the selection key
	Synonyms    []string `json:"synonyms"`
	Antonyms    []string `json:"antonyms"`
	LocalID     string   `json:"local_id,omitempty"`  // Output property name in the long export
	RemoteID    string   `json:"remote_id,omitempty"` // Addresses the property for feedback writes

	UpdatedAt *time.Time `json:"updated_at,omitempty"` // Set by persistent backends only
}

// Writable reports whether feedback can be persisted for this property.
// Properties without a remote identifier are read-only.
func (p *TargetProperty) Writable() bool {
	return p.RemoteID != ""
}

// Lexicon is the learned vocabulary of a single target property.
type Lexicon struct {
	Synonyms []string `json:"synonyms"`
	Antonyms []string `json:"antonyms"`
}

// LexiconPatch is a partial update; nil fields are left untouched.
type LexiconPatch struct {
	Synonyms *string `json:"synonyms,omitempty"`
	Antonyms *string `json:"antonyms,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p LexiconPatch) IsEmpty() bool {
	return p.Synonyms == nil && p.Antonyms == nil
}

// ParseTermList splits a ';'-delimited list, trimming entries and dropping empties.
// Duplicate entries (case-insensitive) keep the first occurrence.
func ParseTermList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	terms := make([]string, 0)
	for _, part := range strings.Split(raw, TermListSeparator) {
		term := strings.TrimSpace(part)
		if term == "" || ContainsFold(terms, term) {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// JoinTermList is the inverse of ParseTermList.
func JoinTermList(terms []string) string {
	return strings.Join(terms, TermListSeparator)
}

// ContainsFold reports whether terms contains term, ignoring case.
func ContainsFold(terms []string, term string) bool {
	return IndexFold(terms, term) >= 0
}

// IndexFold returns the index of term in terms ignoring case, or -1.
func IndexFold(terms []string, term string) int {
	for i, t := range terms {
		if strings.EqualFold(t, term) {
			return i
		}
	}
	return -1
}

// RemoveFold returns terms without any entry equal (ignoring case) to term,
// and whether anything was removed.
func RemoveFold(terms []string, term string) ([]string, bool) {
	out := make([]string, 0, len(terms))
	removed := false
	for _, t := range terms {
		if strings.EqualFold(t, term) {
			removed = true
			continue
		}
		out = append(out, t)
	}
	return out, removed
}
