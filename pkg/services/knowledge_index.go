package services

import (
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/tabular"
)

// KnowledgeSource names where the working triplet set came from.
type KnowledgeSource string

const (
	KnowledgeSourceNone     KnowledgeSource = "none"
	KnowledgeSourceExternal KnowledgeSource = "external"
	KnowledgeSourceDerived  KnowledgeSource = "derived"
)

// DeriveTriplets decomposes property vocabularies into facts: one per synonym
// (positive) and one per antonym (negative), in catalog order.
func DeriveTriplets(props []models.TargetProperty) []models.TripletFact {
	facts := make([]models.TripletFact, 0)
	for _, p := range props {
		for _, syn := range p.Synonyms {
			facts = append(facts, models.TripletFact{Anchor: p.DisplayName, Positive: syn})
		}
		for _, ant := range p.Antonyms {
			facts = append(facts, models.TripletFact{Anchor: p.DisplayName, Negative: ant})
		}
	}
	return facts
}

// KnowledgeBase is the session's working triplet set. An externally supplied set
// always wins; the derived set is only built while no external set is held.
type KnowledgeBase struct {
	mu          sync.RWMutex
	external    []models.TripletFact
	hasExternal bool
	derived     []models.TripletFact
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{}
}

// SetExternal installs a user-supplied set, replacing any previous external set.
func (k *KnowledgeBase) SetExternal(facts []models.TripletFact) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.external = append([]models.TripletFact(nil), facts...)
	k.hasExternal = true
	k.derived = nil
}

// ClearExternal drops the user-supplied set.
func (k *KnowledgeBase) ClearExternal() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.external = nil
	k.hasExternal = false
}

// HasExternal reports whether a user-supplied set is held.
func (k *KnowledgeBase) HasExternal() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.hasExternal
}

// Materialize rebuilds the derived set from props. It is a no-op while an external
// set is held. Returns the size of the working set.
func (k *KnowledgeBase) Materialize(props []models.TargetProperty) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.hasExternal {
		return len(k.external)
	}
	k.derived = DeriveTriplets(props)
	return len(k.derived)
}

// Facts returns a copy of the working set.
func (k *KnowledgeBase) Facts() []models.TripletFact {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.hasExternal {
		return append([]models.TripletFact(nil), k.external...)
	}
	return append([]models.TripletFact(nil), k.derived...)
}

// Source reports which set Facts returns.
func (k *KnowledgeBase) Source() KnowledgeSource {
	k.mu.RLock()
	defer k.mu.RUnlock()
	switch {
	case k.hasExternal:
		return KnowledgeSourceExternal
	case len(k.derived) > 0:
		return KnowledgeSourceDerived
	default:
		return KnowledgeSourceNone
	}
}

// MergeTriplets combines fact sets without loss. Facts equal ignoring case on all
// three fields are kept once, with the casing of the first occurrence.
func MergeTriplets(sets ...[]models.TripletFact) []models.TripletFact {
	seen := make(map[[3]string]bool)
	merged := make([]models.TripletFact, 0)
	for _, set := range sets {
		for _, f := range set {
			key := [3]string{strings.ToLower(f.Anchor), strings.ToLower(f.Positive), strings.ToLower(f.Negative)}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, f)
		}
	}
	return merged
}

// LearnedTriplets turns the suggestions of a session into facts in the
// anchor/positive/negative orientation used for knowledge files: a kept suggestion
// becomes a positive fact; an overridden one becomes a negative fact for the
// suggested target and, if the user picked a real target, a positive fact for it.
func LearnedTriplets(rows []models.MappingRow) []models.TripletFact {
	facts := make([]models.TripletFact, 0)
	for _, row := range rows {
		if row.SuggestedTarget == "" {
			continue
		}
		overridden := row.SelectedTarget != "" && row.SelectedTarget != row.SuggestedTarget
		if !overridden {
			facts = append(facts, models.TripletFact{Anchor: row.SuggestedTarget, Positive: row.SourceHeader})
			continue
		}
		if models.IsDefinite(row.SuggestedTarget) {
			facts = append(facts, models.TripletFact{Anchor: row.SuggestedTarget, Negative: row.SourceHeader})
		}
		if models.IsDefinite(row.SelectedTarget) {
			facts = append(facts, models.TripletFact{Anchor: row.SelectedTarget, Positive: row.SourceHeader})
		}
	}
	return facts
}

// ExportTriplets encodes facts as a knowledge-base file.
func ExportTriplets(facts []models.TripletFact) string {
	return tabular.EncodeTriplets(facts)
}
