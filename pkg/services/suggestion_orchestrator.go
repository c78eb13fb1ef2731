package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// SuggestionRequest is one batched provider call: every unresolved header and
// every target still available.
type SuggestionRequest struct {
	Instruction string
	Headers     []string
	Targets     []string
}

// SuggestionProvider proposes a target (or N/A) per source header.
type SuggestionProvider interface {
	Suggest(ctx context.Context, req SuggestionRequest) (map[string]string, error)
}

// RunReport summarizes one suggestion run.
type RunReport struct {
	KnowledgeRan      bool     `json:"knowledge_ran"`
	KnowledgeAssigned int      `json:"knowledge_assigned"`
	ProviderRan       bool     `json:"provider_ran"`
	ProviderAssigned  int      `json:"provider_assigned"`
	Unresolved        []string `json:"unresolved"`
	HasDuplicates     bool     `json:"has_duplicates"`

	// ProviderErr is set when phase P failed; phase K results are kept.
	ProviderErr error `json:"-"`
}

// SuggestionOrchestrator runs the knowledge phase and then the provider phase over
// a mapping table. Targets claimed during a run are never reassigned by it.
type SuggestionOrchestrator struct {
	provider    SuggestionProvider
	highlighter *Highlighter
	logger      *zap.Logger
}

// NewSuggestionOrchestrator creates an orchestrator. provider may be nil, in which
// case phase P reports the provider as unavailable. highlighter may be nil.
func NewSuggestionOrchestrator(provider SuggestionProvider, highlighter *Highlighter, logger *zap.Logger) *SuggestionOrchestrator {
	return &SuggestionOrchestrator{
		provider:    provider,
		highlighter: highlighter,
		logger:      logger.Named("suggestion-orchestrator"),
	}
}

// Run assigns suggestions to unresolved rows. It returns an error only when the
// run cannot start (no source rows or no schema); a provider failure is reported
// through RunReport.ProviderErr.
func (o *SuggestionOrchestrator) Run(ctx context.Context, table *MappingTable, schema *SchemaCache, facts []models.TripletFact) (*RunReport, error) {
	if table == nil || table.Len() == 0 {
		return nil, apperrors.ErrNoSource
	}
	if schema == nil || !schema.Loaded() {
		return nil, apperrors.ErrNoSchema
	}

	report := &RunReport{}

	if len(facts) > 0 {
		report.KnowledgeRan = true
		report.KnowledgeAssigned = o.runKnowledgePhase(table, schema, facts)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assigned, ran, err := o.runProviderPhase(ctx, table, schema)
	report.ProviderRan = ran
	report.ProviderAssigned = assigned
	report.ProviderErr = err

	for _, r := range table.Unresolved() {
		if r.SelectedTarget == "" {
			report.Unresolved = append(report.Unresolved, r.SourceHeader)
		}
	}
	report.HasDuplicates = table.RecomputeDuplicates()

	o.logger.Info("Suggestion run finished",
		zap.Int("knowledge_assigned", report.KnowledgeAssigned),
		zap.Int("provider_assigned", report.ProviderAssigned),
		zap.Int("unresolved", len(report.Unresolved)),
		zap.Bool("provider_failed", err != nil))

	return report, nil
}

// runKnowledgePhase matches each unresolved header against fact positives, in
// fact order, and takes the first fact naming a valid unclaimed target.
func (o *SuggestionOrchestrator) runKnowledgePhase(table *MappingTable, schema *SchemaCache, facts []models.TripletFact) int {
	claims := table.ClaimedTargets()
	assigned := 0

	for _, row := range table.Unresolved() {
		target, ok := matchFact(row.SourceHeader, facts, schema, claims)
		if !ok {
			continue
		}
		if models.IsDefinite(target) {
			claims.Claim(target)
		}
		o.assign(row, target, models.SuggestionOriginKnowledge)
		assigned++
	}
	return assigned
}

// matchFact returns the target the knowledge base proposes for header. A matching
// fact anchored on N/A proposes N/A. Facts written header-first (anchor equal to
// the header, positive N/A) are also honoured as N/A.
func matchFact(header string, facts []models.TripletFact, schema *SchemaCache, claims ClaimSet) (string, bool) {
	for _, f := range facts {
		switch {
		case strings.EqualFold(strings.TrimSpace(f.Positive), header):
			if models.IsNotApplicable(f.Anchor) {
				return models.NotApplicable, true
			}
			anchor, known := schema.Canonical(strings.TrimSpace(f.Anchor))
			if known && !claims.Has(anchor) {
				return anchor, true
			}
		case strings.EqualFold(strings.TrimSpace(f.Anchor), header) && models.IsNotApplicable(f.Positive):
			return models.NotApplicable, true
		}
	}
	return "", false
}

// runProviderPhase sends one batched request for every unresolved header. It
// reports whether the provider was asked at all.
func (o *SuggestionOrchestrator) runProviderPhase(ctx context.Context, table *MappingTable, schema *SchemaCache) (int, bool, error) {
	claims := table.ClaimedTargets()

	unresolved := table.Unresolved()
	headers := make([]string, len(unresolved))
	for i, r := range unresolved {
		headers[i] = r.SourceHeader
	}

	var available []string
	for _, name := range schema.Names() {
		if !claims.Has(name) {
			available = append(available, name)
		}
	}

	if len(headers) == 0 || len(available) == 0 {
		o.logger.Debug("Skipping provider phase",
			zap.Int("unresolved", len(headers)),
			zap.Int("available_targets", len(available)))
		return 0, false, nil
	}

	if o.provider == nil {
		return 0, false, &apperrors.SuggestionProviderError{Message: "no suggestion provider configured", Unavailable: true}
	}

	req := SuggestionRequest{
		Instruction: BuildSuggestionInstruction(headers, available),
		Headers:     headers,
		Targets:     available,
	}
	proposals, err := o.provider.Suggest(ctx, req)
	if err != nil {
		o.logger.Error("Provider phase failed", zap.Error(err))
		return 0, true, err
	}

	availableSet := make(map[string]string, len(available))
	for _, name := range available {
		availableSet[strings.ToLower(name)] = name
	}

	assigned := 0
	for _, row := range unresolved {
		proposal, ok := lookupProposal(proposals, row.SourceHeader)
		if !ok {
			continue
		}
		if models.IsNotApplicable(proposal) {
			o.assign(row, models.NotApplicable, models.SuggestionOriginProvider)
			assigned++
			continue
		}

		target, known := canonicalTarget(availableSet, proposal)
		if !known {
			o.logger.Debug("Ignoring proposal outside the available targets",
				zap.String("header", row.SourceHeader),
				zap.String("proposal", proposal))
			continue
		}
		if claims.Has(target) {
			o.logger.Debug("Ignoring proposal for a target claimed earlier in the batch",
				zap.String("header", row.SourceHeader),
				zap.String("target", target))
			continue
		}

		claims.Claim(target)
		o.assign(row, target, models.SuggestionOriginProvider)
		assigned++
	}
	return assigned, true, nil
}

func lookupProposal(proposals map[string]string, header string) (string, bool) {
	if v, ok := proposals[header]; ok {
		v = strings.TrimSpace(v)
		return v, v != ""
	}
	for k, v := range proposals {
		if strings.EqualFold(strings.TrimSpace(k), header) {
			v = strings.TrimSpace(v)
			return v, v != ""
		}
	}
	return "", false
}

func canonicalTarget(available map[string]string, proposal string) (string, bool) {
	name, ok := available[strings.ToLower(strings.TrimSpace(proposal))]
	return name, ok
}

func (o *SuggestionOrchestrator) assign(row *models.MappingRow, target string, origin models.SuggestionOrigin) {
	row.SelectedTarget = target
	row.SuggestedTarget = target
	row.SuggestionOrigin = origin
	row.IsTransientHighlight = true
	if o.highlighter != nil {
		o.highlighter.Mark(row.SourceHeader)
	}
}

// BuildSuggestionInstruction is the batched mapping request sent to the provider.
func BuildSuggestionInstruction(headers, targets []string) string {
	var sb strings.Builder
	sb.WriteString("You are a CSV column mapping assistant.\n")
	sb.WriteString("Given a list of source CSV column headers and a list of available target schema column headers, suggest the best target column for each source column.\n")
	fmt.Fprintf(&sb, "Source CSV Headers to map: %s\n", strings.Join(headers, ", "))
	fmt.Fprintf(&sb, "Available Target Schema Headers: %s\n", strings.Join(targets, ", "))
	sb.WriteString("If no good match is found for a source column, or if the best match is already used by a higher-confidence mapping, suggest \"N/A\" for the current source column.\n")
	sb.WriteString("Respond with a JSON object where keys are the source CSV headers and values are the suggested target schema headers (or \"N/A\").\n")
	sb.WriteString("Each target column should be used at most once from the 'Available Target Schema Headers' provided.\n")
	sb.WriteString(`Example response: {"Source Column A": "Target Column X", "Source Column B": "N/A", "Source Column C": "Target Column Y"}`)
	return sb.String()
}
