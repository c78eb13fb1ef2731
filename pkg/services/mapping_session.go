package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/tabular"
)

// Readiness status messages.
const (
	StatusAwaitingInput  = "Please upload a source file to begin. The target schema is loaded automatically."
	StatusAwaitingSchema = "Source loaded. Waiting for the target schema..."
	StatusAwaitingSource = "Target schema loaded. Please upload the source file."
	StatusReadyPrefix    = "Source loaded. Target schema loaded."
	StatusReadyKnowledge = " Knowledge base also loaded."
	StatusReadySuffix    = " You can now map columns manually or run suggestions."
	StatusSuggestDone    = "Suggestions complete."
)

// SessionEvent is an input to MappingSession.Apply.
type SessionEvent interface {
	eventName() string
}

// SourceLoaded installs a parsed source file and rebuilds the mapping table.
type SourceLoaded struct{ Table *tabular.Table }

// SourceFailed drops the source file after a parse failure.
type SourceFailed struct{ Err error }

// KnowledgeLoaded installs a user-supplied triplet set.
type KnowledgeLoaded struct{ Facts []models.TripletFact }

// KnowledgeFailed drops the user-supplied triplet set after a parse failure.
type KnowledgeFailed struct{ Err error }

// SchemaLoaded records that the schema cache holds a catalog.
type SchemaLoaded struct{ Count int }

// SchemaFailed records a failed schema fetch.
type SchemaFailed struct{ Err error }

// ManualSelection is a user's change of one row.
type ManualSelection struct {
	Header string
	Target string
}

// SelectionsRestored reinstates previously saved rows. Rows for unknown headers
// are ignored.
type SelectionsRestored struct{ Rows []models.MappingRow }

func (SourceLoaded) eventName() string       { return "source_loaded" }
func (SourceFailed) eventName() string       { return "source_failed" }
func (KnowledgeLoaded) eventName() string    { return "knowledge_loaded" }
func (KnowledgeFailed) eventName() string    { return "knowledge_failed" }
func (SchemaLoaded) eventName() string       { return "schema_loaded" }
func (SchemaFailed) eventName() string       { return "schema_failed" }
func (ManualSelection) eventName() string    { return "manual_selection" }
func (SelectionsRestored) eventName() string { return "selections_restored" }

// SessionState is a snapshot of a session for rendering.
type SessionState struct {
	ID              uuid.UUID           `json:"id"`
	Headers         []string            `json:"headers"`
	SampleRowCount  int                 `json:"sample_row_count"`
	Rows            []models.MappingRow `json:"rows"`
	SourceLoaded    bool                `json:"source_loaded"`
	SchemaLoaded    bool                `json:"schema_loaded"`
	Targets         []string            `json:"targets"`
	KnowledgeSource KnowledgeSource     `json:"knowledge_source"`
	HasExternalKB   bool                `json:"has_external_knowledge"`
	Ready           bool                `json:"ready"`
	HasDuplicates   bool                `json:"has_duplicates"`
	CanExport       bool                `json:"can_export"`
	Status          string              `json:"status"`
	StatusIsError   bool                `json:"status_is_error"`
}

// SessionConfig wires the collaborators of a mapping session. Every field except
// SchemaProvider may be left nil or zero.
type SessionConfig struct {
	SchemaProvider  SchemaProvider
	PropertyCreator PropertyCreator
	FeedbackSink    FeedbackSink
	Provider        SuggestionProvider
	Ingestion       *IngestionService
	Export          ExportOptions
	HighlightWindow time.Duration
}

// MappingSession owns the state of one mapping session. All operations are
// serialized; a suggestion run holds the session for its whole duration.
type MappingSession struct {
	id     uuid.UUID
	logger *zap.Logger

	schema       *SchemaCache
	knowledge    *KnowledgeBase
	orchestrator *SuggestionOrchestrator
	learner      *FeedbackLearner
	formatter    *ExportFormatter
	ingestion    *IngestionService
	highlighter  *Highlighter

	mu            sync.Mutex
	source        *tabular.Table
	table         *MappingTable
	hasDuplicates bool
	status        string
	statusIsError bool
}

// NewMappingSession creates an empty session.
func NewMappingSession(id uuid.UUID, cfg SessionConfig, logger *zap.Logger) *MappingSession {
	logger = logger.Named("mapping-session").With(zap.String("session_id", id.String()))

	s := &MappingSession{
		id:        id,
		logger:    logger,
		knowledge: NewKnowledgeBase(),
		formatter: NewExportFormatter(cfg.Export, logger),
		ingestion: cfg.Ingestion,
		table:     NewMappingTable(),
		status:    StatusAwaitingInput,
	}
	s.schema = NewSchemaCache(cfg.SchemaProvider, cfg.PropertyCreator, logger)
	s.highlighter = NewHighlighter(cfg.HighlightWindow, s.clearHighlight)
	s.orchestrator = NewSuggestionOrchestrator(cfg.Provider, s.highlighter, logger)
	s.learner = NewFeedbackLearner(cfg.FeedbackSink, s.schema, logger)
	return s
}

// ID returns the session id.
func (s *MappingSession) ID() uuid.UUID { return s.id }

// Schema returns the session's schema cache.
func (s *MappingSession) Schema() *SchemaCache { return s.schema }

func (s *MappingSession) clearHighlight(header string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.table.Row(header); ok {
		row.IsTransientHighlight = false
	}
}

// Apply performs one state transition and returns the resulting state.
func (s *MappingSession) Apply(ev SessionEvent) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(ev)
	return s.stateLocked()
}

func (s *MappingSession) applyLocked(ev SessionEvent) {
	s.logger.Debug("Applying session event", zap.String("event", ev.eventName()))

	switch e := ev.(type) {
	case SourceLoaded:
		s.highlighter.Reset()
		s.source = e.Table
		s.table.Rebuild(e.Table.Headers)
		s.refreshReadiness()

	case SourceFailed:
		s.highlighter.Reset()
		s.source = nil
		s.table.Clear()
		s.hasDuplicates = false
		s.setStatus("Error: "+e.Err.Error(), true)

	case KnowledgeLoaded:
		s.knowledge.SetExternal(e.Facts)
		s.refreshReadiness()

	case KnowledgeFailed:
		s.knowledge.ClearExternal()
		s.setStatus("Error: "+e.Err.Error(), true)

	case SchemaLoaded:
		s.refreshReadiness()

	case SchemaFailed:
		s.setStatus("Error fetching target schema: "+e.Err.Error(), true)

	case ManualSelection:
		row, ok := s.table.Row(e.Header)
		if !ok {
			return
		}
		row.SelectedTarget = e.Target
		row.IsTransientHighlight = false
		s.highlighter.Cancel(e.Header)
		s.checkDuplicates()

	case SelectionsRestored:
		for _, saved := range e.Rows {
			row, ok := s.table.Row(saved.SourceHeader)
			if !ok {
				continue
			}
			row.SelectedTarget = saved.SelectedTarget
			row.SuggestedTarget = saved.SuggestedTarget
			row.SuggestionOrigin = saved.SuggestionOrigin
			if row.SuggestionOrigin == "" {
				row.SuggestionOrigin = models.SuggestionOriginNone
			}
		}
		s.checkDuplicates()
	}
}

func (s *MappingSession) setStatus(msg string, isError bool) {
	s.status = msg
	s.statusIsError = isError
}

func (s *MappingSession) refreshReadiness() {
	sourceLoaded := s.source != nil
	schemaLoaded := s.schema.Loaded()

	switch {
	case sourceLoaded && schemaLoaded:
		msg := StatusReadyPrefix
		if s.knowledge.HasExternal() {
			msg += StatusReadyKnowledge
		}
		s.setStatus(msg+StatusReadySuffix, false)
	case sourceLoaded:
		s.setStatus(StatusAwaitingSchema, false)
	case schemaLoaded:
		s.setStatus(StatusAwaitingSource, false)
	default:
		s.setStatus(StatusAwaitingInput, false)
	}
	s.checkDuplicates()
}

// checkDuplicates re-flags duplicate rows. The duplicate message stands until the
// duplicates are gone and is then replaced once by the resolved message.
func (s *MappingSession) checkDuplicates() {
	s.hasDuplicates = s.table.RecomputeDuplicates()
	if s.hasDuplicates {
		s.setStatus(DuplicateMessage, true)
	} else if s.status == DuplicateMessage {
		s.setStatus(DuplicatesResolvedMessage, false)
	}
}

// State returns the current state.
func (s *MappingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *MappingSession) stateLocked() SessionState {
	st := SessionState{
		ID:              s.id,
		Rows:            s.table.Snapshot(),
		SourceLoaded:    s.source != nil,
		SchemaLoaded:    s.schema.Loaded(),
		Targets:         s.schema.Names(),
		KnowledgeSource: s.knowledge.Source(),
		HasExternalKB:   s.knowledge.HasExternal(),
		HasDuplicates:   s.hasDuplicates,
		CanExport:       s.source != nil && s.table.HasDefiniteMapping(),
		Status:          s.status,
		StatusIsError:   s.statusIsError,
	}
	if s.source != nil {
		st.Headers = append([]string(nil), s.source.Headers...)
		st.SampleRowCount = len(s.source.Rows)
	}
	st.Ready = st.SourceLoaded && st.SchemaLoaded
	return st
}

// LoadSource parses text as the source file. A parse failure clears the source
// and the mapping table only.
func (s *MappingSession) LoadSource(text string) (SessionState, error) {
	t, err := tabular.Parse(text, tabular.RoleSource)
	if err != nil {
		s.logger.Warn("Source file rejected", zap.Error(err))
		return s.Apply(SourceFailed{Err: err}), err
	}
	s.logger.Info("Source file loaded",
		zap.Int("columns", len(t.Headers)),
		zap.Int("sample_rows", len(t.Rows)))
	return s.Apply(SourceLoaded{Table: t}), nil
}

// LoadKnowledge parses text as a knowledge-base file. A parse failure drops the
// user-supplied set only.
func (s *MappingSession) LoadKnowledge(text string) (SessionState, error) {
	facts, err := tabular.ParseTriplets(text)
	if err != nil {
		s.logger.Warn("Knowledge-base file rejected", zap.Error(err))
		return s.Apply(KnowledgeFailed{Err: err}), err
	}
	s.logger.Info("Knowledge-base file loaded", zap.Int("facts", len(facts)))
	return s.Apply(KnowledgeLoaded{Facts: facts}), nil
}

// LoadSchema fetches the target schema unless it is already cached.
func (s *MappingSession) LoadSchema(ctx context.Context) (SessionState, error) {
	if err := s.schema.Load(ctx); err != nil {
		return s.Apply(SchemaFailed{Err: err}), err
	}
	return s.Apply(SchemaLoaded{Count: s.schema.Len()}), nil
}

// AddProperty creates a new target property.
func (s *MappingSession) AddProperty(ctx context.Context, displayName string) (SessionState, error) {
	if err := s.schema.AddProperty(ctx, displayName); err != nil {
		return s.State(), err
	}
	return s.Apply(SchemaLoaded{Count: s.schema.Len()}), nil
}

// Suggest runs the knowledge and provider phases over the unresolved rows. A
// provider failure is reported in RunReport.ProviderErr with phase K kept.
func (s *MappingSession) Suggest(ctx context.Context) (*RunReport, SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil, s.stateLocked(), apperrors.ErrNoSource
	}
	if !s.schema.Loaded() {
		return nil, s.stateLocked(), apperrors.ErrNoSchema
	}

	s.knowledge.Materialize(s.schema.Properties())
	report, err := s.orchestrator.Run(ctx, s.table, s.schema, s.knowledge.Facts())
	if err != nil {
		return nil, s.stateLocked(), err
	}

	s.checkDuplicates()
	switch {
	case report.ProviderErr != nil:
		// Both problems stay visible: the provider failure first, then duplicates.
		msg := "Error during suggestion provider phase: " + report.ProviderErr.Error()
		if s.hasDuplicates {
			msg += " " + DuplicateMessage
		}
		s.setStatus(msg, true)
	case !s.hasDuplicates:
		s.setStatus(StatusSuggestDone, false)
	}
	return report, s.stateLocked(), nil
}

// Select applies a manual change to one row and feeds the learner. The returned
// slice holds per-target feedback write failures, which never undo the change.
func (s *MappingSession) Select(ctx context.Context, header, target string) (SessionState, []error, error) {
	s.mu.Lock()

	if s.source == nil {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, nil, apperrors.ErrNoSource
	}
	row, ok := s.table.Row(header)
	if !ok {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, nil, fmt.Errorf("source column %q: %w", header, apperrors.ErrNotFound)
	}

	normalized, err := s.normalizeTarget(target)
	if err != nil {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, nil, err
	}
	if normalized == row.SelectedTarget {
		st := s.stateLocked()
		s.mu.Unlock()
		return st, nil, nil
	}

	signals := DeriveSignals(*row, normalized)
	s.applyLocked(ManualSelection{Header: header, Target: normalized})
	st := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("Manual selection",
		zap.String("header", header),
		zap.String("target", normalized),
		zap.Int("signals", len(signals)))

	return st, s.learner.Learn(ctx, signals), nil
}

func (s *MappingSession) normalizeTarget(target string) (string, error) {
	switch {
	case target == "":
		return "", nil
	case models.IsNotApplicable(target):
		return models.NotApplicable, nil
	case !s.schema.Loaded():
		return "", apperrors.ErrNoSchema
	}
	name, ok := s.schema.Canonical(target)
	if !ok {
		return "", fmt.Errorf("unknown target %q: %w", target, apperrors.ErrNotFound)
	}
	return name, nil
}

// Restore reinstates saved rows over the current source.
func (s *MappingSession) Restore(rows []models.MappingRow) (SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return s.stateLocked(), apperrors.ErrNoSource
	}
	s.applyLocked(SelectionsRestored{Rows: rows})
	return s.stateLocked(), nil
}

// Export formats the current mapping as the narrow and long tables.
func (s *MappingSession) Export() (*ExportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, apperrors.ErrNoSource
	}
	if !s.table.HasDefiniteMapping() {
		return nil, apperrors.ErrNoMapping
	}
	return s.formatter.Format(s.source.Headers, s.source.Rows, s.table.Snapshot(), s.schema), nil
}

// MappedData returns the sample rows re-headed with their mapped targets.
func (s *MappingSession) MappedData() (*tabular.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, apperrors.ErrNoSource
	}
	t := MappedDataTable(s.source.Headers, s.source.Rows, s.table.Snapshot())
	if t == nil {
		return nil, apperrors.ErrNoMapping
	}
	return t, nil
}

// Upload exports the mapping and delivers both files to the loader, narrow first.
func (s *MappingSession) Upload(ctx context.Context) ([]IngestionFileResult, error) {
	if s.ingestion == nil {
		return nil, errors.New("ingestion is not configured")
	}
	result, err := s.Export()
	if err != nil {
		return nil, err
	}
	return s.ingestion.IngestExport(ctx, result), nil
}

// TripletExport returns the working knowledge set merged with the facts learned
// from this session's suggestions, as a knowledge-base file.
func (s *MappingSession) TripletExport() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return "", apperrors.ErrNoSource
	}
	if !s.knowledge.HasExternal() && s.schema.Loaded() {
		s.knowledge.Materialize(s.schema.Properties())
	}
	facts := MergeTriplets(s.knowledge.Facts(), LearnedTriplets(s.table.Snapshot()))
	return ExportTriplets(facts), nil
}

// Close cancels pending highlight timers. The session must not be used afterwards.
func (s *MappingSession) Close() {
	s.highlighter.StopAll()
	s.logger.Debug("Session closed")
}

// SessionRegistry tracks live sessions by id.
type SessionRegistry struct {
	cfg    SessionConfig
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*MappingSession
}

// NewSessionRegistry creates a registry building sessions from cfg.
func NewSessionRegistry(cfg SessionConfig, logger *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		cfg:      cfg,
		logger:   logger,
		sessions: map[uuid.UUID]*MappingSession{},
	}
}

// Create starts a new session.
func (r *SessionRegistry) Create() *MappingSession {
	s := NewMappingSession(uuid.New(), r.cfg, r.logger)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with id.
func (r *SessionRegistry) Get(id uuid.UUID) (*MappingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	return s, nil
}

// Delete closes and removes the session with id.
func (r *SessionRegistry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	s.Close()
	return nil
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[uuid.UUID]*MappingSession{}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
