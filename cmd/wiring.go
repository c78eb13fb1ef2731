package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/catalog"
	"github.com/ekaya-inc/ekaya-mapper/pkg/config"
	"github.com/ekaya-inc/ekaya-mapper/pkg/database"
	"github.com/ekaya-inc/ekaya-mapper/pkg/llm"
	"github.com/ekaya-inc/ekaya-mapper/pkg/loader"
	"github.com/ekaya-inc/ekaya-mapper/pkg/mappingfile"
	"github.com/ekaya-inc/ekaya-mapper/pkg/repositories"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

// catalogBackend is everything a session needs from the property catalog.
type catalogBackend interface {
	services.SchemaProvider
	services.FeedbackSink
	services.PropertyCreator
}

// openCatalog returns the backend selected by catalog.backend. The returned
// close function is never nil.
func openCatalog(ctx context.Context) (catalogBackend, func(), error) {
	switch cfg.Catalog.Backend {
	case config.CatalogBackendHTTP:
		return catalog.NewClient(&cfg.Catalog, logger), func() {}, nil
	case config.CatalogBackendPostgres:
		db, err := openDatabase(ctx)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewTargetPropertyRepository(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

func openDatabase(ctx context.Context) (*database.DB, error) {
	return database.Open(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
}

// newSuggestionProvider returns nil when no provider is configured; suggestion
// runs then report the provider as unavailable after the knowledge phase.
func newSuggestionProvider(ctx context.Context) (services.SuggestionProvider, error) {
	if !cfg.LLM.IsAvailable() {
		logger.Warn("Suggestion provider not configured", zap.String("provider", cfg.LLM.Provider))
		return nil, nil
	}
	client, err := llm.NewClientFromConfig(ctx, &llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		Timeout:   cfg.LLM.Timeout(),
		MaxTokens: cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		return nil, err
	}
	return services.NewLLMSuggestionProvider(client, cfg.LLM.Temperature, logger), nil
}

func newIngestionService() *services.IngestionService {
	return services.NewIngestionService(
		loader.NewClient(&cfg.Loader, logger),
		cfg.Export.NarrowFileName,
		cfg.Export.LongFileName,
		logger,
	)
}

func exportOptions() services.ExportOptions {
	return services.ExportOptions{
		StandardColumns:  cfg.Export.StandardColumns,
		IdentifierTarget: cfg.Export.IdentifierTarget,
		FallbackPrefix:   cfg.Export.FallbackPrefix,
	}
}

// newSessionConfig wires the components every session is built from.
func newSessionConfig(ctx context.Context) (services.SessionConfig, func(), error) {
	backend, closeBackend, err := openCatalog(ctx)
	if err != nil {
		return services.SessionConfig{}, nil, err
	}
	provider, err := newSuggestionProvider(ctx)
	if err != nil {
		closeBackend()
		return services.SessionConfig{}, nil, err
	}
	return services.SessionConfig{
		SchemaProvider:  backend,
		PropertyCreator: backend,
		FeedbackSink:    backend,
		Provider:        provider,
		Ingestion:       newIngestionService(),
		Export:          exportOptions(),
		HighlightWindow: cfg.Suggest.HighlightWindow(),
	}, closeBackend, nil
}

// sessionInputs names the files a CLI session is rebuilt from.
type sessionInputs struct {
	source    string
	knowledge string
	state     string
}

// cliSession is a mapping session rebuilt from files for one command.
type cliSession struct {
	*services.MappingSession
	inputs sessionInputs
	saved  *mappingfile.MappingFile
	close  func()
}

// openSession loads the source, the optional knowledge base, the target schema
// and any saved selections. A knowledge-base path saved in the state file is
// reused when none is given.
func openSession(ctx context.Context, in sessionInputs) (*cliSession, error) {
	saved, err := mappingfile.LoadFile(in.state)
	if err != nil {
		return nil, err
	}
	if in.source == "" {
		in.source = saved.Source
	}
	if in.source == "" {
		return nil, fmt.Errorf("--source is required: %w", apperrors.ErrNoSource)
	}
	if in.knowledge == "" {
		in.knowledge = saved.Knowledge
	}

	sessCfg, closeBackend, err := newSessionConfig(ctx)
	if err != nil {
		return nil, err
	}
	s := &cliSession{
		MappingSession: services.NewMappingSession(uuid.New(), sessCfg, logger),
		inputs:         in,
		saved:          saved,
		close:          closeBackend,
	}

	if err := s.load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *cliSession) load(ctx context.Context) error {
	text, err := os.ReadFile(s.inputs.source)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}
	if _, err := s.LoadSource(string(text)); err != nil {
		return err
	}

	if s.inputs.knowledge != "" {
		kb, err := os.ReadFile(s.inputs.knowledge)
		if err != nil {
			return fmt.Errorf("failed to read knowledge-base file: %w", err)
		}
		if _, err := s.LoadKnowledge(string(kb)); err != nil {
			return err
		}
	}

	if _, err := s.LoadSchema(ctx); err != nil {
		return err
	}

	// Selections saved for a different source are not reused.
	if len(s.saved.Rows) > 0 && s.saved.Source == s.inputs.source {
		if _, err := s.Restore(s.saved.Rows); err != nil {
			return err
		}
	}
	return nil
}

// save writes the current selections to the state file.
func (s *cliSession) save() error {
	st := s.State()
	return mappingfile.WriteFile(&mappingfile.MappingFile{
		Version:   mappingfile.CurrentVersion,
		Source:    s.inputs.source,
		Knowledge: s.inputs.knowledge,
		Rows:      st.Rows,
	}, s.inputs.state)
}

// Close releases the session and its catalog backend.
func (s *cliSession) Close() {
	s.MappingSession.Close()
	s.close()
}
