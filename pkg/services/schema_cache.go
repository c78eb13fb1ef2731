package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// SchemaProvider returns the target property catalog.
type SchemaProvider interface {
	ListProperties(ctx context.Context) ([]models.TargetProperty, error)
}

// PropertyCreator adds a property to the remote catalog.
type PropertyCreator interface {
	CreateProperty(ctx context.Context, displayName string) error
}

// PropertyLookup resolves a target by display name.
type PropertyLookup interface {
	Get(displayName string) (models.TargetProperty, bool)
}

// SchemaCache holds the target property catalog for one session. The catalog is
// fetched once by Load and kept until Refresh.
type SchemaCache struct {
	provider SchemaProvider
	creator  PropertyCreator
	logger   *zap.Logger

	mu     sync.RWMutex
	props  []models.TargetProperty
	index  map[string]int
	loaded bool
}

var _ PropertyLookup = (*SchemaCache)(nil)

// NewSchemaCache creates an empty cache. creator may be nil when property creation
// is not available.
func NewSchemaCache(provider SchemaProvider, creator PropertyCreator, logger *zap.Logger) *SchemaCache {
	return &SchemaCache{
		provider: provider,
		creator:  creator,
		logger:   logger.Named("schema-cache"),
		index:    map[string]int{},
	}
}

// Load fetches the catalog unless it is already loaded.
func (c *SchemaCache) Load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh refetches the catalog. On failure the cache is emptied and marked not loaded.
func (c *SchemaCache) Refresh(ctx context.Context) error {
	if c.provider == nil {
		c.reset()
		return &apperrors.SchemaUnavailableError{Reason: "no schema provider configured"}
	}

	fetched, err := c.provider.ListProperties(ctx)
	if err != nil {
		c.reset()
		c.logger.Error("Failed to fetch target schema", zap.Error(err))
		return &apperrors.SchemaUnavailableError{Reason: "fetch failed", Cause: err}
	}

	props := make([]models.TargetProperty, 0, len(fetched))
	index := make(map[string]int, len(fetched))
	for _, p := range fetched {
		p.DisplayName = strings.TrimSpace(p.DisplayName)
		if p.DisplayName == "" {
			continue
		}
		if _, dup := index[p.DisplayName]; dup {
			c.logger.Warn("Ignoring duplicate target display name",
				zap.String("display_name", p.DisplayName),
				zap.String("remote_id", p.RemoteID))
			continue
		}
		index[p.DisplayName] = len(props)
		props = append(props, p)
	}

	if len(props) == 0 {
		c.reset()
		return &apperrors.SchemaUnavailableError{Reason: "no properties with a display name"}
	}

	c.mu.Lock()
	c.props = props
	c.index = index
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("Target schema loaded", zap.Int("properties", len(props)))
	return nil
}

func (c *SchemaCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = nil
	c.index = map[string]int{}
	c.loaded = false
}

// Loaded reports whether a usable catalog is held.
func (c *SchemaCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Len returns the number of properties.
func (c *SchemaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.props)
}

// Names returns the display names in catalog order.
func (c *SchemaCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.props))
	for i, p := range c.props {
		names[i] = p.DisplayName
	}
	return names
}

// Properties returns a copy of the catalog.
func (c *SchemaCache) Properties() []models.TargetProperty {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.TargetProperty, len(c.props))
	for i, p := range c.props {
		out[i] = cloneProperty(p)
	}
	return out
}

// Get returns the property with the exact display name.
func (c *SchemaCache) Get(displayName string) (models.TargetProperty, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[displayName]
	if !ok {
		return models.TargetProperty{}, false
	}
	return cloneProperty(c.props[i]), true
}

// Has reports whether displayName is a target.
func (c *SchemaCache) Has(displayName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[displayName]
	return ok
}

// Canonical returns the catalog spelling of name, matching exactly first and then
// ignoring case.
func (c *SchemaCache) Canonical(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.index[name]; ok {
		return name, true
	}
	for _, p := range c.props {
		if strings.EqualFold(p.DisplayName, name) {
			return p.DisplayName, true
		}
	}
	return "", false
}

// SetLexicon replaces the cached synonyms and antonyms of a property after a
// successful feedback write, so later derived indexes see them.
func (c *SchemaCache) SetLexicon(displayName string, lex models.Lexicon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[displayName]; ok {
		c.props[i].Synonyms = append([]string(nil), lex.Synonyms...)
		c.props[i].Antonyms = append([]string(nil), lex.Antonyms...)
	}
}

// AddProperty creates a property through the creation endpoint and, on success,
// appends it to the catalog with empty identifiers until the next Refresh.
func (c *SchemaCache) AddProperty(ctx context.Context, displayName string) error {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return fmt.Errorf("property name is required: %w", apperrors.ErrInputFormat)
	}
	if c.creator == nil {
		return errors.New("property creation is not configured")
	}
	if existing, ok := c.Canonical(name); ok {
		return fmt.Errorf("property %q already exists as %q: %w", name, existing, apperrors.ErrConflict)
	}

	if err := c.creator.CreateProperty(ctx, name); err != nil {
		c.logger.Error("Failed to create property",
			zap.String("display_name", name),
			zap.Error(err))
		return fmt.Errorf("create property %q: %w", name, err)
	}

	c.mu.Lock()
	if _, ok := c.index[name]; !ok {
		c.index[name] = len(c.props)
		c.props = append(c.props, models.TargetProperty{DisplayName: name, Synonyms: []string{}, Antonyms: []string{}})
	}
	c.mu.Unlock()

	c.logger.Info("Property created", zap.String("display_name", name))
	return nil
}

func cloneProperty(p models.TargetProperty) models.TargetProperty {
	p.Synonyms = append([]string(nil), p.Synonyms...)
	p.Antonyms = append([]string(nil), p.Antonyms...)
	return p
}
