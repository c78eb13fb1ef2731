package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/database"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

// TargetPropertyRepository stores the target property catalog in PostgreSQL.
// Synonyms and antonyms are kept in the same ';'-delimited form the HTTP catalog uses.
type TargetPropertyRepository interface {
	services.SchemaProvider
	services.FeedbackSink
	services.PropertyCreator
	Upsert(ctx context.Context, prop *models.TargetProperty) error
}

type targetPropertyRepository struct {
	db *database.DB
}

// NewTargetPropertyRepository creates a new TargetPropertyRepository.
func NewTargetPropertyRepository(db *database.DB) TargetPropertyRepository {
	return &targetPropertyRepository{db: db}
}

var _ TargetPropertyRepository = (*targetPropertyRepository)(nil)

func (r *targetPropertyRepository) ListProperties(ctx context.Context) ([]models.TargetProperty, error) {
	query := `
		SELECT id, display_name, local_id, synonyms, antonyms, updated_at
		FROM mapper_target_properties
		ORDER BY position, display_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query target properties: %w", err)
	}
	defer rows.Close()

	var props []models.TargetProperty
	for rows.Next() {
		var (
			id                 uuid.UUID
			synonyms, antonyms string
			updatedAt          time.Time
			p                  models.TargetProperty
		)
		if err := rows.Scan(&id, &p.DisplayName, &p.LocalID, &synonyms, &antonyms, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target property: %w", err)
		}
		p.RemoteID = id.String()
		p.Synonyms = models.ParseTermList(synonyms)
		p.Antonyms = models.ParseTermList(antonyms)
		p.UpdatedAt = &updatedAt
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating target properties: %w", err)
	}

	return props, nil
}

func (r *targetPropertyRepository) GetLexicon(ctx context.Context, remoteID string) (*models.Lexicon, error) {
	id, err := uuid.Parse(remoteID)
	if err != nil {
		return nil, fmt.Errorf("target property %q: %w", remoteID, apperrors.ErrNotFound)
	}

	query := `
		SELECT synonyms, antonyms
		FROM mapper_target_properties
		WHERE id = $1`

	var synonyms, antonyms string
	err = r.db.QueryRow(ctx, query, id).Scan(&synonyms, &antonyms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("target property %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get target property lexicon: %w", err)
	}

	return &models.Lexicon{
		Synonyms: models.ParseTermList(synonyms),
		Antonyms: models.ParseTermList(antonyms),
	}, nil
}

func (r *targetPropertyRepository) PatchLexicon(ctx context.Context, remoteID string, patch models.LexiconPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	id, err := uuid.Parse(remoteID)
	if err != nil {
		return fmt.Errorf("target property %q: %w", remoteID, apperrors.ErrNotFound)
	}

	// NULL leaves the column untouched.
	query := `
		UPDATE mapper_target_properties
		SET synonyms = COALESCE($2, synonyms),
			antonyms = COALESCE($3, antonyms),
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, patch.Synonyms, patch.Antonyms)
	if err != nil {
		return fmt.Errorf("failed to update target property lexicon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("target property %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *targetPropertyRepository) CreateProperty(ctx context.Context, displayName string) error {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return fmt.Errorf("display name is required: %w", apperrors.ErrInputFormat)
	}

	query := `
		INSERT INTO mapper_target_properties (display_name, position)
		VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM mapper_target_properties))`

	if _, err := r.db.Exec(ctx, query, name); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("target property %q: %w", name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create target property: %w", err)
	}
	return nil
}

// Upsert inserts a property, or updates the one with the same display name
// (ignoring case). New properties are appended at the end of the catalog order.
// RemoteID is set on return.
func (r *targetPropertyRepository) Upsert(ctx context.Context, prop *models.TargetProperty) error {
	name := strings.TrimSpace(prop.DisplayName)
	if name == "" {
		return fmt.Errorf("display name is required: %w", apperrors.ErrInputFormat)
	}

	query := `
		INSERT INTO mapper_target_properties (display_name, local_id, synonyms, antonyms, position)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position), 0) + 1 FROM mapper_target_properties))
		ON CONFLICT ((LOWER(display_name)))
		DO UPDATE SET
			local_id = EXCLUDED.local_id,
			synonyms = EXCLUDED.synonyms,
			antonyms = EXCLUDED.antonyms,
			updated_at = NOW()
		RETURNING id, updated_at`

	var (
		id        uuid.UUID
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, query,
		name, prop.LocalID, models.JoinTermList(prop.Synonyms), models.JoinTermList(prop.Antonyms),
	).Scan(&id, &updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert target property: %w", err)
	}

	prop.DisplayName = name
	prop.RemoteID = id.String()
	prop.UpdatedAt = &updatedAt
	return nil
}
