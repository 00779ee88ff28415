package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/database"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// AnalysisRepository persists one analysis snapshot per dataset.
// Publishing is a single upsert, so readers either see the prior complete
// snapshot or the new complete snapshot, never a partial one.
type AnalysisRepository interface {
	Save(ctx context.Context, result *models.AnalysisResult) error
	GetLatest(ctx context.Context, datasetID string) (*models.AnalysisResult, error)
}

type analysisRepository struct {
	db *database.DB
}

// NewAnalysisRepository creates a new AnalysisRepository.
func NewAnalysisRepository(db *database.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

var _ AnalysisRepository = (*analysisRepository)(nil)

func (r *analysisRepository) Save(ctx context.Context, result *models.AnalysisResult) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	query := `
		INSERT INTO engine_analysis_snapshots (dataset_id, completed_at, result)
		VALUES ($1, $2, $3)
		ON CONFLICT (dataset_id)
		DO UPDATE SET completed_at = EXCLUDED.completed_at, result = EXCLUDED.result`

	if _, err := r.db.Exec(ctx, query, result.DatasetID, result.CompletedAt, doc); err != nil {
		return fmt.Errorf("failed to save analysis snapshot: %w", err)
	}
	return nil
}

func (r *analysisRepository) GetLatest(ctx context.Context, datasetID string) (*models.AnalysisResult, error) {
	query := `
		SELECT result
		FROM engine_analysis_snapshots
		WHERE dataset_id = $1`

	var doc []byte
	err := r.db.QueryRow(ctx, query, datasetID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNoAnalysis
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis snapshot: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis snapshot: %w", err)
	}
	return &result, nil
}
