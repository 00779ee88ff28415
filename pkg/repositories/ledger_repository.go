package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/database"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// LedgerRepository is the append-only store of ledger entries. There is no
// update or delete; concurrent appends are serialized by the single insert
// and the storage-assigned seq.
type LedgerRepository interface {
	// Append writes one entry and returns it with its assigned seq.
	Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)

	// LatestByDecision returns the most recent entry for a decision, or
	// apperrors.ErrNotFound when the decision has never been acted on.
	LatestByDecision(ctx context.Context, decisionID uuid.UUID) (*models.LedgerEntry, error)

	// LatestStatuses resolves the current status of every acted-on decision
	// in a dataset in one query.
	LatestStatuses(ctx context.Context, datasetID string) (map[uuid.UUID]models.LedgerStatus, error)

	// ListByDataset returns all entries for a dataset ordered by acted_at,
	// ascending by default for audit replay, descending on request.
	ListByDataset(ctx context.Context, datasetID string, descending bool) ([]models.LedgerEntry, error)
}

type ledgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *database.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

var _ LedgerRepository = (*ledgerRepository)(nil)

func (r *ledgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	query := `
		INSERT INTO engine_ledger_entries (id, decision_id, dataset_id, status, acted_by, acted_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`

	saved := *entry
	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.DecisionID, entry.DatasetID, entry.Status,
		entry.ActedBy, entry.ActedAt, entry.Notes,
	).Scan(&saved.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return &saved, nil
}

func (r *ledgerRepository) LatestByDecision(ctx context.Context, decisionID uuid.UUID) (*models.LedgerEntry, error) {
	query := `
		SELECT id, seq, decision_id, dataset_id, status, acted_by, acted_at, notes
		FROM engine_ledger_entries
		WHERE decision_id = $1
		ORDER BY seq DESC
		LIMIT 1`

	var e models.LedgerEntry
	err := r.db.QueryRow(ctx, query, decisionID).Scan(
		&e.ID, &e.Seq, &e.DecisionID, &e.DatasetID, &e.Status, &e.ActedBy, &e.ActedAt, &e.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest ledger entry: %w", err)
	}
	return &e, nil
}

func (r *ledgerRepository) LatestStatuses(ctx context.Context, datasetID string) (map[uuid.UUID]models.LedgerStatus, error) {
	query := `
		SELECT DISTINCT ON (decision_id) decision_id, status
		FROM engine_ledger_entries
		WHERE dataset_id = $1
		ORDER BY decision_id, seq DESC`

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[uuid.UUID]models.LedgerStatus)
	for rows.Next() {
		var id uuid.UUID
		var status models.LedgerStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan ledger status: %w", err)
		}
		statuses[id] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger statuses: %w", err)
	}
	return statuses, nil
}

func (r *ledgerRepository) ListByDataset(ctx context.Context, datasetID string, descending bool) ([]models.LedgerEntry, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, seq, decision_id, dataset_id, status, acted_by, acted_at, notes
		FROM engine_ledger_entries
		WHERE dataset_id = $1
		ORDER BY acted_at %s, seq %s`, order, order)

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Seq, &e.DecisionID, &e.DatasetID, &e.Status, &e.ActedBy, &e.ActedAt, &e.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}
