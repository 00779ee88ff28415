package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/models"
	"github.com/varia-hq/varia-engine/pkg/repositories"
)

// LedgerService records human approve/reject actions against decisions.
// Every action appends; nothing is ever edited. Re-acting on an already
// acted-on decision is allowed and supersedes the prior status.
type LedgerService interface {
	Approve(ctx context.Context, datasetID string, decisionID uuid.UUID, actedBy, notes string) (*models.LedgerEntry, error)
	Reject(ctx context.Context, datasetID string, decisionID uuid.UUID, actedBy, notes string) (*models.LedgerEntry, error)

	// StatusOf returns the status of the most recent entry for a decision,
	// or pending when the decision has never been acted on.
	StatusOf(ctx context.Context, decisionID uuid.UUID) (models.LedgerStatus, error)

	// ListEntries returns the dataset's full audit trail ordered by acted_at
	// ascending, or descending when requested.
	ListEntries(ctx context.Context, datasetID string, descending bool) ([]models.LedgerEntry, error)
}

type ledgerService struct {
	ledgerRepo   repositories.LedgerRepository
	analysisRepo repositories.AnalysisRepository
	now          func() time.Time
	logger       *zap.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(ledgerRepo repositories.LedgerRepository, analysisRepo repositories.AnalysisRepository, logger *zap.Logger) LedgerService {
	return &ledgerService{
		ledgerRepo:   ledgerRepo,
		analysisRepo: analysisRepo,
		now:          time.Now,
		logger:       logger.Named("ledger-service"),
	}
}

var _ LedgerService = (*ledgerService)(nil)

func (s *ledgerService) Approve(ctx context.Context, datasetID string, decisionID uuid.UUID, actedBy, notes string) (*models.LedgerEntry, error) {
	return s.act(ctx, datasetID, decisionID, models.StatusApproved, actedBy, notes)
}

func (s *ledgerService) Reject(ctx context.Context, datasetID string, decisionID uuid.UUID, actedBy, notes string) (*models.LedgerEntry, error) {
	return s.act(ctx, datasetID, decisionID, models.StatusRejected, actedBy, notes)
}

func (s *ledgerService) act(ctx context.Context, datasetID string, decisionID uuid.UUID, status models.LedgerStatus, actedBy, notes string) (*models.LedgerEntry, error) {
	if actedBy == "" {
		return nil, fmt.Errorf("%w: acted_by is required", apperrors.ErrInvalidInput)
	}

	// The decision must exist in the dataset's current snapshot. A stale id
	// from a replaced run is a not-found, with no entry written.
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if !decisionExists(result, decisionID) {
		return nil, fmt.Errorf("decision %s: %w", decisionID, apperrors.ErrNotFound)
	}

	entry := &models.LedgerEntry{
		ID:         uuid.New(),
		DecisionID: decisionID,
		DatasetID:  datasetID,
		Status:     status,
		ActedBy:    actedBy,
		ActedAt:    s.now().UTC(),
		Notes:      notes,
	}
	saved, err := s.ledgerRepo.Append(ctx, entry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recorded ledger entry",
		zap.String("dataset_id", datasetID),
		zap.String("decision_id", decisionID.String()),
		zap.String("status", string(status)),
		zap.String("acted_by", actedBy))
	return saved, nil
}

func decisionExists(result *models.AnalysisResult, decisionID uuid.UUID) bool {
	for _, d := range result.Decisions {
		if d.ID == decisionID {
			return true
		}
	}
	return false
}

func (s *ledgerService) StatusOf(ctx context.Context, decisionID uuid.UUID) (models.LedgerStatus, error) {
	entry, err := s.ledgerRepo.LatestByDecision(ctx, decisionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.StatusPending, nil
	}
	if err != nil {
		return "", err
	}
	return entry.Status, nil
}

func (s *ledgerService) ListEntries(ctx context.Context, datasetID string, descending bool) ([]models.LedgerEntry, error) {
	if _, err := s.analysisRepo.GetLatest(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.ledgerRepo.ListByDataset(ctx, datasetID, descending)
}
