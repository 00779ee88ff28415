package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
	"github.com/varia-hq/varia-engine/pkg/repositories"
)

// AnalysisService runs the full pipeline over one dataset and serves
// projections of the last completed run. A run is a single sequential pass;
// its result is published transactionally, so a failed run leaves the prior
// snapshot untouched.
type AnalysisService interface {
	// RunAnalysis executes classification, entity detection, gap analysis,
	// constraint extraction and decision generation over the dataset's
	// current sheets, then publishes the snapshot.
	RunAnalysis(ctx context.Context, datasetID string) (*models.AnalysisResult, error)

	GetSummary(ctx context.Context, datasetID string) (*models.RunSummary, error)
	GetSheets(ctx context.Context, datasetID string) ([]models.SheetProfile, error)
	GetEntities(ctx context.Context, datasetID string) ([]models.Entity, error)
	GetGaps(ctx context.Context, datasetID string, severity string) ([]models.Gap, error)
	GetConstraints(ctx context.Context, datasetID string, constraintType string) ([]models.Constraint, error)

	// GetDecisions returns decisions with their ledger status resolved at
	// read time, optionally filtered by that status.
	GetDecisions(ctx context.Context, datasetID string, status string) ([]models.Decision, error)
	GetThemes(ctx context.Context, datasetID string) ([]models.DecisionTheme, error)
}

type analysisService struct {
	registry     *DatasetRegistry
	classifier   SheetClassifier
	detector     EntityDetector
	gapAnalyzer  GapAnalyzer
	extractor    ConstraintExtractor
	generator    DecisionGenerator
	analysisRepo repositories.AnalysisRepository
	ledgerRepo   repositories.LedgerRepository
	now          func() time.Time
	logger       *zap.Logger
}

// NewAnalysisService wires the pipeline stages together.
func NewAnalysisService(
	registry *DatasetRegistry,
	cfg config.AnalysisConfig,
	analysisRepo repositories.AnalysisRepository,
	ledgerRepo repositories.LedgerRepository,
	logger *zap.Logger,
) AnalysisService {
	return &analysisService{
		registry:     registry,
		classifier:   NewSheetClassifier(cfg, logger),
		detector:     NewEntityDetector(cfg, logger),
		gapAnalyzer:  NewGapAnalyzer(cfg, logger),
		extractor:    NewConstraintExtractor(cfg, logger),
		generator:    NewDecisionGenerator(cfg, logger),
		analysisRepo: analysisRepo,
		ledgerRepo:   ledgerRepo,
		now:          time.Now,
		logger:       logger.Named("analysis-service"),
	}
}

var _ AnalysisService = (*analysisService)(nil)

func (s *analysisService) RunAnalysis(ctx context.Context, datasetID string) (*models.AnalysisResult, error) {
	tables, err := s.registry.Sheets(datasetID)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, apperrors.ErrEmptyDataset)
	}

	started := s.now()
	var warnings []models.RunWarning

	profiles := s.classifier.ClassifyAll(tables)
	for _, p := range profiles {
		if p.Role == models.RoleUnknown {
			warnings = append(warnings, models.RunWarning{
				Stage:   "sheet_classifier",
				SheetID: p.SheetID,
				Message: fmt.Sprintf("sheet %q could not be classified, excluded from entity and gap detection", p.Name),
			})
		}
	}

	entities, members := s.detector.Detect(datasetID, tables, profiles)
	graph := BuildRelationshipGraph(entities, members)

	facts, factWarnings := s.gapAnalyzer.ExtractFacts(tables, profiles, graph)
	warnings = append(warnings, factWarnings...)

	gaps := s.gapAnalyzer.Analyze(datasetID, facts, entities, graph)
	constraints := s.extractor.Extract(datasetID, tables, profiles, graph)
	decisions, themes := s.generator.Generate(datasetID, gaps, constraints, entities, graph)

	result := &models.AnalysisResult{
		DatasetID:   datasetID,
		CompletedAt: s.now().UTC(),
		Sheets:      profiles,
		Entities:    entities,
		Gaps:        gaps,
		Constraints: constraints,
		Decisions:   decisions,
		Themes:      themes,
		Warnings:    warnings,
	}

	// Publish last. If the save fails nothing of this run becomes visible
	// and the prior snapshot stays intact.
	if err := s.analysisRepo.Save(ctx, result); err != nil {
		return nil, err
	}

	s.logger.Info("Analysis run completed",
		zap.String("dataset_id", datasetID),
		zap.Int("sheets", len(profiles)),
		zap.Int("entities", len(entities)),
		zap.Int("gaps", len(gaps)),
		zap.Int("constraints", len(constraints)),
		zap.Int("decisions", len(decisions)),
		zap.Duration("elapsed", s.now().Sub(started)))
	return result, nil
}

func (s *analysisService) GetSummary(ctx context.Context, datasetID string) (*models.RunSummary, error) {
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	bySeverity := map[string]int{}
	for _, gap := range result.Gaps {
		bySeverity[string(gap.Severity)]++
	}
	primary := ""
	for _, e := range result.Entities {
		if e.IsPrimary {
			primary = e.CanonicalName
			break
		}
	}

	return &models.RunSummary{
		DatasetID:       result.DatasetID,
		CompletedAt:     result.CompletedAt,
		SheetCount:      len(result.Sheets),
		EntityCount:     len(result.Entities),
		PrimaryEntity:   primary,
		GapCount:        len(result.Gaps),
		GapsBySeverity:  bySeverity,
		ConstraintCount: len(result.Constraints),
		DecisionCount:   len(result.Decisions),
		ThemeCount:      len(result.Themes),
		WarningCount:    len(result.Warnings),
	}, nil
}

func (s *analysisService) GetSheets(ctx context.Context, datasetID string) ([]models.SheetProfile, error) {
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return result.Sheets, nil
}

func (s *analysisService) GetEntities(ctx context.Context, datasetID string) ([]models.Entity, error) {
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return result.Entities, nil
}

func (s *analysisService) GetGaps(ctx context.Context, datasetID string, severity string) ([]models.Gap, error) {
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if severity == "" {
		return result.Gaps, nil
	}
	want := models.GapSeverity(severity)
	switch want {
	case models.SeverityCritical, models.SeverityWarning, models.SeverityNormal:
	default:
		return nil, fmt.Errorf("%w: unknown severity %q", apperrors.ErrInvalidInput, severity)
	}

	filtered := make([]models.Gap, 0)
	for _, gap := range result.Gaps {
		if gap.Severity == want {
			filtered = append(filtered, gap)
		}
	}
	return filtered, nil
}

func (s *analysisService) GetConstraints(ctx context.Context, datasetID string, constraintType string) ([]models.Constraint, error) {
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if constraintType == "" {
		return result.Constraints, nil
	}
	want := models.ConstraintType(constraintType)
	if !models.IsValidConstraintType(want) {
		return nil, fmt.Errorf("%w: unknown constraint type %q", apperrors.ErrInvalidInput, constraintType)
	}

	filtered := make([]models.Constraint, 0)
	for _, c := range result.Constraints {
		if c.Type == want {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (s *analysisService) GetDecisions(ctx context.Context, datasetID string, status string) ([]models.Decision, error) {
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	var want models.LedgerStatus
	if status != "" {
		want = models.LedgerStatus(status)
		switch want {
		case models.StatusPending, models.StatusApproved, models.StatusRejected:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, status)
		}
	}

	statuses, err := s.ledgerRepo.LatestStatuses(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Decision, 0, len(result.Decisions))
	for _, d := range result.Decisions {
		d.LedgerStatus = models.StatusPending
		if st, ok := statuses[d.ID]; ok {
			d.LedgerStatus = st
		}
		if status != "" && d.LedgerStatus != want {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *analysisService) GetThemes(ctx context.Context, datasetID string) ([]models.DecisionTheme, error) {
	result, err := s.analysisRepo.GetLatest(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return result.Themes, nil
}
