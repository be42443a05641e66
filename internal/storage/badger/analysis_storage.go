package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// AnalysisStorage implements interfaces.AnalysisStorage for Badger
type AnalysisStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAnalysisStorage creates a new AnalysisStorage instance
func NewAnalysisStorage(db *BadgerDB, logger arbor.ILogger) *AnalysisStorage {
	return &AnalysisStorage{db: db, logger: logger}
}

// SaveAnalysis inserts a new analysis version. When the per-company cap
// would be exceeded, the smallest version is evicted first.
func (s *AnalysisStorage) SaveAnalysis(ctx context.Context, analysis *models.Analysis) error {
	if analysis.Version < 1 {
		return fmt.Errorf("analysis version must be positive, got %d", analysis.Version)
	}

	existing, err := s.ListAnalysesByCompany(ctx, analysis.CompanyID)
	if err != nil {
		return err
	}

	for len(existing) >= models.MaxAnalysisVersions {
		oldest := existing[0]
		for _, a := range existing {
			if a.Version < oldest.Version {
				oldest = a
			}
		}
		if err := s.db.Store().Delete(oldest.ID, &models.Analysis{}); err != nil {
			return fmt.Errorf("failed to evict oldest analysis: %w", err)
		}
		s.logger.Info().
			Str("company_id", analysis.CompanyID).
			Int("evicted_version", oldest.Version).
			Msg("Evicted oldest analysis version")

		remaining := existing[:0]
		for _, a := range existing {
			if a.ID != oldest.ID {
				remaining = append(remaining, a)
			}
		}
		existing = remaining
	}

	if err := s.db.Store().Upsert(analysis.ID, analysis); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis retrieves one version of a company's analysis.
func (s *AnalysisStorage) GetAnalysis(ctx context.Context, companyID string, version int) (*models.Analysis, error) {
	analyses, err := s.ListAnalysesByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for _, a := range analyses {
		if a.Version == version {
			return a, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

// GetLatestAnalysis retrieves the highest version for a company.
func (s *AnalysisStorage) GetLatestAnalysis(ctx context.Context, companyID string) (*models.Analysis, error) {
	analyses, err := s.ListAnalysesByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return analyses[len(analyses)-1], nil
}

// ListAnalysesByCompany returns a company's analyses sorted by version.
func (s *AnalysisStorage) ListAnalysesByCompany(ctx context.Context, companyID string) ([]*models.Analysis, error) {
	var analyses []*models.Analysis
	err := s.db.Store().Find(&analyses, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	sort.Slice(analyses, func(i, j int) bool {
		return analyses[i].Version < analyses[j].Version
	})
	return analyses, nil
}

// CountAnalysesByCompany counts a company's retained analyses.
func (s *AnalysisStorage) CountAnalysesByCompany(ctx context.Context, companyID string) (int, error) {
	count, err := s.db.Store().Count(&models.Analysis{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return int(count), nil
}

// DeleteAnalysesByCompany removes all analyses for a company.
func (s *AnalysisStorage) DeleteAnalysesByCompany(ctx context.Context, companyID string) error {
	err := s.db.Store().DeleteMatching(&models.Analysis{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return fmt.Errorf("failed to delete analyses: %w", err)
	}
	return nil
}
