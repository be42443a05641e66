package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// CompanyStorage implements interfaces.CompanyStorage for Badger
type CompanyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// Sibling stores for cascade deletion.
	pages    interfaces.PageStorage
	entities interfaces.EntityStorage
	sessions interfaces.SessionStorage
	analyses interfaces.AnalysisStorage
	tokens   interfaces.TokenUsageStorage
}

// NewCompanyStorage creates a new CompanyStorage instance
func NewCompanyStorage(db *BadgerDB, logger arbor.ILogger, pages interfaces.PageStorage, entities interfaces.EntityStorage, sessions interfaces.SessionStorage, analyses interfaces.AnalysisStorage, tokens interfaces.TokenUsageStorage) *CompanyStorage {
	return &CompanyStorage{
		db:       db,
		logger:   logger,
		pages:    pages,
		entities: entities,
		sessions: sessions,
		analyses: analyses,
		tokens:   tokens,
	}
}

// SaveCompany inserts or updates a company, refreshing UpdatedAt.
func (s *CompanyStorage) SaveCompany(ctx context.Context, company *models.Company) error {
	company.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(company.ID, company); err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}
	return nil
}

// GetCompany retrieves a company by ID.
func (s *CompanyStorage) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	err := s.db.Store().Get(id, &company)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &company, nil
}

// ListCompanies returns all companies ordered by creation time descending.
func (s *CompanyStorage) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	var companies []*models.Company
	err := s.db.Store().Find(&companies, badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// ListCompaniesByStatus returns companies with the given status.
func (s *CompanyStorage) ListCompaniesByStatus(ctx context.Context, status models.CompanyStatus) ([]*models.Company, error) {
	var companies []*models.Company
	err := s.db.Store().Find(&companies, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list companies by status: %w", err)
	}
	return companies, nil
}

// DeleteCompany removes a company and cascades to all dependents.
func (s *CompanyStorage) DeleteCompany(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.Company{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}

	if err := s.pages.DeletePagesByCompany(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("company_id", id).Msg("Failed to cascade page deletion")
	}
	if err := s.entities.DeleteEntitiesByCompany(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("company_id", id).Msg("Failed to cascade entity deletion")
	}
	if err := s.sessions.DeleteSessionsByCompany(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("company_id", id).Msg("Failed to cascade session deletion")
	}
	if err := s.analyses.DeleteAnalysesByCompany(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("company_id", id).Msg("Failed to cascade analysis deletion")
	}
	if err := s.tokens.DeleteTokenUsageByCompany(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("company_id", id).Msg("Failed to cascade token usage deletion")
	}

	s.logger.Info().Str("company_id", id).Msg("Company deleted with dependents")
	return nil
}
