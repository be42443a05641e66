package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cirahq/cira/internal/models"
)

// TokenStorage implements interfaces.TokenUsageStorage for Badger
type TokenStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTokenStorage creates a new TokenStorage instance
func NewTokenStorage(db *BadgerDB, logger arbor.ILogger) *TokenStorage {
	return &TokenStorage{db: db, logger: logger}
}

// SaveTokenUsage persists one recorded LLM call.
func (s *TokenStorage) SaveTokenUsage(ctx context.Context, usage *models.TokenUsage) error {
	if err := s.db.Store().Upsert(usage.ID, usage); err != nil {
		return fmt.Errorf("failed to save token usage: %w", err)
	}
	return nil
}

// ListTokenUsageByCompany returns a company's token usage rows in call order.
func (s *TokenStorage) ListTokenUsageByCompany(ctx context.Context, companyID string) ([]*models.TokenUsage, error) {
	var usage []*models.TokenUsage
	err := s.db.Store().Find(&usage, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID").SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list token usage: %w", err)
	}
	return usage, nil
}

// DeleteTokenUsageByCompany removes all token usage rows for a company.
func (s *TokenStorage) DeleteTokenUsageByCompany(ctx context.Context, companyID string) error {
	err := s.db.Store().DeleteMatching(&models.TokenUsage{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return fmt.Errorf("failed to delete token usage: %w", err)
	}
	return nil
}
