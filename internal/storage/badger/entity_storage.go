package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cirahq/cira/internal/models"
)

// EntityStorage implements interfaces.EntityStorage for Badger
type EntityStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEntityStorage creates a new EntityStorage instance
func NewEntityStorage(db *BadgerDB, logger arbor.ILogger) *EntityStorage {
	return &EntityStorage{db: db, logger: logger}
}

// SaveEntity upserts one entity.
func (s *EntityStorage) SaveEntity(ctx context.Context, entity *models.Entity) error {
	if err := s.db.Store().Upsert(entity.ID, entity); err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

// SaveEntities upserts a batch of entities.
func (s *EntityStorage) SaveEntities(ctx context.Context, entities []*models.Entity) error {
	for _, entity := range entities {
		if err := s.SaveEntity(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// ListEntitiesByCompany returns all entities for a company.
func (s *EntityStorage) ListEntitiesByCompany(ctx context.Context, companyID string) ([]*models.Entity, error) {
	var entities []*models.Entity
	err := s.db.Store().Find(&entities, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return entities, nil
}

// ListEntitiesByType returns a company's entities of one type.
func (s *EntityStorage) ListEntitiesByType(ctx context.Context, companyID string, entityType models.EntityType) ([]*models.Entity, error) {
	var entities []*models.Entity
	err := s.db.Store().Find(&entities, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID").And("Type").Eq(entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities by type: %w", err)
	}
	return entities, nil
}

// CountEntitiesByCompany counts a company's entities.
func (s *EntityStorage) CountEntitiesByCompany(ctx context.Context, companyID string) (int, error) {
	count, err := s.db.Store().Count(&models.Entity{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return int(count), nil
}

// ReplaceEntities swaps a company's entity set for the merged set. The
// entities endpoint therefore always sees one row per merged group.
func (s *EntityStorage) ReplaceEntities(ctx context.Context, companyID string, entities []*models.Entity) error {
	if err := s.DeleteEntitiesByCompany(ctx, companyID); err != nil {
		return err
	}
	if err := s.SaveEntities(ctx, entities); err != nil {
		return err
	}
	s.logger.Debug().
		Str("company_id", companyID).
		Int("merged_count", len(entities)).
		Msg("Replaced entities with merged set")
	return nil
}

// DeleteEntitiesByCompany removes all entities for a company.
func (s *EntityStorage) DeleteEntitiesByCompany(ctx context.Context, companyID string) error {
	err := s.db.Store().DeleteMatching(&models.Entity{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return fmt.Errorf("failed to delete entities: %w", err)
	}
	return nil
}
