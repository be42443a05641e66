package interfaces

import (
	"context"
	"errors"

	"github.com/cirahq/cira/internal/models"
)

// ErrNotFound is returned by storage lookups for missing records.
var ErrNotFound = errors.New("record not found")

// CompanyStorage - interface for company persistence
type CompanyStorage interface {
	SaveCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]*models.Company, error)
	ListCompaniesByStatus(ctx context.Context, status models.CompanyStatus) ([]*models.Company, error)
	// DeleteCompany cascades to pages, entities, sessions, analyses, and
	// token usage owned by the company.
	DeleteCompany(ctx context.Context, id string) error
}

// PageStorage - interface for crawled page persistence
type PageStorage interface {
	SavePage(ctx context.Context, page *models.Page) error
	GetPage(ctx context.Context, id string) (*models.Page, error)
	// GetPageByURL looks up by (company, canonical URL), the unique key.
	GetPageByURL(ctx context.Context, companyID, url string) (*models.Page, error)
	ListPagesByCompany(ctx context.Context, companyID string) ([]*models.Page, error)
	ListPagesByType(ctx context.Context, companyID string, pageType models.PageType) ([]*models.Page, error)
	CountPagesByCompany(ctx context.Context, companyID string) (int, error)
	DeletePagesByCompany(ctx context.Context, companyID string) error
}

// EntityStorage - interface for extracted entity persistence
type EntityStorage interface {
	SaveEntity(ctx context.Context, entity *models.Entity) error
	SaveEntities(ctx context.Context, entities []*models.Entity) error
	ListEntitiesByCompany(ctx context.Context, companyID string) ([]*models.Entity, error)
	ListEntitiesByType(ctx context.Context, companyID string, entityType models.EntityType) ([]*models.Entity, error)
	CountEntitiesByCompany(ctx context.Context, companyID string) (int, error)
	// ReplaceEntities deletes the company's entities and inserts the merged
	// set in their place (dedup persistence policy: replace-in-place).
	ReplaceEntities(ctx context.Context, companyID string, entities []*models.Entity) error
	DeleteEntitiesByCompany(ctx context.Context, companyID string) error
}

// SessionStorage - interface for crawl session persistence
type SessionStorage interface {
	SaveSession(ctx context.Context, session *models.CrawlSession) error
	GetSession(ctx context.Context, id string) (*models.CrawlSession, error)
	// GetActiveSession returns the company's single active session, or
	// ErrNotFound when none.
	GetActiveSession(ctx context.Context, companyID string) (*models.CrawlSession, error)
	// GetLatestSession returns the most recently started session.
	GetLatestSession(ctx context.Context, companyID string) (*models.CrawlSession, error)
	DeleteSessionsByCompany(ctx context.Context, companyID string) error
}

// AnalysisStorage - interface for versioned analysis persistence
type AnalysisStorage interface {
	// SaveAnalysis inserts a new version, evicting the oldest when the
	// per-company cap would be exceeded.
	SaveAnalysis(ctx context.Context, analysis *models.Analysis) error
	GetAnalysis(ctx context.Context, companyID string, version int) (*models.Analysis, error)
	GetLatestAnalysis(ctx context.Context, companyID string) (*models.Analysis, error)
	ListAnalysesByCompany(ctx context.Context, companyID string) ([]*models.Analysis, error)
	CountAnalysesByCompany(ctx context.Context, companyID string) (int, error)
	DeleteAnalysesByCompany(ctx context.Context, companyID string) error
}

// TokenUsageStorage - interface for token accounting persistence
type TokenUsageStorage interface {
	SaveTokenUsage(ctx context.Context, usage *models.TokenUsage) error
	ListTokenUsageByCompany(ctx context.Context, companyID string) ([]*models.TokenUsage, error)
	DeleteTokenUsageByCompany(ctx context.Context, companyID string) error
}

// BatchStorage - interface for batch job persistence
type BatchStorage interface {
	SaveBatch(ctx context.Context, batch *models.BatchJob) error
	GetBatch(ctx context.Context, id string) (*models.BatchJob, error)
	ListBatches(ctx context.Context) ([]*models.BatchJob, error)
	ListBatchesByStatus(ctx context.Context, status models.BatchStatus) ([]*models.BatchJob, error)
	DeleteBatch(ctx context.Context, id string) error
}

// StorageManager aggregates all storage interfaces behind one connection.
type StorageManager interface {
	CompanyStorage() CompanyStorage
	PageStorage() PageStorage
	EntityStorage() EntityStorage
	SessionStorage() SessionStorage
	AnalysisStorage() AnalysisStorage
	TokenUsageStorage() TokenUsageStorage
	BatchStorage() BatchStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
