package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// PageStorage implements interfaces.PageStorage for Badger
type PageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPageStorage creates a new PageStorage instance
func NewPageStorage(db *BadgerDB, logger arbor.ILogger) *PageStorage {
	return &PageStorage{db: db, logger: logger}
}

// SavePage upserts a page. Callers canonicalize URLs before insert; when a
// page with the same (company, URL) exists its row is reused so the unique
// key holds.
func (s *PageStorage) SavePage(ctx context.Context, page *models.Page) error {
	existing, err := s.GetPageByURL(ctx, page.CompanyID, page.URL)
	if err == nil {
		page.ID = existing.ID
	} else if err != interfaces.ErrNotFound {
		return err
	}

	if err := s.db.Store().Upsert(page.ID, page); err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	return nil
}

// GetPage retrieves a page by ID.
func (s *PageStorage) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var page models.Page
	err := s.db.Store().Get(id, &page)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

// GetPageByURL looks up a page by its unique (company, canonical URL) key.
func (s *PageStorage) GetPageByURL(ctx context.Context, companyID, url string) (*models.Page, error) {
	var pages []*models.Page
	err := s.db.Store().Find(&pages, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID").And("URL").Eq(url))
	if err != nil {
		return nil, fmt.Errorf("failed to look up page by URL: %w", err)
	}
	if len(pages) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return pages[0], nil
}

// ListPagesByCompany returns a company's pages ordered by crawl time.
func (s *PageStorage) ListPagesByCompany(ctx context.Context, companyID string) ([]*models.Page, error) {
	var pages []*models.Page
	err := s.db.Store().Find(&pages, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID").SortBy("CrawledAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	return pages, nil
}

// ListPagesByType returns a company's pages of one type.
func (s *PageStorage) ListPagesByType(ctx context.Context, companyID string, pageType models.PageType) ([]*models.Page, error) {
	var pages []*models.Page
	err := s.db.Store().Find(&pages, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID").And("PageType").Eq(pageType))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages by type: %w", err)
	}
	return pages, nil
}

// CountPagesByCompany counts a company's pages.
func (s *PageStorage) CountPagesByCompany(ctx context.Context, companyID string) (int, error) {
	count, err := s.db.Store().Count(&models.Page{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return int(count), nil
}

// DeletePagesByCompany removes all pages for a company.
func (s *PageStorage) DeletePagesByCompany(ctx context.Context, companyID string) error {
	err := s.db.Store().DeleteMatching(&models.Page{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	return nil
}
