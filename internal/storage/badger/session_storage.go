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

// SessionStorage implements interfaces.SessionStorage for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) *SessionStorage {
	return &SessionStorage{db: db, logger: logger}
}

// SaveSession upserts a session, refreshing UpdatedAt. Opening a new active
// session closes any previous active session for the company so the
// one-active-session invariant holds.
func (s *SessionStorage) SaveSession(ctx context.Context, session *models.CrawlSession) error {
	session.UpdatedAt = time.Now()

	if session.Status == models.SessionStatusActive {
		existing, err := s.GetActiveSession(ctx, session.CompanyID)
		if err == nil && existing.ID != session.ID {
			now := time.Now()
			existing.Status = models.SessionStatusFailed
			existing.Error = "superseded by new crawl session"
			existing.EndedAt = &now
			if err := s.db.Store().Upsert(existing.ID, existing); err != nil {
				return fmt.Errorf("failed to close superseded session: %w", err)
			}
			s.logger.Warn().
				Str("company_id", session.CompanyID).
				Str("superseded_session", existing.ID).
				Msg("Closed superseded active crawl session")
		}
	}

	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SessionStorage) GetSession(ctx context.Context, id string) (*models.CrawlSession, error) {
	var session models.CrawlSession
	err := s.db.Store().Get(id, &session)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// GetActiveSession returns the company's active session, or ErrNotFound.
func (s *SessionStorage) GetActiveSession(ctx context.Context, companyID string) (*models.CrawlSession, error) {
	var sessions []*models.CrawlSession
	err := s.db.Store().Find(&sessions, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID").And("Status").Eq(models.SessionStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return sessions[0], nil
}

// GetLatestSession returns the company's most recently started session.
func (s *SessionStorage) GetLatestSession(ctx context.Context, companyID string) (*models.CrawlSession, error) {
	var sessions []*models.CrawlSession
	err := s.db.Store().Find(&sessions, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID").SortBy("StartedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to find latest session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return sessions[0], nil
}

// DeleteSessionsByCompany removes all sessions for a company.
func (s *SessionStorage) DeleteSessionsByCompany(ctx context.Context, companyID string) error {
	err := s.db.Store().DeleteMatching(&models.CrawlSession{}, badgerhold.Where("CompanyID").Eq(companyID).Index("CompanyID"))
	if err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
