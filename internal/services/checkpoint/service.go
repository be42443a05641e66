package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// Service persists pipeline checkpoints into the company's crawl session.
// The checkpoint blob on the latest session is the single source of truth
// for resumption; every save replaces it whole.
type Service struct {
	logger   arbor.ILogger
	sessions interfaces.SessionStorage
}

// NewService creates the checkpoint service.
func NewService(logger arbor.ILogger, sessions interfaces.SessionStorage) *Service {
	return &Service{logger: logger, sessions: sessions}
}

// StartSession opens a new active session for a company, closing any
// session left active by a previous run.
func (s *Service) StartSession(ctx context.Context, companyID string) (*models.CrawlSession, error) {
	if prev, err := s.sessions.GetActiveSession(ctx, companyID); err == nil {
		now := time.Now()
		prev.Status = models.SessionStatusFailed
		prev.Error = "superseded by new session"
		prev.EndedAt = &now
		prev.UpdatedAt = now
		if err := s.sessions.SaveSession(ctx, prev); err != nil {
			return nil, fmt.Errorf("failed to close stale session: %w", err)
		}
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}

	session := &models.CrawlSession{
		ID:        common.NewSessionID(),
		CompanyID: companyID,
		Status:    models.SessionStatusActive,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info().Str("company_id", companyID).Str("session_id", session.ID).Msg("Crawl session started")
	return session, nil
}

// SaveCheckpoint writes a checkpoint into the company's latest session,
// replacing the previous blob. Satisfies the crawl worker's sink contract.
func (s *Service) SaveCheckpoint(ctx context.Context, companyID string, cp *models.CrawlCheckpoint) error {
	session, err := s.sessions.GetLatestSession(ctx, companyID)
	if errors.Is(err, interfaces.ErrNotFound) {
		session, err = s.StartSession(ctx, companyID)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve session for checkpoint: %w", err)
	}

	cp.LastCheckpointTime = time.Now()
	blob, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	session.Checkpoint = blob
	session.PagesCrawled = len(cp.PagesVisited)
	session.PagesQueued = len(cp.PagesQueued)
	session.MaxDepthReached = cp.CurrentDepth
	session.ExternalLinksFollowed = len(cp.ExternalLinksFound)
	session.UpdatedAt = time.Now()

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	s.logger.Debug().
		Str("company_id", companyID).
		Int("pages_visited", len(cp.PagesVisited)).
		Int("pages_queued", len(cp.PagesQueued)).
		Msg("Checkpoint saved")
	return nil
}

// Load returns the company's latest checkpoint. A company with no session
// or an unreadable blob gets a fresh checkpoint; loading never fails the
// caller into an unrecoverable state.
func (s *Service) Load(ctx context.Context, companyID string) (*models.CrawlCheckpoint, error) {
	session, err := s.sessions.GetLatestSession(ctx, companyID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.NewCrawlCheckpoint(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return models.UnmarshalCrawlCheckpoint(session.Checkpoint), nil
}

// CloseSession finalizes the company's latest session with the given
// status. A missing session is not an error.
func (s *Service) CloseSession(ctx context.Context, companyID string, status models.SessionStatus, reason string) error {
	session, err := s.sessions.GetLatestSession(ctx, companyID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	now := time.Now()
	session.Status = status
	session.Error = reason
	session.UpdatedAt = now
	if status == models.SessionStatusCompleted || status == models.SessionStatusFailed {
		session.EndedAt = &now
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}
