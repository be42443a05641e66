package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// Service runs the extraction phase: structured extraction and NER over
// every crawled page, then deduplication, then a replace-in-place write
// of the merged entity set.
type Service struct {
	logger     arbor.ILogger
	config     *common.ExtractionConfig
	structured *StructuredExtractor
	ner        *NamedEntityExtractor
	dedup      *Deduplicator
	pages      interfaces.PageStorage
	entities   interfaces.EntityStorage
}

// NewService wires the extraction phase. The NER model may be nil, in
// which case only structured extraction runs.
func NewService(
	logger arbor.ILogger,
	config *common.ExtractionConfig,
	nerModel interfaces.NERModel,
	pages interfaces.PageStorage,
	entities interfaces.EntityStorage,
) *Service {
	s := &Service{
		logger:     logger,
		config:     config,
		structured: NewStructuredExtractor(config.ContextWindow, config.EnableTechStack, config.DefaultRegion),
		dedup:      NewDeduplicator(config.SimilarityCutoff),
		pages:      pages,
		entities:   entities,
	}
	if nerModel != nil {
		s.ner = NewNamedEntityExtractor(nerModel, config.MinConfidence, config.ContextWindow)
	}
	return s
}

// Run extracts entities for a company and persists the merged set,
// returning the entity count. Per-page NER failures are logged and
// skipped; extraction succeeds with whatever the remaining pages yield.
func (s *Service) Run(ctx context.Context, company *models.Company) (int, error) {
	pages, err := s.pages.ListPagesByCompany(ctx, company.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load pages for extraction: %w", err)
	}

	var raw []*models.Entity
	for _, page := range pages {
		if page.Text == "" || page.Error != "" {
			continue
		}
		raw = append(raw, s.extractPage(ctx, company, page)...)
	}

	merged := s.dedup.Deduplicate(raw)
	if err := s.entities.ReplaceEntities(ctx, company.ID, merged); err != nil {
		return 0, fmt.Errorf("failed to store entities: %w", err)
	}

	s.logger.Info().
		Str("company_id", company.ID).
		Int("pages", len(pages)).
		Int("raw_entities", len(raw)).
		Int("merged_entities", len(merged)).
		Msg("Extraction phase finished")
	return len(merged), nil
}

func (s *Service) extractPage(ctx context.Context, company *models.Company, page *models.Page) []*models.Entity {
	var hits []Extracted

	extractTech := s.config.EnableTechStack || company.Config.ExtractTechStack
	if extractTech != s.config.EnableTechStack {
		// Per-company override
		ex := NewStructuredExtractor(s.config.ContextWindow, extractTech, s.config.DefaultRegion)
		hits = append(hits, ex.Extract(page.Text)...)
	} else {
		hits = append(hits, s.structured.Extract(page.Text)...)
	}

	if s.ner != nil {
		nerHits, err := s.ner.Extract(ctx, page.Text)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", page.URL).Msg("NER failed for page, continuing")
		} else {
			hits = append(hits, nerHits...)
		}
	}

	entities := make([]*models.Entity, 0, len(hits))
	for _, hit := range hits {
		entities = append(entities, &models.Entity{
			ID:              common.NewEntityID(),
			CompanyID:       company.ID,
			Type:            hit.Type,
			Value:           hit.Value,
			NormalizedValue: hit.NormalizedValue,
			Context:         hit.Context,
			SourceURL:       page.URL,
			Confidence:      hit.Confidence,
			Extra:           hit.Extra,
			CreatedAt:       time.Now(),
		})
	}
	return entities
}
