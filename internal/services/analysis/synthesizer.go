package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// defaultSectionConfidence is carried by sections the LLM produced
// without an explicit confidence signal.
const defaultSectionConfidence = 0.8

// Synthesizer walks the fixed section plan against prepared company
// context, invoking the LLM once per section and assembling a versioned
// Analysis. Individual section failures degrade the result instead of
// aborting it.
type Synthesizer struct {
	logger   arbor.ILogger
	config   *common.AnalysisConfig
	llm      interfaces.LLMService
	tracker  *TokenTracker
	pages    interfaces.PageStorage
	entities interfaces.EntityStorage
	analyses interfaces.AnalysisStorage
	events   interfaces.EventService
}

// NewSynthesizer wires the analysis phase.
func NewSynthesizer(
	logger arbor.ILogger,
	config *common.AnalysisConfig,
	llm interfaces.LLMService,
	tracker *TokenTracker,
	pages interfaces.PageStorage,
	entities interfaces.EntityStorage,
	analyses interfaces.AnalysisStorage,
	events interfaces.EventService,
) *Synthesizer {
	return &Synthesizer{
		logger:   logger,
		config:   config,
		llm:      llm,
		tracker:  tracker,
		pages:    pages,
		entities: entities,
		analyses: analyses,
		events:   events,
	}
}

// Result reports one synthesis run.
type Result struct {
	Analysis   *models.Analysis
	Successful bool
}

// Synthesize runs the full section plan for a company and persists the
// resulting analysis at version existing_count + 1 (storage evicts the
// oldest past the retention cap).
func (s *Synthesizer) Synthesize(ctx context.Context, company *models.Company) (*Result, error) {
	sc, err := s.prepareContext(ctx, company)
	if err != nil {
		return nil, err
	}

	analysis := &models.Analysis{
		ID:        common.NewAnalysisID(),
		CompanyID: company.ID,
		CreatedAt: time.Now(),
	}

	var priorParts []string
	for _, spec := range sectionPlan {
		sc.PriorResults = strings.Join(priorParts, "\n\n")
		section := s.synthesizeSection(ctx, company, spec, sc, analysis)
		analysis.Sections = append(analysis.Sections, section)

		if !section.Failed && section.Content != "" {
			priorParts = append(priorParts, fmt.Sprintf("## %s\n%s", spec.Title, section.Content))
		}

		_ = s.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventAnalysisSection,
			Payload: map[string]interface{}{
				"company_id": company.ID,
				"section":    spec.ID,
				"failed":     section.Failed,
			},
		})
	}

	if exec := analysis.Section("executive_summary"); exec != nil {
		analysis.ExecutiveSummary = exec.Content
	}
	analysis.Tokens.CostUSD = s.tracker.Cost(analysis.Tokens.InputTokens, analysis.Tokens.OutputTokens)

	existing, err := s.analyses.ListAnalysesByCompany(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	maxVersion := 0
	for _, a := range existing {
		if a.Version > maxVersion {
			maxVersion = a.Version
		}
	}
	analysis.Version = maxVersion + 1

	if err := s.analyses.SaveAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	result := &Result{Analysis: analysis, Successful: s.successful(analysis)}
	s.logger.Info().
		Str("company_id", company.ID).
		Int("version", analysis.Version).
		Bool("successful", result.Successful).
		Int("total_tokens", analysis.Tokens.TotalTokens).
		Msg("Analysis synthesized")
	return result, nil
}

func (s *Synthesizer) synthesizeSection(ctx context.Context, company *models.Company, spec sectionSpec, sc *SectionContext, analysis *models.Analysis) models.AnalysisSection {
	section := models.AnalysisSection{
		ID:         spec.ID,
		Title:      spec.Title,
		Confidence: defaultSectionConfidence,
	}

	completion, err := s.llm.Complete(ctx, []interfaces.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(spec, sc)},
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("company_id", company.ID).
			Str("section", spec.ID).
			Msg("Section synthesis failed")
		section.Failed = true
		section.Error = err.Error()
		section.Confidence = 0
		return section
	}

	s.tracker.Record(ctx, company.ID, models.CallTypeAnalysis, spec.ID, completion.InputTokens, completion.OutputTokens)
	analysis.Tokens.InputTokens += completion.InputTokens
	analysis.Tokens.OutputTokens += completion.OutputTokens
	analysis.Tokens.TotalTokens = analysis.Tokens.InputTokens + analysis.Tokens.OutputTokens

	content, sources := parseSources(completion.Text, s.maxSources())
	section.Content = content
	section.Sources = sources
	return section
}

// successful applies the completeness rule: overview, business model,
// and executive summary must all be present and non-empty.
func (s *Synthesizer) successful(analysis *models.Analysis) bool {
	for _, id := range requiredSections {
		section := analysis.Section(id)
		if section == nil || section.Failed || strings.TrimSpace(section.Content) == "" {
			return false
		}
	}
	return true
}

// prepareContext aggregates crawled text and entities under the config
// caps: all-pages text at MaxContextChars, team and careers subsets at
// MaxSubsetChars each, entity listings at MaxEntityListing per type.
func (s *Synthesizer) prepareContext(ctx context.Context, company *models.Company) (*SectionContext, error) {
	pages, err := s.pages.ListPagesByCompany(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages for analysis: %w", err)
	}
	entities, err := s.entities.ListEntitiesByCompany(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities for analysis: %w", err)
	}

	// High-priority pages first so truncation drops the least valuable text
	sort.SliceStable(pages, func(i, j int) bool {
		return models.PriorityFor(pages[i].PageType) < models.PriorityFor(pages[j].PageType)
	})

	var all, team, careers strings.Builder
	for _, page := range pages {
		if page.Text == "" {
			continue
		}
		block := fmt.Sprintf("[%s]\n%s\n\n", page.URL, page.Text)
		appendCapped(&all, block, s.maxContextChars())
		switch page.PageType {
		case models.PageTypeTeam:
			appendCapped(&team, block, s.maxSubsetChars())
		case models.PageTypeCareers:
			appendCapped(&careers, block, s.maxSubsetChars())
		}
	}

	return &SectionContext{
		CompanyName:   company.Name,
		SeedURL:       company.SeedURL,
		PageText:      all.String(),
		TeamText:      team.String(),
		CareersText:   careers.String(),
		EntityListing: s.entityListing(entities),
	}, nil
}

// entityListing renders entities grouped by type, capped per type.
func (s *Synthesizer) entityListing(entities []*models.Entity) string {
	byType := make(map[models.EntityType][]*models.Entity)
	for _, e := range entities {
		byType[e.Type] = append(byType[e.Type], e)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		group := byType[models.EntityType(t)]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Confidence > group[j].Confidence
		})
		if len(group) > s.maxEntityListing() {
			group = group[:s.maxEntityListing()]
		}
		fmt.Fprintf(&b, "%s:\n", t)
		for _, e := range group {
			fmt.Fprintf(&b, "- %s", e.Value)
			if role := e.ExtraString("role"); role != "" {
				fmt.Fprintf(&b, " (%s)", role)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func appendCapped(b *strings.Builder, block string, cap int) {
	if b.Len() >= cap {
		return
	}
	remaining := cap - b.Len()
	if len(block) > remaining {
		block = block[:remaining]
	}
	b.WriteString(block)
}

func (s *Synthesizer) maxContextChars() int {
	if s.config.MaxContextChars > 0 {
		return s.config.MaxContextChars
	}
	return 50000
}

func (s *Synthesizer) maxSubsetChars() int {
	if s.config.MaxSubsetChars > 0 {
		return s.config.MaxSubsetChars
	}
	return 10000
}

func (s *Synthesizer) maxEntityListing() int {
	if s.config.MaxEntityListing > 0 {
		return s.config.MaxEntityListing
	}
	return 50
}

func (s *Synthesizer) maxSources() int {
	if s.config.MaxSources > 0 {
		return s.config.MaxSources
	}
	return 10
}
