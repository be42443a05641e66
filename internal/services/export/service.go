package export

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// Supported export formats.
const (
	FormatMarkdown = "markdown"
	FormatWord     = "word"
	FormatPDF      = "pdf"
	FormatJSON     = "json"
)

var ErrUnknownFormat = fmt.Errorf("unknown export format")

// Artifact is a rendered report ready to be served as a download.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service renders company analyses into downloadable report formats.
type Service struct {
	logger    arbor.ILogger
	companies interfaces.CompanyStorage
	analyses  interfaces.AnalysisStorage
}

func NewService(logger arbor.ILogger, companies interfaces.CompanyStorage, analyses interfaces.AnalysisStorage) *Service {
	return &Service{
		logger:    logger,
		companies: companies,
		analyses:  analyses,
	}
}

// Export renders the company's analysis in the requested format. Version 0
// selects the latest analysis.
func (s *Service) Export(ctx context.Context, companyID, format string, version int) (*Artifact, error) {
	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	var analysis *models.Analysis
	if version > 0 {
		analysis, err = s.analyses.GetAnalysis(ctx, companyID, version)
	} else {
		analysis, err = s.analyses.GetLatestAnalysis(ctx, companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}

	base := fmt.Sprintf("%s-analysis-v%d", sanitizeFilename(company.Name), analysis.Version)

	var artifact *Artifact
	switch format {
	case FormatMarkdown:
		artifact = &Artifact{
			Filename:    base + ".md",
			ContentType: "text/markdown; charset=utf-8",
			Data:        []byte(RenderMarkdown(company, analysis)),
		}
	case FormatWord:
		data, renderErr := renderWord(company, analysis)
		if renderErr != nil {
			return nil, renderErr
		}
		artifact = &Artifact{
			Filename:    base + ".doc",
			ContentType: "application/msword",
			Data:        data,
		}
	case FormatPDF:
		data, renderErr := renderPDF(RenderMarkdown(company, analysis))
		if renderErr != nil {
			return nil, renderErr
		}
		artifact = &Artifact{
			Filename:    base + ".pdf",
			ContentType: "application/pdf",
			Data:        data,
		}
	case FormatJSON:
		data, marshalErr := json.MarshalIndent(analysis, "", "  ")
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal analysis: %w", marshalErr)
		}
		artifact = &Artifact{
			Filename:    base + ".json",
			ContentType: "application/json",
			Data:        data,
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	s.logger.Info().
		Str("company_id", companyID).
		Str("format", format).
		Int("version", analysis.Version).
		Int("bytes", len(artifact.Data)).
		Msg("Analysis exported")
	return artifact, nil
}

// RenderMarkdown builds the canonical markdown report that the word and pdf
// renderers derive from.
func RenderMarkdown(company *models.Company, analysis *models.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", company.Name)
	fmt.Fprintf(&b, "- Seed URL: %s\n", company.SeedURL)
	if company.Industry != "" {
		fmt.Fprintf(&b, "- Industry: %s\n", company.Industry)
	}
	fmt.Fprintf(&b, "- Analysis version: %d\n", analysis.Version)
	fmt.Fprintf(&b, "- Generated: %s\n\n", analysis.CreatedAt.UTC().Format(time.RFC3339))

	for _, section := range analysis.Sections {
		fmt.Fprintf(&b, "## %s\n\n", section.Title)
		if section.Failed {
			fmt.Fprintf(&b, "*Section unavailable: %s*\n\n", section.Error)
			continue
		}
		b.WriteString(strings.TrimSpace(section.Content))
		b.WriteString("\n\n")
		if len(section.Sources) > 0 {
			b.WriteString("Sources:\n")
			for _, src := range section.Sources {
				fmt.Fprintf(&b, "- %s\n", src)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "---\n\nTokens: %d in / %d out, estimated cost $%.4f\n",
		analysis.Tokens.InputTokens, analysis.Tokens.OutputTokens, analysis.Tokens.CostUSD)
	return b.String()
}

var filenameUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// sanitizeFilename reduces a company name to a safe download filename stem.
func sanitizeFilename(name string) string {
	stem := strings.ToLower(strings.TrimSpace(name))
	stem = filenameUnsafe.ReplaceAllString(stem, "-")
	stem = strings.Trim(stem, "-.")
	if stem == "" {
		return "company"
	}
	if len(stem) > 64 {
		stem = stem[:64]
	}
	return stem
}
