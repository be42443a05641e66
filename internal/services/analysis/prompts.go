package analysis

import (
	"fmt"
	"strings"
)

// sectionSpec defines one entry of the fixed section plan.
type sectionSpec struct {
	ID    string
	Title string
	// usesPriorResults sections receive the concatenated earlier sections
	// in their prompt instead of only raw context.
	usesPriorResults bool
	instructions     string
}

// sectionPlan is the fixed, ordered synthesis plan. Order matters:
// key_insights and executive_summary consume the sections before them.
var sectionPlan = []sectionSpec{
	{
		ID:    "company_overview",
		Title: "Company Overview",
		instructions: "Write a concise overview of the company: what it does, " +
			"when it was founded, where it is based, and its scale. " +
			"Stick to facts present in the context.",
	},
	{
		ID:    "business_model",
		Title: "Business Model",
		instructions: "Describe how the company makes money: products or services " +
			"sold, pricing signals, target customers, and sales channels.",
	},
	{
		ID:    "team_leadership",
		Title: "Team & Leadership",
		instructions: "Summarize the leadership team and notable people: names, " +
			"roles, and backgrounds where stated. Note team size signals from " +
			"careers pages.",
	},
	{
		ID:    "market_position",
		Title: "Market Position",
		instructions: "Assess the company's market: named competitors, partners, " +
			"investors, and customer segments. Distinguish claims from evidence.",
	},
	{
		ID:    "technology",
		Title: "Technology",
		instructions: "Describe the company's technology: platform capabilities, " +
			"detected tech stack, integrations, and engineering signals.",
	},
	{
		ID:               "key_insights",
		Title:            "Key Insights",
		usesPriorResults: true,
		instructions: "From the analysis so far, list the five to eight most " +
			"important takeaways as bullet points. Prioritize non-obvious " +
			"findings over restated facts.",
	},
	{
		ID:    "red_flags",
		Title: "Red Flags",
		instructions: "List concerns a diligence reviewer should investigate: " +
			"inconsistencies, missing information, stale content, or risky " +
			"claims. Say 'none identified' if the context shows none.",
	},
	{
		ID:               "executive_summary",
		Title:            "Executive Summary",
		usesPriorResults: true,
		instructions: "Write a three-paragraph executive summary of the full " +
			"analysis, suitable as the opening of a research report.",
	},
}

// requiredSections must be present and non-empty for the analysis to
// count as successful.
var requiredSections = []string{"company_overview", "business_model", "executive_summary"}

// SectionContext is the prepared material a section prompt draws from.
type SectionContext struct {
	CompanyName   string
	SeedURL       string
	PageText      string
	TeamText      string
	CareersText   string
	EntityListing string
	PriorResults  string
}

const systemPrompt = "You are a company research analyst. Answer only from the " +
	"provided context; never invent facts. End your answer with a line " +
	"starting with SOURCES: listing the page URLs you drew from, comma separated, " +
	"when the context includes URLs."

// buildPrompt renders the user prompt for one section.
func buildPrompt(spec sectionSpec, sc *SectionContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Company: %s (%s)\n\n", sc.CompanyName, sc.SeedURL)
	fmt.Fprintf(&b, "Task: %s\n\n", spec.instructions)

	if spec.usesPriorResults && sc.PriorResults != "" {
		b.WriteString("Analysis so far:\n")
		b.WriteString(sc.PriorResults)
		b.WriteString("\n\n")
	}

	if sc.EntityListing != "" {
		b.WriteString("Extracted entities:\n")
		b.WriteString(sc.EntityListing)
		b.WriteString("\n\n")
	}

	switch spec.ID {
	case "team_leadership":
		if sc.TeamText != "" {
			b.WriteString("Team pages:\n")
			b.WriteString(sc.TeamText)
			b.WriteString("\n\n")
		}
		if sc.CareersText != "" {
			b.WriteString("Careers pages:\n")
			b.WriteString(sc.CareersText)
			b.WriteString("\n\n")
		}
	}

	if !spec.usesPriorResults {
		b.WriteString("Website content:\n")
		b.WriteString(sc.PageText)
		b.WriteString("\n")
	}
	return b.String()
}

// parseSources extracts up to maxSources URLs from a trailing SOURCES:
// line, returning the content with that line removed.
func parseSources(text string, maxSources int) (content string, sources []string) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToUpper(line), "SOURCES:") {
			break
		}
		raw := strings.TrimSpace(line[len("SOURCES:"):])
		for _, part := range strings.Split(raw, ",") {
			u := strings.TrimSpace(part)
			if u == "" {
				continue
			}
			sources = append(sources, u)
			if len(sources) >= maxSources {
				break
			}
		}
		lines = append(lines[:i], lines[i+1:]...)
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), sources
}
