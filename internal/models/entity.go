package models

import "time"

// EntityType is the domain taxonomy for extracted entities.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrg          EntityType = "org"
	EntityTypeLocation     EntityType = "location"
	EntityTypeProduct      EntityType = "product"
	EntityTypeDate         EntityType = "date"
	EntityTypeMoney        EntityType = "money"
	EntityTypeEmail        EntityType = "email"
	EntityTypePhone        EntityType = "phone"
	EntityTypeAddress      EntityType = "address"
	EntityTypeSocialHandle EntityType = "social_handle"
	EntityTypeTechStack    EntityType = "tech_stack"
	EntityTypeOther        EntityType = "other"
)

// Social platform labels carried by social_handle entities and consulted by
// the external-link follow config.
const (
	PlatformLinkedIn  = "linkedin"
	PlatformTwitter   = "twitter"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
	PlatformGitHub    = "github"
)

// Entity is an extracted fact about a company. Extra carries type-specific
// data (role for persons, relationship for orgs, platform for handles,
// category for tech stack) as a tagged-variant map keyed by EntityType.
type Entity struct {
	ID        string `json:"id" badgerhold:"key"`
	CompanyID string `json:"company_id" badgerhold:"index"`

	Type            EntityType `json:"type" badgerhold:"index"`
	Value           string     `json:"value"`
	NormalizedValue string     `json:"normalized_value,omitempty"`
	Context         string     `json:"context,omitempty"`
	SourceURL       string     `json:"source_url,omitempty"`
	Confidence      float64    `json:"confidence"`

	// Merge bookkeeping, populated by the deduplicator.
	SourceURLs   []string `json:"source_urls,omitempty"`
	Contexts     []string `json:"contexts,omitempty"`
	MentionCount int      `json:"mention_count,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ExtraString returns a string field from Extra, or "" when absent.
func (e *Entity) ExtraString(key string) string {
	if e.Extra == nil {
		return ""
	}
	if v, ok := e.Extra[key].(string); ok {
		return v
	}
	return ""
}

// ExtraStrings returns a string-slice field from Extra, tolerating the
// []interface{} shape JSON round-trips produce.
func (e *Entity) ExtraStrings(key string) []string {
	if e.Extra == nil {
		return nil
	}
	switch v := e.Extra[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
