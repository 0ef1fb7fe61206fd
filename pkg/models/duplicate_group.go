package models

type MatchType string

const (
	MatchTypePhone   MatchType = "phone"
	MatchTypeHandle  MatchType = "handle"
	MatchTypeCompany MatchType = "company"
	MatchTypeFuzzy   MatchType = "fuzzy"
)

// DuplicateGroup is a computed, never persisted, set of leads believed to be one entity.
type DuplicateGroup struct {
	ID                string    `json:"id"`
	MatchType         MatchType `json:"match_type"`
	Confidence        float64   `json:"confidence"`
	Leads             []Lead    `json:"leads"`
	SuggestedMasterID string    `json:"suggested_master_id"`
}

func (g *DuplicateGroup) LeadIDs() []string {
	ids := make([]string, len(g.Leads))
	for i, l := range g.Leads {
		ids[i] = l.ID
	}
	return ids
}
