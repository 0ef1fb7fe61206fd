package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func existingLeads() []models.Lead {
	return []models.Lead{
		{ID: "phone", CompanyName: "Bright Electric", City: "Orlando", Phone: "(813) 555-2222"},
		{ID: "handle", CompanyName: "Cool Air", City: "Miami", InstagramURL: "https://instagram.com/CoolAirFL"},
		{ID: "company", CompanyName: "Acme Plumbing", City: "Tampa"},
		{ID: "fuzzy", CompanyName: "Sunshine Roofing Services", City: "Naples"},
	}
}

func TestEngine_Match(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	idx := NewIndex(existingLeads())

	tests := []struct {
		name       string
		lead       models.Lead
		wantID     string
		wantType   models.MatchType
		confidence float64
	}{
		{
			name:       "phone wins over company",
			lead:       models.Lead{CompanyName: "Acme Plumbing", City: "Tampa", Phone: "+1 813-555-2222"},
			wantID:     "phone",
			wantType:   models.MatchTypePhone,
			confidence: 1.0,
		},
		{
			name:       "handle is case insensitive",
			lead:       models.Lead{CompanyName: "Different", City: "Elsewhere", InstagramURL: "@coolairfl"},
			wantID:     "handle",
			wantType:   models.MatchTypeHandle,
			confidence: 0.95,
		},
		{
			name:       "identity key",
			lead:       models.Lead{CompanyName: "ACME PLUMBING LLC", City: "tampa"},
			wantID:     "company",
			wantType:   models.MatchTypeCompany,
			confidence: 0.85,
		},
		{
			name:     "fuzzy company in same city",
			lead:     models.Lead{CompanyName: "Sunshine Roofing Service", City: "Naples"},
			wantID:   "fuzzy",
			wantType: models.MatchTypeFuzzy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := engine.Match(&tt.lead, idx)
			require.NotNil(t, m)
			assert.Equal(t, tt.wantID, m.Lead.ID)
			assert.Equal(t, tt.wantType, m.Type)
			if tt.confidence > 0 {
				assert.Equal(t, tt.confidence, m.Confidence)
			} else {
				assert.GreaterOrEqual(t, m.Confidence, 0.6)
				assert.Less(t, m.Confidence, 1.0)
			}
		})
	}
}

func TestEngine_NoMatch(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	idx := NewIndex(existingLeads())

	tests := []struct {
		name string
		lead models.Lead
	}{
		{"fuzzy needs the same city", models.Lead{CompanyName: "Sunshine Roofing Service", City: "Tampa"}},
		{"fuzzy below threshold", models.Lead{CompanyName: "Zebra Pools", City: "Naples"}},
		{"empty identity never matches", models.Lead{CompanyName: "", City: ""}},
		{"self is not a match", models.Lead{ID: "company", CompanyName: "Acme Plumbing", City: "Tampa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, engine.Match(&tt.lead, idx))
		})
	}
}

func TestEngine_MatchExactSkipsFuzzy(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	idx := NewIndex(existingLeads())

	lead := models.Lead{CompanyName: "Sunshine Roofing Service", City: "Naples"}
	assert.NotNil(t, engine.Match(&lead, idx))
	assert.Nil(t, engine.MatchExact(&lead, idx))
}

func TestEngine_FuzzyDisabled(t *testing.T) {
	engine := NewEngine(EngineConfig{EnableFuzzy: false})
	idx := NewIndex(existingLeads())

	lead := models.Lead{CompanyName: "Sunshine Roofing Service", City: "Naples"}
	assert.Nil(t, engine.Match(&lead, idx))
}

func TestIndex_AddRefreshesAndFirstWins(t *testing.T) {
	idx := NewIndex(nil)
	idx.Add(&models.Lead{ID: "a", CompanyName: "Acme", City: "Tampa"})
	idx.Add(&models.Lead{ID: "b", CompanyName: "Acme", City: "Tampa"})
	assert.Equal(t, 2, idx.Len())

	engine := NewEngine(DefaultConfig())
	m := engine.MatchExact(&models.Lead{CompanyName: "acme", City: "tampa"}, idx)
	require.NotNil(t, m)
	assert.Equal(t, "a", m.Lead.ID)

	idx.Add(&models.Lead{ID: "a", CompanyName: "Acme", City: "Tampa", Phone: "555-1111"})
	assert.Equal(t, 2, idx.Len())
	got, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, "555-1111", got.Phone)

	m = engine.MatchExact(&models.Lead{CompanyName: "Other", City: "Miami", Phone: "5551111"}, idx)
	require.NotNil(t, m)
	assert.Equal(t, "a", m.Lead.ID)
	assert.Equal(t, []string{"a", "b"}, []string{idx.Leads()[0].ID, idx.Leads()[1].ID})
}

func TestIndex_StoresCopies(t *testing.T) {
	lead := models.Lead{ID: "a", CompanyName: "Acme", City: "Tampa"}
	idx := NewIndex(nil)
	idx.Add(&lead)
	lead.CompanyName = "Changed"

	got, _ := idx.Get("a")
	assert.Equal(t, "Acme", got.CompanyName)
}

func TestScorer_Ratio(t *testing.T) {
	s := NewScorer()
	assert.Equal(t, 1.0, s.Ratio("acme", "acme"))
	assert.Equal(t, 0.0, s.Ratio("", ""))
	assert.InDelta(t, 0.75, s.Ratio("acme", "acne"), 0.0001)
	assert.InDelta(t, 0.0, s.Ratio("abc", "xyz"), 0.0001)
}
