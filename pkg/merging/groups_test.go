package merging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestFindDuplicateGroups(t *testing.T) {
	engine := matching.NewEngine(matching.DefaultConfig())
	leads := []models.Lead{
		{ID: "a1", CompanyName: "Acme Plumbing", City: "Tampa", CreatedAt: t0},
		{ID: "a2", CompanyName: "ACME PLUMBING LLC", City: "tampa", Phone: "555-1111", CreatedAt: t0.Add(time.Minute)},
		{ID: "a3", CompanyName: "Acme Plumbing & Drains", City: "Orlando", Phone: "(555) 1111", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "b1", CompanyName: "Bright Electric", City: "Miami", CreatedAt: t0},
		{ID: "c1", CompanyName: "Sunshine Roofing Services", City: "Naples", CreatedAt: t0},
		{ID: "c2", CompanyName: "Sunshine Roofing Service", City: "Naples", CreatedAt: t0.Add(time.Minute)},
	}

	groups := FindDuplicateGroups(engine, leads)
	require.Len(t, groups, 2)

	roofing := groups[0]
	assert.ElementsMatch(t, []string{"c1", "c2"}, roofing.LeadIDs())
	assert.Equal(t, models.MatchTypeFuzzy, roofing.MatchType)
	assert.Greater(t, roofing.Confidence, 0.9)
	assert.Less(t, roofing.Confidence, 1.0)

	acme := groups[1]
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, acme.LeadIDs())
	assert.Equal(t, models.MatchTypeCompany, acme.MatchType)
	assert.Equal(t, matching.ConfidenceCompany, acme.Confidence)
	assert.Equal(t, "a2", acme.SuggestedMasterID)

	again := FindDuplicateGroups(engine, []models.Lead{leads[5], leads[4], leads[3], leads[2], leads[1], leads[0]})
	require.Len(t, again, 2)
	assert.Equal(t, roofing.ID, again[0].ID)
	assert.Equal(t, acme.ID, again[1].ID)
}

func TestFindDuplicateGroups_NoDuplicates(t *testing.T) {
	engine := matching.NewEngine(matching.DefaultConfig())
	groups := FindDuplicateGroups(engine, []models.Lead{
		{ID: "a", CompanyName: "Acme", City: "Tampa"},
		{ID: "b", CompanyName: "Zebra Pools", City: "Tampa"},
		{ID: "c"},
		{ID: "d"},
	})
	assert.Empty(t, groups)
}
