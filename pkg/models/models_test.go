package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportDefaults_Apply(t *testing.T) {
	tests := []struct {
		name     string
		defaults ImportDefaults
		in       Lead
		want     Lead
	}{
		{
			name:     "back-fills blanks",
			defaults: ImportDefaults{Source: "csv", DefaultCity: "Tampa", DefaultState: "FL", DefaultServiceType: "plumbing"},
			in:       Lead{CompanyName: "Acme"},
			want:     Lead{CompanyName: "Acme", City: "Tampa", State: "FL", ServiceType: "plumbing", Source: "csv"},
		},
		{
			name:     "keeps parsed location without override",
			defaults: ImportDefaults{Source: "csv", DefaultCity: "Tampa", DefaultState: "FL"},
			in:       Lead{CompanyName: "Acme", City: "Orlando", State: "FL", Source: "maps-import"},
			want:     Lead{CompanyName: "Acme", City: "Orlando", State: "FL", Source: "csv"},
		},
		{
			name:     "override forces location",
			defaults: ImportDefaults{Source: "csv", DefaultCity: "Dallas", DefaultState: "TX", OverrideLocation: true},
			in:       Lead{CompanyName: "Acme", City: "Austin", State: "TX"},
			want:     Lead{CompanyName: "Acme", City: "Dallas", State: "TX", Source: "csv"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.defaults.Apply(tt.in))
		})
	}
}

func TestImportDefaults_ForcedColumns(t *testing.T) {
	assert.Equal(t, []string{"source"}, ImportDefaults{Source: "csv", DefaultCity: "Dallas"}.ForcedColumns())
	assert.Equal(t, []string{"source", "city", "state"},
		ImportDefaults{Source: "csv", DefaultCity: "Dallas", DefaultState: "TX", OverrideLocation: true}.ForcedColumns())
	assert.Empty(t, ImportDefaults{}.ForcedColumns())
}

func TestScore_Rank(t *testing.T) {
	assert.Less(t, ScoreC.Rank(), ScoreB.Rank())
	assert.Less(t, ScoreA.Rank(), ScoreAPlus.Rank())
	assert.Equal(t, 0, Score("").Rank())
	assert.Equal(t, ScoreA, MaxScore(ScoreB, ScoreA))
	assert.Equal(t, ScoreA, MaxScore(ScoreA, ""))
	assert.False(t, Score("Z").Valid())
}

func TestDiffLeads(t *testing.T) {
	before := Lead{ID: "1", CompanyName: "Acme", City: "Tampa", ExternalSourceID: "x"}
	after := before
	after.Phone = "555-1111"
	after.ExternalSourceID = "y"

	assert.Equal(t, map[string]string{"phone": "555-1111"}, DiffLeads(&before, &after))
	assert.Empty(t, DiffLeads(&before, &before))
}

func TestLeadFields_RoundTripAccessors(t *testing.T) {
	var lead Lead
	for _, f := range LeadFields {
		f.Set(&lead, "v-"+f.Column)
	}
	for _, f := range LeadFields {
		assert.Equal(t, "v-"+f.Column, f.Get(&lead), f.Column)
	}

	_, ok := FindLeadField("phone")
	assert.True(t, ok)
	_, ok = FindLeadField("id")
	assert.False(t, ok)
	assert.NotContains(t, MappableColumns(), "identity_key")
}

func TestPopulatedCount(t *testing.T) {
	lead := Lead{CompanyName: "Acme", Phone: "1", IdentityKey: "acme|tampa", ExternalSourceID: "x"}
	assert.Equal(t, 2, PopulatedCount(&lead))
}
