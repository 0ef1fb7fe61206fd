package models

import "sort"

// MergePolicy says how a lead attribute is fused when two leads are merged.
type MergePolicy string

const (
	// MergePolicyFillEmpty takes the incoming value only when the master value is empty.
	MergePolicyFillEmpty MergePolicy = "fill_empty"
	// MergePolicyNotes concatenates both sides with a provenance tag.
	MergePolicyNotes MergePolicy = "notes"
	// MergePolicyScore follows the monotonic score lattice.
	MergePolicyScore MergePolicy = "score"
	// MergePolicyKeepMaster always keeps the master value.
	MergePolicyKeepMaster MergePolicy = "keep_master"
	// MergePolicyDerived is recomputed from other attributes after a merge.
	MergePolicyDerived MergePolicy = "derived"
)

// LeadField describes one string attribute of a lead. The LeadFields table is the
// single place that lists lead attributes for merging, change detection, field mapping
// and persistence.
type LeadField struct {
	Column   string
	Policy   MergePolicy
	Mappable bool
	Get      func(*Lead) string
	Set      func(*Lead, string)
}

var LeadFields = []LeadField{
	{"company_name", MergePolicyFillEmpty, true, func(l *Lead) string { return l.CompanyName }, func(l *Lead, v string) { l.CompanyName = v }},
	{"city", MergePolicyFillEmpty, true, func(l *Lead) string { return l.City }, func(l *Lead, v string) { l.City = v }},
	{"state", MergePolicyFillEmpty, true, func(l *Lead) string { return l.State }, func(l *Lead, v string) { l.State = v }},
	{"address", MergePolicyFillEmpty, true, func(l *Lead) string { return l.Address }, func(l *Lead, v string) { l.Address = v }},
	{"phone", MergePolicyFillEmpty, true, func(l *Lead) string { return l.Phone }, func(l *Lead, v string) { l.Phone = v }},
	{"email", MergePolicyFillEmpty, true, func(l *Lead) string { return l.Email }, func(l *Lead, v string) { l.Email = v }},
	{"secondary_email", MergePolicyFillEmpty, true, func(l *Lead) string { return l.SecondaryEmail }, func(l *Lead, v string) { l.SecondaryEmail = v }},
	{"website", MergePolicyFillEmpty, true, func(l *Lead) string { return l.Website }, func(l *Lead, v string) { l.Website = v }},
	{"facebook_url", MergePolicyFillEmpty, true, func(l *Lead) string { return l.FacebookURL }, func(l *Lead, v string) { l.FacebookURL = v }},
	{"instagram_url", MergePolicyFillEmpty, true, func(l *Lead) string { return l.InstagramURL }, func(l *Lead, v string) { l.InstagramURL = v }},
	{"linkedin_url", MergePolicyFillEmpty, true, func(l *Lead) string { return l.LinkedInURL }, func(l *Lead, v string) { l.LinkedInURL = v }},
	{"service_type", MergePolicyFillEmpty, true, func(l *Lead) string { return l.ServiceType }, func(l *Lead, v string) { l.ServiceType = v }},
	{"source", MergePolicyFillEmpty, true, func(l *Lead) string { return l.Source }, func(l *Lead, v string) { l.Source = v }},
	{"notes", MergePolicyNotes, true, func(l *Lead) string { return l.Notes }, func(l *Lead, v string) { l.Notes = v }},
	{"score", MergePolicyScore, true, func(l *Lead) string { return string(l.Score) }, func(l *Lead, v string) { l.Score = Score(v) }},
	{"external_source_id", MergePolicyKeepMaster, true, func(l *Lead) string { return l.ExternalSourceID }, func(l *Lead, v string) { l.ExternalSourceID = v }},
	{"identity_key", MergePolicyDerived, false, func(l *Lead) string { return l.IdentityKey }, func(l *Lead, v string) { l.IdentityKey = v }},
	{"phone_digits", MergePolicyDerived, false, func(l *Lead) string { return l.PhoneDigits }, func(l *Lead, v string) { l.PhoneDigits = v }},
}

var leadFieldsByColumn = func() map[string]LeadField {
	m := make(map[string]LeadField, len(LeadFields))
	for _, f := range LeadFields {
		m[f.Column] = f
	}
	return m
}()

// FindLeadField looks up a lead attribute by column name.
func FindLeadField(column string) (LeadField, bool) {
	f, ok := leadFieldsByColumn[column]
	return f, ok
}

// MappableColumns returns the sorted columns a field mapping may target.
func MappableColumns() []string {
	columns := make([]string, 0, len(LeadFields))
	for _, f := range LeadFields {
		if f.Mappable {
			columns = append(columns, f.Column)
		}
	}
	sort.Strings(columns)
	return columns
}

// PopulatedCount counts the non-empty mergeable attributes of a lead.
func PopulatedCount(l *Lead) int {
	count := 0
	for _, f := range LeadFields {
		if f.Policy == MergePolicyDerived || f.Policy == MergePolicyKeepMaster {
			continue
		}
		if f.Get(l) != "" {
			count++
		}
	}
	return count
}

// DiffLeads returns the columns whose values differ between before and after, keyed
// by column with the after value.
func DiffLeads(before, after *Lead) map[string]string {
	changed := map[string]string{}
	for _, f := range LeadFields {
		if f.Policy == MergePolicyKeepMaster {
			continue
		}
		if v := f.Get(after); v != f.Get(before) {
			changed[f.Column] = v
		}
	}
	return changed
}
