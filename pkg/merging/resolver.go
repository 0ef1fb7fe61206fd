// Package merging fuses duplicate leads into a single master record.
package merging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

const (
	multiSourcePrefix = "[multi-source] "
	unknownSource     = "unknown"
)

// scoreCeiling is the highest score merging can reach on its own.
var scoreCeiling = models.ScoreAPlus

// MergeRecord folds incoming into master according to the lead field table.
// Populated master values are never replaced, so no data is lost.
func MergeRecord(master, incoming models.Lead) models.Lead {
	result := master

	for _, field := range models.LeadFields {
		switch field.Policy {
		case models.MergePolicyFillEmpty:
			if strings.TrimSpace(field.Get(&result)) == "" {
				if v := field.Get(&incoming); strings.TrimSpace(v) != "" {
					field.Set(&result, v)
				}
			}
		case models.MergePolicyKeepMaster:
			if field.Get(&result) == "" {
				field.Set(&result, field.Get(&incoming))
			}
		}
	}

	masterBody, sources := splitNotes(master.Notes)
	incomingBody, _ := splitNotes(incoming.Notes)
	body := mergeNotes(masterBody, incomingBody, incoming.Source)

	result.Score = models.MaxScore(master.Score, incoming.Score)
	sourcesChanged := false
	if introducesSource(master.Source, sources, incoming.Source) {
		if len(sources) == 0 {
			sources = append(sources, sourceLabel(master.Source))
		}
		sources = append(sources, incoming.Source)
		result.Score = upgrade(result.Score)
		sourcesChanged = true
	}
	if body != masterBody || sourcesChanged {
		result.Notes = joinNotes(body, sources)
	}

	if key := normalizers.IdentityKey(result.CompanyName, result.City); key != "" {
		result.IdentityKey = key
	}
	if digits := normalizers.NormalizePhone(result.Phone); digits != "" {
		result.PhoneDigits = digits
	}

	return result
}

// Merge fuses every lead into the one identified by masterID. When masterID is
// empty the suggested master is used. Members are folded oldest first.
func Merge(leads []models.Lead, masterID string) (models.Lead, error) {
	if len(leads) == 0 {
		return models.Lead{}, fmt.Errorf("no leads to merge")
	}
	if masterID == "" {
		masterID = SuggestMaster(leads)
	}

	var master *models.Lead
	others := make([]models.Lead, 0, len(leads)-1)
	for i := range leads {
		if leads[i].ID == masterID && master == nil {
			master = &leads[i]
			continue
		}
		others = append(others, leads[i])
	}
	if master == nil {
		return models.Lead{}, fmt.Errorf("master %s is not a member of the merge group", masterID)
	}

	sortByCreated(others)

	result := *master
	for _, other := range others {
		result = MergeRecord(result, other)
	}
	return result, nil
}

// SuggestMaster picks the lead with the most populated attributes, breaking ties
// by earliest creation and then by id.
func SuggestMaster(leads []models.Lead) string {
	if len(leads) == 0 {
		return ""
	}
	best := 0
	bestCount := models.PopulatedCount(&leads[0])
	for i := 1; i < len(leads); i++ {
		count := models.PopulatedCount(&leads[i])
		switch {
		case count > bestCount:
		case count == bestCount && leads[i].CreatedAt.Before(leads[best].CreatedAt):
		case count == bestCount && leads[i].CreatedAt.Equal(leads[best].CreatedAt) && leads[i].ID < leads[best].ID:
		default:
			continue
		}
		best, bestCount = i, count
	}
	return leads[best].ID
}

func sortByCreated(leads []models.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		if !leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].CreatedAt.Before(leads[j].CreatedAt)
		}
		return leads[i].ID < leads[j].ID
	})
}

// introducesSource reports whether incoming brings a source the master has not seen.
func introducesSource(masterSource string, recorded []string, incoming string) bool {
	if incoming == "" || masterSource == "" || incoming == masterSource {
		return false
	}
	for _, s := range recorded {
		if s == incoming {
			return false
		}
	}
	return true
}

func upgrade(score models.Score) models.Score {
	if score.Rank() >= scoreCeiling.Rank() {
		return score
	}
	switch score {
	case models.ScoreC:
		return models.ScoreB
	case models.ScoreB:
		return models.ScoreA
	case models.ScoreA:
		return models.ScoreAPlus
	default:
		return models.ScoreC
	}
}

func mergeNotes(master, incoming, source string) string {
	switch {
	case incoming == "":
		return master
	case master == "":
		return incoming
	case containsNotes(master, incoming):
		return master
	}
	return master + "\n\n" + mergedLabel + sourceLabel(source) + "] " + incoming
}

const mergedLabel = "[merged from "

// containsNotes reports whether every paragraph of incoming already appears as a whole
// paragraph of master, ignoring merge labels.
func containsNotes(master, incoming string) bool {
	have := map[string]bool{}
	for _, p := range paragraphs(master) {
		have[p] = true
	}
	for _, p := range paragraphs(incoming) {
		if !have[p] {
			return false
		}
	}
	return true
}

func paragraphs(notes string) []string {
	var out []string
	for _, p := range strings.Split(notes, "\n\n") {
		p = strings.TrimSpace(p)
		if rest, ok := strings.CutPrefix(p, mergedLabel); ok {
			if _, text, found := strings.Cut(rest, "] "); found {
				p = strings.TrimSpace(text)
			}
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitNotes separates the multi-source annotation line from the free text.
func splitNotes(notes string) (string, []string) {
	var sources []string
	lines := strings.Split(notes, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if rest, ok := strings.CutPrefix(line, multiSourcePrefix); ok {
			for _, s := range strings.Split(rest, ",") {
				if s = strings.TrimSpace(s); s != "" {
					sources = append(sources, s)
				}
			}
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), sources
}

func joinNotes(body string, sources []string) string {
	if len(sources) == 0 {
		return body
	}
	annotation := multiSourcePrefix + strings.Join(sources, ", ")
	if body == "" {
		return annotation
	}
	return body + "\n" + annotation
}

func sourceLabel(source string) string {
	if source == "" {
		return unknownSource
	}
	return source
}
