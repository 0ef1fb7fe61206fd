package merging

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

// groupNamespace scopes the deterministic duplicate group ids.
var groupNamespace = uuid.MustParse("7d0f6f3e-4f7e-4b55-9a53-2b1f0c1e6a10")

type link struct {
	matchType  models.MatchType
	confidence float64
}

// FindDuplicateGroups scans leads oldest first, matching each one against the
// leads before it. Linked leads are grouped transitively. A group's confidence is
// its weakest link and its match type is that link's type.
func FindDuplicateGroups(engine *matching.Engine, leads []models.Lead) []models.DuplicateGroup {
	ordered := make([]models.Lead, len(leads))
	copy(ordered, leads)
	sortByCreated(ordered)

	parent := make(map[string]string, len(ordered))
	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}

	links := make(map[string][]link)
	idx := matching.NewIndex(nil)
	for i := range ordered {
		lead := &ordered[i]
		parent[lead.ID] = lead.ID
		if m := engine.Match(lead, idx); m != nil {
			a, b := find(lead.ID), find(m.Lead.ID)
			if a != b {
				parent[a] = b
				links[b] = append(links[b], links[a]...)
				delete(links, a)
			}
			links[b] = append(links[b], link{matchType: m.Type, confidence: m.Confidence})
		}
		idx.Add(lead)
	}

	members := make(map[string][]models.Lead)
	for _, lead := range ordered {
		root := find(lead.ID)
		members[root] = append(members[root], lead)
	}

	groups := make([]models.DuplicateGroup, 0)
	for root, group := range members {
		if len(group) < 2 {
			continue
		}
		weakest := links[root][0]
		for _, l := range links[root][1:] {
			if l.confidence < weakest.confidence {
				weakest = l
			}
		}
		groups = append(groups, models.DuplicateGroup{
			ID:                groupID(group),
			MatchType:         weakest.matchType,
			Confidence:        weakest.confidence,
			Leads:             group,
			SuggestedMasterID: SuggestMaster(group),
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Confidence != groups[j].Confidence {
			return groups[i].Confidence > groups[j].Confidence
		}
		return groups[i].ID < groups[j].ID
	})
	return groups
}

func groupID(leads []models.Lead) string {
	ids := make([]string, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	sort.Strings(ids)
	return uuid.NewSHA1(groupNamespace, []byte(strings.Join(ids, ","))).String()
}
