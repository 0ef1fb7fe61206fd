// Package partition splits an import batch into inserts, updates, skips and rejects
// against the user's existing leads.
package partition

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// InvalidRecord is a row rejected before matching. Row is 1-based.
type InvalidRecord struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// SkippedRecord is a row that duplicates another row of the same batch.
type SkippedRecord struct {
	Row         int              `json:"row"`
	DuplicateOf string           `json:"duplicate_of"`
	MatchType   models.MatchType `json:"match_type"`
}

// Result is the partitioned batch.
type Result struct {
	ToInsert []models.Lead
	ToUpdate []models.LeadUpdate
	Skipped  []SkippedRecord
	Invalid  []InvalidRecord
	// Matches counts matches against existing leads by strategy.
	Matches map[models.MatchType]int
}

// Partitioner routes records using the match engine.
type Partitioner struct {
	engine *matching.Engine
	newID  func() string
}

func New(engine *matching.Engine) *Partitioner {
	return &Partitioner{
		engine: engine,
		newID:  uuid.NewString,
	}
}

// Partition classifies records against existing. existing is refreshed in place with
// merged leads so later records in the batch see earlier merges. The defaults are
// applied to every record here and nowhere else.
func (p *Partitioner) Partition(records []models.Lead, existing *matching.Index, defaults models.ImportDefaults) *Result {
	result := &Result{Matches: map[models.MatchType]int{}}
	batch := matching.NewIndex(nil)
	originals := map[string]models.Lead{}
	updates := map[string]int{}

	for i, record := range records {
		row := i + 1
		lead := defaults.Apply(record)

		if reason := validate(&lead); reason != "" {
			result.Invalid = append(result.Invalid, InvalidRecord{Row: row, Reason: reason})
			continue
		}
		deriveKeys(&lead)

		if match := p.engine.Match(&lead, existing); match != nil {
			result.Matches[match.Type]++
			metrics.MatchesTotal.WithLabelValues(string(match.Type)).Inc()

			original, seen := originals[match.Lead.ID]
			if !seen {
				original = match.Lead
				originals[match.Lead.ID] = original
			}

			merged := merging.MergeRecord(match.Lead, lead)
			forceDefaults(&merged, defaults)
			existing.Add(&merged)

			update := models.LeadUpdate{
				ID:     merged.ID,
				Fields: changedFields(&original, &merged, defaults),
				Lead:   merged,
			}
			if pos, ok := updates[merged.ID]; ok {
				result.ToUpdate[pos] = update
			} else {
				updates[merged.ID] = len(result.ToUpdate)
				result.ToUpdate = append(result.ToUpdate, update)
			}
			continue
		}

		if dup := p.engine.MatchExact(&lead, batch); dup != nil {
			result.Skipped = append(result.Skipped, SkippedRecord{Row: row, DuplicateOf: dup.Lead.ID, MatchType: dup.Type})
			continue
		}

		lead.ID = p.newID()
		result.ToInsert = append(result.ToInsert, lead)
		batch.Add(&lead)
	}

	return result
}

// Total is the number of records the result accounts for.
func (r *Result) Total() int {
	return len(r.ToInsert) + len(r.ToUpdate) + len(r.Skipped) + len(r.Invalid)
}

func validate(lead *models.Lead) string {
	if strings.TrimSpace(lead.CompanyName) == "" {
		return "company name is required"
	}
	if lead.Score != "" && !lead.Score.Valid() {
		return "score must be one of C, B, A, A+, A++"
	}
	return ""
}

// deriveKeys fills the stored match keys and the natural key.
func deriveKeys(lead *models.Lead) {
	lead.IdentityKey = normalizers.IdentityKey(lead.CompanyName, lead.City)
	lead.PhoneDigits = normalizers.NormalizePhone(lead.Phone)
	if lead.ExternalSourceID != "" {
		return
	}

	lead.ExternalSourceID = fingerprint.NaturalKey(lead.IdentityKey, lead.PhoneDigits)
	if lead.ExternalSourceID == "" {
		values := map[string]string{}
		for _, field := range models.LeadFields {
			if field.Mappable {
				values[field.Column] = field.Get(lead)
			}
		}
		lead.ExternalSourceID = "fp:" + fingerprint.Generate(values)[:32]
	}
}

// forceDefaults re-applies what the import forces on top of a merge, which otherwise
// keeps the stored values: the import's source, and the location when overridden.
func forceDefaults(lead *models.Lead, defaults models.ImportDefaults) {
	if defaults.Source != "" {
		lead.Source = defaults.Source
	}
	if !defaults.OverrideLocation {
		return
	}
	if defaults.DefaultCity != "" {
		lead.City = defaults.DefaultCity
	}
	if defaults.DefaultState != "" {
		lead.State = defaults.DefaultState
	}
	lead.IdentityKey = normalizers.IdentityKey(lead.CompanyName, lead.City)
}

func changedFields(original, merged *models.Lead, defaults models.ImportDefaults) map[string]string {
	fields := models.DiffLeads(original, merged)
	for _, column := range defaults.ForcedColumns() {
		if field, ok := models.FindLeadField(column); ok {
			fields[column] = field.Get(merged)
		}
	}
	return fields
}
