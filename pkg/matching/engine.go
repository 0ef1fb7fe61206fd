// Package matching finds the existing lead an incoming record denotes.
package matching

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	ConfidencePhone   = 1.0
	ConfidenceHandle  = 0.95
	ConfidenceCompany = 0.85
)

// EngineConfig contains configuration for the match engine
type EngineConfig struct {
	FuzzyThreshold float64 // minimum Levenshtein ratio for a fuzzy company match (default: 0.6)
	EnableFuzzy    bool
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		FuzzyThreshold: 0.6,
		EnableFuzzy:    true,
	}
}

// Match is the existing lead a record resolved to.
type Match struct {
	Lead       models.Lead
	Type       models.MatchType
	Confidence float64
}

// Engine resolves records against an Index. Strategies run in a fixed order and
// the first hit wins: phone, social handle, identity key, fuzzy company name.
type Engine struct {
	scorer *Scorer
	config EngineConfig
}

func NewEngine(config EngineConfig) *Engine {
	if config.FuzzyThreshold <= 0 || config.FuzzyThreshold > 1 {
		config.FuzzyThreshold = DefaultConfig().FuzzyThreshold
	}
	return &Engine{
		scorer: NewScorer(),
		config: config,
	}
}

// Match returns the best existing match for lead, or nil. A lead never matches itself.
func (e *Engine) Match(lead *models.Lead, idx *Index) *Match {
	keys := KeysFor(lead)
	if m := e.matchExact(lead.ID, keys, idx); m != nil {
		return m
	}
	if e.config.EnableFuzzy {
		return e.matchFuzzy(lead.ID, keys, idx)
	}
	return nil
}

// MatchExact runs only the exact strategies. It is used for intra-batch collisions.
func (e *Engine) MatchExact(lead *models.Lead, idx *Index) *Match {
	return e.matchExact(lead.ID, KeysFor(lead), idx)
}

func (e *Engine) matchExact(selfID string, keys Keys, idx *Index) *Match {
	if keys.Phone != "" {
		if m := idx.lookup(idx.byPhone, keys.Phone, selfID, models.MatchTypePhone, ConfidencePhone); m != nil {
			return m
		}
	}
	for _, handle := range keys.Handles {
		if m := idx.lookup(idx.byHandle, handle, selfID, models.MatchTypeHandle, ConfidenceHandle); m != nil {
			return m
		}
	}
	if keys.IdentityKey != "" {
		return idx.lookup(idx.byKey, keys.IdentityKey, selfID, models.MatchTypeCompany, ConfidenceCompany)
	}
	return nil
}

func (e *Engine) matchFuzzy(selfID string, keys Keys, idx *Index) *Match {
	if keys.City == "" || keys.Company == "" {
		return nil
	}

	var best *models.Lead
	bestScore := 0.0
	for _, id := range idx.byCity[keys.City] {
		if id == selfID {
			continue
		}
		candidate := idx.leads[id]
		score := e.scorer.Ratio(keys.Company, KeysFor(candidate).Company)
		if score >= e.config.FuzzyThreshold && score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if best == nil {
		return nil
	}
	return &Match{Lead: *best, Type: models.MatchTypeFuzzy, Confidence: bestScore}
}

func (idx *Index) lookup(m map[string]string, key, selfID string, matchType models.MatchType, confidence float64) *Match {
	id, ok := m[key]
	if !ok || id == selfID {
		return nil
	}
	return &Match{Lead: *idx.leads[id], Type: matchType, Confidence: confidence}
}
