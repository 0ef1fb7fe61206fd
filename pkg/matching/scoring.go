package matching

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Scorer compares normalized strings.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Ratio is the normalized Levenshtein similarity in [0,1]. Empty strings never match.
func (s *Scorer) Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(maxLen)
}
