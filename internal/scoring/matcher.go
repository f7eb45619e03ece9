package scoring

import (
	"math"

	"github.com/thebtf/contraceptiq/pkg/models"
)

// Matcher computes preference match scores against a catalog.
type Matcher struct {
	catalog Catalog
}

// NewMatcher creates a new matcher.
// If catalog is nil, uses the default catalog.
func NewMatcher(catalog Catalog) *Matcher {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Matcher{catalog: catalog}
}

var defaultMatcher = NewMatcher(nil)

// MatchScore returns how well a method fits the client's preferences using
// the default catalog. See Matcher.MatchScore.
func MatchScore(id models.MethodID, prefs []string) int {
	return defaultMatcher.MatchScore(id, prefs)
}

// MatchScore returns round(100 * matched / len(prefs)), rounding halves up.
// An unknown method or an empty preference list scores 0. Unrecognized
// preference tags count toward the total but never match.
func (m *Matcher) MatchScore(id models.MethodID, prefs []string) int {
	return m.Components(id, prefs).Score
}

// Components returns the breakdown behind a match score.
func (m *Matcher) Components(id models.MethodID, prefs []string) MatchComponents {
	info, ok := m.catalog[id]
	if !ok || len(prefs) == 0 {
		return MatchComponents{Total: len(prefs)}
	}

	var matched []string
	for _, p := range prefs {
		attr, known := preferenceAttributes[p]
		if known && info.Has(attr) {
			matched = append(matched, p)
		}
	}

	return MatchComponents{
		Matched: matched,
		Total:   len(prefs),
		Score:   int(math.Floor(float64(len(matched))*100/float64(len(prefs)) + 0.5)),
	}
}

// MatchComponents contains the breakdown of a match score calculation.
type MatchComponents struct {
	Matched []string `json:"matched"`
	Total   int      `json:"total"`
	Score   int      `json:"score"`
}
