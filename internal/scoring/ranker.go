package scoring

import (
	"sort"

	"github.com/thebtf/contraceptiq/internal/mec"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// RankedMethod is one entry of a recommendation list.
type RankedMethod struct {
	ID          models.MethodID    `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Color       string             `json:"color"`
	Label       string             `json:"label"`
	Category    models.MECCategory `json:"mec_category"`
	MatchScore  int                `json:"match_score"`
}

// Ranker orders methods by eligibility and preference fit.
type Ranker struct {
	matcher *Matcher
	order   []models.MethodID
}

// NewRanker creates a ranker over DisplayOrder.
// If matcher is nil, uses the default catalog.
func NewRanker(matcher *Matcher) *Ranker {
	if matcher == nil {
		matcher = defaultMatcher
	}
	return &Ranker{matcher: matcher, order: DisplayOrder}
}

var defaultRanker = NewRanker(nil)

// Rank orders methods with the default ranker. See Ranker.Rank.
func Rank(result models.MECResult, prefs []string) []RankedMethod {
	return defaultRanker.Rank(result, prefs)
}

// RankByPreference ranks when no eligibility result is available: every
// method is treated as category 1, so only the match score orders them.
func RankByPreference(prefs []string) []RankedMethod {
	return defaultRanker.Rank(models.UniformMEC(models.MECNoRestriction), prefs)
}

// Rank sorts by MEC category ascending, then match score descending.
// Ties keep DisplayOrder.
func (r *Ranker) Rank(result models.MECResult, prefs []string) []RankedMethod {
	ranked := make([]RankedMethod, 0, len(r.order))
	for _, id := range r.order {
		info := r.matcher.catalog[id]
		category, ok := result.Category(id)
		if !ok {
			continue
		}
		ranked = append(ranked, RankedMethod{
			ID:          id,
			Name:        info.DisplayName,
			Description: info.Description,
			Category:    category,
			Color:       mec.Color(category),
			Label:       mec.Label(category),
			MatchScore:  r.matcher.MatchScore(id, prefs),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Category != ranked[j].Category {
			return ranked[i].Category < ranked[j].Category
		}
		return ranked[i].MatchScore > ranked[j].MatchScore
	})
	return ranked
}
