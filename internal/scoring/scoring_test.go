package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/contraceptiq/internal/mec"
	"github.com/thebtf/contraceptiq/pkg/models"
)

// ScoringSuite is a test suite for the matcher and ranker.
type ScoringSuite struct {
	suite.Suite
	matcher *Matcher
	ranker  *Ranker
}

func (s *ScoringSuite) SetupTest() {
	s.matcher = NewMatcher(nil)
	s.ranker = NewRanker(s.matcher)
}

func TestScoringSuite(t *testing.T) {
	suite.Run(t, new(ScoringSuite))
}

func ids(ranked []RankedMethod) []models.MethodID {
	out := make([]models.MethodID, len(ranked))
	for i, r := range ranked {
		out[i] = r.ID
	}
	return out
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ScoringSuite) TestMatchScore_GoodScenarios_FullMatch() {
	s.Equal(100, s.matcher.MatchScore(models.MethodImplant, []string{"effectiveness", "longterm"}))
	s.Equal(100, s.matcher.MatchScore(models.MethodPOP, []string{"client"}))
}

func (s *ScoringSuite) TestMatchScore_GoodScenarios_PartialMatch() {
	s.Equal(67, s.matcher.MatchScore(models.MethodDMPA, []string{"effectiveness", "privacy", "sti"}))
	s.Equal(50, s.matcher.MatchScore(models.MethodPOP, []string{"client", "sti"}))
	s.Equal(0, s.matcher.MatchScore(models.MethodCHC, []string{"effectiveness", "longterm"}))
}

func (s *ScoringSuite) TestMatchScore_GoodScenarios_Components() {
	c := s.matcher.Components(models.MethodLNGIUD, []string{"regular", "nonhormonal"})

	s.Equal([]string{"regular"}, c.Matched)
	s.Equal(2, c.Total)
	s.Equal(50, c.Score)
}

func (s *ScoringSuite) TestRank_GoodScenarios_CategoryThenScore() {
	result := mec.Calculate(mec.Input{Age: 17})

	ranked := s.ranker.Rank(result, []string{"effectiveness", "longterm"})

	s.Equal([]models.MethodID{
		models.MethodImplant, models.MethodCHC, models.MethodPOP,
		models.MethodCuIUD, models.MethodLNGIUD, models.MethodDMPA,
	}, ids(ranked))
	s.Equal("Implant", ranked[0].Name)
	s.Equal("#4CAF50", ranked[0].Color)
	s.Equal("Generally Safe", ranked[3].Label)
	s.Equal(100, ranked[3].MatchScore)
}

func (s *ScoringSuite) TestRank_GoodScenarios_UnacceptableSinksToBottom() {
	result := mec.Calculate(mec.Input{Age: 38, SmokingStatus: models.SmokingCurrentDaily, CigarettesPerDay: 20})

	ranked := s.ranker.Rank(result, []string{"client", "regular"})

	s.Require().Len(ranked, 6)
	last := ranked[len(ranked)-1]
	s.Equal(models.MethodCHC, last.ID)
	s.Equal(models.MECUnacceptable, last.Category)
	s.Equal(100, last.MatchScore)
}

// =============================================================================
// BAD SCENARIOS - Invalid input handling
// =============================================================================

func (s *ScoringSuite) TestMatchScore_BadScenarios_UnknownMethod() {
	s.Equal(0, s.matcher.MatchScore("Condom", []string{"sti"}))
}

func (s *ScoringSuite) TestMatchScore_BadScenarios_EmptyPreferences() {
	for _, id := range models.Methods {
		s.Equal(0, s.matcher.MatchScore(id, nil))
		s.Equal(0, s.matcher.MatchScore(id, []string{}))
	}
}

func (s *ScoringSuite) TestMatchScore_BadScenarios_UnknownTagCountsButNeverMatches() {
	s.Equal(50, s.matcher.MatchScore(models.MethodImplant, []string{"effectiveness", "cheap"}))
}

// =============================================================================
// EDGE CASES
// =============================================================================

func (s *ScoringSuite) TestMatchScore_EdgeCases_HalfRoundsUp() {
	prefs := []string{"nonhormonal", "sti", "client", "regular", "a", "b", "c", "d"}
	s.Equal(13, s.matcher.MatchScore(models.MethodCuIUD, prefs))
}

func (s *ScoringSuite) TestMatchScore_EdgeCases_ThirdsRoundToNearest() {
	s.Equal(33, s.matcher.MatchScore(models.MethodCuIUD, []string{"effectiveness", "sti", "regular"}))
	s.Equal(67, s.matcher.MatchScore(models.MethodCuIUD, []string{"effectiveness", "sti", "nonhormonal"}))
}

func (s *ScoringSuite) TestMatchScore_EdgeCases_NoMethodPreventsSTI() {
	for _, id := range models.Methods {
		s.Equal(0, s.matcher.MatchScore(id, []string{"sti"}), "method %s", id)
	}
}

func (s *ScoringSuite) TestRankByPreference_EdgeCases_NoPreferencesKeepsDisplayOrder() {
	ranked := RankByPreference(nil)

	s.Equal(DisplayOrder, ids(ranked))
	for _, r := range ranked {
		s.Equal(models.MECNoRestriction, r.Category)
	}
}

func TestMatchScore_Bounds(t *testing.T) {
	all := append([]string{"unknown"}, PreferenceTags...)
	for _, id := range append(models.Methods, "Other") {
		for n := 0; n <= len(all); n++ {
			score := MatchScore(id, all[:n])
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		}
	}
}

func TestRank_IsPermutationOrderedByCategory(t *testing.T) {
	for age := 10; age <= 55; age += 5 {
		for _, status := range []models.SmokingStatus{models.SmokingNever, models.SmokingCurrentDaily} {
			ranked := Rank(mec.Calculate(mec.Input{Age: age, SmokingStatus: status, CigarettesPerDay: 20}), PreferenceTags[:3])

			assert.ElementsMatch(t, models.Methods, ids(ranked))
			for i := 1; i < len(ranked); i++ {
				prev, cur := ranked[i-1], ranked[i]
				assert.LessOrEqual(t, prev.Category, cur.Category)
				if prev.Category == cur.Category {
					assert.GreaterOrEqual(t, prev.MatchScore, cur.MatchScore)
				}
			}
		}
	}
}
