package reward

import (
	"math"

	"github.com/shopspring/decimal"

	"arcade-backend/internal/model"
	"arcade-backend/internal/pkg/numeric"
)

// Calculator turns a gameplay outcome into a wallet delta.
// It never touches storage.
type Calculator struct {
	rules *Rules
}

// NewCalculator creates a Calculator over rules. A nil table uses DefaultRules.
func NewCalculator(rules *Rules) *Calculator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Calculator{rules: rules}
}

// Rules returns the rule table the calculator reads.
func (c *Calculator) Rules() *Rules {
	return c.rules
}

// ComputeDelta applies the game's rule to score.
// Scores that are not positive finite numbers count as 0. A score under the
// rule's minimum only counts the play and flags the entry with noReward.
// Yields are truncated, never rounded.
func (c *Calculator) ComputeDelta(accountID, gameID string, score float64) model.Delta {
	game := NormalizeGame(gameID)
	rule, _ := c.rules.Lookup(game)

	if math.IsNaN(score) || math.IsInf(score, 0) || score <= 0 {
		score = 0
	}

	delta := model.Delta{
		AccountID: accountID,
		Plays:     1,
		Reason:    model.PlayReason(game),
		Meta: map[string]any{
			"game":  game,
			"score": score,
		},
	}

	if rule.MinScoreForReward > 0 && score < rule.MinScoreForReward {
		delta.Meta["noReward"] = true
		return delta
	}

	s := decimal.NewFromFloat(score)
	delta.Coins = yield(s, rule.CoinsPerScore)
	delta.Exp = yield(s, rule.XPPerScore)
	delta.Tickets = rule.TicketsPerPlay
	return delta
}

func yield(score, rate decimal.Decimal) int64 {
	return numeric.Normalize(score.Mul(rate).Truncate(0))
}
