// Package reward maps gameplay outcomes to wallet deltas using a per-game rule table.
package reward

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"arcade-backend/internal/config"
)

// Rule describes what a game pays out per play.
type Rule struct {
	XPPerScore        decimal.Decimal
	CoinsPerScore     decimal.Decimal
	TicketsPerPlay    int64
	MinScoreForReward float64
}

// Rules is an immutable rule table keyed by normalized game identifier.
// Unregistered games fall back to the default rule.
type Rules struct {
	rules map[string]Rule
	def   Rule
}

// DefaultRule applies to games without a registered rule.
var DefaultRule = Rule{
	XPPerScore:    decimal.RequireFromString("0.1"),
	CoinsPerScore: decimal.RequireFromString("0.01"),
}

// NewRules builds a rule table. The map is copied; later changes to it have no effect.
func NewRules(rules map[string]Rule, def Rule) *Rules {
	copied := make(map[string]Rule, len(rules))
	for game, rule := range rules {
		copied[NormalizeGame(game)] = rule
	}
	return &Rules{rules: copied, def: def}
}

// DefaultRules returns the built-in rule table.
func DefaultRules() *Rules {
	return NewRules(map[string]Rule{
		"tetris": {
			XPPerScore:        decimal.RequireFromString("0.05"),
			CoinsPerScore:     decimal.RequireFromString("0.01"),
			TicketsPerPlay:    1,
			MinScoreForReward: 100,
		},
		"snake": {
			XPPerScore:        decimal.RequireFromString("2"),
			CoinsPerScore:     decimal.RequireFromString("0.5"),
			TicketsPerPlay:    1,
			MinScoreForReward: 5,
		},
		"pacman": {
			XPPerScore:        decimal.RequireFromString("0.02"),
			CoinsPerScore:     decimal.RequireFromString("0.005"),
			TicketsPerPlay:    1,
			MinScoreForReward: 500,
		},
		"breakout": {
			XPPerScore:        decimal.RequireFromString("0.1"),
			CoinsPerScore:     decimal.RequireFromString("0.02"),
			TicketsPerPlay:    1,
			MinScoreForReward: 50,
		},
		"space-invaders": {
			XPPerScore:        decimal.RequireFromString("0.05"),
			CoinsPerScore:     decimal.RequireFromString("0.01"),
			TicketsPerPlay:    2,
			MinScoreForReward: 200,
		},
	}, DefaultRule)
}

// RulesFromConfig builds the rule table from configuration.
// An empty game map keeps the built-in table.
func RulesFromConfig(cfg config.RewardsConfig) (*Rules, error) {
	if len(cfg.Games) == 0 {
		return DefaultRules(), nil
	}

	def := DefaultRule
	if cfg.Default != (config.RewardRuleConfig{}) {
		parsed, err := parseRule(cfg.Default)
		if err != nil {
			return nil, fmt.Errorf("default reward rule: %w", err)
		}
		def = parsed
	}

	rules := make(map[string]Rule, len(cfg.Games))
	for game, rc := range cfg.Games {
		if NormalizeGame(game) == "" {
			return nil, fmt.Errorf("reward rule with empty game id")
		}
		parsed, err := parseRule(rc)
		if err != nil {
			return nil, fmt.Errorf("reward rule %q: %w", game, err)
		}
		rules[game] = parsed
	}
	return NewRules(rules, def), nil
}

func parseRule(rc config.RewardRuleConfig) (Rule, error) {
	xp, err := parseRate(rc.XPPerScore)
	if err != nil {
		return Rule{}, fmt.Errorf("xp_per_score: %w", err)
	}
	coins, err := parseRate(rc.CoinsPerScore)
	if err != nil {
		return Rule{}, fmt.Errorf("coins_per_score: %w", err)
	}
	if rc.TicketsPerPlay < 0 {
		return Rule{}, fmt.Errorf("tickets_per_play must not be negative")
	}
	return Rule{
		XPPerScore:        xp,
		CoinsPerScore:     coins,
		TicketsPerPlay:    rc.TicketsPerPlay,
		MinScoreForReward: rc.MinScoreForReward,
	}, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("rate %s must not be negative", s)
	}
	return d, nil
}

// NormalizeGame trims and lower-cases a game identifier.
func NormalizeGame(game string) string {
	return strings.ToLower(strings.TrimSpace(game))
}

// Lookup returns the rule for game and whether it was registered.
// Unregistered games get the default rule.
func (r *Rules) Lookup(game string) (Rule, bool) {
	rule, ok := r.rules[NormalizeGame(game)]
	if !ok {
		return r.def, false
	}
	return rule, true
}

// Games returns the registered game identifiers in sorted order.
func (r *Rules) Games() []string {
	games := make([]string, 0, len(r.rules))
	for game := range r.rules {
		games = append(games, game)
	}
	sort.Strings(games)
	return games
}
