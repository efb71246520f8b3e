// Deterministic scoring functions for articles, comments, and accounts.
//
// Everything in this package is a pure function of its inputs plus an
// explicit clock argument. No datastore access, no hidden thresholds:
// all tunables live on Config and are injected at construction.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/haven-community/trustmod/store"
)

type Config struct {
	// window for the "recent reactions" engagement bonus
	RecentReactionWindow time.Duration
	// publish-recency bonuses, stepped down by article age
	DayBonus      float64
	ThreeDayBonus float64
	WeekBonus     float64
	MonthBonus    float64
	// slow linear decay applied on top of the stepped bonuses, so that
	// hotness is strictly decreasing in article age
	HourlyDecay float64

	// comment markdown credit
	LongBodyChars  int
	CodeBlockBonus int
	LongBodyBonus  int

	// spaminess signals
	SpamBadgeThreshold int
	NewIdentityAge     time.Duration
	NewAccountAge      time.Duration
}

func DefaultConfig() Config {
	return Config{
		RecentReactionWindow: 4 * time.Hour,
		DayBonus:             28,
		ThreeDayBonus:        17,
		WeekBonus:            8,
		MonthBonus:           3,
		HourlyDecay:          0.001,
		LongBodyChars:        200,
		CodeBlockBonus:       2,
		LongBodyBonus:        1,
		SpamBadgeThreshold:   4,
		NewIdentityAge:       7 * 24 * time.Hour,
		NewAccountAge:        7 * 24 * time.Hour,
	}
}

// ReactionPointsSum adds up the weighted points on a set of reactions.
func ReactionPointsSum(reactions []store.Reaction) float64 {
	var sum float64
	for _, r := range reactions {
		sum += r.Points
	}
	return sum
}

// ArticleHotness computes the time-decayed popularity score for a
// published article. Unpublished articles score zero.
//
// The result is strictly increasing in raw engagement (for a fixed
// publish time) and strictly increasing in publish recency (for fixed
// engagement): the stepped bonuses handle the coarse ordering and the
// linear decay term breaks ties within a step.
func (cfg Config) ArticleHotness(article *store.Article, reactions []store.Reaction, now time.Time) float64 {
	if article.PublishedAt == nil {
		return 0
	}

	raw := ReactionPointsSum(reactions) + 3*float64(article.CommentsCount)

	var recent float64
	cutoff := now.Add(-cfg.RecentReactionWindow)
	for _, r := range reactions {
		if r.CreatedAt.After(cutoff) {
			recent += r.Points
		}
	}

	return raw + 2*recent + cfg.recencyBonus(now.Sub(*article.PublishedAt))
}

func (cfg Config) recencyBonus(age time.Duration) float64 {
	var step float64
	switch {
	case age < 24*time.Hour:
		step = cfg.DayBonus
	case age < 3*24*time.Hour:
		step = cfg.ThreeDayBonus
	case age < 7*24*time.Hour:
		step = cfg.WeekBonus
	case age < 30*24*time.Hour:
		step = cfg.MonthBonus
	}
	return step - age.Hours()*cfg.HourlyDecay
}

// CommentQuality combines a markdown content credit with the aggregate
// reaction points on the comment, clamped to an integer.
func (cfg Config) CommentQuality(comment *store.Comment, reactionPointsSum float64) int {
	credit := 0
	if strings.Contains(comment.BodyMarkdown, "```") {
		credit += cfg.CodeBlockBonus
	}
	if len(comment.BodyMarkdown) > cfg.LongBodyChars {
		credit += cfg.LongBodyBonus
	}
	return int(math.Round(reactionPointsSum)) + credit
}

// Spaminess rates how much an account's provenance looks like throwaway
// spam. 100 for orphaned content (no user at all); 25 for the "new
// everywhere" pattern (external identity and local registration both
// recent); 0 otherwise. Trust signals strictly override recency-based
// suspicion.
func (cfg Config) Spaminess(user *store.User, trusted bool, now time.Time) int {
	if user == nil {
		return 100
	}
	if trusted {
		return 0
	}
	if user.BadgeAchievementsCount > cfg.SpamBadgeThreshold {
		return 0
	}
	if user.ExternalAccountCreatedAt == nil {
		// no external identity to judge: nothing to hold against them
		return 0
	}
	identityAge := now.Sub(*user.ExternalAccountCreatedAt)
	accountAge := now.Sub(user.RegisteredAt)
	if identityAge < cfg.NewIdentityAge && accountAge < cfg.NewAccountAge {
		return 25
	}
	return 0
}
