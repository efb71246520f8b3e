// Package engine ties the content-trust subsystem together: it consumes
// scoring and detection signals and applies remediation under a
// distributed lease. Every exported method is an asynchronous job-queue
// entrypoint; many instances may run concurrently across processes, and
// a job either completes or propagates its error to the external retry
// layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/haven-community/trustmod/cachestore"
	"github.com/haven-community/trustmod/countstore"
	"github.com/haven-community/trustmod/feedevents"
	"github.com/haven-community/trustmod/leasestore"
	"github.com/haven-community/trustmod/notify"
	"github.com/haven-community/trustmod/ringdetect"
	"github.com/haven-community/trustmod/scoring"
	"github.com/haven-community/trustmod/store"
)

// ErrInvalidDomain indicates a domain string which cannot be normalized
// into something blockable.
var ErrInvalidDomain = errors.New("invalid email domain")

type Config struct {
	// TTL on the domain-block lease; must comfortably exceed the longest
	// plausible suspension sweep
	LeaseTTL time.Duration
	// minimum ring membership before moderators are notified
	RingNotifyThreshold int
	// circuit breaker: moderator escalations allowed per day, all subjects
	// combined
	EscalationQuotaDay int
	// audit note reason recorded on automatic suspensions
	SuspendNoteReason string
}

func DefaultConfig() Config {
	return Config{
		LeaseTTL:            300 * time.Second,
		RingNotifyThreshold: 5,
		EscalationQuotaDay:  50,
		SuspendNoteReason:   "automatic_suspend",
	}
}

// runtime for executing trust jobs and recording remediation actions.
//
// TODO: careful when initializing: several fields should not be null or zero, even though they are pointer type.
type Engine struct {
	Logger   *slog.Logger
	Store    *store.Store
	Leases   leasestore.LeaseStore
	Counters countstore.CountStore
	Cache    cachestore.CacheStore
	Notifier notify.Notifier
	Ingester *feedevents.Ingester
	Detector *ringdetect.Detector
	Scoring  scoring.Config
	Config   Config
}

// RefreshArticleScore recomputes an article's score, hotness, and
// spaminess from its current reactions. Scheduled on every relevant
// mutation (reaction created or destroyed, comment created). A missing
// article is a no-op: the mutation raced a deletion.
func (eng *Engine) RefreshArticleScore(ctx context.Context, articleID uint) error {
	defer eng.recoverJob("refresh_article_score")
	defer eng.observeJob("refresh_article_score", time.Now())

	article, err := eng.Store.GetArticle(ctx, articleID)
	if errors.Is(err, store.ErrNotFound) {
		eng.Logger.Debug("article gone, skipping score refresh", "articleID", articleID)
		return nil
	} else if err != nil {
		jobErrorCount.WithLabelValues("refresh_article_score").Inc()
		return err
	}

	reactions, err := eng.Store.ReactionsFor(ctx, "Article", articleID)
	if err != nil {
		jobErrorCount.WithLabelValues("refresh_article_score").Inc()
		return err
	}

	user, trusted, err := eng.entityUser(ctx, article.UserID)
	if err != nil {
		jobErrorCount.WithLabelValues("refresh_article_score").Inc()
		return err
	}

	now := time.Now()
	points := scoring.ReactionPointsSum(reactions)
	positive := 0
	for _, r := range reactions {
		if r.Points > 0 {
			positive++
		}
	}
	article.Score = int(math.Round(points))
	article.HotnessScore = int(math.Round(eng.Scoring.ArticleHotness(article, reactions, now)))
	article.SpaminessRating = eng.Scoring.Spaminess(user, trusted, now)
	article.SyncReactionsCount(positive, points)
	if len(reactions) > 0 {
		article.TouchByReaction(reactions[len(reactions)-1].CreatedAt)
	}

	if err := eng.Store.SaveArticle(ctx, article); err != nil {
		jobErrorCount.WithLabelValues("refresh_article_score").Inc()
		return err
	}
	scoresRefreshedCount.WithLabelValues("article").Inc()
	return nil
}

// RefreshCommentScore recomputes a comment's quality score and
// spaminess. A missing comment is a no-op.
func (eng *Engine) RefreshCommentScore(ctx context.Context, commentID uint) error {
	defer eng.recoverJob("refresh_comment_score")
	defer eng.observeJob("refresh_comment_score", time.Now())

	comment, err := eng.Store.GetComment(ctx, commentID)
	if errors.Is(err, store.ErrNotFound) {
		eng.Logger.Debug("comment gone, skipping score refresh", "commentID", commentID)
		return nil
	} else if err != nil {
		jobErrorCount.WithLabelValues("refresh_comment_score").Inc()
		return err
	}

	reactions, err := eng.Store.ReactionsFor(ctx, "Comment", commentID)
	if err != nil {
		jobErrorCount.WithLabelValues("refresh_comment_score").Inc()
		return err
	}

	user, trusted, err := eng.entityUser(ctx, comment.UserID)
	if err != nil {
		jobErrorCount.WithLabelValues("refresh_comment_score").Inc()
		return err
	}

	now := time.Now()
	points := scoring.ReactionPointsSum(reactions)
	comment.Score = eng.Scoring.CommentQuality(comment, points)
	comment.SpaminessRating = eng.Scoring.Spaminess(user, trusted, now)
	comment.SyncReactionsCount(len(reactions), points)
	if len(reactions) > 0 {
		comment.TouchByReaction(reactions[len(reactions)-1].CreatedAt)
	}

	if err := eng.Store.SaveComment(ctx, comment); err != nil {
		jobErrorCount.WithLabelValues("refresh_comment_score").Inc()
		return err
	}
	scoresRefreshedCount.WithLabelValues("comment").Inc()
	return nil
}

// RecordFeedEvents ingests a batch of feed telemetry with timebox
// deduplication.
func (eng *Engine) RecordFeedEvents(ctx context.Context, events []store.FeedEvent) error {
	defer eng.recoverJob("record_feed_events")
	defer eng.observeJob("record_feed_events", time.Now())

	if err := eng.Ingester.BulkUpsert(ctx, events); err != nil {
		jobErrorCount.WithLabelValues("record_feed_events").Inc()
		return err
	}
	return nil
}

// DetectAndEscalateRing runs reaction-ring analysis for one user, after
// the eligibility guard. A positive result is advisory: it is logged,
// recorded as an audit note, and escalated to moderators when the ring
// is large enough. It never suspends anyone.
func (eng *Engine) DetectAndEscalateRing(ctx context.Context, userID uint) error {
	defer eng.recoverJob("detect_and_escalate_ring")
	defer eng.observeJob("detect_and_escalate_ring", time.Now())

	logger := eng.Logger.With("userID", userID)

	user, err := eng.Store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("user gone, skipping ring detection")
		return nil
	} else if err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}

	cfg := eng.Detector.Config
	since := time.Now().Add(-cfg.Lookback)

	isAdmin, err := eng.Store.HasRole(ctx, userID, store.RoleAdmin)
	if err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}
	isSuperMod, err := eng.Store.HasRole(ctx, userID, store.RoleSuperModerator)
	if err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}
	trusted, err := eng.userTrusted(ctx, userID)
	if err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}
	reactionCount, err := eng.Store.PublicArticleReactionCount(ctx, userID, since)
	if err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}
	if !cfg.Eligible(isAdmin, isSuperMod, trusted, reactionCount) {
		logger.Debug("user not eligible for ring detection", "reactions", reactionCount)
		return nil
	}

	candidates, err := eng.Store.ReactionTargetAuthors(ctx, userID, since, cfg.MaxCandidates)
	if err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}
	rows, err := eng.Store.CoReactionEdges(ctx, append(candidates, userID), since)
	if err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}
	edges := make([]ringdetect.Edge, len(rows))
	for i, r := range rows {
		edges[i] = ringdetect.Edge{ReactorID: r.ReactorID, AuthorID: r.AuthorID, CreatedAt: r.CreatedAt}
	}

	res := eng.Detector.Detect(userID, edges)
	if !res.Detected {
		return nil
	}

	ringsDetectedCount.Inc()
	logger.Info("reaction ring detected",
		"username", user.Username,
		"members", res.Members,
		"reciprocity", res.Reciprocity,
		"density", res.Density)

	content := fmt.Sprintf("reaction ring suspected: %d accounts, reciprocity=%.2f density=%.2f members=%v",
		len(res.Members), res.Reciprocity, res.Density, res.Members)
	if err := eng.Store.CreateNote(ctx, nil, "User", userID, "reaction_ring_detected", content); err != nil {
		jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
		return err
	}

	if len(res.Members) >= eng.Config.RingNotifyThreshold {
		if err := eng.escalateRing(ctx, userID, content); err != nil {
			jobErrorCount.WithLabelValues("detect_and_escalate_ring").Inc()
			return err
		}
	}
	return nil
}

// escalateRing notifies moderators about a detection, at most once per
// user per day, under a global daily quota (circuit breaker).
func (eng *Engine) escalateRing(ctx context.Context, userID uint, content string) error {
	already, err := eng.Counters.GetCount(ctx, "ring-escalation", strconv.FormatUint(uint64(userID), 10), countstore.PeriodDay)
	if err != nil {
		return err
	}
	if already > 0 {
		eng.Logger.Debug("ring escalation already sent today", "userID", userID)
		return nil
	}
	quota, err := eng.Counters.GetCount(ctx, "ring-escalation-quota", "global", countstore.PeriodDay)
	if err != nil {
		return err
	}
	if quota >= eng.Config.EscalationQuotaDay {
		eng.Logger.Warn("ring escalation day quota exceeded, skipping notification", "userID", userID)
		return nil
	}
	if err := eng.Counters.Increment(ctx, "ring-escalation", strconv.FormatUint(uint64(userID), 10)); err != nil {
		return err
	}
	if err := eng.Counters.Increment(ctx, "ring-escalation-quota", "global"); err != nil {
		return err
	}
	ringEscalationCount.Inc()
	return eng.Notifier.NotifyModerators(ctx, content)
}

// BlockDomainAndSuspend blocks an email domain and suspends every
// current account on it, under a keyed lease so that concurrent workers
// for the same domain perform the sweep exactly once. A held lease is a
// clean no-op.
func (eng *Engine) BlockDomainAndSuspend(ctx context.Context, emailDomain string) error {
	defer eng.recoverJob("block_domain_and_suspend")
	defer eng.observeJob("block_domain_and_suspend", time.Now())

	domain, err := NormalizeDomain(emailDomain)
	if err != nil {
		// malformed input will not get better on retry
		eng.Logger.Warn("refusing to block invalid email domain", "input", emailDomain)
		return nil
	}
	logger := eng.Logger.With("domain", domain)

	key := "spam:block_domain_and_suspend:" + domain
	err = leasestore.WithLease(ctx, eng.Leases, key, eng.Config.LeaseTTL, func(ctx context.Context) error {
		return eng.blockAndSweep(ctx, logger, domain)
	})
	if errors.Is(err, leasestore.ErrLeaseHeld) {
		logger.Info("domain block already in progress, skipping")
		return nil
	}
	if err != nil {
		jobErrorCount.WithLabelValues("block_domain_and_suspend").Inc()
	}
	return err
}

func (eng *Engine) blockAndSweep(ctx context.Context, logger *slog.Logger, domain string) error {
	if err := eng.Store.CreateBlockedEmailDomain(ctx, domain); err != nil {
		return err
	}
	domainsBlockedCount.Inc()

	users, err := eng.Store.UsersByEmailDomain(ctx, domain)
	if err != nil {
		return err
	}
	suspended := 0
	for _, u := range users {
		flagged, err := eng.Store.HasRole(ctx, u.ID, store.RoleSpamFlagged)
		if err != nil {
			return err
		}
		isSuspended, err := eng.Store.HasRole(ctx, u.ID, store.RoleSuspended)
		if err != nil {
			return err
		}
		if flagged || isSuspended {
			continue
		}
		if err := eng.Store.AddRole(ctx, u.ID, store.RoleSuspended); err != nil {
			return err
		}
		// the role surface changed; drop the cached lookup
		if err := eng.roleCache().Invalidate(ctx, u.ID); err != nil {
			logger.Warn("failed to invalidate role cache", "err", err, "userID", u.ID)
		}
		content := fmt.Sprintf("automatically suspended: email domain %s blocked", domain)
		if err := eng.Store.CreateNote(ctx, nil, "User", u.ID, eng.Config.SuspendNoteReason, content); err != nil {
			return err
		}
		usersSuspendedCount.Inc()
		suspended++
	}
	logger.Info("domain blocked", "usersChecked", len(users), "usersSuspended", suspended)
	return nil
}

// UnblockDomain removes a domain block. Already-suspended accounts stay
// suspended; reinstatement is a moderator decision.
func (eng *Engine) UnblockDomain(ctx context.Context, emailDomain string) error {
	defer eng.recoverJob("unblock_domain")
	defer eng.observeJob("unblock_domain", time.Now())

	domain, err := NormalizeDomain(emailDomain)
	if err != nil {
		eng.Logger.Warn("refusing to unblock invalid email domain", "input", emailDomain)
		return nil
	}
	if err := eng.Store.DeleteBlockedEmailDomain(ctx, domain); err != nil {
		jobErrorCount.WithLabelValues("unblock_domain").Inc()
		return err
	}
	eng.Logger.Info("domain unblocked", "domain", domain)
	return nil
}

// NormalizeDomain lowercases and trims an email domain, tolerating a
// leading "@" or a full address. Returns ErrInvalidDomain for anything
// without a dot-separated host.
func NormalizeDomain(input string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(input))
	if at := strings.LastIndex(d, "@"); at >= 0 {
		d = d[at+1:]
	}
	if d == "" || !strings.Contains(d, ".") || strings.ContainsAny(d, " /\\") {
		return "", ErrInvalidDomain
	}
	return d, nil
}

// entityUser resolves the owning user of an article or comment, along
// with the cached trusted-role check. A deleted owner comes back nil.
func (eng *Engine) entityUser(ctx context.Context, userID *uint) (*store.User, bool, error) {
	if userID == nil {
		return nil, false, nil
	}
	user, err := eng.Store.GetUser(ctx, *userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	trusted, err := eng.userTrusted(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	return user, trusted, nil
}

func (eng *Engine) roleCache() cachestore.RoleCache {
	return cachestore.RoleCache{Store: eng.Cache}
}

// userTrusted checks the trusted role through the cache; the check is
// hot on every score refresh.
func (eng *Engine) userTrusted(ctx context.Context, userID uint) (bool, error) {
	if trusted, ok, err := eng.roleCache().GetTrusted(ctx, userID); err == nil && ok {
		return trusted, nil
	}
	has, err := eng.Store.HasRole(ctx, userID, store.RoleTrusted)
	if err != nil {
		return false, err
	}
	if err := eng.roleCache().SetTrusted(ctx, userID, has); err != nil {
		eng.Logger.Warn("failed to cache role lookup", "err", err)
	}
	return has, nil
}

// similar to an HTTP server, we want to recover any panics from job execution
func (eng *Engine) recoverJob(job string) {
	if r := recover(); r != nil {
		eng.Logger.Error("trust job execution exception", "err", r, "job", job)
		jobErrorCount.WithLabelValues(job).Inc()
	}
}

func (eng *Engine) observeJob(job string, start time.Time) {
	jobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
