package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates a point lookup for a row which does not exist.
// Callers treat this as a no-op skip rather than a retryable failure.
var ErrNotFound = errors.New("record not found")

// Store wraps a gorm handle with the query surface the trust engine
// needs: point lookups, timestamp range queries, bulk inserts, and
// idempotent creates. All other persistence is last-writer-wins.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) GetUser(ctx context.Context, userID uint) (*User, error) {
	var u User
	if err := s.DB.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetArticle(ctx context.Context, articleID uint) (*Article, error) {
	var a Article
	if err := s.DB.WithContext(ctx).First(&a, articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up article: %w", err)
	}
	return &a, nil
}

func (s *Store) GetComment(ctx context.Context, commentID uint) (*Comment, error) {
	var c Comment
	if err := s.DB.WithContext(ctx).First(&c, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up comment: %w", err)
	}
	return &c, nil
}

// LookupReactable resolves the polymorphic (type, id) pair on a Reaction
// to the concrete entity. Returns ErrNotFound for unknown types as well
// as missing rows.
func (s *Store) LookupReactable(ctx context.Context, reactableType string, reactableID uint) (Reactable, error) {
	switch reactableType {
	case "Article":
		return s.GetArticle(ctx, reactableID)
	case "Comment":
		return s.GetComment(ctx, reactableID)
	default:
		return nil, ErrNotFound
	}
}

// CreateReaction records a reaction by the given user, weighting it
// with the category base points scaled by the user's reputation
// modifier. Re-reacting with the same (user, reactable, category) tuple
// is a no-op.
func (s *Store) CreateReaction(ctx context.Context, user *User, reactableType string, reactableID uint, category string, at time.Time) (*Reaction, error) {
	r := Reaction{
		UserID:        user.ID,
		ReactableType: reactableType,
		ReactableID:   reactableID,
		Category:      category,
		Points:        ReactionPoints(category, user),
		CreatedAt:     at,
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&r).Error
	if err != nil {
		return nil, fmt.Errorf("creating reaction: %w", err)
	}
	return &r, nil
}

// ReactionsFor returns all reactions attached to one reactable.
func (s *Store) ReactionsFor(ctx context.Context, reactableType string, reactableID uint) ([]Reaction, error) {
	var out []Reaction
	err := s.DB.WithContext(ctx).
		Where("reactable_type = ? AND reactable_id = ?", reactableType, reactableID).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading reactions: %w", err)
	}
	return out, nil
}

// PublicArticleReactionCount counts a user's reactions on articles in
// public categories since the given time. Used for the ring-detection
// eligibility floor.
func (s *Store) PublicArticleReactionCount(ctx context.Context, userID uint, since time.Time) (int, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Reaction{}).
		Where("user_id = ? AND reactable_type = ? AND category IN ? AND created_at > ?",
			userID, "Article", PublicReactionCategories(), since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting public reactions: %w", err)
	}
	return int(n), nil
}

// ReactionTargetAuthors returns the distinct authors of articles the
// user reacted to (public categories) since the given time, excluding
// the user themselves and articles with deleted authors.
func (s *Store) ReactionTargetAuthors(ctx context.Context, userID uint, since time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).Model(&Reaction{}).
		Joins("JOIN articles ON articles.id = reactions.reactable_id").
		Where("reactions.reactable_type = ? AND reactions.user_id = ? AND reactions.category IN ? AND reactions.created_at > ?",
			"Article", userID, PublicReactionCategories(), since).
		Where("articles.user_id IS NOT NULL AND articles.user_id != ?", userID).
		Distinct().
		Limit(limit).
		Pluck("articles.user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("loading reaction target authors: %w", err)
	}
	return ids, nil
}

// One reactor-to-author edge in the co-reaction graph.
type CoReaction struct {
	ReactorID uint
	AuthorID  uint
	CreatedAt time.Time
}

// CoReactionEdges returns public-category reactions among the given
// users on each other's articles since the given time. This is the raw
// material for ring detection.
func (s *Store) CoReactionEdges(ctx context.Context, userIDs []uint, since time.Time) ([]CoReaction, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var out []CoReaction
	err := s.DB.WithContext(ctx).Model(&Reaction{}).
		Select("reactions.user_id AS reactor_id, articles.user_id AS author_id, reactions.created_at AS created_at").
		Joins("JOIN articles ON articles.id = reactions.reactable_id").
		Where("reactions.reactable_type = ? AND reactions.category IN ? AND reactions.created_at > ?",
			"Article", PublicReactionCategories(), since).
		Where("reactions.user_id IN ? AND articles.user_id IN ?", userIDs, userIDs).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading co-reaction edges: %w", err)
	}
	return out, nil
}

func (s *Store) SaveArticle(ctx context.Context, a *Article) error {
	if err := s.DB.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("saving article: %w", err)
	}
	return nil
}

func (s *Store) SaveComment(ctx context.Context, c *Comment) error {
	if err := s.DB.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("saving comment: %w", err)
	}
	return nil
}

// CountedFeedEventsSince returns counted (counts_for=1) feed events for
// the given articles created after the cutoff. Used by the ingest dedup
// window check.
func (s *Store) CountedFeedEventsSince(ctx context.Context, articleIDs []uint, cutoff time.Time) ([]FeedEvent, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}
	var out []FeedEvent
	err := s.DB.WithContext(ctx).
		Where("article_id IN ? AND counts_for = 1 AND created_at > ?", articleIDs, cutoff).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading feed event window: %w", err)
	}
	return out, nil
}

// BulkInsertFeedEvents persists all rows in one batched insert.
func (s *Store) BulkInsertFeedEvents(ctx context.Context, events []FeedEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.DB.WithContext(ctx).CreateInBatches(events, 500).Error; err != nil {
		return fmt.Errorf("bulk inserting feed events: %w", err)
	}
	return nil
}

// FeedEventCountsForSum sums counted weight for one article and category.
func (s *Store) FeedEventCountsForSum(ctx context.Context, articleID uint, category string) (int, error) {
	var sum int64
	err := s.DB.WithContext(ctx).Model(&FeedEvent{}).
		Where("article_id = ? AND category = ?", articleID, category).
		Select("COALESCE(SUM(counts_for), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("summing feed event weights: %w", err)
	}
	return int(sum), nil
}

// CreateBlockedEmailDomain inserts the domain row if it does not already
// exist. Safe to call repeatedly.
func (s *Store) CreateBlockedEmailDomain(ctx context.Context, domain string) error {
	row := BlockedEmailDomain{Domain: domain}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("creating blocked email domain: %w", err)
	}
	return nil
}

func (s *Store) DeleteBlockedEmailDomain(ctx context.Context, domain string) error {
	err := s.DB.WithContext(ctx).
		Where("domain = ?", domain).
		Delete(&BlockedEmailDomain{}).Error
	if err != nil {
		return fmt.Errorf("deleting blocked email domain: %w", err)
	}
	return nil
}

// UsersByEmailDomain returns all users whose email address is on the
// given domain. Emails are matched case-insensitively; LIKE alone is
// case-sensitive on postgres.
func (s *Store) UsersByEmailDomain(ctx context.Context, domain string) ([]User, error) {
	var out []User
	err := s.DB.WithContext(ctx).
		Where("LOWER(email) LIKE ?", "%@"+strings.ToLower(domain)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading users by email domain: %w", err)
	}
	return out, nil
}

// HasRole reports whether the user holds the named role.
func (s *Store) HasRole(ctx context.Context, userID uint, role string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&UserRole{}).
		Where("user_id = ? AND role = ?", userID, role).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return n > 0, nil
}

// AddRole grants the named role. Granting an already-held role is a no-op.
func (s *Store) AddRole(ctx context.Context, userID uint, role string) error {
	row := UserRole{UserID: userID, Role: role}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("adding role: %w", err)
	}
	return nil
}

func (s *Store) RemoveRole(ctx context.Context, userID uint, role string) error {
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		Delete(&UserRole{}).Error
	if err != nil {
		return fmt.Errorf("removing role: %w", err)
	}
	return nil
}

// CreateNote writes an audit annotation. A nil authorID means the
// action was taken by the system itself.
func (s *Store) CreateNote(ctx context.Context, authorID *uint, noteableType string, noteableID uint, reason, content string) error {
	note := Note{
		AuthorID:     authorID,
		NoteableType: noteableType,
		NoteableID:   noteableID,
		Reason:       reason,
		Content:      content,
	}
	if err := s.DB.WithContext(ctx).Create(&note).Error; err != nil {
		return fmt.Errorf("creating note: %w", err)
	}
	return nil
}

// RecentlyReactedArticleIDs returns distinct articles which received a
// reaction after the cutoff. Drives the periodic score refresh sweep.
func (s *Store) RecentlyReactedArticleIDs(ctx context.Context, since time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).Model(&Reaction{}).
		Distinct("reactable_id").
		Where("reactable_type = ? AND created_at > ?", "Article", since).
		Limit(limit).
		Pluck("reactable_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("querying recently reacted articles: %w", err)
	}
	return ids, nil
}

// RecentReactorIDs returns distinct users who reacted to any article
// after the cutoff. Drives the periodic ring detection sweep.
func (s *Store) RecentReactorIDs(ctx context.Context, since time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).Model(&Reaction{}).
		Distinct("user_id").
		Where("reactable_type = ? AND created_at > ?", "Article", since).
		Limit(limit).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("querying recent reactors: %w", err)
	}
	return ids, nil
}
