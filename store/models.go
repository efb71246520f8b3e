package store

import (
	"time"

	"gorm.io/gorm"
)

// Role names assigned to users. Stored as UserRole rows rather than a
// bitmask so that grants carry timestamps and can be audited.
const (
	RoleTrusted        = "trusted"
	RoleSuspended      = "suspended"
	RoleAdmin          = "admin"
	RoleSuperModerator = "super_moderator"
	RoleSpamFlagged    = "spam_flagged"
)

// Reaction categories. "Public" categories are the positive, user-visible
// ones; thumbsdown and vomit are moderation signals.
const (
	ReactionLike        = "like"
	ReactionUnicorn     = "unicorn"
	ReactionReadingList = "readinglist"
	ReactionHands       = "hands"
	ReactionThinking    = "thinking"
	ReactionThumbsdown  = "thumbsdown"
	ReactionVomit       = "vomit"
)

// base points awarded per reaction category, before the reacting user's
// reputation modifier is applied
var ReactionBasePoints = map[string]float64{
	ReactionLike:        1.0,
	ReactionUnicorn:     1.0,
	ReactionReadingList: 1.0,
	ReactionHands:       1.0,
	ReactionThinking:    1.0,
	ReactionThumbsdown:  -1.0,
	ReactionVomit:       -5.0,
}

// ReactionPoints computes the weight a new reaction carries: the
// category base points scaled by the reacting user's reputation
// modifier. Unknown categories and non-positive modifiers carry the
// neutral weight.
func ReactionPoints(category string, user *User) float64 {
	base, ok := ReactionBasePoints[category]
	if !ok {
		return 0
	}
	if user == nil || user.ReputationModifier <= 0 {
		return base
	}
	return base * user.ReputationModifier
}

func PublicReactionCategories() []string {
	return []string{ReactionLike, ReactionUnicorn, ReactionReadingList, ReactionHands, ReactionThinking}
}

// Feed event categories, and the surfaces they can be attributed to.
const (
	FeedEventImpression       = "impression"
	FeedEventClick            = "click"
	FeedEventReaction         = "reaction"
	FeedEventComment          = "comment"
	FeedEventExtendedPageview = "extended_pageview"
)

var feedEventCategories = map[string]bool{
	FeedEventImpression:       true,
	FeedEventClick:            true,
	FeedEventReaction:         true,
	FeedEventComment:          true,
	FeedEventExtendedPageview: true,
}

func ValidFeedEventCategory(category string) bool {
	return feedEventCategories[category]
}

type User struct {
	gorm.Model
	Username               string `gorm:"uniqueindex"`
	Email                  string `gorm:"index"`
	ReputationModifier     float64
	BadgeAchievementsCount int
	RegisteredAt           time.Time
	// account creation date on the external identity provider (eg, the
	// OAuth account used at signup). nullable: not all signup paths have one.
	ExternalAccountCreatedAt *time.Time
}

type UserRole struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UserID    uint   `gorm:"index:idx_user_role,unique"`
	Role      string `gorm:"index:idx_user_role,unique"`
}

type Article struct {
	gorm.Model
	// nullable: articles survive author deletion
	UserID                 *uint `gorm:"index"`
	Title                  string
	BodyMarkdown           string
	PublishedAt            *time.Time `gorm:"index"`
	Score                  int
	HotnessScore           int
	SpaminessRating        int
	CommentsCount          int
	PositiveReactionsCount int
	LastReactedAt          *time.Time
}

type Comment struct {
	gorm.Model
	UserID          *uint `gorm:"index"`
	ArticleID       uint  `gorm:"index"`
	BodyMarkdown    string
	Score           int
	SpaminessRating int
	ReactionsCount  int
	LastReactedAt   *time.Time
}

type Reaction struct {
	ID            uint      `gorm:"primarykey"`
	CreatedAt     time.Time `gorm:"index"`
	UserID        uint      `gorm:"index:idx_reaction_tuple,unique"`
	ReactableType string    `gorm:"index:idx_reaction_tuple,unique"`
	ReactableID   uint      `gorm:"index:idx_reaction_tuple,unique"`
	Category      string    `gorm:"index:idx_reaction_tuple,unique"`
	Points        float64
}

// A single telemetry event from a feed surface. Immutable once created;
// CountsFor is assigned at ingest and never updated.
type FeedEvent struct {
	ID              uint      `gorm:"primarykey"`
	CreatedAt       time.Time `gorm:"index"`
	ArticleID       uint      `gorm:"index"`
	UserID          *uint     `gorm:"index"`
	Category        string
	ArticlePosition int
	ContextType     string
	CountsFor       int
}

type BlockedEmailDomain struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Domain    string `gorm:"uniqueindex"`
}

// Audit annotation attached to a user (or other subject) when automated
// or moderator action is taken.
type Note struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	// nullable author means the system itself
	AuthorID     *uint
	NoteableType string `gorm:"index:idx_noteable"`
	NoteableID   uint   `gorm:"index:idx_noteable"`
	Reason       string
	Content      string
}

// Reactable is the capability surface shared by entities which accept
// reactions. Implemented by Article and Comment.
type Reactable interface {
	TouchByReaction(t time.Time)
	SyncReactionsCount(count int, points float64)
}

func (a *Article) TouchByReaction(t time.Time) {
	a.LastReactedAt = &t
}

func (a *Article) SyncReactionsCount(count int, points float64) {
	a.PositiveReactionsCount = count
}

func (c *Comment) TouchByReaction(t time.Time) {
	c.LastReactedAt = &t
}

func (c *Comment) SyncReactionsCount(count int, points float64) {
	c.ReactionsCount = count
}
