package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := SetupDatabase("sqlite://:memory:", 40)
	require.NoError(t, err)
	require.NoError(t, MigrateDatabase(db))
	return NewStore(db)
}

func mkUser(t *testing.T, st *Store, username, email string) *User {
	t.Helper()
	u := &User{Username: username, Email: email, ReputationModifier: 1.0, RegisteredAt: time.Now()}
	require.NoError(t, st.DB.Create(u).Error)
	return u
}

func mkArticle(t *testing.T, st *Store, userID *uint) *Article {
	t.Helper()
	now := time.Now()
	a := &Article{UserID: userID, Title: "t", PublishedAt: &now}
	require.NoError(t, st.DB.Create(a).Error)
	return a
}

func mkReaction(t *testing.T, st *Store, user *User, articleID uint, category string, at time.Time) {
	t.Helper()
	_, err := st.CreateReaction(context.Background(), user, "Article", articleID, category, at)
	require.NoError(t, err)
}

func TestReactionPoints(t *testing.T) {
	assert := assert.New(t)

	heavy := &User{ReputationModifier: 2.0}
	assert.Equal(2.0, ReactionPoints(ReactionLike, heavy))
	assert.Equal(-10.0, ReactionPoints(ReactionVomit, heavy))

	// zero or missing modifier falls back to the base weight
	assert.Equal(1.0, ReactionPoints(ReactionLike, &User{}))
	assert.Equal(1.0, ReactionPoints(ReactionLike, nil))

	assert.Equal(0.0, ReactionPoints("bogus", heavy))
}

func TestCreateReaction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	author := mkUser(t, st, "author", "a@example.com")
	reactor := &User{Username: "heavy", Email: "h@example.com", ReputationModifier: 2.0, RegisteredAt: time.Now()}
	require.NoError(t, st.DB.Create(reactor).Error)
	a := mkArticle(t, st, &author.ID)

	r, err := st.CreateReaction(ctx, reactor, "Article", a.ID, ReactionLike, time.Now())
	assert.NoError(err)
	assert.Equal(2.0, r.Points)

	// re-reacting with the same tuple is a no-op
	_, err = st.CreateReaction(ctx, reactor, "Article", a.ID, ReactionLike, time.Now())
	assert.NoError(err)
	var count int64
	require.NoError(t, st.DB.Model(&Reaction{}).Count(&count).Error)
	assert.EqualValues(1, count)
}

func TestPointLookups(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	u := mkUser(t, st, "alice", "alice@example.com")
	a := mkArticle(t, st, &u.ID)

	got, err := st.GetUser(ctx, u.ID)
	assert.NoError(err)
	assert.Equal("alice", got.Username)

	_, err = st.GetUser(ctx, 999)
	assert.ErrorIs(err, ErrNotFound)
	_, err = st.GetArticle(ctx, 999)
	assert.ErrorIs(err, ErrNotFound)
	_, err = st.GetComment(ctx, 999)
	assert.ErrorIs(err, ErrNotFound)

	r, err := st.LookupReactable(ctx, "Article", a.ID)
	assert.NoError(err)
	assert.NotNil(r)
	_, err = st.LookupReactable(ctx, "Podcast", 1)
	assert.ErrorIs(err, ErrNotFound)
}

func TestReactionTargetAuthors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	reactor := mkUser(t, st, "reactor", "r@example.com")
	authorA := mkUser(t, st, "authora", "a@example.com")
	authorB := mkUser(t, st, "authorb", "b@example.com")

	now := time.Now()
	aA := mkArticle(t, st, &authorA.ID)
	aB := mkArticle(t, st, &authorB.ID)
	own := mkArticle(t, st, &reactor.ID)
	orphan := mkArticle(t, st, nil)

	mkReaction(t, st, reactor, aA.ID, ReactionLike, now)
	mkReaction(t, st, reactor, aB.ID, ReactionUnicorn, now)
	mkReaction(t, st, reactor, own.ID, ReactionLike, now)
	mkReaction(t, st, reactor, orphan.ID, ReactionLike, now)
	// moderation reactions do not establish edges
	mkReaction(t, st, reactor, aA.ID, ReactionVomit, now)

	authors, err := st.ReactionTargetAuthors(ctx, reactor.ID, now.Add(-time.Hour), 100)
	assert.NoError(err)
	assert.ElementsMatch([]uint{authorA.ID, authorB.ID}, authors)

	// outside the lookback window
	authors, err = st.ReactionTargetAuthors(ctx, reactor.ID, now.Add(time.Hour), 100)
	assert.NoError(err)
	assert.Empty(authors)
}

func TestCoReactionEdges(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	u1 := mkUser(t, st, "u1", "u1@example.com")
	u2 := mkUser(t, st, "u2", "u2@example.com")
	outsider := mkUser(t, st, "outsider", "o@example.com")

	now := time.Now()
	a1 := mkArticle(t, st, &u1.ID)
	a2 := mkArticle(t, st, &u2.ID)
	aOut := mkArticle(t, st, &outsider.ID)

	mkReaction(t, st, u1, a2.ID, ReactionLike, now)
	mkReaction(t, st, u2, a1.ID, ReactionLike, now)
	// edges touching users outside the candidate set are excluded
	mkReaction(t, st, u1, aOut.ID, ReactionLike, now)
	mkReaction(t, st, outsider, a1.ID, ReactionLike, now)

	edges, err := st.CoReactionEdges(ctx, []uint{u1.ID, u2.ID}, now.Add(-time.Hour))
	assert.NoError(err)
	require.Len(t, edges, 2)
	seen := map[[2]uint]bool{}
	for _, e := range edges {
		seen[[2]uint{e.ReactorID, e.AuthorID}] = true
	}
	assert.True(seen[[2]uint{u1.ID, u2.ID}])
	assert.True(seen[[2]uint{u2.ID, u1.ID}])

	edges, err = st.CoReactionEdges(ctx, nil, now)
	assert.NoError(err)
	assert.Empty(edges)
}

func TestPublicArticleReactionCount(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	reactor := mkUser(t, st, "reactor", "r@example.com")
	author := mkUser(t, st, "author", "a@example.com")
	now := time.Now()

	a := mkArticle(t, st, &author.ID)
	mkReaction(t, st, reactor, a.ID, ReactionLike, now)
	mkReaction(t, st, reactor, a.ID, ReactionUnicorn, now)
	mkReaction(t, st, reactor, a.ID, ReactionVomit, now)
	mkReaction(t, st, reactor, a.ID, ReactionHands, now.Add(-100*24*time.Hour))

	n, err := st.PublicArticleReactionCount(ctx, reactor.ID, now.Add(-90*24*time.Hour))
	assert.NoError(err)
	assert.Equal(2, n)
}

func TestRoles(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	u := mkUser(t, st, "alice", "alice@example.com")

	has, err := st.HasRole(ctx, u.ID, RoleTrusted)
	assert.NoError(err)
	assert.False(has)

	assert.NoError(st.AddRole(ctx, u.ID, RoleTrusted))
	// duplicate grant is a no-op, not an error
	assert.NoError(st.AddRole(ctx, u.ID, RoleTrusted))

	has, err = st.HasRole(ctx, u.ID, RoleTrusted)
	assert.NoError(err)
	assert.True(has)

	var count int64
	require.NoError(t, st.DB.Model(&UserRole{}).Where("user_id = ?", u.ID).Count(&count).Error)
	assert.EqualValues(1, count)

	assert.NoError(st.RemoveRole(ctx, u.ID, RoleTrusted))
	has, err = st.HasRole(ctx, u.ID, RoleTrusted)
	assert.NoError(err)
	assert.False(has)
}

func TestBlockedEmailDomains(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	assert.NoError(st.CreateBlockedEmailDomain(ctx, "spam.example"))
	assert.NoError(st.CreateBlockedEmailDomain(ctx, "spam.example"))

	var count int64
	require.NoError(t, st.DB.Model(&BlockedEmailDomain{}).Count(&count).Error)
	assert.EqualValues(1, count)

	assert.NoError(st.DeleteBlockedEmailDomain(ctx, "spam.example"))
	require.NoError(t, st.DB.Model(&BlockedEmailDomain{}).Count(&count).Error)
	assert.EqualValues(0, count)
}

func TestUsersByEmailDomain(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	alice := mkUser(t, st, "alice", "alice@spam.example")
	mkUser(t, st, "bob", "bob@ok.example")
	// subdomain addresses are a different domain
	mkUser(t, st, "carol", "carol@mail.spam.example")
	// stored casing must not matter; postgres LIKE is case-sensitive
	dan := mkUser(t, st, "dan", "Dan@Spam.Example")

	users, err := st.UsersByEmailDomain(ctx, "spam.example")
	assert.NoError(err)
	require.Len(t, users, 2)
	ids := []uint{users[0].ID, users[1].ID}
	assert.Contains(ids, alice.ID)
	assert.Contains(ids, dan.ID)
}

func TestSweepQueries(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore(t)

	reactor := mkUser(t, st, "reactor", "r@example.com")
	author := mkUser(t, st, "author", "a@example.com")
	now := time.Now()

	a1 := mkArticle(t, st, &author.ID)
	a2 := mkArticle(t, st, &author.ID)
	mkReaction(t, st, reactor, a1.ID, ReactionLike, now)
	mkReaction(t, st, reactor, a1.ID, ReactionUnicorn, now)
	mkReaction(t, st, reactor, a2.ID, ReactionLike, now.Add(-time.Hour))

	ids, err := st.RecentlyReactedArticleIDs(ctx, now.Add(-time.Minute), 100)
	assert.NoError(err)
	assert.ElementsMatch([]uint{a1.ID}, ids)

	reactors, err := st.RecentReactorIDs(ctx, now.Add(-time.Minute), 100)
	assert.NoError(err)
	assert.ElementsMatch([]uint{reactor.ID}, reactors)
}
