package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-community/trustmod/store"
)

// seedClique builds n users who each author three articles and react to
// every other member's articles across all public categories. Each
// member ends up with 15*(n-1) outbound reactions, well past the
// detection activity floor for n >= 2.
func seedClique(t *testing.T, eng *Engine, n int) []*store.User {
	t.Helper()
	users := make([]*store.User, n)
	articles := make(map[uint][]*store.Article)
	for i := range users {
		users[i] = seedUser(t, eng, fmt.Sprintf("ringer%d", i), fmt.Sprintf("ringer%d@example.com", i))
		for j := 0; j < 3; j++ {
			articles[users[i].ID] = append(articles[users[i].ID], seedArticle(t, eng, &users[i].ID, 24*time.Hour))
		}
	}
	reactedAt := time.Now().Add(-30 * 24 * time.Hour)
	for _, reactor := range users {
		for _, author := range users {
			if reactor.ID == author.ID {
				continue
			}
			for _, a := range articles[author.ID] {
				for _, cat := range store.PublicReactionCategories() {
					seedReaction(t, eng, reactor, "Article", a.ID, cat, reactedAt)
				}
			}
		}
	}
	return users
}

func TestDetectAndEscalateRing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	notifier := &capturingNotifier{}
	eng.Notifier = notifier

	users := seedClique(t, eng, 5)
	subject := users[0]

	assert.NoError(eng.DetectAndEscalateRing(ctx, subject.ID))

	notes := notesFor(t, eng, subject.ID, "reaction_ring_detected")
	require.Len(t, notes, 1)
	assert.Contains(notes[0].Content, "5 accounts")
	require.Len(t, notifier.messages(), 1)
	assert.Contains(notifier.messages()[0], "reaction ring suspected")

	// same day: detection note again, but moderators are not re-pinged
	assert.NoError(eng.DetectAndEscalateRing(ctx, subject.ID))
	assert.Len(notesFor(t, eng, subject.ID, "reaction_ring_detected"), 2)
	assert.Len(notifier.messages(), 1)
}

func TestDetectRingBelowActivityFloor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()

	subject := seedUser(t, eng, "quiet", "quiet@example.com")
	author := seedUser(t, eng, "author", "author@example.com")
	reactedAt := time.Now().Add(-10 * 24 * time.Hour)
	count := 0
	for j := 0; j < 10 && count < 49; j++ {
		a := seedArticle(t, eng, &author.ID, 24*time.Hour)
		for _, cat := range store.PublicReactionCategories() {
			if count >= 49 {
				break
			}
			seedReaction(t, eng, subject, "Article", a.ID, cat, reactedAt)
			count++
		}
	}

	assert.NoError(eng.DetectAndEscalateRing(ctx, subject.ID))
	assert.Empty(notesFor(t, eng, subject.ID, "reaction_ring_detected"))
}

func TestDetectRingSkipsTrustedAndStaff(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	notifier := &capturingNotifier{}
	eng.Notifier = notifier

	users := seedClique(t, eng, 5)
	require.NoError(t, eng.Store.AddRole(ctx, users[0].ID, store.RoleTrusted))
	require.NoError(t, eng.Store.AddRole(ctx, users[1].ID, store.RoleAdmin))

	assert.NoError(eng.DetectAndEscalateRing(ctx, users[0].ID))
	assert.NoError(eng.DetectAndEscalateRing(ctx, users[1].ID))
	assert.Empty(notesFor(t, eng, users[0].ID, "reaction_ring_detected"))
	assert.Empty(notesFor(t, eng, users[1].ID, "reaction_ring_detected"))
	assert.Empty(notifier.messages())

	// an unprivileged member of the same clique is still caught
	assert.NoError(eng.DetectAndEscalateRing(ctx, users[2].ID))
	assert.Len(notesFor(t, eng, users[2].ID, "reaction_ring_detected"), 1)
}

func TestDetectRingMissingUser(t *testing.T) {
	ctx := context.Background()
	eng := EngineTestFixture()
	assert.NoError(t, eng.DetectAndEscalateRing(ctx, 424242))
}

func TestDetectRingOrganicActivity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()

	// heavy but one-directional reader: lots of outbound reactions to
	// popular authors who never reciprocate
	subject := seedUser(t, eng, "reader", "reader@example.com")
	reactedAt := time.Now().Add(-20 * 24 * time.Hour)
	for i := 0; i < 4; i++ {
		author := seedUser(t, eng, fmt.Sprintf("popular%d", i), fmt.Sprintf("popular%d@example.com", i))
		for j := 0; j < 3; j++ {
			a := seedArticle(t, eng, &author.ID, 24*time.Hour)
			for _, cat := range store.PublicReactionCategories() {
				seedReaction(t, eng, subject, "Article", a.ID, cat, reactedAt)
			}
		}
	}

	assert.NoError(eng.DetectAndEscalateRing(ctx, subject.ID))
	assert.Empty(notesFor(t, eng, subject.ID, "reaction_ring_detected"))
}
