package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/store"
	"github.com/questline/core/internal/store/storetest"
	assert "github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(storetest.New(), "core-test", nil)
}

func sampleGoal(userID, goalID string) *models.Goal {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.NewGoal(userID, goalID, "learn the violin", now.Add(90*24*time.Hour), now)
}

func TestPutGetRoundtrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	g := sampleGoal("u1", "g1")
	g.Tags = []string{"music", "practice"}
	assert.NoError(t, st.Put(ctx, g))

	var got models.Goal
	assert.NoError(t, st.Get(ctx, models.UserPK("u1"), models.GoalSK("g1"), &got))
	assert.Equal(t, g.Title, got.Title)
	assert.Equal(t, g.Tags, got.Tags)
	assert.Equal(t, int64(1), got.Version)
}

func TestGetMissingIsNotFound(t *testing.T) {
	st := newStore(t)
	var got models.Goal
	err := st.Get(context.Background(), models.UserPK("u1"), models.GoalSK("nope"), &got)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, kind.Is(err, kind.NotFound))
}

func TestPutIfAbsentConflict(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	g := sampleGoal("u1", "g1")
	assert.NoError(t, st.PutIfAbsent(ctx, g))
	assert.ErrorIs(t, st.PutIfAbsent(ctx, g), store.ErrConditionFailed)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	st := newStore(t)
	assert.NoError(t, st.Delete(context.Background(), models.UserPK("u1"), models.GoalSK("gone")))
}

func TestUpdateWithVersion(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	g := sampleGoal("u1", "g1")
	assert.NoError(t, st.Put(ctx, g))

	g.Title = "learn the viola"
	assert.NoError(t, st.UpdateWithVersion(ctx, g, 1))

	var got models.Goal
	assert.NoError(t, st.Get(ctx, g.PK, g.SK, &got))
	assert.Equal(t, "learn the viola", got.Title)
	assert.Equal(t, int64(2), got.Version)

	// A writer holding the stale version loses.
	g.Title = "stale write"
	err := st.UpdateWithVersion(ctx, g, 1)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.True(t, kind.Is(err, kind.ConflictVersion))
}

func TestRetryVersionedRetriesConflicts(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	g := sampleGoal("u1", "g1")
	assert.NoError(t, st.Put(ctx, g))

	attempts := 0
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		attempts++
		var cur models.Goal
		if err := st.GetConsistent(ctx, g.PK, g.SK, &cur); err != nil {
			return err
		}
		if attempts == 1 {
			// Interleave a competing write so the first attempt loses.
			interloper := cur
			interloper.Title = "someone else"
			assert.NoError(t, st.UpdateWithVersion(ctx, &interloper, cur.Version))
		}
		cur.Title = "mine"
		return st.UpdateWithVersion(ctx, &cur, cur.Version)
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)

	var got models.Goal
	assert.NoError(t, st.Get(ctx, g.PK, g.SK, &got))
	assert.Equal(t, "mine", got.Title)
	assert.Equal(t, int64(3), got.Version)
}

func TestRetryVersionedPermanentErrorStops(t *testing.T) {
	attempts := 0
	err := store.RetryVersioned(context.Background(), func(ctx context.Context) error {
		attempts++
		return kind.New(kind.NotFound, "gone")
	})
	assert.True(t, kind.Is(err, kind.NotFound))
	assert.Equal(t, 1, attempts)
}

func TestTxnAtomicity(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	existing := sampleGoal("u1", "g1")
	assert.NoError(t, st.Put(ctx, existing))

	// One failing condition cancels the whole batch.
	fresh := sampleGoal("u1", "g2")
	err := st.Txn().
		PutIfAbsent(fresh).
		PutIfAbsent(existing).
		Run(ctx)
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	var got models.Goal
	err = st.Get(ctx, fresh.PK, fresh.SK, &got)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTxnChecks(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	anchor := sampleGoal("u1", "g1")
	assert.NoError(t, st.Put(ctx, anchor))

	payload := sampleGoal("u1", "g2")
	assert.NoError(t, st.Txn().
		CheckExists(anchor.PK, anchor.SK).
		CheckAbsent(models.UserPK("u1"), models.GoalSK("g3")).
		Put(payload).
		Run(ctx))

	err := st.Txn().
		CheckAbsent(anchor.PK, anchor.SK).
		Put(sampleGoal("u1", "g4")).
		Run(ctx)
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}

func TestTxnPutIfVersion(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	g := sampleGoal("u1", "g1")
	assert.NoError(t, st.Put(ctx, g))

	g.Title = "renamed"
	assert.NoError(t, st.Txn().PutIfVersion(g, 1).Run(ctx))

	var got models.Goal
	assert.NoError(t, st.Get(ctx, g.PK, g.SK, &got))
	assert.Equal(t, int64(2), got.Version)

	err := st.Txn().PutIfVersion(g, 1).Run(ctx)
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}

func TestQueryPartitionPagination(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3", "g4", "g5"} {
		assert.NoError(t, st.Put(ctx, sampleGoal("u1", id)))
	}
	// Another user's partition stays invisible.
	assert.NoError(t, st.Put(ctx, sampleGoal("u2", "g9")))

	first, res, err := store.QueryPartition[models.Goal](ctx, st, models.UserPK("u1"), models.PrefixGoal, store.Page{Limit: 2})
	assert.NoError(t, err)
	assert.Len(t, first, 2)
	assert.True(t, res.HasMore)
	assert.NotEmpty(t, res.Cursor)

	second, res, err := store.QueryPartition[models.Goal](ctx, st, models.UserPK("u1"), models.PrefixGoal, store.Page{Limit: 2, Cursor: res.Cursor})
	assert.NoError(t, err)
	assert.Len(t, second, 2)
	assert.True(t, res.HasMore)

	third, res, err := store.QueryPartition[models.Goal](ctx, st, models.UserPK("u1"), models.PrefixGoal, store.Page{Limit: 2, Cursor: res.Cursor})
	assert.NoError(t, err)
	assert.Len(t, third, 1)
	assert.False(t, res.HasMore)

	seen := map[string]bool{}
	for _, g := range append(append(first, second...), third...) {
		seen[g.GoalID] = true
	}
	assert.Len(t, seen, 5)
}

func TestQueryPartitionDescending(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3"} {
		msg := models.NewChatMessage("room-1", id, "u1", "hello", int64(i), base.Add(time.Duration(i)*time.Second))
		assert.NoError(t, st.Put(ctx, msg))
	}

	msgs, _, err := store.QueryPartition[models.ChatMessage](ctx, st, models.RoomPK("room-1"), models.PrefixMessage, store.Page{Descending: true})
	assert.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, "m3", msgs[0].MessageID)
	assert.Equal(t, "m1", msgs[2].MessageID)
}

func TestQueryRangeWindow(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	type attempt struct {
		PK string `dynamodbav:"PK"`
		SK string `dynamodbav:"SK"`
	}
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 10 * time.Minute)
		assert.NoError(t, st.Put(ctx, attempt{
			PK: models.UserPK("u1"),
			SK: models.AttemptSK(at, "n"),
		}))
	}

	from, to := models.AttemptSKWindow(base.Add(5*time.Minute), base.Add(25*time.Minute))
	rows, _, err := store.QueryRange[attempt](ctx, st, models.UserPK("u1"), from, to, store.Page{})
	assert.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQueryIndexPublicGuilds(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		g := models.NewGuild(id, "guild "+id, models.GuildPublic, "owner", base.Add(time.Duration(i)*time.Hour))
		assert.NoError(t, st.Put(ctx, g))
	}
	private := models.NewGuild("p", "hidden", models.GuildPrivate, "owner", base)
	assert.NoError(t, st.Put(ctx, private))

	guilds, _, err := store.QueryIndex[models.Guild](ctx, st, models.IndexGuildTypeCreatedAt, models.GuildTypePK(models.GuildPublic), "", store.Page{Descending: true})
	assert.NoError(t, err)
	assert.Len(t, guilds, 3)
	assert.Equal(t, "c", guilds[0].GuildID)

	_, _, err = store.QueryIndex[models.Guild](ctx, st, "NoSuchIndex", "x", "", store.Page{})
	assert.Error(t, err)
}

func TestMalformedCursorRejected(t *testing.T) {
	st := newStore(t)
	_, _, err := store.QueryPartition[models.Goal](context.Background(), st, models.UserPK("u1"), models.PrefixGoal, store.Page{Cursor: "not base64!"})
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestDeleteCascadeGoal(t *testing.T) {
	fake := storetest.New()
	st := store.New(fake, "core-test", nil)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	g := sampleGoal("owner", "g1")
	assert.NoError(t, st.Put(ctx, g))
	assert.NoError(t, st.Put(ctx, models.NewTask("owner", "g1", "t1", "step one", now)))
	assert.NoError(t, st.Put(ctx, models.NewTask("owner", "g1", "t2", "step two", now)))

	invite := models.NewInvite("g1", "owner", "friend", now)
	assert.NoError(t, st.Put(ctx, invite))
	assert.NoError(t, st.Put(ctx, invite.InboxRow()))
	assert.NoError(t, st.Put(ctx, models.NewCollaborator("g1", "friend", now)))
	assert.NoError(t, st.Put(ctx, models.NewGoalComment("g1", "c1", "friend", "", "nice goal", now)))

	// Unrelated data survives.
	assert.NoError(t, st.Put(ctx, sampleGoal("owner", "g2")))

	assert.NoError(t, st.DeleteCascadeGoal(ctx, "owner", "g1"))

	var gone models.Goal
	assert.ErrorIs(t, st.Get(ctx, models.UserPK("owner"), models.GoalSK("g1"), &gone), store.ErrNotFound)

	var inbox models.Invite
	assert.ErrorIs(t, st.Get(ctx, models.UserPK("friend"), models.InviteInboxSK("g1"), &inbox), store.ErrNotFound)

	tasks, _, err := store.QueryPartition[models.Task](ctx, st, models.UserPK("owner"), models.TaskSKPrefix("g1"), store.Page{})
	assert.NoError(t, err)
	assert.Empty(t, tasks)

	var survivor models.Goal
	assert.NoError(t, st.Get(ctx, models.UserPK("owner"), models.GoalSK("g2"), &survivor))
}

func TestDeleteCascadeGuild(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	g := models.NewGuild("g1", "the circle", models.GuildPublic, "owner", now)
	assert.NoError(t, st.Put(ctx, g))
	assert.NoError(t, st.Put(ctx, models.NewGuildMember("g1", "owner", models.RoleOwner, now)))
	assert.NoError(t, st.Put(ctx, models.NewGuildMember("g1", "m1", models.RoleMember, now)))
	assert.NoError(t, st.Put(ctx, models.NewGuildComment("g1", "c1", "m1", "", "hi", now)))

	assert.NoError(t, st.DeleteCascadeGuild(ctx, "g1"))

	var gone models.Guild
	assert.ErrorIs(t, st.Get(ctx, models.GuildPK("g1"), models.GuildMetaSK("g1"), &gone), store.ErrNotFound)

	members, _, err := store.QueryPartition[models.GuildMember](ctx, st, models.GuildPK("g1"), models.PrefixMember, store.Page{})
	assert.NoError(t, err)
	assert.Empty(t, members)
}

func TestBatchDeleteChunking(t *testing.T) {
	fake := storetest.New()
	st := store.New(fake, "core-test", nil)
	ctx := context.Background()

	keys := make([]store.Key, 0, 60)
	for i := 0; i < 60; i++ {
		g := sampleGoal("u1", models.FormatSortableTime(time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC)))
		assert.NoError(t, st.Put(ctx, g))
		keys = append(keys, store.Key{PK: g.PK, SK: g.SK})
	}
	assert.Equal(t, 60, fake.Len("core-test"))
	assert.NoError(t, st.BatchDelete(ctx, keys))
	assert.Equal(t, 0, fake.Len("core-test"))
}
