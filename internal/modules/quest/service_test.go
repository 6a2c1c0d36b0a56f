package quest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/modules/goal"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/store"
	"github.com/questline/core/internal/store/storetest"
	assert "github.com/stretchr/testify/require"
)

func newQuestService(t *testing.T) *Service {
	t.Helper()
	st := store.New(storetest.New(), "core-test", nil)
	goals := goal.NewService(st, nil, nil)
	return NewService(st, goals, events.NewBus(nil), nil, nil)
}

func mustCreateQuest(t *testing.T, svc *Service, userID, title string) *models.Quest {
	t.Helper()
	q, err := svc.CreateQuest(context.Background(), userID, CreateQuestRequest{
		Title:    title,
		RewardXP: 100,
	})
	assert.NoError(t, err)
	return q
}

func TestQuestLifecycle(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()

	q := mustCreateQuest(t, svc, "u1", "ship the feature")
	assert.Equal(t, models.QuestDraft, q.State)
	assert.Equal(t, int64(1), q.Version)
	assert.Nil(t, q.StartedAt)

	started, err := svc.Start(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuestActive, started.State)
	assert.NotNil(t, started.StartedAt)
	assert.Equal(t, int64(2), started.Version)

	done, err := svc.Complete(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuestCompleted, done.State)
	assert.NotNil(t, done.EndedAt)
}

func TestQuestCompletionEventPublishedOnce(t *testing.T) {
	st := store.New(storetest.New(), "core-test", nil)
	bus := events.NewBus(nil)
	count := 0
	bus.Subscribe(func(ctx context.Context, ev events.Event) error {
		if ev.Type == events.QuestCompleted {
			count++
		}
		return nil
	})
	svc := NewService(st, goal.NewService(st, nil, nil), bus, nil, nil)
	ctx := context.Background()

	q := mustCreateQuest(t, svc, "u1", "run a marathon")
	_, err := svc.Start(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	_, err = svc.Complete(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.Complete(ctx, "u1", q.QuestID)
	assert.True(t, kind.Is(err, kind.GoneTerminal))
	assert.Equal(t, 1, count)
}

func TestQuestIllegalTransitions(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()

	q := mustCreateQuest(t, svc, "u1", "learn the cello")

	// Draft quests cannot jump straight to a terminal state.
	_, err := svc.Complete(ctx, "u1", q.QuestID)
	assert.True(t, kind.Is(err, kind.ConflictState))
	_, err = svc.Fail(ctx, "u1", q.QuestID)
	assert.True(t, kind.Is(err, kind.ConflictState))

	_, err = svc.Start(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	_, err = svc.Cancel(ctx, "u1", q.QuestID)
	assert.NoError(t, err)

	// Terminal states admit nothing further.
	_, err = svc.Start(ctx, "u1", q.QuestID)
	assert.True(t, kind.Is(err, kind.GoneTerminal))
	_, err = svc.Complete(ctx, "u1", q.QuestID)
	assert.True(t, kind.Is(err, kind.GoneTerminal))
}

func TestUpdateQuestDraftOnly(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()

	q := mustCreateQuest(t, svc, "u1", "first draft")
	title := "second draft"
	updated, err := svc.UpdateQuest(ctx, "u1", q.QuestID, UpdateQuestRequest{Title: &title})
	assert.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, int64(2), updated.Version)

	_, err = svc.Start(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	_, err = svc.UpdateQuest(ctx, "u1", q.QuestID, UpdateQuestRequest{Title: &title})
	assert.True(t, kind.Is(err, kind.ConflictState))

	_, err = svc.Cancel(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	_, err = svc.UpdateQuest(ctx, "u1", q.QuestID, UpdateQuestRequest{Title: &title})
	assert.True(t, kind.Is(err, kind.GoneTerminal))
}

func TestCreateQuestValidation(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()

	_, err := svc.CreateQuest(ctx, "u1", CreateQuestRequest{Title: ""})
	assert.True(t, kind.Is(err, kind.ValidationFailed))

	_, err = svc.CreateQuest(ctx, "u1", CreateQuestRequest{Title: "greedy", RewardXP: 5000})
	assert.True(t, kind.Is(err, kind.ValidationFailed))

	past := time.Now().UTC().Add(-time.Hour)
	_, err = svc.CreateQuest(ctx, "u1", CreateQuestRequest{Title: "late", Deadline: &past})
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestCreateQuestUnknownGoal(t *testing.T) {
	svc := newQuestService(t)
	_, err := svc.CreateQuest(context.Background(), "u1", CreateQuestRequest{
		Title:  "linked",
		GoalID: uuid.NewString(),
	})
	assert.True(t, kind.Is(err, kind.NotFound))
}

func TestSweepCompletesAndFailsQuests(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A goal that finished: one completed task, deadline already behind us.
	goalID := uuid.NewString()
	created := now.Add(-48 * time.Hour)
	g := models.NewGoal("u1", goalID, "finished goal", now.Add(-time.Hour), created)
	assert.NoError(t, svc.st.Put(ctx, g))
	task := models.NewTask("u1", goalID, uuid.NewString(), "done", created)
	task.Completed = true
	assert.NoError(t, svc.st.Put(ctx, task))

	winner, err := svc.CreateQuest(ctx, "u1", CreateQuestRequest{Title: "winner", GoalID: goalID})
	assert.NoError(t, err)
	_, err = svc.Start(ctx, "u1", winner.QuestID)
	assert.NoError(t, err)

	// An active quest whose own deadline has slipped past.
	loser := mustCreateQuest(t, svc, "u1", "loser")
	started, err := svc.Start(ctx, "u1", loser.QuestID)
	assert.NoError(t, err)
	past := now.Add(-time.Minute)
	started.Deadline = &past
	assert.NoError(t, svc.st.Put(ctx, started))

	// A draft quest the sweep must leave alone.
	bystander := mustCreateQuest(t, svc, "u1", "bystander")

	report, err := svc.Sweep(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Failed)

	q, err := svc.GetQuest(ctx, "u1", winner.QuestID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuestCompleted, q.State)
	q, err = svc.GetQuest(ctx, "u1", loser.QuestID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuestFailed, q.State)
	q, err = svc.GetQuest(ctx, "u1", bystander.QuestID)
	assert.NoError(t, err)
	assert.Equal(t, models.QuestDraft, q.State)

	// Re-running moves nothing.
	report, err = svc.Sweep(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, 0, report.Completed)
	assert.Equal(t, 0, report.Failed)
}

func TestSweepAllWithoutRedis(t *testing.T) {
	svc := newQuestService(t)
	report, err := svc.SweepAll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
}

func TestTemplatePrivacy(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()
	owner := uuid.NewString()
	stranger := uuid.NewString()

	tpl, err := svc.CreateTemplate(ctx, owner, CreateTemplateRequest{
		Title:    "morning routine",
		RewardXP: 50,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.TemplatePrivate, tpl.Privacy)

	_, err = svc.GetTemplate(ctx, stranger, owner, tpl.TemplateID)
	assert.True(t, kind.Is(err, kind.PermissionDenied))

	public := models.TemplatePublic
	_, err = svc.UpdateTemplate(ctx, owner, tpl.TemplateID, UpdateTemplateRequest{Privacy: &public})
	assert.NoError(t, err)

	got, err := svc.GetTemplate(ctx, stranger, owner, tpl.TemplateID)
	assert.NoError(t, err)
	assert.Equal(t, tpl.TemplateID, got.TemplateID)
}

func TestInstantiateTemplate(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()
	owner := uuid.NewString()
	stranger := uuid.NewString()

	tpl, err := svc.CreateTemplate(ctx, owner, CreateTemplateRequest{
		Title:    "weekly review",
		Privacy:  models.TemplatePublic,
		RewardXP: 75,
	})
	assert.NoError(t, err)

	q, err := svc.Instantiate(ctx, stranger, tpl.TemplateID, InstantiateRequest{Owner: owner})
	assert.NoError(t, err)
	assert.Equal(t, models.QuestDraft, q.State)
	assert.Equal(t, "weekly review", q.Title)
	assert.Equal(t, 75, q.RewardXP)
	assert.Equal(t, stranger, q.UserID)
}

func TestAnalyticsAggregation(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()

	complete := func(title string) {
		q := mustCreateQuest(t, svc, "u1", title)
		_, err := svc.Start(ctx, "u1", q.QuestID)
		assert.NoError(t, err)
		_, err = svc.Complete(ctx, "u1", q.QuestID)
		assert.NoError(t, err)
	}
	complete("one")
	complete("two")

	q := mustCreateQuest(t, svc, "u1", "three")
	_, err := svc.Start(ctx, "u1", q.QuestID)
	assert.NoError(t, err)
	_, err = svc.Fail(ctx, "u1", q.QuestID)
	assert.NoError(t, err)

	mustCreateQuest(t, svc, "u1", "still drafting")

	report, err := svc.Analytics(ctx, "u1", "30d")
	assert.NoError(t, err)
	assert.Equal(t, 2, report.Counts[models.QuestCompleted])
	assert.Equal(t, 1, report.Counts[models.QuestFailed])
	assert.Equal(t, 1, report.Counts[models.QuestDraft])
	assert.InDelta(t, 2.0/3.0, report.CompletionRate, 1e-9)
	assert.Equal(t, 200, report.XPEarned)

	_, err = svc.Analytics(ctx, "u1", "yesterday")
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestAnalyticsCached(t *testing.T) {
	svc := newQuestService(t)
	ctx := context.Background()

	first, err := svc.Analytics(ctx, "u1", "7d")
	assert.NoError(t, err)

	// New quests do not show until the cache entry expires.
	mustCreateQuest(t, svc, "u1", "after the snapshot")
	second, err := svc.Analytics(ctx, "u1", "7d")
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}
