package goal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/store"
	"github.com/questline/core/internal/store/storetest"
	assert "github.com/stretchr/testify/require"
)

// recorder collects published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(ctx context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	st := store.New(storetest.New(), "core-test", nil)
	bus := events.NewBus(nil)
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	return NewService(st, bus, nil), rec
}

func mustCreateGoal(t *testing.T, svc *Service, userID string) *GoalView {
	t.Helper()
	view, err := svc.CreateGoal(context.Background(), userID, CreateGoalRequest{
		Title:    "write a novel",
		Deadline: time.Now().UTC().Add(60 * 24 * time.Hour),
	})
	assert.NoError(t, err)
	return view
}

func mustCreateTask(t *testing.T, svc *Service, userID, goalID, title string) *models.Task {
	t.Helper()
	task, err := svc.CreateTask(context.Background(), userID, CreateTaskRequest{
		GoalID: goalID,
		Title:  title,
	})
	assert.NoError(t, err)
	return task
}

func TestCreateGoalValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateGoal(ctx, "u1", CreateGoalRequest{Title: "", Deadline: time.Now().Add(48 * time.Hour)})
	assert.True(t, kind.Is(err, kind.ValidationFailed))

	_, err = svc.CreateGoal(ctx, "u1", CreateGoalRequest{Title: "past deadline", Deadline: time.Now().Add(-time.Hour)})
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestListGoalsExcludesTasks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	mustCreateTask(t, svc, "u1", g.GoalID, "chapter one")
	mustCreateTask(t, svc, "u1", g.GoalID, "chapter two")

	goals, _, err := svc.ListGoals(ctx, "u1", store.Page{})
	assert.NoError(t, err)
	assert.Len(t, goals, 1)
	assert.Equal(t, g.GoalID, goals[0].GoalID)
}

func TestCompleteTaskMovesProgress(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	t1 := mustCreateTask(t, svc, "u1", g.GoalID, "outline")
	mustCreateTask(t, svc, "u1", g.GoalID, "draft")

	view, err := svc.CompleteTask(ctx, "u1", g.GoalID, t1.TaskID)
	assert.NoError(t, err)
	assert.Equal(t, 2, view.TasksTotal)
	assert.Equal(t, 1, view.TasksCompleted)
	assert.InDelta(t, 0.5, view.TaskProgress, 1e-9)
	assert.GreaterOrEqual(t, view.Progress, 0.35)
}

func TestCompleteTaskIdempotent(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	task := mustCreateTask(t, svc, "u1", g.GoalID, "only step")

	first, err := svc.CompleteTask(ctx, "u1", g.GoalID, task.TaskID)
	assert.NoError(t, err)
	second, err := svc.CompleteTask(ctx, "u1", g.GoalID, task.TaskID)
	assert.NoError(t, err)

	assert.Equal(t, first.TasksCompleted, second.TasksCompleted)
	assert.Len(t, rec.ofType(events.TaskCompleted), 1)
	// Deadline is far out, so the time component keeps progress below one.
	assert.Empty(t, rec.ofType(events.GoalCompleted))
}

func TestProgressMonotonicUnderCompletion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	var tasks []*models.Task
	for _, title := range []string{"a", "b", "c", "d"} {
		tasks = append(tasks, mustCreateTask(t, svc, "u1", g.GoalID, title))
	}

	last := -1.0
	for _, task := range tasks {
		view, err := svc.CompleteTask(ctx, "u1", g.GoalID, task.TaskID)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, view.Progress, last)
		last = view.Progress
	}
	assert.GreaterOrEqual(t, last, 0.7)
}

func TestMilestonesAnnouncedExactlyOnce(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	var tasks []*models.Task
	for _, title := range []string{"a", "b", "c", "d"} {
		tasks = append(tasks, mustCreateTask(t, svc, "u1", g.GoalID, title))
	}
	for _, task := range tasks {
		_, err := svc.CompleteTask(ctx, "u1", g.GoalID, task.TaskID)
		assert.NoError(t, err)
	}
	// Re-completing the last task must not re-announce anything.
	_, err := svc.CompleteTask(ctx, "u1", g.GoalID, tasks[3].TaskID)
	assert.NoError(t, err)

	// Drive the clock past the deadline so the time component finishes the
	// remaining thresholds, then reconcile again to prove nothing repeats.
	after := g.Deadline.Add(time.Hour)
	_, err = svc.reconcile(ctx, "u1", g.GoalID, after)
	assert.NoError(t, err)
	_, err = svc.reconcile(ctx, "u1", g.GoalID, after)
	assert.NoError(t, err)

	seen := map[string]int{}
	for _, ev := range rec.ofType(events.MilestoneReached) {
		seen[ev.Threshold]++
	}
	for _, threshold := range []string{"0.25", "0.5", "0.75", "1"} {
		assert.Equal(t, 1, seen[threshold], threshold)
	}
	assert.Len(t, rec.ofType(events.GoalCompleted), 1)
}

func TestGoalCompletionFlipsStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	task := mustCreateTask(t, svc, "u1", g.GoalID, "everything")

	_, err := svc.CompleteTask(ctx, "u1", g.GoalID, task.TaskID)
	assert.NoError(t, err)

	view, err := svc.reconcile(ctx, "u1", g.GoalID, g.Deadline.Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, models.GoalCompleted, view.Status)

	// A completed goal refuses new tasks.
	_, err = svc.CreateTask(ctx, "u1", CreateTaskRequest{GoalID: g.GoalID, Title: "late"})
	assert.True(t, kind.Is(err, kind.ConflictState))
}

func TestUpdateGoalPartialPatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	title := "write a trilogy"
	updated, err := svc.UpdateGoal(ctx, "u1", g.GoalID, UpdateGoalRequest{Title: &title})
	assert.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, g.Deadline.Unix(), updated.Deadline.Unix())
	assert.Equal(t, int64(2), updated.Version)
}

func TestGoalOwnershipIsolation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	_, err := svc.GetGoal(ctx, "u2", g.GoalID)
	assert.True(t, kind.Is(err, kind.NotFound))
}

func TestDeleteGoalRemovesTasks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	mustCreateTask(t, svc, "u1", g.GoalID, "step")

	assert.NoError(t, svc.DeleteGoal(ctx, "u1", g.GoalID))

	_, err := svc.GetGoal(ctx, "u1", g.GoalID)
	assert.True(t, kind.Is(err, kind.NotFound))
	views, err := svc.AllGoalProgress(ctx, "u1")
	assert.NoError(t, err)
	assert.Empty(t, views)
}

func TestDeleteGoalUnknownID(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.DeleteGoal(context.Background(), "u1", uuid.NewString())
	assert.True(t, kind.Is(err, kind.NotFound))
}

func TestComputeProgressTimeComponent(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g := models.NewGoal("u1", "g1", "steady", created.Add(10*24*time.Hour), created)

	halfway := created.Add(5 * 24 * time.Hour)
	view := computeProgress(g, nil, halfway)
	assert.InDelta(t, 0.5, view.TimeProgress, 1e-9)
	assert.InDelta(t, 0.3*0.5, view.Progress, 1e-9)

	// Past the deadline the time component clamps at one.
	late := created.Add(20 * 24 * time.Hour)
	view = computeProgress(g, nil, late)
	assert.InDelta(t, 1.0, view.TimeProgress, 1e-9)
}

func TestNewMilestonesAscendingAndUnannounced(t *testing.T) {
	created := time.Now().UTC()
	g := models.NewGoal("u1", "g1", "steady", created.Add(time.Hour*48), created)
	g.Milestones = []string{"0.25"}

	crossed := newMilestones(g, 0.8)
	assert.Equal(t, []string{"0.5", "0.75"}, crossed)

	assert.Empty(t, newMilestones(g, 0.1))
}

func TestCompleteTaskConditionalOnVersion(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()

	g := mustCreateGoal(t, svc, "u1")
	task := mustCreateTask(t, svc, "u1", g.GoalID, "chapter one")
	assert.Equal(t, int64(1), task.Version)

	_, err := svc.CompleteTask(ctx, "u1", g.GoalID, task.TaskID)
	assert.NoError(t, err)

	var stored models.Task
	assert.NoError(t, svc.st.Get(ctx, models.UserPK("u1"), models.TaskSK(g.GoalID, task.TaskID), &stored))
	assert.True(t, stored.Completed)
	assert.Equal(t, int64(2), stored.Version)

	// A writer still holding the pre-completion version loses the
	// condition, so two racing completions cannot both publish.
	stale := stored
	err = svc.st.UpdateWithVersion(ctx, &stale, 1)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = svc.CompleteTask(ctx, "u1", g.GoalID, task.TaskID)
	assert.NoError(t, err)
	assert.Len(t, rec.ofType(events.TaskCompleted), 1)
}
