package goal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/events"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

type Service struct {
	st     *store.Store
	bus    *events.Bus
	logger *zap.Logger
}

func NewService(st *store.Store, bus *events.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{st: st, bus: bus, logger: logger.Named("Goal")}
}

func (s *Service) CreateGoal(ctx context.Context, userID string, req CreateGoalRequest) (*GoalView, error) {
	var verr validate.Errors
	title := validate.Text(&verr, "title", req.Title, validate.MaxTitleLen)
	description := validate.OptionalText(&verr, "description", req.Description, validate.MaxDescriptionLen)
	category := validate.OptionalText(&verr, "category", req.Category, validate.MaxTagLen)
	tags := validate.Tags(&verr, "tags", req.Tags)
	now := time.Now().UTC()
	deadline := validate.Deadline(&verr, "deadline", req.Deadline, now)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	g := models.NewGoal(userID, uuid.NewString(), title, deadline, now)
	g.Description = description
	g.Category = category
	g.Tags = tags
	if err := s.st.PutIfAbsent(ctx, g); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, kind.New(kind.ConflictState, "goal already exists")
		}
		return nil, err
	}
	return &GoalView{Goal: g, Progress: 0}, nil
}

// ListGoals pages the owner's goals. Tasks share the GOAL# prefix and are
// filtered out, so a page may come back short of its limit.
func (s *Service) ListGoals(ctx context.Context, userID string, page store.Page) ([]*models.Goal, store.Result, error) {
	rows, res, err := store.QueryPartition[models.Goal](ctx, s.st, models.UserPK(userID), models.PrefixGoal, page)
	if err != nil {
		return nil, store.Result{}, err
	}
	goals := make([]*models.Goal, 0, len(rows))
	for i := range rows {
		if strings.Contains(rows[i].SK, models.PrefixTask) {
			continue
		}
		goals = append(goals, &rows[i])
	}
	return goals, res, nil
}

func (s *Service) GetGoal(ctx context.Context, userID, goalID string) (*models.Goal, error) {
	var g models.Goal
	if err := s.st.Get(ctx, models.UserPK(userID), models.GoalSK(goalID), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Service) UpdateGoal(ctx context.Context, userID, goalID string, req UpdateGoalRequest) (*models.Goal, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	var (
		title, description, category string
		tags                         []string
		deadline                     time.Time
	)
	now := time.Now().UTC()
	if req.Title != nil {
		title = validate.Text(&verr, "title", *req.Title, validate.MaxTitleLen)
	}
	if req.Description != nil {
		description = validate.OptionalText(&verr, "description", *req.Description, validate.MaxDescriptionLen)
	}
	if req.Category != nil {
		category = validate.OptionalText(&verr, "category", *req.Category, validate.MaxTagLen)
	}
	if req.Tags != nil {
		tags = validate.Tags(&verr, "tags", *req.Tags)
	}
	if req.Deadline != nil {
		deadline = validate.Deadline(&verr, "deadline", *req.Deadline, now)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var updated *models.Goal
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var g models.Goal
		if err := s.st.GetConsistent(ctx, models.UserPK(userID), models.GoalSK(goalID), &g); err != nil {
			return err
		}
		if req.Title != nil {
			g.Title = title
		}
		if req.Description != nil {
			g.Description = description
		}
		if req.Category != nil {
			g.Category = category
		}
		if req.Tags != nil {
			g.Tags = tags
		}
		if req.Deadline != nil {
			g.Deadline = deadline
		}
		g.UpdatedAt = now
		if err := s.st.UpdateWithVersion(ctx, &g, g.Version); err != nil {
			return err
		}
		g.Version++
		updated = &g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteGoal removes the goal, its tasks, and its invite mirrors.
func (s *Service) DeleteGoal(ctx context.Context, userID, goalID string) error {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	if err := verr.Err(); err != nil {
		return err
	}
	var g models.Goal
	if err := s.st.Get(ctx, models.UserPK(userID), models.GoalSK(goalID), &g); err != nil {
		return err
	}
	return s.st.DeleteCascadeGoal(ctx, userID, goalID)
}

func (s *Service) CreateTask(ctx context.Context, userID string, req CreateTaskRequest) (*models.Task, error) {
	var verr validate.Errors
	goalID := validate.UUID(&verr, "goal_id", req.GoalID)
	title := validate.Text(&verr, "title", req.Title, validate.MaxTitleLen)
	description := validate.OptionalText(&verr, "description", req.Description, validate.MaxDescriptionLen)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var g models.Goal
	if err := s.st.Get(ctx, models.UserPK(userID), models.GoalSK(goalID), &g); err != nil {
		return nil, err
	}
	if g.Status == models.GoalCompleted {
		return nil, kind.New(kind.ConflictState, "goal already completed")
	}

	now := time.Now().UTC()
	t := models.NewTask(userID, goalID, uuid.NewString(), title, now)
	t.Description = description
	if err := s.st.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdateTask(ctx context.Context, userID, taskID string, req UpdateTaskRequest) (*models.Task, error) {
	var verr validate.Errors
	goalID := validate.UUID(&verr, "goal_id", req.GoalID)
	taskID = validate.UUID(&verr, "task_id", taskID)
	var title, description string
	if req.Title != nil {
		title = validate.Text(&verr, "title", *req.Title, validate.MaxTitleLen)
	}
	if req.Description != nil {
		description = validate.OptionalText(&verr, "description", *req.Description, validate.MaxDescriptionLen)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var t models.Task
	if err := s.st.Get(ctx, models.UserPK(userID), models.TaskSK(goalID, taskID), &t); err != nil {
		return nil, err
	}
	if req.Title != nil {
		t.Title = title
	}
	if req.Description != nil {
		t.Description = description
	}
	t.UpdatedAt = time.Now().UTC()
	version := t.Version
	if err := s.st.UpdateWithVersion(ctx, &t, version); err != nil {
		return nil, err
	}
	t.Version = version + 1
	return &t, nil
}

func (s *Service) DeleteTask(ctx context.Context, userID, goalID, taskID string) error {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	taskID = validate.UUID(&verr, "task_id", taskID)
	if err := verr.Err(); err != nil {
		return err
	}
	var t models.Task
	if err := s.st.Get(ctx, models.UserPK(userID), models.TaskSK(goalID, taskID), &t); err != nil {
		return err
	}
	return s.st.Delete(ctx, models.UserPK(userID), models.TaskSK(goalID, taskID))
}

// CompleteTask marks the task done and reconciles goal progress. Completing
// an already-completed task is a no-op that reports current progress.
func (s *Service) CompleteTask(ctx context.Context, userID, goalID, taskID string) (*ProgressView, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	taskID = validate.UUID(&verr, "task_id", taskID)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var g models.Goal
	if err := s.st.Get(ctx, models.UserPK(userID), models.GoalSK(goalID), &g); err != nil {
		return nil, err
	}
	var t models.Task
	if err := s.st.Get(ctx, models.UserPK(userID), models.TaskSK(goalID, taskID), &t); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !t.Completed {
		version := t.Version
		t.Completed = true
		t.CompletedAt = &now
		t.UpdatedAt = now
		err := s.st.UpdateWithVersion(ctx, &t, version)
		switch {
		case err == nil:
			if s.bus != nil {
				s.bus.Publish(ctx, events.New(events.TaskCompleted, userID, taskID))
			}
		case errors.Is(err, store.ErrVersionConflict):
			// A concurrent completion won the version check; its event
			// stands and this call stays silent.
			var cur models.Task
			if err := s.st.Get(ctx, models.UserPK(userID), models.TaskSK(goalID, taskID), &cur); err != nil {
				return nil, err
			}
			if !cur.Completed {
				return nil, store.ErrVersionConflict
			}
		default:
			return nil, err
		}
	}

	return s.reconcile(ctx, userID, goalID, now)
}

// GoalProgress computes one goal's progress on read.
func (s *Service) GoalProgress(ctx context.Context, userID, goalID string) (*ProgressView, error) {
	var verr validate.Errors
	goalID = validate.UUID(&verr, "goal_id", goalID)
	if err := verr.Err(); err != nil {
		return nil, err
	}
	var g models.Goal
	if err := s.st.Get(ctx, models.UserPK(userID), models.GoalSK(goalID), &g); err != nil {
		return nil, err
	}
	tasks, err := s.loadTasks(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	view := computeProgress(&g, tasks, time.Now().UTC())
	return &view, nil
}

// AllGoalProgress computes progress for every goal of the user.
func (s *Service) AllGoalProgress(ctx context.Context, userID string) ([]ProgressView, error) {
	now := time.Now().UTC()
	views := make([]ProgressView, 0)
	page := store.Page{Limit: store.MaxLimit}
	for {
		goals, res, err := s.ListGoals(ctx, userID, page)
		if err != nil {
			return nil, err
		}
		for _, g := range goals {
			tasks, err := s.loadTasks(ctx, userID, g.GoalID)
			if err != nil {
				return nil, err
			}
			views = append(views, computeProgress(g, tasks, now))
		}
		if !res.HasMore {
			return views, nil
		}
		page.Cursor = res.Cursor
	}
}

// reconcile recomputes progress and records crossed milestones and goal
// completion under the version check, so each is announced exactly once even
// when completions race.
func (s *Service) reconcile(ctx context.Context, userID, goalID string, now time.Time) (*ProgressView, error) {
	tasks, err := s.loadTasks(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}

	var (
		view      ProgressView
		announced []string
		completed bool
	)
	err = store.RetryVersioned(ctx, func(ctx context.Context) error {
		announced = nil
		completed = false

		var g models.Goal
		if err := s.st.GetConsistent(ctx, models.UserPK(userID), models.GoalSK(goalID), &g); err != nil {
			return err
		}
		view = computeProgress(&g, tasks, now)
		announced = newMilestones(&g, view.Progress)
		completed = view.Progress+progressEpsilon >= 1.0 && g.Status != models.GoalCompleted
		if len(announced) == 0 && !completed {
			return nil
		}

		g.Milestones = append(g.Milestones, announced...)
		if completed {
			g.Status = models.GoalCompleted
			g.CompletedAt = &now
		}
		g.UpdatedAt = now
		if err := s.st.UpdateWithVersion(ctx, &g, g.Version); err != nil {
			return err
		}
		view.Status = g.Status
		view.Milestones = g.Milestones
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		for _, label := range announced {
			ev := events.New(events.MilestoneReached, userID, goalID)
			ev.Threshold = label
			s.bus.Publish(ctx, ev)
		}
		if completed {
			s.bus.Publish(ctx, events.New(events.GoalCompleted, userID, goalID))
		}
	}
	return &view, nil
}

func (s *Service) loadTasks(ctx context.Context, userID, goalID string) ([]models.Task, error) {
	var tasks []models.Task
	page := store.Page{Limit: store.MaxLimit}
	for {
		batch, res, err := store.QueryPartition[models.Task](ctx, s.st, models.UserPK(userID), models.TaskSKPrefix(goalID), page)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, batch...)
		if !res.HasMore {
			return tasks, nil
		}
		page.Cursor = res.Cursor
	}
}
