package goal

import (
	"time"

	"github.com/questline/core/internal/models"
)

type CreateGoalRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Deadline    time.Time `json:"deadline"`
}

// UpdateGoalRequest is a partial update; nil fields are untouched.
type UpdateGoalRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	Tags        *[]string  `json:"tags"`
	Deadline    *time.Time `json:"deadline"`
}

type CreateTaskRequest struct {
	GoalID      string `json:"goal_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CompleteTaskRequest struct {
	GoalID string `json:"goal_id"`
}

type UpdateTaskRequest struct {
	GoalID      string  `json:"goal_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// GoalView is a goal plus its computed progress; progress is never stored.
type GoalView struct {
	*models.Goal
	Progress float64 `json:"progress"`
}

// ProgressView is the read-side progress report for one goal.
type ProgressView struct {
	GoalID         string   `json:"goal_id"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	Progress       float64  `json:"progress"`
	TaskProgress   float64  `json:"task_progress"`
	TimeProgress   float64  `json:"time_progress"`
	TasksTotal     int      `json:"tasks_total"`
	TasksCompleted int      `json:"tasks_completed"`
	Milestones     []string `json:"milestones,omitempty"`
}
