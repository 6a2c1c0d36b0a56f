package goal

import (
	"strconv"
	"time"

	"github.com/questline/core/internal/models"
)

// Hybrid progress weights. Task completion dominates; elapsed time keeps
// long-running goals from looking stalled.
const (
	taskWeight = 0.7
	timeWeight = 0.3
)

// milestoneThresholds are announced in ascending order, each at most once
// per goal.
var milestoneThresholds = []float64{0.25, 0.5, 0.75, 1.0}

// progressEpsilon absorbs float drift in the weighted sum (0.7+0.3 is not
// exactly 1.0 in float64).
const progressEpsilon = 1e-9

// thresholdLabel renders a threshold the way it is stored on the goal row
// ("0.25", "0.5", "0.75", "1").
func thresholdLabel(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

// computeProgress evaluates the hybrid formula for g against its tasks at
// the given instant.
func computeProgress(g *models.Goal, tasks []models.Task, now time.Time) ProgressView {
	completed := 0
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
	}

	taskProgress := 0.0
	if len(tasks) > 0 {
		taskProgress = float64(completed) / float64(len(tasks))
	}

	timeProgress := 0.0
	if g.Deadline.After(g.CreatedAt) {
		timeProgress = clamp01(now.Sub(g.CreatedAt).Seconds() / g.Deadline.Sub(g.CreatedAt).Seconds())
	}

	return ProgressView{
		GoalID:         g.GoalID,
		Title:          g.Title,
		Status:         g.Status,
		Progress:       taskWeight*taskProgress + timeWeight*timeProgress,
		TaskProgress:   taskProgress,
		TimeProgress:   timeProgress,
		TasksTotal:     len(tasks),
		TasksCompleted: completed,
		Milestones:     g.Milestones,
	}
}

// newMilestones lists the thresholds crossed by progress that g has not yet
// announced, in ascending order.
func newMilestones(g *models.Goal, progress float64) []string {
	var crossed []string
	for _, t := range milestoneThresholds {
		if progress+progressEpsilon < t {
			break
		}
		if label := thresholdLabel(t); !g.HasMilestone(label) {
			crossed = append(crossed, label)
		}
	}
	return crossed
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
