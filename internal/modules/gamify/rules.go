package gamify

import (
	"math"

	"github.com/questline/core/internal/pkg/events"
)

// Rule maps one event type to its XP delta. Badges bind to score
// thresholds, not to individual events (see badgeThresholds).
type Rule struct {
	XP int
}

// rules is the closed event vocabulary and its XP awards.
var rules = map[string]Rule{
	events.TaskCompleted:    {XP: 10},
	events.GoalCompleted:    {XP: 100},
	events.QuestCompleted:   {XP: 50},
	events.MilestoneReached: {XP: 25},
	events.CommentPosted:    {XP: 2},
}

// badgeThresholds grants a badge the first time the score reaches the bound.
var badgeThresholds = []struct {
	Score int64
	Badge string
}{
	{100, "first-steps"},
	{500, "committed"},
	{2500, "achiever"},
	{10000, "legend"},
}

// LevelFor derives the level from the score: level 1 at zero, one level per
// squared century of score.
func LevelFor(score int64) int {
	if score < 0 {
		return 1
	}
	return 1 + int(math.Floor(math.Sqrt(float64(score)/100)))
}

// badgesFor lists badges earned at score that are not yet held.
func badgesFor(score int64, held []string) []string {
	has := make(map[string]bool, len(held))
	for _, b := range held {
		has[b] = true
	}
	var earned []string
	for _, bt := range badgeThresholds {
		if score >= bt.Score && !has[bt.Badge] {
			earned = append(earned, bt.Badge)
		}
	}
	return earned
}
