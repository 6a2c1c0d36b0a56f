package quest

import "time"

type CreateQuestRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	GoalID      string     `json:"goal_id"`
	RewardXP    int        `json:"reward_xp"`
	Deadline    *time.Time `json:"deadline"`
}

// UpdateQuestRequest edits a draft quest; nil fields are untouched.
type UpdateQuestRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	GoalID      *string    `json:"goal_id"`
	RewardXP    *int       `json:"reward_xp"`
	Deadline    *time.Time `json:"deadline"`
}

type CreateTemplateRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Privacy     string   `json:"privacy"`
	RewardXP    int      `json:"reward_xp"`
	Tags        []string `json:"tags"`
}

type UpdateTemplateRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Privacy     *string   `json:"privacy"`
	RewardXP    *int      `json:"reward_xp"`
	Tags        *[]string `json:"tags"`
}

// InstantiateRequest creates a quest from a template. Owner defaults to the
// caller; instantiating another user's template requires it to be public.
type InstantiateRequest struct {
	Owner    string     `json:"owner"`
	Deadline *time.Time `json:"deadline"`
}

// SweepReport summarizes one auto-completion pass.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// AnalyticsReport aggregates a user's quests over a period.
type AnalyticsReport struct {
	Period               string         `json:"period"`
	Counts               map[string]int `json:"counts"`
	CompletionRate       float64        `json:"completion_rate"`
	AvgCompletionSeconds float64        `json:"avg_completion_seconds"`
	XPEarned             int            `json:"xp_earned"`
	ComputedAt           time.Time      `json:"computed_at"`
}
