package models

import "time"

// Quest states. Completed, failed and cancelled are terminal.
const (
	QuestDraft     = "draft"
	QuestActive    = "active"
	QuestCompleted = "completed"
	QuestFailed    = "failed"
	QuestCancelled = "cancelled"
)

// QuestTerminal reports whether state admits no further transitions.
func QuestTerminal(state string) bool {
	switch state {
	case QuestCompleted, QuestFailed, QuestCancelled:
		return true
	}
	return false
}

// questTransitions is the full transition relation. Edit is not a
// transition; it is gated on the draft state separately.
var questTransitions = map[string][]string{
	QuestDraft:  {QuestActive},
	QuestActive: {QuestCompleted, QuestCancelled, QuestFailed},
}

// QuestCanTransition reports whether from → to is a permitted transition.
func QuestCanTransition(from, to string) bool {
	for _, next := range questTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Quest is owner-scoped and may reference one of the owner's goals.
type Quest struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	QuestID     string     `dynamodbav:"questId" json:"id"`
	UserID      string     `dynamodbav:"userId" json:"user_id"`
	GoalID      string     `dynamodbav:"goalId,omitempty" json:"goal_id,omitempty"`
	Title       string     `dynamodbav:"title" json:"title"`
	Description string     `dynamodbav:"description,omitempty" json:"description,omitempty"`
	State       string     `dynamodbav:"state" json:"state"`
	RewardXP    int        `dynamodbav:"rewardXp" json:"reward_xp"`
	Deadline    *time.Time `dynamodbav:"deadline,omitempty" json:"deadline,omitempty"`
	StartedAt   *time.Time `dynamodbav:"startedAt,omitempty" json:"started_at,omitempty"`
	EndedAt     *time.Time `dynamodbav:"endedAt,omitempty" json:"ended_at,omitempty"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"modified"`
}

func NewQuest(userID, questID, title string, now time.Time) *Quest {
	return &Quest{
		PK:        UserPK(userID),
		SK:        QuestSK(questID),
		QuestID:   questID,
		UserID:    userID,
		Title:     title,
		State:     QuestDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Template privacy levels.
const (
	TemplatePublic    = "public"
	TemplateFollowers = "followers"
	TemplatePrivate   = "private"
)

// ValidTemplatePrivacy reports whether p is a known privacy level.
func ValidTemplatePrivacy(p string) bool {
	switch p {
	case TemplatePublic, TemplateFollowers, TemplatePrivate:
		return true
	}
	return false
}

// QuestTemplate is a reusable quest blueprint.
type QuestTemplate struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	TemplateID  string   `dynamodbav:"templateId" json:"id"`
	UserID      string   `dynamodbav:"userId" json:"user_id"`
	Title       string   `dynamodbav:"title" json:"title"`
	Description string   `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Privacy     string   `dynamodbav:"privacy" json:"privacy"`
	RewardXP    int      `dynamodbav:"rewardXp" json:"reward_xp"`
	Tags        []string `dynamodbav:"tags,omitempty" json:"tags,omitempty"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"modified"`
}

func NewQuestTemplate(userID, templateID, title, privacy string, now time.Time) *QuestTemplate {
	return &QuestTemplate{
		PK:         UserPK(userID),
		SK:         TemplateSK(templateID),
		TemplateID: templateID,
		UserID:     userID,
		Title:      title,
		Privacy:    privacy,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
