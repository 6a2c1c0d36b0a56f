package models

import "time"

// Goal statuses.
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
)

// Goal is owner-scoped: the partition is the owner's, so ownership checks
// are free on every read.
type Goal struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GoalID      string     `dynamodbav:"goalId" json:"id"`
	UserID      string     `dynamodbav:"userId" json:"user_id"`
	Title       string     `dynamodbav:"title" json:"title"`
	Description string     `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Category    string     `dynamodbav:"category,omitempty" json:"category,omitempty"`
	Tags        []string   `dynamodbav:"tags,omitempty" json:"tags,omitempty"`
	Status      string     `dynamodbav:"status" json:"status"`
	Deadline    time.Time  `dynamodbav:"deadline" json:"deadline"`
	CompletedAt *time.Time `dynamodbav:"completedAt,omitempty" json:"completed_at,omitempty"`

	// Milestones holds thresholds already announced, as formatted strings
	// ("0.25", "0.5", "0.75", "1"). Guarded by the version check, so each
	// threshold is recorded at most once.
	Milestones []string `dynamodbav:"milestones,omitempty" json:"milestones,omitempty"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"modified"`
}

func NewGoal(userID, goalID, title string, deadline time.Time, now time.Time) *Goal {
	return &Goal{
		PK:        UserPK(userID),
		SK:        GoalSK(goalID),
		GoalID:    goalID,
		UserID:    userID,
		Title:     title,
		Status:    GoalActive,
		Deadline:  deadline,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasMilestone reports whether threshold was already announced.
func (g *Goal) HasMilestone(threshold string) bool {
	for _, m := range g.Milestones {
		if m == threshold {
			return true
		}
	}
	return false
}

// Task lives under its goal; deleting the goal deletes its tasks.
type Task struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	TaskID      string     `dynamodbav:"taskId" json:"id"`
	GoalID      string     `dynamodbav:"goalId" json:"goal_id"`
	UserID      string     `dynamodbav:"userId" json:"user_id"`
	Title       string     `dynamodbav:"title" json:"title"`
	Description string     `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Completed   bool       `dynamodbav:"completed" json:"completed"`
	CompletedAt *time.Time `dynamodbav:"completedAt,omitempty" json:"completed_at,omitempty"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"modified"`
}

func NewTask(userID, goalID, taskID, title string, now time.Time) *Task {
	return &Task{
		PK:        UserPK(userID),
		SK:        TaskSK(goalID, taskID),
		TaskID:    taskID,
		GoalID:    goalID,
		UserID:    userID,
		Title:     title,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GoalComment hangs off the goal partition so collaborators and the owner
// share one listing query.
type GoalComment struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	CommentID string    `dynamodbav:"commentId" json:"id"`
	GoalID    string    `dynamodbav:"goalId" json:"goal_id"`
	AuthorID  string    `dynamodbav:"authorId" json:"author_id"`
	ParentID  string    `dynamodbav:"parentId,omitempty" json:"parent_id,omitempty"`
	Text      string    `dynamodbav:"text" json:"text"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
}

func NewGoalComment(goalID, commentID, authorID, parentID, text string, now time.Time) *GoalComment {
	return &GoalComment{
		PK:        GoalPK(goalID),
		SK:        CommentSK(commentID),
		CommentID: commentID,
		GoalID:    goalID,
		AuthorID:  authorID,
		ParentID:  parentID,
		Text:      text,
		CreatedAt: now,
	}
}

// Reaction marks (user, target, kind); the key alone enforces at-most-one.
type Reaction struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	TargetID  string    `dynamodbav:"targetId" json:"target_id"`
	UserID    string    `dynamodbav:"userId" json:"user_id"`
	Reaction  string    `dynamodbav:"reaction" json:"reaction"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
}

func NewReaction(parentPK, targetID, userID, reaction string, now time.Time) *Reaction {
	return &Reaction{
		PK:        parentPK,
		SK:        ReactionSK(targetID, userID, reaction),
		TargetID:  targetID,
		UserID:    userID,
		Reaction:  reaction,
		CreatedAt: now,
	}
}
