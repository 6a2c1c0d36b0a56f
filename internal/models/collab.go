package models

import "time"

// Invite statuses.
const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
)

// Invite is written twice: under the goal for the owner's view and under the
// invitee for the inbox. Both rows flip status together in one transaction.
type Invite struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GoalID    string    `dynamodbav:"goalId" json:"goal_id"`
	OwnerID   string    `dynamodbav:"ownerId" json:"owner_id"`
	InviteeID string    `dynamodbav:"inviteeId" json:"invitee_id"`
	Status    string    `dynamodbav:"status" json:"status"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"modified"`
}

// NewInvite builds the goal-side row.
func NewInvite(goalID, ownerID, inviteeID string, now time.Time) *Invite {
	return &Invite{
		PK:        GoalPK(goalID),
		SK:        InviteSK(inviteeID),
		GoalID:    goalID,
		OwnerID:   ownerID,
		InviteeID: inviteeID,
		Status:    InvitePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InboxRow returns the mirrored invitee-side row.
func (i *Invite) InboxRow() *Invite {
	mirror := *i
	mirror.PK = UserPK(i.InviteeID)
	mirror.SK = InviteInboxSK(i.GoalID)
	return &mirror
}

// Collaborator grants a user access to someone else's goal. Written on
// invite accept.
type Collaborator struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	GoalID    string    `dynamodbav:"goalId" json:"goal_id"`
	UserID    string    `dynamodbav:"userId" json:"user_id"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created"`
}

func NewCollaborator(goalID, userID string, now time.Time) *Collaborator {
	return &Collaborator{
		PK:        GoalPK(goalID),
		SK:        CollaboratorSK(userID),
		GoalID:    goalID,
		UserID:    userID,
		CreatedAt: now,
	}
}
