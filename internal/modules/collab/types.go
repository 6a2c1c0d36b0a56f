package collab

type CreateInviteRequest struct {
	InviteeID string `json:"invitee_id"`
}

type CreateCommentRequest struct {
	Text     string `json:"text"`
	ParentID string `json:"parent_id"`
}

type ReactionRequest struct {
	Kind string `json:"kind"`
}
