package guild

type CreateGuildRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// UpdateGuildRequest edits metadata; the guild type is immutable after
// creation.
type UpdateGuildRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type JoinRequestCreate struct {
	Message string `json:"message"`
}

type TransferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

type CommentsSettingRequest struct {
	Enabled bool `json:"enabled"`
}

type CreateCommentRequest struct {
	Text     string `json:"text"`
	ParentID string `json:"parent_id"`
}

type ReactionRequest struct {
	Kind string `json:"kind"`
}

type AvatarUploadRequest struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type AvatarUploadResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in"`
}

type AvatarConfirmRequest struct {
	Key string `json:"key"`
}
