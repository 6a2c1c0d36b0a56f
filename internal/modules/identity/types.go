package identity

// SignupRequest creates an account.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
	Bio      string `json:"bio"`
}

// SignupResponse returns the new user and the email-verification token.
// The token also goes out by mail; it is echoed here for clients that
// drive verification in-app.
type SignupResponse struct {
	UserID            string `json:"user_id"`
	VerificationToken string `json:"verification_token"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type FederatedLoginRequest struct {
	IDToken string `json:"id_token"`
}

// LoginResponse carries the 1 h access token and the rotating refresh
// handle.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id"`
	Tier         string `json:"tier"`
}

type RenewRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ProfilePatch applies a partial profile update; nil fields are untouched.
type ProfilePatch struct {
	Nickname  *string `json:"nickname"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatar_url"`
}
