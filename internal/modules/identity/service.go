package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/questline/core/internal/config"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/token"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
	"go.uber.org/zap"
)

const (
	maxLoginAttempts   = 5
	loginAttemptWindow = 15 * time.Minute
	refreshTTL         = 30 * 24 * time.Hour
	accessTTLSeconds   = 3600
)

// Revoker is the slice of the authorizer the service needs for logout and
// refresh rotation.
type Revoker interface {
	Revoke(ctx context.Context, raw, jti string, exp time.Time) error
	RevokeJTI(ctx context.Context, jti string, exp time.Time) error
}

type Service struct {
	store     *store.Store
	issuer    *token.Issuer
	federated *token.FederatedVerifier
	revoker   Revoker
	argon     argon2id.Params
	logger    *zap.Logger
}

func NewService(st *store.Store, issuer *token.Issuer, federated *token.FederatedVerifier, revoker Revoker, argon config.ArgonConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     st,
		issuer:    issuer,
		federated: federated,
		revoker:   revoker,
		argon: argon2id.Params{
			Memory:      uint32(argon.MemoryKiB),
			Iterations:  uint32(argon.Iterations),
			Parallelism: uint8(argon.Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
		logger: logger.Named("Identity"),
	}
}

// Signup creates the profile and reserves the email in one transaction.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResponse, error) {
	var ve validate.Errors
	email := validate.Email(&ve, "email", req.Email)
	password := validate.Password(&ve, "password", req.Password)
	nickname := validate.Text(&ve, "nickname", req.Nickname, validate.MaxNicknameLen)
	bio := validate.OptionalText(&ve, "bio", req.Bio, validate.MaxDescriptionLen)
	if err := ve.Err(); err != nil {
		return nil, err
	}

	hash, err := argon2id.CreateHash(password, &s.argon)
	if err != nil {
		return nil, kind.Wrap(kind.Internal, "hash password", err)
	}

	now := time.Now().UTC()
	userID := uuid.NewString()
	profile := models.NewUserProfile(userID, email, nickname, hash, now)
	profile.Bio = bio

	err = s.store.Txn().
		PutIfAbsent(models.NewEmailRef(email, userID, now)).
		PutIfAbsent(profile).
		Run(ctx)
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, kind.New(kind.ValidationFailed, "input rejected").
			WithFields(map[string]string{"email": "already registered"})
	}
	if err != nil {
		return nil, err
	}

	verifyToken, _, err := s.issuer.SignVerify(userID, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", zap.String("user_id", userID))
	return &SignupResponse{UserID: userID, VerificationToken: verifyToken}, nil
}

// VerifyEmail activates the account named by a verification token.
func (s *Service) VerifyEmail(ctx context.Context, raw string) error {
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return err
	}
	if claims.Purpose != token.PurposeVerify {
		return kind.New(kind.AuthClaims, "not a verification token")
	}
	return store.RetryVersioned(ctx, func(ctx context.Context) error {
		var profile models.UserProfile
		if err := s.store.GetConsistent(ctx, models.UserPK(claims.Subject), models.SKProfile, &profile); err != nil {
			return err
		}
		if profile.Verified {
			return nil
		}
		profile.Verified = true
		profile.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateWithVersion(ctx, &profile, profile.Version); err != nil {
			return err
		}
		return nil
	})
}

// Login checks credentials under the per-(user, ip) attempt limit and
// mints tokens. Attempt reads are strongly consistent so the limit cannot
// be raced past.
func (s *Service) Login(ctx context.Context, req LoginRequest, sourceIP string) (*LoginResponse, error) {
	var ve validate.Errors
	email := validate.Email(&ve, "email", req.Email)
	if req.Password == "" {
		ve.Add("password", "is required")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	var ref models.EmailRef
	err := s.store.GetConsistent(ctx, models.EmailPK(email), models.SKIdentity, &ref)
	if kind.Is(err, kind.NotFound) {
		return nil, kind.New(kind.AuthClaims, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	locked, err := s.attemptsExhausted(ctx, ref.UserID, sourceIP)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, kind.New(kind.AuthLocked, "too many failed attempts, retry later")
	}

	var profile models.UserProfile
	if err := s.store.GetConsistent(ctx, models.UserPK(ref.UserID), models.SKProfile, &profile); err != nil {
		return nil, err
	}
	if profile.Disabled {
		return nil, kind.New(kind.PermissionDenied, "account disabled")
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, profile.PasswordHash)
	if err != nil {
		return nil, kind.Wrap(kind.Internal, "verify password", err)
	}
	if !match {
		s.recordFailedAttempt(ctx, ref.UserID, sourceIP)
		return nil, kind.New(kind.AuthClaims, "invalid credentials")
	}

	return s.issueTokens(ctx, &profile, sourceIP)
}

// LoginFederated validates a provider id token and logs in (or creates)
// the linked user.
func (s *Service) LoginFederated(ctx context.Context, req FederatedLoginRequest, sourceIP string) (*LoginResponse, error) {
	if s.federated == nil {
		return nil, kind.New(kind.DependencyDown, "federated login not configured")
	}
	claims, err := s.federated.Verify(req.IDToken)
	if err != nil {
		return nil, err
	}

	var linked models.FederatedRef
	err = s.store.Get(ctx, models.FederatedPK(claims.Issuer, claims.Subject), models.SKIdentity, &linked)
	switch {
	case err == nil:
	case kind.Is(err, kind.NotFound):
		linked, err = s.createFederatedUser(ctx, claims)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	var profile models.UserProfile
	if err := s.store.Get(ctx, models.UserPK(linked.UserID), models.SKProfile, &profile); err != nil {
		return nil, err
	}
	if profile.Disabled {
		return nil, kind.New(kind.PermissionDenied, "account disabled")
	}
	return s.issueTokens(ctx, &profile, sourceIP)
}

func (s *Service) createFederatedUser(ctx context.Context, claims *token.Claims) (models.FederatedRef, error) {
	now := time.Now().UTC()
	userID := uuid.NewString()
	nickname := "user-" + userID[:8]

	profile := models.NewUserProfile(userID, "", nickname, "", now)
	profile.Verified = true // provider vouched for the identity

	ref := models.NewFederatedRef(claims.Issuer, claims.Subject, userID, now)
	err := s.store.Txn().
		PutIfAbsent(ref).
		PutIfAbsent(profile).
		Run(ctx)
	if errors.Is(err, store.ErrConditionFailed) {
		// Lost a race with a concurrent first login; use the winner.
		var existing models.FederatedRef
		if getErr := s.store.GetConsistent(ctx, ref.PK, ref.SK, &existing); getErr == nil {
			return existing, nil
		}
		return models.FederatedRef{}, err
	}
	if err != nil {
		return models.FederatedRef{}, err
	}
	s.logger.Info("federated user created", zap.String("user_id", userID))
	return *ref, nil
}

// Renew rotates the refresh handle, deny-lists the presented access token's
// jti, and mints a fresh access token.
func (s *Service) Renew(ctx context.Context, req RenewRequest, current *token.Principal) (*LoginResponse, error) {
	userID, handle, ok := splitRefreshToken(req.RefreshToken)
	if !ok || userID != current.UserID {
		return nil, kind.New(kind.AuthClaims, "refresh token rejected")
	}

	var refresh models.RefreshToken
	err := s.store.GetConsistent(ctx, models.UserPK(userID), models.RefreshSK(handle), &refresh)
	if kind.Is(err, kind.NotFound) {
		return nil, kind.New(kind.AuthRevoked, "refresh token rejected")
	}
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if now.Unix() >= refresh.ExpiresAt {
		return nil, kind.New(kind.AuthExpired, "refresh token expired")
	}

	var profile models.UserProfile
	if err := s.store.Get(ctx, models.UserPK(userID), models.SKProfile, &profile); err != nil {
		return nil, err
	}

	newHandle, err := randomHandle()
	if err != nil {
		return nil, err
	}
	err = s.store.Txn().
		DeleteIfExists(refresh.PK, refresh.SK).
		Put(models.NewRefreshToken(userID, newHandle, now, refreshTTL)).
		Run(ctx)
	if errors.Is(err, store.ErrConditionFailed) {
		// A concurrent renew already consumed this handle.
		return nil, kind.New(kind.AuthRevoked, "refresh token rejected")
	}
	if err != nil {
		return nil, err
	}

	if err := s.revoker.RevokeJTI(ctx, current.JTI, current.Exp); err != nil {
		s.logger.Warn("deny-list old access token failed", zap.Error(err))
	}

	access, _, err := s.issuer.SignAccess(userID, profile.Tier, current.Scopes, now)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: userID + "." + newHandle,
		ExpiresIn:    accessTTLSeconds,
		UserID:       userID,
		Tier:         profile.Tier,
	}, nil
}

// Logout deny-lists the presented token until its natural expiry.
func (s *Service) Logout(ctx context.Context, raw string, p *token.Principal) error {
	return s.revoker.Revoke(ctx, raw, p.JTI, p.Exp)
}

// GetProfile returns the caller's profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := s.store.Get(ctx, models.UserPK(userID), models.SKProfile, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile applies a validated patch with version retry.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*models.UserProfile, error) {
	var ve validate.Errors
	var nickname, bio, avatarURL string
	if patch.Nickname != nil {
		nickname = validate.Text(&ve, "nickname", *patch.Nickname, validate.MaxNicknameLen)
	}
	if patch.Bio != nil {
		bio = validate.OptionalText(&ve, "bio", *patch.Bio, validate.MaxDescriptionLen)
	}
	if patch.AvatarURL != nil {
		avatarURL = validate.OptionalText(&ve, "avatar_url", *patch.AvatarURL, 500)
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	var updated models.UserProfile
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var profile models.UserProfile
		if err := s.store.GetConsistent(ctx, models.UserPK(userID), models.SKProfile, &profile); err != nil {
			return err
		}
		if patch.Nickname != nil {
			profile.Nickname = nickname
		}
		if patch.Bio != nil {
			profile.Bio = bio
		}
		if patch.AvatarURL != nil {
			profile.AvatarURL = avatarURL
		}
		profile.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateWithVersion(ctx, &profile, profile.Version); err != nil {
			return err
		}
		profile.Version++
		updated = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) issueTokens(ctx context.Context, profile *models.UserProfile, sourceIP string) (*LoginResponse, error) {
	now := time.Now().UTC()
	access, _, err := s.issuer.SignAccess(profile.UserID, profile.Tier, nil, now)
	if err != nil {
		return nil, err
	}
	handle, err := randomHandle()
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, models.NewRefreshToken(profile.UserID, handle, now, refreshTTL)); err != nil {
		return nil, err
	}

	// Last-login metadata is advisory; losing the version race is fine.
	profile.LastLoginAt = &now
	profile.LastLoginIP = sourceIP
	profile.UpdatedAt = now
	if err := s.store.UpdateWithVersion(ctx, profile, profile.Version); err != nil && !kind.Is(err, kind.ConflictVersion) {
		s.logger.Warn("record last login failed", zap.Error(err))
	}

	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: profile.UserID + "." + handle,
		ExpiresIn:    accessTTLSeconds,
		UserID:       profile.UserID,
		Tier:         profile.Tier,
	}, nil
}

func (s *Service) attemptsExhausted(ctx context.Context, userID, sourceIP string) (bool, error) {
	now := time.Now().UTC()
	from, to := models.AttemptSKWindow(now.Add(-loginAttemptWindow), now)
	attempts, _, err := store.QueryRange[models.LoginAttempt](ctx, s.store,
		models.UserPK(userID), from, to,
		store.Page{Limit: store.MaxLimit, Consistent: true})
	if err != nil {
		return false, err
	}
	count := 0
	for _, attempt := range attempts {
		if attempt.SourceIP == sourceIP {
			count++
		}
	}
	return count >= maxLoginAttempts, nil
}

func (s *Service) recordFailedAttempt(ctx context.Context, userID, sourceIP string) {
	now := time.Now().UTC()
	attempt := models.NewLoginAttempt(userID, sourceIP, uuid.NewString()[:8], now)
	if err := s.store.Put(ctx, attempt); err != nil {
		s.logger.Warn("record login attempt failed", zap.Error(err))
	}
}

func randomHandle() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", kind.Wrap(kind.Internal, "generate refresh handle", err)
	}
	return hex.EncodeToString(buf), nil
}

func splitRefreshToken(raw string) (userID, handle string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if _, err := uuid.Parse(parts[0]); err != nil {
		return "", "", false
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}
