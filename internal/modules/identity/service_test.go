package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/questline/core/internal/config"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/token"
	"github.com/questline/core/internal/store"
	"github.com/questline/core/internal/store/storetest"
	assert "github.com/stretchr/testify/require"
)

// fakeRevoker records deny-list calls.
type fakeRevoker struct {
	revoked []string
}

func (f *fakeRevoker) Revoke(ctx context.Context, raw, jti string, exp time.Time) error {
	f.revoked = append(f.revoked, jti)
	return nil
}

func (f *fakeRevoker) RevokeJTI(ctx context.Context, jti string, exp time.Time) error {
	f.revoked = append(f.revoked, jti)
	return nil
}

// Small argon parameters keep hashing fast in tests.
var testArgon = config.ArgonConfig{MemoryKiB: 1024, Iterations: 1, Parallelism: 1}

func newIdentityService(t *testing.T) (*Service, *token.Issuer, *fakeRevoker) {
	t.Helper()
	st := store.New(storetest.New(), "core-test", nil)
	issuer := token.NewIssuer([]byte("test-secret-test-secret-32bytes!"), "questline", "questline-api", nil)
	revoker := &fakeRevoker{}
	return NewService(st, issuer, nil, revoker, testArgon, nil), issuer, revoker
}

func mustSignup(t *testing.T, svc *Service, email string) *SignupResponse {
	t.Helper()
	resp, err := svc.Signup(context.Background(), SignupRequest{
		Email:    email,
		Password: "P@ss12345",
		Nickname: "tester",
	})
	assert.NoError(t, err)
	return resp
}

func TestSignupAndVerifyEmail(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()

	resp := mustSignup(t, svc, "a@example.com")
	assert.NotEmpty(t, resp.UserID)
	assert.NotEmpty(t, resp.VerificationToken)

	profile, err := svc.GetProfile(ctx, resp.UserID)
	assert.NoError(t, err)
	assert.False(t, profile.Verified)
	assert.Equal(t, models.TierDefault, profile.Tier)

	assert.NoError(t, svc.VerifyEmail(ctx, resp.VerificationToken))
	profile, err = svc.GetProfile(ctx, resp.UserID)
	assert.NoError(t, err)
	assert.True(t, profile.Verified)

	// Verification is idempotent.
	assert.NoError(t, svc.VerifyEmail(ctx, resp.VerificationToken))
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	mustSignup(t, svc, "a@example.com")
	_, err := svc.Signup(context.Background(), SignupRequest{
		Email:    "a@example.com",
		Password: "P@ss12345",
		Nickname: "other",
	})
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Email: "not-an-email", Password: "P@ss12345", Nickname: "x"})
	assert.True(t, kind.Is(err, kind.ValidationFailed))

	_, err = svc.Signup(ctx, SignupRequest{Email: "b@example.com", Password: "short", Nickname: "x"})
	assert.True(t, kind.Is(err, kind.ValidationFailed))
}

func TestVerifyEmailRejectsAccessToken(t *testing.T) {
	svc, issuer, _ := newIdentityService(t)
	resp := mustSignup(t, svc, "a@example.com")

	access, _, err := issuer.SignAccess(resp.UserID, models.TierDefault, nil, time.Now().UTC())
	assert.NoError(t, err)
	assert.True(t, kind.Is(svc.VerifyEmail(context.Background(), access), kind.AuthClaims))
}

func TestLoginSuccess(t *testing.T) {
	svc, issuer, _ := newIdentityService(t)
	ctx := context.Background()
	resp := mustSignup(t, svc, "a@example.com")

	login, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "P@ss12345"}, "203.0.113.9")
	assert.NoError(t, err)
	assert.Equal(t, resp.UserID, login.UserID)
	assert.Equal(t, accessTTLSeconds, login.ExpiresIn)
	assert.Equal(t, models.TierDefault, login.Tier)

	p, err := issuer.VerifyAccess(login.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, resp.UserID, p.UserID)

	profile, err := svc.GetProfile(ctx, resp.UserID)
	assert.NoError(t, err)
	assert.NotNil(t, profile.LastLoginAt)
	assert.Equal(t, "203.0.113.9", profile.LastLoginIP)
}

func TestLoginBadCredentials(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()
	mustSignup(t, svc, "a@example.com")

	_, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "wrong-password"}, "ip")
	assert.True(t, kind.Is(err, kind.AuthClaims))

	// Unknown accounts fail the same way.
	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "P@ss12345"}, "ip")
	assert.True(t, kind.Is(err, kind.AuthClaims))
}

func TestLoginLockoutPerIP(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()
	mustSignup(t, svc, "a@example.com")

	for i := 0; i < maxLoginAttempts; i++ {
		_, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: fmt.Sprintf("wrong-%d", i)}, "ip-a")
		assert.True(t, kind.Is(err, kind.AuthClaims))
	}

	// The right password no longer helps from the abusive address.
	_, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "P@ss12345"}, "ip-a")
	assert.True(t, kind.Is(err, kind.AuthLocked))

	// Another address is unaffected.
	_, err = svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "P@ss12345"}, "ip-b")
	assert.NoError(t, err)
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()
	resp := mustSignup(t, svc, "a@example.com")

	profile, err := svc.GetProfile(ctx, resp.UserID)
	assert.NoError(t, err)
	profile.Disabled = true
	assert.NoError(t, svc.store.Put(ctx, profile))

	_, err = svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "P@ss12345"}, "ip")
	assert.True(t, kind.Is(err, kind.PermissionDenied))
}

func TestRenewRotatesRefreshToken(t *testing.T) {
	svc, issuer, revoker := newIdentityService(t)
	ctx := context.Background()
	mustSignup(t, svc, "a@example.com")

	login, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "P@ss12345"}, "ip")
	assert.NoError(t, err)
	principal, err := issuer.VerifyAccess(login.AccessToken)
	assert.NoError(t, err)

	renewed, err := svc.Renew(ctx, RenewRequest{RefreshToken: login.RefreshToken}, principal)
	assert.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, renewed.RefreshToken)
	assert.Contains(t, revoker.revoked, principal.JTI)

	// The consumed handle is dead; replaying it is a revocation signal.
	_, err = svc.Renew(ctx, RenewRequest{RefreshToken: login.RefreshToken}, principal)
	assert.True(t, kind.Is(err, kind.AuthRevoked))

	// The rotated handle works.
	newPrincipal, err := issuer.VerifyAccess(renewed.AccessToken)
	assert.NoError(t, err)
	_, err = svc.Renew(ctx, RenewRequest{RefreshToken: renewed.RefreshToken}, newPrincipal)
	assert.NoError(t, err)
}

func TestRenewRejectsForeignToken(t *testing.T) {
	svc, issuer, _ := newIdentityService(t)
	ctx := context.Background()
	mustSignup(t, svc, "a@example.com")
	other := mustSignup(t, svc, "b@example.com")

	login, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "P@ss12345"}, "ip")
	assert.NoError(t, err)

	otherAccess, _, err := issuer.SignAccess(other.UserID, models.TierDefault, nil, time.Now().UTC())
	assert.NoError(t, err)
	otherPrincipal, err := issuer.VerifyAccess(otherAccess)
	assert.NoError(t, err)

	_, err = svc.Renew(ctx, RenewRequest{RefreshToken: login.RefreshToken}, otherPrincipal)
	assert.True(t, kind.Is(err, kind.AuthClaims))

	_, err = svc.Renew(ctx, RenewRequest{RefreshToken: "garbage"}, otherPrincipal)
	assert.True(t, kind.Is(err, kind.AuthClaims))
}

func TestLogoutDenyListsToken(t *testing.T) {
	svc, issuer, revoker := newIdentityService(t)
	ctx := context.Background()
	mustSignup(t, svc, "a@example.com")

	login, err := svc.Login(ctx, LoginRequest{Email: "a@example.com", Password: "P@ss12345"}, "ip")
	assert.NoError(t, err)
	principal, err := issuer.VerifyAccess(login.AccessToken)
	assert.NoError(t, err)

	assert.NoError(t, svc.Logout(ctx, login.AccessToken, principal))
	assert.Contains(t, revoker.revoked, principal.JTI)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	ctx := context.Background()
	resp := mustSignup(t, svc, "a@example.com")

	nickname := "renamed"
	bio := "chasing milestones"
	updated, err := svc.UpdateProfile(ctx, resp.UserID, ProfilePatch{Nickname: &nickname, Bio: &bio})
	assert.NoError(t, err)
	assert.Equal(t, nickname, updated.Nickname)
	assert.Equal(t, bio, updated.Bio)
	assert.Equal(t, int64(2), updated.Version)
}

func TestLoginFederatedUnconfigured(t *testing.T) {
	svc, _, _ := newIdentityService(t)
	_, err := svc.LoginFederated(context.Background(), FederatedLoginRequest{IDToken: "x"}, "ip")
	assert.True(t, kind.Is(err, kind.DependencyDown))
}
