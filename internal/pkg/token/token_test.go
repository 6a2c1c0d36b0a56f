package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	assert "github.com/stretchr/testify/require"
)

func newTestIssuer() *Issuer {
	return NewIssuer([]byte("test-secret-test-secret-32bytes!"), "questline", "questline-api", nil)
}

func TestAccessTokenRoundtrip(t *testing.T) {
	issuer := newTestIssuer()
	userID := uuid.NewString()
	now := time.Now().UTC()

	raw, jti, err := issuer.SignAccess(userID, models.TierPremium, []string{"quests:write"}, now)
	assert.NoError(t, err)
	assert.NotEmpty(t, jti)

	p, err := issuer.VerifyAccess(raw)
	assert.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, models.TierPremium, p.Tier)
	assert.Equal(t, []string{"quests:write"}, p.Scopes)
	assert.Equal(t, jti, p.JTI)
	assert.WithinDuration(t, now.Add(time.Hour), p.Exp, time.Second)
}

func TestAccessTokenDefaultsTier(t *testing.T) {
	issuer := newTestIssuer()
	raw, _, err := issuer.SignAccess(uuid.NewString(), "", nil, time.Now().UTC())
	assert.NoError(t, err)

	p, err := issuer.VerifyAccess(raw)
	assert.NoError(t, err)
	assert.Equal(t, models.TierDefault, p.Tier)
}

func TestVerifyAccessRejectsVerifyToken(t *testing.T) {
	issuer := newTestIssuer()
	userID := uuid.NewString()

	raw, _, err := issuer.SignVerify(userID, time.Now().UTC())
	assert.NoError(t, err)

	claims, err := issuer.Verify(raw)
	assert.NoError(t, err)
	assert.Equal(t, PurposeVerify, claims.Purpose)
	assert.Equal(t, userID, claims.Subject)

	_, err = issuer.VerifyAccess(raw)
	assert.True(t, kind.Is(err, kind.AuthClaims))
}

func TestVerifyRejectsEmptyAndMalformed(t *testing.T) {
	issuer := newTestIssuer()

	_, err := issuer.Verify("")
	assert.True(t, kind.Is(err, kind.AuthMissing))

	_, err = issuer.Verify("   ")
	assert.True(t, kind.Is(err, kind.AuthMissing))

	_, err = issuer.Verify("not.a.jwt")
	assert.True(t, kind.Is(err, kind.AuthMissing))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer()
	forger := NewIssuer([]byte("another-secret-another-secret-32"), "questline", "questline-api", nil)

	raw, _, err := forger.SignAccess(uuid.NewString(), models.TierDefault, nil, time.Now().UTC())
	assert.NoError(t, err)

	_, err = issuer.Verify(raw)
	assert.True(t, kind.Is(err, kind.AuthSignature))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := newTestIssuer()
	raw, _, err := issuer.SignAccess(uuid.NewString(), models.TierDefault, nil, time.Now().UTC().Add(-2*time.Hour))
	assert.NoError(t, err)

	_, err = issuer.Verify(raw)
	assert.True(t, kind.Is(err, kind.AuthExpired))
}

func TestVerifyRejectsWrongIssuerOrAudience(t *testing.T) {
	issuer := newTestIssuer()
	now := time.Now().UTC()

	wrongIssuer := NewIssuer([]byte("test-secret-test-secret-32bytes!"), "someone-else", "questline-api", nil)
	raw, _, err := wrongIssuer.SignAccess(uuid.NewString(), models.TierDefault, nil, now)
	assert.NoError(t, err)
	_, err = issuer.Verify(raw)
	assert.True(t, kind.Is(err, kind.AuthClaims))

	wrongAudience := NewIssuer([]byte("test-secret-test-secret-32bytes!"), "questline", "other-api", nil)
	raw, _, err = wrongAudience.SignAccess(uuid.NewString(), models.TierDefault, nil, now)
	assert.NoError(t, err)
	_, err = issuer.Verify(raw)
	assert.True(t, kind.Is(err, kind.AuthClaims))
}

func TestVerifyAccessRejectsBadSubjectOrTier(t *testing.T) {
	issuer := newTestIssuer()
	now := time.Now().UTC()

	raw, _, err := issuer.SignAccess("not-a-uuid", models.TierDefault, nil, now)
	assert.NoError(t, err)
	_, err = issuer.VerifyAccess(raw)
	assert.True(t, kind.Is(err, kind.AuthClaims))

	raw, _, err = issuer.SignAccess(uuid.NewString(), "platinum", nil, now)
	assert.NoError(t, err)
	_, err = issuer.VerifyAccess(raw)
	assert.True(t, kind.Is(err, kind.AuthClaims))
}

func TestVerifyRejectsFederatedWhenUnconfigured(t *testing.T) {
	issuer := newTestIssuer()
	// An RS256 header with no JWKS cache behind it cannot be checked.
	rs256 := "eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiJ4In0.c2ln"
	_, err := issuer.Verify(rs256)
	assert.Error(t, err)
}
