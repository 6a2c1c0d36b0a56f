// Package token issues and verifies the bearer tokens accepted at the
// edge: locally issued HS256 tokens and federated RS256 tokens whose keys
// come from a JWKS endpoint.
package token

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
)

// Token purposes. Access tokens authorize API calls; verify tokens only
// activate accounts.
const (
	PurposeAccess = "access"
	PurposeVerify = "verify"
)

// Claims is the JWT payload for locally issued tokens.
type Claims struct {
	Tier    string   `json:"tier,omitempty"`
	Scopes  []string `json:"scopes,omitempty"`
	Purpose string   `json:"purpose,omitempty"`
	jwtlib.RegisteredClaims
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID string    `json:"user_id"`
	Tier   string    `json:"tier"`
	Scopes []string  `json:"scopes,omitempty"`
	JTI    string    `json:"-"`
	Exp    time.Time `json:"-"`
}

// Issuer mints and verifies locally issued HS256 tokens.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	keys     *JWKSCache
}

func NewIssuer(secret []byte, issuer, audience string, keys *JWKSCache) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, audience: audience, keys: keys}
}

// SignAccess mints a 1 h access token carrying tier and scopes.
func (i *Issuer) SignAccess(userID, tier string, scopes []string, now time.Time) (string, string, error) {
	return i.sign(userID, tier, scopes, PurposeAccess, now, time.Hour)
}

// SignVerify mints a 24 h email-verification token.
func (i *Issuer) SignVerify(userID string, now time.Time) (string, string, error) {
	return i.sign(userID, "", nil, PurposeVerify, now, 24*time.Hour)
}

func (i *Issuer) sign(userID, tier string, scopes []string, purpose string, now time.Time, ttl time.Duration) (string, string, error) {
	jti := uuid.NewString()
	claims := Claims{
		Tier:    tier,
		Scopes:  scopes,
		Purpose: purpose,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  jwtlib.ClaimStrings{i.audience},
			ID:        jti,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", kind.Wrap(kind.Internal, "sign token", err)
	}
	return signed, jti, nil
}

// Verify parses and validates a bearer token of either accepted shape and
// returns its claims. Failures carry the auth.* kind matching the defect.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, kind.New(kind.AuthMissing, "token required")
	}

	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwtlib.SigningMethodHMAC:
			return i.secret, nil
		case *jwtlib.SigningMethodRSA:
			if i.keys == nil {
				return nil, kind.New(kind.AuthSignature, "federated tokens not configured")
			}
			kid, _ := t.Header["kid"].(string)
			return i.keys.Key(kid)
		}
		return nil, kind.Newf(kind.AuthSignature, "unexpected signing method %v", t.Header["alg"])
	}, jwtlib.WithIssuer(i.issuer), jwtlib.WithAudience(i.audience), jwtlib.WithExpirationRequired())
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !parsed.Valid {
		return nil, kind.New(kind.AuthSignature, "invalid token")
	}
	if claims.Subject == "" {
		return nil, kind.New(kind.AuthClaims, "missing sub claim")
	}
	return claims, nil
}

// VerifyAccess validates an access token and builds the principal. The
// subject must be a UUID before it is trusted downstream.
func (i *Issuer) VerifyAccess(raw string) (*Principal, error) {
	claims, err := i.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" && claims.Purpose != PurposeAccess {
		return nil, kind.New(kind.AuthClaims, "token purpose not accepted here")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, kind.New(kind.AuthClaims, "subject is not a valid id")
	}
	tier := claims.Tier
	if tier == "" {
		tier = models.TierDefault
	}
	if !models.ValidTier(tier) {
		return nil, kind.New(kind.AuthClaims, "unknown tier")
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &Principal{
		UserID: claims.Subject,
		Tier:   tier,
		Scopes: claims.Scopes,
		JTI:    claims.ID,
		Exp:    exp,
	}, nil
}

func classifyParseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return kind.Wrap(kind.AuthExpired, "token expired", err)
	case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
		return kind.Wrap(kind.AuthSignature, "signature verification failed", err)
	case errors.Is(err, jwtlib.ErrTokenInvalidIssuer),
		errors.Is(err, jwtlib.ErrTokenInvalidAudience),
		errors.Is(err, jwtlib.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwtlib.ErrTokenInvalidClaims):
		return kind.Wrap(kind.AuthClaims, "claim missing or mismatched", err)
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return kind.Wrap(kind.AuthMissing, "malformed token", err)
	}
	return kind.Wrap(kind.AuthSignature, "token rejected", err)
}
