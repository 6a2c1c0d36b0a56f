package token

import (
	"errors"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/questline/core/internal/pkg/kind"
)

// FederatedVerifier validates RS256 id tokens from an external identity
// provider. Only the provider's issuer and audience are accepted; HMAC
// tokens are rejected outright so a local secret can never mint a
// federated identity.
type FederatedVerifier struct {
	issuer   string
	audience string
	keys     *JWKSCache
}

func NewFederatedVerifier(issuer, audience string, keys *JWKSCache) *FederatedVerifier {
	return &FederatedVerifier{issuer: issuer, audience: audience, keys: keys}
}

// Verify parses and validates a provider id token.
func (v *FederatedVerifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, kind.New(kind.AuthMissing, "id token required")
	}
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, kind.Newf(kind.AuthSignature, "unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(kid)
	}, jwtlib.WithIssuer(v.issuer), jwtlib.WithAudience(v.audience), jwtlib.WithExpirationRequired())
	if err != nil {
		var ke *kind.Error
		if errors.As(err, &ke) {
			return nil, ke
		}
		return nil, classifyParseError(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, kind.New(kind.AuthClaims, "id token rejected")
	}
	return claims, nil
}
