package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/discount-calculator/internal/common"
)

// RolesClaim carries the caller's roles.
const RolesClaim = "roles"

// DefaultAdminRole is required on tokens that manage discount rules.
const DefaultAdminRole = "admin"

// ErrForbidden is returned when a valid token lacks the required role.
var ErrForbidden = errors.New("auth: insufficient role")

// AdminVerifier checks HS256 bearer tokens for rule management.
type AdminVerifier struct {
	Secret    []byte
	Validator TokenValidator
	Role      string
	Now       func() time.Time
}

// NewAdminVerifier returns a verifier for secret, or nil when secret is empty.
func NewAdminVerifier(secret, issuer string) *AdminVerifier {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	return &AdminVerifier{
		Secret: []byte(secret),
		Validator: TokenValidator{
			Issuer:    issuer,
			ClockSkew: 30 * time.Second,
			Algorithm: jwa.HS256,
		},
		Role: DefaultAdminRole,
	}
}

// Verify parses token and returns its subject when it carries the admin role.
func (v *AdminVerifier) Verify(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if v.Validator.Algorithm != "" && algorithm != v.Validator.Algorithm {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := v.Validator.Validate(parsed, algorithm, v.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if !slices.Contains(tokenRoles(parsed), v.role()) {
		return "", common.NewAppError("FORBIDDEN", "insufficient permissions", http.StatusForbidden, ErrForbidden)
	}
	return parsed.Subject(), nil
}

// Issue signs a token for subject with roles, valid for ttl.
func (v *AdminVerifier) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(RolesClaim, roles)
	if v.Validator.Issuer != "" {
		builder = builder.Issuer(v.Validator.Issuer)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func tokenRoles(tok jwt.Token) []string {
	raw, ok := tok.Get(RolesClaim)
	if !ok {
		return nil
	}
	switch roles := raw.(type) {
	case []string:
		return roles
	case []any:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(roles)
	}
	return nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	return alg, nil
}

func (v *AdminVerifier) role() string {
	if v.Role != "" {
		return v.Role
	}
	return DefaultAdminRole
}

func (v *AdminVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
