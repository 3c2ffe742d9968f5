package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, mutate func(b *jwt.Builder) *jwt.Builder) jwt.Token {
	t.Helper()
	now := time.Now()
	b := jwt.NewBuilder().
		Issuer("discounts").
		Subject("ops@example.com").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute))
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	return tok
}

func TestTokenValidatorValidateSuccess(t *testing.T) {
	v := TokenValidator{Issuer: "discounts", ClockSkew: time.Second, Algorithm: jwa.HS256}
	require.NoError(t, v.Validate(buildToken(t, nil), jwa.HS256, time.Now()))
}

func TestTokenValidatorRejects(t *testing.T) {
	now := time.Now()
	v := TokenValidator{Issuer: "discounts", Algorithm: jwa.HS256}
	cases := map[string]jwt.Token{
		"issuer mismatch": buildToken(t, func(b *jwt.Builder) *jwt.Builder { return b.Issuer("other") }),
		"expired": buildToken(t, func(b *jwt.Builder) *jwt.Builder {
			return b.NotBefore(now.Add(-2 * time.Hour)).Expiration(now.Add(-time.Minute))
		}),
		"not yet valid": buildToken(t, func(b *jwt.Builder) *jwt.Builder {
			return b.NotBefore(now.Add(5 * time.Minute)).Expiration(now.Add(10 * time.Minute))
		}),
	}
	noSubject, err := jwt.NewBuilder().Issuer("discounts").Expiration(now.Add(time.Minute)).Build()
	require.NoError(t, err)
	cases["missing subject"] = noSubject

	for name, tok := range cases {
		require.Error(t, v.Validate(tok, jwa.HS256, now), name)
	}
}

func TestTokenValidatorAlgorithmMismatch(t *testing.T) {
	v := TokenValidator{Issuer: "discounts", Algorithm: jwa.HS256}
	require.Error(t, v.Validate(buildToken(t, nil), jwa.RS256, time.Now()))
}

func TestTokenValidatorNilAndMissingAlgorithm(t *testing.T) {
	v := TokenValidator{}
	require.ErrorIs(t, v.Validate(nil, jwa.HS256, time.Now()), errNilToken)
	require.ErrorIs(t, v.Validate(buildToken(t, nil), "", time.Now()), errMissingAlgorithm)
}

func TestTokenValidatorAudience(t *testing.T) {
	v := TokenValidator{Audience: "discount-admin"}
	require.Error(t, v.Validate(buildToken(t, nil), jwa.HS256, time.Now()))
	tok := buildToken(t, func(b *jwt.Builder) *jwt.Builder { return b.Audience([]string{"discount-admin"}) })
	require.NoError(t, v.Validate(tok, jwa.HS256, time.Now()))
}
