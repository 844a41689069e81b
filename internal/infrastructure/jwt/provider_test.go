package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, expiry time.Duration) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewProviderFromKey(key, &key.PublicKey, expiry)
}

func TestSignVerify_RoundTripsClaims(t *testing.T) {
	p := newTestProvider(t, time.Hour)
	tok, err := p.Sign(Subject{UserID: "u1", Email: "a@b.co", EmailVerified: true, Role: "user", SessionID: "s1"})
	require.NoError(t, err)

	c, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, "a@b.co", c.Email)
	assert.True(t, c.EmailVerified)
	assert.Equal(t, "s1", c.SessionID)
}

func TestVerify_Expired(t *testing.T) {
	p := newTestProvider(t, -time.Minute)
	tok, err := p.Sign(Subject{UserID: "u1"})
	require.NoError(t, err)

	_, err = p.Verify(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_OtherKeyRejected(t *testing.T) {
	a := newTestProvider(t, time.Hour)
	b := newTestProvider(t, time.Hour)
	tok, err := a.Sign(Subject{UserID: "u1"})
	require.NoError(t, err)

	_, err = b.Verify(tok)
	assert.Error(t, err)
}
