package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jwksFixture struct {
	server     *httptest.Server
	privateKey jwk.Key
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	priv, err := jwk.FromRaw(rsaKey)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))

	pub, err := jwk.FromRaw(rsaKey.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "test-key-id"))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)

	return &jwksFixture{server: server, privateKey: priv}
}

func (f *jwksFixture) sign(t *testing.T, subject string, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewBuilder().
		Subject(subject).
		Expiration(exp).
		Claim("custom:role", "Admin").
		Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, f.privateKey))
	require.NoError(t, err)
	return string(signed)
}

func TestJWKSVerifier(t *testing.T) {
	t.Parallel()

	f := newJWKSFixture(t)
	ctx := context.Background()

	verifier, err := NewJWKSVerifier(ctx, f.server.URL, time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = verifier.Close() })

	e := NewExtractor(
		WithVerifier(verifier),
		WithAttributeClaims(map[string]string{"role": "custom:role"}),
	)

	p, err := e.Extract(ctx, f.sign(t, "u1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.SubjectID())
	role, _ := p.Attribute("role")
	assert.Equal(t, "Admin", role)

	_, err = e.Extract(ctx, f.sign(t, "u1", time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Unsigned tokens pass decoding but fail verification.
	_, err = e.Extract(ctx, unsignedToken(t, map[string]interface{}{"sub": "u1"}))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestNewJWKSVerifier_Unreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewJWKSVerifier(ctx, server.URL, time.Minute, nil)
	assert.Error(t, err)
}
