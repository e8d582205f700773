package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsignedToken builds a compact JWT with a placeholder signature, the
// shape an upstream-verified token has once it reaches the service.
func unsignedToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "k1"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("signature"))
}

func cognitoExtractor() *Extractor {
	return NewExtractor(WithAttributeClaims(map[string]string{
		"username":      "cognito:username",
		"role":          "custom:role",
		"yearsAsMember": "custom:yearsAsMember",
		"region":        "custom:region",
		"groups":        "cognito:groups",
	}))
}

func TestExtractor_Extract(t *testing.T) {
	t.Parallel()

	tok := unsignedToken(t, map[string]interface{}{
		"sub":                  "u1",
		"cognito:username":     "alice",
		"custom:role":          "Publisher",
		"custom:yearsAsMember": "3",
		"cognito:groups":       []string{"readers", "publishers"},
		"email_verified":       true,
	})

	p, err := cognitoExtractor().Extract(context.Background(), tok)
	require.NoError(t, err)

	assert.Equal(t, "u1", p.SubjectID())
	assert.Equal(t, map[string]string{
		"username":      "alice",
		"role":          "Publisher",
		"yearsAsMember": "3",
		"groups":        "readers,publishers",
	}, p.Attributes())

	_, ok := p.Attribute("region")
	assert.False(t, ok)
}

func TestExtractor_Extract_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "empty token",
			token:   func(*testing.T) string { return "" },
			wantErr: ErrMalformedToken,
		},
		{
			name:    "two segments",
			token:   func(*testing.T) string { return "abc.def" },
			wantErr: ErrMalformedToken,
		},
		{
			name:    "undecodable payload",
			token:   func(*testing.T) string { return "abc.!!!.def" },
			wantErr: ErrMalformedToken,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return unsignedToken(t, map[string]interface{}{"cognito:username": "alice"})
			},
			wantErr: ErrMissingPrincipal,
		},
		{
			name: "empty subject",
			token: func(t *testing.T) string {
				return unsignedToken(t, map[string]interface{}{"sub": ""})
			},
			wantErr: ErrMissingPrincipal,
		},
		{
			name: "numeric subject",
			token: func(t *testing.T) string {
				return unsignedToken(t, map[string]interface{}{"sub": 42})
			},
			wantErr: ErrMalformedToken,
		},
		{
			name: "object attribute claim",
			token: func(t *testing.T) string {
				return unsignedToken(t, map[string]interface{}{
					"sub":         "u1",
					"custom:role": map[string]string{"name": "Admin"},
				})
			},
			wantErr: ErrMalformedToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := cognitoExtractor().Extract(context.Background(), tt.token(t))
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var authErr *Error
			assert.True(t, errors.As(err, &authErr))
		})
	}
}

func TestExtractor_CustomSubjectClaim(t *testing.T) {
	t.Parallel()

	e := NewExtractor(WithSubjectClaim("cognito:username"))

	p, err := e.Extract(context.Background(), unsignedToken(t, map[string]interface{}{
		"sub":              "ignored",
		"cognito:username": "alice",
	}))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.SubjectID())

	_, err = e.Extract(context.Background(), unsignedToken(t, map[string]interface{}{
		"cognito:username": 7,
	}))
	assert.True(t, IsMalformedToken(err))

	_, err = e.Extract(context.Background(), unsignedToken(t, map[string]interface{}{"sub": "x"}))
	assert.True(t, IsMissingPrincipal(err))
}

func TestExtractor_Deterministic(t *testing.T) {
	t.Parallel()

	tok := unsignedToken(t, map[string]interface{}{"sub": "u1", "custom:role": "Admin"})
	e := cognitoExtractor()

	p1, err := e.Extract(context.Background(), tok)
	require.NoError(t, err)
	p2, err := e.Extract(context.Background(), tok)
	require.NoError(t, err)

	assert.Equal(t, p1.SubjectID(), p2.SubjectID())
	assert.Equal(t, p1.Attributes(), p2.Attributes())
}

func TestExtractor_ExtractFromHeader(t *testing.T) {
	t.Parallel()

	tok := unsignedToken(t, map[string]interface{}{"sub": "u1"})
	e := NewExtractor()

	for _, header := range []string{"Bearer " + tok, "bearer " + tok, tok, "  " + tok + "  "} {
		p, err := e.ExtractFromHeader(context.Background(), header)
		require.NoError(t, err, header)
		assert.Equal(t, "u1", p.SubjectID())
	}

	_, err := e.ExtractFromHeader(context.Background(), "")
	assert.True(t, IsMalformedToken(err))
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Bearer abc", want: "abc"},
		{in: "BEARER abc", want: "abc"},
		{in: "abc", want: "abc"},
		{in: "Bearer ", want: "Bearer"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BearerToken(tt.in))
		})
	}
}

func TestStringifyClaim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     interface{}
		want   string
		wantOK bool
	}{
		{name: "string", in: "x", want: "x", wantOK: true},
		{name: "bool", in: true, want: "true", wantOK: true},
		{name: "float", in: float64(3), want: "3", wantOK: true},
		{name: "fraction", in: 2.5, want: "2.5", wantOK: true},
		{name: "number", in: json.Number("12"), want: "12", wantOK: true},
		{name: "strings", in: []interface{}{"a", "b"}, want: "a,b", wantOK: true},
		{name: "mixed list", in: []interface{}{"a", 1.0}, wantOK: false},
		{name: "object", in: map[string]interface{}{"a": "b"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := stringifyClaim(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
