package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrincipal(t *testing.T) {
	t.Parallel()

	_, err := NewPrincipal("", nil)
	assert.True(t, IsMissingPrincipal(err))

	p, err := NewPrincipal("u1", nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.SubjectID())
	assert.Empty(t, p.Attributes())
}

func TestPrincipal_Immutable(t *testing.T) {
	t.Parallel()

	src := map[string]string{"role": "Customer"}
	p, err := NewPrincipal("u1", src)
	require.NoError(t, err)

	src["role"] = "Admin"
	attrs := p.Attributes()
	attrs["role"] = "Admin"
	attrs["injected"] = "x"

	role, ok := p.Attribute("role")
	require.True(t, ok)
	assert.Equal(t, "Customer", role)
	assert.Equal(t, []string{"role"}, p.AttributeNames())
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	var nilCtx context.Context
	_, ok = PrincipalFromContext(nilCtx)
	assert.False(t, ok)

	p, err := NewPrincipal("u1", nil)
	require.NoError(t, err)

	got, ok := PrincipalFromContext(ContextWithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	err := newError(ErrMalformedToken, "custom:role", "bad type")
	assert.Contains(t, err.Error(), "custom:role")
	assert.Contains(t, err.Error(), "malformed token")
	assert.ErrorIs(t, err, ErrMalformedToken)

	err = newError(ErrMissingPrincipal, "", "empty")
	assert.Equal(t, "claims extraction failed: empty: missing principal", err.Error())
}
