package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgmentops/queue-be/internal/queue/domain"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	registry := NewRegistry()

	handler := HandlerFunc(func(ctx context.Context, job *domain.Job) error { return nil })
	require.NoError(t, registry.Register("email.send", handler))

	got, ok := registry.Resolve("email.send")
	assert.True(t, ok)
	assert.NotNil(t, got)

	_, ok = registry.Resolve("unknown.type")
	assert.False(t, ok)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()

	handler := HandlerFunc(func(ctx context.Context, job *domain.Job) error { return nil })
	require.NoError(t, registry.Register("email.send", handler))

	err := registry.Register("email.send", handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_Types(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.Types())

	handler := HandlerFunc(func(ctx context.Context, job *domain.Job) error { return nil })
	require.NoError(t, registry.Register("a", handler))
	require.NoError(t, registry.Register("b", handler))

	assert.ElementsMatch(t, []string{"a", "b"}, registry.Types())
}
