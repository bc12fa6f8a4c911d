package store

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crud6-backend/internal/config"
)

func TestManager_DefaultAndNamed(t *testing.T) {
	def := newSQLiteStore(t)
	var opened atomic.Int32
	m := NewManager(def, map[string]config.DatabaseConfig{
		"reporting_db": {Driver: "sqlite", Name: ":memory:"},
	}).WithOpener(func(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
		opened.Add(1)
		return New(ctx, cfg)
	})
	ctx := context.Background()

	for _, name := range []string{"", DefaultConnection} {
		s, err := m.Get(ctx, name)
		require.NoError(t, err)
		assert.Same(t, def, s)
	}

	first, err := m.Get(ctx, "reporting_db")
	require.NoError(t, err)
	second, err := m.Get(ctx, "reporting_db")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.NotSame(t, def, first)
	assert.Equal(t, int32(1), opened.Load())

	_, err = m.Get(ctx, "archive")
	assert.True(t, errors.Is(err, ErrUnknownConnection))

	assert.Equal(t, []string{"default", "reporting_db"}, m.Names())
}

func TestManager_Register(t *testing.T) {
	m := NewManager(newSQLiteStore(t), nil)
	extra := newSQLiteStore(t)
	m.Register("tenant", extra)

	s, err := m.Get(context.Background(), "tenant")
	require.NoError(t, err)
	assert.Same(t, extra, s)
	assert.Equal(t, []string{"default", "tenant"}, m.Names())
}
