package camsyncengine

import (
	"errors"
	"testing"

	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileSet(t *testing.T) {
	ps := NewProfileSet()
	builtinCount := len(camsync.BuiltinProfiles())

	added := ps.Add(camsync.AttributeProfile{
		Name:    "Local council cameras",
		Tags:    []camsync.Tag{{Key: "operator", Value: "City Council"}},
		Builtin: true,
		Enabled: true,
	})
	assert.NotEmpty(t, added.ID)
	assert.False(t, added.Builtin, "user profiles are never built-in")
	assert.Len(t, ps.Profiles(), builtinCount+1)

	err := ps.Delete(camsync.BuiltinProfileIDFlock)
	assert.True(t, errors.Is(errorsx.Cause(err), ErrBuiltinProfileDeleted))

	require.NoError(t, ps.SetEnabled(camsync.BuiltinProfileIDFlock, false))
	for _, profile := range ps.Enabled() {
		assert.NotEqual(t, camsync.BuiltinProfileIDFlock, profile.ID)
	}

	require.NoError(t, ps.Delete(added.ID))
	assert.Len(t, ps.Profiles(), builtinCount)

	_, err = ps.Get(added.ID)
	assert.True(t, errors.Is(errorsx.Cause(err), ErrProfileNotFound))

	// callers get copies
	profiles := ps.Profiles()
	profiles[0].Enabled = false
	got, err := ps.Get(profiles[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
}
