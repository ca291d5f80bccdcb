package diskspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEnoughDisabledWhenRequiredIsZero(t *testing.T) {
	_, enough, err := CheckEnough(t.TempDir(), 0)
	require.NoError(t, err)
	assert.True(t, enough)
}

func TestCheckEnoughFailsWhenRequiredExceedsAvailable(t *testing.T) {
	dir := t.TempDir()
	available, err := Available(dir)
	require.NoError(t, err)

	_, enough, err := CheckEnough(dir, available+1<<40) // +1 TiB, unreachable on any real disk
	require.NoError(t, err)
	assert.False(t, enough)
}
