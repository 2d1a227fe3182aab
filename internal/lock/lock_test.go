package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aiupdate.lock")
	l, err := TryLock(path)
	require.NoError(t, err)

	// flock locks belong to the open file description, so a second open conflicts
	_, err = TryLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	l.Unlock()
	l, err = TryLock(path)
	require.NoError(t, err)
	l.Unlock()

	_, err = TryLock(filepath.Join(t.TempDir(), "missing", "aiupdate.lock"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
