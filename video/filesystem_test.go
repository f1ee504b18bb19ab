package video

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEventDir(t *testing.T) {
	assert.True(t, IsEventDir("event_0"))
	assert.True(t, IsEventDir("event_12345"))
	assert.False(t, IsEventDir("event_"))
	assert.False(t, IsEventDir("event_12a"))
	assert.False(t, IsEventDir("clips"))
	assert.False(t, IsEventDir(""))
}

func TestNewEventDirSkipsExisting(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "event_0"), 0755))

	s, err := NewEventStore(base)
	require.NoError(t, err)

	dir, err := s.NewEventDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "event_1"), dir)

	dir, err = s.NewEventDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "event_2"), dir)
}

func TestDeleteRefusesForeignPaths(t *testing.T) {
	base := t.TempDir()
	s, err := NewEventStore(base)
	require.NoError(t, err)

	victim := filepath.Join(base, "precious")
	require.NoError(t, os.Mkdir(victim, 0755))

	assert.Error(t, s.Delete(victim))
	_, err = os.Stat(victim)
	assert.NoError(t, err, "refused delete must leave the directory intact")

	dir, err := s.NewEventDir()
	require.NoError(t, err)
	require.NoError(t, s.Delete(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
