package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "gigs.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	_, ok, err := s.Get("campusGigs_username")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("campusGigs_username", "Ana"))
	require.NoError(t, s.Set("campusGigs_username", "Ana B"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get("campusGigs_username")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ana B", v)

	require.NoError(t, s.Remove("campusGigs_username"))
	require.NoError(t, s.Remove("campusGigs_username"))
	_, ok, err = s.Get("campusGigs_username")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	var s Store = NewMemory()
	require.NoError(t, s.Set("k", "v"))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	require.NoError(t, s.Remove("k"))
	_, ok, _ = s.Get("k")
	assert.False(t, ok)
}
