// SPDX-License-Identifier: MIT

package session

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	name, err := s.Put("sess-1", "scene_001.mp4", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "scene_001.mp4", name)

	rc, err := s.Get("sess-1", "scene_001.mp4")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestPutOverwriteLastWriterWins(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("sess-1", "a.txt", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = s.Put("sess-1", "a.txt", strings.NewReader("second"))
	require.NoError(t, err)

	rc, err := s.Get("sess-1", "a.txt")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "second", string(body))
}

func TestGetUnknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("nope", "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put("sess-1", "a.txt", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = s.Get("sess-1", "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUnknownSessionNotAnError(t *testing.T) {
	s := newTestStore(t)

	files, exists, err := s.List("ghost")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, files)
}

func TestListOrdering(t *testing.T) {
	s := newTestStore(t)

	for _, n := range []string{"one.txt", "two.txt", "three.txt"} {
		_, err := s.Put("sess-1", n, strings.NewReader(n))
		require.NoError(t, err)
	}

	files, exists, err := s.List("sess-1")
	require.NoError(t, err)
	assert.True(t, exists)
	require.Len(t, files, 3)
	for i := 1; i < len(files); i++ {
		assert.False(t, files[i].CreatedAt.After(files[i-1].CreatedAt))
	}
}

func TestDeleteCountsFiles(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("sess-1", "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = s.Put("sess-1", "b.txt", strings.NewReader("b"))
	require.NoError(t, err)

	n, err := s.Delete("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	files, exists, err := s.List("sess-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, files)

	n, err = s.Delete("sess-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNameConfinement(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("sess-1", "../escape.txt", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = s.Put("../escape", "a.txt", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = s.Get("sess-1", "sub/dir.txt")
	assert.Error(t, err)
}

func TestSessionsListing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Put("alpha", "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = s.Put("beta", "b.txt", strings.NewReader("b"))
	require.NoError(t, err)
	_, err = s.Put("beta", "c.txt", strings.NewReader("c"))
	require.NoError(t, err)

	infos, err := s.Sessions()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byID := map[string]Info{}
	for _, i := range infos {
		byID[i.ID] = i
	}
	assert.Equal(t, 1, byID["alpha"].FileCount)
	assert.Equal(t, 2, byID["beta"].FileCount)
}
