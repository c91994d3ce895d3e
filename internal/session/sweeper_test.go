// SPDX-License-Identifier: MIT

package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceTTLBoundary(t *testing.T) {
	s := newTestStore(t)
	sw := &Sweeper{Store: s, Conf: SweeperConfig{MaxAge: time.Hour}}

	_, err := s.Put("fresh", "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = s.Put("stale", "b.txt", strings.NewReader("b"))
	require.NoError(t, err)

	// Age the stale session just past the TTL, keep fresh just inside.
	old := time.Now().Add(-time.Hour - time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(s.Root(), "stale"), old, old))
	young := time.Now().Add(-time.Hour + time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(s.Root(), "fresh"), young, young))

	sw.SweepOnce()

	_, exists, err := s.List("fresh")
	require.NoError(t, err)
	assert.True(t, exists)

	_, exists, err = s.List("stale")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSweepOnceEmptyRoot(t *testing.T) {
	s := newTestStore(t)
	sw := &Sweeper{Store: s, Conf: SweeperConfig{MaxAge: time.Hour}}
	sw.SweepOnce()

	infos, err := s.Sessions()
	require.NoError(t, err)
	assert.Empty(t, infos)
}
