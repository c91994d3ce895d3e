// SPDX-License-Identifier: MIT

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	valid := []string{"scene_001.mp4", "tts_1.mp3", "final.mp4", "a b.png"}
	for _, n := range valid {
		assert.NoError(t, SafeName(n), n)
	}

	invalid := []string{"", ".", "..", "../x", "a/b", `a\b`, "..hidden"}
	for _, n := range invalid {
		assert.Error(t, SafeName(n), n)
	}
}

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.txt"), []byte("x"), 0o644))

	p, err := ConfineRelPath(root, "ok.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok.txt", filepath.Base(p))

	// Not-yet-existing names resolve against the parent.
	p, err = ConfineRelPath(root, "new.bin")
	require.NoError(t, err)
	assert.Equal(t, "new.bin", filepath.Base(p))

	for _, bad := range []string{"../escape", "/abs/path", `win\style`, ".."} {
		_, err := ConfineRelPath(root, bad)
		assert.Error(t, err, bad)
	}
}

func TestConfineRelPathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := ConfineRelPath(root, "link/secret.txt")
	assert.Error(t, err)
}
