// SPDX-License-Identifier: MIT

// Package session implements the shared-filesystem workspace every
// gateway reads and writes. A session is a client-chosen token backed by
// a directory created lazily on first write.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"

	"github.com/Amore-GG/BE/internal/fsutil"
)

// ErrNotFound reports a missing session or artifact.
var ErrNotFound = errors.New("not found")

// Store roots all session directories under a single path.
type Store struct {
	root string
}

// NewStore returns a store rooted at root (typically <data_dir>/sessions).
// The root is created eagerly; individual sessions are not.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory all sessions live under.
func (s *Store) Root() string { return s.root }

// FileInfo describes one artifact in a session listing.
type FileInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Dir returns the directory of a session without creating it.
func (s *Store) Dir(session string) (string, error) {
	if err := fsutil.SafeName(session); err != nil {
		return "", fmt.Errorf("invalid session id: %w", err)
	}
	return filepath.Join(s.root, session), nil
}

// Put writes an artifact into a session, creating the session directory
// on demand. The write is atomic; an existing name is overwritten. It
// returns the stored name.
func (s *Store) Put(session, name string, r io.Reader) (string, error) {
	dir, err := s.Dir(session)
	if err != nil {
		return "", err
	}
	if err := fsutil.SafeName(name); err != nil {
		return "", fmt.Errorf("invalid artifact name: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read artifact body: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return name, nil
}

// Path resolves an artifact to its on-disk path, or ErrNotFound.
func (s *Store) Path(session, name string) (string, error) {
	dir, err := s.Dir(session)
	if err != nil {
		return "", err
	}
	if err := fsutil.SafeName(name); err != nil {
		return "", fmt.Errorf("invalid artifact name: %w", err)
	}
	p := filepath.Join(dir, name)
	if err := fsutil.IsRegularFile(p); err != nil {
		return "", ErrNotFound
	}
	return p, nil
}

// Get opens an artifact for reading, or returns ErrNotFound.
func (s *Store) Get(session, name string) (io.ReadCloser, error) {
	p, err := s.Path(session, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// List returns the artifacts of a session in descending created_at
// order. An unknown session yields an empty list and exists=false, not
// an error.
func (s *Store) List(session string) ([]FileInfo, bool, error) {
	dir, err := s.Dir(session)
	if err != nil {
		return nil, false, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, false, nil
		}
		return nil, false, fmt.Errorf("list session: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:      e.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, true, nil
}

// Delete removes a session recursively and returns the number of files
// that were removed. Deleting an unknown session returns 0.
func (s *Store) Delete(session string) (int, error) {
	dir, err := s.Dir(session)
	if err != nil {
		return 0, err
	}
	count := 0
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return nil
	})
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return count, nil
}

// Info summarizes one session for the listing endpoint.
type Info struct {
	ID        string    `json:"session_id"`
	FileCount int       `json:"file_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sessions lists all known sessions, most recently touched first.
func (s *Store) Sessions() ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files, _, _ := s.List(e.Name())
		out = append(out, Info{
			ID:        e.Name(),
			FileCount: len(files),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
