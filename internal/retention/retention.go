// SPDX-License-Identifier: MIT

// Package retention enforces per-directory TTLs on gateway output and
// upload directories.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Amore-GG/BE/internal/log"
)

// Policy binds one directory to a maximum file age. Subdirectories are
// aged by their own mtime and removed whole (project folders).
type Policy struct {
	Dir    string
	MaxAge time.Duration
}

// Sweeper walks its policies on a fixed interval and deletes expired
// entries. Failures are logged and never abort the loop.
type Sweeper struct {
	Policies []Policy
	Interval time.Duration
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval == 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("retention")
	logger.Info().Dur("interval", interval).Int("policies", len(s.Policies)).
		Msg("retention sweeper started")

	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-ctx.Done():
			logger.Info().Msg("retention sweeper stopped")
			return ctx.Err()
		}
	}
}

// SweepOnce applies every policy once.
func (s *Sweeper) SweepOnce() {
	for _, p := range s.Policies {
		sweepDir(p)
	}
}

func sweepDir(p Policy) {
	logger := log.WithComponent("retention")
	cutoff := time.Now().Add(-p.MaxAge)

	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error().Err(err).Str(log.FieldPath, p.Dir).Msg("failed to read retention dir")
		}
		return
	}

	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		target := filepath.Join(p.Dir, e.Name())
		if err := os.RemoveAll(target); err != nil {
			logger.Error().Err(err).Str(log.FieldPath, target).Msg("failed to remove expired file")
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info().Str(log.FieldPath, p.Dir).Int("removed", removed).Msg("retention sweep complete")
	}
}
