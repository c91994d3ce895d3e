// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Amore-GG/BE/internal/log"
)

// SweeperConfig bounds session lifetime.
type SweeperConfig struct {
	Interval time.Duration // sweep period, default 30m
	MaxAge   time.Duration // idle TTL, default 24h
}

// Sweeper removes sessions whose directory mtime exceeds MaxAge.
type Sweeper struct {
	Store *Store
	Conf  SweeperConfig
}

// Run loops until ctx is cancelled, sweeping every Conf.Interval.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Conf.Interval
	if interval == 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("session.sweeper")
	logger.Info().Dur("interval", interval).Msg("session sweeper started")

	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-ctx.Done():
			logger.Info().Msg("session sweeper stopped")
			return ctx.Err()
		}
	}
}

// SweepOnce deletes expired sessions. Failures are logged per session and
// never abort the sweep.
func (s *Sweeper) SweepOnce() {
	maxAge := s.Conf.MaxAge
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}

	logger := log.WithComponent("session.sweeper")
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(s.Store.Root())
	if err != nil {
		logger.Error().Err(err).Msg("failed to read session root")
		return
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.Store.Root(), e.Name())); err != nil {
			logger.Error().Err(err).
				Str(log.FieldSession, e.Name()).
				Msg("failed to remove expired session")
			continue
		}
		removed++
		logger.Debug().
			Str(log.FieldSession, e.Name()).
			Time("mtime", info.ModTime()).
			Msg("expired session removed")
	}
	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("session sweep complete")
	}
}
