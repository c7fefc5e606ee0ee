package cache

import (
	"context"
	"time"

	"menugen/internal/infra"
)

// Sweeper periodically reaps expired cache entries and share links. It runs
// until its context is cancelled, which makes shutdown and tests clean.
type Sweeper struct {
	cache    *ResultsCache
	links    *ShareLinkRegistry
	interval time.Duration
	logger   infra.Logger
}

// NewSweeper constructs a sweeper over the given structures.
func NewSweeper(cache *ResultsCache, links *ShareLinkRegistry, interval time.Duration, logger infra.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{cache: cache, links: links, interval: interval, logger: logger}
}

// Run blocks, sweeping on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Msg("sweeper: started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	entries := s.cache.SweepExpired(ctx)
	links := s.links.Sweep()
	if entries > 0 || links > 0 {
		s.logger.Info().
			Int("entries", entries).
			Int("share_links", links).
			Msg("sweeper: reaped expired state")
	}
}
