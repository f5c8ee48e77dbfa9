package cache

import (
	"log/slog"

	"github.com/IliaW/url-scrape-archiver/config"
	gocache "github.com/patrickmn/go-cache"
)

// LocalThrottle keeps counters in process memory. Used when no memcached servers are configured.
type LocalThrottle struct {
	counters *gocache.Cache
	cfg      *config.ThrottleConfig
	log      *slog.Logger
}

func NewLocalThrottle(cfg *config.ThrottleConfig, log *slog.Logger) *LocalThrottle {
	return &LocalThrottle{
		counters: gocache.New(cfg.Window, 2*cfg.Window),
		cfg:      cfg,
		log:      log,
	}
}

func (lt *LocalThrottle) Allow(identity string) (bool, error) {
	if lt.cfg.MaxRequests <= 0 {
		return true, nil
	}
	key := throttleKey(identity, lt.cfg.Window)

	// Add fails when the counter already exists, which is fine.
	_ = lt.counters.Add(key, 0, gocache.DefaultExpiration)
	count, err := lt.counters.IncrementInt(key, 1)
	if err != nil {
		// Expired between Add and IncrementInt; start a new window.
		lt.counters.Set(key, 1, gocache.DefaultExpiration)
		count = 1
	}

	return count <= lt.cfg.MaxRequests, nil
}

func (lt *LocalThrottle) Close() {
	lt.log.Debug("flushing local throttle counters.")
	lt.counters.Flush()
}
