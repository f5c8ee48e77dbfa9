package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IliaW/url-scrape-archiver/config"
	"github.com/bradfitz/gomemcache/memcache"
)

// Throttle counts scrape requests per identity inside a fixed window.
type Throttle interface {
	Allow(identity string) (bool, error)
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.ThrottleConfig
	log    *slog.Logger
}

func NewMemcachedClient(cacheConfig *config.CacheConfig, throttleConfig *config.ThrottleConfig,
	log *slog.Logger) *MemcachedClient {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	servers := strings.Split(cacheConfig.Servers, ",")
	err := ss.SetServers(servers...)
	if err != nil {
		log.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    throttleConfig,
		log:    log,
	}
	c.log.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		log.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c.log.Info("connected to memcached!")

	return c
}

// Allow increments the identity's counter, creating it with the window as TTL on first use.
func (mc *MemcachedClient) Allow(identity string) (bool, error) {
	if mc.cfg.MaxRequests <= 0 {
		return true, nil
	}
	key := throttleKey(identity, mc.cfg.Window)

	count, err := mc.client.Increment(key, 1)
	if errors.Is(err, memcache.ErrCacheMiss) {
		err = mc.client.Add(&memcache.Item{
			Key:        key,
			Value:      []byte("1"),
			Expiration: expiration(mc.cfg.Window),
		})
		switch {
		case err == nil:
			count = 1
		case errors.Is(err, memcache.ErrNotStored): // lost the race to another request
			count, err = mc.client.Increment(key, 1)
		}
	}
	if err != nil {
		mc.log.Warn("failed to update the throttle counter.", slog.String("key", key),
			slog.String("err", err.Error()))
		return false, err
	}
	mc.log.Debug("throttle counter.", slog.String("key", key), slog.Uint64("count", count))

	return count <= uint64(mc.cfg.MaxRequests), nil
}

func (mc *MemcachedClient) Close() {
	mc.log.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		mc.log.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func throttleKey(identity string, window time.Duration) string {
	return fmt.Sprintf("%s-%s-scrapes", hashIdentity(identity), window)
}

// expiration is the memcached TTL in whole seconds, at least one.
func expiration(window time.Duration) int32 {
	s := int32(window / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

func hashIdentity(identity string) string {
	hash := sha256.New()
	hash.Write([]byte(identity))
	return hex.EncodeToString(hash.Sum(nil))
}
