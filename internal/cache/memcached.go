package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/IliaW/hotel-crawler/config"
)

// SeenCache is an optional shared cache of listing names already emitted by
// any crawler in the fleet. The dedup ledger consults it before accepting an
// item; a cache failure only weakens cross-run dedup, never blocks a crawl.
type SeenCache interface {
	Seen(name string) bool
	MarkSeen(name string)
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
}

func NewMemcachedClient(cacheConfig *config.CacheConfig) *MemcachedClient {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	err := ss.SetServers(cacheConfig.Servers...)
	if err != nil {
		slog.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
	}
	slog.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		slog.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to memcached!")

	return c
}

func (mc *MemcachedClient) Seen(name string) bool {
	key := hashName(name)
	it, err := mc.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			slog.Debug("cache not found.", slog.String("key", key))
			return false
		}
		slog.Error("failed to check if listing was seen.", slog.String("key", key),
			slog.String("err", err.Error()))
		return false
	}

	return len(it.Value) > 0
}

func (mc *MemcachedClient) MarkSeen(name string) {
	item := &memcache.Item{
		Key:        hashName(name),
		Value:      []byte("1"),
		Expiration: int32(mc.cfg.TtlForSeen.Seconds()),
	}
	if err := mc.client.Set(item); err != nil {
		slog.Error("failed to mark listing as seen.", slog.String("name", name),
			slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) Close() {
	slog.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		slog.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func hashName(name string) string {
	hash := sha256.New()
	hash.Write([]byte(name))
	return hex.EncodeToString(hash.Sum(nil))
}
