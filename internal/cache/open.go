package cache

import (
	"context"
	"time"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/util"
)

// Open builds the cache described by cfg: memory only when disabled,
// otherwise memory over redis (when a URL is set) or over disk.
func Open(ctx context.Context, cfg model.CacheConfig) (Cache, error) {
	memory := NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	if !cfg.Enabled {
		return memory, nil
	}
	if cfg.RedisURL != "" {
		client, err := DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewLayeredCache(memory, NewRedisCache(client, cfg.DiskTTL)), nil
	}
	return NewLayeredCache(memory, NewDiskCache(util.ExpandHome(cfg.Dir), cfg.DiskTTL)), nil
}
