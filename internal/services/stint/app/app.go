// Package app wires the stint runtime: content catalog, storage backend,
// script engine, and evaluation cache.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/convening.space/internal/services/stint/content"
	"github.com/louisbranch/convening.space/internal/services/stint/engine"
	"github.com/louisbranch/convening.space/internal/services/stint/evalcache"
	"github.com/louisbranch/convening.space/internal/services/stint/script"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
	"github.com/louisbranch/convening.space/internal/services/stint/storage/memory"
	"github.com/louisbranch/convening.space/internal/services/stint/storage/sqlite"
)

const defaultCacheTTL = 5 * time.Minute

// Config selects the runtime's collaborators. An empty DBPath keeps state in
// memory; an empty RedisAddr keeps the evaluation cache in process.
type Config struct {
	ContentPath string
	DBPath      string
	RedisAddr   string
	CacheTTL    time.Duration
}

// Runtime bundles a loaded catalog with the engine running against it.
type Runtime struct {
	Catalog *content.Catalog
	Engine  *engine.Engine
	Store   storage.Store

	closers []func() error
}

// Open loads the content bundle and assembles the runtime around it.
func Open(ctx context.Context, cfg Config) (*Runtime, error) {
	if strings.TrimSpace(cfg.ContentPath) == "" {
		return nil, errors.New("content path is required")
	}
	catalog, err := content.LoadFile(cfg.ContentPath)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}

	runtime := &Runtime{Catalog: catalog}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	runtime.Store = store
	if closer, ok := store.(interface{ Close() error }); ok {
		runtime.closers = append(runtime.closers, closer.Close)
	}

	cache, err := openCache(ctx, cfg, runtime)
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}

	runtime.Engine = engine.New(catalog, store, script.NewLuaEngine(), engine.Options{Cache: cache})
	return runtime, nil
}

// Close releases the runtime's backends in reverse acquisition order.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Seed materializes a fresh stint from the loaded catalog and starts every
// hand, so the entry stage's pre-action fires on first arrival.
func (r *Runtime) Seed(ctx context.Context, teams, handsPerTeam int) (content.SeedResult, error) {
	result, err := content.Seed(ctx, r.Store, r.Catalog, content.SeedOptions{
		Teams:        teams,
		HandsPerTeam: handsPerTeam,
	})
	if err != nil {
		return result, err
	}
	for _, handID := range result.HandIDs {
		if _, err := r.Engine.Start(ctx, handID); err != nil {
			return result, fmt.Errorf("start hand %s: %w", handID, err)
		}
	}
	return result, nil
}

func openStore(path string) (storage.Store, error) {
	if strings.TrimSpace(path) == "" {
		return memory.New(), nil
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func openCache(ctx context.Context, cfg Config, runtime *Runtime) (evalcache.Cache, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return evalcache.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	runtime.closers = append(runtime.closers, client.Close)
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return evalcache.NewRedis(client, ttl), nil
}
