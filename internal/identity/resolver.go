package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/siohaza/warden/internal/failure"
	"github.com/siohaza/warden/internal/rcon"
)

type PlayerInfoSource interface {
	GetPlayerInfo(ctx context.Context, name string) (rcon.PlayerInfo, error)
}

// Resolver maps a display name to a steam id through the cache and the game
// server's player info lookup.
type Resolver struct {
	cache  Cache
	source PlayerInfoSource
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewResolver(cache Cache, source PlayerInfoSource, ttl time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cache:  cache,
		source: source,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Cached returns the stored id for name whether or not it is still valid.
func (r *Resolver) Cached(ctx context.Context, name string) (string, bool) {
	e, ok, err := r.cache.Get(ctx, name)
	if err != nil {
		r.logger.Warn("failed to read identity cache", "player", name, "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return e.SteamID, true
}

func (r *Resolver) Invalidate(ctx context.Context, name string) error {
	return r.cache.Invalidate(ctx, name)
}

func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	entry, cached, err := r.cache.Get(ctx, name)
	if err != nil {
		r.logger.Warn("failed to read identity cache", "player", name, "error", err)
		cached = false
	}

	if cached && entry.Valid && (r.ttl <= 0 || r.now().Sub(entry.StoredAt) < r.ttl) {
		return entry.SteamID, nil
	}

	info, lookupErr := r.source.GetPlayerInfo(ctx, name)
	if lookupErr == nil && info.SteamID != "" {
		if err := r.cache.Put(ctx, name, info.SteamID); err != nil {
			r.logger.Warn("failed to store identity", "player", name, "error", err)
		}
		return info.SteamID, nil
	}

	if cached && entry.SteamID != "" {
		r.logger.Warn("player info lookup failed, using cached steam id",
			"player", name,
			"steam_id", entry.SteamID,
			"error", lookupErr,
		)
		return entry.SteamID, nil
	}

	if lookupErr != nil {
		r.logger.Debug("player info lookup failed", "player", name, "error", lookupErr)
	}
	return "", failure.Unresolved("resolve " + name)
}
