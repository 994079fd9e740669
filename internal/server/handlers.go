package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/failure"
	"github.com/siohaza/warden/internal/identity"
	"github.com/siohaza/warden/internal/steam"
	"github.com/siohaza/warden/internal/storage"
)

type BanChecker interface {
	BanIfBlacklisted(ctx context.Context, steamID, name string)
	BanIfHasVacBanHistory(ctx context.Context, steamID, name string) error
}

type ProfileSource interface {
	PlayerSummary(ctx context.Context, steamID string) (steam.PlayerSummary, error)
}

// connectHandler refreshes the player's identity, records the visit and runs
// the ban checks. It always re-resolves the id because names can be reused.
type connectHandler struct {
	resolver *identity.Resolver
	store    *storage.Store
	bans     BanChecker
	logger   *slog.Logger
}

func (h *connectHandler) Name() string {
	return "handle_on_connect"
}

func (h *connectHandler) Handle(ctx context.Context, ev event.GameEvent) error {
	if ev.Player == "" {
		return failure.Unresolved("connect")
	}

	cached, _ := h.resolver.Cached(ctx, ev.Player)
	if err := h.resolver.Invalidate(ctx, ev.Player); err != nil {
		h.logger.Warn("unable to clear cached identity", "player", ev.Player, "steam_id", cached, "error", err)
	}

	steamID, err := h.resolver.Resolve(ctx, ev.Player)
	if err != nil {
		h.logger.Error("unable to get player steam id, can't process connection", "player", ev.Player, "error", err)
		return fmt.Errorf("failed to resolve %s: %w", ev.Player, err)
	}

	at := ev.Timestamp()
	if _, err := h.store.UpsertPlayer(ctx, ev.Player, steamID, at); err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	if _, err := h.store.StartSession(ctx, steamID, at); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	h.bans.BanIfBlacklisted(ctx, steamID, ev.Player)
	return h.bans.BanIfHasVacBanHistory(ctx, steamID, ev.Player)
}

type disconnectHandler struct {
	store *storage.Store
}

func (h *disconnectHandler) Name() string {
	return "handle_on_disconnect"
}

func (h *disconnectHandler) HandleWithIdentity(ctx context.Context, ev event.GameEvent, steamID string) error {
	if err := h.store.EndSession(ctx, steamID, ev.Timestamp()); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

type profileHandler struct {
	profiles ProfileSource
	store    *storage.Store
	logger   *slog.Logger
}

func (h *profileHandler) Name() string {
	return "update_player_steaminfo_on_connect"
}

func (h *profileHandler) HandleWithIdentity(ctx context.Context, ev event.GameEvent, steamID string) error {
	summary, err := h.profiles.PlayerSummary(ctx, steamID)
	if err != nil {
		return fmt.Errorf("failed to fetch steam profile: %w", err)
	}

	h.logger.Info("updating steam profile", "player", ev.Player, "steam_id", steamID)
	return h.store.UpdateProfile(ctx, steamID, storage.Profile{
		PersonaName: summary.PersonaName,
		ProfileURL:  summary.ProfileURL,
		Avatar:      summary.Avatar,
		Country:     summary.Country,
	})
}
