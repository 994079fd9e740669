package router

import (
	"context"
	"log/slog"

	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/failure"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// IdentityHandler is a handler that needs the acting player's steam id.
type IdentityHandler interface {
	Name() string
	HandleWithIdentity(ctx context.Context, ev event.GameEvent, steamID string) error
}

type identityHandler struct {
	resolver IdentityResolver
	next     IdentityHandler
	logger   *slog.Logger
}

// WithIdentity wraps h so that it is only invoked once the event's player has
// a resolved steam id. The id carried on the event is used when present.
func WithIdentity(resolver IdentityResolver, h IdentityHandler, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &identityHandler{resolver: resolver, next: h, logger: logger}
}

func (h *identityHandler) Name() string {
	return h.next.Name()
}

func (h *identityHandler) Handle(ctx context.Context, ev event.GameEvent) error {
	steamID := ev.SteamID
	if steamID == "" {
		id, err := h.resolver.Resolve(ctx, ev.Player)
		if err != nil {
			if failure.Is(err, failure.KindUnresolvedIdentity) {
				h.logger.Warn("skipping handler, player identity unresolved",
					"handler", h.next.Name(),
					"event", string(ev.Type),
					"player", ev.Player,
				)
				return nil
			}
			return err
		}
		steamID = id
	}

	return h.next.HandleWithIdentity(ctx, ev, steamID)
}
