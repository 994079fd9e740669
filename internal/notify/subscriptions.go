package notify

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/siohaza/warden/internal/event"
)

type Destination struct {
	URL      string
	Mentions []string
	Servers  []string
}

// Subscriptions maps an event type to the webhooks that receive its log lines.
type Subscriptions map[event.Type][]Destination

type SubscriptionHandler struct {
	eventType    event.Type
	destinations []Destination
	poster       Poster
	footer       string
	recorder     Recorder
	logger       *slog.Logger
}

// NewSubscriptionHandlers builds one handler per subscribed event type,
// keeping only destinations that list serverNumber or no server at all.
func NewSubscriptionHandlers(subs Subscriptions, poster Poster, serverNumber, footer string, recorder Recorder, logger *slog.Logger) []*SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}

	types := make([]event.Type, 0, len(subs))
	for t := range subs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var handlers []*SubscriptionHandler
	for _, t := range types {
		var dests []Destination
		for _, d := range subs[t] {
			if d.URL == "" {
				continue
			}
			if len(d.Servers) > 0 && !slices.Contains(d.Servers, serverNumber) {
				continue
			}
			dests = append(dests, d)
		}
		if len(dests) == 0 {
			continue
		}
		handlers = append(handlers, &SubscriptionHandler{
			eventType:    t,
			destinations: dests,
			poster:       poster,
			footer:       footer,
			recorder:     recorder,
			logger:       logger,
		})
	}
	return handlers
}

func (h *SubscriptionHandler) Name() string {
	return "log_line_webhook:" + string(h.eventType)
}

func (h *SubscriptionHandler) EventType() event.Type {
	return h.eventType
}

func (h *SubscriptionHandler) Handle(ctx context.Context, ev event.GameEvent) error {
	for _, d := range h.destinations {
		msg := Message{
			Content: strings.Join(d.Mentions, " "),
			Embeds: []Embed{{
				Description: ev.LineWithoutTime,
				Timestamp:   ev.Timestamp().Format(time.RFC3339),
				Footer:      &EmbedFooter{Text: h.footer},
			}},
			AllowedMentions: MakeAllowedMentions(d.Mentions),
		}

		err := h.poster.Post(ctx, d.URL, msg)
		if h.recorder != nil {
			h.recorder.RecordNotification("subscription", err == nil)
		}
		if err != nil {
			h.logger.Error("failed to send log line webhook",
				"event", string(ev.Type),
				"url", redactURL(d.URL),
				"error", err,
			)
		}
	}
	return nil
}

// redactURL drops the webhook token from URLs before they are logged.
func redactURL(u string) string {
	if i := strings.LastIndexByte(u, '/'); i > 0 && i < len(u)-1 {
		return u[:i+1] + "***"
	}
	return u
}
