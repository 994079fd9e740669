package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siohaza/warden/internal/event"
)

const cameraColor = 242424

type Recorder interface {
	RecordNotification(channel string, ok bool)
}

// FormatFields renders key/value pairs as "key: value" separated by commas.
func FormatFields(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", kv[i], kv[i+1])
	}
	return b.String()
}

// Auditor sends moderation messages to the audit and camera webhooks. Every
// send is attempted once and failures are only logged.
type Auditor struct {
	poster     Poster
	auditURL   string
	cameraURLs []string
	footer     string
	recorder   Recorder
	logger     *slog.Logger
}

func NewAuditor(poster Poster, auditURL string, cameraURLs []string, footer string, recorder Recorder, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		poster:     poster,
		auditURL:   auditURL,
		cameraURLs: cameraURLs,
		footer:     footer,
		recorder:   recorder,
		logger:     logger,
	}
}

func (a *Auditor) SendAudit(ctx context.Context, message, by string) {
	if a.auditURL == "" {
		a.logger.Debug("no audit webhook configured", "by", by, "message", message)
		return
	}

	msg := Message{
		Embeds: []Embed{{
			Description: message,
			Author:      &EmbedAuthor{Name: by},
			Footer:      a.footerEmbed(),
		}},
		AllowedMentions: &AllowedMentions{Parse: []string{}},
	}

	err := a.poster.Post(ctx, a.auditURL, msg)
	a.record("audit", err)
	if err != nil {
		a.logger.Error("failed to send audit message", "by", by, "error", err)
	}
}

func (a *Auditor) SendCamera(ctx context.Context, ev event.GameEvent) {
	if len(a.cameraURLs) == 0 {
		return
	}

	msg := Message{
		Embeds: []Embed{{
			Title:       fmt.Sprintf("%s - %s", ev.Player, ev.SteamID),
			Description: ev.SubContent,
			Color:       cameraColor,
		}},
	}

	for _, url := range a.cameraURLs {
		err := a.poster.Post(ctx, url, msg)
		a.record("camera", err)
		if err != nil {
			a.logger.Error("failed to forward camera event", "player", ev.Player, "error", err)
		}
	}
}

func (a *Auditor) footerEmbed() *EmbedFooter {
	if a.footer == "" {
		return nil
	}
	return &EmbedFooter{Text: a.footer}
}

func (a *Auditor) record(channel string, err error) {
	if a.recorder != nil {
		a.recorder.RecordNotification(channel, err == nil)
	}
}
