package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/siohaza/warden/internal/failure"
)

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedAuthor struct {
	Name string `json:"name"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type AllowedMentions struct {
	Parse []string `json:"parse"`
	Users []string `json:"users,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Message is a Discord-compatible webhook payload.
type Message struct {
	Content         string           `json:"content,omitempty"`
	Embeds          []Embed          `json:"embeds,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

type Poster interface {
	Post(ctx context.Context, url string, msg Message) error
}

var (
	userMention = regexp.MustCompile(`^<@(\d+)>`)
	roleMention = regexp.MustCompile(`^<@&(\d+)>`)
)

// MakeAllowedMentions restricts pings to the users and roles named in
// mentions. Anything else, including @everyone, is left unparsed.
func MakeAllowedMentions(mentions []string) *AllowedMentions {
	am := &AllowedMentions{Parse: []string{}}
	for _, m := range mentions {
		if match := userMention.FindStringSubmatch(m); match != nil {
			am.Users = append(am.Users, match[1])
		}
		if match := roleMention.FindStringSubmatch(m); match != nil {
			am.Roles = append(am.Roles, match[1])
		}
	}
	return am
}

// WebhookClient posts messages to webhook URLs. All posts share one rate
// limiter so a burst of events cannot flood the destination.
type WebhookClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

func NewWebhookClient(timeout time.Duration, perSecond float64) *WebhookClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &WebhookClient{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *WebhookClient) Post(ctx context.Context, url string, msg Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit wait: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return failure.Transient("post webhook", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return failure.Transient("post webhook", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
