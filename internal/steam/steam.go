package steam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/siohaza/warden/internal/failure"
)

const DefaultBaseURL = "https://api.steampowered.com"

// Counter holds the raw text of a numeric field. Numbers, strings and null
// all decode; interpreting the value is left to the caller.
type Counter string

func (c *Counter) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Counter(s)
	default:
		*c = Counter(data)
	}
	return nil
}

func (c Counter) String() string { return string(c) }

// PlayerBans mirrors ISteamUser/GetPlayerBans.
type PlayerBans struct {
	SteamID          string  `json:"SteamId"`
	CommunityBanned  bool    `json:"CommunityBanned"`
	VACBanned        bool    `json:"VACBanned"`
	NumberOfVACBans  Counter `json:"NumberOfVACBans"`
	DaysSinceLastBan Counter `json:"DaysSinceLastBan"`
	NumberOfGameBans Counter `json:"NumberOfGameBans"`
	EconomyBan       string  `json:"EconomyBan"`
}

type PlayerSummary struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	Avatar      string `json:"avatarfull"`
	Country     string `json:"loccountrycode"`
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) get(ctx context.Context, path, steamID string, out any) error {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamids", steamID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create steam request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return failure.Transient("steam "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return failure.Transient("steam "+path, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("steam %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return failure.Transient("steam "+path, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) PlayerBans(ctx context.Context, steamID string) (PlayerBans, error) {
	var body struct {
		Players []PlayerBans `json:"players"`
	}
	if err := c.get(ctx, "/ISteamUser/GetPlayerBans/v1/", steamID, &body); err != nil {
		return PlayerBans{}, err
	}
	if len(body.Players) == 0 {
		return PlayerBans{}, failure.NotFound("steam player bans", fmt.Errorf("no bans record for %s", steamID))
	}
	return body.Players[0], nil
}

func (c *Client) PlayerSummary(ctx context.Context, steamID string) (PlayerSummary, error) {
	var body struct {
		Response struct {
			Players []PlayerSummary `json:"players"`
		} `json:"response"`
	}
	if err := c.get(ctx, "/ISteamUser/GetPlayerSummaries/v2/", steamID, &body); err != nil {
		return PlayerSummary{}, err
	}
	if len(body.Response.Players) == 0 {
		return PlayerSummary{}, failure.NotFound("steam player summary", fmt.Errorf("no profile for %s", steamID))
	}
	return body.Response.Players[0], nil
}
