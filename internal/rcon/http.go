package rcon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siohaza/warden/internal/failure"
)

type response struct {
	Result json.RawMessage `json:"result"`
	Failed bool            `json:"failed"`
	Error  string          `json:"error"`
}

// HTTPClient talks to the game server control API. Every command is a POST to
// {baseURL}/api/{command} with a JSON body and a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) call(ctx context.Context, command string, args map[string]any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode %s arguments: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+command, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", command, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return failure.Transient(command, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure.Transient(command, err)
	}

	if resp.StatusCode >= 500 {
		return failure.Transient(command, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusNotFound {
		return failure.NotFound(command, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", command, resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return failure.Transient(command, fmt.Errorf("failed to decode response: %w", err))
	}
	if r.Failed {
		msg := r.Error
		if msg == "" {
			msg = "command failed"
		}
		return failure.Transient(command, errors.New(msg))
	}

	if out == nil {
		return nil
	}
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return failure.NotFound(command, errors.New("empty result"))
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return failure.Transient(command, fmt.Errorf("failed to decode result: %w", err))
	}
	return nil
}

func (c *HTTPClient) GetPlayerInfo(ctx context.Context, name string) (PlayerInfo, error) {
	var info PlayerInfo
	if err := c.call(ctx, "get_player_info", map[string]any{"player_name": name}, &info); err != nil {
		return PlayerInfo{}, err
	}
	if info.SteamID == "" {
		return PlayerInfo{}, failure.NotFound("get_player_info", fmt.Errorf("no steam id for %q", name))
	}
	if info.Name == "" {
		info.Name = name
	}
	return info, nil
}

func (c *HTTPClient) PermaBan(ctx context.Context, player, steamID, reason, by string) error {
	return c.call(ctx, "do_perma_ban", map[string]any{
		"player_name": player,
		"steam_id_64": steamID,
		"reason":      reason,
		"by":          by,
	}, nil)
}

func (c *HTTPClient) GetVipCount(ctx context.Context) (int, error) {
	var n int
	if err := c.call(ctx, "get_vips_count", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *HTTPClient) SetVipSlotCount(ctx context.Context, n int) error {
	return c.call(ctx, "set_vip_slots_num", map[string]any{"num": n}, nil)
}

func (c *HTTPClient) BroadcastTemporary(ctx context.Context, text string, d time.Duration) error {
	return c.call(ctx, "set_temporary_broadcast", map[string]any{
		"message": text,
		"seconds": int(d.Seconds()),
	}, nil)
}

func (c *HTTPClient) WelcomeTemporary(ctx context.Context, text string, d time.Duration) error {
	return c.call(ctx, "set_temporary_welcome", map[string]any{
		"message": text,
		"seconds": int(d.Seconds()),
	}, nil)
}

func (c *HTTPClient) SetNextMap(ctx context.Context, mapName string) error {
	return c.call(ctx, "set_map", map[string]any{"map_name": mapName}, nil)
}
