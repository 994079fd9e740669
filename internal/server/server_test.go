package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siohaza/warden/internal/collector"
	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/failure"
	"github.com/siohaza/warden/internal/metrics"
	"github.com/siohaza/warden/internal/notify"
	"github.com/siohaza/warden/internal/rcon"
	"github.com/siohaza/warden/internal/steam"
	"github.com/siohaza/warden/internal/storage"
	"github.com/siohaza/warden/internal/vote"
	"github.com/siohaza/warden/pkg/config"
)

type permaBan struct {
	player, steamID, reason, by string
}

type fakeRCON struct {
	players    map[string]string
	vipCount   int
	bans       []permaBan
	slots      []int
	nextMaps   []string
	broadcasts []string
	welcomes   []string
}

func (f *fakeRCON) GetPlayerInfo(ctx context.Context, name string) (rcon.PlayerInfo, error) {
	id, ok := f.players[name]
	if !ok {
		return rcon.PlayerInfo{}, failure.NotFound("get_player_info", fmt.Errorf("%s not found", name))
	}
	return rcon.PlayerInfo{Name: name, SteamID: id}, nil
}

func (f *fakeRCON) PermaBan(ctx context.Context, player, steamID, reason, by string) error {
	f.bans = append(f.bans, permaBan{player, steamID, reason, by})
	return nil
}

func (f *fakeRCON) GetVipCount(ctx context.Context) (int, error) {
	return f.vipCount, nil
}

func (f *fakeRCON) SetVipSlotCount(ctx context.Context, n int) error {
	f.slots = append(f.slots, n)
	return nil
}

func (f *fakeRCON) BroadcastTemporary(ctx context.Context, text string, d time.Duration) error {
	f.broadcasts = append(f.broadcasts, text)
	return nil
}

func (f *fakeRCON) WelcomeTemporary(ctx context.Context, text string, d time.Duration) error {
	f.welcomes = append(f.welcomes, text)
	return nil
}

func (f *fakeRCON) SetNextMap(ctx context.Context, mapName string) error {
	f.nextMaps = append(f.nextMaps, mapName)
	return nil
}

type fakeSteam struct {
	bans map[string]steam.PlayerBans
}

func (f *fakeSteam) PlayerBans(ctx context.Context, steamID string) (steam.PlayerBans, error) {
	b, ok := f.bans[steamID]
	if !ok {
		return steam.PlayerBans{}, failure.NotFound("player bans", errors.New("no bans"))
	}
	return b, nil
}

func (f *fakeSteam) PlayerSummary(ctx context.Context, steamID string) (steam.PlayerSummary, error) {
	return steam.PlayerSummary{
		SteamID:     steamID,
		PersonaName: "persona-" + steamID,
		Country:     "FR",
	}, nil
}

type post struct {
	url string
	msg notify.Message
}

type fakePoster struct {
	posts []post
}

func (f *fakePoster) Post(ctx context.Context, url string, msg notify.Message) error {
	f.posts = append(f.posts, post{url, msg})
	return nil
}

func (f *fakePoster) to(url string) []post {
	var out []post
	for _, p := range f.posts {
		if p.url == url {
			out = append(out, p)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	auditURL = "https://discord.example/api/webhooks/audit"
	killURL  = "https://discord.example/api/webhooks/kills"
)

type fixture struct {
	server *Server
	rcon   *fakeRCON
	poster *fakePoster
	store  *storage.Store
}

func newFixture(t *testing.T, hooksDir string) *fixture {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.RCON.BaseURL = "http://localhost:8010"
	cfg.HTTP.Listen = ""
	cfg.Server.Name = "Frontline"
	cfg.VoteMap.Enabled = true
	cfg.VoteMap.Choices = []string{"foy_warfare", "carentan_warfare"}
	cfg.RealVip = config.RealVipConfig{Enabled: true, DesiredTotal: 5, MinFloor: 1}
	cfg.AutoBan.MaxDaysSinceBan = "365"
	cfg.AutoBan.MaxGameBanThreshold = "2"
	cfg.Notify.AuditWebhook = auditURL
	cfg.Scripts.HooksDir = hooksDir
	require.NoError(t, cfg.Validate())

	rc := &fakeRCON{
		players: map[string]string{
			"Alice":   "76561198000000001",
			"Mallory": "76561198000000002",
			"Vic":     "76561198000000003",
		},
		vipCount: 2,
	}
	st := &fakeSteam{bans: map[string]steam.PlayerBans{
		"76561198000000001": {VACBanned: false, DaysSinceLastBan: "0", NumberOfGameBans: "0"},
		"76561198000000003": {VACBanned: true, DaysSinceLastBan: "10", NumberOfGameBans: "0"},
	}}
	poster := &fakePoster{}

	srv, err := NewWithDependencies(cfg, Dependencies{
		RCON:    rc,
		Steam:   st,
		Store:   store,
		Poster:  poster,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Subscriptions: notify.Subscriptions{
			event.TypeKill: {{URL: killURL}},
		},
	}, discardLogger())
	require.NoError(t, err)

	return &fixture{server: srv, rcon: rc, poster: poster, store: store}
}

const gameLog = `{"action":"CONNECTED","player":"Alice","timestamp_ms":1700000000000}
{"action":"CONNECTED","player":"Mallory","timestamp_ms":1700000001000}
{"action":"CONNECTED","player":"Vic","timestamp_ms":1700000002000}
{"action":"CONNECTED","player":"Ghost","timestamp_ms":1700000003000}
{"action":"KILL","player":"Alice","player2":"Vic","weapon":"M1 GARAND","line_without_time":"KILL: Alice -> Vic with M1 GARAND","timestamp_ms":1700000004000}
{"action":"CHAT[Allies][Unit]","player":"Alice","sub_content":"!vm 2","timestamp_ms":1700000005000}
{"action":"DISCONNECTED","player":"Alice","timestamp_ms":1700000006000}
`

func TestEventStreamAppliesPolicies(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.store.SetBlacklist(ctx, "76561198000000002", "cheating", "admin"))

	err := f.server.Consume(ctx, collector.NewReaderSource(strings.NewReader(gameLog)))
	require.NoError(t, err)

	require.Len(t, f.rcon.bans, 2)
	assert.Equal(t, permaBan{"Mallory", "76561198000000002", "cheating", "BLACKLIST: admin"}, f.rcon.bans[0])
	assert.Equal(t, "Vic", f.rcon.bans[1].player)
	assert.Equal(t, "VAC BOT", f.rcon.bans[1].by)
	assert.Contains(t, f.rcon.bans[1].reason, "10 days ago")

	audits := f.poster.to(auditURL)
	require.Len(t, audits, 2)
	assert.Contains(t, audits[0].msg.Embeds[0].Description, "`BLACKLIST`")
	assert.Contains(t, audits[1].msg.Embeds[0].Description, "`VAC/GAME BAN`")

	kills := f.poster.to(killURL)
	require.Len(t, kills, 1)
	assert.Equal(t, "KILL: Alice -> Vic with M1 GARAND", kills[0].msg.Embeds[0].Description)

	// four connects and one disconnect
	assert.Equal(t, []int{3, 3, 3, 3, 3}, f.rcon.slots)

	assert.Equal(t, []string{"carentan_warfare"}, f.rcon.nextMaps)
	assert.Equal(t, 1, f.server.Votes().Status().Voters)

	sessions, err := f.store.Sessions(ctx, "76561198000000001")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].End)
	assert.Equal(t, int64(1700000006000), sessions[0].End.UnixMilli())

	alice, err := f.store.GetPlayer(ctx, "76561198000000001")
	require.NoError(t, err)
	assert.Equal(t, "persona-76561198000000001", alice.PersonaName)
	assert.Equal(t, "FR", alice.Country)

	actions, err := f.store.Actions(ctx, "76561198000000003")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "PERMABAN", actions[0].Type)
}

func TestUnresolvedConnectFailsOnlyThatHandler(t *testing.T) {
	f := newFixture(t, "")

	outcomes := f.server.Router().Dispatch(context.Background(), event.GameEvent{
		Type:        event.TypeConnected,
		Action:      "CONNECTED",
		Player:      "Ghost",
		TimestampMs: 1700000000000,
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, "handle_on_connect", outcomes[0].Handler)
	assert.Equal(t, failure.KindUnresolvedIdentity, outcomes[0].Kind)
	assert.False(t, outcomes[1].Failed())
	assert.False(t, outcomes[2].Failed())
	assert.Equal(t, []int{3}, f.rcon.slots)
}

func TestMatchStartResetsVotes(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.server.Router().Dispatch(ctx, event.GameEvent{Type: event.TypeChat, Player: "Alice", SubContent: "!votemap 1"})
	assert.Equal(t, 1, f.server.Votes().Status().Voters)

	f.server.Router().Dispatch(ctx, event.GameEvent{Type: event.TypeMatchStart, Message: "MATCH START Foy Warfare"})
	assert.Equal(t, 0, f.server.Votes().Status().Voters)
}

func TestLuaHooksAreRegistered(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.lua"), []byte(`
name = "greet"
events = "CONNECTED"
function handle(ev)
  broadcast("Welcome " .. ev.player .. " to " .. get_server_name())
end
`), 0644))

	f := newFixture(t, dir)
	outcomes := f.server.Router().Dispatch(context.Background(), event.GameEvent{
		Type:   event.TypeConnected,
		Player: "Alice",
	})

	assert.Equal(t, "lua:greet", outcomes[len(outcomes)-1].Handler)
	assert.Contains(t, f.rcon.broadcasts, "Welcome Alice to Frontline")
}

func TestHTTPEndpoints(t *testing.T) {
	f := newFixture(t, "")
	f.server.Router().Dispatch(context.Background(), event.GameEvent{Type: event.TypeChat, Player: "Alice", SubContent: "!vm 1"})

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Contains(t, health.EventTypes, "CONNECTED")

	resp, err = http.Get(ts.URL + "/votes")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status vote.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Enabled)
	assert.Equal(t, "foy_warfare", status.Leader)
	assert.Equal(t, "foy_warfare", status.Applied)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewWithDependenciesRequiresCollaborators(t *testing.T) {
	_, err := NewWithDependencies(config.Default(), Dependencies{}, discardLogger())
	assert.Error(t, err)
}
