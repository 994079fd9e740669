package bans

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siohaza/warden/internal/failure"
	"github.com/siohaza/warden/internal/storage"
	"github.com/siohaza/warden/internal/steam"
)

func days(n int) *int { return &n }

func TestShouldBan(t *testing.T) {
	thresholds := Thresholds{MaxDaysSinceBan: 10, MaxGameBans: 1}

	tests := []struct {
		name    string
		history History
		t       Thresholds
		want    bool
	}{
		{"recent vac ban", History{VACBanned: true, DaysSinceLastBan: days(5)}, thresholds, true},
		{"never banned sentinel", History{VACBanned: true, DaysSinceLastBan: days(0), NumberOfGameBans: 5}, thresholds, false},
		{"outside window", History{VACBanned: true, DaysSinceLastBan: days(15)}, thresholds, false},
		{"unknown days", History{VACBanned: true}, thresholds, false},
		{"game bans reach threshold", History{DaysSinceLastBan: days(3), NumberOfGameBans: 1}, thresholds, true},
		{"game bans below threshold", History{DaysSinceLastBan: days(3), NumberOfGameBans: 1}, Thresholds{MaxDaysSinceBan: 10, MaxGameBans: 2}, false},
		{"game bans ignored when threshold disabled", History{DaysSinceLastBan: days(3), NumberOfGameBans: 50}, Thresholds{MaxDaysSinceBan: 10}, false},
		{"edge of window", History{VACBanned: true, DaysSinceLastBan: days(10)}, thresholds, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldBan(tt.history, tt.t))
		})
	}
}

func TestParseHistory(t *testing.T) {
	h := ParseHistory(steam.PlayerBans{VACBanned: true, DaysSinceLastBan: "12", NumberOfGameBans: "2"})
	require.NotNil(t, h.DaysSinceLastBan)
	assert.Equal(t, 12, *h.DaysSinceLastBan)
	assert.Equal(t, 2, h.NumberOfGameBans)

	h = ParseHistory(steam.PlayerBans{VACBanned: true})
	assert.Nil(t, h.DaysSinceLastBan)
	assert.False(t, ShouldBan(h, Thresholds{MaxDaysSinceBan: 100}))

	h = ParseHistory(steam.PlayerBans{VACBanned: true, DaysSinceLastBan: "4", NumberOfGameBans: "x"})
	assert.False(t, ShouldBan(h, Thresholds{MaxDaysSinceBan: 100}))
}

func TestParseAutoBan(t *testing.T) {
	tests := []struct {
		name        string
		days        string
		gameBans    string
		want        Thresholds
		wantEnabled bool
		wantErr     bool
	}{
		{"default disabled", "0", "0", Thresholds{}, false, false},
		{"empty disabled", "", "", Thresholds{}, false, false},
		{"negative disabled", "-3", "", Thresholds{}, false, false},
		{"disabled wins over malformed game bans", "0", "lots", Thresholds{}, false, false},
		{"malformed days", "ten", "1", Thresholds{}, false, true},
		{"malformed game bans with enabled days", "10", "lots", Thresholds{}, false, true},
		{"enabled", "10", "2", Thresholds{MaxDaysSinceBan: 10, MaxGameBans: 2}, true, false},
		{"enabled without game bans", " 30 ", "", Thresholds{MaxDaysSinceBan: 30}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enabled, err := ParseAutoBan(tt.days, tt.gameBans)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, failure.KindConfiguration, failure.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantEnabled, enabled)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeStore struct {
	players   map[string]storage.Player
	blacklist map[string]storage.Blacklist
	actions   []storage.Action
	err       error
}

func (f *fakeStore) GetPlayer(ctx context.Context, steamID string) (storage.Player, error) {
	if f.err != nil {
		return storage.Player{}, f.err
	}
	p, ok := f.players[steamID]
	if !ok {
		return storage.Player{}, failure.NotFound("get player", errors.New("missing"))
	}
	return p, nil
}

func (f *fakeStore) GetBlacklist(ctx context.Context, steamID string) (storage.Blacklist, error) {
	return f.blacklist[steamID], nil
}

func (f *fakeStore) RecordAction(ctx context.Context, a storage.Action) error {
	f.actions = append(f.actions, a)
	return nil
}

type ban struct {
	player, steamID, reason, by string
}

type fakeBanner struct {
	bans []ban
	err  error
}

func (f *fakeBanner) PermaBan(ctx context.Context, player, steamID, reason, by string) error {
	f.bans = append(f.bans, ban{player, steamID, reason, by})
	return f.err
}

type fakeHistory struct {
	bans  steam.PlayerBans
	err   error
	calls int
}

func (f *fakeHistory) PlayerBans(ctx context.Context, steamID string) (steam.PlayerBans, error) {
	f.calls++
	return f.bans, f.err
}

type audit struct {
	message, by string
}

type fakeAuditor struct {
	audits []audit
}

func (f *fakeAuditor) SendAudit(ctx context.Context, message, by string) {
	f.audits = append(f.audits, audit{message, by})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBanIfBlacklisted(t *testing.T) {
	store := &fakeStore{
		players:   map[string]storage.Player{"111": {SteamID: "111", Name: "Bob"}},
		blacklist: map[string]storage.Blacklist{"111": {SteamID: "111", Blacklisted: true, Reason: "cheating", By: "admin"}},
	}
	banner := &fakeBanner{}
	auditor := &fakeAuditor{}
	e := NewEnforcer(store, banner, &fakeHistory{}, auditor, nil, AutoBanConfig{}, discardLogger())

	e.BanIfBlacklisted(context.Background(), "111", "Bob")

	require.Len(t, banner.bans, 1)
	assert.Equal(t, ban{"Bob", "111", "cheating", "BLACKLIST: admin"}, banner.bans[0])
	require.Len(t, store.actions, 1)
	assert.Equal(t, "PERMABAN", store.actions[0].Type)
	assert.Equal(t, "BLACKLIST: admin", store.actions[0].By)
	require.Len(t, auditor.audits, 1)
	assert.Equal(t, "BLACKLIST", auditor.audits[0].by)
	assert.Equal(t, "`BLACKLIST` -> player: Bob, reason: cheating", auditor.audits[0].message)
}

func TestBanIfBlacklistedSkipsCleanPlayers(t *testing.T) {
	store := &fakeStore{players: map[string]storage.Player{"111": {SteamID: "111"}}}
	banner := &fakeBanner{}
	auditor := &fakeAuditor{}
	e := NewEnforcer(store, banner, &fakeHistory{}, auditor, nil, AutoBanConfig{}, discardLogger())

	e.BanIfBlacklisted(context.Background(), "111", "Bob")
	e.BanIfBlacklisted(context.Background(), "222", "Unknown")

	assert.Empty(t, banner.bans)
	assert.Empty(t, auditor.audits)
}

func TestBanIfBlacklistedReportsFailureOnce(t *testing.T) {
	store := &fakeStore{
		players:   map[string]storage.Player{"111": {SteamID: "111"}},
		blacklist: map[string]storage.Blacklist{"111": {Blacklisted: true, Reason: "r", By: "b"}},
	}
	banner := &fakeBanner{err: failure.Transient("do_perma_ban", errors.New("timeout"))}
	auditor := &fakeAuditor{}
	e := NewEnforcer(store, banner, &fakeHistory{}, auditor, nil, AutoBanConfig{}, discardLogger())

	e.BanIfBlacklisted(context.Background(), "111", "Bob")

	assert.Empty(t, store.actions)
	require.Len(t, auditor.audits, 1)
	assert.Equal(t, "ERROR", auditor.audits[0].by)
}

func vacConfig(days, gameBans string) AutoBanConfig {
	return AutoBanConfig{
		MaxDaysSinceBan:     days,
		MaxGameBanThreshold: gameBans,
		Reason:              "VAC ban history ({DAYS_SINCE_LAST_BAN} days ago, limit {MAX_DAYS_SINCE_BAN})",
	}
}

type countingRecorder struct {
	sources []string
}

func (c *countingRecorder) RecordBan(source string) {
	c.sources = append(c.sources, source)
}

func TestBanIfHasVacBanHistory(t *testing.T) {
	store := &fakeStore{players: map[string]storage.Player{"111": {SteamID: "111"}}}
	banner := &fakeBanner{}
	history := &fakeHistory{bans: steam.PlayerBans{VACBanned: true, DaysSinceLastBan: "5", NumberOfGameBans: "0"}}
	auditor := &fakeAuditor{}
	recorder := &countingRecorder{}
	e := NewEnforcer(store, banner, history, auditor, recorder, vacConfig("10", "1"), discardLogger())
	require.True(t, e.AutoBanEnabled())

	require.NoError(t, e.BanIfHasVacBanHistory(context.Background(), "111", "Bob"))

	require.Len(t, banner.bans, 1)
	assert.Equal(t, "VAC ban history (5 days ago, limit 10)", banner.bans[0].reason)
	assert.Equal(t, "VAC BOT", banner.bans[0].by)
	require.Len(t, auditor.audits, 1)
	assert.Equal(t, "AUTOBAN", auditor.audits[0].by)
	assert.Contains(t, auditor.audits[0].message, "days_since_last_ban: 5")
	assert.Contains(t, auditor.audits[0].message, "vac_banned: true")
	assert.Contains(t, auditor.audits[0].message, "number_of_game_bans: 0")
	assert.Equal(t, []string{"vac_history"}, recorder.sources)
}

func TestBanIfHasVacBanHistoryDisabled(t *testing.T) {
	for name, cfg := range map[string]AutoBanConfig{
		"default":                  vacConfig("0", "0"),
		"malformed days":           vacConfig("abc", "1"),
		"malformed game threshold": vacConfig("10", "abc"),
		"disabled with malformed":  vacConfig("0", "abc"),
	} {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{players: map[string]storage.Player{"111": {SteamID: "111"}}}
			banner := &fakeBanner{}
			history := &fakeHistory{bans: steam.PlayerBans{VACBanned: true, DaysSinceLastBan: "1", NumberOfGameBans: "9"}}
			e := NewEnforcer(store, banner, history, &fakeAuditor{}, nil, cfg, discardLogger())

			assert.False(t, e.AutoBanEnabled())
			require.NoError(t, e.BanIfHasVacBanHistory(context.Background(), "111", "Bob"))
			assert.Empty(t, banner.bans)
			assert.Zero(t, history.calls)
		})
	}
}

func TestBanIfHasVacBanHistoryNoBan(t *testing.T) {
	store := &fakeStore{players: map[string]storage.Player{"111": {SteamID: "111"}}}
	banner := &fakeBanner{}
	history := &fakeHistory{bans: steam.PlayerBans{VACBanned: true, DaysSinceLastBan: "15"}}
	e := NewEnforcer(store, banner, history, &fakeAuditor{}, nil, vacConfig("10", "1"), discardLogger())

	require.NoError(t, e.BanIfHasVacBanHistory(context.Background(), "111", "Bob"))
	assert.Empty(t, banner.bans)
	assert.Equal(t, 1, history.calls)
}

func TestBanIfHasVacBanHistoryIgnoresNonNumericDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"players":[{"SteamId":"111","VACBanned":true,` +
			`"DaysSinceLastBan":"n/a","NumberOfGameBans":0}]}`))
	}))
	defer srv.Close()

	store := &fakeStore{players: map[string]storage.Player{"111": {SteamID: "111"}}}
	banner := &fakeBanner{}
	auditor := &fakeAuditor{}
	client := steam.NewClient(srv.URL, "", time.Second)
	e := NewEnforcer(store, banner, client, auditor, nil, vacConfig("10", "1"), discardLogger())

	require.NoError(t, e.BanIfHasVacBanHistory(context.Background(), "111", "Bob"))
	assert.Empty(t, banner.bans)
	assert.Empty(t, store.actions)
	assert.Empty(t, auditor.audits)
}

func TestBanIfHasVacBanHistoryBanFailureIsTransient(t *testing.T) {
	store := &fakeStore{players: map[string]storage.Player{"111": {SteamID: "111"}}}
	banner := &fakeBanner{err: errors.New("connection reset")}
	history := &fakeHistory{bans: steam.PlayerBans{VACBanned: true, DaysSinceLastBan: "2"}}
	auditor := &fakeAuditor{}
	e := NewEnforcer(store, banner, history, auditor, nil, vacConfig("10", "0"), discardLogger())

	err := e.BanIfHasVacBanHistory(context.Background(), "111", "Bob")
	require.Error(t, err)
	assert.Equal(t, failure.KindTransient, failure.KindOf(err))
	assert.Empty(t, auditor.audits)
}

func TestBanIfHasVacBanHistoryUnknownPlayer(t *testing.T) {
	history := &fakeHistory{}
	e := NewEnforcer(&fakeStore{}, &fakeBanner{}, history, &fakeAuditor{}, nil, vacConfig("10", "0"), discardLogger())

	require.NoError(t, e.BanIfHasVacBanHistory(context.Background(), "999", "Ghost"))
	assert.Zero(t, history.calls)
}
