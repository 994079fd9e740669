package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siohaza/warden/internal/failure"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetPlayerMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetPlayer(context.Background(), "76561198000000001")
	require.Error(t, err)
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestUpsertPlayerTracksNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	first := time.UnixMilli(1700000000000)
	later := first.Add(time.Hour)

	p, err := s.UpsertPlayer(ctx, "Alice", "111", first)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.True(t, p.FirstSeen.Equal(first))

	p, err = s.UpsertPlayer(ctx, "Alicia", "111", later)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", p.Name)
	assert.True(t, p.FirstSeen.Equal(first))
	assert.True(t, p.LastSeen.Equal(later))

	names, err := s.PlayerNames(ctx, "111")
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Equal(t, "Alicia", names[0].Name)
	assert.Equal(t, "Alice", names[1].Name)
}

func TestSessionsOpenAndClose(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.UnixMilli(1700000000000)

	_, err := s.UpsertPlayer(ctx, "Alice", "111", start)
	require.NoError(t, err)

	sess, err := s.StartSession(ctx, "111", start)
	require.NoError(t, err)
	assert.NotZero(t, sess.ID)

	require.NoError(t, s.EndSession(ctx, "111", start.Add(30*time.Minute)))

	err = s.EndSession(ctx, "111", start.Add(time.Hour))
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))

	sessions, err := s.Sessions(ctx, "111")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].End)
	assert.Equal(t, 30*time.Minute, sessions[0].End.Sub(sessions[0].Start))
}

func TestBlacklistRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bl, err := s.GetBlacklist(ctx, "111")
	require.NoError(t, err)
	assert.False(t, bl.Blacklisted)

	require.NoError(t, s.SetBlacklist(ctx, "111", "cheating", "admin"))

	bl, err = s.GetBlacklist(ctx, "111")
	require.NoError(t, err)
	assert.True(t, bl.Blacklisted)
	assert.Equal(t, "cheating", bl.Reason)
	assert.Equal(t, "admin", bl.By)

	require.NoError(t, s.RemoveBlacklist(ctx, "111"))
	bl, err = s.GetBlacklist(ctx, "111")
	require.NoError(t, err)
	assert.False(t, bl.Blacklisted)

	err = s.RemoveBlacklist(ctx, "111")
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))
}

func TestRecordAction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAction(ctx, Action{
		SteamID:    "111",
		PlayerName: "Alice",
		Type:       "PERMABAN",
		Reason:     "blacklisted",
		By:         "BLACKLIST: admin",
	}))

	actions, err := s.Actions(ctx, "111")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.NotEmpty(t, actions[0].ID)
	assert.Equal(t, "PERMABAN", actions[0].Type)
	assert.Equal(t, "BLACKLIST: admin", actions[0].By)
}

func TestUpdateProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpdateProfile(ctx, "111", Profile{PersonaName: "Alice"})
	assert.Equal(t, failure.KindNotFound, failure.KindOf(err))

	_, err = s.UpsertPlayer(ctx, "Alice", "111", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.UpdateProfile(ctx, "111", Profile{PersonaName: "alice_steam", Country: "DE"}))

	p, err := s.GetPlayer(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "alice_steam", p.PersonaName)
	assert.Equal(t, "DE", p.Country)
}
