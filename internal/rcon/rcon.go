package rcon

import (
	"context"
	"time"
)

type PlayerInfo struct {
	Name    string `json:"name"`
	SteamID string `json:"steam_id_64"`
}

// Client is the set of game server operations the policy handlers need.
type Client interface {
	GetPlayerInfo(ctx context.Context, name string) (PlayerInfo, error)
	PermaBan(ctx context.Context, player, steamID, reason, by string) error
	GetVipCount(ctx context.Context) (int, error)
	SetVipSlotCount(ctx context.Context, n int) error
	BroadcastTemporary(ctx context.Context, text string, d time.Duration) error
	WelcomeTemporary(ctx context.Context, text string, d time.Duration) error
	SetNextMap(ctx context.Context, mapName string) error
}
