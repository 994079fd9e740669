package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// environment carries the variables older deployments set instead of the
// config file. Unset variables leave the file values untouched.
type environment struct {
	BanOnVacHistoryDays   *string `env:"BAN_ON_VAC_HISTORY_DAYS"`
	BanOnVacHistoryReason *string `env:"BAN_ON_VAC_HISTORY_REASON"`
	MaxGameBanThreshold   *string `env:"MAX_GAME_BAN_THRESHOLD"`
	ServerShortName       *string `env:"SERVER_SHORT_NAME"`
	ServerNumber          *string `env:"SERVER_NUMBER"`
	SteamAPIKey           *string `env:"STEAM_API_KEY"`
	RCONToken             *string `env:"RCON_TOKEN"`
}

func (c *Config) applyEnv() error {
	var e environment
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	override(&c.AutoBan.MaxDaysSinceBan, e.BanOnVacHistoryDays)
	override(&c.AutoBan.Reason, e.BanOnVacHistoryReason)
	override(&c.AutoBan.MaxGameBanThreshold, e.MaxGameBanThreshold)
	override(&c.Server.ShortName, e.ServerShortName)
	override(&c.Server.Number, e.ServerNumber)
	override(&c.Steam.APIKey, e.SteamAPIKey)
	override(&c.RCON.Token, e.RCONToken)
	return nil
}

func override(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
