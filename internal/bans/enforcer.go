package bans

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/siohaza/warden/internal/failure"
	"github.com/siohaza/warden/internal/notify"
	"github.com/siohaza/warden/internal/storage"
	"github.com/siohaza/warden/internal/steam"
)

const (
	ActionPermaBan = "PERMABAN"

	byBlacklist = "BLACKLIST: "
	byVACBot    = "VAC BOT"
)

type Store interface {
	GetPlayer(ctx context.Context, steamID string) (storage.Player, error)
	GetBlacklist(ctx context.Context, steamID string) (storage.Blacklist, error)
	RecordAction(ctx context.Context, a storage.Action) error
}

type Banner interface {
	PermaBan(ctx context.Context, player, steamID, reason, by string) error
}

type HistorySource interface {
	PlayerBans(ctx context.Context, steamID string) (steam.PlayerBans, error)
}

type Auditor interface {
	SendAudit(ctx context.Context, message, by string)
}

type Recorder interface {
	RecordBan(source string)
}

type AutoBanConfig struct {
	MaxDaysSinceBan     string
	MaxGameBanThreshold string
	Reason              string
}

type Enforcer struct {
	store      Store
	banner     Banner
	history    HistorySource
	auditor    Auditor
	recorder   Recorder
	thresholds Thresholds
	enabled    bool
	reason     string
	logger     *slog.Logger
}

// NewEnforcer parses the auto-ban options once. Malformed options are logged
// here and leave the VAC history check disabled.
func NewEnforcer(store Store, banner Banner, history HistorySource, auditor Auditor, recorder Recorder, cfg AutoBanConfig, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}

	thresholds, enabled, err := ParseAutoBan(cfg.MaxDaysSinceBan, cfg.MaxGameBanThreshold)
	if err != nil {
		logger.Error("invalid auto ban configuration, VAC history ban disabled",
			"max_days_since_ban", cfg.MaxDaysSinceBan,
			"max_game_ban_threshold", cfg.MaxGameBanThreshold,
			"error", err,
		)
	} else if enabled {
		logger.Info("VAC history ban enabled",
			"max_days_since_ban", thresholds.MaxDaysSinceBan,
			"max_game_bans", thresholds.MaxGameBans,
		)
	}

	return &Enforcer{
		store:      store,
		banner:     banner,
		history:    history,
		auditor:    auditor,
		recorder:   recorder,
		thresholds: thresholds,
		enabled:    enabled,
		reason:     cfg.Reason,
		logger:     logger,
	}
}

func (e *Enforcer) AutoBanEnabled() bool {
	return e.enabled
}

// BanIfBlacklisted bans the player when a blacklist record is set. Failures
// are logged and reported to the audit channel, never returned.
func (e *Enforcer) BanIfBlacklisted(ctx context.Context, steamID, name string) {
	if _, err := e.store.GetPlayer(ctx, steamID); err != nil {
		if failure.Is(err, failure.KindNotFound) {
			e.logger.Error("can't check blacklist, player not found", "steam_id", steamID)
			return
		}
		e.reportBlacklistFailure(ctx, steamID, name, err)
		return
	}

	bl, err := e.store.GetBlacklist(ctx, steamID)
	if err != nil {
		e.reportBlacklistFailure(ctx, steamID, name, err)
		return
	}
	if !bl.Blacklisted {
		return
	}

	by := byBlacklist + bl.By
	e.logger.Info("player banned due to blacklist", "player", name, "steam_id", steamID, "reason", bl.Reason)

	if err := e.banner.PermaBan(ctx, name, steamID, bl.Reason, by); err != nil {
		e.reportBlacklistFailure(ctx, steamID, name, err)
		return
	}
	e.recordBan("blacklist")

	if err := e.store.RecordAction(ctx, storage.Action{
		SteamID:    steamID,
		PlayerName: name,
		Type:       ActionPermaBan,
		Reason:     bl.Reason,
		By:         by,
	}); err != nil {
		e.reportBlacklistFailure(ctx, steamID, name, err)
		return
	}

	e.auditor.SendAudit(ctx, "`BLACKLIST` -> "+notify.FormatFields(
		"player", name,
		"reason", bl.Reason,
	), "BLACKLIST")
}

func (e *Enforcer) reportBlacklistFailure(ctx context.Context, steamID, name string, err error) {
	e.logger.Error("failed to apply blacklist ban", "player", name, "steam_id", steamID, "error", err)
	e.auditor.SendAudit(ctx, "Failed to apply ban on blacklisted players, please check the logs and report the error", "ERROR")
}

// BanIfHasVacBanHistory bans the player when their VAC or game ban history
// falls inside the configured window.
func (e *Enforcer) BanIfHasVacBanHistory(ctx context.Context, steamID, name string) error {
	if !e.enabled {
		return nil
	}

	if _, err := e.store.GetPlayer(ctx, steamID); err != nil {
		if failure.Is(err, failure.KindNotFound) {
			e.logger.Error("can't check VAC history, player not found", "steam_id", steamID)
			return nil
		}
		return err
	}

	bans, err := e.history.PlayerBans(ctx, steamID)
	if err != nil {
		if failure.Is(err, failure.KindNotFound) {
			e.logger.Warn("can't fetch bans for player", "steam_id", steamID, "error", err)
			return nil
		}
		return err
	}

	h := ParseHistory(bans)
	if !ShouldBan(h, e.thresholds) {
		return nil
	}

	days := bans.DaysSinceLastBan.String()
	reason := strings.NewReplacer(
		"{DAYS_SINCE_LAST_BAN}", days,
		"{MAX_DAYS_SINCE_BAN}", strconv.Itoa(e.thresholds.MaxDaysSinceBan),
	).Replace(e.reason)

	e.logger.Info("player banned due to VAC history", "player", name, "steam_id", steamID, "days_since_last_ban", days)

	if err := e.banner.PermaBan(ctx, name, steamID, reason, byVACBot); err != nil {
		if failure.KindOf(err) == failure.KindUnknown {
			return failure.Transient("perma ban", err)
		}
		return err
	}
	e.recordBan("vac_history")

	if err := e.store.RecordAction(ctx, storage.Action{
		SteamID:    steamID,
		PlayerName: name,
		Type:       ActionPermaBan,
		Reason:     reason,
		By:         byVACBot,
	}); err != nil {
		e.logger.Error("failed to record ban action", "player", name, "steam_id", steamID, "error", err)
	}

	e.auditor.SendAudit(ctx, "`VAC/GAME BAN` -> "+notify.FormatFields(
		"player", name,
		"steam_id_64", steamID,
		"reason", reason,
		"days_since_last_ban", days,
		"vac_banned", strconv.FormatBool(bans.VACBanned),
		"number_of_game_bans", bans.NumberOfGameBans.String(),
	), "AUTOBAN")

	return nil
}

func (e *Enforcer) recordBan(source string) {
	if e.recorder != nil {
		e.recorder.RecordBan(source)
	}
}
