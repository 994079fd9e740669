package bans

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/siohaza/warden/internal/failure"
	"github.com/siohaza/warden/internal/steam"
)

// History is a player's ban record as used for one decision. A nil
// DaysSinceLastBan means the record could not be interpreted.
type History struct {
	VACBanned        bool
	DaysSinceLastBan *int
	NumberOfGameBans int
	gameBansUnknown  bool
}

// Thresholds configures the automatic ban window. MaxGameBans <= 0 means game
// bans alone never trigger a ban.
type Thresholds struct {
	MaxDaysSinceBan int
	MaxGameBans     int
}

func ShouldBan(h History, t Thresholds) bool {
	if h.DaysSinceLastBan == nil || h.gameBansUnknown {
		return false
	}

	days := *h.DaysSinceLastBan
	if days <= 0 {
		return false
	}

	hasBan := h.VACBanned || (t.MaxGameBans > 0 && h.NumberOfGameBans >= t.MaxGameBans)

	return days <= t.MaxDaysSinceBan && hasBan
}

func ParseHistory(b steam.PlayerBans) History {
	h := History{VACBanned: b.VACBanned}

	if days, err := strconv.Atoi(strings.TrimSpace(b.DaysSinceLastBan.String())); err == nil {
		h.DaysSinceLastBan = &days
	}

	raw := strings.TrimSpace(b.NumberOfGameBans.String())
	if raw == "" {
		return h
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.gameBansUnknown = true
		return h
	}
	h.NumberOfGameBans = n

	return h
}

// ParseAutoBan interprets the raw auto-ban options. The returned bool reports
// whether the feature is enabled. A disabled day window wins over any other
// malformed option, and a malformed option never enables the feature.
func ParseAutoBan(rawDays, rawGameBans string) (Thresholds, bool, error) {
	rawDays = strings.TrimSpace(rawDays)
	if rawDays == "" {
		return Thresholds{}, false, nil
	}

	days, err := strconv.Atoi(rawDays)
	if err != nil {
		return Thresholds{}, false, failure.Configuration("auto ban", fmt.Errorf("invalid max days since ban %q: %w", rawDays, err))
	}
	if days <= 0 {
		return Thresholds{}, false, nil
	}

	t := Thresholds{MaxDaysSinceBan: days}

	rawGameBans = strings.TrimSpace(rawGameBans)
	if rawGameBans == "" {
		return t, true, nil
	}
	gameBans, err := strconv.Atoi(rawGameBans)
	if err != nil {
		return Thresholds{}, false, failure.Configuration("auto ban", fmt.Errorf("invalid max game ban threshold %q: %w", rawGameBans, err))
	}
	t.MaxGameBans = gameBans

	return t, true, nil
}
