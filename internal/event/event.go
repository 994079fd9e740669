package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	TypeConnected     Type = "CONNECTED"
	TypeDisconnected  Type = "DISCONNECTED"
	TypeChat          Type = "CHAT"
	TypeCamera        Type = "CAMERA"
	TypeKill          Type = "KILL"
	TypeTeamKill      Type = "TEAM KILL"
	TypeTeamSwitch    Type = "TEAMSWITCH"
	TypeMatchStart    Type = "MATCH START"
	TypeMatchEnded    Type = "MATCH ENDED"
	TypeVoteStarted   Type = "VOTE STARTED"
	TypeVoteCompleted Type = "VOTE COMPLETED"
	TypeMessage       Type = "MESSAGE"
	TypeAdminBanned   Type = "ADMIN BANNED"
	TypeAdminKicked   Type = "ADMIN KICKED"
)

// TypeOf derives the event type from a log line action. Chat actions carry
// the channel as a bracketed suffix ("CHAT[Allies][Unit]").
func TypeOf(action string) Type {
	action = strings.TrimSpace(action)
	if i := strings.IndexByte(action, '['); i > 0 {
		action = action[:i]
	}
	return Type(strings.ToUpper(strings.TrimSpace(action)))
}

// GameEvent is one structured game log line. Handlers receive it by value and
// must treat it as read-only.
type GameEvent struct {
	Version         int     `json:"version"`
	TimestampMs     int64   `json:"timestamp_ms"`
	RelativeTimeMs  float64 `json:"relative_time_ms"`
	Raw             string  `json:"raw"`
	LineWithoutTime string  `json:"line_without_time"`
	Action          string  `json:"action"`
	Player          string  `json:"player"`
	SteamID         string  `json:"steam_id_64_1"`
	Player2         string  `json:"player2"`
	SteamID2        string  `json:"steam_id_64_2"`
	Weapon          string  `json:"weapon"`
	Message         string  `json:"message"`
	SubContent      string  `json:"sub_content"`

	Type Type `json:"-"`
}

func (e GameEvent) Timestamp() time.Time {
	return time.UnixMilli(e.TimestampMs).UTC()
}

// Describe returns the text used in logs and notifications for the event.
func (e GameEvent) Describe() string {
	if e.LineWithoutTime != "" {
		return e.LineWithoutTime
	}
	if e.Raw != "" {
		return e.Raw
	}
	return fmt.Sprintf("%s %s", e.Action, e.Message)
}

type wireEvent GameEvent

func (e *GameEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = GameEvent(w)
	e.Type = TypeOf(e.Action)
	return nil
}

func Decode(data []byte) (GameEvent, error) {
	var ev GameEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return GameEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Type == "" {
		return GameEvent{}, fmt.Errorf("event has no action")
	}
	return ev, nil
}
