package vote

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/siohaza/warden/internal/event"
)

const thankYouDuration = 5 * time.Second

var votePattern = regexp.MustCompile(`^!(?:votemap|vm)\s+(\S.*)$`)

type Control interface {
	SetNextMap(ctx context.Context, mapName string) error
	BroadcastTemporary(ctx context.Context, text string, d time.Duration) error
}

type Recorder interface {
	RecordVote()
	RecordVoteApply(outcome string)
}

type Config struct {
	Enabled      bool
	ThankYouText string
	Choices      []string
	MaxRetries   int
}

type ApplyResult struct {
	Choice   string
	Attempts int
	Applied  bool
	Err      error
}

type Status struct {
	Enabled bool     `json:"enabled"`
	Voters  int      `json:"voters"`
	Leader  string   `json:"leader"`
	Applied string   `json:"applied"`
	Results []Result `json:"results"`
}

// Engine owns the vote session of the current map. Mutations come from the
// dispatch goroutine; mu only guards reads from the status endpoint.
type Engine struct {
	mu       sync.Mutex
	session  *Session
	control  Control
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
}

func NewEngine(control Control, cfg Config, recorder Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Engine{
		session:  NewSession(),
		control:  control,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

func (e *Engine) Name() string {
	return "count_vote"
}

func normalize(text string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(text)))
}

// IsVote extracts the map choice from a chat message. Numeric choices index
// the configured selection starting at 1.
func (e *Engine) IsVote(text string) (string, bool) {
	m := votePattern.FindStringSubmatch(normalize(text))
	if m == nil {
		return "", false
	}
	choice := strings.TrimSpace(m[1])

	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(e.cfg.Choices) {
			return "", false
		}
		return e.cfg.Choices[n-1], true
	}

	if len(e.cfg.Choices) == 0 {
		return choice, true
	}
	for _, c := range e.cfg.Choices {
		if normalize(c) == choice {
			return c, true
		}
	}
	return "", false
}

func (e *Engine) Handle(ctx context.Context, ev event.GameEvent) error {
	if !e.cfg.Enabled {
		return nil
	}

	text := ev.SubContent
	if text == "" {
		text = ev.Message
	}
	choice, ok := e.IsVote(text)
	if !ok {
		return nil
	}

	e.logger.Debug("vote chat detected", "player", ev.Player, "message", ev.Message)

	e.mu.Lock()
	leader := e.session.Register(ev.Player, ev.Timestamp(), choice)
	e.mu.Unlock()

	if e.recorder != nil {
		e.recorder.RecordVote()
	}

	if e.cfg.ThankYouText != "" {
		msg := strings.NewReplacer(
			"{player_name}", ev.Player,
			"{map_name}", choice,
			"{leader}", leader,
		).Replace(e.cfg.ThankYouText)
		if err := e.control.BroadcastTemporary(ctx, msg, thankYouDuration); err != nil {
			e.logger.Warn("unable to output thank you message", "player", ev.Player, "error", err)
		}
	}

	e.ApplyWithRetry(ctx, e.cfg.MaxRetries)
	return nil
}

// ApplyWithRetry sets the tally winner as next map, trying up to maxRetries
// more times on failure. The winner is decided once, before the first attempt.
func (e *Engine) ApplyWithRetry(ctx context.Context, maxRetries int) ApplyResult {
	e.mu.Lock()
	winner, ok := e.session.Tally()
	e.mu.Unlock()
	if !ok {
		return ApplyResult{}
	}

	res := ApplyResult{Choice: winner}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		res.Attempts++
		err := e.control.SetNextMap(ctx, winner)
		if err == nil {
			res.Applied = true
			res.Err = nil
			break
		}
		res.Err = err
		e.logger.Warn("failed to set next map", "map", winner, "attempt", res.Attempts, "error", err)
	}

	if !res.Applied {
		e.logger.Error("failed to apply vote map", "map", winner, "attempts", res.Attempts, "error", res.Err)
		e.recordApply("failed")
		return res
	}

	e.mu.Lock()
	e.session.markApplied(winner)
	e.mu.Unlock()

	e.logger.Info("vote map applied", "map", winner, "attempts", res.Attempts)
	e.recordApply("applied")
	return res
}

func (e *Engine) recordApply(outcome string) {
	if e.recorder != nil {
		e.recorder.RecordVoteApply(outcome)
	}
}

// Reset starts a new session, dropping all votes of the previous map.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.session = NewSession()
	e.mu.Unlock()
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	leader, _ := e.session.Tally()
	return Status{
		Enabled: e.cfg.Enabled,
		Voters:  e.session.Voters(),
		Leader:  leader,
		Applied: e.session.Applied(),
		Results: e.session.Results(),
	}
}

type MatchStartHandler struct {
	engine *Engine
	logger *slog.Logger
}

// ResetHandler clears the session when a new match starts.
func (e *Engine) ResetHandler() *MatchStartHandler {
	return &MatchStartHandler{engine: e, logger: e.logger}
}

func (h *MatchStartHandler) Name() string {
	return "votemap_reset"
}

func (h *MatchStartHandler) Handle(ctx context.Context, ev event.GameEvent) error {
	h.engine.Reset()
	h.logger.Debug("vote session reset", "event", string(ev.Type), "message", ev.Message)
	return nil
}
