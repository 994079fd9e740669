package notify

import (
	"context"
	"errors"
	"time"

	"github.com/siohaza/warden/internal/event"
)

const cameraMessageDuration = 60 * time.Second

type TemporaryMessenger interface {
	BroadcastTemporary(ctx context.Context, text string, d time.Duration) error
	WelcomeTemporary(ctx context.Context, text string, d time.Duration) error
}

type CameraConfig struct {
	Broadcast bool
	Welcome   bool
}

type CameraHandler struct {
	auditor   *Auditor
	messenger TemporaryMessenger
	cfg       CameraConfig
}

func NewCameraHandler(auditor *Auditor, messenger TemporaryMessenger, cfg CameraConfig) *CameraHandler {
	return &CameraHandler{auditor: auditor, messenger: messenger, cfg: cfg}
}

func (h *CameraHandler) Name() string {
	return "notify_camera"
}

func (h *CameraHandler) Handle(ctx context.Context, ev event.GameEvent) error {
	h.auditor.SendAudit(ctx, ev.Message, ev.Player)
	h.auditor.SendCamera(ctx, ev)

	var errs []error
	if h.cfg.Broadcast {
		if err := h.messenger.BroadcastTemporary(ctx, ev.Message, cameraMessageDuration); err != nil {
			errs = append(errs, err)
		}
	}
	if h.cfg.Welcome {
		if err := h.messenger.WelcomeTemporary(ctx, ev.Message, cameraMessageDuration); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
