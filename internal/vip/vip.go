package vip

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siohaza/warden/internal/event"
)

// ComputeTarget returns the number of VIP slots to open. The floor is applied
// even when more VIPs are connected than desired.
func ComputeTarget(desiredTotal, minFloor, currentVipCount int) int {
	return max(desiredTotal-currentVipCount, max(minFloor, 0))
}

type SlotControl interface {
	GetVipCount(ctx context.Context) (int, error)
	SetVipSlotCount(ctx context.Context, n int) error
}

type Gauge interface {
	SetVipSlots(n int)
}

type Config struct {
	Enabled      bool
	DesiredTotal int
	MinFloor     int
}

type Controller struct {
	control SlotControl
	gauge   Gauge
	cfg     Config
	logger  *slog.Logger
}

func NewController(control SlotControl, gauge Gauge, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{control: control, gauge: gauge, cfg: cfg, logger: logger}
}

func (c *Controller) Name() string {
	return "real_vip"
}

func (c *Controller) Handle(ctx context.Context, ev event.GameEvent) error {
	if !c.cfg.Enabled {
		c.logger.Debug("real VIP is disabled")
		return nil
	}

	count, err := c.control.GetVipCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to get vip count: %w", err)
	}

	target := ComputeTarget(c.cfg.DesiredTotal, c.cfg.MinFloor, count)
	if err := c.control.SetVipSlotCount(ctx, target); err != nil {
		return fmt.Errorf("failed to set vip slots: %w", err)
	}

	if c.gauge != nil {
		c.gauge.SetVipSlots(target)
	}
	c.logger.Info("real VIP set slots", "slots", target, "vip_count", count, "event", string(ev.Type))
	return nil
}
