package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldops.dev/tabletwatch/pkg/mq"
)

// DefaultBroadcastInterval is the cadence of fleet summary broadcasts.
const DefaultBroadcastInterval = 5 * time.Minute

// Broadcaster publishes the fleet summary to the message queue on a fixed
// cadence so downstream insight consumers see the same numbers the
// dashboard does.
type Broadcaster struct {
	logger    *slog.Logger
	engine    *Engine
	publisher mq.PublisherInterface
	interval  time.Duration
}

// BroadcasterConfig holds the configuration for the Broadcaster.
type BroadcasterConfig struct {
	Logger    *slog.Logger
	Engine    *Engine
	Publisher mq.PublisherInterface
	Interval  time.Duration
}

// NewBroadcaster creates a new Broadcaster instance.
func NewBroadcaster(cfg *BroadcasterConfig) (*Broadcaster, error) {
	if cfg == nil {
		return nil, errors.New("broadcaster config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}

	return &Broadcaster{
		logger:    cfg.Logger,
		engine:    cfg.Engine,
		publisher: cfg.Publisher,
		interval:  interval,
	}, nil
}

// Run broadcasts on the configured cadence until the context is
// cancelled. Publish failures are logged and the cadence continues.
func (b *Broadcaster) Run(ctx context.Context) {
	b.logger.Info("starting insight broadcaster", "interval", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("insight broadcaster stopped")
			return
		case <-ticker.C:
			if err := b.broadcast(ctx); err != nil {
				b.logger.Error("failed to broadcast fleet summary", "error", err)
			}
		}
	}
}

func (b *Broadcaster) broadcast(ctx context.Context) error {
	summary, err := b.engine.FleetSummary(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute fleet summary: %w", err)
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode fleet summary: %w", err)
	}

	pushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := b.publisher.Push(pushCtx, payload); err != nil {
		return fmt.Errorf("failed to publish fleet summary: %w", err)
	}

	b.logger.Debug("fleet summary broadcast",
		"total_devices", summary.TotalDevices,
		"online_devices", summary.OnlineDevices,
	)
	return nil
}
