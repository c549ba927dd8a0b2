package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OpenTraceLab/xvcplay/pkg/chain"
	"github.com/OpenTraceLab/xvcplay/pkg/host"
	"github.com/OpenTraceLab/xvcplay/pkg/scan"
	"github.com/OpenTraceLab/xvcplay/pkg/xvc"
)

// dialAgent connects to the configured agent.
func dialAgent(ctx context.Context) (*xvc.Client, error) {
	return xvc.Dial(ctx, cfg.Addr,
		xvc.WithTimeout(cfg.IOTimeout),
		xvc.WithClientLogger(logger.With(slog.String("agent", cfg.Addr))))
}

// runRoutine plays r against the agent and returns the host for its device
// reports.
func runRoutine(ctx context.Context, r chain.Routine) (*host.Host, error) {
	client, err := dialAgent(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	info, err := client.Info(ctx)
	if err != nil {
		return nil, err
	}
	capacity := cfg.Capacity
	if limit := info.MaxVectorBytes / 2; capacity > limit {
		logger.Warn("capacity reduced to agent vector length",
			slog.Int("capacity", capacity), slog.Int("max_vector_bytes", info.MaxVectorBytes))
		capacity = limit
	}

	session, err := scan.New(client,
		scan.WithCapacity(capacity),
		scan.WithLogger(logger),
		scan.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	h, err := host.New(session,
		host.WithClock(client),
		host.WithLogger(logger),
		host.WithVerbosity(cfg.Verbosity))
	if err != nil {
		return nil, err
	}

	engine := host.EngineFunc(func(ctx context.Context, cb host.Callbacks) error {
		if cfg.TCKHz > 0 {
			if err := cb.SetFrequency(cfg.TCKHz); err != nil {
				return err
			}
		}
		return r.Play(ctx, cb)
	})
	if err := h.Run(ctx, engine); err != nil {
		return h, fmt.Errorf("scan failed: %w", err)
	}

	stats := session.Stats()
	logger.Debug("session complete",
		slog.Int("flushes", stats.Flushes),
		slog.Int("auto_flushes", stats.AutoFlushes),
		slog.Int64("bits_sent", stats.BitsSent))
	return h, nil
}
