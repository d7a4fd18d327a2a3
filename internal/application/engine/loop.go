package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Run executes one run immediately and then one per interval until ctx is
// cancelled or the stop file appears. With Once set it returns after the
// first run, propagating its error.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"strategy", e.strategy.Name(),
		"interval", e.cfg.Interval,
		"once", e.cfg.Once,
		"max_positions", e.cfg.MaxPositions,
		"leverage", e.cfg.Leverage,
	)

	cycle := 1
	if err := e.runCycle(ctx, cycle); err != nil {
		slog.Error("run failed", "cycle", cycle, "err", err)
		if e.cfg.Once {
			return err
		}
	}
	if e.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped (signal)", "total_cycles", cycle)
			return nil
		case <-ticker.C:
			if e.stopRequested() {
				slog.Info("stop file detected, shutting down", "file", e.cfg.StopFile, "total_cycles", cycle)
				return nil
			}
			cycle++
			if err := e.runCycle(ctx, cycle); err != nil {
				slog.Error("run failed", "cycle", cycle, "err", err)
			}
		}
	}
}

func (e *Engine) runCycle(ctx context.Context, cycle int) error {
	res, err := e.RunOnce(ctx)
	if err != nil {
		return err
	}

	if e.notifier != nil {
		if nerr := e.notifier.Notify(ctx, *res); nerr != nil {
			slog.Warn("notifier error", "err", nerr)
		}
	}

	slog.Info("run complete",
		"cycle", cycle,
		"strategy", res.Strategy,
		"signals", len(res.Signals),
		"opened", len(res.Opened),
		"closed", len(res.Closed),
		"open", len(res.Open),
		"balance", fmt.Sprintf("$%.2f", res.Balance),
		"duration", res.Duration.Round(time.Millisecond),
	)
	return nil
}

// stopRequested reports whether the stop file exists, removing it.
func (e *Engine) stopRequested() bool {
	if e.cfg.StopFile == "" {
		return false
	}
	if _, err := os.Stat(e.cfg.StopFile); err != nil {
		return false
	}
	if err := os.Remove(e.cfg.StopFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove stop file", "file", e.cfg.StopFile, "err", err)
	}
	return true
}
