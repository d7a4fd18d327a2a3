package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/perpbot/internal/adapters/notify"
	"github.com/alejandrodnm/perpbot/internal/ports"
)

const reportHistoryLimit = 50

// runReport imprime las posiciones abiertas con su PnL actual y el histórico reciente.
func runReport(ctx context.Context, name string, st store, market ports.MarketData, notifier *notify.Console) {
	state, err := st.Load(ctx, name)
	if err != nil {
		slog.Error("failed to load state", "strategy", name, "err", err)
		os.Exit(1)
	}

	history, err := st.Recent(ctx, name, reportHistoryLimit)
	if err != nil {
		slog.Error("failed to load history", "strategy", name, "err", err)
		os.Exit(1)
	}

	var prices map[string]float64
	if len(state.Positions) > 0 {
		prices, err = market.Prices(ctx)
		if err != nil {
			slog.Warn("prices unavailable, PnL not shown", "err", err)
			prices = nil
		}
	}

	notifier.PrintReport(notify.ReportInput{
		Strategy: name,
		State:    state,
		Prices:   prices,
		History:  history,
		Now:      time.Now(),
	})
}
