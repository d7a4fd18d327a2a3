package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// fetchSnapshot loads markets, prices, funding, leverage caps and balance.
// Markets and prices are required; the rest degrade to empty values with a
// warning so a flaky endpoint does not block exits.
func (e *Engine) fetchSnapshot(ctx context.Context, res *domain.RunResult) (domain.Snapshot, error) {
	snap := domain.Snapshot{FetchedAt: e.now()}

	markets, err := e.market.Markets(ctx)
	if err != nil {
		return snap, fmt.Errorf("fetch markets: %w", err)
	}
	snap.Markets = domain.FilterMarkets(markets, e.cfg.EnabledAssets)

	snap.Prices, err = e.market.Prices(ctx)
	if err != nil {
		return snap, fmt.Errorf("fetch prices: %w", err)
	}

	// The optional endpoints are independent of each other.
	var (
		wg                         sync.WaitGroup
		fundingErr, levErr, balErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		snap.Funding, fundingErr = e.market.FundingRates(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.MaxLeverage, levErr = e.market.MaxLeverages(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.Balance, balErr = e.trader.Balance(ctx)
	}()
	wg.Wait()

	if fundingErr != nil || snap.Funding == nil {
		if fundingErr != nil {
			e.warn(res, "funding rates unavailable", fundingErr)
		}
		snap.Funding = map[string]domain.Funding{}
	}
	if levErr != nil || snap.MaxLeverage == nil {
		if levErr != nil {
			e.warn(res, "max leverages unavailable", levErr)
		}
		snap.MaxLeverage = map[string]float64{}
	}
	if balErr != nil {
		e.warn(res, "balance unavailable, entries disabled this run", balErr)
		snap.Balance = 0
	}

	slog.Debug("snapshot fetched",
		"markets", len(snap.Markets),
		"prices", len(snap.Prices),
		"funding", len(snap.Funding),
		"balance", fmt.Sprintf("$%.2f", snap.Balance),
	)
	return snap, nil
}

func (e *Engine) warn(res *domain.RunResult, msg string, err error) {
	slog.Warn(msg, "strategy", e.strategy.Name(), "err", err)
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", msg, err))
}
