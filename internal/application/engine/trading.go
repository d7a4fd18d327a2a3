package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/perpbot/internal/domain"
	"github.com/alejandrodnm/perpbot/internal/strategy"
)

// reconcile drops positions that no longer exist on the platform (liquidated
// or closed by hand). Positions younger than reconcileGrace are kept, the
// indexer may not have caught up with them yet.
func (e *Engine) reconcile(ctx context.Context, st *domain.State, res *domain.RunResult) {
	if len(st.Positions) == 0 {
		return
	}
	remote, err := e.trader.Positions(ctx)
	if err != nil {
		e.warn(res, "position reconciliation skipped", err)
		return
	}
	live := make(map[string]bool, len(remote))
	for _, r := range remote {
		live[r.ID] = true
	}
	if e.resolvePendingIDs(st, remote, live) {
		e.persist(ctx, st)
	}

	now := e.now()
	for _, p := range append([]domain.Position(nil), st.Positions...) {
		if live[p.ID] || p.Age(now) < reconcileGrace {
			continue
		}
		st.RemovePosition(p.ID)
		e.blacklist(st, p, now)

		slog.Warn("position closed outside the bot",
			"strategy", p.Strategy,
			"position_id", p.ID,
			"denoms", p.Denoms(),
		)
		res.Closed = append(res.Closed, domain.ClosedPosition{
			Position: p,
			Reason:   "closed externally",
			External: true,
		})
		e.record(ctx, domain.TradeRecord{
			RunID:      res.RunID,
			Strategy:   e.strategy.Name(),
			Action:     domain.ActionCloseExternal,
			PositionID: p.ID,
			Legs:       p.Legs,
			Leverage:   p.Leverage,
			Collateral: p.Collateral,
			Reason:     "closed externally",
			At:         now,
		})
		e.persist(ctx, st)
	}
}

// resolvePendingIDs replaces tx-hash placeholder IDs (the gateway returned no
// position_id on open) with the on-chain ID of an unclaimed remote position
// holding the same denoms. Reports whether any ID changed.
func (e *Engine) resolvePendingIDs(st *domain.State, remote []domain.RemotePosition, live map[string]bool) bool {
	claimed := make(map[string]bool, len(st.Positions))
	for _, p := range st.Positions {
		if live[p.ID] {
			claimed[p.ID] = true
		}
	}

	changed := false
	for i := range st.Positions {
		p := &st.Positions[i]
		if live[p.ID] || p.TxHash == "" || p.ID != p.TxHash {
			continue
		}
		for _, r := range remote {
			if claimed[r.ID] || !sameDenoms(p.Denoms(), r.Denoms) {
				continue
			}
			slog.Info("resolved position id",
				"strategy", p.Strategy,
				"tx", p.TxHash,
				"position_id", r.ID,
			)
			p.ID = r.ID
			claimed[r.ID] = true
			changed = true
			break
		}
	}
	return changed
}

func sameDenoms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	count := make(map[string]int, len(a))
	for _, d := range a {
		count[d]++
	}
	for _, d := range b {
		if count[d] == 0 {
			return false
		}
		count[d]--
	}
	return true
}

// processExits closes every position that hit take profit, stop loss, max hold
// or the strategy's own exit condition.
func (e *Engine) processExits(ctx context.Context, st *domain.State, in strategy.Input, res *domain.RunResult) {
	for _, p := range append([]domain.Position(nil), st.Positions...) {
		if ctx.Err() != nil {
			return
		}
		now := e.now()
		reason := e.exitReason(p, in, now)
		if reason == "" {
			continue
		}
		pnl, _ := p.PnLPct(in.Snapshot.Prices)

		tx, err := withSequenceRetry(ctx, e.cfg.RetryAttempts, e.cfg.RetryDelay, "close "+p.ID,
			func() (domain.TxResult, error) { return e.trader.ClosePosition(ctx, p.ID) })
		if err != nil {
			slog.Error("failed to close position", "position_id", p.ID, "reason", reason, "err", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("close %s failed: %v", p.ID, err))
			continue
		}

		st.RemovePosition(p.ID)
		e.blacklist(st, p, now)

		slog.Info("position closed",
			"strategy", p.Strategy,
			"position_id", p.ID,
			"denoms", p.Denoms(),
			"pnl", fmt.Sprintf("%+.2f%%", pnl*100),
			"reason", reason,
			"tx", tx.TxHash,
		)
		res.Closed = append(res.Closed, domain.ClosedPosition{
			Position: p,
			PnLPct:   pnl,
			Reason:   reason,
			TxHash:   tx.TxHash,
		})
		e.record(ctx, domain.TradeRecord{
			RunID:      res.RunID,
			Strategy:   e.strategy.Name(),
			Action:     domain.ActionClose,
			PositionID: p.ID,
			Legs:       p.Legs,
			Leverage:   p.Leverage,
			Collateral: p.Collateral,
			Prices:     pricesOf(in.Snapshot, p.Denoms()),
			PnLPct:     pnl,
			Reason:     reason,
			TxHash:     tx.TxHash,
			At:         now,
		})
		e.persist(ctx, st)
	}
}

// exitReason returns why p should be closed now, or "" to keep it.
// Checked in order: take profit, stop loss, max hold, strategy exit.
func (e *Engine) exitReason(p domain.Position, in strategy.Input, now time.Time) string {
	if pnl, ok := p.PnLPct(in.Snapshot.Prices); ok {
		if e.cfg.TakeProfitPct > 0 && pnl >= e.cfg.TakeProfitPct {
			return fmt.Sprintf("take profit %+.2f%%", pnl*100)
		}
		if e.cfg.StopLossPct > 0 && pnl <= -e.cfg.StopLossPct {
			return fmt.Sprintf("stop loss %+.2f%%", pnl*100)
		}
	}
	if e.cfg.MaxHold > 0 && p.Age(now) >= e.cfg.MaxHold {
		return fmt.Sprintf("max hold %s reached", e.cfg.MaxHold)
	}
	if exit, why := e.strategy.ShouldExit(p, in); exit {
		return why
	}
	return ""
}

func (e *Engine) blacklist(st *domain.State, p domain.Position, now time.Time) {
	if e.cfg.BlacklistFor <= 0 {
		return
	}
	until := now.Add(e.cfg.BlacklistFor)
	for _, d := range p.Denoms() {
		st.BlacklistDenom(d, until)
	}
}

// processEntries evaluates the strategy and opens positions for the best
// signals, one at a time, until max_positions or the balance runs out.
func (e *Engine) processEntries(ctx context.Context, st *domain.State, in strategy.Input, res *domain.RunResult) {
	signals := e.strategy.Evaluate(in)
	domain.SortSignals(signals)
	res.Signals = signals

	balance := in.Snapshot.Balance
	opened := 0
	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		if len(st.Positions) >= e.cfg.MaxPositions {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: max positions (%d) reached", sig.Key(), e.cfg.MaxPositions))
			break
		}
		now := e.now()
		if why := rejectSignal(sig, st, in.Snapshot, now); why != "" {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %s", sig.Key(), why))
			continue
		}

		collateral := e.collateralFor(balance)
		if collateral <= 0 || collateral < e.cfg.MinCollateral {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: collateral $%.2f below minimum $%.2f", sig.Key(), collateral, e.cfg.MinCollateral))
			break
		}
		if collateral > balance {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: insufficient balance $%.2f for $%.2f", sig.Key(), balance, collateral))
			break
		}
		leverage := e.leverageFor(sig, in.Snapshot)

		if opened > 0 {
			if err := e.waitBetweenOpens(ctx); err != nil {
				return
			}
		}

		req := domain.OpenRequest{Legs: sig.Legs, Leverage: leverage, Collateral: collateral}
		tx, err := withSequenceRetry(ctx, e.cfg.RetryAttempts, e.cfg.RetryDelay, "open "+sig.Key(),
			func() (domain.TxResult, error) { return e.trader.OpenPosition(ctx, req) })
		if err != nil {
			slog.Error("failed to open position", "signal", sig.Key(), "err", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("open %s failed: %v", sig.Key(), err))
			continue
		}
		opened++

		id := tx.PositionID
		if id == "" {
			slog.Warn("platform returned no position id, using tx hash", "tx", tx.TxHash)
			id = tx.TxHash
		}
		pos := domain.Position{
			ID:          id,
			Strategy:    e.strategy.Name(),
			Legs:        sig.Legs,
			Leverage:    leverage,
			Collateral:  collateral,
			EntryPrices: pricesOf(in.Snapshot, sig.Denoms()),
			OpenedAt:    now,
			TxHash:      tx.TxHash,
			Reason:      sig.Reason,
		}
		st.AddPosition(pos)
		balance -= collateral

		slog.Info("position opened",
			"strategy", pos.Strategy,
			"position_id", pos.ID,
			"signal", sig.Key(),
			"score", fmt.Sprintf("%.3f", sig.Score),
			"leverage", leverage,
			"collateral", fmt.Sprintf("$%.2f", collateral),
			"tx", tx.TxHash,
		)
		res.Opened = append(res.Opened, pos)
		e.record(ctx, domain.TradeRecord{
			RunID:      res.RunID,
			Strategy:   pos.Strategy,
			Action:     domain.ActionOpen,
			PositionID: pos.ID,
			Legs:       pos.Legs,
			Leverage:   leverage,
			Collateral: collateral,
			Prices:     pos.EntryPrices,
			Reason:     sig.Reason,
			TxHash:     tx.TxHash,
			At:         now,
		})
		e.persist(ctx, st)
	}
}

// rejectSignal returns why a signal cannot be opened, or "".
func rejectSignal(sig domain.Signal, st *domain.State, snap domain.Snapshot, now time.Time) string {
	if len(sig.Legs) == 0 {
		return "no legs"
	}
	for _, l := range sig.Legs {
		if st.IsBlacklisted(l.Denom, now) {
			return l.Denom + " blacklisted"
		}
		if st.HasDenom(l.Denom) {
			return l.Denom + " already held"
		}
		if _, ok := snap.Price(l.Denom); !ok {
			return l.Denom + " has no price"
		}
	}
	return ""
}

// collateralFor returns the collateral for the next position, rounded down
// to cents.
func (e *Engine) collateralFor(balance float64) float64 {
	c := e.cfg.CollateralUSDC
	if e.cfg.CollateralFraction > 0 {
		c = balance * e.cfg.CollateralFraction
	}
	return decimal.NewFromFloat(c).RoundDown(2).InexactFloat64()
}

// leverageFor caps the configured leverage at the lowest market maximum of
// the signal's legs.
func (e *Engine) leverageFor(sig domain.Signal, snap domain.Snapshot) float64 {
	lev := e.cfg.Leverage
	for _, l := range sig.Legs {
		if limit := snap.LeverageCap(l.Denom); limit > 0 && limit < lev {
			lev = limit
		}
	}
	return lev
}

// waitBetweenOpens gives the previous tx time to land so the next one does
// not reuse its account sequence.
func (e *Engine) waitBetweenOpens(ctx context.Context) error {
	if e.blocks != nil && e.cfg.OpenWaitBlocks > 0 {
		wctx, cancel := context.WithTimeout(ctx, blockWaitTimeout)
		err := e.blocks.WaitForBlocks(wctx, e.cfg.OpenWaitBlocks)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("block wait failed, falling back to fixed delay", "err", err, "delay", e.cfg.OpenDelay)
	}
	return sleepCtx(ctx, e.cfg.OpenDelay)
}
