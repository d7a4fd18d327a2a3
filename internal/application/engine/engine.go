package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/perpbot/internal/domain"
	"github.com/alejandrodnm/perpbot/internal/ports"
	"github.com/alejandrodnm/perpbot/internal/strategy"
)

const (
	defaultMaxPositions  = 3
	defaultHistoryLength = 200
	defaultRetryAttempts = 2
	defaultRetryDelay    = 15 * time.Second
	defaultOpenDelay     = 15 * time.Second
	defaultInterval      = 5 * time.Minute
	reconcileGrace       = 2 * time.Minute
	blockWaitTimeout     = time.Minute
)

// Config holds the tunables of one strategy runner.
type Config struct {
	Leverage           float64
	CollateralUSDC     float64 // fixed collateral per position
	CollateralFraction float64 // if > 0, collateral = balance × fraction
	MinCollateral      float64
	MaxPositions       int
	EnabledAssets      []string // empty = all enabled markets

	BlacklistFor  time.Duration
	TakeProfitPct float64 // on collateral, 0.2 = +20%
	StopLossPct   float64
	MaxHold       time.Duration

	OpenDelay      time.Duration // between sequential opens
	OpenWaitBlocks int           // if a BlockWaiter is set, wait this many blocks instead
	RetryDelay     time.Duration
	RetryAttempts  int

	HistoryLength int
	Interval      time.Duration
	StopFile      string
	Once          bool
}

func (c *Config) setDefaults() {
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = defaultMaxPositions
	}
	if c.HistoryLength <= 0 {
		c.HistoryLength = defaultHistoryLength
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.OpenDelay < 0 {
		c.OpenDelay = defaultOpenDelay
	}
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
}

// Engine runs one strategy against the platform: fetch, score, trade, persist.
type Engine struct {
	cfg      Config
	strategy strategy.Strategy
	market   ports.MarketData
	trader   ports.Trader
	states   ports.StateStore
	history  ports.HistoryStore
	notifier ports.Notifier
	blocks   ports.BlockWaiter

	now func() time.Time
}

// New creates an engine. notifier may be nil.
func New(
	cfg Config,
	strat strategy.Strategy,
	market ports.MarketData,
	trader ports.Trader,
	states ports.StateStore,
	history ports.HistoryStore,
	notifier ports.Notifier,
) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:      cfg,
		strategy: strat,
		market:   market,
		trader:   trader,
		states:   states,
		history:  history,
		notifier: notifier,
		now:      time.Now,
	}
}

// SetBlockWaiter makes sequential opens wait for new blocks instead of a fixed delay.
func (e *Engine) SetBlockWaiter(b ports.BlockWaiter) {
	e.blocks = b
}

// RunOnce executes one tick of the strategy. Orchestrates: lock → load →
// snapshot → history → reconcile → exits → entries → save.
func (e *Engine) RunOnce(ctx context.Context) (*domain.RunResult, error) {
	name := e.strategy.Name()
	start := e.now()
	res := &domain.RunResult{
		RunID:     uuid.New().String(),
		Strategy:  name,
		StartedAt: start,
	}

	if l, ok := e.states.(ports.Locker); ok {
		unlock, err := l.Lock(name)
		if err != nil {
			return nil, fmt.Errorf("engine.RunOnce: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				slog.Warn("failed to release state lock", "strategy", name, "err", err)
			}
		}()
	}

	st, err := e.states.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: load state: %w", err)
	}

	snap, err := e.fetchSnapshot(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: %w", err)
	}
	res.Markets = len(snap.Markets)
	res.Balance = snap.Balance

	st.RecordPrices(marketPrices(snap), start, e.cfg.HistoryLength)
	st.RecordFunding(snap.Funding, start, e.cfg.HistoryLength)
	if n := st.PruneBlacklist(start); n > 0 {
		slog.Debug("blacklist entries expired", "count", n)
	}

	in := strategy.Input{Snapshot: snap, State: st}

	e.reconcile(ctx, st, res)
	e.processExits(ctx, st, in, res)
	e.processEntries(ctx, st, in, res)

	st.LastRun = start
	if err := e.states.Save(ctx, name, st); err != nil {
		return res, fmt.Errorf("engine.RunOnce: save state: %w", err)
	}

	res.Open = append([]domain.Position(nil), st.Positions...)
	res.Duration = e.now().Sub(start)
	return res, nil
}

// persist saves the state after a trade so a crash later in the run does not
// lose track of a position that exists on-chain.
func (e *Engine) persist(ctx context.Context, st *domain.State) {
	if err := e.states.Save(ctx, e.strategy.Name(), st); err != nil {
		slog.Warn("failed to persist state after trade", "strategy", e.strategy.Name(), "err", err)
	}
}

// record appends a trade to the history log. Failures are logged, not fatal.
func (e *Engine) record(ctx context.Context, rec domain.TradeRecord) {
	if e.history == nil {
		return
	}
	rec.ID = uuid.New().String()
	if err := e.history.Append(ctx, rec); err != nil {
		slog.Warn("failed to append trade history", "strategy", rec.Strategy, "action", rec.Action, "err", err)
	}
}

// marketPrices keeps only the prices of enabled markets, so disabled or
// filtered assets do not grow the history.
func marketPrices(snap domain.Snapshot) map[string]float64 {
	out := make(map[string]float64, len(snap.Markets))
	for _, m := range snap.Markets {
		if p, ok := snap.Price(m.Denom); ok {
			out[m.Denom] = p
		}
	}
	return out
}

// pricesOf returns the current price of each denom, for history records.
func pricesOf(snap domain.Snapshot, denoms []string) map[string]float64 {
	out := make(map[string]float64, len(denoms))
	for _, d := range denoms {
		if p, ok := snap.Price(d); ok {
			out[d] = p
		}
	}
	return out
}
