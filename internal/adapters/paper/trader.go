// Package paper simula la ejecución de órdenes en memoria para -dry-run.
package paper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/perpbot/internal/domain"
	"github.com/alejandrodnm/perpbot/internal/ports"
)

// Address es la dirección que reporta el trader simulado.
const Address = "paper"

// Trader implementa ports.Trader sin tocar la cadena: el colateral se reserva
// al abrir y se liquida al cerrar con el PnL calculado a precios actuales.
type Trader struct {
	market    ports.MarketData
	mu        sync.Mutex
	balance   float64
	positions map[string]domain.Position
	now       func() time.Time
}

// NewTrader crea un trader simulado con el saldo inicial dado.
func NewTrader(market ports.MarketData, initialBalance float64) *Trader {
	return &Trader{
		market:    market,
		balance:   initialBalance,
		positions: make(map[string]domain.Position),
		now:       time.Now,
	}
}

// Restore carga posiciones de un state previo para que sobrevivan a un reinicio.
// Su colateral se descuenta del saldo.
func (t *Trader) Restore(positions []domain.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range positions {
		if _, ok := t.positions[p.ID]; ok {
			continue
		}
		t.positions[p.ID] = p
		t.balance -= p.Collateral
	}
	if t.balance < 0 {
		t.balance = 0
	}
}

func (t *Trader) Address() string { return Address }

// Balance devuelve el saldo libre (sin el colateral reservado).
func (t *Trader) Balance(context.Context) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance, nil
}

// OpenPosition reserva el colateral y guarda los precios de entrada actuales.
func (t *Trader) OpenPosition(ctx context.Context, req domain.OpenRequest) (domain.TxResult, error) {
	if len(req.Legs) == 0 {
		return domain.TxResult{}, errors.New("paper.OpenPosition: no legs")
	}
	if req.Collateral <= 0 {
		return domain.TxResult{}, fmt.Errorf("paper.OpenPosition: invalid collateral %.2f", req.Collateral)
	}

	prices, err := t.market.Prices(ctx)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("paper.OpenPosition: %w", err)
	}
	entry := make(map[string]float64, len(req.Legs))
	for _, l := range req.Legs {
		p := prices[l.Denom]
		if p <= 0 {
			return domain.TxResult{}, fmt.Errorf("paper.OpenPosition %s: %w", l.Denom, domain.ErrNoPrice)
		}
		entry[l.Denom] = p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if req.Collateral > t.balance {
		return domain.TxResult{}, fmt.Errorf("paper.OpenPosition: insufficient balance %.2f for %.2f", t.balance, req.Collateral)
	}

	id := uuid.New().String()
	t.positions[id] = domain.Position{
		ID:          id,
		Legs:        req.Legs,
		Leverage:    req.Leverage,
		Collateral:  req.Collateral,
		EntryPrices: entry,
		OpenedAt:    t.now(),
	}
	t.balance -= req.Collateral

	slog.Debug("paper: position opened", "id", id, "collateral", req.Collateral, "leverage", req.Leverage)
	return domain.TxResult{TxHash: "paper-" + id, PositionID: id}, nil
}

// ClosePosition liquida la posición: devuelve colateral × (1 + pnl), nunca negativo.
func (t *Trader) ClosePosition(ctx context.Context, positionID string) (domain.TxResult, error) {
	prices, err := t.market.Prices(ctx)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("paper.ClosePosition: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[positionID]
	if !ok {
		return domain.TxResult{}, fmt.Errorf("paper.ClosePosition: position %s not found", positionID)
	}

	pnl, _ := p.PnLPct(prices)
	payout := p.Collateral * (1 + pnl)
	if payout < 0 {
		payout = 0
	}
	t.balance += payout
	delete(t.positions, positionID)

	slog.Debug("paper: position closed", "id", positionID, "pnl", pnl, "payout", payout)
	return domain.TxResult{TxHash: "paper-close-" + positionID, PositionID: positionID}, nil
}

// Positions devuelve las posiciones simuladas ordenadas por apertura.
func (t *Trader) Positions(context.Context) ([]domain.RemotePosition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].OpenedAt.Equal(list[j].OpenedAt) {
			return list[i].OpenedAt.Before(list[j].OpenedAt)
		}
		return list[i].ID < list[j].ID
	})

	out := make([]domain.RemotePosition, len(list))
	for i, p := range list {
		out[i] = domain.RemotePosition{ID: p.ID, Denoms: p.Denoms(), Collateral: p.Collateral}
	}
	return out, nil
}
