package perps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// Markets devuelve los mercados habilitados del contrato.
func (c *Client) Markets(ctx context.Context) ([]domain.Market, error) {
	data, err := c.smartQuery(ctx, map[string]any{"markets": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("perps.Markets: %w", err)
	}
	var resp rawMarketsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("perps.Markets: decode: %w", err)
	}
	return toMarkets(resp.Markets), nil
}

// Prices devuelve denom → precio actual.
func (c *Client) Prices(ctx context.Context) (map[string]float64, error) {
	data, err := c.smartQuery(ctx, map[string]any{"prices": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("perps.Prices: %w", err)
	}
	prices, err := parseNumberMap(data, "prices")
	if err != nil {
		return nil, fmt.Errorf("perps.Prices: %w", err)
	}
	return prices, nil
}

// FundingRates devuelve denom → funding rate anualizado y open interest.
func (c *Client) FundingRates(ctx context.Context) (map[string]domain.Funding, error) {
	data, err := c.smartQuery(ctx, map[string]any{"funding_rates": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("perps.FundingRates: %w", err)
	}
	funding, err := parseFunding(data, "funding_rates")
	if err != nil {
		return nil, fmt.Errorf("perps.FundingRates: %w", err)
	}
	return funding, nil
}

// MaxLeverages devuelve denom → apalancamiento máximo.
func (c *Client) MaxLeverages(ctx context.Context) (map[string]float64, error) {
	data, err := c.smartQuery(ctx, map[string]any{"max_leverages": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("perps.MaxLeverages: %w", err)
	}
	lev, err := parseNumberMap(data, "max_leverages")
	if err != nil {
		return nil, fmt.Errorf("perps.MaxLeverages: %w", err)
	}
	return lev, nil
}

// BalanceOf devuelve el saldo de colateral de address, en unidades.
func (c *Client) BalanceOf(ctx context.Context, address string) (float64, error) {
	u := fmt.Sprintf("%s/cosmos/bank/v1beta1/balances/%s/by_denom?denom=%s",
		c.lcdBase, address, c.collateralDenom)
	var resp bankBalanceResponse
	if err := c.get(ctx, c.bankLimiter, u, &resp); err != nil {
		return 0, fmt.Errorf("perps.BalanceOf: %w", err)
	}
	bal, err := fromMicro(resp.Balance.Amount)
	if err != nil {
		return 0, fmt.Errorf("perps.BalanceOf: %w", err)
	}
	return bal, nil
}

// PositionsOf devuelve las posiciones abiertas de owner según el contrato.
func (c *Client) PositionsOf(ctx context.Context, owner string) ([]domain.RemotePosition, error) {
	data, err := c.smartQuery(ctx, map[string]any{"positions": map[string]string{"owner": owner}})
	if err != nil {
		return nil, fmt.Errorf("perps.PositionsOf: %w", err)
	}
	var resp rawPositionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("perps.PositionsOf: decode: %w", err)
	}
	out := make([]domain.RemotePosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		collateral, err := fromMicro(p.Collateral)
		if err != nil {
			return nil, fmt.Errorf("perps.PositionsOf: position %s: %w", p.ID, err)
		}
		out = append(out, domain.RemotePosition{ID: p.ID, Denoms: p.Denoms, Collateral: collateral})
	}
	return out, nil
}
