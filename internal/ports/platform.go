package ports

import (
	"context"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// MarketData obtiene el estado de los mercados perpetuos.
type MarketData interface {
	// Markets devuelve los mercados habilitados.
	Markets(ctx context.Context) ([]domain.Market, error)

	// Prices devuelve denom → precio actual.
	Prices(ctx context.Context) (map[string]float64, error)

	// FundingRates devuelve denom → funding rate y open interest.
	FundingRates(ctx context.Context) (map[string]domain.Funding, error)

	// MaxLeverages devuelve denom → apalancamiento máximo permitido.
	MaxLeverages(ctx context.Context) (map[string]float64, error)
}

// Trader abre y cierra posiciones de una wallet.
type Trader interface {
	// Address devuelve la dirección usada para las ejecuciones.
	Address() string

	// Balance devuelve el saldo disponible en USDC.
	Balance(ctx context.Context) (float64, error)

	// OpenPosition abre una posición apalancada (posiblemente multi-activo).
	OpenPosition(ctx context.Context, req domain.OpenRequest) (domain.TxResult, error)

	// ClosePosition cierra la posición con el ID de la plataforma.
	ClosePosition(ctx context.Context, positionID string) (domain.TxResult, error)

	// Positions devuelve las posiciones de la wallet según la plataforma.
	Positions(ctx context.Context) ([]domain.RemotePosition, error)
}

// BlockWaiter bloquea hasta que se producen n bloques nuevos.
type BlockWaiter interface {
	WaitForBlocks(ctx context.Context, n int) error
}
