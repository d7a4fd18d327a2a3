package ports

import (
	"context"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// StateStore persiste el state de cada estrategia entre runs.
type StateStore interface {
	// Load devuelve el state guardado, o un state vacío si no existe.
	Load(ctx context.Context, strategy string) (*domain.State, error)

	// Save sobreescribe el state guardado.
	Save(ctx context.Context, strategy string, st *domain.State) error
}

// HistoryStore es el log append-only de trades.
type HistoryStore interface {
	Append(ctx context.Context, rec domain.TradeRecord) error

	// Recent devuelve los últimos limit registros de la estrategia, del más
	// antiguo al más reciente. limit <= 0 devuelve todos.
	Recent(ctx context.Context, strategy string, limit int) ([]domain.TradeRecord, error)

	// Close libera los recursos del store.
	Close() error
}

// Locker es implementado por los stores que necesitan exclusión entre procesos.
type Locker interface {
	// Lock toma el lock de la estrategia. Devuelve domain.ErrLocked si ya está tomado.
	Lock(strategy string) (unlock func() error, err error)
}
