package ports

import (
	"context"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// Notifier presenta el resultado de cada run al usuario.
type Notifier interface {
	Notify(ctx context.Context, result domain.RunResult) error
}
