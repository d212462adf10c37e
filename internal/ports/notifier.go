package ports

import (
	"context"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// Notifier presenta el estado de mercados y cuentas al usuario.
type Notifier interface {
	// NotifyMarket muestra totales, precios y posiciones de un mercado.
	NotifyMarket(ctx context.Context, snap domain.MarketSnapshot) error

	// NotifyBalances muestra los balances de token de las cuentas dadas.
	NotifyBalances(ctx context.Context, balances []domain.AccountBalance) error
}
