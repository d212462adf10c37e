package ports

import (
	"context"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// MarketStore persiste el estado de los mercados después de cada operación confirmada.
type MarketStore interface {
	SaveMarket(ctx context.Context, m domain.Market) error
	SavePosition(ctx context.Context, p domain.Position) error
	SaveTrade(ctx context.Context, t domain.Trade) error
	SaveClaim(ctx context.Context, c domain.Claim) error

	// LoadMarkets devuelve todos los mercados ordenados por ID.
	LoadMarkets(ctx context.Context) ([]domain.Market, error)
	LoadPositions(ctx context.Context) ([]domain.Position, error)

	// GetTrades devuelve los trades de un mercado en orden de ejecución.
	GetTrades(ctx context.Context, marketID uint64) ([]domain.Trade, error)
	GetClaims(ctx context.Context, marketID uint64) ([]domain.Claim, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// LedgerJournal guarda cada movimiento del token ledger para poder reconstruirlo.
type LedgerJournal interface {
	AppendLedgerEvent(ctx context.Context, e domain.LedgerEvent) error
	LedgerEvents(ctx context.Context) ([]domain.LedgerEvent, error)
}
