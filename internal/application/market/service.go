// Package market implementa el mercado de predicción binario: registro de
// mercados y posiciones, compras contra el market maker LMSR, resolución y
// pago de premios.
//
// Service es el único escritor. Todas las operaciones que mutan estado toman
// el mismo mutex, validan todas las precondiciones, ejecutan el único paso
// que puede fallar (la transferencia en el ledger) y solo entonces tocan el
// estado del mercado. Un error nunca deja efectos parciales.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/alejandrodnm/predmarket/internal/domain"
	"github.com/alejandrodnm/predmarket/internal/domain/lmsr"
	"github.com/alejandrodnm/predmarket/internal/ports"
)

const (
	DefaultLabelA    = "Yes"
	DefaultLabelB    = "No"
	defaultLiquidity = 100 // tokens enteros, para b y para la liquidez sembrada
)

// Config holds market-maker settings shared by every market of a Service.
type Config struct {
	// Address es la cuenta escrow del servicio: cobra las compras y paga los claims.
	Address common.Address
	// Resolver es la única cuenta autorizada a resolver mercados.
	Resolver common.Address

	InitialLiquidity *big.Int // shares sembradas por lado al crear (default 100e18)
	LiquidityParam   *big.Int // b del LMSR (default 100e18)
	ShareTick        *big.Int // granularidad de buyByAmount (default lmsr.DefaultTick)
}

// Service is the prediction market core.
type Service struct {
	mu sync.Mutex

	cfg      Config
	engine   *lmsr.Engine
	ledger   ports.BalanceLedger
	store    ports.MarketStore // nil = sin persistencia
	clock    ports.Clock
	validate *validator.Validate

	markets   []*domain.Market // índice = ID
	positions map[uint64]map[common.Address]*domain.Position
}

// New creates a Service. store may be nil.
func New(cfg Config, ledger ports.BalanceLedger, store ports.MarketStore, clock ports.Clock) (*Service, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("market.New: escrow address: %w", domain.ErrInvalidAddress)
	}
	if cfg.Resolver == (common.Address{}) {
		return nil, fmt.Errorf("market.New: resolver address: %w", domain.ErrInvalidAddress)
	}
	if cfg.InitialLiquidity == nil {
		cfg.InitialLiquidity = domain.Units(defaultLiquidity)
	}
	if cfg.LiquidityParam == nil {
		cfg.LiquidityParam = domain.Units(defaultLiquidity)
	}
	if !domain.IsPositive(cfg.InitialLiquidity) {
		return nil, fmt.Errorf("market.New: initial liquidity: %w", domain.ErrInvalidQuantity)
	}

	engine, err := lmsr.New(cfg.LiquidityParam, cfg.ShareTick)
	if err != nil {
		return nil, fmt.Errorf("market.New: %w", err)
	}
	cfg.ShareTick = engine.Tick()

	return &Service{
		cfg:       cfg,
		engine:    engine,
		ledger:    ledger,
		store:     store,
		clock:     clock,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		positions: make(map[uint64]map[common.Address]*domain.Position),
	}, nil
}

// Restore carga mercados y posiciones persistidos. Solo puede llamarse sobre
// un Service vacío; el ledger de tokens se reconstruye por separado con su journal.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.markets) > 0 {
		return 0, fmt.Errorf("market.Restore: service already has %d markets", len(s.markets))
	}

	markets, err := s.store.LoadMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("market.Restore: %w", err)
	}
	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("market.Restore: %w", err)
	}

	loaded := make([]*domain.Market, 0, len(markets))
	for i, m := range markets {
		if m.ID != uint64(i) {
			return 0, fmt.Errorf("market.Restore: market ids not contiguous at %d (found %d)", i, m.ID)
		}
		mm := m.Clone()
		loaded = append(loaded, &mm)
	}
	byMarket := make(map[uint64]map[common.Address]*domain.Position)
	for _, p := range positions {
		if p.MarketID >= uint64(len(loaded)) {
			return 0, fmt.Errorf("market.Restore: position for unknown market %d: %w", p.MarketID, domain.ErrMarketNotFound)
		}
		if byMarket[p.MarketID] == nil {
			byMarket[p.MarketID] = make(map[common.Address]*domain.Position)
		}
		pp := p.Clone()
		byMarket[p.MarketID][p.Account] = &pp
	}

	s.markets = loaded
	s.positions = byMarket
	slog.Info("market: restored state", "markets", len(loaded), "positions", len(positions))
	return len(loaded), nil
}

// --- helpers internos (requieren s.mu) ---

func (s *Service) marketLocked(id uint64) (*domain.Market, error) {
	if id >= uint64(len(s.markets)) {
		return nil, fmt.Errorf("market %d: %w", id, domain.ErrMarketNotFound)
	}
	return s.markets[id], nil
}

// positionLocked devuelve la posición de account, creándola vacía si no existe.
// La posición nueva no se registra hasta commitPosition.
func (s *Service) positionLocked(id uint64, account common.Address) domain.Position {
	if byAcct, ok := s.positions[id]; ok {
		if p, ok := byAcct[account]; ok {
			return p.Clone()
		}
	}
	return domain.NewPosition(id, account)
}

func (s *Service) commitPosition(p domain.Position) {
	byAcct, ok := s.positions[p.MarketID]
	if !ok {
		byAcct = make(map[common.Address]*domain.Position)
		s.positions[p.MarketID] = byAcct
	}
	byAcct[p.Account] = &p
}

func (s *Service) sortedPositionsLocked(id uint64) []domain.Position {
	byAcct := s.positions[id]
	out := make([]domain.Position, 0, len(byAcct))
	for _, p := range byAcct {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.Cmp(out[j].Account) < 0
	})
	return out
}

// persist guarda el resultado de una operación ya confirmada. Un fallo del
// store se registra y no se propaga: el estado en memoria es la fuente de verdad.
func (s *Service) persist(ctx context.Context, op string, m *domain.Market, p *domain.Position, extra func(context.Context) error) {
	if s.store == nil {
		return
	}
	if m != nil {
		if err := s.store.SaveMarket(ctx, *m); err != nil {
			slog.Warn("market: failed to persist market", "op", op, "market", m.ID, "err", err)
		}
	}
	if p != nil {
		if err := s.store.SavePosition(ctx, *p); err != nil {
			slog.Warn("market: failed to persist position", "op", op, "market", p.MarketID, "account", p.Account.Hex(), "err", err)
		}
	}
	if extra != nil {
		if err := extra(ctx); err != nil {
			slog.Warn("market: failed to persist receipt", "op", op, "err", err)
		}
	}
}
