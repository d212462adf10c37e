package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// Las consultas no tienen efectos: devuelven copias y nunca tocan el ledger.

// GetMarketInfo devuelve una copia del mercado.
func (s *Service) GetMarketInfo(id uint64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market.GetMarketInfo: %w", err)
	}
	return m.Clone(), nil
}

// GetMarketCost devuelve Cost(sharesA, sharesB) actual, redondeado hacia arriba.
func (s *Service) GetMarketCost(id uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return nil, fmt.Errorf("market.GetMarketCost: %w", err)
	}
	cost, err := s.engine.Cost(m.SharesA, m.SharesB)
	if err != nil {
		return nil, fmt.Errorf("market.GetMarketCost: %w", err)
	}
	return cost, nil
}

// GetMarginalPrices devuelve los precios marginales de A y B; suman exactamente 1e18.
func (s *Service) GetMarginalPrices(id uint64) (priceA, priceB *big.Int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return nil, nil, fmt.Errorf("market.GetMarginalPrices: %w", err)
	}
	priceA, priceB, err = s.engine.MarginalPrices(m.SharesA, m.SharesB)
	if err != nil {
		return nil, nil, fmt.Errorf("market.GetMarginalPrices: %w", err)
	}
	return priceA, priceB, nil
}

// GetSharesBalance devuelve las shares de account en cada outcome (cero si nunca compró).
func (s *Service) GetSharesBalance(id uint64, account common.Address) (sharesA, sharesB *big.Int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.marketLocked(id); err != nil {
		return nil, nil, fmt.Errorf("market.GetSharesBalance: %w", err)
	}
	p := s.positionLocked(id, account)
	return p.SharesA, p.SharesB, nil
}

// GetPosition devuelve la posición completa de account, incluido el flag de claim.
func (s *Service) GetPosition(id uint64, account common.Address) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.marketLocked(id); err != nil {
		return domain.Position{}, fmt.Errorf("market.GetPosition: %w", err)
	}
	return s.positionLocked(id, account), nil
}

// GetMarketPayments devuelve los tokens cobrados por cada outcome (sin el escrow inicial).
func (s *Service) GetMarketPayments(id uint64) (paymentsA, paymentsB *big.Int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return nil, nil, fmt.Errorf("market.GetMarketPayments: %w", err)
	}
	return domain.Clone(m.PaymentsA), domain.Clone(m.PaymentsB), nil
}

// InitialLiquidity devuelve las shares sembradas por lado en cada mercado nuevo.
func (s *Service) InitialLiquidity() *big.Int {
	return domain.Clone(s.cfg.InitialLiquidity)
}

// LiquidityParam devuelve el parámetro b del LMSR.
func (s *Service) LiquidityParam() *big.Int {
	return s.engine.Liquidity()
}

// QuoteBuyByShares devuelve lo que costaría comprar shares ahora, sin comprar.
func (s *Service) QuoteBuyByShares(id uint64, outcome domain.Outcome, shares *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return nil, fmt.Errorf("market.QuoteBuyByShares: %w", err)
	}
	cost, err := s.engine.QuoteBuyByShares(outcome, m.SharesA, m.SharesB, shares)
	if err != nil {
		return nil, fmt.Errorf("market.QuoteBuyByShares: %w", err)
	}
	return cost, nil
}

// MarketCount devuelve cuántos mercados se han creado; el próximo ID es este valor.
func (s *Service) MarketCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.markets))
}

// Markets devuelve copias de todos los mercados ordenados por ID.
func (s *Service) Markets() []domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m.Clone())
	}
	return out
}

// Positions devuelve todas las posiciones de un mercado ordenadas por cuenta.
func (s *Service) Positions(id uint64) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.marketLocked(id); err != nil {
		return nil, fmt.Errorf("market.Positions: %w", err)
	}
	return s.sortedPositionsLocked(id), nil
}

// Snapshot reúne mercado, coste, precios y posiciones en un mismo instante.
func (s *Service) Snapshot(id uint64) (domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market.Snapshot: %w", err)
	}
	cost, err := s.engine.Cost(m.SharesA, m.SharesB)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market.Snapshot: %w", err)
	}
	priceA, priceB, err := s.engine.MarginalPrices(m.SharesA, m.SharesB)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market.Snapshot: %w", err)
	}
	maxLoss, err := s.engine.MaxLoss()
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market.Snapshot: %w", err)
	}
	return domain.MarketSnapshot{
		Market:    m.Clone(),
		Cost:      cost,
		PriceA:    priceA,
		PriceB:    priceB,
		MaxLoss:   maxLoss,
		Positions: s.sortedPositionsLocked(id),
		TakenAt:   s.clock.Now(),
	}, nil
}

// Address devuelve la cuenta escrow del servicio (el spender que hay que aprobar).
func (s *Service) Address() common.Address { return s.cfg.Address }

// Resolver devuelve la cuenta autorizada a resolver mercados.
func (s *Service) Resolver() common.Address { return s.cfg.Resolver }
