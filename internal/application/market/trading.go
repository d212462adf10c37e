package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// BuyByShares compra exactamente shares del outcome dado al precio LMSR
// (redondeado hacia arriba). El comprador debe haber aprobado el coste al servicio.
func (s *Service) BuyByShares(ctx context.Context, caller common.Address, id uint64, outcome domain.Outcome, shares *big.Int) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.tradableLocked(id, outcome)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market.BuyByShares: %w", err)
	}
	if !domain.IsPositive(shares) {
		return domain.Trade{}, fmt.Errorf("market.BuyByShares: shares: %w", domain.ErrInvalidQuantity)
	}

	cost, err := s.engine.QuoteBuyByShares(outcome, m.SharesA, m.SharesB, shares)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market.BuyByShares: quote: %w", err)
	}

	return s.executeLocked(ctx, caller, m, domain.TradeByShares, outcome, domain.Clone(shares), cost)
}

// BuyByAmount gasta budget completo en el outcome dado y recibe el máximo de
// shares (en múltiplos del tick) cuyo coste LMSR cabe en él. El resto que no
// alcanza para un tick más no se devuelve: queda registrado como pago.
func (s *Service) BuyByAmount(ctx context.Context, caller common.Address, id uint64, outcome domain.Outcome, budget *big.Int) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.tradableLocked(id, outcome)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market.BuyByAmount: %w", err)
	}
	if !domain.IsPositive(budget) {
		return domain.Trade{}, fmt.Errorf("market.BuyByAmount: budget: %w", domain.ErrInvalidQuantity)
	}

	shares, err := s.engine.QuoteBuyByAmount(outcome, m.SharesA, m.SharesB, budget)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market.BuyByAmount: quote: %w", err)
	}

	return s.executeLocked(ctx, caller, m, domain.TradeByAmount, outcome, shares, domain.Clone(budget))
}

// tradableLocked comprueba que el mercado existe, acepta compras y que el outcome es A o B.
func (s *Service) tradableLocked(id uint64, outcome domain.Outcome) (*domain.Market, error) {
	m, err := s.marketLocked(id)
	if err != nil {
		return nil, err
	}
	if m.Phase == domain.PhaseResolved {
		return nil, fmt.Errorf("market %d: %w: %w", id, domain.ErrMarketClosed, domain.ErrAlreadyResolved)
	}
	if now := s.clock.Now(); !m.AcceptsTrades(now) {
		return nil, fmt.Errorf("market %d closed at %s: %w", id, m.CloseTime.Format("2006-01-02 15:04:05"), domain.ErrMarketClosed)
	}
	if !outcome.Valid() {
		return nil, fmt.Errorf("outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	return m, nil
}

// executeLocked cobra cost al comprador y, solo si el cobro entra, acredita las shares.
func (s *Service) executeLocked(
	ctx context.Context,
	caller common.Address,
	m *domain.Market,
	kind domain.TradeKind,
	outcome domain.Outcome,
	shares, cost *big.Int,
) (domain.Trade, error) {
	op := "market.BuyByShares"
	if kind == domain.TradeByAmount {
		op = "market.BuyByAmount"
	}

	// Precios después de la compra: se calculan antes de cobrar para que un
	// fallo aritmético no deje un cobro sin shares.
	nextA, nextB := domain.Clone(m.SharesA), domain.Clone(m.SharesB)
	if outcome == domain.OutcomeA {
		nextA.Add(nextA, shares)
	} else {
		nextB.Add(nextB, shares)
	}
	priceA, priceB, err := s.engine.MarginalPrices(nextA, nextB)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("%s: prices: %w", op, err)
	}

	if err := s.ledger.TransferFrom(ctx, s.cfg.Address, caller, s.cfg.Address, cost); err != nil {
		return domain.Trade{}, fmt.Errorf("%s: market %d: %w", op, m.ID, err)
	}

	m.SharesA, m.SharesB = nextA, nextB
	pos := s.positionLocked(m.ID, caller)
	if outcome == domain.OutcomeA {
		m.PaymentsA = domain.Sum(m.PaymentsA, cost)
		pos.SharesA = domain.Sum(pos.SharesA, shares)
		pos.PaidA = domain.Sum(pos.PaidA, cost)
	} else {
		m.PaymentsB = domain.Sum(m.PaymentsB, cost)
		pos.SharesB = domain.Sum(pos.SharesB, shares)
		pos.PaidB = domain.Sum(pos.PaidB, cost)
	}
	s.commitPosition(pos)

	trade := domain.Trade{
		ID:       uuid.New().String(),
		MarketID: m.ID,
		Account:  caller,
		Kind:     kind,
		Outcome:  outcome,
		Shares:   shares,
		Cost:     cost,
		PriceA:   priceA,
		PriceB:   priceB,
		At:       s.clock.Now(),
	}

	slog.Info("market: trade",
		"market", m.ID,
		"account", caller.Hex(),
		"kind", string(kind),
		"outcome", outcome.String(),
		"shares", domain.FormatAmount(shares),
		"cost", domain.FormatAmount(cost),
		"price_a", domain.FormatAmountFixed(priceA, 6),
	)
	s.persist(ctx, "trade", m, &pos, func(ctx context.Context) error {
		return s.store.SaveTrade(ctx, trade)
	})
	return trade, nil
}
