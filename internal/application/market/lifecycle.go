package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// marketInput son los campos de texto de CreateMarket, ya normalizados.
type marketInput struct {
	Question string `validate:"required,max=160"`
	LabelA   string `validate:"required,max=20"`
	LabelB   string `validate:"required,max=20,nefield=LabelA"`
}

// CreateMarket abre un mercado nuevo y devuelve su ID (secuencial desde 0).
//
// El creador paga el escrow inicial ceil(Cost(L, L)) y debe haber aprobado
// antes esa cantidad al servicio. Etiquetas vacías toman "Yes"/"No".
func (s *Service) CreateMarket(ctx context.Context, caller common.Address, question, labelA, labelB string, duration time.Duration) (uint64, error) {
	if duration < time.Second {
		return 0, fmt.Errorf("market.CreateMarket: duration %s: %w", duration, domain.ErrInvalidDuration)
	}
	if caller == (common.Address{}) {
		return 0, fmt.Errorf("market.CreateMarket: creator: %w", domain.ErrInvalidAddress)
	}

	in := marketInput{
		Question: strings.TrimSpace(question),
		LabelA:   strings.TrimSpace(labelA),
		LabelB:   strings.TrimSpace(labelB),
	}
	if in.LabelA == "" {
		in.LabelA = DefaultLabelA
	}
	if in.LabelB == "" {
		in.LabelB = DefaultLabelB
	}
	if err := s.validate.Struct(in); err != nil {
		return 0, fmt.Errorf("market.CreateMarket: %s: %w", describeValidation(err), domain.ErrInvalidMarket)
	}

	liquidity := s.cfg.InitialLiquidity
	escrow, err := s.engine.Cost(liquidity, liquidity)
	if err != nil {
		return 0, fmt.Errorf("market.CreateMarket: initial cost: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.TransferFrom(ctx, s.cfg.Address, caller, s.cfg.Address, escrow); err != nil {
		return 0, fmt.Errorf("market.CreateMarket: escrow: %w", err)
	}

	now := s.clock.Now()
	// Los segundos son la unidad del reloj de mercado.
	duration = duration.Truncate(time.Second)
	m := &domain.Market{
		ID:               uint64(len(s.markets)),
		Question:         in.Question,
		LabelA:           in.LabelA,
		LabelB:           in.LabelB,
		Creator:          caller,
		CreatedAt:        now,
		Duration:         duration,
		CloseTime:        now.Add(duration),
		Phase:            domain.PhaseOpen,
		Winner:           domain.OutcomeNone,
		SharesA:          domain.Clone(liquidity),
		SharesB:          domain.Clone(liquidity),
		PaymentsA:        domain.Clone(nil),
		PaymentsB:        domain.Clone(nil),
		InitialLiquidity: domain.Clone(liquidity),
		InitialCost:      escrow,
	}
	s.markets = append(s.markets, m)

	slog.Info("market: created",
		"market", m.ID,
		"question", domain.TruncateQuestion(m.Question, m.ID, 60),
		"creator", caller.Hex(),
		"escrow", domain.FormatAmount(escrow),
		"close", m.CloseTime.Format(time.RFC3339),
	)
	s.persist(ctx, "create", m, nil, nil)
	return m.ID, nil
}

// ResolveMarket declara el outcome ganador. Solo el resolver configurado puede
// llamarlo, una única vez y no antes de CloseTime. Tras resolver, totales de
// shares y pagos quedan congelados.
func (s *Service) ResolveMarket(ctx context.Context, caller common.Address, id uint64, winner domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return fmt.Errorf("market.ResolveMarket: %w", err)
	}
	if caller != s.cfg.Resolver {
		return fmt.Errorf("market.ResolveMarket: %s is not the resolver: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	if m.Phase != domain.PhaseOpen {
		return fmt.Errorf("market.ResolveMarket: market %d: %w", id, domain.ErrAlreadyResolved)
	}
	now := s.clock.Now()
	if now.Before(m.CloseTime) {
		return fmt.Errorf("market.ResolveMarket: market %d closes in %s: %w",
			id, m.CloseTime.Sub(now).Truncate(time.Second), domain.ErrTooEarly)
	}
	if !winner.Valid() {
		return fmt.Errorf("market.ResolveMarket: winner %d: %w", winner, domain.ErrInvalidOutcome)
	}

	m.Phase = domain.PhaseResolved
	m.Winner = winner
	m.ResolvedAt = now

	slog.Info("market: resolved",
		"market", id,
		"winner", winner.String(),
		"label", m.Label(winner),
		"winning_shares", domain.FormatAmount(m.Shares(winner)),
		"reward_pool", domain.FormatAmount(m.RewardPool()),
	)
	s.persist(ctx, "resolve", m, nil, nil)
	return nil
}

// describeValidation resume los errores del validator en una línea legible.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s fails %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s fails %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}
