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

// ClaimWinnings paga al caller sus shares ganadoras de un mercado resuelto.
//
//	reward = stake propio en el lado ganador
//	       + floor(pool · shares del caller / shares ganadoras totales)
//
// pool son los pagos del lado perdedor más el escrow inicial. Las shares
// totales incluyen la liquidez sembrada, así que la parte del market maker
// nunca se reparte y la suma de premios no supera lo cobrado.
func (s *Service) ClaimWinnings(ctx context.Context, caller common.Address, id uint64) (domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.marketLocked(id)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("market.ClaimWinnings: %w", err)
	}
	if m.Phase != domain.PhaseResolved {
		return domain.Claim{}, fmt.Errorf("market.ClaimWinnings: market %d: %w", id, domain.ErrNotResolved)
	}

	pos := s.positionLocked(id, caller)
	if pos.Claimed {
		return domain.Claim{}, fmt.Errorf("market.ClaimWinnings: market %d %s: %w", id, caller.Hex(), domain.ErrAlreadyClaimed)
	}
	winner := m.Winner
	shares := pos.Shares(winner)
	if !domain.IsPositive(shares) {
		return domain.Claim{}, fmt.Errorf("market.ClaimWinnings: market %d %s holds no %s shares: %w",
			id, caller.Hex(), m.Label(winner), domain.ErrNoWinningShares)
	}

	stake, poolShare := payout(*m, pos)
	reward := new(big.Int).Add(stake, poolShare)

	if err := s.ledger.Transfer(ctx, s.cfg.Address, caller, reward); err != nil {
		return domain.Claim{}, fmt.Errorf("market.ClaimWinnings: pay %s: %w", caller.Hex(), err)
	}

	claimedShares := domain.Clone(shares)
	if winner == domain.OutcomeA {
		pos.SharesA = new(big.Int)
	} else {
		pos.SharesB = new(big.Int)
	}
	pos.Claimed = true
	s.commitPosition(pos)

	claim := domain.Claim{
		ID:        uuid.New().String(),
		MarketID:  id,
		Account:   caller,
		Outcome:   winner,
		Shares:    claimedShares,
		Stake:     stake,
		PoolShare: poolShare,
		Reward:    reward,
		At:        s.clock.Now(),
	}

	slog.Info("market: claim paid",
		"market", id,
		"account", caller.Hex(),
		"shares", domain.FormatAmount(claimedShares),
		"stake", domain.FormatAmount(stake),
		"pool_share", domain.FormatAmount(poolShare),
		"reward", domain.FormatAmount(reward),
	)
	s.persist(ctx, "claim", nil, &pos, func(ctx context.Context) error {
		return s.store.SaveClaim(ctx, claim)
	})
	return claim, nil
}

// payout devuelve el stake propio y la parte del pool que corresponden a pos.
// El total de shares ganadoras está congelado desde la resolución.
func payout(m domain.Market, pos domain.Position) (stake, poolShare *big.Int) {
	stake = domain.Clone(pos.Paid(m.Winner))
	poolShare = domain.MulDivDown(m.RewardPool(), pos.Shares(m.Winner), m.Shares(m.Winner))
	return stake, poolShare
}
