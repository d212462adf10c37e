package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// SaveMarket hace upsert del estado completo de un mercado.
func (s *SQLiteStorage) SaveMarket(ctx context.Context, m domain.Market) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets
			(id, question, label_a, label_b, creator, created_at, duration_secs, close_time,
			 phase, winner, resolved_at, shares_a, shares_b, payments_a, payments_b,
			 initial_liquidity, initial_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase       = excluded.phase,
			winner      = excluded.winner,
			resolved_at = excluded.resolved_at,
			shares_a    = excluded.shares_a,
			shares_b    = excluded.shares_b,
			payments_a  = excluded.payments_a,
			payments_b  = excluded.payments_b`,
		int64(m.ID), m.Question, m.LabelA, m.LabelB, m.Creator.Hex(),
		timeText(m.CreatedAt), int64(m.Duration/time.Second), timeText(m.CloseTime),
		string(m.Phase), int(m.Winner), nullTimeVal(m.ResolvedAt),
		amountText(m.SharesA), amountText(m.SharesB),
		amountText(m.PaymentsA), amountText(m.PaymentsB),
		amountText(m.InitialLiquidity), amountText(m.InitialCost),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveMarket: market %d: %w", m.ID, err)
	}
	return nil
}

// LoadMarkets devuelve todos los mercados ordenados por ID.
func (s *SQLiteStorage) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, label_a, label_b, creator, created_at, duration_secs, close_time,
		       phase, winner, resolved_at, shares_a, shares_b, payments_a, payments_b,
		       initial_liquidity, initial_cost
		FROM markets
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadMarkets: query: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var (
			m                             domain.Market
			id, durSecs                   int64
			winner                        int
			creator, createdAt, closeTime string
			phase                         string
			resolvedAt                    sql.NullString
			sharesA, sharesB, payA, payB  string
			initialLiquidity, initialCost string
		)
		if err := rows.Scan(
			&id, &m.Question, &m.LabelA, &m.LabelB, &creator, &createdAt, &durSecs, &closeTime,
			&phase, &winner, &resolvedAt, &sharesA, &sharesB, &payA, &payB,
			&initialLiquidity, &initialCost,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadMarkets: scan row: %w", err)
		}

		m.ID = uint64(id)
		if m.Creator, err = parseAddress("creator", creator); err != nil {
			return nil, fmt.Errorf("storage.LoadMarkets: market %d: %w", id, err)
		}
		m.CreatedAt = parseTimeText(createdAt)
		m.Duration = time.Duration(durSecs) * time.Second
		m.CloseTime = parseTimeText(closeTime)
		m.Phase = domain.Phase(phase)
		m.Winner = domain.Outcome(winner)
		if resolvedAt.Valid {
			m.ResolvedAt = parseTimeText(resolvedAt.String)
		}

		var f amountFields
		m.SharesA = f.parse("shares_a", sharesA)
		m.SharesB = f.parse("shares_b", sharesB)
		m.PaymentsA = f.parse("payments_a", payA)
		m.PaymentsB = f.parse("payments_b", payB)
		m.InitialLiquidity = f.parse("initial_liquidity", initialLiquidity)
		m.InitialCost = f.parse("initial_cost", initialCost)
		if f.err != nil {
			return nil, fmt.Errorf("storage.LoadMarkets: market %d: %w", id, f.err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// SavePosition hace upsert de la posición de una cuenta en un mercado.
func (s *SQLiteStorage) SavePosition(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (market_id, account, shares_a, shares_b, paid_a, paid_b, claimed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, account) DO UPDATE SET
			shares_a = excluded.shares_a,
			shares_b = excluded.shares_b,
			paid_a   = excluded.paid_a,
			paid_b   = excluded.paid_b,
			claimed  = excluded.claimed`,
		int64(p.MarketID), p.Account.Hex(),
		amountText(p.SharesA), amountText(p.SharesB),
		amountText(p.PaidA), amountText(p.PaidB),
		boolToInt(p.Claimed),
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: market %d %s: %w", p.MarketID, p.Account.Hex(), err)
	}
	return nil
}

// LoadPositions devuelve todas las posiciones ordenadas por mercado y cuenta.
func (s *SQLiteStorage) LoadPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, account, shares_a, shares_b, paid_a, paid_b, claimed
		FROM positions
		ORDER BY market_id, account`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var (
			marketID                       int64
			account                        string
			sharesA, sharesB, paidA, paidB string
			claimed                        int
		)
		if err := rows.Scan(&marketID, &account, &sharesA, &sharesB, &paidA, &paidB, &claimed); err != nil {
			return nil, fmt.Errorf("storage.LoadPositions: scan row: %w", err)
		}
		acct, err := parseAddress("account", account)
		if err != nil {
			return nil, fmt.Errorf("storage.LoadPositions: market %d: %w", marketID, err)
		}
		p := domain.Position{MarketID: uint64(marketID), Account: acct, Claimed: claimed == 1}

		var f amountFields
		p.SharesA = f.parse("shares_a", sharesA)
		p.SharesB = f.parse("shares_b", sharesB)
		p.PaidA = f.parse("paid_a", paidA)
		p.PaidB = f.parse("paid_b", paidB)
		if f.err != nil {
			return nil, fmt.Errorf("storage.LoadPositions: market %d %s: %w", marketID, account, f.err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SaveTrade inserta el recibo de una compra.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, market_id, account, kind, outcome, shares, cost, price_a, price_b, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, int64(t.MarketID), t.Account.Hex(), string(t.Kind), int(t.Outcome),
		amountText(t.Shares), amountText(t.Cost), amountText(t.PriceA), amountText(t.PriceB),
		timeText(t.At),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %s: %w", t.ID, err)
	}
	return nil
}

// GetTrades devuelve los trades de un mercado en orden de ejecución.
func (s *SQLiteStorage) GetTrades(ctx context.Context, marketID uint64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, kind, outcome, shares, cost, price_a, price_b, executed_at
		FROM trades
		WHERE market_id = ?
		ORDER BY seq`, int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("storage.GetTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t                            domain.Trade
			account, kind, at            string
			outcome                      int
			shares, cost, priceA, priceB string
		)
		if err := rows.Scan(&t.ID, &account, &kind, &outcome, &shares, &cost, &priceA, &priceB, &at); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: scan row: %w", err)
		}
		if t.Account, err = parseAddress("account", account); err != nil {
			return nil, fmt.Errorf("storage.GetTrades: trade %s: %w", t.ID, err)
		}
		t.MarketID = marketID
		t.Kind = domain.TradeKind(kind)
		t.Outcome = domain.Outcome(outcome)
		t.At = parseTimeText(at)

		var f amountFields
		t.Shares = f.parse("shares", shares)
		t.Cost = f.parse("cost", cost)
		t.PriceA = f.parse("price_a", priceA)
		t.PriceB = f.parse("price_b", priceB)
		if f.err != nil {
			return nil, fmt.Errorf("storage.GetTrades: trade %s: %w", t.ID, f.err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveClaim inserta el recibo de un claim pagado.
func (s *SQLiteStorage) SaveClaim(ctx context.Context, c domain.Claim) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (id, market_id, account, outcome, shares, stake, pool_share, reward, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, int64(c.MarketID), c.Account.Hex(), int(c.Outcome),
		amountText(c.Shares), amountText(c.Stake), amountText(c.PoolShare), amountText(c.Reward),
		timeText(c.At),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveClaim: %s: %w", c.ID, err)
	}
	return nil
}

// GetClaims devuelve los claims de un mercado en orden de pago.
func (s *SQLiteStorage) GetClaims(ctx context.Context, marketID uint64) ([]domain.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, outcome, shares, stake, pool_share, reward, claimed_at
		FROM claims
		WHERE market_id = ?
		ORDER BY seq`, int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("storage.GetClaims: query: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var (
			c                                domain.Claim
			account, at                      string
			outcome                          int
			shares, stake, poolShare, reward string
		)
		if err := rows.Scan(&c.ID, &account, &outcome, &shares, &stake, &poolShare, &reward, &at); err != nil {
			return nil, fmt.Errorf("storage.GetClaims: scan row: %w", err)
		}
		if c.Account, err = parseAddress("account", account); err != nil {
			return nil, fmt.Errorf("storage.GetClaims: claim %s: %w", c.ID, err)
		}
		c.MarketID = marketID
		c.Outcome = domain.Outcome(outcome)
		c.At = parseTimeText(at)

		var f amountFields
		c.Shares = f.parse("shares", shares)
		c.Stake = f.parse("stake", stake)
		c.PoolShare = f.parse("pool_share", poolShare)
		c.Reward = f.parse("reward", reward)
		if f.err != nil {
			return nil, fmt.Errorf("storage.GetClaims: claim %s: %w", c.ID, f.err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
