package storage

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// AppendLedgerEvent persiste un movimiento del token ledger. seq es la clave:
// un seq repetido es un error, no se sobreescribe.
func (s *SQLiteStorage) AppendLedgerEvent(ctx context.Context, e domain.LedgerEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events (seq, id, kind, from_addr, to_addr, spender, amount, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.ID, string(e.Kind), e.From.Hex(), e.To.Hex(), spenderText(e.Spender),
		amountText(e.Amount), timeText(e.At),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendLedgerEvent: seq %d: %w", e.Seq, err)
	}
	return nil
}

// LedgerEvents devuelve el journal completo en orden de seq.
func (s *SQLiteStorage) LedgerEvents(ctx context.Context) ([]domain.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kind, from_addr, to_addr, spender, amount, at
		FROM ledger_events
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("storage.LedgerEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.LedgerEvent
	for rows.Next() {
		var (
			e                               domain.LedgerEvent
			kind, from, to, spender, amount string
			at                              string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &kind, &from, &to, &spender, &amount, &at); err != nil {
			return nil, fmt.Errorf("storage.LedgerEvents: scan row: %w", err)
		}
		e.Kind = domain.LedgerEventKind(kind)
		if e.From, err = parseAddress("from_addr", from); err != nil {
			return nil, fmt.Errorf("storage.LedgerEvents: seq %d: %w", e.Seq, err)
		}
		if e.To, err = parseAddress("to_addr", to); err != nil {
			return nil, fmt.Errorf("storage.LedgerEvents: seq %d: %w", e.Seq, err)
		}
		if spender != "" {
			if e.Spender, err = parseAddress("spender", spender); err != nil {
				return nil, fmt.Errorf("storage.LedgerEvents: seq %d: %w", e.Seq, err)
			}
		}
		if e.Amount, err = parseAmountText("amount", amount); err != nil {
			return nil, fmt.Errorf("storage.LedgerEvents: seq %d: %w", e.Seq, err)
		}
		e.At = parseTimeText(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// spenderText guarda "" para transferencias directas, sin allowance de por medio.
func spenderText(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
