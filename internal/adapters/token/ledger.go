package token

// ledger.go — token fungible en memoria con semántica ERC-20.
//
// Cada movimiento (mint, burn, transfer, approve) se valida completo antes de
// tocar balances y se registra en el journal si hay uno configurado. Replay
// reconstruye el estado desde ese journal al arrancar.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alejandrodnm/predmarket/internal/domain"
	"github.com/alejandrodnm/predmarket/internal/ports"
)

// Ledger implements ports.BalanceLedger.
type Ledger struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	supply     *big.Int
	seq        int64

	journal ports.LedgerJournal // nil = sin persistencia
	clock   ports.Clock
}

// NewLedger creates an empty ledger. journal may be nil.
func NewLedger(journal ports.LedgerJournal, clock ports.Clock) *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		supply:     new(big.Int),
		journal:    journal,
		clock:      clock,
	}
}

// Mint creates amount new tokens for to.
func (l *Ledger) Mint(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("token.Mint: %w", err)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("token.Mint: mint to zero address: %w", domain.ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.credit(to, amount)
	l.supply.Add(l.supply, amount)
	l.record(ctx, domain.LedgerMint, common.Address{}, to, common.Address{}, amount)
	return nil
}

// Burn destroys amount tokens held by from.
func (l *Ledger) Burn(ctx context.Context, from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("token.Burn: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balanceLocked(from).Cmp(amount) < 0 {
		return fmt.Errorf("token.Burn: %s: %w", from.Hex(), domain.ErrInsufficientBalance)
	}
	l.debit(from, amount)
	l.supply.Sub(l.supply, amount)
	l.record(ctx, domain.LedgerBurn, from, common.Address{}, common.Address{}, amount)
	return nil
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("token.Transfer: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.move(from, to, amount); err != nil {
		return fmt.Errorf("token.Transfer: %w", err)
	}
	l.record(ctx, domain.LedgerTransfer, from, to, common.Address{}, amount)
	return nil
}

// TransferFrom moves amount from owner to to, spending spender's allowance.
// An owner moving its own tokens does not need an allowance.
func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("token.TransferFrom: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var allowance *big.Int
	if spender != owner {
		allowance = l.allowanceLocked(owner, spender)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("token.TransferFrom: %s allows %s only %s, need %s: %w",
				owner.Hex(), spender.Hex(), domain.FormatAmount(allowance), domain.FormatAmount(amount),
				domain.ErrInsufficientAllowance)
		}
	}
	if err := l.move(owner, to, amount); err != nil {
		return fmt.Errorf("token.TransferFrom: %w", err)
	}
	var via common.Address
	if allowance != nil {
		l.setAllowance(owner, spender, new(big.Int).Sub(allowance, amount))
		via = spender
	}
	l.record(ctx, domain.LedgerTransfer, owner, to, via, amount)
	return nil
}

// Approve sets (not increases) the amount spender may move out of owner.
func (l *Ledger) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token.Approve: %w", domain.ErrInvalidQuantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.setAllowance(owner, spender, domain.Clone(amount))
	l.record(ctx, domain.LedgerApprove, owner, spender, common.Address{}, amount)
	return nil
}

// BalanceOf returns a copy of account's balance.
func (l *Ledger) BalanceOf(account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Clone(l.balanceLocked(account))
}

// Allowance returns what spender may still move out of owner.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Clone(l.allowanceLocked(owner, spender))
}

// TotalSupply returns minted minus burned tokens.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Clone(l.supply)
}

// Balances returns every non-zero balance sorted by address.
func (l *Ledger) Balances() []domain.AccountBalance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AccountBalance, 0, len(l.balances))
	for acct, bal := range l.balances {
		if bal.Sign() == 0 {
			continue
		}
		out = append(out, domain.AccountBalance{Account: acct, Balance: domain.Clone(bal)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.Cmp(out[j].Account) < 0
	})
	return out
}

// Replay applies journaled events to an empty ledger without journaling them again.
func (l *Ledger) Replay(events []domain.LedgerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range events {
		switch e.Kind {
		case domain.LedgerMint:
			l.credit(e.To, e.Amount)
			l.supply.Add(l.supply, e.Amount)
		case domain.LedgerBurn:
			if l.balanceLocked(e.From).Cmp(e.Amount) < 0 {
				return fmt.Errorf("token.Replay: event %d burns more than %s holds: %w", e.Seq, e.From.Hex(), domain.ErrInsufficientBalance)
			}
			l.debit(e.From, e.Amount)
			l.supply.Sub(l.supply, e.Amount)
		case domain.LedgerTransfer:
			var allowance *big.Int
			if e.Spender != (common.Address{}) {
				allowance = l.allowanceLocked(e.From, e.Spender)
				if allowance.Cmp(e.Amount) < 0 {
					return fmt.Errorf("token.Replay: event %d spends more than %s allows: %w", e.Seq, e.Spender.Hex(), domain.ErrInsufficientAllowance)
				}
			}
			if err := l.move(e.From, e.To, e.Amount); err != nil {
				return fmt.Errorf("token.Replay: event %d: %w", e.Seq, err)
			}
			if allowance != nil {
				l.setAllowance(e.From, e.Spender, new(big.Int).Sub(allowance, e.Amount))
			}
		case domain.LedgerApprove:
			l.setAllowance(e.From, e.To, domain.Clone(e.Amount))
		default:
			return fmt.Errorf("token.Replay: event %d: unknown kind %q", e.Seq, e.Kind)
		}
		if e.Seq > l.seq {
			l.seq = e.Seq
		}
	}
	return nil
}

// --- helpers internos (requieren l.mu) ---

func (l *Ledger) move(from, to common.Address, amount *big.Int) error {
	if bal := l.balanceLocked(from); bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s holds %s, need %s: %w",
			from.Hex(), domain.FormatAmount(bal), domain.FormatAmount(amount), domain.ErrInsufficientBalance)
	}
	l.debit(from, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(acct common.Address, amount *big.Int) {
	bal, ok := l.balances[acct]
	if !ok {
		bal = new(big.Int)
		l.balances[acct] = bal
	}
	bal.Add(bal, amount)
}

func (l *Ledger) debit(acct common.Address, amount *big.Int) {
	bal := l.balances[acct]
	bal.Sub(bal, amount)
}

func (l *Ledger) balanceLocked(acct common.Address) *big.Int {
	if bal, ok := l.balances[acct]; ok {
		return bal
	}
	return new(big.Int)
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *big.Int {
	if byOwner, ok := l.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

func (l *Ledger) setAllowance(owner, spender common.Address, amount *big.Int) {
	byOwner, ok := l.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		l.allowances[owner] = byOwner
	}
	byOwner[spender] = amount
}

// record journals a movement that has already been applied. A journal failure
// is logged and does not undo the movement.
func (l *Ledger) record(ctx context.Context, kind domain.LedgerEventKind, from, to, spender common.Address, amount *big.Int) {
	l.seq++
	if l.journal == nil {
		return
	}
	e := domain.LedgerEvent{
		ID:      uuid.New().String(),
		Seq:     l.seq,
		Kind:    kind,
		From:    from,
		To:      to,
		Spender: spender,
		Amount:  domain.Clone(amount),
		At:      l.clock.Now(),
	}
	if err := l.journal.AppendLedgerEvent(ctx, e); err != nil {
		slog.Warn("token: failed to journal ledger event",
			"kind", kind, "seq", e.Seq, "err", err)
	}
}

func checkAmount(amount *big.Int) error {
	if !domain.IsPositive(amount) {
		return domain.ErrInvalidQuantity
	}
	return nil
}
