package token_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/predmarket/internal/adapters/clock"
	"github.com/alejandrodnm/predmarket/internal/adapters/token"
	"github.com/alejandrodnm/predmarket/internal/domain"
	"github.com/alejandrodnm/predmarket/internal/ports"
)

var _ ports.BalanceLedger = (*token.Ledger)(nil)

var (
	alice  = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	market = common.HexToAddress("0x000000000000000000000000000000000000AAAA")
)

// mockJournal guarda los eventos en memoria; failWith simula una DB caída.
type mockJournal struct {
	events   []domain.LedgerEvent
	failWith error
}

func (m *mockJournal) AppendLedgerEvent(_ context.Context, e domain.LedgerEvent) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockJournal) LedgerEvents(_ context.Context) ([]domain.LedgerEvent, error) {
	return m.events, nil
}

func newLedger(j ports.LedgerJournal) *token.Ledger {
	return token.NewLedger(j, clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLedger_MintAndTransfer(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)

	require.NoError(t, l.Mint(ctx, alice, domain.Units(1000)))
	require.NoError(t, l.Transfer(ctx, alice, bob, domain.Units(250)))

	assert.Equal(t, domain.Units(750).String(), l.BalanceOf(alice).String())
	assert.Equal(t, domain.Units(250).String(), l.BalanceOf(bob).String())
	assert.Equal(t, domain.Units(1000).String(), l.TotalSupply().String())
}

func TestLedger_TransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)
	require.NoError(t, l.Mint(ctx, alice, domain.Units(10)))

	err := l.Transfer(ctx, alice, bob, domain.Units(11))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, domain.Units(10).String(), l.BalanceOf(alice).String(), "failed transfer leaves balances untouched")
	assert.Zero(t, l.BalanceOf(bob).Sign())
}

func TestLedger_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)

	for _, amt := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		assert.ErrorIs(t, l.Mint(ctx, alice, amt), domain.ErrInvalidQuantity)
		assert.ErrorIs(t, l.Transfer(ctx, alice, bob, amt), domain.ErrInvalidQuantity)
		assert.ErrorIs(t, l.TransferFrom(ctx, bob, alice, bob, amt), domain.ErrInvalidQuantity)
	}
	assert.ErrorIs(t, l.Approve(ctx, alice, bob, big.NewInt(-1)), domain.ErrInvalidQuantity)
	assert.ErrorIs(t, l.Mint(ctx, common.Address{}, domain.Units(1)), domain.ErrInvalidAddress)
}

func TestLedger_TransferFromSpendsAllowance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)
	require.NoError(t, l.Mint(ctx, alice, domain.Units(100)))
	require.NoError(t, l.Approve(ctx, alice, market, domain.Units(60)))

	require.NoError(t, l.TransferFrom(ctx, market, alice, market, domain.Units(40)))
	assert.Equal(t, domain.Units(20).String(), l.Allowance(alice, market).String())
	assert.Equal(t, domain.Units(60).String(), l.BalanceOf(alice).String())
	assert.Equal(t, domain.Units(40).String(), l.BalanceOf(market).String())

	err := l.TransferFrom(ctx, market, alice, market, domain.Units(21))
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
	assert.Equal(t, domain.Units(20).String(), l.Allowance(alice, market).String())
}

func TestLedger_TransferFromBalanceCheckedAfterAllowance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)
	require.NoError(t, l.Mint(ctx, alice, domain.Units(5)))
	require.NoError(t, l.Approve(ctx, alice, market, domain.Units(50)))

	err := l.TransferFrom(ctx, market, alice, market, domain.Units(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, domain.Units(50).String(), l.Allowance(alice, market).String(), "allowance not spent on failure")
}

func TestLedger_TransferFromSelfNeedsNoAllowance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)
	require.NoError(t, l.Mint(ctx, market, domain.Units(5)))

	require.NoError(t, l.TransferFrom(ctx, market, market, bob, domain.Units(5)))
	assert.Equal(t, domain.Units(5).String(), l.BalanceOf(bob).String())
}

func TestLedger_ApproveOverwrites(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)

	require.NoError(t, l.Approve(ctx, alice, market, domain.Units(10)))
	require.NoError(t, l.Approve(ctx, alice, market, domain.Units(3)))
	assert.Equal(t, domain.Units(3).String(), l.Allowance(alice, market).String())
}

func TestLedger_Burn(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)
	require.NoError(t, l.Mint(ctx, alice, domain.Units(10)))

	require.NoError(t, l.Burn(ctx, alice, domain.Units(4)))
	assert.Equal(t, domain.Units(6).String(), l.TotalSupply().String())
	assert.ErrorIs(t, l.Burn(ctx, alice, domain.Units(7)), domain.ErrInsufficientBalance)
}

func TestLedger_SupplyConserved(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)
	require.NoError(t, l.Mint(ctx, alice, domain.Units(1000)))
	require.NoError(t, l.Mint(ctx, bob, domain.Units(500)))
	require.NoError(t, l.Transfer(ctx, alice, bob, domain.Units(300)))
	require.NoError(t, l.Transfer(ctx, bob, market, domain.Units(123)))
	require.NoError(t, l.Burn(ctx, market, domain.Units(23)))

	total := new(big.Int)
	for _, b := range l.Balances() {
		total.Add(total, b.Balance)
	}
	assert.Equal(t, l.TotalSupply().String(), total.String())
	assert.Equal(t, domain.Units(1477).String(), total.String())
}

func TestLedger_JournalsEveryMovement(t *testing.T) {
	ctx := context.Background()
	j := &mockJournal{}
	l := newLedger(j)

	require.NoError(t, l.Mint(ctx, alice, domain.Units(10)))
	require.NoError(t, l.Approve(ctx, alice, market, domain.Units(5)))
	require.NoError(t, l.TransferFrom(ctx, market, alice, market, domain.Units(5)))
	// Los fallos no se registran
	assert.Error(t, l.Transfer(ctx, bob, alice, domain.Units(1)))

	require.Len(t, j.events, 3)
	assert.Equal(t, domain.LedgerMint, j.events[0].Kind)
	assert.Equal(t, domain.LedgerApprove, j.events[1].Kind)
	assert.Equal(t, domain.LedgerTransfer, j.events[2].Kind)
	assert.Equal(t, market, j.events[2].Spender)
	assert.Equal(t, common.Address{}, j.events[0].Spender)
	for i, e := range j.events {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.NotEmpty(t, e.ID)
	}
}

func TestLedger_JournalFailureDoesNotUndo(t *testing.T) {
	ctx := context.Background()
	l := newLedger(&mockJournal{failWith: errors.New("disk full")})

	require.NoError(t, l.Mint(ctx, alice, domain.Units(10)))
	assert.Equal(t, domain.Units(10).String(), l.BalanceOf(alice).String())
}

func TestLedger_ReplayRebuildsState(t *testing.T) {
	ctx := context.Background()
	j := &mockJournal{}
	live := newLedger(j)

	require.NoError(t, live.Mint(ctx, alice, domain.Units(100)))
	require.NoError(t, live.Mint(ctx, bob, domain.Units(100)))
	require.NoError(t, live.Approve(ctx, bob, market, domain.Units(30)))
	require.NoError(t, live.Transfer(ctx, alice, bob, domain.Units(40)))
	require.NoError(t, live.TransferFrom(ctx, market, bob, market, domain.Units(12)))
	require.NoError(t, live.Burn(ctx, bob, domain.Units(10)))

	restored := newLedger(nil)
	require.NoError(t, restored.Replay(j.events))

	for _, acct := range []common.Address{alice, bob, market} {
		assert.Equal(t, live.BalanceOf(acct).String(), restored.BalanceOf(acct).String(), acct.Hex())
	}
	assert.Equal(t, live.TotalSupply().String(), restored.TotalSupply().String())
	assert.Equal(t, domain.Units(18).String(), restored.Allowance(bob, market).String(), "spent allowance is replayed")
}

func TestLedger_ReplayRejectsAllowanceOverspend(t *testing.T) {
	l := newLedger(nil)
	err := l.Replay([]domain.LedgerEvent{
		{Seq: 1, Kind: domain.LedgerMint, To: alice, Amount: domain.Units(10)},
		{Seq: 2, Kind: domain.LedgerTransfer, From: alice, To: market, Spender: market, Amount: domain.Units(1)},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
}

func TestLedger_ReplayRejectsOverdraft(t *testing.T) {
	l := newLedger(nil)
	err := l.Replay([]domain.LedgerEvent{
		{Seq: 1, Kind: domain.LedgerTransfer, From: alice, To: bob, Amount: domain.Units(1)},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestLedger_BalancesSkipsZero(t *testing.T) {
	ctx := context.Background()
	l := newLedger(nil)
	require.NoError(t, l.Mint(ctx, alice, domain.Units(1)))
	require.NoError(t, l.Transfer(ctx, alice, bob, domain.Units(1)))

	balances := l.Balances()
	require.Len(t, balances, 1)
	assert.Equal(t, bob, balances[0].Account)
}
