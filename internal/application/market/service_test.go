package market_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/predmarket/internal/adapters/clock"
	"github.com/alejandrodnm/predmarket/internal/adapters/storage"
	"github.com/alejandrodnm/predmarket/internal/adapters/token"
	"github.com/alejandrodnm/predmarket/internal/application/market"
	"github.com/alejandrodnm/predmarket/internal/domain"
	"github.com/alejandrodnm/predmarket/internal/ports"
)

var (
	escrow   = common.HexToAddress("0x00000000000000000000000000000000000E5C40")
	resolver = common.HexToAddress("0x000000000000000000000000000000000000BEEF")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	carol    = common.HexToAddress("0x0000000000000000000000000000000000CA401E")

	genesis = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day     = 86400 * time.Second
)

// initialCost = ceil(100 + 100·ln2) con L = b = 100.
var initialCost, _ = new(big.Int).SetString("169314718055994530942", 10)

// mockStore implementa ports.MarketStore en memoria.
type mockStore struct {
	mu        sync.Mutex
	markets   map[uint64]domain.Market
	positions map[string]domain.Position
	trades    []domain.Trade
	claims    []domain.Claim
	failWith  error
}

func newMockStore() *mockStore {
	return &mockStore{
		markets:   make(map[uint64]domain.Market),
		positions: make(map[string]domain.Position),
	}
}

func (m *mockStore) SaveMarket(_ context.Context, mk domain.Market) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.markets[mk.ID] = mk.Clone()
	return nil
}

func (m *mockStore) SavePosition(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.positions[p.Account.Hex()+"/"+big.NewInt(int64(p.MarketID)).String()] = p.Clone()
	return nil
}

func (m *mockStore) SaveTrade(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.trades = append(m.trades, t)
	return nil
}

func (m *mockStore) SaveClaim(_ context.Context, c domain.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.claims = append(m.claims, c)
	return nil
}

func (m *mockStore) LoadMarkets(context.Context) ([]domain.Market, error) { return nil, nil }

func (m *mockStore) LoadPositions(context.Context) ([]domain.Position, error) { return nil, nil }

func (m *mockStore) GetTrades(context.Context, uint64) ([]domain.Trade, error) { return m.trades, nil }

func (m *mockStore) GetClaims(context.Context, uint64) ([]domain.Claim, error) { return m.claims, nil }

func (m *mockStore) Close() error { return nil }

var _ ports.MarketStore = (*mockStore)(nil)

type fixture struct {
	svc    *market.Service
	ledger *token.Ledger
	clock  *clock.Manual
	store  *mockStore
}

// newFixture crea un servicio con L = b = 100 y tres cuentas con 10000 tokens
// cada una, todas con allowance ilimitado hacia el escrow.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	clk := clock.NewManual(genesis)
	ledger := token.NewLedger(nil, clk)
	store := newMockStore()

	svc, err := market.New(market.Config{Address: escrow, Resolver: resolver}, ledger, store, clk)
	require.NoError(t, err)

	for _, acct := range []common.Address{alice, bob, carol} {
		require.NoError(t, ledger.Mint(ctx, acct, domain.Units(10_000)))
		require.NoError(t, ledger.Approve(ctx, acct, escrow, domain.Units(1_000_000)))
	}
	return &fixture{svc: svc, ledger: ledger, clock: clk, store: store}
}

func (f *fixture) create(t *testing.T) uint64 {
	t.Helper()
	id, err := f.svc.CreateMarket(context.Background(), alice, "Will it rain tomorrow?", "Yes", "No", day)
	require.NoError(t, err)
	return id
}

func balance(f *fixture, acct common.Address) string {
	return f.ledger.BalanceOf(acct).String()
}

func TestNew_RequiresAddresses(t *testing.T) {
	clk := clock.NewManual(genesis)
	ledger := token.NewLedger(nil, clk)

	_, err := market.New(market.Config{Resolver: resolver}, ledger, nil, clk)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = market.New(market.Config{Address: escrow}, ledger, nil, clk)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = market.New(market.Config{Address: escrow, Resolver: resolver, LiquidityParam: big.NewInt(0)}, ledger, nil, clk)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, domain.Units(100).String(), f.svc.InitialLiquidity().String())
	assert.Equal(t, domain.Units(100).String(), f.svc.LiquidityParam().String())
	assert.Equal(t, escrow, f.svc.Address())
	assert.Equal(t, resolver, f.svc.Resolver())
}

func TestCreateMarket_SeedsAndEscrows(t *testing.T) {
	f := newFixture(t)

	id := f.create(t)
	assert.Equal(t, uint64(0), id)

	m, err := f.svc.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, "Will it rain tomorrow?", m.Question)
	assert.Equal(t, alice, m.Creator)
	assert.Equal(t, domain.PhaseOpen, m.Phase)
	assert.Equal(t, domain.OutcomeNone, m.Winner)
	assert.True(t, genesis.Add(day).Equal(m.CloseTime))
	assert.Equal(t, domain.Units(100).String(), m.SharesA.String())
	assert.Equal(t, domain.Units(100).String(), m.SharesB.String())
	assert.Equal(t, initialCost.String(), m.InitialCost.String())

	// El creador paga el escrow; el servicio lo guarda
	assert.Equal(t, initialCost.String(), balance(f, escrow))
	want := new(big.Int).Sub(domain.Units(10_000), initialCost)
	assert.Equal(t, want.String(), balance(f, alice))

	cost, err := f.svc.GetMarketCost(id)
	require.NoError(t, err)
	assert.Equal(t, initialCost.String(), cost.String())

	pa, pb, err := f.svc.GetMarginalPrices(id)
	require.NoError(t, err)
	half := new(big.Int).Quo(domain.One, big.NewInt(2))
	assert.Equal(t, half.String(), pa.String())
	assert.Equal(t, half.String(), pb.String())

	second := f.create(t)
	assert.Equal(t, uint64(1), second)
	assert.Equal(t, uint64(2), f.svc.MarketCount())

	require.Contains(t, f.store.markets, uint64(1), "market persisted")
}

func TestCreateMarket_InvalidDuration(t *testing.T) {
	f := newFixture(t)
	for _, d := range []time.Duration{0, -time.Hour, 500 * time.Millisecond} {
		_, err := f.svc.CreateMarket(context.Background(), alice, "Q?", "", "", d)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration, "duration %s", d)
	}
	assert.Zero(t, f.svc.MarketCount())
	assert.Equal(t, domain.Units(10_000).String(), balance(f, alice))
}

func TestCreateMarket_DefaultLabels(t *testing.T) {
	f := newFixture(t)
	id, err := f.svc.CreateMarket(context.Background(), alice, "  Q?  ", "", " ", day)
	require.NoError(t, err)

	m, err := f.svc.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, "Q?", m.Question)
	assert.Equal(t, market.DefaultLabelA, m.LabelA)
	assert.Equal(t, market.DefaultLabelB, m.LabelB)
}

func TestCreateMarket_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string][3]string{
		"empty question": {"", "Yes", "No"},
		"long question":  {strings.Repeat("q", 161), "Yes", "No"},
		"long label":     {"Q?", strings.Repeat("x", 21), "No"},
		"same labels":    {"Q?", "Up", "Up"},
	}
	for name, in := range cases {
		_, err := f.svc.CreateMarket(ctx, alice, in[0], in[1], in[2], day)
		assert.ErrorIs(t, err, domain.ErrInvalidMarket, name)
	}

	_, err := f.svc.CreateMarket(ctx, common.Address{}, "Q?", "", "", day)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	assert.Zero(t, f.svc.MarketCount())
}

func TestCreateMarket_NeedsAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.Approve(ctx, alice, escrow, domain.Units(1)))

	_, err := f.svc.CreateMarket(ctx, alice, "Q?", "", "", day)
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
	assert.Zero(t, f.svc.MarketCount())
	assert.Zero(t, f.ledger.BalanceOf(escrow).Sign())
}

func TestResolveMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)

	err := f.svc.ResolveMarket(ctx, alice, id, domain.OutcomeA)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.svc.ResolveMarket(ctx, resolver, id, domain.OutcomeA)
	assert.ErrorIs(t, err, domain.ErrTooEarly)

	f.clock.Advance(day - time.Second)
	err = f.svc.ResolveMarket(ctx, resolver, id, domain.OutcomeA)
	assert.ErrorIs(t, err, domain.ErrTooEarly, "one second before close")

	f.clock.Advance(time.Second)
	err = f.svc.ResolveMarket(ctx, resolver, id, domain.OutcomeNone)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	require.NoError(t, f.svc.ResolveMarket(ctx, resolver, id, domain.OutcomeB))

	m, err := f.svc.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseResolved, m.Phase)
	assert.Equal(t, domain.OutcomeB, m.Winner)
	assert.True(t, genesis.Add(day).Equal(m.ResolvedAt))
	assert.Equal(t, "RESOLVED", m.Status(f.clock.Now()))

	err = f.svc.ResolveMarket(ctx, resolver, id, domain.OutcomeA)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestResolveMarket_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResolveMarket(context.Background(), resolver, 7, domain.OutcomeA)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestQueries_UnknownMarket(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetMarketInfo(0)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = f.svc.GetMarketCost(0)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, _, err = f.svc.GetMarginalPrices(0)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, _, err = f.svc.GetSharesBalance(0, bob)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, _, err = f.svc.GetMarketPayments(0)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = f.svc.Positions(0)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = f.svc.Snapshot(0)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestQueries_ReturnCopies(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)

	m, err := f.svc.GetMarketInfo(id)
	require.NoError(t, err)
	m.SharesA.SetInt64(0)

	again, err := f.svc.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, domain.Units(100).String(), again.SharesA.String())
}

func TestStoreFailure_DoesNotUndoOperation(t *testing.T) {
	f := newFixture(t)
	f.store.failWith = errors.New("disk full")

	id := f.create(t)
	_, err := f.svc.BuyByShares(context.Background(), bob, id, domain.OutcomeA, domain.Units(10))
	require.NoError(t, err)

	a, _, err := f.svc.GetSharesBalance(id, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.Units(10).String(), a.String())
}

func TestRestore_RebuildsFromSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	clk := clock.NewManual(genesis)
	ledger := token.NewLedger(db, clk)
	cfg := market.Config{Address: escrow, Resolver: resolver}
	svc, err := market.New(cfg, ledger, db, clk)
	require.NoError(t, err)

	for _, acct := range []common.Address{alice, bob} {
		require.NoError(t, ledger.Mint(ctx, acct, domain.Units(5_000)))
		require.NoError(t, ledger.Approve(ctx, acct, escrow, domain.Units(5_000)))
	}
	id, err := svc.CreateMarket(ctx, alice, "Restart-safe?", "", "", day)
	require.NoError(t, err)
	_, err = svc.BuyByShares(ctx, bob, id, domain.OutcomeB, domain.Units(250))
	require.NoError(t, err)

	// Proceso nuevo sobre la misma base de datos
	events, err := db.LedgerEvents(ctx)
	require.NoError(t, err)
	ledger2 := token.NewLedger(db, clk)
	require.NoError(t, ledger2.Replay(events))
	svc2, err := market.New(cfg, ledger2, db, clk)
	require.NoError(t, err)
	n, err := svc2.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	before, err := svc.Snapshot(id)
	require.NoError(t, err)
	after, err := svc2.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, before.Market.SharesB.String(), after.Market.SharesB.String())
	assert.Equal(t, before.Market.PaymentsB.String(), after.Market.PaymentsB.String())
	assert.Equal(t, before.Cost.String(), after.Cost.String())
	require.Len(t, after.Positions, 1)
	assert.Equal(t, bob, after.Positions[0].Account)

	for _, acct := range []common.Address{alice, bob, escrow} {
		assert.Equal(t, ledger.BalanceOf(acct).String(), ledger2.BalanceOf(acct).String(), acct.Hex())
	}

	// El servicio restaurado sigue operando y numerando desde donde estaba
	id2, err := svc2.CreateMarket(ctx, bob, "Second?", "", "", day)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id2)

	_, err = svc2.Restore(ctx)
	assert.Error(t, err, "restore only on an empty service")
}
