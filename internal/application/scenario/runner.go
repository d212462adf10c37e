package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/predmarket/internal/domain"
	"github.com/alejandrodnm/predmarket/internal/ports"
)

// ErrUnexpectedOutcome indica que un paso no terminó como el guion esperaba.
var ErrUnexpectedOutcome = errors.New("unexpected step outcome")

// Market son las operaciones del servicio de mercados que usa el runner.
type Market interface {
	CreateMarket(ctx context.Context, caller common.Address, question, labelA, labelB string, duration time.Duration) (uint64, error)
	BuyByShares(ctx context.Context, caller common.Address, id uint64, outcome domain.Outcome, shares *big.Int) (domain.Trade, error)
	BuyByAmount(ctx context.Context, caller common.Address, id uint64, outcome domain.Outcome, budget *big.Int) (domain.Trade, error)
	ResolveMarket(ctx context.Context, caller common.Address, id uint64, winner domain.Outcome) error
	ClaimWinnings(ctx context.Context, caller common.Address, id uint64) (domain.Claim, error)
	Snapshot(id uint64) (domain.MarketSnapshot, error)
	Address() common.Address
	Resolver() common.Address
}

// Clock es un reloj que el guion puede adelantar.
type Clock interface {
	ports.Clock
	Advance(d time.Duration) time.Time
}

// Result resume la ejecución de un guion.
type Result struct {
	Steps    int
	Markets  []uint64
	Trades   []domain.Trade
	Claims   []domain.Claim
	Expected int // pasos que fallaron como se esperaba
}

// Runner ejecuta guiones paso a paso. No es seguro para uso concurrente.
type Runner struct {
	market   Market
	ledger   ports.BalanceLedger
	clock    Clock
	notifier ports.Notifier
	pace     *rate.Limiter // nil = sin pausa entre pasos

	accounts map[string]common.Address
	last     *uint64
	result   Result
}

// NewRunner crea un Runner. notifier puede ser nil.
func NewRunner(market Market, ledger ports.BalanceLedger, clock Clock, notifier ports.Notifier) *Runner {
	return &Runner{
		market:   market,
		ledger:   ledger,
		clock:    clock,
		notifier: notifier,
	}
}

// SetPace limita la reproducción a stepsPerSecond pasos por segundo, para
// seguir un guion en vivo. Cero o negativo lo desactiva.
func (r *Runner) SetPace(stepsPerSecond float64) {
	if stepsPerSecond <= 0 {
		r.pace = nil
		return
	}
	r.pace = rate.NewLimiter(rate.Limit(stepsPerSecond), 1)
}

// Labels devuelve dirección → nombre para las cuentas del guion y las
// reservadas, para que los reportes muestren nombres.
func Labels(s *Script, market, resolver common.Address) map[common.Address]string {
	out := map[common.Address]string{
		market:   AccountMarket,
		resolver: AccountResolver,
	}
	for name, addr := range s.AccountAddresses() {
		out[addr] = name
	}
	return out
}

// Run ejecuta todos los pasos en orden y se detiene en el primero que no
// termina como se esperaba.
func (r *Runner) Run(ctx context.Context, s *Script) (Result, error) {
	r.accounts = s.AccountAddresses()
	r.accounts[AccountMarket] = r.market.Address()
	r.accounts[AccountResolver] = r.market.Resolver()
	r.last = nil
	r.result = Result{}

	slog.Info("scenario: starting", "name", s.Name, "steps", len(s.Steps), "accounts", len(s.Accounts))

	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return r.result, fmt.Errorf("scenario.Run: %w", err)
		}
		if r.pace != nil {
			if err := r.pace.Wait(ctx); err != nil {
				return r.result, fmt.Errorf("scenario.Run: pace: %w", err)
			}
		}
		err := r.step(ctx, st)
		if err := r.check(st, err); err != nil {
			return r.result, fmt.Errorf("scenario.Run: step %d (%s): %w", i+1, st.Action, err)
		}
		r.result.Steps++
	}

	slog.Info("scenario: finished",
		"name", s.Name,
		"steps", r.result.Steps,
		"trades", len(r.result.Trades),
		"claims", len(r.result.Claims),
		"expected_errors", r.result.Expected,
	)
	return r.result, nil
}

// check compara el resultado del paso con expect_error.
func (r *Runner) check(st Step, err error) error {
	if st.ExpectError == "" {
		return err
	}
	want, _ := ErrorByName(st.ExpectError)
	switch {
	case err == nil:
		return fmt.Errorf("want %s, got success: %w", st.ExpectError, ErrUnexpectedOutcome)
	case !errors.Is(err, want):
		return fmt.Errorf("want %s, got %v: %w", st.ExpectError, err, ErrUnexpectedOutcome)
	}
	slog.Info("scenario: expected error", "action", st.Action, "err", err)
	r.result.Expected++
	return nil
}

func (r *Runner) step(ctx context.Context, st Step) error {
	switch st.Action {
	case ActionMint:
		amt, _ := domain.ParseAmount(st.Amount)
		return r.ledger.Mint(ctx, r.account(st.Account), amt)

	case ActionApprove:
		amt, _ := domain.ParseAmount(st.Amount)
		spender := st.Spender
		if spender == "" {
			spender = AccountMarket
		}
		return r.ledger.Approve(ctx, r.account(st.Account), r.account(spender), amt)

	case ActionCreate:
		d, _ := time.ParseDuration(st.Duration)
		id, err := r.market.CreateMarket(ctx, r.account(st.Account), st.Question, st.LabelA, st.LabelB, d)
		if err != nil {
			return err
		}
		r.last = &id
		r.result.Markets = append(r.result.Markets, id)
		return nil

	case ActionBuyShares, ActionBuyAmount:
		return r.buy(ctx, st)

	case ActionAdvance:
		d, _ := time.ParseDuration(st.Duration)
		now := r.clock.Advance(d)
		slog.Info("scenario: clock advanced", "by", d, "now", now.Format(time.RFC3339))
		return nil

	case ActionResolve:
		id, err := r.marketID(st)
		if err != nil {
			return err
		}
		outcome, _ := domain.ParseOutcome(st.Outcome)
		caller := AccountResolver
		if st.Account != "" {
			caller = st.Account
		}
		return r.market.ResolveMarket(ctx, r.account(caller), id, outcome)

	case ActionClaim:
		id, err := r.marketID(st)
		if err != nil {
			return err
		}
		claim, err := r.market.ClaimWinnings(ctx, r.account(st.Account), id)
		if err != nil {
			return err
		}
		r.result.Claims = append(r.result.Claims, claim)
		return nil

	case ActionReport:
		id, err := r.marketID(st)
		if err != nil {
			return err
		}
		snap, err := r.market.Snapshot(id)
		if err != nil {
			return err
		}
		if r.notifier != nil {
			if err := r.notifier.NotifyMarket(ctx, snap); err != nil {
				slog.Warn("scenario: notifier error", "err", err)
			}
		}
		return nil

	case ActionBalances:
		if r.notifier != nil {
			if err := r.notifier.NotifyBalances(ctx, r.balances()); err != nil {
				slog.Warn("scenario: notifier error", "err", err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

func (r *Runner) buy(ctx context.Context, st Step) error {
	id, err := r.marketID(st)
	if err != nil {
		return err
	}
	outcome, _ := domain.ParseOutcome(st.Outcome)
	amt, _ := domain.ParseAmount(st.Amount)
	caller := r.account(st.Account)

	before := r.ledger.BalanceOf(caller)
	var trade domain.Trade
	if st.Action == ActionBuyShares {
		trade, err = r.market.BuyByShares(ctx, caller, id, outcome, amt)
	} else {
		trade, err = r.market.BuyByAmount(ctx, caller, id, outcome, amt)
	}
	if err != nil {
		return err
	}
	after := r.ledger.BalanceOf(caller)

	slog.Info("scenario: bought",
		"account", st.Account,
		"market", id,
		"outcome", outcome.String(),
		"shares", domain.FormatAmount(trade.Shares),
		"paid", domain.FormatAmount(new(big.Int).Sub(before, after)),
		"avg_price", domain.FormatAmountFixed(trade.AveragePrice(), 6),
	)
	r.result.Trades = append(r.result.Trades, trade)
	return nil
}

// marketID devuelve el mercado del paso o, si no lo indica, el último creado.
func (r *Runner) marketID(st Step) (uint64, error) {
	if st.Market != nil {
		if *st.Market < 0 {
			return 0, fmt.Errorf("market %d: %w", *st.Market, domain.ErrMarketNotFound)
		}
		return uint64(*st.Market), nil
	}
	if r.last == nil {
		return 0, fmt.Errorf("no market created yet: %w", domain.ErrMarketNotFound)
	}
	return *r.last, nil
}

func (r *Runner) account(name string) common.Address {
	return r.accounts[name]
}

// balances devuelve los balances de las cuentas con nombre, en orden alfabético.
// Una dirección con dos nombres aparece una sola vez.
func (r *Runner) balances() []domain.AccountBalance {
	names := make([]string, 0, len(r.accounts))
	for name := range r.accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.AccountBalance, 0, len(names))
	seen := make(map[common.Address]bool, len(names))
	for _, name := range names {
		addr := r.accounts[name]
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, domain.AccountBalance{
			Account: addr,
			Label:   name,
			Balance: r.ledger.BalanceOf(addr),
		})
	}
	return out
}
