// Package lmsr prices binary markets with Hanson's Logarithmic Market Scoring Rule.
//
//	C(qA, qB) = b · ln(e^(qA/b) + e^(qB/b))
//
// Share quantities and token amounts go in and come out as 18-decimal fixed
// point integers. Internally values are apd decimals carried at 40
// significant digits; results are rounded to base units in the market
// maker's favour: costs up, proceeds and share grants down.
package lmsr

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

const (
	precision = 40

	// e^-120 is ~1e-52, below the working precision relative to the dominant term.
	expCutoff = 120

	maxSearchSteps = 256
)

// DefaultTick is the share grid used by budget purchases: 0.000001 share.
var DefaultTick = big.NewInt(1_000_000_000_000)

var cutoff = apd.New(expCutoff, 0)

// Engine is a stateless LMSR market maker for two outcomes. Safe for concurrent use.
type Engine struct {
	b    *apd.Decimal
	bRaw *big.Int
	tick *big.Int
	ln2  *apd.Decimal
}

// New creates an engine with liquidity parameter b (base units) and the
// smallest share increment granted by QuoteBuyByAmount. A nil or
// non-positive tick falls back to DefaultTick.
func New(liquidity, tick *big.Int) (*Engine, error) {
	if !domain.IsPositive(liquidity) {
		return nil, fmt.Errorf("lmsr.New: liquidity parameter must be positive: %w", domain.ErrInvalidQuantity)
	}
	if !domain.IsPositive(tick) {
		tick = DefaultTick
	}

	ln2 := new(apd.Decimal)
	if _, err := newContext(false).Ln(ln2, apd.New(2, 0)); err != nil {
		return nil, fmt.Errorf("lmsr.New: ln2: %w", err)
	}

	return &Engine{
		b:    toDecimal(liquidity),
		bRaw: domain.Clone(liquidity),
		tick: domain.Clone(tick),
		ln2:  ln2,
	}, nil
}

// Liquidity returns the b parameter in base units.
func (e *Engine) Liquidity() *big.Int { return domain.Clone(e.bRaw) }

// Tick returns the share grid of budget purchases.
func (e *Engine) Tick() *big.Int { return domain.Clone(e.tick) }

// Cost returns C(qA, qB) rounded up to base units.
func (e *Engine) Cost(qA, qB *big.Int) (*big.Int, error) {
	c, err := e.cost(qA, qB)
	if err != nil {
		return nil, fmt.Errorf("lmsr.Cost: %w", err)
	}
	return toUnits(c, true)
}

// MaxLoss returns b·ln2, the most the market maker can lose on a binary market.
func (e *Engine) MaxLoss() (*big.Int, error) {
	d := new(apd.Decimal)
	if _, err := newContext(true).Mul(d, e.b, e.ln2); err != nil {
		return nil, fmt.Errorf("lmsr.MaxLoss: %w", err)
	}
	return toUnits(d, true)
}

// QuoteBuyByShares returns the tokens needed to mint delta more shares of
// outcome at the current totals: ceil(C(q+Δ) − C(q)).
func (e *Engine) QuoteBuyByShares(outcome domain.Outcome, qA, qB, delta *big.Int) (*big.Int, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("lmsr.QuoteBuyByShares: %w", domain.ErrInvalidOutcome)
	}
	if !domain.IsPositive(delta) {
		return nil, fmt.Errorf("lmsr.QuoteBuyByShares: delta must be positive: %w", domain.ErrInvalidQuantity)
	}
	before, err := e.cost(qA, qB)
	if err != nil {
		return nil, fmt.Errorf("lmsr.QuoteBuyByShares: %w", err)
	}
	price, err := e.buyCost(before, outcome, qA, qB, delta)
	if err != nil {
		return nil, fmt.Errorf("lmsr.QuoteBuyByShares: %w", err)
	}
	return price, nil
}

// QuoteSellByShares returns the tokens a holder would get back for delta
// shares of outcome: floor(C(q) − C(q−Δ)). The market never sells, but the
// quote bounds what a round trip can return.
func (e *Engine) QuoteSellByShares(outcome domain.Outcome, qA, qB, delta *big.Int) (*big.Int, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("lmsr.QuoteSellByShares: %w", domain.ErrInvalidOutcome)
	}
	if !domain.IsPositive(delta) {
		return nil, fmt.Errorf("lmsr.QuoteSellByShares: delta must be positive: %w", domain.ErrInvalidQuantity)
	}
	a, b := domain.Clone(qA), domain.Clone(qB)
	side := a
	if outcome == domain.OutcomeB {
		side = b
	}
	if delta.Cmp(side) > 0 {
		return nil, fmt.Errorf("lmsr.QuoteSellByShares: delta exceeds outstanding shares: %w", domain.ErrInvalidQuantity)
	}

	before, err := e.cost(qA, qB)
	if err != nil {
		return nil, fmt.Errorf("lmsr.QuoteSellByShares: %w", err)
	}
	side.Sub(side, delta)
	after, err := e.cost(a, b)
	if err != nil {
		return nil, fmt.Errorf("lmsr.QuoteSellByShares: %w", err)
	}

	diff := new(apd.Decimal)
	if _, err := newContext(false).Sub(diff, before, after); err != nil {
		return nil, fmt.Errorf("lmsr.QuoteSellByShares: %w", err)
	}
	return toUnits(diff, false)
}

// QuoteBuyByAmount returns the largest share quantity, on the tick grid,
// whose QuoteBuyByShares price does not exceed budget. Cost is strictly
// increasing in Δ, so an exponential search followed by bisection converges.
func (e *Engine) QuoteBuyByAmount(outcome domain.Outcome, qA, qB, budget *big.Int) (*big.Int, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("lmsr.QuoteBuyByAmount: %w", domain.ErrInvalidOutcome)
	}
	if !domain.IsPositive(budget) {
		return nil, fmt.Errorf("lmsr.QuoteBuyByAmount: budget must be positive: %w", domain.ErrInvalidQuantity)
	}
	before, err := e.cost(qA, qB)
	if err != nil {
		return nil, fmt.Errorf("lmsr.QuoteBuyByAmount: %w", err)
	}

	fits := func(ticks *big.Int) (bool, error) {
		delta := new(big.Int).Mul(ticks, e.tick)
		price, err := e.buyCost(before, outcome, qA, qB, delta)
		if err != nil {
			return false, err
		}
		return price.Cmp(budget) <= 0, nil
	}

	// lo is always affordable, hi never is.
	lo, hi := new(big.Int), big.NewInt(1)
	for step := 0; ; step++ {
		if step >= maxSearchSteps {
			return nil, fmt.Errorf("lmsr.QuoteBuyByAmount: search did not converge")
		}
		ok, err := fits(hi)
		if err != nil {
			return nil, fmt.Errorf("lmsr.QuoteBuyByAmount: %w", err)
		}
		if !ok {
			break
		}
		lo.Set(hi)
		hi.Lsh(hi, 1)
	}
	if lo.Sign() == 0 {
		return nil, fmt.Errorf("lmsr.QuoteBuyByAmount: budget %s below one tick: %w",
			domain.FormatAmount(budget), domain.ErrInsufficientBudget)
	}

	one := big.NewInt(1)
	gap := new(big.Int)
	for gap.Sub(hi, lo).Cmp(one) > 0 {
		mid := new(big.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		ok, err := fits(mid)
		if err != nil {
			return nil, fmt.Errorf("lmsr.QuoteBuyByAmount: %w", err)
		}
		if ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo.Mul(lo, e.tick), nil
}

// MarginalPrice returns ∂C/∂q for outcome, in base units (1e18 = certainty).
func (e *Engine) MarginalPrice(outcome domain.Outcome, qA, qB *big.Int) (*big.Int, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("lmsr.MarginalPrice: %w", domain.ErrInvalidOutcome)
	}
	pa, pb, err := e.MarginalPrices(qA, qB)
	if err != nil {
		return nil, err
	}
	if outcome == domain.OutcomeB {
		return pb, nil
	}
	return pa, nil
}

// MarginalPrices returns both marginal prices. The A price is rounded half
// to even and the B price is its complement, so they always sum to exactly 1e18.
func (e *Engine) MarginalPrices(qA, qB *big.Int) (priceA, priceB *big.Int, err error) {
	c := newContext(false)
	ed := apd.MakeErrDecimal(c)

	// priceA = 1 / (1 + e^((qB−qA)/b))
	x := new(apd.Decimal)
	ed.Sub(x, toDecimal(qB), toDecimal(qA))
	ed.Quo(x, x, e.b)
	if err := ed.Err(); err != nil {
		return nil, nil, fmt.Errorf("lmsr.MarginalPrices: %w", err)
	}

	switch {
	case x.Cmp(cutoff) > 0:
		priceA = new(big.Int)
	case new(apd.Decimal).Neg(x).Cmp(cutoff) > 0:
		priceA = domain.Clone(domain.One)
	default:
		one := apd.New(1, 0)
		p := new(apd.Decimal)
		ed.Exp(p, x)
		ed.Add(p, p, one)
		ed.Quo(p, one, p)
		if err := ed.Err(); err != nil {
			return nil, nil, fmt.Errorf("lmsr.MarginalPrices: %w", err)
		}
		priceA, err = toUnitsHalfEven(p)
		if err != nil {
			return nil, nil, fmt.Errorf("lmsr.MarginalPrices: %w", err)
		}
	}
	priceB = new(big.Int).Sub(domain.One, priceA)
	return priceA, priceB, nil
}

// --- helpers internos ---

// cost evalúa C(qA, qB) con el truco log-sum-exp: m + b·ln(Σ e^((q−m)/b)).
func (e *Engine) cost(qA, qB *big.Int) (*apd.Decimal, error) {
	if qA == nil || qB == nil || qA.Sign() < 0 || qB.Sign() < 0 {
		return nil, fmt.Errorf("negative or missing share totals: %w", domain.ErrInvalidQuantity)
	}
	c := newContext(false)
	ed := apd.MakeErrDecimal(c)

	a, b := toDecimal(qA), toDecimal(qB)
	m := a
	if b.Cmp(a) > 0 {
		m = b
	}

	sum := new(apd.Decimal)
	for _, q := range [2]*apd.Decimal{a, b} {
		x := new(apd.Decimal)
		ed.Sub(x, q, m)
		ed.Quo(x, x, e.b)
		if new(apd.Decimal).Neg(x).Cmp(cutoff) > 0 {
			continue
		}
		ed.Exp(x, x)
		ed.Add(sum, sum, x)
	}

	res := new(apd.Decimal)
	ed.Ln(res, sum)
	ed.Mul(res, res, e.b)
	ed.Add(res, res, m)
	if err := ed.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// buyCost devuelve ceil(C(q+Δ) − before) en unidades base, nunca menos de 1:
// con un lado muy por detrás la diferencia cae bajo la precisión de trabajo.
func (e *Engine) buyCost(before *apd.Decimal, outcome domain.Outcome, qA, qB, delta *big.Int) (*big.Int, error) {
	a, b := domain.Clone(qA), domain.Clone(qB)
	if outcome == domain.OutcomeB {
		b.Add(b, delta)
	} else {
		a.Add(a, delta)
	}
	after, err := e.cost(a, b)
	if err != nil {
		return nil, err
	}
	diff := new(apd.Decimal)
	if _, err := newContext(true).Sub(diff, after, before); err != nil {
		return nil, err
	}
	units, err := toUnits(diff, true)
	if err != nil {
		return nil, err
	}
	if units.Sign() <= 0 {
		units.SetInt64(1)
	}
	return units, nil
}

func newContext(roundUp bool) *apd.Context {
	c := apd.BaseContext.WithPrecision(precision)
	if roundUp {
		c.Rounding = apd.RoundCeiling
	} else {
		c.Rounding = apd.RoundHalfEven
	}
	return c
}

// toDecimal interpreta x como un valor de 18 decimales.
func toDecimal(x *big.Int) *apd.Decimal {
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(x), -domain.Decimals)
}

// toUnits escala a unidades base y redondea hacia arriba (up) o hacia abajo.
func toUnits(x *apd.Decimal, up bool) (*big.Int, error) {
	c := apd.BaseContext.WithPrecision(precision)
	if up {
		c.Rounding = apd.RoundCeiling
	} else {
		c.Rounding = apd.RoundFloor
	}
	return roundScaled(c, x)
}

func toUnitsHalfEven(x *apd.Decimal) (*big.Int, error) {
	return roundScaled(newContext(false), x)
}

func roundScaled(c *apd.Context, x *apd.Decimal) (*big.Int, error) {
	scaled := new(apd.Decimal).Set(x)
	scaled.Exponent += domain.Decimals
	if _, err := c.RoundToIntegralValue(scaled, scaled); err != nil {
		return nil, err
	}
	text := scaled.Text('f')
	n, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("cannot convert %q to base units", text)
	}
	return n, nil
}
