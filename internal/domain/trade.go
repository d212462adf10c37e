package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeKind tells how the buyer sized the purchase.
type TradeKind string

const (
	TradeByShares TradeKind = "BY_SHARES"
	TradeByAmount TradeKind = "BY_AMOUNT"
)

// Trade is the receipt of an accepted buy.
type Trade struct {
	ID       string
	MarketID uint64
	Account  common.Address
	Kind     TradeKind
	Outcome  Outcome
	Shares   *big.Int // shares credited to the buyer
	Cost     *big.Int // tokens debited from the buyer
	PriceA   *big.Int // marginal price of A after the trade
	PriceB   *big.Int
	At       time.Time
}

// AveragePrice returns Cost/Shares scaled to 18 decimals, rounded down.
func (t Trade) AveragePrice() *big.Int {
	if !IsPositive(t.Shares) {
		return new(big.Int)
	}
	return MulDivDown(t.Cost, One, t.Shares)
}

// Claim is the receipt of a paid claim.
type Claim struct {
	ID        string
	MarketID  uint64
	Account   common.Address
	Outcome   Outcome
	Shares    *big.Int // winning shares burned
	Stake     *big.Int // the account's own payments on the winning side
	PoolShare *big.Int // pro-rata slice of the reward pool
	Reward    *big.Int // Stake + PoolShare
	At        time.Time
}
