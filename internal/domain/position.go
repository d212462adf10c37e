package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position is what one participant holds in one market.
type Position struct {
	MarketID uint64
	Account  common.Address
	SharesA  *big.Int
	SharesB  *big.Int
	PaidA    *big.Int // tokens this account paid for A shares (its own stake)
	PaidB    *big.Int
	Claimed  bool
}

// NewPosition returns an empty position with all amounts at zero.
func NewPosition(marketID uint64, account common.Address) Position {
	return Position{
		MarketID: marketID,
		Account:  account,
		SharesA:  new(big.Int),
		SharesB:  new(big.Int),
		PaidA:    new(big.Int),
		PaidB:    new(big.Int),
	}
}

// Shares returns the shares held on outcome o.
func (p Position) Shares(o Outcome) *big.Int {
	if o == OutcomeB {
		return p.SharesB
	}
	return p.SharesA
}

// Paid returns the tokens paid for shares on outcome o.
func (p Position) Paid(o Outcome) *big.Int {
	if o == OutcomeB {
		return p.PaidB
	}
	return p.PaidA
}

// IsEmpty is true when the account never bought anything in the market.
func (p Position) IsEmpty() bool {
	return p.SharesA.Sign() == 0 && p.SharesB.Sign() == 0 &&
		p.PaidA.Sign() == 0 && p.PaidB.Sign() == 0 && !p.Claimed
}

// Clone returns a deep copy.
func (p Position) Clone() Position {
	c := p
	c.SharesA = Clone(p.SharesA)
	c.SharesB = Clone(p.SharesB)
	c.PaidA = Clone(p.PaidA)
	c.PaidB = Clone(p.PaidB)
	return c
}
