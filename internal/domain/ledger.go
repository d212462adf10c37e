package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerEventKind is the type of a balance ledger movement.
type LedgerEventKind string

const (
	LedgerMint     LedgerEventKind = "MINT"
	LedgerBurn     LedgerEventKind = "BURN"
	LedgerTransfer LedgerEventKind = "TRANSFER"
	LedgerApprove  LedgerEventKind = "APPROVE"
)

// LedgerEvent is one journaled movement of the token ledger.
// Mint has a zero From, Burn a zero To. For Approve, From is the owner,
// To the spender and Amount the new allowance (not a delta). A Transfer made
// through an allowance carries the Spender whose allowance it consumed.
type LedgerEvent struct {
	ID      string
	Seq     int64
	Kind    LedgerEventKind
	From    common.Address
	To      common.Address
	Spender common.Address
	Amount  *big.Int
	At      time.Time
}

// AccountBalance is a point-in-time balance for reports.
type AccountBalance struct {
	Account common.Address
	Label   string
	Balance *big.Int
}
