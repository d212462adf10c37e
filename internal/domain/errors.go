package domain

import "errors"

// Market and ledger failures. Callers match them with errors.Is; every
// operation that returns one of these leaves the state untouched.
var (
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInvalidDuration       = errors.New("invalid duration")
	ErrInsufficientBudget    = errors.New("insufficient budget")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrMarketClosed          = errors.New("market closed")
	ErrTooEarly              = errors.New("too early to resolve")
	ErrAlreadyResolved       = errors.New("market already resolved")
	ErrNoWinningShares       = errors.New("no winning shares")
	ErrAlreadyClaimed        = errors.New("winnings already claimed")
	ErrUnauthorized          = errors.New("unauthorized")

	ErrMarketNotFound = errors.New("market not found")
	ErrInvalidOutcome = errors.New("invalid outcome")
	ErrNotResolved    = errors.New("market not resolved")
	ErrInvalidMarket  = errors.New("invalid market parameters")
	ErrInvalidAddress = errors.New("invalid address")
)
