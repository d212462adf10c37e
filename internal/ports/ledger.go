package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceLedger es el token fungible contra el que se cobran compras y se pagan claims.
// Cada operación de escritura es atómica: o se aplica entera o devuelve error sin cambios.
type BalanceLedger interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) error

	// Transfer mueve tokens del propio from a to.
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error

	// TransferFrom mueve tokens de owner a to consumiendo el allowance de spender.
	// Falla con domain.ErrInsufficientAllowance o domain.ErrInsufficientBalance.
	TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *big.Int) error

	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error

	BalanceOf(account common.Address) *big.Int
	Allowance(owner, spender common.Address) *big.Int
}
