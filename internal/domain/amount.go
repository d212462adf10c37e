package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals es la escala fija de balances y shares (igual que un ERC-20 de 18 decimales).
const Decimals = 18

// One es 1.0 expresado en unidades base (10^18).
var One = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Units devuelve n tokens enteros en unidades base.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), One)
}

// ParseAmount convierte un decimal legible ("1000", "0.5") a unidades base.
// Rechaza valores con más de 18 decimales en lugar de truncarlos en silencio.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("domain.ParseAmount: %q: %w", s, err)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("domain.ParseAmount: %q has more than %d decimals", s, Decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount devuelve el valor en tokens sin ceros sobrantes ("1234.5").
func FormatAmount(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -Decimals).String()
}

// FormatAmountFixed devuelve el valor en tokens con places decimales, para tablas.
func FormatAmountFixed(x *big.Int, places int32) string {
	if x == nil {
		x = new(big.Int)
	}
	return decimal.NewFromBigInt(x, -Decimals).StringFixed(places)
}

// Clone devuelve una copia independiente de x (nil se trata como cero).
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// IsPositive devuelve true si x no es nil y es > 0.
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// Sum devuelve la suma de los valores dados sin modificar ninguno.
func Sum(xs ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, x := range xs {
		if x != nil {
			total.Add(total, x)
		}
	}
	return total
}

// MulDivDown devuelve floor(x·y / z) para operandos no negativos.
func MulDivDown(x, y, z *big.Int) *big.Int {
	if z.Sign() == 0 {
		return new(big.Int)
	}
	n := new(big.Int).Mul(x, y)
	return n.Quo(n, z)
}
