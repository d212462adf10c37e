package domain

import (
	"math/big"
	"time"
)

// MarketSnapshot agrupa todo lo que un reporte necesita de un mercado en un instante.
type MarketSnapshot struct {
	Market    Market
	Cost      *big.Int // Cost(sharesA, sharesB) actual
	PriceA    *big.Int
	PriceB    *big.Int
	MaxLoss   *big.Int // pérdida máxima teórica del market maker (b·ln2)
	Positions []Position
	TakenAt   time.Time
}

// ParticipantShares suma las shares de todos los participantes en o.
// Más la liquidez inicial debe igualar el total del mercado mientras está abierto.
func (s MarketSnapshot) ParticipantShares(o Outcome) *big.Int {
	total := new(big.Int)
	for _, p := range s.Positions {
		total.Add(total, p.Shares(o))
	}
	return total
}
