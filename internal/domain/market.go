package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome identifica uno de los dos lados del mercado. Los valores numéricos
// coinciden con el enum on-chain: 0 = sin resolver, 1 = opción A, 2 = opción B.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeA
	OutcomeB
)

// String devuelve "A", "B" o "NONE".
func (o Outcome) String() string {
	switch o {
	case OutcomeA:
		return "A"
	case OutcomeB:
		return "B"
	default:
		return "NONE"
	}
}

// Valid devuelve true solo para A o B.
func (o Outcome) Valid() bool {
	return o == OutcomeA || o == OutcomeB
}

// Opposite devuelve el otro lado del mercado (NONE se queda en NONE).
func (o Outcome) Opposite() Outcome {
	switch o {
	case OutcomeA:
		return OutcomeB
	case OutcomeB:
		return OutcomeA
	default:
		return OutcomeNone
	}
}

// ParseOutcome acepta "A"/"B", "yes"/"no", "1"/"2" y "true"/"false"
// (true = A, como en buyByShares(marketId, True, ...)).
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "yes", "1", "true":
		return OutcomeA, nil
	case "b", "no", "2", "false":
		return OutcomeB, nil
	}
	return OutcomeNone, fmt.Errorf("domain.ParseOutcome: %q: %w", s, ErrInvalidOutcome)
}

// Phase es el estado persistido del mercado. Solo existe la transición Open → Resolved;
// "cerrado" se deriva del reloj (ver Market.Status).
type Phase string

const (
	PhaseOpen     Phase = "OPEN"
	PhaseResolved Phase = "RESOLVED"
)

// Market representa un mercado binario con market maker LMSR.
type Market struct {
	ID        uint64
	Question  string
	LabelA    string
	LabelB    string
	Creator   common.Address
	CreatedAt time.Time
	Duration  time.Duration
	CloseTime time.Time

	Phase      Phase
	Winner     Outcome
	ResolvedAt time.Time

	// Totales por outcome; incluyen la liquidez sembrada por el market maker.
	SharesA   *big.Int
	SharesB   *big.Int
	PaymentsA *big.Int
	PaymentsB *big.Int

	InitialLiquidity *big.Int // shares sembradas por lado
	InitialCost      *big.Int // tokens escrowed al crear: Cost(L, L) redondeado hacia arriba
}

// AcceptsTrades devuelve true si el mercado admite compras en now.
func (m Market) AcceptsTrades(now time.Time) bool {
	return m.Phase == PhaseOpen && now.Before(m.CloseTime)
}

// Status devuelve OPEN, CLOSED (pendiente de resolución) o RESOLVED.
func (m Market) Status(now time.Time) string {
	switch {
	case m.Phase == PhaseResolved:
		return string(PhaseResolved)
	case !now.Before(m.CloseTime):
		return "CLOSED"
	default:
		return string(PhaseOpen)
	}
}

// Shares devuelve el total de shares emitidas para o.
func (m Market) Shares(o Outcome) *big.Int {
	if o == OutcomeB {
		return m.SharesB
	}
	return m.SharesA
}

// Payments devuelve los tokens cobrados por shares de o.
func (m Market) Payments(o Outcome) *big.Int {
	if o == OutcomeB {
		return m.PaymentsB
	}
	return m.PaymentsA
}

// Label devuelve la etiqueta legible del outcome.
func (m Market) Label(o Outcome) string {
	switch o {
	case OutcomeA:
		return m.LabelA
	case OutcomeB:
		return m.LabelB
	default:
		return "-"
	}
}

// TotalCollected es todo lo que el mercado ha recibido: pagos de ambos lados más el escrow inicial.
// Es el techo de lo que se puede pagar en claims.
func (m Market) TotalCollected() *big.Int {
	return Sum(m.PaymentsA, m.PaymentsB, m.InitialCost)
}

// RewardPool devuelve los pagos del lado perdedor más el escrow inicial.
// Solo tiene sentido con el mercado resuelto.
func (m Market) RewardPool() *big.Int {
	if !m.Winner.Valid() {
		return new(big.Int)
	}
	return Sum(m.Payments(m.Winner.Opposite()), m.InitialCost)
}

// Clone devuelve una copia profunda; los *big.Int no se comparten.
func (m Market) Clone() Market {
	c := m
	c.SharesA = Clone(m.SharesA)
	c.SharesB = Clone(m.SharesB)
	c.PaymentsA = Clone(m.PaymentsA)
	c.PaymentsB = Clone(m.PaymentsB)
	c.InitialLiquidity = Clone(m.InitialLiquidity)
	c.InitialCost = Clone(m.InitialCost)
	return c
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa el ID del mercado como fallback.
func TruncateQuestion(question string, id uint64, maxLen int) string {
	q := question
	if q == "" {
		q = fmt.Sprintf("market #%d", id)
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
