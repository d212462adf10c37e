package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out    io.Writer
	labels map[common.Address]string // dirección → nombre legible ("alice")
	places int32                     // decimales al imprimir importes
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(labels map[common.Address]string) *Console {
	return &Console{out: os.Stdout, labels: labels, places: 4}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, labels map[common.Address]string) *Console {
	return &Console{out: w, labels: labels, places: 4}
}

// NotifyMarket imprime totales, precios y posiciones de un mercado.
func (c *Console) NotifyMarket(_ context.Context, snap domain.MarketSnapshot) error {
	m := snap.Market
	fmt.Fprintf(c.out, "\n[%s] market #%d %q (%s)\n",
		snap.TakenAt.Format("2006-01-02 15:04:05"), m.ID,
		domain.TruncateQuestion(m.Question, m.ID, 60), m.Status(snap.TakenAt))

	table := tablewriter.NewWriter(c.out)
	table.Header("Outcome", "Label", "Shares", "Payments", "Price")
	table.Append(
		"A", m.LabelA,
		c.amount(m.SharesA), c.amount(m.PaymentsA), c.price(snap.PriceA, m.Winner, domain.OutcomeA),
	)
	table.Append(
		"B", m.LabelB,
		c.amount(m.SharesB), c.amount(m.PaymentsB), c.price(snap.PriceB, m.Winner, domain.OutcomeB),
	)
	table.Render()

	fmt.Fprintf(c.out, "  Cost: %s | Escrow: %s | Max MM loss: %s | Closes: %s\n",
		c.amount(snap.Cost), c.amount(m.InitialCost), c.amount(snap.MaxLoss),
		m.CloseTime.Format("2006-01-02 15:04:05"))
	if m.Phase == domain.PhaseResolved {
		fmt.Fprintf(c.out, "  Winner: %s (%s) | Reward pool: %s\n",
			m.Winner, m.Label(m.Winner), c.amount(m.RewardPool()))
	}

	if len(snap.Positions) == 0 {
		fmt.Fprintln(c.out, "  (no participants)")
		return nil
	}

	pos := tablewriter.NewWriter(c.out)
	pos.Header("Account", "Shares A", "Paid A", "Shares B", "Paid B", "Claimed")
	for _, p := range snap.Positions {
		claimed := "-"
		if p.Claimed {
			claimed = "yes"
		}
		pos.Append(
			c.account(p.Account),
			c.amount(p.SharesA), c.amount(p.PaidA),
			c.amount(p.SharesB), c.amount(p.PaidB),
			claimed,
		)
	}
	pos.Render()
	return nil
}

// NotifyBalances imprime los balances de token dados, más el total.
func (c *Console) NotifyBalances(_ context.Context, balances []domain.AccountBalance) error {
	if len(balances) == 0 {
		fmt.Fprintln(c.out, "  (no balances)")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Account", "Address", "Balance")
	total := new(big.Int)
	for _, b := range balances {
		name := b.Label
		if name == "" {
			name = c.account(b.Account)
		}
		table.Append(name, b.Account.Hex(), c.amount(b.Balance))
		total.Add(total, b.Balance)
	}
	table.Footer("", "TOTAL", c.amount(total))
	table.Render()
	return nil
}

// --- helpers ---

func (c *Console) amount(x *big.Int) string {
	return domain.FormatAmountFixed(x, c.places)
}

// price muestra el precio marginal; una vez resuelto, el ganador se marca con "*".
func (c *Console) price(p *big.Int, winner, o domain.Outcome) string {
	s := domain.FormatAmountFixed(p, 6)
	if winner == o {
		s += " *"
	}
	return s
}

// account devuelve el nombre registrado o la dirección abreviada.
func (c *Console) account(a common.Address) string {
	if name, ok := c.labels[a]; ok {
		return name
	}
	return shortAddress(a)
}

func shortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}
