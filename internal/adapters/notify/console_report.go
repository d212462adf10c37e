package notify

import (
	"fmt"
	"math/big"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// MarketReportInput agrupa los datos necesarios para imprimir el historial de un mercado.
type MarketReportInput struct {
	Snapshot domain.MarketSnapshot
	Trades   []domain.Trade
	Claims   []domain.Claim
}

// PrintMarketReport imprime el informe completo de un mercado: estado, trades y claims.
func (c *Console) PrintMarketReport(in MarketReportInput) {
	m := in.Snapshot.Market
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                        MARKET REPORT                         ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	fmt.Fprintf(c.out, "  Market:     #%d %s\n", m.ID, domain.TruncateQuestion(m.Question, m.ID, 60))
	fmt.Fprintf(c.out, "  Outcomes:   A=%s | B=%s\n", m.LabelA, m.LabelB)
	fmt.Fprintf(c.out, "  Creator:    %s\n", c.account(m.Creator))
	fmt.Fprintf(c.out, "  Window:     %s → %s (%s)\n",
		m.CreatedAt.Format("2006-01-02 15:04:05"), m.CloseTime.Format("2006-01-02 15:04:05"), m.Duration)
	fmt.Fprintf(c.out, "  Status:     %s\n", m.Status(in.Snapshot.TakenAt))
	fmt.Fprintf(c.out, "  Collected:  %s (A %s + B %s + escrow %s)\n",
		c.amount(m.TotalCollected()), c.amount(m.PaymentsA), c.amount(m.PaymentsB), c.amount(m.InitialCost))

	fmt.Fprintf(c.out, "\n── TRADES (%d) ──\n", len(in.Trades))
	if len(in.Trades) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Time", "Account", "Kind", "Side", "Shares", "Cost", "Avg", "Price A")
		for _, t := range in.Trades {
			table.Append(
				t.At.Format("15:04:05"),
				c.account(t.Account),
				string(t.Kind),
				t.Outcome.String(),
				c.amount(t.Shares),
				c.amount(t.Cost),
				domain.FormatAmountFixed(t.AveragePrice(), 6),
				domain.FormatAmountFixed(t.PriceA, 6),
			)
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	fmt.Fprintf(c.out, "\n── CLAIMS (%d) ──\n", len(in.Claims))
	paid := new(big.Int)
	if len(in.Claims) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Account", "Shares", "Stake", "Pool share", "Reward")
		for _, cl := range in.Claims {
			table.Append(
				c.account(cl.Account),
				c.amount(cl.Shares),
				c.amount(cl.Stake),
				c.amount(cl.PoolShare),
				c.amount(cl.Reward),
			)
			paid.Add(paid, cl.Reward)
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	fmt.Fprintf(c.out, "\n── SUMMARY ──\n")
	fmt.Fprintf(c.out, "  Paid out:   %s\n", c.amount(paid))
	fmt.Fprintf(c.out, "  Remaining:  %s\n", c.amount(new(big.Int).Sub(m.TotalCollected(), paid)))
	fmt.Fprintln(c.out)
}
