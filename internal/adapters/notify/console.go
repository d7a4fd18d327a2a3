package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el resultado del run en el modo configurado.
func (c *Console) Notify(_ context.Context, res domain.RunResult) error {
	if c.table {
		c.printFull(res)
	} else {
		c.printCompact(res)
	}
	return nil
}

// printCompact imprime el run en una línea.
func (c *Console) printCompact(res domain.RunResult) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %d mkts bal$%.2f → sig:%d open:%d close:%d held:%d",
		res.StartedAt.Format("15:04:05"), res.Strategy, res.Markets, res.Balance,
		len(res.Signals), len(res.Opened), len(res.Closed), len(res.Open))

	for _, p := range res.Opened {
		fmt.Fprintf(&sb, " | +%s %.0fx $%.2f", legsLabel(p.Legs), p.Leverage, p.Collateral)
	}
	for _, cp := range res.Closed {
		if cp.External {
			fmt.Fprintf(&sb, " | -%s external", legsLabel(cp.Position.Legs))
			continue
		}
		fmt.Fprintf(&sb, " | -%s %+.2f%%", legsLabel(cp.Position.Legs), cp.PnLPct*100)
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(&sb, " | warn:%d", len(res.Warnings))
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime las tablas de señales y posiciones del run.
func (c *Console) printFull(res domain.RunResult) {
	fmt.Fprintf(c.out, "\n[%s] %s — %d markets, balance $%.2f, %s\n",
		res.StartedAt.Format("15:04:05"), res.Strategy, res.Markets, res.Balance,
		res.Duration.Round(time.Millisecond))

	if len(res.Signals) > 0 {
		fmt.Fprintf(c.out, "\n── SIGNALS (%d) ──\n", len(res.Signals))
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Legs", "Score", "Reason")
		for i, s := range res.Signals {
			table.Append(
				fmt.Sprintf("%d", i+1),
				legsLabel(s.Legs),
				fmt.Sprintf("%.3f", s.Score),
				s.Reason,
			)
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  no signals")
	}

	if len(res.Opened) > 0 {
		fmt.Fprintf(c.out, "\n── OPENED (%d) ──\n", len(res.Opened))
		c.printPositions(res.Opened, nil, res.StartedAt)
	}

	if len(res.Closed) > 0 {
		fmt.Fprintf(c.out, "\n── CLOSED (%d) ──\n", len(res.Closed))
		table := tablewriter.NewWriter(c.out)
		table.Header("ID", "Legs", "Lev", "Collateral", "PnL", "Reason", "Tx")
		for _, cp := range res.Closed {
			pnl := fmt.Sprintf("%+.2f%%", cp.PnLPct*100)
			if cp.External {
				pnl = "?"
			}
			table.Append(
				shortID(cp.Position.ID),
				legsLabel(cp.Position.Legs),
				fmt.Sprintf("%.1fx", cp.Position.Leverage),
				fmt.Sprintf("$%.2f", cp.Position.Collateral),
				pnl,
				cp.Reason,
				shortID(cp.TxHash),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── HELD (%d) ──\n", len(res.Open))
	if len(res.Open) > 0 {
		c.printPositions(res.Open, nil, res.StartedAt)
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	if len(res.Skipped) > 0 {
		fmt.Fprintf(c.out, "\n  skipped:\n")
		for _, s := range res.Skipped {
			fmt.Fprintf(c.out, "    %s\n", s)
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(c.out, "  ⚠ %s\n", w)
	}
	fmt.Fprintln(c.out)
}

// printPositions imprime una tabla de posiciones. Si prices no es nil añade el PnL actual.
func (c *Console) printPositions(positions []domain.Position, prices map[string]float64, now time.Time) {
	table := tablewriter.NewWriter(c.out)
	if prices != nil {
		table.Header("ID", "Legs", "Lev", "Collateral", "Age", "PnL", "Reason")
	} else {
		table.Header("ID", "Legs", "Lev", "Collateral", "Age", "Reason")
	}
	for _, p := range positions {
		row := []any{
			shortID(p.ID),
			legsLabel(p.Legs),
			fmt.Sprintf("%.1fx", p.Leverage),
			fmt.Sprintf("$%.2f", p.Collateral),
			p.Age(now).Truncate(time.Minute).String(),
		}
		if prices != nil {
			pnl := "-"
			if v, ok := p.PnLPct(prices); ok {
				pnl = fmt.Sprintf("%+.2f%%", v*100)
			}
			row = append(row, pnl)
		}
		row = append(row, truncate(p.Reason, 40))
		table.Append(row...)
	}
	table.Render()
}

// legsLabel formatea las patas: "BTC↑" o "ETH↓+SOL↓".
func legsLabel(legs []domain.Leg) string {
	parts := make([]string, len(legs))
	for i, l := range legs {
		arrow := "↑"
		if l.Direction == domain.Short {
			arrow = "↓"
		}
		parts[i] = domain.Ticker(l.Denom) + arrow
	}
	return strings.Join(parts, "+")
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
