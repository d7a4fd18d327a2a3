package notify

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// ReportInput agrupa los datos necesarios para imprimir el reporte de una estrategia.
type ReportInput struct {
	Strategy string
	State    *domain.State
	Prices   map[string]float64 // precios actuales; nil si no se pudieron obtener
	History  []domain.TradeRecord
	Now      time.Time
}

// StrategyInfo es una fila de -list.
type StrategyInfo struct {
	Name        string
	Description string
}

// PrintStrategies imprime las estrategias disponibles.
func (c *Console) PrintStrategies(list []StrategyInfo) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Description")
	for _, s := range list {
		table.Append(s.Name, s.Description)
	}
	table.Render()
}

// PrintReport imprime las posiciones abiertas y el histórico reciente.
func (c *Console) PrintReport(in ReportInput) {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	fmt.Fprintf(c.out, "\n=== %s REPORT ===\n", in.Strategy)
	if in.State != nil && !in.State.LastRun.IsZero() {
		fmt.Fprintf(c.out, "  Last run: %s (%s ago)\n",
			in.State.LastRun.Format("2006-01-02 15:04:05"),
			now.Sub(in.State.LastRun).Truncate(time.Second))
	} else {
		fmt.Fprintln(c.out, "  Last run: never")
	}

	var positions []domain.Position
	if in.State != nil {
		positions = in.State.Positions
	}
	fmt.Fprintf(c.out, "\n── OPEN POSITIONS (%d) ──\n", len(positions))
	if len(positions) > 0 {
		c.printPositions(positions, in.Prices, now)
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	if in.State != nil {
		var active []string
		for denom, until := range in.State.Blacklist {
			if until.After(now) {
				active = append(active, fmt.Sprintf("%s until %s", domain.Ticker(denom), until.Format("15:04")))
			}
		}
		if len(active) > 0 {
			fmt.Fprintf(c.out, "\n  Blacklisted: %v\n", active)
		}
	}

	fmt.Fprintf(c.out, "\n── HISTORY (%d) ──\n", len(in.History))
	if len(in.History) == 0 {
		fmt.Fprintln(c.out, "  (no trades yet)")
		fmt.Fprintln(c.out)
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Action", "Legs", "Lev", "Collateral", "PnL", "Reason")
	for _, r := range in.History {
		pnl := "-"
		if r.Action == domain.ActionClose {
			pnl = fmt.Sprintf("%+.2f%%", r.PnLPct*100)
		}
		table.Append(
			r.At.Local().Format("01-02 15:04"),
			string(r.Action),
			legsLabel(r.Legs),
			fmt.Sprintf("%.1fx", r.Leverage),
			fmt.Sprintf("$%.2f", r.Collateral),
			pnl,
			truncate(r.Reason, 40),
		)
	}
	table.Render()

	s := summarize(in.History)
	fmt.Fprintf(c.out, "\n  Closed: %d (%d external) | Wins: %d (%.0f%%) | Avg PnL: %+.2f%% | Net: $%+.2f\n\n",
		s.closed+s.external, s.external, s.wins, pct(s.wins, s.closed), s.avgPnL*100, s.netUSDC)
}

type historySummary struct {
	closed   int
	external int
	wins     int
	avgPnL   float64
	netUSDC  float64
}

// summarize calcula las estadísticas de los cierres del histórico.
// Los cierres externos no tienen PnL conocido y no cuentan en la media.
func summarize(history []domain.TradeRecord) historySummary {
	var s historySummary
	var sum float64
	for _, r := range history {
		switch r.Action {
		case domain.ActionClose:
			s.closed++
			sum += r.PnLPct
			s.netUSDC += r.Collateral * r.PnLPct
			if r.PnLPct > 0 {
				s.wins++
			}
		case domain.ActionCloseExternal:
			s.external++
		}
	}
	if s.closed > 0 {
		s.avgPnL = sum / float64(s.closed)
	}
	return s
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
