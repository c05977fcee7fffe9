package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/areyes/bankroll/internal/calibration"
	"github.com/areyes/bankroll/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Notifier: portfolio and calibration tables on
// stdout.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a notifier writing to stdout. table enables the full
// table output (default is a compact one-liner).
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify prints the cycle report in the configured mode.
func (c *Console) Notify(_ context.Context, report domain.Report) error {
	if c.table {
		c.printBalances(report)
		c.printOpenTrades(report.OpenTrades)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact prints the essentials on one line.
func (c *Console) printCompact(report domain.Report) {
	now := time.Now().Format("15:04:05")
	var total float64
	for _, b := range report.Balances {
		total += b.Total
	}
	fmt.Fprintf(c.out, "[%s] pool $%.2f | open %d | spent today $%.2f | pnl today $%+.2f\n",
		now, total, len(report.OpenTrades), report.DailySpent, report.DailyPnL)
}

// printBalances prints the per-venue allocation table.
func (c *Console) printBalances(report domain.Report) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Venue", "Available", "In positions", "Pending", "Total", "Target", "Delta")

	for _, v := range domain.Venues() {
		b := report.Balances[v]
		table.Append(
			string(v),
			fmt.Sprintf("$%.2f", b.Available),
			fmt.Sprintf("$%.2f", b.InPositions),
			fmt.Sprintf("$%.2f", b.Pending),
			fmt.Sprintf("$%.2f", b.Total),
			fmt.Sprintf("$%.2f", report.Targets[v]),
			fmt.Sprintf("%+.2f", report.Deltas[v]),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  spent today $%.2f | pnl today $%+.2f\n",
		report.DailySpent, report.DailyPnL)
}

// printOpenTrades prints the open positions table.
func (c *Console) printOpenTrades(trades []domain.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Trade", "Venue", "Instrument", "Side", "Amount", "Entry", "Conf", "Age")

	for _, t := range trades {
		table.Append(
			shortID(t.ID),
			string(t.Venue),
			t.InstrumentID,
			t.Side,
			fmt.Sprintf("$%.2f", t.Amount),
			fmt.Sprintf("%.0f¢", t.EntryPriceCents),
			fmt.Sprintf("%.0f", t.Confidence),
			time.Since(t.ExecutedAt).Round(time.Minute).String(),
		)
	}
	table.Render()
}

// PrintCalibration prints the calibration report for a category.
func (c *Console) PrintCalibration(report *calibration.Report) {
	label := report.Category
	if label == "" {
		label = "all categories"
	}
	fmt.Fprintf(c.out, "\nCalibration — %s (overall factor %.2f)\n", label, report.OverallFactor)

	table := tablewriter.NewWriter(c.out)
	table.Header("Bucket", "Preds", "W", "L", "Actual", "Expected", "Factor")

	for _, b := range report.Buckets {
		factor := "—"
		if b.Calibrated() {
			factor = fmt.Sprintf("%.3f", b.Factor)
		}
		table.Append(
			fmt.Sprintf("%.0f–%.0f", b.Bucket, b.Bucket+domain.CalibrationBucketWidth),
			fmt.Sprintf("%d", b.Predictions),
			fmt.Sprintf("%d", b.Wins),
			fmt.Sprintf("%d", b.Losses),
			fmt.Sprintf("%.1f%%", b.ActualWinRate),
			fmt.Sprintf("%.1f%%", b.ExpectedWinRate),
			factor,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  %s\n", report.Recommendation)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
