// Package report writes run results as CSV files and console tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"sp500-backtest/services/engine"
)

const dateLayout = "2006-01-02 15:04:05"

var tradeHeader = []string{"Date", "Type", "Entry", "Exit", "P&L"}

var seriesHeader = []string{
	"Date", "Open", "High", "Low", "Close", "Volume",
	"LiquiditySweep", "BOS_Up", "BOS_Down", "OrderBlock", "FVG", "Equity",
}

// FormatDate renders bar dates; midnight values print as plain dates
func FormatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(dateLayout)
}

// WriteTradesCSV writes the trade log
func WriteTradesCSV(w io.Writer, trades []engine.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write(tradeRecord(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func tradeRecord(t engine.Trade) []string {
	return []string{
		FormatDate(t.Date),
		t.Direction.String(),
		t.Entry.String(),
		t.Exit.String(),
		t.PnL.String(),
	}
}

// WriteEquityCSV writes the annotated series with its equity column
func WriteEquityCSV(w io.Writer, series []engine.AnnotatedBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(seriesHeader); err != nil {
		return err
	}
	for _, b := range series {
		record := []string{
			FormatDate(b.Date),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
			strconv.FormatBool(b.LiquiditySweep),
			strconv.FormatBool(b.BOSUp),
			strconv.FormatBool(b.BOSDown),
			strconv.FormatBool(b.OrderBlock),
			strconv.FormatBool(b.FVG),
			b.Equity.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the trade log to filename followed by a summary block
func ExportCSV(filename string, res *engine.Result) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteTradesCSV(file, res.Trades); err != nil {
		return fmt.Errorf("failed to write trades: %w", err)
	}

	s := res.Summary
	cw := csv.NewWriter(file)
	cw.Write([]string{""})
	cw.Write([]string{"# Summary"})
	cw.Write([]string{"total_trades", strconv.Itoa(s.TotalTrades)})
	cw.Write([]string{"wins", strconv.Itoa(s.Wins)})
	cw.Write([]string{"losses", strconv.Itoa(s.Losses)})
	cw.Write([]string{"win_rate", fmt.Sprintf("%.2f", s.WinRate)})
	cw.Write([]string{"total_pnl", s.TotalPnL.StringFixed(2)})
	cw.Write([]string{"final_equity", s.FinalEquity.StringFixed(2)})
	cw.Write([]string{"max_drawdown_pct", fmt.Sprintf("%.2f", s.MaxDrawdownPct)})
	cw.Flush()
	return cw.Error()
}

// ExportEquityCSV writes the annotated series to filename
func ExportEquityCSV(filename string, series []engine.AnnotatedBar) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	return WriteEquityCSV(file, series)
}

// PrintSummary prints the headline metrics and, when limit > 0, the first
// limit trades as a table.
func PrintSummary(w io.Writer, s engine.Summary, trades []engine.Trade, limit int) error {
	fmt.Fprintln(w, "Backtest Summary")
	fmt.Fprintf(w, "  Total P&L ($):  %.2f\n", s.TotalPnL.InexactFloat64())
	fmt.Fprintf(w, "  Win Rate (%%):   %.2f\n", s.WinRate)
	fmt.Fprintf(w, "  Trades Taken:   %d\n", s.TotalTrades)
	fmt.Fprintf(w, "  Wins/Losses:    %d/%d\n", s.Wins, s.Losses)
	fmt.Fprintf(w, "  Final Equity:   %.2f\n", s.FinalEquity.InexactFloat64())
	fmt.Fprintf(w, "  Max Drawdown %%: %.2f\n", s.MaxDrawdownPct)

	if limit <= 0 || len(trades) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Log")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tType\tEntry\tExit\tP&L\t")
	for i, t := range trades {
		if i == limit {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			FormatDate(t.Date), t.Direction, t.Entry.StringFixed(2), t.Exit.StringFixed(2), t.PnL.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(trades) > limit {
		fmt.Fprintf(w, "... %d more trades\n", len(trades)-limit)
	}
	return nil
}
