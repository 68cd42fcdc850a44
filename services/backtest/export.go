package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// WriteTradesCSV writes the trade ledger in a spreadsheet-friendly layout.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	header := []string{
		"symbol", "direction", "entry_time", "exit_time",
		"entry_price", "exit_price", "pnl", "pnl_pct", "exit_reason",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.Symbol,
			t.Direction.String(),
			t.EntryAt().Format(time.RFC3339),
			t.ExitAt().Format(time.RFC3339),
			t.EntryPrice.String(),
			t.ExitPrice.String(),
			t.PnL.String(),
			strconv.FormatFloat(t.PnLPercent, 'f', 4, 64),
			t.ExitReason.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write trade row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportTradesCSV writes the ledger to a file.
func ExportTradesCSV(filename string, trades []Trade) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()
	return WriteTradesCSV(f, trades)
}
