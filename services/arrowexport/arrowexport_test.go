package arrowexport

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/shopspring/decimal"

	"ema-scanner/services/backtest"
	"ema-scanner/services/market"
	"ema-scanner/services/signals"
)

func TestEncodeTrades(t *testing.T) {
	trades := []backtest.Trade{
		{
			Symbol:     "TESTUSDT",
			Direction:  signals.Long,
			EntryTime:  60_000,
			ExitTime:   120_000,
			EntryPrice: decimal.NewFromInt(100),
			ExitPrice:  decimal.NewFromInt(102),
			PnL:        decimal.NewFromInt(2),
			PnLPercent: 2,
			ExitReason: backtest.ExitTakeProfit,
		},
		{
			Symbol:     "TESTUSDT",
			Direction:  signals.Short,
			EntryTime:  180_000,
			ExitTime:   240_000,
			EntryPrice: decimal.NewFromInt(102),
			ExitPrice:  decimal.NewFromInt(101),
			PnL:        decimal.NewFromInt(1),
			PnLPercent: 0.98,
			ExitReason: backtest.ExitOppositeSignal,
		},
	}

	payload, err := EncodeTrades(trades)
	if err != nil {
		t.Fatal(err)
	}

	reader, err := ipc.NewReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Release()

	if got := len(reader.Schema().Fields()); got != 9 {
		t.Fatalf("schema has %d fields", got)
	}
	if !reader.Next() {
		t.Fatal("no record batch in stream")
	}
	rec := reader.Record()
	if rec.NumRows() != 2 {
		t.Fatalf("got %d rows", rec.NumRows())
	}
	if reader.Next() {
		t.Fatal("unexpected second record batch")
	}
}

func TestEncodeTradesEmpty(t *testing.T) {
	if _, err := EncodeTrades(nil); err == nil {
		t.Fatal("empty ledger encoded")
	}
}

func TestEncodeBars(t *testing.T) {
	p := decimal.NewFromInt(100)
	bars := []market.Bar{{
		Symbol:    "TESTUSDT",
		Timestamp: 60_000,
		Open:      p,
		High:      p,
		Low:       p,
		Close:     p,
		Volume:    7,
	}}

	payload, err := EncodeBars(bars)
	if err != nil {
		t.Fatal(err)
	}
	reader, err := ipc.NewReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Release()

	if !reader.Next() {
		t.Fatal("no record batch in stream")
	}
	if reader.Record().NumRows() != 1 {
		t.Fatalf("got %d rows", reader.Record().NumRows())
	}
}
