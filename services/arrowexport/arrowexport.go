// Package arrowexport serializes trade ledgers and bar series as Arrow IPC
// streams for downstream analysis tools.
package arrowexport

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"ema-scanner/services/backtest"
	"ema-scanner/services/market"
)

// EncodeTrades serializes a trade list as a single Arrow record batch.
func EncodeTrades(trades []backtest.Trade) ([]byte, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("no trades to encode")
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "direction", Type: arrow.BinaryTypes.String},
		{Name: "entry_time_ms", Type: arrow.PrimitiveTypes.Int64},
		{Name: "exit_time_ms", Type: arrow.PrimitiveTypes.Int64},
		{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
		{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
		{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
		{Name: "pnl_pct", Type: arrow.PrimitiveTypes.Float64},
		{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	}, nil)

	pool := memory.NewGoAllocator()

	symbols := make([]string, len(trades))
	directions := make([]string, len(trades))
	entryTimes := make([]int64, len(trades))
	exitTimes := make([]int64, len(trades))
	entryPrices := make([]float64, len(trades))
	exitPrices := make([]float64, len(trades))
	pnls := make([]float64, len(trades))
	pnlPcts := make([]float64, len(trades))
	reasons := make([]string, len(trades))

	for i, t := range trades {
		symbols[i] = t.Symbol
		directions[i] = t.Direction.String()
		entryTimes[i] = t.EntryTime
		exitTimes[i] = t.ExitTime
		entryPrices[i] = t.EntryPrice.InexactFloat64()
		exitPrices[i] = t.ExitPrice.InexactFloat64()
		pnls[i] = t.PnL.InexactFloat64()
		pnlPcts[i] = t.PnLPercent
		reasons[i] = t.ExitReason.String()
	}

	cols := make([]arrow.Array, 0, 9)
	for _, s := range [][]string{symbols, directions} {
		b := array.NewStringBuilder(pool)
		b.AppendValues(s, nil)
		cols = append(cols, b.NewStringArray())
	}
	for _, s := range [][]int64{entryTimes, exitTimes} {
		b := array.NewInt64Builder(pool)
		b.AppendValues(s, nil)
		cols = append(cols, b.NewInt64Array())
	}
	for _, s := range [][]float64{entryPrices, exitPrices, pnls, pnlPcts} {
		b := array.NewFloat64Builder(pool)
		b.AppendValues(s, nil)
		cols = append(cols, b.NewFloat64Array())
	}
	reasonBuilder := array.NewStringBuilder(pool)
	reasonBuilder.AppendValues(reasons, nil)
	cols = append(cols, reasonBuilder.NewStringArray())

	record := array.NewRecord(schema, cols, int64(len(trades)))
	defer record.Release()

	return writeIPC(schema, record)
}

// EncodeBars serializes a bar series as a single Arrow record batch.
func EncodeBars(bars []market.Bar) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to encode")
	}

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
		{Name: "open", Type: arrow.PrimitiveTypes.Float64},
		{Name: "high", Type: arrow.PrimitiveTypes.Float64},
		{Name: "low", Type: arrow.PrimitiveTypes.Float64},
		{Name: "close", Type: arrow.PrimitiveTypes.Float64},
		{Name: "volume", Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	pool := memory.NewGoAllocator()

	symbolBuilder := array.NewStringBuilder(pool)
	tsBuilder := array.NewInt64Builder(pool)
	openBuilder := array.NewFloat64Builder(pool)
	highBuilder := array.NewFloat64Builder(pool)
	lowBuilder := array.NewFloat64Builder(pool)
	closeBuilder := array.NewFloat64Builder(pool)
	volumeBuilder := array.NewInt64Builder(pool)

	for _, b := range bars {
		symbolBuilder.Append(b.Symbol)
		tsBuilder.Append(b.Timestamp)
		openBuilder.Append(b.Open.InexactFloat64())
		highBuilder.Append(b.High.InexactFloat64())
		lowBuilder.Append(b.Low.InexactFloat64())
		closeBuilder.Append(b.Close.InexactFloat64())
		volumeBuilder.Append(b.Volume)
	}

	record := array.NewRecord(schema, []arrow.Array{
		symbolBuilder.NewStringArray(),
		tsBuilder.NewInt64Array(),
		openBuilder.NewFloat64Array(),
		highBuilder.NewFloat64Array(),
		lowBuilder.NewFloat64Array(),
		closeBuilder.NewFloat64Array(),
		volumeBuilder.NewInt64Array(),
	}, int64(len(bars)))
	defer record.Release()

	return writeIPC(schema, record)
}

func writeIPC(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("failed to write Arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}
