package clickhouse

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ema-scanner/services/backtest"
)

// BatchWriter inserts trade rows over the ClickHouse HTTP interface with
// gzip-compressed JSONEachRow payloads. Used by the CLI runners, which have
// no native connection.
type BatchWriter struct {
	baseURL    string
	database   string
	username   string
	password   string
	httpClient *http.Client
	buffer     []tradeRow
	batchSize  int
}

type tradeRow struct {
	JobID       string `json:"job_id"`
	Symbol      string `json:"symbol"`
	Direction   string `json:"direction"`
	EntryTimeMs string `json:"entry_time_ms"`
	ExitTimeMs  string `json:"exit_time_ms"`
	EntryPrice  string `json:"entry_price"`
	ExitPrice   string `json:"exit_price"`
	Pnl         string `json:"pnl"`
	PnlPct      string `json:"pnl_pct"`
	ExitReason  string `json:"exit_reason"`
}

// NewBatchWriter targets the HTTP interface at baseURL.
func NewBatchWriter(baseURL, database, username, password string, batchSize int) *BatchWriter {
	return &BatchWriter{
		baseURL:   baseURL,
		database:  database,
		username:  username,
		password:  password,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		buffer: make([]tradeRow, 0, batchSize),
	}
}

// AddTrade buffers one trade, flushing when the batch is full.
func (w *BatchWriter) AddTrade(jobID string, t backtest.Trade) error {
	w.buffer = append(w.buffer, tradeRow{
		JobID:       jobID,
		Symbol:      t.Symbol,
		Direction:   t.Direction.String(),
		EntryTimeMs: strconv.FormatInt(t.EntryTime, 10),
		ExitTimeMs:  strconv.FormatInt(t.ExitTime, 10),
		EntryPrice:  t.EntryPrice.String(),
		ExitPrice:   t.ExitPrice.String(),
		Pnl:         t.PnL.String(),
		PnlPct:      strconv.FormatFloat(t.PnLPercent, 'f', -1, 64),
		ExitReason:  t.ExitReason.String(),
	})
	if len(w.buffer) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush posts the buffered rows.
func (w *BatchWriter) Flush() error {
	if len(w.buffer) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	for _, row := range w.buffer {
		jsonData, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		if _, err := gzWriter.Write(jsonData); err != nil {
			return fmt.Errorf("gzip error: %w", err)
		}
		if _, err := gzWriter.Write([]byte("\n")); err != nil {
			return fmt.Errorf("gzip error: %w", err)
		}
	}
	gzWriter.Close()

	query := fmt.Sprintf("INSERT INTO %s.trades (job_id, symbol, direction, entry_time_ms, exit_time_ms, entry_price, exit_price, pnl, pnl_pct, exit_reason) FORMAT JSONEachRow", w.database)
	settings := "input_format_null_as_default=1&date_time_input_format=best_effort"
	endpoint := fmt.Sprintf("%s/?query=%s&%s", w.baseURL, url.QueryEscape(query), settings)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "gzip")
	req.SetBasicAuth(w.username, w.password)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("clickhouse error %d: %s", resp.StatusCode, string(body))
	}

	w.buffer = w.buffer[:0]
	return nil
}

// Close flushes any remaining rows.
func (w *BatchWriter) Close() error {
	return w.Flush()
}
