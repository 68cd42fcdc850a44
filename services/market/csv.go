package market

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadCSV reads OHLCV bars from a CSV file with columns
// timestamp_ms,open,high,low,close,volume. A header row is skipped if present,
// UTF-16 files with a BOM are decoded transparently, rows that fail to parse
// are dropped, and the result is sorted by timestamp with duplicate
// timestamps deduplicated (last row wins).
func LoadCSV(filename, symbol string) ([]Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	reader, err := decodedReader(file)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(reader)
	r.ReuseRecord = false
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	bars := make([]Bar, 0, 1_000)
	lineIndex := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			lineIndex++
			continue
		}
		if len(rec) < 6 {
			lineIndex++
			continue
		}

		if lineIndex == 0 && (strings.EqualFold(rec[0], "timestamp") || strings.EqualFold(rec[0], "timestamp_ms")) {
			lineIndex++
			continue
		}

		tsStr := strings.TrimSpace(rec[0])
		tsStr = strings.TrimPrefix(tsStr, "\uFEFF")
		timestamp, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			lineIndex++
			continue
		}

		open, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			lineIndex++
			continue
		}
		high, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil {
			lineIndex++
			continue
		}
		low, err := decimal.NewFromString(strings.TrimSpace(rec[3]))
		if err != nil {
			lineIndex++
			continue
		}
		closep, err := decimal.NewFromString(strings.TrimSpace(rec[4]))
		if err != nil {
			lineIndex++
			continue
		}
		volume, err := decimal.NewFromString(strings.TrimSpace(rec[5]))
		if err != nil {
			volume = decimal.Zero
		}

		bars = append(bars, Bar{
			Symbol:    symbol,
			Timestamp: timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closep,
			Volume:    volume.IntPart(),
		})
		lineIndex++
	}

	return SortDedupe(bars), nil
}

// decodedReader wraps f with a UTF-16 decoder when a BOM is present.
func decodedReader(f *os.File) (io.Reader, error) {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek csv: %w", err)
		}
		endian := unicode.LittleEndian
		if head[0] == 0xFE {
			endian = unicode.BigEndian
		}
		return transform.NewReader(f, unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder()), nil
	}
	return br, nil
}

// SortDedupe sorts bars by timestamp and collapses duplicate timestamps,
// keeping the last occurrence.
func SortDedupe(bars []Bar) []Bar {
	if len(bars) < 2 {
		return bars
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	uniq := make([]Bar, 0, len(bars))
	var lastTs int64 = -1
	for _, b := range bars {
		if b.Timestamp == lastTs {
			uniq[len(uniq)-1] = b
			continue
		}
		uniq = append(uniq, b)
		lastTs = b.Timestamp
	}
	return uniq
}
