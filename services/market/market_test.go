package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func bar(ts int64, open, high, low, close float64) Bar {
	return Bar{
		Symbol:    "TESTUSDT",
		Timestamp: ts,
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
		Volume:    1,
	}
}

func TestBarValidate(t *testing.T) {
	if err := bar(1, 100, 101, 99, 100.5).Validate(); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		b    Bar
	}{
		{"zero open", bar(1, 0, 101, 99, 100)},
		{"negative close", bar(1, 100, 101, 99, -1)},
		{"high below body", bar(1, 100, 99.5, 99, 100.5)},
		{"low above body", bar(1, 100, 101, 100.2, 100.5)},
	}
	for _, c := range cases {
		if err := c.b.Validate(); err == nil {
			t.Errorf("%s: accepted", c.name)
		}
	}

	neg := bar(1, 100, 101, 99, 100)
	neg.Volume = -1
	if err := neg.Validate(); err == nil {
		t.Error("negative volume accepted")
	}
}

func TestSortDedupe(t *testing.T) {
	bars := []Bar{
		bar(3000, 100, 101, 99, 100),
		bar(1000, 100, 101, 99, 100),
		bar(2000, 100, 101, 99, 100),
		bar(2000, 200, 201, 199, 200), // duplicate timestamp, must win
	}
	out := SortDedupe(bars)
	if len(out) != 3 {
		t.Fatalf("got %d bars, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp <= out[i-1].Timestamp {
			t.Fatalf("not sorted at %d", i)
		}
	}
	if !out[1].Open.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("duplicate resolution kept first row: open %s", out[1].Open)
	}
}

func TestCleanDropsInvalidAndCounts(t *testing.T) {
	bars := []Bar{
		bar(0, 100, 101, 99, 100),
		bar(60_000, 0, 101, 99, 100), // invalid, dropped, leaves a gap
		bar(120_000, 100, 101, 99, 100),
		bar(300_000, 100, 101, 99, 100), // gap
		bar(360_000, 150, 151, 99, 150), // +50% wild jump
	}
	clean, report := Clean(bars, Timeframe1m, zap.NewNop())
	if len(clean) != 4 {
		t.Fatalf("got %d clean bars", len(clean))
	}
	if report.Rejected != 1 || report.Gaps != 2 || report.WildJumps != 1 {
		t.Fatalf("report %+v", report)
	}
}

func TestCheckSeries(t *testing.T) {
	if err := (QualityReport{}).CheckSeries(); err == nil {
		t.Fatal("empty series accepted")
	}
	if err := (QualityReport{Total: 100, Rejected: 6}).CheckSeries(); err == nil {
		t.Fatal("6% rejection rate accepted")
	}
	if err := (QualityReport{Total: 100, WildJumps: 6}).CheckSeries(); err == nil {
		t.Fatal("6% wild jump rate accepted")
	}
	if err := (QualityReport{Total: 100, Rejected: 2, Gaps: 50}).CheckSeries(); err != nil {
		t.Fatalf("gaps alone rejected the series: %v", err)
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("5m")
	if err != nil {
		t.Fatal(err)
	}
	if tf.Duration().Minutes() != 5 {
		t.Fatalf("duration %v", tf.Duration())
	}
	if _, err := ParseTimeframe("7m"); err == nil {
		t.Fatal("bogus timeframe accepted")
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	content := "timestamp,open,high,low,close,volume\n" +
		"2000,100,101,99,100,10\n" +
		"1000,100,101,99,100,10\n" +
		"garbage,row,a,b,c,d\n" +
		"1000,200,201,199,200,10\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	bars, err := LoadCSV(path, "TESTUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Timestamp != 1000 || bars[1].Timestamp != 2000 {
		t.Fatalf("not sorted: %d, %d", bars[0].Timestamp, bars[1].Timestamp)
	}
	if !bars[0].Open.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("duplicate timestamp kept first row: open %s", bars[0].Open)
	}
	if bars[0].Symbol != "TESTUSDT" {
		t.Fatalf("symbol %q", bars[0].Symbol)
	}
}
