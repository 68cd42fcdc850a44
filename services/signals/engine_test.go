package signals

import (
	"testing"

	"github.com/shopspring/decimal"

	"ema-scanner/services/indicators"
	"ema-scanner/services/market"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func barOC(open, close float64) market.Bar {
	o := decimal.NewFromFloat(open)
	c := decimal.NewFromFloat(close)
	return market.Bar{
		Symbol:    "TESTUSDT",
		Timestamp: 1_700_000_000_000,
		Open:      o,
		High:      decimal.Max(o, c),
		Low:       decimal.Min(o, c),
		Close:     c,
	}
}

// longSetup is a snapshot pair that satisfies every long condition under the
// default settings for a 99 -> 100 bar.
func longSetup() (prev, cur indicators.Snapshot) {
	cur = indicators.Snapshot{
		EMA5:  95,
		EMA8:  99.5,
		EMA13: 99.2,
		EMA21: 99,
		EMA50: 98,
		ATR:   2,
		// close 100, multiplier 2
		ATRLongLine:  96,
		ATRShortLine: 104,
	}
	prev = cur
	prev.EMA5 = 93   // +2.15% > 2%
	prev.EMA8 = 98.4 // +1.12% > 1%
	prev.EMA21 = 98.4
	return prev, cur
}

func longHTF() *HTF {
	return &HTF{
		Bar:      barOC(99, 101),
		Snapshot: indicators.Snapshot{EMA5: 101, EMA8: 100},
	}
}

func TestEvaluateLongAllConditions(t *testing.T) {
	e := testEngine(t)
	prev, cur := longSetup()

	eval := e.Evaluate(Long, barOC(99, 100), cur, []indicators.Snapshot{prev, cur}, longHTF())
	if eval.TotalConditions != 6 {
		t.Fatalf("total conditions %d, want 6", eval.TotalConditions)
	}
	if !eval.Valid {
		t.Fatalf("not valid, failures: %v", eval.Failures())
	}
	if eval.Confidence != 1.0 {
		t.Fatalf("confidence %v, want 1.0", eval.Confidence)
	}
}

func TestEvaluateWithoutHTF(t *testing.T) {
	e := testEngine(t)
	prev, cur := longSetup()

	eval := e.Evaluate(Long, barOC(99, 100), cur, []indicators.Snapshot{prev, cur}, nil)
	if eval.TotalConditions != 5 {
		t.Fatalf("total conditions %d, want 5", eval.TotalConditions)
	}
	if !eval.Valid || eval.Confidence != 1.0 {
		t.Fatalf("valid=%v confidence=%v, failures: %v", eval.Valid, eval.Confidence, eval.Failures())
	}
}

func TestEvaluateAllOrNothing(t *testing.T) {
	e := testEngine(t)
	prev, cur := longSetup()

	// Bearish bar body breaks only the polar formation.
	eval := e.Evaluate(Long, barOC(100.1, 100), cur, []indicators.Snapshot{prev, cur}, longHTF())
	if eval.Valid {
		t.Fatal("valid with a failed condition")
	}
	if eval.ConditionsMet != 5 {
		t.Fatalf("conditions met %d, want 5, failures: %v", eval.ConditionsMet, eval.Failures())
	}
	if want := 5.0 / 6.0; eval.Confidence != want {
		t.Fatalf("confidence %v, want %v", eval.Confidence, want)
	}
	fails := eval.Failures()
	if len(fails) != 1 || fails[0].Condition != CondPolarFormation {
		t.Fatalf("unexpected failures %v", fails)
	}
}

func TestEvaluateShortMirror(t *testing.T) {
	e := testEngine(t)
	cur := indicators.Snapshot{
		EMA5:  105,
		EMA8:  100.5,
		EMA13: 100.8,
		EMA21: 101,
		EMA50: 102,
		ATR:   2,
		// close 100, multiplier 2
		ATRLongLine:  96,
		ATRShortLine: 104,
	}
	prev := cur
	prev.EMA5 = 107.3 // -2.14% < -2%
	prev.EMA8 = 101.6 // -1.08% < -1%
	prev.EMA21 = 101.6

	htf := &HTF{
		Bar:      barOC(101, 100),
		Snapshot: indicators.Snapshot{EMA5: 99, EMA8: 100},
	}
	eval := e.Evaluate(Short, barOC(101, 100), cur, []indicators.Snapshot{prev, cur}, htf)
	if !eval.Valid {
		t.Fatalf("not valid, failures: %v", eval.Failures())
	}
	if eval.Confidence != 1.0 {
		t.Fatalf("confidence %v, want 1.0", eval.Confidence)
	}
}

func TestRisingEMAsFailClosedWithoutHistory(t *testing.T) {
	e := testEngine(t)
	_, cur := longSetup()

	eval := e.Evaluate(Long, barOC(99, 100), cur, []indicators.Snapshot{cur}, nil)
	if eval.Valid {
		t.Fatal("valid with a single snapshot of history")
	}
	for _, f := range eval.Failures() {
		if f.Condition == CondRisingEMAs {
			return
		}
	}
	t.Fatalf("rising EMAs did not fail, failures: %v", eval.Failures())
}

func TestDirectionOpposite(t *testing.T) {
	if Long.Opposite() != Short || Short.Opposite() != Long {
		t.Fatal("opposite direction broken")
	}
	if Long.String() != "long" || Short.String() != "short" {
		t.Fatalf("direction names %q/%q", Long.String(), Short.String())
	}
}
