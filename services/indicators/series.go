package indicators

import "math"

// Series holds one snapshot per bar from Offset onward. Snapshot values are
// identical to calling Compute on each prefix of the input; the series form
// exists so a backtest over n bars costs O(n) rather than O(n²).
type Series struct {
	Offset    int
	Snapshots []Snapshot
}

// At returns the snapshot for bar index i, if one exists.
func (s *Series) At(i int) (Snapshot, bool) {
	j := i - s.Offset
	if j < 0 || j >= len(s.Snapshots) {
		return Snapshot{}, false
	}
	return s.Snapshots[j], true
}

// Window returns the snapshots of all bars up to and including index i,
// oldest first. The returned slice aliases the series; callers must not
// mutate it.
func (s *Series) Window(i int) []Snapshot {
	j := i - s.Offset + 1
	if j <= 0 {
		return nil
	}
	if j > len(s.Snapshots) {
		j = len(s.Snapshots)
	}
	return s.Snapshots[:j]
}

// Last returns the most recent snapshot.
func (s *Series) Last() (Snapshot, bool) {
	if len(s.Snapshots) == 0 {
		return Snapshot{}, false
	}
	return s.Snapshots[len(s.Snapshots)-1], true
}

// runningEMA carries the recursive EMA state for one period.
type runningEMA struct {
	alpha  float64
	value  float64
	seeded bool
}

func newRunningEMA(period int) *runningEMA {
	return &runningEMA{alpha: 2.0 / float64(period+1)}
}

func (e *runningEMA) update(v float64) float64 {
	if !e.seeded {
		e.value = v
		e.seeded = true
		return v
	}
	e.value = v*e.alpha + e.value*(1-e.alpha)
	return e.value
}

// ComputeSeries derives a snapshot for every bar index >= MinHistory-1.
// Inputs must be aligned; any non-finite intermediate value aborts the whole
// series with a CalculationError, matching Compute's no-partial-results rule.
func ComputeSeries(highs, lows, closes []float64, atrMultiplier float64) (*Series, error) {
	if len(closes) < MinHistory {
		return nil, ErrInsufficientData
	}
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return nil, calcErr("snapshot", "mismatched input lengths %d/%d/%d", len(highs), len(lows), len(closes))
	}

	emas := map[int]*runningEMA{
		PeriodEMA5:  newRunningEMA(PeriodEMA5),
		PeriodEMA8:  newRunningEMA(PeriodEMA8),
		PeriodEMA13: newRunningEMA(PeriodEMA13),
		PeriodEMA21: newRunningEMA(PeriodEMA21),
		PeriodEMA50: newRunningEMA(PeriodEMA50),
	}
	atrEMA := newRunningEMA(PeriodATR)

	offset := MinHistory - 1
	out := &Series{
		Offset:    offset,
		Snapshots: make([]Snapshot, 0, len(closes)-offset),
	}

	var atr float64
	for i := 0; i < len(closes); i++ {
		for _, e := range emas {
			e.update(closes[i])
		}
		if i > 0 {
			hl := highs[i] - lows[i]
			hc := math.Abs(highs[i] - closes[i-1])
			lc := math.Abs(lows[i] - closes[i-1])
			atr = atrEMA.update(math.Max(hl, math.Max(hc, lc)))
		}
		if i < offset {
			continue
		}

		snap := Snapshot{
			EMA5:  emas[PeriodEMA5].value,
			EMA8:  emas[PeriodEMA8].value,
			EMA13: emas[PeriodEMA13].value,
			EMA21: emas[PeriodEMA21].value,
			EMA50: emas[PeriodEMA50].value,
			ATR:   atr,
		}
		for _, v := range []float64{snap.EMA5, snap.EMA8, snap.EMA13, snap.EMA21, snap.EMA50, snap.ATR} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, calcErr("snapshot", "non-finite value at bar %d", i)
			}
		}
		if snap.ATR < 0 {
			return nil, calcErr("atr", "negative value %v at bar %d", snap.ATR, i)
		}
		var err error
		snap.ATRLongLine, snap.ATRShortLine, err = ATRBands(closes[i], snap.ATR, atrMultiplier)
		if err != nil {
			return nil, err
		}
		out.Snapshots = append(out.Snapshots, snap)
	}
	return out, nil
}
