package signals

// Direction of a signal or position.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Condition identifies one rule of the entry rule set. The identifiers are a
// closed enum so diagnostics never depend on free-form strings.
type Condition int

const (
	CondPolarFormation Condition = iota
	CondEMAPositioning
	CondRisingEMAs
	CondFOMOFilter
	CondVolatilityFilter
	CondHTFConfirmation
)

var conditionNames = [...]string{
	CondPolarFormation:   "polar_formation",
	CondEMAPositioning:   "ema_positioning",
	CondRisingEMAs:       "rising_emas",
	CondFOMOFilter:       "fomo_filter",
	CondVolatilityFilter: "volatility_filter",
	CondHTFConfirmation:  "htf_confirmation",
}

func (c Condition) String() string {
	if int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return "unknown"
}

// ConditionResult is the outcome of evaluating a single condition. Reason is
// empty when the condition was met.
type ConditionResult struct {
	Condition Condition `json:"condition"`
	Met       bool      `json:"met"`
	Reason    string    `json:"reason,omitempty"`
}

// Evaluation is the full outcome of running one direction's rule set against
// one bar. It is an explicit return value so the engine stays stateless and
// safe to share across concurrent symbol evaluations.
type Evaluation struct {
	Direction       Direction         `json:"direction"`
	Results         []ConditionResult `json:"results"`
	ConditionsMet   int               `json:"conditions_met"`
	TotalConditions int               `json:"total_conditions"`
	Confidence      float64           `json:"confidence"`
	Valid           bool              `json:"valid"`
}

// Satisfied lists the conditions that held.
func (e Evaluation) Satisfied() []Condition {
	out := make([]Condition, 0, len(e.Results))
	for _, r := range e.Results {
		if r.Met {
			out = append(out, r.Condition)
		}
	}
	return out
}

// Failures lists the conditions that did not hold, with reasons.
func (e Evaluation) Failures() []ConditionResult {
	out := make([]ConditionResult, 0, len(e.Results))
	for _, r := range e.Results {
		if !r.Met {
			out = append(out, r)
		}
	}
	return out
}
