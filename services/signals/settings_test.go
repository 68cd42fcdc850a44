package signals

import "testing"

func TestDefaultSettingsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"atr multiplier too low", func(s *Settings) { s.ATRMultiplier = 0.1 }},
		{"atr multiplier too high", func(s *Settings) { s.ATRMultiplier = 11 }},
		{"ema5 threshold zero", func(s *Settings) { s.EMA5RisingThreshold = 0 }},
		{"ema8 threshold too high", func(s *Settings) { s.EMA8RisingThreshold = 0.2 }},
		{"ema21 threshold negative", func(s *Settings) { s.EMA21RisingThreshold = -0.01 }},
		{"volatility filter zero", func(s *Settings) { s.VolatilityFilter = 0 }},
		{"fomo filter too high", func(s *Settings) { s.FOMOFilter = 3.5 }},
		{"bad timeframe", func(s *Settings) { s.HigherTimeframe = "7m" }},
	}
	for _, c := range cases {
		s := Default()
		c.mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: accepted", c.name)
		}
	}
}

func TestSettingsHash(t *testing.T) {
	a, b := Default(), Default()
	if a.Hash() != b.Hash() {
		t.Fatal("identical settings hash differently")
	}
	b.ATRMultiplier = 3
	if a.Hash() == b.Hash() {
		t.Fatal("different settings share a hash")
	}
}

func TestNewEngineRejectsInvalidSettings(t *testing.T) {
	s := Default()
	s.ATRMultiplier = 0
	if _, err := NewEngine(s, nil); err == nil {
		t.Fatal("engine accepted invalid settings")
	}
}
