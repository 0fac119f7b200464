package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

var testDate = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

func testMarket(t *testing.T, rate float64, quotes map[string]Quote) *Market {
	t.Helper()
	m, err := NewMarket(testDate, rate, quotes)
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}
	return m
}

func TestNewMarketRejectsBadQuotes(t *testing.T) {
	tests := []struct {
		name   string
		rate   float64
		quotes map[string]Quote
	}{
		{"negative spot", 0.05, map[string]Quote{"ACME": {Spot: -1, Volatility: 0.2}}},
		{"zero volatility", 0.05, map[string]Quote{"ACME": {Spot: 100, Volatility: 0}}},
		{"negative volatility", 0.05, map[string]Quote{"ACME": {Spot: 100, Volatility: -0.2}}},
		{"NaN rate", math.NaN(), nil},
		{"Inf rate", math.Inf(1), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewMarket(testDate, tc.rate, tc.quotes); !errors.Is(err, ErrNumericDomain) {
				t.Fatalf("err = %v, want ErrNumericDomain", err)
			}
		})
	}
}

func TestMarketSpotMissing(t *testing.T) {
	m := testMarket(t, 0.05, map[string]Quote{"ACME": {Spot: 100, Volatility: 0.2}})
	if _, err := m.Spot("GHOST"); !errors.Is(err, ErrUnknownUnderlying) {
		t.Fatalf("err = %v, want ErrUnknownUnderlying", err)
	}
	if _, err := m.Volatility("GHOST"); !errors.Is(err, ErrUnknownUnderlying) {
		t.Fatalf("err = %v, want ErrUnknownUnderlying", err)
	}
}

func TestMarketDiscount(t *testing.T) {
	m := testMarket(t, 0.05, nil)

	d, err := m.Discount(365)
	if err != nil {
		t.Fatalf("Discount(365): %v", err)
	}
	approx(t, "discount", d, math.Exp(-0.05), 1e-12)

	d0, err := m.Discount(0)
	if err != nil {
		t.Fatalf("Discount(0): %v", err)
	}
	if d0 != 1 {
		t.Fatalf("Discount(0) = %g, want 1", d0)
	}

	if _, err := m.Discount(-1); !errors.Is(err, ErrMalformedContract) {
		t.Fatalf("Discount(-1) err = %v, want ErrMalformedContract", err)
	}
}

func TestMarketForwardDriftsSpots(t *testing.T) {
	m := testMarket(t, 0.05, map[string]Quote{"ACME": {Spot: 100, Volatility: 0.2}})
	fwd := m.Forward(365)

	s, err := fwd.Spot("ACME")
	if err != nil {
		t.Fatalf("Spot: %v", err)
	}
	approx(t, "forward spot", s, 100*math.Exp(0.05), 1e-9)

	if got := fwd.EvalDate(); !got.Equal(testDate.AddDate(0, 0, 365)) {
		t.Fatalf("eval date = %v, want %v", got, testDate.AddDate(0, 0, 365))
	}

	// 原快照不受影响
	orig, _ := m.Spot("ACME")
	if orig != 100 {
		t.Fatalf("original spot mutated: %g", orig)
	}

	// 波动率不随前推变化
	sigma, _ := fwd.Volatility("ACME")
	if sigma != 0.2 {
		t.Fatalf("forward volatility = %g, want 0.2", sigma)
	}
}

func TestMarketBumpsAreCopyOnWrite(t *testing.T) {
	m := testMarket(t, 0.05, map[string]Quote{"ACME": {Spot: 100, Volatility: 0.2}})

	up := m.BumpSpots(0.5)
	if s, _ := up.Spot("ACME"); s != 100.5 {
		t.Fatalf("bumped spot = %g, want 100.5", s)
	}
	if s, _ := m.Spot("ACME"); s != 100 {
		t.Fatalf("original spot mutated: %g", s)
	}

	vol := m.BumpVols(0.01)
	if v, _ := vol.Volatility("ACME"); v != 0.21 {
		t.Fatalf("bumped volatility = %g, want 0.21", v)
	}

	rate := m.BumpRate(0.001)
	if rate.Rate() != 0.051 {
		t.Fatalf("bumped rate = %g, want 0.051", rate.Rate())
	}
	if m.Rate() != 0.05 {
		t.Fatalf("original rate mutated: %g", m.Rate())
	}
}
