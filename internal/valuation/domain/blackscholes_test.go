package domain

import (
	"errors"
	"math"
	"testing"
)

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s = %.12f, want %.12f (tol %g)", name, got, want, tol)
	}
}

func TestBlackScholesCallGolden(t *testing.T) {
	// ATM call: s=100, k=100, t=90/365, r=5%, sigma=20%
	q, err := BlackScholes{}.PriceEuropean(OptionTypeCall, 100, 100, 90.0/365.0, 0.05, 0.2)
	if err != nil {
		t.Fatalf("PriceEuropean: %v", err)
	}
	approx(t, "price", q.Price, 4.579032085234, 1e-9)
	approx(t, "delta", q.Greeks.Delta, 0.568987591894, 1e-9)
	approx(t, "gamma", q.Greeks.Gamma, 0.039568192433, 1e-9)
	approx(t, "theta", q.Greeks.Theta, -0.028848287238, 1e-9)
	approx(t, "vega", q.Greeks.Vega, 0.195130812000, 1e-9)
	approx(t, "rho", q.Greeks.Rho, 0.129007546284, 1e-9)
}

func TestBlackScholesPutGolden(t *testing.T) {
	q, err := BlackScholes{}.PriceEuropean(OptionTypePut, 100, 100, 90.0/365.0, 0.05, 0.2)
	if err != nil {
		t.Fatalf("PriceEuropean: %v", err)
	}
	approx(t, "price", q.Price, 3.353724161304, 1e-9)
	approx(t, "delta", q.Greeks.Delta, -0.431012408106, 1e-9)
	approx(t, "rho", q.Greeks.Rho, -0.114546488972, 1e-9)
}

func TestBlackScholesPutCallParity(t *testing.T) {
	s, k, tt, r, sigma := 105.0, 95.0, 0.5, 0.03, 0.25
	call, err := BlackScholes{}.PriceEuropean(OptionTypeCall, s, k, tt, r, sigma)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	put, err := BlackScholes{}.PriceEuropean(OptionTypePut, s, k, tt, r, sigma)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	parity := s - k*math.Exp(-r*tt)
	approx(t, "call-put", call.Price-put.Price, parity, 1e-9)
	approx(t, "deltaCall-deltaPut", call.Greeks.Delta-put.Greeks.Delta, 1, 1e-9)
}

func TestBlackScholesRejectsDegenerateInputs(t *testing.T) {
	tests := []struct {
		name              string
		s, k, t, r, sigma float64
	}{
		{"zero maturity", 100, 100, 0, 0.05, 0.2},
		{"negative maturity", 100, 100, -0.1, 0.05, 0.2},
		{"zero volatility", 100, 100, 0.5, 0.05, 0},
		{"negative volatility", 100, 100, 0.5, 0.05, -0.2},
		{"zero spot", 0, 100, 0.5, 0.05, 0.2},
		{"zero strike", 100, 0, 0.5, 0.05, 0.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BlackScholes{}.PriceEuropean(OptionTypeCall, tc.s, tc.k, tc.t, tc.r, tc.sigma)
			if !errors.Is(err, ErrNumericDomain) {
				t.Fatalf("err = %v, want ErrNumericDomain", err)
			}
		})
	}
}
