package domain

import (
	"math"
	"testing"
)

func engineGreeks(t *testing.T, e *Engine, c *Contract, m *Market) Greeks {
	t.Helper()
	g, err := e.Greeks(c, m)
	if err != nil {
		t.Fatalf("Greeks: %v", err)
	}
	return g
}

func TestGreeksEuropeanLeafMatchesClosedForm(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	g := engineGreeks(t, e, call, m)

	q, err := BlackScholes{}.PriceEuropean(OptionTypeCall, 100, 100, 90.0/365.0, 0.05, 0.2)
	if err != nil {
		t.Fatalf("PriceEuropean: %v", err)
	}
	approx(t, "delta", g.Delta, q.Greeks.Delta, 1e-12)
	approx(t, "gamma", g.Gamma, q.Greeks.Gamma, 1e-12)
	approx(t, "theta", g.Theta, q.Greeks.Theta, 1e-12)
	approx(t, "vega", g.Vega, q.Greeks.Vega, 1e-12)
	approx(t, "rho", g.Rho, q.Greeks.Rho, 1e-12)
}

func TestGreeksGiveNegates(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	g := engineGreeks(t, e, call, m)
	neg := engineGreeks(t, e, Give(call), m)

	approx(t, "delta", neg.Delta, -g.Delta, 1e-12)
	approx(t, "gamma", neg.Gamma, -g.Gamma, 1e-12)
	approx(t, "theta", neg.Theta, -g.Theta, 1e-12)
	approx(t, "vega", neg.Vega, -g.Vega, 1e-12)
	approx(t, "rho", neg.Rho, -g.Rho, 1e-12)
}

func TestGreeksAndAdds(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	putC, putErr := EuropeanPut(100, 90, "ACME", CurrencyUSD)
	put := mustContract(t, putC, putErr)
	gc := engineGreeks(t, e, call, m)
	gp := engineGreeks(t, e, put, m)

	straddleC, straddleErr := Straddle(100, 90, "ACME", CurrencyUSD)
	straddle := mustContract(t, straddleC, straddleErr)
	gs := engineGreeks(t, e, straddle, m)

	approx(t, "delta", gs.Delta, gc.Delta+gp.Delta, 1e-12)
	approx(t, "gamma", gs.Gamma, gc.Gamma+gp.Gamma, 1e-12)
	approx(t, "vega", gs.Vega, gc.Vega+gp.Vega, 1e-12)

	// 平值跨式的 delta = 2N(d1)-1
	t90 := 90.0 / 365.0
	d1 := (math.Log(1.0) + (0.05+0.02)*t90) / (0.2 * math.Sqrt(t90))
	nd1 := 0.5 * (1 + math.Erf(d1/math.Sqrt2))
	approx(t, "straddle delta", gs.Delta, 2*nd1-1, 1e-9)
}

func TestGreeksConstScaleMultiplies(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	g := engineGreeks(t, e, call, m)
	scaled := engineGreeks(t, e, Scale(Const(3), call), m)

	approx(t, "delta", scaled.Delta, 3*g.Delta, 1e-12)
	approx(t, "vega", scaled.Vega, 3*g.Vega, 1e-12)
	approx(t, "rho", scaled.Rho, 3*g.Rho, 1e-12)
}

func TestGreeksBumpPathDeepInTheMoneyOr(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	// 深度价内的远期对零合约：持有人总是选远期，delta 经 bump 路径应接近 1
	fwdC, fwdErr := Forward(10, 30, "ACME", CurrencyUSD)
	fwd := mustContract(t, fwdC, fwdErr)
	g := engineGreeks(t, e, fwd.Or(Zero()), m)
	approx(t, "delta", g.Delta, 1, 1e-6)
	approx(t, "gamma", g.Gamma, 0, 1e-6)
}

func TestGreeksZeroAndOneAreInert(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	for name, c := range map[string]*Contract{"zero": Zero(), "one": One(CurrencyUSD)} {
		g := engineGreeks(t, e, c, m)
		if g != (Greeks{}) {
			t.Fatalf("%s greeks = %+v, want all zero", name, g)
		}
	}
}

func TestGreeksArithmetic(t *testing.T) {
	a := Greeks{Delta: 1, Gamma: 2, Theta: 3, Vega: 4, Rho: 5}
	b := Greeks{Delta: 10, Gamma: 20, Theta: 30, Vega: 40, Rho: 50}

	sum := a.Add(b)
	if sum.Delta != 11 || sum.Rho != 55 {
		t.Fatalf("Add = %+v", sum)
	}
	if n := a.Neg(); n.Gamma != -2 {
		t.Fatalf("Neg = %+v", n)
	}
	if s := a.Scale(2); s.Vega != 8 {
		t.Fatalf("Scale = %+v", s)
	}
}
