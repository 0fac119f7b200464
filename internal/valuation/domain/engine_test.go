package domain

import (
	"errors"
	"math"
	"testing"
)

func mustContract(t *testing.T, c *Contract, err error) *Contract {
	t.Helper()
	if err != nil {
		t.Fatalf("contract construction: %v", err)
	}
	return c
}

func engineValue(t *testing.T, e *Engine, c *Contract, m *Market) float64 {
	t.Helper()
	v, err := e.Value(c, m)
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	f, _ := v.Amount.Float64()
	return f
}

func acmeMarket(t *testing.T) *Market {
	t.Helper()
	return testMarket(t, 0.05, map[string]Quote{"ACME": {Spot: 100, Volatility: 0.2}})
}

func TestEnginePrimitives(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	if got := engineValue(t, e, Zero(), m); got != 0 {
		t.Fatalf("Zero = %g, want 0", got)
	}
	if got := engineValue(t, e, One(CurrencyUSD), m); got != 1 {
		t.Fatalf("One = %g, want 1", got)
	}
	if got := engineValue(t, e, Give(One(CurrencyUSD)), m); got != -1 {
		t.Fatalf("Give(One) = %g, want -1", got)
	}

	five := Scale(Const(5), One(CurrencyUSD))
	seven := Scale(Const(7), One(CurrencyUSD))
	if got := engineValue(t, e, five.And(seven), m); got != 12 {
		t.Fatalf("And = %g, want 12", got)
	}
	if got := engineValue(t, e, five.Or(seven), m); got != 7 {
		t.Fatalf("Or = %g, want 7", got)
	}
}

func TestEngineZeroCouponBond(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	zcbC, zcbErr := ZeroCouponBond(365, 1000, CurrencyUSD)
	zcb := mustContract(t, zcbC, zcbErr)
	approx(t, "zcb", engineValue(t, e, zcb, m), 951.229424500714, 1e-9)
}

func TestEngineEuropeanCallGolden(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	approx(t, "call", engineValue(t, e, call, m), 4.579032085234, 1e-9)

	// 组合子展开路径与直接闭式解一致
	q, err := BlackScholes{}.PriceEuropean(OptionTypeCall, 100, 100, 90.0/365.0, 0.05, 0.2)
	if err != nil {
		t.Fatalf("PriceEuropean: %v", err)
	}
	approx(t, "call vs closed form", engineValue(t, e, call, m), q.Price, 1e-12)
}

func TestEnginePutCallParity(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	putC, putErr := EuropeanPut(100, 90, "ACME", CurrencyUSD)
	put := mustContract(t, putC, putErr)
	fwdC, fwdErr := Forward(100, 90, "ACME", CurrencyUSD)
	fwd := mustContract(t, fwdC, fwdErr)

	lhs := engineValue(t, e, call.And(Give(put)), m)
	rhs := engineValue(t, e, fwd, m)
	approx(t, "parity", lhs, rhs, 1e-9)
}

func TestEngineForwardValue(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	fwdC, fwdErr := Forward(90, 90, "ACME", CurrencyUSD)
	fwd := mustContract(t, fwdC, fwdErr)
	want := 100 - 90*math.Exp(-0.05*90.0/365.0)
	approx(t, "forward", engineValue(t, e, fwd, m), want, 1e-9)
	approx(t, "forward golden", engineValue(t, e, fwd, m), 11.102777131537, 1e-9)
}

func TestEngineIntrinsicAtExpiry(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	callC, callErr := EuropeanCall(90, 0, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	approx(t, "intrinsic call", engineValue(t, e, call, m), 10, 1e-12)

	putC, putErr := EuropeanPut(90, 0, "ACME", CurrencyUSD)
	put := mustContract(t, putC, putErr)
	approx(t, "intrinsic put", engineValue(t, e, put, m), 0, 1e-12)
}

func TestEngineDegenerateEuropeanLeaves(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	// 零行权价看涨等价于持有标的：贴现抵消风险中性漂移，价值即现价
	freeCallC, freeCallErr := EuropeanCall(0, 90, "ACME", CurrencyUSD)
	freeCall := mustContract(t, freeCallC, freeCallErr)
	approx(t, "zero strike call", engineValue(t, e, freeCall, m), 100, 1e-9)

	g, err := e.Greeks(freeCall, m)
	if err != nil {
		t.Fatalf("Greeks: %v", err)
	}
	if g.Delta <= 0 {
		t.Fatalf("zero strike call delta = %g, want positive", g.Delta)
	}

	// 零现价是合法行情，不落入对数正态定价公式
	worthless := testMarket(t, 0.05, map[string]Quote{"ACME": {Spot: 0, Volatility: 0.2}})
	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	approx(t, "zero spot call", engineValue(t, e, call, worthless), 0, 1e-12)

	putC, putErr := EuropeanPut(100, 90, "ACME", CurrencyUSD)
	put := mustContract(t, putC, putErr)
	wantPut := 100 * math.Exp(-0.05*90.0/365.0)
	approx(t, "zero spot put", engineValue(t, e, put, worthless), wantPut, 1e-9)
}

func TestEngineTruncateKillsLateAcquisition(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	innerC, innerErr := Then(60, Scale(Const(100), One(CurrencyUSD)))
	inner := mustContract(t, innerC, innerErr)

	deadC, deadErr := Truncate(30, inner)
	dead := mustContract(t, deadC, deadErr)
	approx(t, "beyond horizon", engineValue(t, e, dead, m), 0, 1e-12)

	aliveC, aliveErr := Truncate(90, inner)
	alive := mustContract(t, aliveC, aliveErr)
	want := math.Exp(-0.05*60.0/365.0) * 100
	approx(t, "within horizon", engineValue(t, e, alive, m), want, 1e-9)
}

func TestEngineWhenTriggerNow(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	payout := Scale(Const(10), One(CurrencyUSD))

	hit := When(Gt(Underlying("ACME"), Const(50)), payout)
	approx(t, "triggered", engineValue(t, e, hit, m), 10, 1e-12)

	miss := When(Gt(Underlying("ACME"), Const(150)), payout)
	approx(t, "untriggered", engineValue(t, e, miss, m), 0, 1e-12)
}

func TestEngineAnytime(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	always := Gt(Const(1), Const(0))
	never := Gt(Underlying("ACME"), Const(1e6))

	// 条件恒真、收益为常数：最优行权在 0 天，贴现因子为 1
	c := Anytime(always, Scale(Const(100), One(CurrencyUSD)))
	approx(t, "exercise now", engineValue(t, e, c, m), 100, 1e-12)

	// 条件从不满足则不行权
	dead := Anytime(never, Scale(Const(100), One(CurrencyUSD)))
	approx(t, "never triggered", engineValue(t, e, dead, m), 0, 1e-12)

	// 收益为标的现价时，贴现恰好抵消风险中性漂移，任何行权日价值都等于现价
	spot := Anytime(always, Scale(Underlying("ACME"), One(CurrencyUSD)))
	approx(t, "drift cancels discount", engineValue(t, e, spot, m), 100, 1e-9)
}

func TestEngineStrictRejectsApproximations(t *testing.T) {
	e := NewEngine(Options{Strict: true}, nil)
	m := acmeMarket(t)

	cond := Gt(Underlying("ACME"), Const(50))
	payout := Scale(Const(10), One(CurrencyUSD))

	truncatedC, truncatedErr := Truncate(30, payout)

	tests := []struct {
		name string
		c    *Contract
	}{
		{"when", When(cond, payout)},
		{"truncate", mustContract(t, truncatedC, truncatedErr)},
		{"anytime", Anytime(cond, payout)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Value(tc.c, m); !errors.Is(err, ErrUnsupportedApproximation) {
				t.Fatalf("err = %v, want ErrUnsupportedApproximation", err)
			}
		})
	}

	// 严格模式不影响纯欧式结构
	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)
	approx(t, "strict european", engineValue(t, e, call, m), 4.579032085234, 1e-9)
}

func TestEngineValidationErrors(t *testing.T) {
	e := NewEngine(Options{MaxDepth: 8}, nil)
	m := acmeMarket(t)

	deep := One(CurrencyUSD)
	for i := 0; i < 20; i++ {
		deep = Give(deep)
	}
	if _, err := e.Value(deep, m); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("deep tree err = %v, want ErrDepthExceeded", err)
	}

	mixed := One(CurrencyUSD).And(One(CurrencyEUR))
	if _, err := e.Value(mixed, m); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("mixed currency err = %v, want ErrCurrencyMismatch", err)
	}

	ghost := Scale(Underlying("GHOST"), One(CurrencyUSD))
	if _, err := e.Value(ghost, m); !errors.Is(err, ErrMarketIncomplete) {
		t.Fatalf("missing quote err = %v, want ErrMarketIncomplete", err)
	}

	if _, err := e.Value(nil, m); !errors.Is(err, ErrMalformedContract) {
		t.Fatalf("nil contract err = %v, want ErrMalformedContract", err)
	}
}

func TestEngineEvaluationErrors(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	boolScale := Scale(Gt(Underlying("ACME"), Const(50)), One(CurrencyUSD))
	if _, err := e.Value(boolScale, m); !errors.Is(err, ErrBooleanObservable) {
		t.Fatalf("boolean scale err = %v, want ErrBooleanObservable", err)
	}

	divZero := Scale(Div(Const(1), Const(0)), One(CurrencyUSD))
	if _, err := e.Value(divZero, m); !errors.Is(err, ErrNumericDomain) {
		t.Fatalf("div by zero err = %v, want ErrNumericDomain", err)
	}
}

func TestEngineDiscountMonotonicity(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	prev := math.Inf(1)
	for _, days := range []int{30, 90, 180, 365} {
		zcbC, zcbErr := ZeroCouponBond(days, 1000, CurrencyUSD)
		zcb := mustContract(t, zcbC, zcbErr)
		v := engineValue(t, e, zcb, m)
		if v >= prev {
			t.Fatalf("value at %d days = %g, not below %g", days, v, prev)
		}
		prev = v
	}
}

func TestEngineSpreadDecomposition(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	spreadC, spreadErr := BullCallSpread(95, 105, 90, "ACME", CurrencyUSD)
	spread := mustContract(t, spreadC, spreadErr)
	lowC, lowErr := EuropeanCall(95, 90, "ACME", CurrencyUSD)
	low := mustContract(t, lowC, lowErr)
	highC, highErr := EuropeanCall(105, 90, "ACME", CurrencyUSD)
	high := mustContract(t, highC, highErr)

	want := engineValue(t, e, low, m) - engineValue(t, e, high, m)
	approx(t, "spread", engineValue(t, e, spread, m), want, 1e-9)
	if engineValue(t, e, spread, m) <= 0 {
		t.Fatalf("bull spread should have positive value")
	}

	// 价差到期收益封顶于行权价之差，现值不超过其贴现
	disc := math.Exp(-0.05 * 90.0 / 365.0)
	if v := engineValue(t, e, spread, m); v > (105-95)*disc {
		t.Fatalf("spread value %g exceeds discounted cap %g", v, (105-95)*disc)
	}

	// 深度价内时两腿同时行权，价值收敛到封顶贴现值
	deep := testMarket(t, 0.05, map[string]Quote{"ACME": {Spot: 200, Volatility: 0.2}})
	approx(t, "deep ITM spread", engineValue(t, e, spread, deep), (105-95)*disc, 1e-6)
}

func TestEngineSpreadOption(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := testMarket(t, 0.05, map[string]Quote{
		"ACME": {Spot: 100, Volatility: 0.2},
		"BETA": {Spot: 90, Volatility: 0.3},
	})

	// 双标的价差走结构化路径：远期差为确定值，贴现与漂移相抵
	disc := math.Exp(-0.05 * 90.0 / 365.0)
	itmC, itmErr := SpreadOption(5, 90, "ACME", "BETA", CurrencyUSD)
	itm := mustContract(t, itmC, itmErr)
	approx(t, "ITM spread option", engineValue(t, e, itm, m), 10-5*disc, 1e-9)

	otmC, otmErr := SpreadOption(50, 90, "ACME", "BETA", CurrencyUSD)
	otm := mustContract(t, otmC, otmErr)
	approx(t, "OTM spread option", engineValue(t, e, otm, m), 0, 1e-12)
}

func TestEngineIronCondorDecomposition(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	condorC, condorErr := IronCondor(90, 95, 105, 110, 90, "ACME", CurrencyUSD)
	condor := mustContract(t, condorC, condorErr)
	longPutC, longPutErr := EuropeanPut(90, 90, "ACME", CurrencyUSD)
	longPut := mustContract(t, longPutC, longPutErr)
	shortPutC, shortPutErr := EuropeanPut(95, 90, "ACME", CurrencyUSD)
	shortPut := mustContract(t, shortPutC, shortPutErr)
	shortCallC, shortCallErr := EuropeanCall(105, 90, "ACME", CurrencyUSD)
	shortCall := mustContract(t, shortCallC, shortCallErr)
	longCallC, longCallErr := EuropeanCall(110, 90, "ACME", CurrencyUSD)
	longCall := mustContract(t, longCallC, longCallErr)

	want := engineValue(t, e, longPut, m) - engineValue(t, e, shortPut, m) -
		engineValue(t, e, shortCall, m) + engineValue(t, e, longCall, m)
	got := engineValue(t, e, condor, m)
	approx(t, "iron condor", got, want, 1e-9)
	if got >= 0 {
		t.Fatalf("iron condor sells optionality, value %g should be negative", got)
	}
}

func TestEngineCalendarSpread(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	calendarC, calendarErr := CalendarSpread(100, 30, 90, "ACME", CurrencyUSD)
	calendar := mustContract(t, calendarC, calendarErr)
	nearC, nearErr := EuropeanCall(100, 30, "ACME", CurrencyUSD)
	near := mustContract(t, nearC, nearErr)
	farC, farErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	far := mustContract(t, farC, farErr)

	want := engineValue(t, e, far, m) - engineValue(t, e, near, m)
	got := engineValue(t, e, calendar, m)
	approx(t, "calendar spread", got, want, 1e-9)
	if got <= 0 {
		t.Fatalf("long-dated call should carry more time value, got %g", got)
	}
}

func TestEnginePrincipalProtectedNote(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	ppnC, ppnErr := PrincipalProtectedNote(1000, 0.8, 100, 90, "ACME", CurrencyUSD)
	ppn := mustContract(t, ppnC, ppnErr)
	bondC, bondErr := ZeroCouponBond(90, 1000, CurrencyUSD)
	bond := mustContract(t, bondC, bondErr)
	callC, callErr := EuropeanCall(100, 90, "ACME", CurrencyUSD)
	call := mustContract(t, callC, callErr)

	want := engineValue(t, e, bond, m) + 0.8*engineValue(t, e, call, m)
	got := engineValue(t, e, ppn, m)
	approx(t, "principal protected note", got, want, 1e-9)
	if got <= engineValue(t, e, bond, m) {
		t.Fatalf("note %g should be worth more than the bare bond", got)
	}
}

func TestEngineReverseConvertible(t *testing.T) {
	e := NewEngine(Options{}, nil)
	m := acmeMarket(t)

	rcC, rcErr := ReverseConvertible(1000, 25, []int{90, 180, 270, 365}, 80, 365, "ACME", CurrencyUSD)
	rc := mustContract(t, rcC, rcErr)

	coupons := 0.0
	for _, day := range []int{90, 180, 270, 365} {
		cC, cErr := Then(day, Scale(Const(25), One(CurrencyUSD)))
		c := mustContract(t, cC, cErr)
		coupons += engineValue(t, e, c, m)
	}
	bondC, bondErr := ZeroCouponBond(365, 1000, CurrencyUSD)
	bond := mustContract(t, bondC, bondErr)
	putC, putErr := EuropeanPut(80, 365, "ACME", CurrencyUSD)
	put := mustContract(t, putC, putErr)

	want := coupons + engineValue(t, e, bond, m) - engineValue(t, e, put, m)
	approx(t, "reverse convertible", engineValue(t, e, rc, m), want, 1e-9)
}
