package domain

// 常用衍生品与策略的派生构造器。
// 全部由十个原语组合而成，不引入新的估值语义。

// ZeroCouponBond 零息债券：maturity 天后收取 notional
func ZeroCouponBond(maturity int, notional float64, cur Currency) (*Contract, error) {
	return Then(maturity, Scale(Const(notional), One(cur)))
}

// EuropeanCall 欧式看涨期权：max(0, S-K) 于到期日支付
func EuropeanCall(strike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	payoff := Max(Const(0), Sub(Underlying(underlying), Const(strike)))
	return Then(maturity, Scale(payoff, One(cur)))
}

// EuropeanPut 欧式看跌期权：max(0, K-S) 于到期日支付
func EuropeanPut(strike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	payoff := Max(Const(0), Sub(Const(strike), Underlying(underlying)))
	return Then(maturity, Scale(payoff, One(cur)))
}

// AmericanCall 美式看涨期权：截止前任意时刻、价内时可行权
func AmericanCall(strike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	payoff := Max(Const(0), Sub(Underlying(underlying), Const(strike)))
	trigger := Gt(Underlying(underlying), Const(strike))
	return Truncate(maturity, Anytime(trigger, Scale(payoff, One(cur))))
}

// Forward 远期合约：到期日以 strike 买入标的的义务
func Forward(strike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	payoff := Sub(Underlying(underlying), Const(strike))
	return Then(maturity, Scale(payoff, One(cur)))
}

// InterestRateSwap 利率互换：固定腿对浮动腿，浮动利率由命名标的给出
func InterestRateSwap(notional, fixedRate float64, payments []int, floatRate string, cur Currency) (*Contract, error) {
	fixedLeg := Zero()
	floatingLeg := Zero()
	for _, day := range payments {
		fixed, err := Then(day, Scale(Const(notional*fixedRate), One(cur)))
		if err != nil {
			return nil, err
		}
		floating, err := Then(day, Scale(Mul(Const(notional), Underlying(floatRate)), One(cur)))
		if err != nil {
			return nil, err
		}
		fixedLeg = fixedLeg.And(fixed)
		floatingLeg = floatingLeg.And(floating)
	}
	return fixedLeg.And(Give(floatingLeg)), nil
}

// BarrierCall 障碍期权：knockIn 为 true 时为敲入，否则敲出
func BarrierCall(strike, barrier float64, maturity int, underlying string, knockIn bool, cur Currency) (*Contract, error) {
	payoff := Max(Const(0), Sub(Underlying(underlying), Const(strike)))
	if knockIn {
		cond := Gt(Underlying(underlying), Const(barrier))
		inner, err := Then(maturity, Scale(payoff, One(cur)))
		if err != nil {
			return nil, err
		}
		return Truncate(maturity, When(cond, inner))
	}
	cond := Lt(Underlying(underlying), Const(barrier))
	return Truncate(maturity, When(cond, Scale(payoff, One(cur))))
}

// Straddle 跨式组合：同价看涨加看跌
func Straddle(strike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	call, err := EuropeanCall(strike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	put, err := EuropeanPut(strike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	return call.And(put), nil
}

// BullCallSpread 牛市价差：买入低行权价看涨，卖出高行权价看涨
func BullCallSpread(lowStrike, highStrike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	long, err := EuropeanCall(lowStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	short, err := EuropeanCall(highStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	return long.And(Give(short)), nil
}

// Collar 领口组合：持有标的远期、买入保护性看跌、卖出备兑看涨
func Collar(putStrike, callStrike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	stock, err := Then(maturity, Scale(Underlying(underlying), One(cur)))
	if err != nil {
		return nil, err
	}
	put, err := EuropeanPut(putStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	call, err := EuropeanCall(callStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	return stock.And(put).And(Give(call)), nil
}

// SpreadOption 价差期权：max(0, S1-S2-K) 于到期日支付
func SpreadOption(strike float64, maturity int, underlying1, underlying2 string, cur Currency) (*Contract, error) {
	spread := Sub(Underlying(underlying1), Underlying(underlying2))
	payoff := Max(Const(0), Sub(spread, Const(strike)))
	return Then(maturity, Scale(payoff, One(cur)))
}

// IronCondor 铁鹰组合：卖出内侧宽跨式，买入外侧翼保护
// putWing < putStrike < callStrike < callWing
func IronCondor(putWing, putStrike, callStrike, callWing float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	longPut, err := EuropeanPut(putWing, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	shortPut, err := EuropeanPut(putStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	shortCall, err := EuropeanCall(callStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	longCall, err := EuropeanCall(callWing, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	return longPut.And(Give(shortPut)).And(Give(shortCall)).And(longCall), nil
}

// CalendarSpread 日历价差：卖出近月看涨，买入同价远月看涨
func CalendarSpread(strike float64, nearMaturity, farMaturity int, underlying string, cur Currency) (*Contract, error) {
	near, err := EuropeanCall(strike, nearMaturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	far, err := EuropeanCall(strike, farMaturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	return Give(near).And(far), nil
}

// PrincipalProtectedNote 保本票据：零息债券保本金，加 participation 倍看涨分享涨幅
func PrincipalProtectedNote(notional, participation, strike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	bond, err := ZeroCouponBond(maturity, notional, cur)
	if err != nil {
		return nil, err
	}
	call, err := EuropeanCall(strike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	return bond.And(Scale(Const(participation), call)), nil
}

// ReverseConvertible 可转换逆向票据：高票息加本金，卖出看跌承担下行
func ReverseConvertible(notional, coupon float64, couponDates []int, putStrike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	coupons := Zero()
	for _, day := range couponDates {
		c, err := Then(day, Scale(Const(coupon), One(cur)))
		if err != nil {
			return nil, err
		}
		coupons = coupons.And(c)
	}
	principal, err := ZeroCouponBond(maturity, notional, cur)
	if err != nil {
		return nil, err
	}
	put, err := EuropeanPut(putStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	return coupons.And(principal).And(Give(put)), nil
}

// Butterfly 蝶式价差：1x 低 + 1x 高 - 2x 中
func Butterfly(lowStrike, midStrike, highStrike float64, maturity int, underlying string, cur Currency) (*Contract, error) {
	low, err := EuropeanCall(lowStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	mid, err := EuropeanCall(midStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	high, err := EuropeanCall(highStrike, maturity, underlying, cur)
	if err != nil {
		return nil, err
	}
	middle := Give(Scale(Const(2), mid))
	return low.And(middle).And(high), nil
}
