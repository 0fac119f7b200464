package domain

import (
	"fmt"
	"math"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL" // 看涨期权
	OptionTypePut  OptionType = "PUT"  // 看跌期权
)

// Greeks 希腊字母。
// 约定：Delta 以标的单位计，Gamma 为 Delta 对现价的变化率，
// Theta 为每日时间衰减，Vega 对应波动率每变动 1%，Rho 对应利率每变动 1%。
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// Add 分量相加
func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// Neg 分量取负
func (g Greeks) Neg() Greeks {
	return g.Scale(-1)
}

// Scale 分量乘以常数
func (g Greeks) Scale(k float64) Greeks {
	return Greeks{
		Delta: k * g.Delta,
		Gamma: k * g.Gamma,
		Theta: k * g.Theta,
		Vega:  k * g.Vega,
		Rho:   k * g.Rho,
	}
}

// EuropeanQuote 欧式期权定价结果
type EuropeanQuote struct {
	Price  float64
	Greeks Greeks
}

// EuropeanPricer 欧式期权叶子定价器。
// 这是外部专业定价库的替换接缝：任何实现只要遵守相同的
// Greeks 符号与单位约定，就可以替代内置的闭式解而不改变组合子语义。
type EuropeanPricer interface {
	PriceEuropean(typ OptionType, spot, strike, yearsToExpiry, rate, volatility float64) (EuropeanQuote, error)
}

// BlackScholes 内置的风险中性对数正态闭式定价器
type BlackScholes struct{}

// PriceEuropean 计算欧式期权价格与希腊字母
func (BlackScholes) PriceEuropean(typ OptionType, s, k, t, r, sigma float64) (EuropeanQuote, error) {
	if t <= 0 {
		return EuropeanQuote{}, fmt.Errorf("%w: non-positive time to maturity %g", ErrNumericDomain, t)
	}
	if sigma <= 0 {
		return EuropeanQuote{}, fmt.Errorf("%w: non-positive volatility %g", ErrNumericDomain, sigma)
	}
	if s <= 0 || k <= 0 {
		return EuropeanQuote{}, fmt.Errorf("%w: non-positive spot or strike", ErrNumericDomain)
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	pdfD1 := normPDF(d1)
	df := math.Exp(-r * t)

	var price, delta, theta, rho float64
	gamma := pdfD1 / (s * sigma * sqrtT)
	vega := s * pdfD1 * sqrtT

	switch typ {
	case OptionTypeCall:
		price = s*normCDF(d1) - k*df*normCDF(d2)
		delta = normCDF(d1)
		theta = -(s*pdfD1*sigma)/(2*sqrtT) - r*k*df*normCDF(d2)
		rho = k * t * df * normCDF(d2)
	case OptionTypePut:
		price = k*df*normCDF(-d2) - s*normCDF(-d1)
		delta = normCDF(d1) - 1
		theta = -(s*pdfD1*sigma)/(2*sqrtT) + r*k*df*normCDF(-d2)
		rho = -k * t * df * normCDF(-d2)
	default:
		return EuropeanQuote{}, fmt.Errorf("%w: unknown option type %q", ErrNumericDomain, typ)
	}

	return EuropeanQuote{
		Price: price,
		Greeks: Greeks{
			Delta: delta,
			Gamma: gamma,
			Theta: theta / daysPerYear, // 每日
			Vega:  vega / 100,          // 每 1% 波动率
			Rho:   rho / 100,           // 每 1% 利率
		},
	}, nil
}

// normCDF 标准正态分布累积分布函数
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF 标准正态分布概率密度函数
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
