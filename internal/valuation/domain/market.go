package domain

import (
	"fmt"
	"math"
	"time"
)

const daysPerYear = 365.0

// Quote 单个标的的市场行情
type Quote struct {
	Spot       float64
	Volatility float64
}

// Market 只读的市场快照：标的行情、无风险利率、估值日。
// 估值引擎只读取快照，Greeks 的 bump 操作总是产生新快照，原快照不被修改。
type Market struct {
	quotes   map[string]Quote
	rate     float64
	evalDate time.Time
}

// NewMarket 构造市场快照。
// 负现价或非正波动率是构造期错误，不会推迟到估值时。
func NewMarket(evalDate time.Time, rate float64, quotes map[string]Quote) (*Market, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: degenerate risk-free rate", ErrNumericDomain)
	}
	copied := make(map[string]Quote, len(quotes))
	for name, q := range quotes {
		if q.Spot < 0 {
			return nil, fmt.Errorf("%w: negative spot for %s", ErrNumericDomain, name)
		}
		if q.Volatility <= 0 {
			return nil, fmt.Errorf("%w: non-positive volatility for %s", ErrNumericDomain, name)
		}
		copied[name] = q
	}
	return &Market{quotes: copied, rate: rate, evalDate: evalDate}, nil
}

// Spot 标的现价，缺失返回 ErrUnknownUnderlying
func (m *Market) Spot(name string) (float64, error) {
	q, ok := m.quotes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnderlying, name)
	}
	return q.Spot, nil
}

// Volatility 标的波动率，缺失返回 ErrUnknownUnderlying
func (m *Market) Volatility(name string) (float64, error) {
	q, ok := m.quotes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnderlying, name)
	}
	return q.Volatility, nil
}

// Has 标的是否在快照中
func (m *Market) Has(name string) bool {
	_, ok := m.quotes[name]
	return ok
}

// Rate 无风险利率
func (m *Market) Rate() float64 {
	return m.rate
}

// EvalDate 估值日
func (m *Market) EvalDate() time.Time {
	return m.evalDate
}

// Discount 未来 days 天的贴现因子
func (m *Market) Discount(days int) (float64, error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: negative time offset %d", ErrMalformedContract, days)
	}
	d := math.Exp(-m.rate * float64(days) / daysPerYear)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("%w: degenerate discount factor", ErrNumericDomain)
	}
	return d, nil
}

// clone 复制快照，bump 系列方法的基础
func (m *Market) clone() *Market {
	quotes := make(map[string]Quote, len(m.quotes))
	for name, q := range m.quotes {
		quotes[name] = q
	}
	return &Market{quotes: quotes, rate: m.rate, evalDate: m.evalDate}
}

// Forward 风险中性前推 days 天：现价按 e^(r*t) 漂移，估值日随之顺延。
// Then 组合子的 "marketModel-as-of-t" 语义由此实现。
func (m *Market) Forward(days int) *Market {
	if days == 0 {
		return m
	}
	next := m.clone()
	growth := math.Exp(m.rate * float64(days) / daysPerYear)
	for name, q := range next.quotes {
		q.Spot *= growth
		next.quotes[name] = q
	}
	next.evalDate = next.evalDate.AddDate(0, 0, days)
	return next
}

// BumpSpots 全部标的现价平移 delta，返回新快照
func (m *Market) BumpSpots(delta float64) *Market {
	next := m.clone()
	for name, q := range next.quotes {
		q.Spot += delta
		next.quotes[name] = q
	}
	return next
}

// BumpVols 全部标的波动率平移 delta，返回新快照
func (m *Market) BumpVols(delta float64) *Market {
	next := m.clone()
	for name, q := range next.quotes {
		q.Volatility += delta
		next.quotes[name] = q
	}
	return next
}

// BumpRate 无风险利率平移 delta，返回新快照
func (m *Market) BumpRate(delta float64) *Market {
	next := m.clone()
	next.rate += delta
	return next
}
