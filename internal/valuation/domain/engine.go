package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// noBound 表示当前递归上下文中没有生效的 Truncate 上界
const noBound = -1

// Value 单一货币计价的合约价值
type Value struct {
	Amount   decimal.Decimal
	Currency Currency
}

// Options 估值引擎配置
type Options struct {
	// MaxDepth 合约树最大深度，防止构造端产生的超深递归
	MaxDepth int
	// AnytimeSteps Anytime 离散化候选行权时点数
	AnytimeSteps int
	// DefaultHorizon Anytime 未被 Truncate 约束时的默认候选区间（天）
	DefaultHorizon int
	// Strict 严格模式：When/Truncate/Anytime 的欧式近似被拒绝而不是静默采用
	Strict bool
}

// Engine 递归估值引擎。
// 纯函数式：同一 (合约, 快照) 输入总是产生同一输出，估值过程不修改任何共享状态，
// 因此独立估值（不同合约、不同 bump 场景）可以无锁并发执行。
type Engine struct {
	opts   Options
	pricer EuropeanPricer
}

// NewEngine 创建估值引擎，pricer 为 nil 时使用内置 Black-Scholes 闭式解
func NewEngine(opts Options, pricer EuropeanPricer) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 256
	}
	if opts.AnytimeSteps <= 0 {
		opts.AnytimeSteps = 16
	}
	if opts.DefaultHorizon <= 0 {
		opts.DefaultHorizon = 365
	}
	if pricer == nil {
		pricer = BlackScholes{}
	}
	return &Engine{opts: opts, pricer: pricer}
}

// Value 对合约估值。数据完整性校验在首次递归下降之前完成，
// 校验失败时不会产生任何部分结果。
func (e *Engine) Value(c *Contract, m *Market) (Value, error) {
	cur, err := e.validate(c, m)
	if err != nil {
		return Value{}, err
	}
	v, err := e.eval(c, m, 0, noBound, 0)
	if err != nil {
		return Value{}, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}, fmt.Errorf("%w: non-finite contract value", ErrNumericDomain)
	}
	return valueOf(v, cur), nil
}

// Strict 返回引擎是否运行在严格模式
func (e *Engine) Strict() bool {
	return e.opts.Strict
}

func valueOf(v float64, cur Currency) Value {
	return Value{Amount: decimal.NewFromFloat(v), Currency: cur}
}

// validate 一次性的估值前校验：深度上界、标的完整性、货币一致性。
// 用显式栈遍历，校验本身不受树深影响。
func (e *Engine) validate(c *Contract, m *Market) (Currency, error) {
	if c == nil {
		return "", fmt.Errorf("%w: nil contract", ErrMalformedContract)
	}
	underlyings := make(map[string]struct{})
	currencies := make(map[Currency]struct{})

	type frame struct {
		node  *Contract
		depth int
	}
	stack := []frame{{c, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > e.opts.MaxDepth {
			return "", fmt.Errorf("%w: deeper than %d", ErrDepthExceeded, e.opts.MaxDepth)
		}
		n := f.node
		if n.kind == KindOne {
			currencies[n.currency] = struct{}{}
		}
		if n.obs != nil {
			n.obs.collectUnderlyings(underlyings)
		}
		if n.left != nil {
			stack = append(stack, frame{n.left, f.depth + 1})
		}
		if n.right != nil {
			stack = append(stack, frame{n.right, f.depth + 1})
		}
	}

	for name := range underlyings {
		if !m.Has(name) {
			return "", fmt.Errorf("%w: no quote for %s", ErrMarketIncomplete, name)
		}
	}
	if len(currencies) > 1 {
		return "", fmt.Errorf("%w: %d settlement currencies in one tree", ErrCurrencyMismatch, len(currencies))
	}
	for cur := range currencies {
		return cur, nil
	}
	return "", nil
}

// eval 组合子语义的结构递归。
// lag 表示外层已经流逝的天数（仅用于 theta bump），最外层 Then 的偏移按 lag 缩短；
// bound 是当前生效的 Truncate 上界（相对天数），noBound 表示无上界。
func (e *Engine) eval(c *Contract, m *Market, lag, bound, depth int) (float64, error) {
	if depth > e.opts.MaxDepth {
		return 0, fmt.Errorf("%w: deeper than %d", ErrDepthExceeded, e.opts.MaxDepth)
	}

	switch c.kind {
	case KindZero:
		return 0, nil

	case KindOne:
		return 1, nil

	case KindGive:
		v, err := e.eval(c.left, m, lag, bound, depth+1)
		if err != nil {
			return 0, err
		}
		return -v, nil

	case KindAnd:
		v1, err := e.eval(c.left, m, lag, bound, depth+1)
		if err != nil {
			return 0, err
		}
		v2, err := e.eval(c.right, m, lag, bound, depth+1)
		if err != nil {
			return 0, err
		}
		return v1 + v2, nil

	case KindOr:
		// 持有人最优行权：取较高的一边
		v1, err := e.eval(c.left, m, lag, bound, depth+1)
		if err != nil {
			return 0, err
		}
		v2, err := e.eval(c.right, m, lag, bound, depth+1)
		if err != nil {
			return 0, err
		}
		return math.Max(v1, v2), nil

	case KindThen:
		eff := c.days - lag
		if eff < 0 {
			eff = 0
		}
		if bound != noBound && eff > bound {
			// 获得时点超出 Truncate 上界，合约作废
			return 0, nil
		}
		if leaf, ok := matchEuropeanLeaf(c); ok {
			q, priced, err := e.priceEuropeanLeaf(leaf, m, eff)
			if err != nil {
				return 0, err
			}
			if priced {
				return q.Price, nil
			}
		}
		disc, err := m.Discount(eff)
		if err != nil {
			return 0, err
		}
		v, err := e.eval(c.left, m.Forward(eff), 0, shrinkBound(bound, eff), depth+1)
		if err != nil {
			return 0, err
		}
		return disc * v, nil

	case KindScale:
		k, err := c.obs.Evaluate(m)
		if err != nil {
			return 0, err
		}
		v, err := e.eval(c.left, m, lag, bound, depth+1)
		if err != nil {
			return 0, err
		}
		return k * v, nil

	case KindWhen:
		// 欧式近似：条件当前为真则立即获得，否则视为未触发
		if e.opts.Strict {
			return 0, fmt.Errorf("%w: When valued via trigger-now approximation", ErrUnsupportedApproximation)
		}
		triggered, err := c.obs.EvaluateBool(m)
		if err != nil {
			return 0, err
		}
		if !triggered {
			return 0, nil
		}
		return e.eval(c.left, m, lag, bound, depth+1)

	case KindTruncate:
		if e.opts.Strict {
			return 0, fmt.Errorf("%w: Truncate valued as European-style cap", ErrUnsupportedApproximation)
		}
		eff := c.days - lag
		if eff < 0 {
			eff = 0
		}
		nb := eff
		if bound != noBound && bound < nb {
			nb = bound
		}
		return e.eval(c.left, m, lag, nb, depth+1)

	case KindAnytime:
		// 离散候选行权时点上的内在价值比较，而非完整的最优停时求解
		if e.opts.Strict {
			return 0, fmt.Errorf("%w: Anytime valued on a discretized exercise grid", ErrUnsupportedApproximation)
		}
		return e.evalAnytime(c, m, bound, depth)
	}
	return 0, fmt.Errorf("%w: unknown combinator kind %d", ErrMalformedContract, c.kind)
}

// evalAnytime 在活动区间上离散枚举候选行权日，取贴现后价值最高者。
// 条件从未满足时价值为零（持有人不行权）。
func (e *Engine) evalAnytime(c *Contract, m *Market, bound, depth int) (float64, error) {
	horizon := bound
	if horizon == noBound {
		horizon = e.opts.DefaultHorizon
	}
	best := 0.0
	prev := -1
	for i := 0; i <= e.opts.AnytimeSteps; i++ {
		d := horizon * i / e.opts.AnytimeSteps
		if d == prev {
			continue
		}
		prev = d
		md := m.Forward(d)
		triggered, err := c.obs.EvaluateBool(md)
		if err != nil {
			return 0, err
		}
		if !triggered {
			continue
		}
		v, err := e.eval(c.left, md, 0, shrinkBound(bound, d), depth+1)
		if err != nil {
			return 0, err
		}
		disc, err := m.Discount(d)
		if err != nil {
			return 0, err
		}
		if cand := disc * v; cand > best {
			best = cand
		}
	}
	return best, nil
}

// shrinkBound 进入 days 天后的剩余 Truncate 上界
func shrinkBound(bound, days int) int {
	if bound == noBound {
		return noBound
	}
	if days > bound {
		return 0
	}
	return bound - days
}

// europeanLeaf 可用闭式解定价的欧式期权叶子
type europeanLeaf struct {
	typ        OptionType
	underlying string
	strike     float64
}

// matchEuropeanLeaf 识别 Then(t, Scale(max(0, ±(S-K)), One(cur))) 形态的叶子。
// 这是整个引擎中唯一发生真正随机建模的地方，其余组合子都是结构复合。
func matchEuropeanLeaf(c *Contract) (europeanLeaf, bool) {
	if c.kind != KindThen || c.left == nil || c.left.kind != KindScale {
		return europeanLeaf{}, false
	}
	scale := c.left
	if scale.left == nil || scale.left.kind != KindOne {
		return europeanLeaf{}, false
	}
	payoff := scale.obs
	if payoff == nil || payoff.kind != ObsBinary || payoff.binOp != OpMax {
		return europeanLeaf{}, false
	}
	inner := payoff.right
	if payoff.left.kind != ObsConst || payoff.left.value != 0 {
		// 允许 max(x, 0) 的参数顺序
		if payoff.right.kind != ObsConst || payoff.right.value != 0 {
			return europeanLeaf{}, false
		}
		inner = payoff.left
	}
	if inner.kind != ObsBinary || inner.binOp != OpSub {
		return europeanLeaf{}, false
	}
	l, r := inner.left, inner.right
	switch {
	case l.kind == ObsUnderlying && r.kind == ObsConst:
		return europeanLeaf{typ: OptionTypeCall, underlying: l.name, strike: r.value}, true
	case l.kind == ObsConst && r.kind == ObsUnderlying:
		return europeanLeaf{typ: OptionTypePut, underlying: r.name, strike: l.value}, true
	}
	return europeanLeaf{}, false
}

// priceEuropeanLeaf 欧式叶子估值。
// 到期偏移为零时直接取内在价值，闭式定价器本身拒绝非正到期时间。
// 零行权价或零现价不在对数正态定价公式的定义域内，但作为合约输入是合法的
// 确定性退化形态，此时返回 priced=false 交回结构化估值路径。
func (e *Engine) priceEuropeanLeaf(leaf europeanLeaf, m *Market, days int) (q EuropeanQuote, priced bool, err error) {
	s, err := m.Spot(leaf.underlying)
	if err != nil {
		return EuropeanQuote{}, false, err
	}
	if days == 0 {
		return intrinsicQuote(leaf, s), true, nil
	}
	if s <= 0 || leaf.strike <= 0 {
		return EuropeanQuote{}, false, nil
	}
	sigma, err := m.Volatility(leaf.underlying)
	if err != nil {
		return EuropeanQuote{}, false, err
	}
	q, err = e.pricer.PriceEuropean(leaf.typ, s, leaf.strike, float64(days)/daysPerYear, m.Rate(), sigma)
	if err != nil {
		return EuropeanQuote{}, false, err
	}
	return q, true, nil
}

// intrinsicQuote 到期日当天的内在价值与退化希腊字母
func intrinsicQuote(leaf europeanLeaf, s float64) EuropeanQuote {
	var price, delta float64
	if leaf.typ == OptionTypeCall {
		price = math.Max(0, s-leaf.strike)
		if s > leaf.strike {
			delta = 1
		}
	} else {
		price = math.Max(0, leaf.strike-s)
		if s < leaf.strike {
			delta = -1
		}
	}
	return EuropeanQuote{Price: price, Greeks: Greeks{Delta: delta}}
}
