package domain

import (
	"fmt"
	"math"
)

// bump-and-reprice 的固定扰动步长。
// 每类敏感度使用同一个 h，保证结果可复现。
const (
	bumpSpot = 0.01   // 现价，绝对值
	bumpVol  = 0.0005 // 波动率，绝对值
	bumpRate = 0.0001 // 利率，绝对值
	bumpDays = 1      // 时间，天
)

// Greeks 计算合约的敏感度。
// 仿射组合子（Zero/One/Give/And/Then/常量 Scale）按解析规则传播，
// 欧式叶子用闭式希腊字母，其余（Or/When/Truncate/Anytime/市场相关 Scale）
// 对子树做中心差分 bump-and-reprice。
func (e *Engine) Greeks(c *Contract, m *Market) (Greeks, error) {
	if _, err := e.validate(c, m); err != nil {
		return Greeks{}, err
	}
	return e.greeks(c, m, 0, noBound, 0)
}

// PriceAndGreeks 一次校验，同时返回价值与敏感度
func (e *Engine) PriceAndGreeks(c *Contract, m *Market) (Value, Greeks, error) {
	cur, err := e.validate(c, m)
	if err != nil {
		return Value{}, Greeks{}, err
	}
	v, err := e.eval(c, m, 0, noBound, 0)
	if err != nil {
		return Value{}, Greeks{}, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}, Greeks{}, fmt.Errorf("%w: non-finite contract value", ErrNumericDomain)
	}
	g, err := e.greeks(c, m, 0, noBound, 0)
	if err != nil {
		return Value{}, Greeks{}, err
	}
	return valueOf(v, cur), g, nil
}

func (e *Engine) greeks(c *Contract, m *Market, lag, bound, depth int) (Greeks, error) {
	switch c.kind {
	case KindZero, KindOne:
		// 无市场风险
		return Greeks{}, nil

	case KindGive:
		g, err := e.greeks(c.left, m, lag, bound, depth+1)
		if err != nil {
			return Greeks{}, err
		}
		return g.Neg(), nil

	case KindAnd:
		g1, err := e.greeks(c.left, m, lag, bound, depth+1)
		if err != nil {
			return Greeks{}, err
		}
		g2, err := e.greeks(c.right, m, lag, bound, depth+1)
		if err != nil {
			return Greeks{}, err
		}
		return g1.Add(g2), nil

	case KindScale:
		if !c.obs.IsConstant() {
			// 市场相关的缩放因子使节点非线性
			return e.bumpGreeks(c, m, lag, bound, depth)
		}
		k, err := c.obs.Evaluate(m)
		if err != nil {
			return Greeks{}, err
		}
		g, err := e.greeks(c.left, m, lag, bound, depth+1)
		if err != nil {
			return Greeks{}, err
		}
		return g.Scale(k), nil

	case KindThen:
		eff := c.days - lag
		if eff < 0 {
			eff = 0
		}
		if bound != noBound && eff > bound {
			return Greeks{}, nil
		}
		if leaf, ok := matchEuropeanLeaf(c); ok {
			q, priced, err := e.priceEuropeanLeaf(leaf, m, eff)
			if err != nil {
				return Greeks{}, err
			}
			if priced {
				return q.Greeks, nil
			}
		}
		disc, err := m.Discount(eff)
		if err != nil {
			return Greeks{}, err
		}
		g, err := e.greeks(c.left, m.Forward(eff), 0, shrinkBound(bound, eff), depth+1)
		if err != nil {
			return Greeks{}, err
		}
		return g.Scale(disc), nil
	}

	// Or / When / Truncate / Anytime：对市场状态非线性，bump 重估
	return e.bumpGreeks(c, m, lag, bound, depth)
}

// bumpGreeks 对子树做中心差分重估：delta/vega/rho/theta 用二点中心差分，
// gamma 用三点公式。每次重估都基于独立的市场快照，原快照不受影响。
func (e *Engine) bumpGreeks(c *Contract, m *Market, lag, bound, depth int) (Greeks, error) {
	v0, err := e.eval(c, m, lag, bound, depth)
	if err != nil {
		return Greeks{}, err
	}

	sUp, err := e.eval(c, m.BumpSpots(bumpSpot), lag, bound, depth)
	if err != nil {
		return Greeks{}, err
	}
	sDn, err := e.eval(c, m.BumpSpots(-bumpSpot), lag, bound, depth)
	if err != nil {
		return Greeks{}, err
	}

	vUp, err := e.eval(c, m.BumpVols(bumpVol), lag, bound, depth)
	if err != nil {
		return Greeks{}, err
	}
	vDn, err := e.eval(c, m.BumpVols(-bumpVol), lag, bound, depth)
	if err != nil {
		return Greeks{}, err
	}

	rUp, err := e.eval(c, m.BumpRate(bumpRate), lag, bound, depth)
	if err != nil {
		return Greeks{}, err
	}
	rDn, err := e.eval(c, m.BumpRate(-bumpRate), lag, bound, depth)
	if err != nil {
		return Greeks{}, err
	}

	tFwd, err := e.eval(c, m, lag+bumpDays, bound, depth)
	if err != nil {
		return Greeks{}, err
	}
	tBak, err := e.eval(c, m, lag-bumpDays, bound, depth)
	if err != nil {
		return Greeks{}, err
	}

	return Greeks{
		Delta: (sUp - sDn) / (2 * bumpSpot),
		Gamma: (sUp - 2*v0 + sDn) / (bumpSpot * bumpSpot),
		Vega:  (vUp - vDn) / (2 * bumpVol) / 100,
		Rho:   (rUp - rDn) / (2 * bumpRate) / 100,
		Theta: (tFwd - tBak) / (2 * bumpDays),
	}, nil
}
