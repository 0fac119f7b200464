package domain

import "fmt"

// Kind 合约组合子的变体标签
type Kind int8

const (
	KindZero Kind = iota + 1
	KindOne
	KindGive
	KindAnd
	KindOr
	KindThen
	KindScale
	KindWhen
	KindTruncate
	KindAnytime
)

// Contract 闭合的合约代数：十个原语组合子构成的不可变树。
// 所有构造函数都返回新节点，子树允许结构共享，构造后不再修改。
// 时间偏移与时间上界以非负整数天数表示。
type Contract struct {
	kind     Kind
	currency Currency
	days     int
	obs      *Observable
	left     *Contract
	right    *Contract
}

// Zero 一无所有的合约
func Zero() *Contract {
	return &Contract{kind: KindZero}
}

// One 立即支付一个单位货币
func One(cur Currency) *Contract {
	return &Contract{kind: KindOne, currency: cur}
}

// Give 反转合约方向（权利义务互换）
func Give(c *Contract) *Contract {
	return &Contract{kind: KindGive, left: c}
}

// And 同时获得两份合约
func And(c1, c2 *Contract) *Contract {
	return &Contract{kind: KindAnd, left: c1, right: c2}
}

// Or 二选一，持有人选择价值更高的一边
func Or(c1, c2 *Contract) *Contract {
	return &Contract{kind: KindOr, left: c1, right: c2}
}

// Then 延迟 days 天后获得合约。负偏移是构造期错误，不做静默截断。
func Then(days int, c *Contract) (*Contract, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: negative time offset %d", ErrMalformedContract, days)
	}
	return &Contract{kind: KindThen, days: days, left: c}, nil
}

// Scale 用 Observable 的取值缩放合约价值
func Scale(obs *Observable, c *Contract) *Contract {
	return &Contract{kind: KindScale, obs: obs, left: c}
}

// When 条件首次为真时获得合约
func When(obs *Observable, c *Contract) *Contract {
	return &Contract{kind: KindWhen, obs: obs, left: c}
}

// Truncate days 天之后合约作废
func Truncate(days int, c *Contract) (*Contract, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: negative time bound %d", ErrMalformedContract, days)
	}
	return &Contract{kind: KindTruncate, days: days, left: c}, nil
}

// Anytime 在截止前任意时刻、条件满足时可行权
func Anytime(obs *Observable, c *Contract) *Contract {
	return &Contract{kind: KindAnytime, obs: obs, left: c}
}

// And 运算符风格的组合便捷方法，语义与包级 And 相同
func (c *Contract) And(other *Contract) *Contract {
	return And(c, other)
}

// Or 运算符风格的组合便捷方法
func (c *Contract) Or(other *Contract) *Contract {
	return Or(c, other)
}

// Kind 返回节点的组合子类型
func (c *Contract) Kind() Kind {
	return c.kind
}

// collectUnderlyings 收集整棵树引用的标的名称
func (c *Contract) collectUnderlyings(set map[string]struct{}) {
	if c.obs != nil {
		c.obs.collectUnderlyings(set)
	}
	if c.left != nil {
		c.left.collectUnderlyings(set)
	}
	if c.right != nil {
		c.right.collectUnderlyings(set)
	}
}

// collectCurrencies 收集整棵树出现的结算货币
func (c *Contract) collectCurrencies(set map[Currency]struct{}) {
	if c.kind == KindOne {
		set[c.currency] = struct{}{}
	}
	if c.left != nil {
		c.left.collectCurrencies(set)
	}
	if c.right != nil {
		c.right.collectCurrencies(set)
	}
}

// depth 树的最大深度，用于估值前的结构校验
func (c *Contract) depth() int {
	d := 0
	if c.left != nil {
		d = c.left.depth()
	}
	if c.right != nil {
		if rd := c.right.depth(); rd > d {
			d = rd
		}
	}
	return d + 1
}

// String 稳定的结构表示，用于日志与估值结果指纹
func (c *Contract) String() string {
	switch c.kind {
	case KindZero:
		return "Zero"
	case KindOne:
		return fmt.Sprintf("One(%s)", c.currency)
	case KindGive:
		return fmt.Sprintf("Give(%s)", c.left)
	case KindAnd:
		return fmt.Sprintf("(%s & %s)", c.left, c.right)
	case KindOr:
		return fmt.Sprintf("(%s | %s)", c.left, c.right)
	case KindThen:
		return fmt.Sprintf("Then(%d, %s)", c.days, c.left)
	case KindScale:
		return fmt.Sprintf("Scale(%s, %s)", c.obs, c.left)
	case KindWhen:
		return fmt.Sprintf("When(%s, %s)", c.obs, c.left)
	case KindTruncate:
		return fmt.Sprintf("Truncate(%d, %s)", c.days, c.left)
	case KindAnytime:
		return fmt.Sprintf("Anytime(%s, %s)", c.obs, c.left)
	}
	return "?"
}
