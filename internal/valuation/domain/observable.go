package domain

import (
	"fmt"
	"math"
	"strconv"
)

// ObsKind Observable 的变体标签
type ObsKind int8

const (
	ObsConst ObsKind = iota + 1 // 常量
	ObsUnderlying               // 标的现价
	ObsBinary                   // 二元数值运算
	ObsCondition                // 比较条件，结果为布尔值
)

// BinaryOp 数值运算符
type BinaryOp int8

const (
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMax
	OpMin
	OpAvg
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	case OpAvg:
		return "avg"
	}
	return "?"
}

// CompareOp 比较运算符，仅用于 When/Anytime 的触发条件
type CompareOp int8

const (
	CmpGT CompareOp = iota + 1
	CmpLT
	CmpGTE
	CmpLTE
	CmpEQ
)

func (op CompareOp) String() string {
	switch op {
	case CmpGT:
		return ">"
	case CmpLT:
		return "<"
	case CmpGTE:
		return ">="
	case CmpLTE:
		return "<="
	case CmpEQ:
		return "=="
	}
	return "?"
}

// Observable 随时间变化的市场量的小型表达式语言。
// 构造后不可变，子表达式允许结构共享。
type Observable struct {
	kind  ObsKind
	value float64
	name  string
	binOp BinaryOp
	cmpOp CompareOp
	left  *Observable
	right *Observable
}

// Const 常量 Observable
func Const(v float64) *Observable {
	return &Observable{kind: ObsConst, value: v}
}

// Underlying 命名标的的现价
func Underlying(name string) *Observable {
	return &Observable{kind: ObsUnderlying, name: name}
}

func binary(op BinaryOp, l, r *Observable) *Observable {
	return &Observable{kind: ObsBinary, binOp: op, left: l, right: r}
}

func Add(l, r *Observable) *Observable { return binary(OpAdd, l, r) }
func Sub(l, r *Observable) *Observable { return binary(OpSub, l, r) }
func Mul(l, r *Observable) *Observable { return binary(OpMul, l, r) }
func Div(l, r *Observable) *Observable { return binary(OpDiv, l, r) }
func Max(l, r *Observable) *Observable { return binary(OpMax, l, r) }
func Min(l, r *Observable) *Observable { return binary(OpMin, l, r) }

// Avg 为路径依赖扩展预留的平均算子。
// 当前引擎将其按两操作数的算术平均近似，不做完整的路径积分。
func Avg(l, r *Observable) *Observable { return binary(OpAvg, l, r) }

func compare(op CompareOp, l, r *Observable) *Observable {
	return &Observable{kind: ObsCondition, cmpOp: op, left: l, right: r}
}

func Gt(l, r *Observable) *Observable  { return compare(CmpGT, l, r) }
func Lt(l, r *Observable) *Observable  { return compare(CmpLT, l, r) }
func Gte(l, r *Observable) *Observable { return compare(CmpGTE, l, r) }
func Lte(l, r *Observable) *Observable { return compare(CmpLTE, l, r) }
func Eq(l, r *Observable) *Observable  { return compare(CmpEQ, l, r) }

// Evaluate 在给定市场快照下求数值。
// 对布尔型（Condition）节点调用返回 ErrBooleanObservable。
func (o *Observable) Evaluate(m *Market) (float64, error) {
	switch o.kind {
	case ObsConst:
		return o.value, nil
	case ObsUnderlying:
		return m.Spot(o.name)
	case ObsBinary:
		l, err := o.left.Evaluate(m)
		if err != nil {
			return 0, err
		}
		r, err := o.right.Evaluate(m)
		if err != nil {
			return 0, err
		}
		return applyBinary(o.binOp, l, r)
	case ObsCondition:
		return 0, fmt.Errorf("%w: %s", ErrBooleanObservable, o)
	}
	return 0, fmt.Errorf("%w: unknown observable kind %d", ErrMalformedContract, o.kind)
}

// EvaluateBool 求布尔值，仅对 Condition 节点有效
func (o *Observable) EvaluateBool(m *Market) (bool, error) {
	if o.kind != ObsCondition {
		return false, fmt.Errorf("%w: %s is not a condition", ErrBooleanObservable, o)
	}
	l, err := o.left.Evaluate(m)
	if err != nil {
		return false, err
	}
	r, err := o.right.Evaluate(m)
	if err != nil {
		return false, err
	}
	switch o.cmpOp {
	case CmpGT:
		return l > r, nil
	case CmpLT:
		return l < r, nil
	case CmpGTE:
		return l >= r, nil
	case CmpLTE:
		return l <= r, nil
	case CmpEQ:
		return l == r, nil
	}
	return false, fmt.Errorf("%w: unknown compare op %d", ErrMalformedContract, o.cmpOp)
}

func applyBinary(op BinaryOp, l, r float64) (float64, error) {
	switch op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero", ErrNumericDomain)
		}
		return l / r, nil
	case OpMax:
		return math.Max(l, r), nil
	case OpMin:
		return math.Min(l, r), nil
	case OpAvg:
		return (l + r) / 2, nil
	}
	return 0, fmt.Errorf("%w: unknown binary op %d", ErrMalformedContract, op)
}

// IsConstant 表达式是否不依赖任何市场状态
func (o *Observable) IsConstant() bool {
	switch o.kind {
	case ObsConst:
		return true
	case ObsUnderlying:
		return false
	default:
		return o.left.IsConstant() && o.right.IsConstant()
	}
}

// collectUnderlyings 收集表达式引用的全部标的名称
func (o *Observable) collectUnderlyings(set map[string]struct{}) {
	switch o.kind {
	case ObsUnderlying:
		set[o.name] = struct{}{}
	case ObsBinary, ObsCondition:
		o.left.collectUnderlyings(set)
		o.right.collectUnderlyings(set)
	}
}

// String 稳定的表达式表示，用于日志与估值结果指纹
func (o *Observable) String() string {
	switch o.kind {
	case ObsConst:
		return strconv.FormatFloat(o.value, 'g', -1, 64)
	case ObsUnderlying:
		return o.name
	case ObsBinary:
		switch o.binOp {
		case OpMax, OpMin, OpAvg:
			return fmt.Sprintf("%s(%s, %s)", o.binOp, o.left, o.right)
		default:
			return fmt.Sprintf("(%s %s %s)", o.left, o.binOp, o.right)
		}
	case ObsCondition:
		return fmt.Sprintf("(%s %s %s)", o.left, o.cmpOp, o.right)
	}
	return "?"
}
