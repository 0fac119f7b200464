package domain

import "errors"

// 领域层错误定义
// 结构性错误在构造时返回，数据完整性错误在一次估值开始前返回，
// 任何错误都不会在递归内部被吞掉。
var (
	// ErrMalformedContract 合约结构非法（负的时间偏移等）
	ErrMalformedContract = errors.New("malformed contract")
	// ErrUnknownUnderlying Observable 引用了市场快照中不存在的标的
	ErrUnknownUnderlying = errors.New("unknown underlying")
	// ErrMarketIncomplete 合约树引用的标的在市场快照中缺失
	ErrMarketIncomplete = errors.New("market model incomplete")
	// ErrCurrencyMismatch 同一合约树混用了多种结算货币
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrNumericDomain 数值域错误（非正波动率、非正到期时间、退化利率等）
	ErrNumericDomain = errors.New("numeric domain error")
	// ErrUnsupportedApproximation 严格模式下拒绝 When/Truncate/Anytime 的简化近似
	ErrUnsupportedApproximation = errors.New("unsupported approximation")
	// ErrDepthExceeded 合约树超过估值引擎的最大递归深度
	ErrDepthExceeded = errors.New("contract depth exceeded")
	// ErrBooleanObservable 对布尔型 Observable 取数值（或反之）
	ErrBooleanObservable = errors.New("observable is boolean")
)
