package domain

// Currency 结算货币，仅作为标签使用，不携带任何行为
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

// Valid 判断货币是否为受支持的枚举值
func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyJPY:
		return true
	}
	return false
}
