package application

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
)

// ContractSpec 合约树的 JSON 描述，kind 决定哪些字段有效
type ContractSpec struct {
	// kind: zero, one, give, and, or, then, scale, when, truncate, anytime
	Kind     string        `json:"kind" binding:"required"`
	Currency string        `json:"currency,omitempty"`
	Days     int           `json:"days,omitempty"`
	Obs      *ObsSpec      `json:"observable,omitempty"`
	Child    *ContractSpec `json:"contract,omitempty"`
	Left     *ContractSpec `json:"left,omitempty"`
	Right    *ContractSpec `json:"right,omitempty"`
}

// ObsSpec 观测量表达式的 JSON 描述
type ObsSpec struct {
	// kind: const, underlying, binary, condition
	Kind  string   `json:"kind" binding:"required"`
	Value float64  `json:"value,omitempty"`
	Name  string   `json:"name,omitempty"`
	Op    string   `json:"op,omitempty"`
	Left  *ObsSpec `json:"left,omitempty"`
	Right *ObsSpec `json:"right,omitempty"`
}

// QuoteSpec 单个标的的行情
type QuoteSpec struct {
	Spot       float64 `json:"spot"`
	Volatility float64 `json:"volatility"`
}

// MarketSpec 市场快照的 JSON 描述
type MarketSpec struct {
	// 估值日，格式 2006-01-02
	EvalDate string               `json:"eval_date" binding:"required"`
	Rate     float64              `json:"rate"`
	Quotes   map[string]QuoteSpec `json:"quotes"`
}

// GreeksDTO 风险敏感度
type GreeksDTO struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// ValuationDTO 单个合约的估值结果
type ValuationDTO struct {
	Fingerprint string          `json:"fingerprint"`
	Contract    string          `json:"contract"`
	Currency    string          `json:"currency"`
	Value       decimal.Decimal `json:"value"`
	Greeks      *GreeksDTO      `json:"greeks,omitempty"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
	Cached      bool            `json:"cached,omitempty"`
}

// ToContract 将 JSON 描述装配为领域合约树
func ToContract(spec *ContractSpec) (*domain.Contract, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: missing contract node", domain.ErrMalformedContract)
	}
	switch spec.Kind {
	case "zero":
		return domain.Zero(), nil
	case "one":
		cur := domain.Currency(spec.Currency)
		if !cur.Valid() {
			return nil, fmt.Errorf("%w: invalid currency %q", domain.ErrMalformedContract, spec.Currency)
		}
		return domain.One(cur), nil
	case "give":
		child, err := ToContract(spec.Child)
		if err != nil {
			return nil, err
		}
		return domain.Give(child), nil
	case "and", "or":
		left, err := ToContract(spec.Left)
		if err != nil {
			return nil, err
		}
		right, err := ToContract(spec.Right)
		if err != nil {
			return nil, err
		}
		if spec.Kind == "and" {
			return domain.And(left, right), nil
		}
		return domain.Or(left, right), nil
	case "then":
		child, err := ToContract(spec.Child)
		if err != nil {
			return nil, err
		}
		return domain.Then(spec.Days, child)
	case "truncate":
		child, err := ToContract(spec.Child)
		if err != nil {
			return nil, err
		}
		return domain.Truncate(spec.Days, child)
	case "scale", "when", "anytime":
		obs, err := ToObservable(spec.Obs)
		if err != nil {
			return nil, err
		}
		child, err := ToContract(spec.Child)
		if err != nil {
			return nil, err
		}
		switch spec.Kind {
		case "scale":
			return domain.Scale(obs, child), nil
		case "when":
			return domain.When(obs, child), nil
		default:
			return domain.Anytime(obs, child), nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown contract kind %q", domain.ErrMalformedContract, spec.Kind)
	}
}

// ToObservable 将 JSON 描述装配为观测量表达式
func ToObservable(spec *ObsSpec) (*domain.Observable, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: missing observable node", domain.ErrMalformedContract)
	}
	switch spec.Kind {
	case "const":
		return domain.Const(spec.Value), nil
	case "underlying":
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: underlying requires a name", domain.ErrMalformedContract)
		}
		return domain.Underlying(spec.Name), nil
	case "binary":
		left, err := ToObservable(spec.Left)
		if err != nil {
			return nil, err
		}
		right, err := ToObservable(spec.Right)
		if err != nil {
			return nil, err
		}
		switch spec.Op {
		case "+":
			return domain.Add(left, right), nil
		case "-":
			return domain.Sub(left, right), nil
		case "*":
			return domain.Mul(left, right), nil
		case "/":
			return domain.Div(left, right), nil
		case "max":
			return domain.Max(left, right), nil
		case "min":
			return domain.Min(left, right), nil
		case "avg":
			return domain.Avg(left, right), nil
		default:
			return nil, fmt.Errorf("%w: unknown binary op %q", domain.ErrMalformedContract, spec.Op)
		}
	case "condition":
		left, err := ToObservable(spec.Left)
		if err != nil {
			return nil, err
		}
		right, err := ToObservable(spec.Right)
		if err != nil {
			return nil, err
		}
		switch spec.Op {
		case ">":
			return domain.Gt(left, right), nil
		case "<":
			return domain.Lt(left, right), nil
		case ">=":
			return domain.Gte(left, right), nil
		case "<=":
			return domain.Lte(left, right), nil
		case "==":
			return domain.Eq(left, right), nil
		default:
			return nil, fmt.Errorf("%w: unknown compare op %q", domain.ErrMalformedContract, spec.Op)
		}
	default:
		return nil, fmt.Errorf("%w: unknown observable kind %q", domain.ErrMalformedContract, spec.Kind)
	}
}

// ToMarket 将 JSON 描述装配为领域市场快照
func ToMarket(spec *MarketSpec) (*domain.Market, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: missing market snapshot", domain.ErrMarketIncomplete)
	}
	evalDate, err := time.Parse("2006-01-02", spec.EvalDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid eval_date %q", domain.ErrMarketIncomplete, spec.EvalDate)
	}
	quotes := make(map[string]domain.Quote, len(spec.Quotes))
	for name, q := range spec.Quotes {
		quotes[name] = domain.Quote{Spot: q.Spot, Volatility: q.Volatility}
	}
	return domain.NewMarket(evalDate, spec.Rate, quotes)
}

func decimalFrom(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func toGreeksDTO(g domain.Greeks) *GreeksDTO {
	return &GreeksDTO{
		Delta: g.Delta,
		Gamma: g.Gamma,
		Theta: g.Theta,
		Vega:  g.Vega,
		Rho:   g.Rho,
	}
}
