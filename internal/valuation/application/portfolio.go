package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
)

// maxPortfolioConcurrency 组合估值的最大并发腿数
const maxPortfolioConcurrency = 8

// PortfolioLeg 组合中的一条腿
type PortfolioLeg struct {
	// Quantity 持仓数量，可为负表示空头
	Quantity float64      `json:"quantity"`
	Contract ContractSpec `json:"contract" binding:"required"`
}

// PortfolioRequest 组合估值请求
type PortfolioRequest struct {
	Legs   []PortfolioLeg `json:"legs" binding:"required"`
	Market MarketSpec     `json:"market" binding:"required"`
	// WithGreeks 为 true 时返回每条腿及组合汇总的风险敏感度
	WithGreeks bool `json:"with_greeks"`
}

// PortfolioLegDTO 单条腿的估值结果
type PortfolioLegDTO struct {
	Quantity float64         `json:"quantity"`
	Contract string          `json:"contract"`
	Value    decimal.Decimal `json:"value"`
	Greeks   *GreeksDTO      `json:"greeks,omitempty"`
}

// PortfolioDTO 组合估值结果，价值与 Greeks 按数量加权求和
type PortfolioDTO struct {
	Currency    string            `json:"currency"`
	Value       decimal.Decimal   `json:"value"`
	Greeks      *GreeksDTO        `json:"greeks,omitempty"`
	Legs        []PortfolioLegDTO `json:"legs"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// ValuePortfolio 并发估值组合的每条腿并汇总。
// 引擎无共享可变状态，各腿可以安全并行。
func (s *ValuationAppService) ValuePortfolio(ctx context.Context, req *PortfolioRequest) (*PortfolioDTO, error) {
	if len(req.Legs) == 0 {
		return nil, fmt.Errorf("%w: portfolio has no legs", domain.ErrMalformedContract)
	}

	m, err := ToMarket(&req.Market)
	if err != nil {
		return nil, err
	}

	contracts := make([]*domain.Contract, len(req.Legs))
	for i := range req.Legs {
		c, err := ToContract(&req.Legs[i].Contract)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		contracts[i] = c
	}

	type legResult struct {
		value  domain.Value
		greeks domain.Greeks
	}
	results := make([]legResult, len(req.Legs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPortfolioConcurrency)
	for i := range contracts {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if req.WithGreeks {
				v, gr, err := s.engine.PriceAndGreeks(contracts[i], m)
				if err != nil {
					return fmt.Errorf("leg %d: %w", i, err)
				}
				results[i] = legResult{value: v, greeks: gr}
				return nil
			}
			v, err := s.engine.Value(contracts[i], m)
			if err != nil {
				return fmt.Errorf("leg %d: %w", i, err)
			}
			results[i] = legResult{value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if s.metrics != nil {
			s.metrics.ValuationsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	dto := &PortfolioDTO{
		Legs:        make([]PortfolioLegDTO, len(req.Legs)),
		EvaluatedAt: time.Now().UTC(),
	}
	total := decimal.Zero
	var totalGreeks domain.Greeks
	for i, res := range results {
		qty := req.Legs[i].Quantity
		// 组合货币取首个带结算货币的腿；纯零价值腿（无 One 节点）没有货币，
		// 不参与比较。腿与腿之间的不一致在这里兜底检查。
		legCurrency := string(res.value.Currency)
		if legCurrency != "" {
			if dto.Currency == "" {
				dto.Currency = legCurrency
			} else if dto.Currency != legCurrency {
				return nil, fmt.Errorf("%w: leg %d is %s, portfolio is %s",
					domain.ErrCurrencyMismatch, i, legCurrency, dto.Currency)
			}
		}

		weighted := res.value.Amount.Mul(decimal.NewFromFloat(qty))
		total = total.Add(weighted)

		leg := PortfolioLegDTO{
			Quantity: qty,
			Contract: contracts[i].String(),
			Value:    res.value.Amount,
		}
		if req.WithGreeks {
			leg.Greeks = toGreeksDTO(res.greeks)
			totalGreeks = totalGreeks.Add(res.greeks.Scale(qty))
		}
		dto.Legs[i] = leg
	}
	dto.Value = total
	if req.WithGreeks {
		dto.Greeks = toGreeksDTO(totalGreeks)
	}

	if s.metrics != nil {
		s.metrics.ValuationsTotal.WithLabelValues("success").Inc()
		s.metrics.PortfolioLegs.Observe(float64(len(req.Legs)))
	}
	s.logger.Info("portfolio valued",
		"legs", len(req.Legs),
		"currency", dto.Currency,
		"value", dto.Value,
	)

	return dto, nil
}
