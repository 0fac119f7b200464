package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
	"github.com/wyfcoding/contractpricing/pkg/metrics"
	"github.com/wyfcoding/contractpricing/pkg/utils"
)

// ValuationCache 估值结果缓存接口，由基础设施层实现
type ValuationCache interface {
	// Get 按指纹取缓存结果，未命中返回 (nil, nil)
	Get(ctx context.Context, fingerprint string) (*ValuationDTO, error)
	Set(ctx context.Context, fingerprint string, dto *ValuationDTO) error
}

// ValuationAppService 估值应用服务，编排引擎、仓储、缓存与事件发布。
// repo/cache/publisher/metrics 均可为 nil，此时对应能力被跳过。
type ValuationAppService struct {
	engine    *domain.Engine
	repo      domain.ValuationRepository
	cache     ValuationCache
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewValuationAppService 创建估值应用服务
func NewValuationAppService(
	engine *domain.Engine,
	repo domain.ValuationRepository,
	cache ValuationCache,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ValuationAppService {
	return &ValuationAppService{
		engine:    engine,
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ValueContractRequest 合约估值请求
type ValueContractRequest struct {
	Contract ContractSpec `json:"contract" binding:"required"`
	Market   MarketSpec   `json:"market" binding:"required"`
	// WithGreeks 为 true 时同时返回风险敏感度
	WithGreeks bool `json:"with_greeks"`
}

// PriceOptionRequest 标准欧式/美式期权的便捷定价请求
type PriceOptionRequest struct {
	// Type: call, put, american_call
	Type         string     `json:"type" binding:"required"`
	Underlying   string     `json:"underlying" binding:"required"`
	Strike       float64    `json:"strike" binding:"required"`
	MaturityDays int        `json:"maturity_days" binding:"required"`
	Currency     string     `json:"currency"`
	Market       MarketSpec `json:"market" binding:"required"`
	WithGreeks   bool       `json:"with_greeks"`
}

// ValueContract 对单个合约估值，可选返回 Greeks
func (s *ValuationAppService) ValueContract(ctx context.Context, req *ValueContractRequest) (*ValuationDTO, error) {
	c, err := ToContract(&req.Contract)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, c, &req.Market, req.WithGreeks)
}

// PriceOption 用内置合约构造器定价标准期权
func (s *ValuationAppService) PriceOption(ctx context.Context, req *PriceOptionRequest) (*ValuationDTO, error) {
	cur := domain.Currency(req.Currency)
	if req.Currency == "" {
		cur = domain.CurrencyUSD
	}
	if !cur.Valid() {
		return nil, fmt.Errorf("%w: invalid currency %q", domain.ErrMalformedContract, req.Currency)
	}

	var c *domain.Contract
	var err error
	switch req.Type {
	case "call":
		c, err = domain.EuropeanCall(req.Strike, req.MaturityDays, req.Underlying, cur)
	case "put":
		c, err = domain.EuropeanPut(req.Strike, req.MaturityDays, req.Underlying, cur)
	case "american_call":
		c, err = domain.AmericanCall(req.Strike, req.MaturityDays, req.Underlying, cur)
	default:
		err = fmt.Errorf("%w: unknown option type %q", domain.ErrMalformedContract, req.Type)
	}
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, c, &req.Market, req.WithGreeks)
}

// GetHistory 按指纹查询历史估值记录
func (s *ValuationAppService) GetHistory(ctx context.Context, fingerprint string, limit int) ([]*ValuationDTO, error) {
	if s.repo == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	results, err := s.repo.List(ctx, fingerprint, limit)
	if err != nil {
		return nil, err
	}
	dtos := make([]*ValuationDTO, 0, len(results))
	for _, r := range results {
		dtos = append(dtos, &ValuationDTO{
			Fingerprint: r.Fingerprint,
			Contract:    r.Contract,
			Currency:    r.Currency,
			Value:       r.Value,
			Greeks: &GreeksDTO{
				Delta: r.Delta.InexactFloat64(),
				Gamma: r.Gamma.InexactFloat64(),
				Theta: r.Theta.InexactFloat64(),
				Vega:  r.Vega.InexactFloat64(),
				Rho:   r.Rho.InexactFloat64(),
			},
			EvaluatedAt: r.EvaluatedAt,
		})
	}
	return dtos, nil
}

// evaluate 估值主路径：缓存查询、引擎求值、落库、事件发布
func (s *ValuationAppService) evaluate(ctx context.Context, c *domain.Contract, mspec *MarketSpec, withGreeks bool) (*ValuationDTO, error) {
	m, err := ToMarket(mspec)
	if err != nil {
		return nil, err
	}

	repr := c.String()
	// 指纹同时覆盖合约结构与市场输入，缓存命中要求两者都一致
	fingerprint := utils.SHA256Hash(repr + "@" + utils.ToJSON(mspec))

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, fingerprint)
		if err != nil {
			s.logger.Warn("valuation cache lookup failed", "fingerprint", fingerprint, "error", err)
		} else if cached != nil && (!withGreeks || cached.Greeks != nil) {
			if s.metrics != nil {
				s.metrics.ValuationCacheHits.Inc()
				s.metrics.ValuationsTotal.WithLabelValues("cached").Inc()
			}
			cached.Cached = true
			return cached, nil
		}
	}

	start := time.Now()
	dto := &ValuationDTO{
		Fingerprint: fingerprint,
		Contract:    repr,
		EvaluatedAt: time.Now().UTC(),
	}

	var g domain.Greeks
	if withGreeks {
		var v domain.Value
		v, g, err = s.engine.PriceAndGreeks(c, m)
		if err == nil {
			dto.Value = v.Amount
			dto.Currency = string(v.Currency)
			dto.Greeks = toGreeksDTO(g)
		}
	} else {
		var v domain.Value
		v, err = s.engine.Value(c, m)
		if err == nil {
			dto.Value = v.Amount
			dto.Currency = string(v.Currency)
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		if s.metrics != nil {
			s.metrics.ValuationsTotal.WithLabelValues("error").Inc()
		}
		s.logger.Error("contract valuation failed",
			"fingerprint", fingerprint,
			"error", err,
		)
		s.publishFailed(fingerprint, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ValuationsTotal.WithLabelValues("success").Inc()
		s.metrics.ValuationDuration.Observe(elapsed.Seconds())
		if withGreeks {
			s.metrics.GreeksTotal.Inc()
		}
	}
	s.logger.Info("contract valued",
		"fingerprint", fingerprint,
		"currency", dto.Currency,
		"value", dto.Value,
		"duration", elapsed,
	)

	s.persist(ctx, dto, g, withGreeks)
	s.publishValued(dto, g)

	if s.cache != nil {
		if err := s.cache.Set(ctx, fingerprint, dto); err != nil {
			s.logger.Warn("valuation cache store failed", "fingerprint", fingerprint, "error", err)
		}
	}

	return dto, nil
}

// persist 写入审计记录，失败只记日志不影响请求结果
func (s *ValuationAppService) persist(ctx context.Context, dto *ValuationDTO, g domain.Greeks, withGreeks bool) {
	if s.repo == nil {
		return
	}
	mode := "approximate"
	// Strict 引擎只会产出闭式/精确路径的结果
	if s.engineStrict() {
		mode = "strict"
	}
	result := &domain.ValuationResult{
		Fingerprint: dto.Fingerprint,
		Contract:    dto.Contract,
		Currency:    dto.Currency,
		Value:       dto.Value,
		PricingMode: mode,
		EvaluatedAt: dto.EvaluatedAt,
	}
	if withGreeks {
		result.Delta = decimalFrom(g.Delta)
		result.Gamma = decimalFrom(g.Gamma)
		result.Theta = decimalFrom(g.Theta)
		result.Vega = decimalFrom(g.Vega)
		result.Rho = decimalFrom(g.Rho)
	}
	if err := s.repo.Save(ctx, result); err != nil {
		s.logger.Warn("valuation audit save failed", "fingerprint", dto.Fingerprint, "error", err)
	}
}

func (s *ValuationAppService) publishValued(dto *ValuationDTO, g domain.Greeks) {
	if s.publisher == nil {
		return
	}
	event := domain.ContractValuedEvent{
		Fingerprint: dto.Fingerprint,
		Contract:    dto.Contract,
		Currency:    dto.Currency,
		Value:       dto.Value.InexactFloat64(),
		Delta:       g.Delta,
		Gamma:       g.Gamma,
		Theta:       g.Theta,
		Vega:        g.Vega,
		Rho:         g.Rho,
		EvaluatedAt: dto.EvaluatedAt,
	}
	if err := s.publisher.PublishContractValued(event); err != nil {
		s.logger.Warn("contract valued event publish failed", "fingerprint", dto.Fingerprint, "error", err)
	}
}

func (s *ValuationAppService) publishFailed(fingerprint string, cause error) {
	if s.publisher == nil {
		return
	}
	event := domain.ValuationFailedEvent{
		Fingerprint: fingerprint,
		Reason:      cause.Error(),
		FailedAt:    time.Now().UTC(),
	}
	if err := s.publisher.PublishValuationFailed(event); err != nil {
		s.logger.Warn("valuation failed event publish failed", "fingerprint", fingerprint, "error", err)
	}
}

func (s *ValuationAppService) engineStrict() bool {
	return s.engine.Strict()
}
