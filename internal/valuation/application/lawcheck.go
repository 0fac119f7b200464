package application

import (
	"context"

	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
	"github.com/wyfcoding/contractpricing/internal/valuation/lawcheck"
)

// LawCheckRequest 代数律随机检验请求
type LawCheckRequest struct {
	Seed       int64 `json:"seed"`
	Iterations int   `json:"iterations"`
}

// LawCheckDTO 代数律检验结果
type LawCheckDTO struct {
	Seed       int64  `json:"seed"`
	Iterations int    `json:"iterations"`
	Passed     bool   `json:"passed"`
	Violation  string `json:"violation,omitempty"`
}

// RunLawCheck 用随机合约与随机市场检验估值引擎的代数律。
// 检验总在非严格模式下运行，随机树会包含近似定价的组合子。
func (s *ValuationAppService) RunLawCheck(ctx context.Context, req *LawCheckRequest) (*LawCheckDTO, error) {
	iterations := req.Iterations
	if iterations <= 0 || iterations > 10000 {
		iterations = 100
	}

	engine := domain.NewEngine(domain.Options{}, nil)
	checker := lawcheck.NewChecker(engine, 1e-9)
	gen := lawcheck.NewGenerator(req.Seed)

	dto := &LawCheckDTO{Seed: req.Seed, Iterations: iterations, Passed: true}
	if err := checker.Run(gen, iterations); err != nil {
		dto.Passed = false
		dto.Violation = err.Error()
		s.logger.Warn("algebraic law violation detected",
			"seed", req.Seed,
			"iterations", iterations,
			"violation", err,
		)
	}
	return dto, nil
}
