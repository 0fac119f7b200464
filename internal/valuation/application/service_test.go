package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
)

type fakeRepo struct {
	mu    sync.Mutex
	saved []*domain.ValuationResult
}

func (r *fakeRepo) Save(_ context.Context, result *domain.ValuationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, result)
	return nil
}

func (r *fakeRepo) Latest(_ context.Context, fingerprint string) (*domain.ValuationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.saved) - 1; i >= 0; i-- {
		if r.saved[i].Fingerprint == fingerprint {
			return r.saved[i], nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) List(_ context.Context, fingerprint string, limit int) ([]*domain.ValuationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ValuationResult
	for _, s := range r.saved {
		if s.Fingerprint == fingerprint && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*ValuationDTO
	hits    int
	stores  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*ValuationDTO)}
}

func (c *fakeCache) Get(_ context.Context, fingerprint string) (*ValuationDTO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dto, ok := c.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	c.hits++
	copied := *dto
	return &copied, nil
}

func (c *fakeCache) Set(_ context.Context, fingerprint string, dto *ValuationDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *dto
	c.entries[fingerprint] = &copied
	c.stores++
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	valued []domain.ContractValuedEvent
	failed []domain.ValuationFailedEvent
}

func (p *fakePublisher) PublishContractValued(event domain.ContractValuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valued = append(p.valued, event)
	return nil
}

func (p *fakePublisher) PublishValuationFailed(event domain.ValuationFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMarketSpec() MarketSpec {
	return MarketSpec{
		EvalDate: "2026-01-02",
		Rate:     0.05,
		Quotes:   map[string]QuoteSpec{"ACME": {Spot: 100, Volatility: 0.2}},
	}
}

func newTestService(repo *fakeRepo, cache *fakeCache, pub *fakePublisher) *ValuationAppService {
	engine := domain.NewEngine(domain.Options{}, nil)
	var r domain.ValuationRepository
	if repo != nil {
		r = repo
	}
	var c ValuationCache
	if cache != nil {
		c = cache
	}
	var p domain.EventPublisher
	if pub != nil {
		p = pub
	}
	return NewValuationAppService(engine, r, c, p, nil, testLogger())
}

func TestPriceOptionHappyPath(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	svc := newTestService(repo, nil, pub)

	dto, err := svc.PriceOption(context.Background(), &PriceOptionRequest{
		Type:         "call",
		Underlying:   "ACME",
		Strike:       100,
		MaturityDays: 90,
		Market:       testMarketSpec(),
		WithGreeks:   true,
	})
	if err != nil {
		t.Fatalf("PriceOption: %v", err)
	}

	if dto.Currency != string(domain.CurrencyUSD) {
		t.Fatalf("currency = %q, want USD default", dto.Currency)
	}
	got := dto.Value.InexactFloat64()
	if got < 4.57 || got > 4.59 {
		t.Fatalf("value = %g, want ~4.579", got)
	}
	if dto.Greeks == nil {
		t.Fatalf("greeks missing despite with_greeks")
	}
	if dto.Greeks.Delta < 0.5 || dto.Greeks.Delta > 0.6 {
		t.Fatalf("delta = %g, want ~0.569", dto.Greeks.Delta)
	}
	if dto.Fingerprint == "" {
		t.Fatalf("fingerprint not set")
	}

	if len(repo.saved) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(repo.saved))
	}
	if repo.saved[0].PricingMode != "approximate" {
		t.Fatalf("pricing mode = %q", repo.saved[0].PricingMode)
	}
	if len(pub.valued) != 1 || len(pub.failed) != 0 {
		t.Fatalf("events: valued=%d failed=%d", len(pub.valued), len(pub.failed))
	}
	if pub.valued[0].Fingerprint != dto.Fingerprint {
		t.Fatalf("event fingerprint mismatch")
	}
}

func TestPriceOptionRejectsBadInput(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	tests := []struct {
		name string
		req  PriceOptionRequest
		want error
	}{
		{
			"unknown type",
			PriceOptionRequest{Type: "binary", Underlying: "ACME", Strike: 100, MaturityDays: 90, Market: testMarketSpec()},
			domain.ErrMalformedContract,
		},
		{
			"invalid currency",
			PriceOptionRequest{Type: "call", Underlying: "ACME", Strike: 100, MaturityDays: 90, Currency: "DOGE", Market: testMarketSpec()},
			domain.ErrMalformedContract,
		},
		{
			"negative maturity",
			PriceOptionRequest{Type: "call", Underlying: "ACME", Strike: 100, MaturityDays: -1, Market: testMarketSpec()},
			domain.ErrMalformedContract,
		},
		{
			"missing quote",
			PriceOptionRequest{Type: "call", Underlying: "GHOST", Strike: 100, MaturityDays: 90, Market: testMarketSpec()},
			domain.ErrMarketIncomplete,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.PriceOption(context.Background(), &tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValueContractCacheRoundTrip(t *testing.T) {
	cache := newFakeCache()
	svc := newTestService(nil, cache, nil)

	req := &ValueContractRequest{
		Contract: ContractSpec{
			Kind: "scale",
			Obs:  &ObsSpec{Kind: "const", Value: 100},
			Child: &ContractSpec{
				Kind:     "one",
				Currency: "USD",
			},
		},
		Market: testMarketSpec(),
	}

	first, err := svc.ValueContract(context.Background(), req)
	if err != nil {
		t.Fatalf("first ValueContract: %v", err)
	}
	if first.Cached {
		t.Fatalf("first evaluation should not be a cache hit")
	}
	if cache.stores != 1 {
		t.Fatalf("cache stores = %d, want 1", cache.stores)
	}

	second, err := svc.ValueContract(context.Background(), req)
	if err != nil {
		t.Fatalf("second ValueContract: %v", err)
	}
	if !second.Cached {
		t.Fatalf("second evaluation should hit the cache")
	}
	if !second.Value.Equal(first.Value) {
		t.Fatalf("cached value %s != original %s", second.Value, first.Value)
	}
}

func TestValueContractCacheSkippedWhenGreeksMissing(t *testing.T) {
	cache := newFakeCache()
	svc := newTestService(nil, cache, nil)

	req := &ValueContractRequest{
		Contract: ContractSpec{
			Kind: "scale",
			Obs:  &ObsSpec{Kind: "const", Value: 100},
			Child: &ContractSpec{
				Kind:     "one",
				Currency: "USD",
			},
		},
		Market: testMarketSpec(),
	}

	if _, err := svc.ValueContract(context.Background(), req); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	// 缓存里只有无 Greeks 的结果，带 Greeks 的请求必须重新估值
	req.WithGreeks = true
	dto, err := svc.ValueContract(context.Background(), req)
	if err != nil {
		t.Fatalf("ValueContract with greeks: %v", err)
	}
	if dto.Cached {
		t.Fatalf("greeks request must not reuse a greeks-less cache entry")
	}
	if dto.Greeks == nil {
		t.Fatalf("greeks missing")
	}
}

func TestValueContractFailurePublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(nil, nil, pub)

	req := &ValueContractRequest{
		Contract: ContractSpec{
			Kind: "scale",
			Obs:  &ObsSpec{Kind: "underlying", Name: "GHOST"},
			Child: &ContractSpec{
				Kind:     "one",
				Currency: "USD",
			},
		},
		Market: testMarketSpec(),
	}

	if _, err := svc.ValueContract(context.Background(), req); !errors.Is(err, domain.ErrMarketIncomplete) {
		t.Fatalf("err = %v, want ErrMarketIncomplete", err)
	}
	if len(pub.failed) != 1 || len(pub.valued) != 0 {
		t.Fatalf("events: valued=%d failed=%d", len(pub.valued), len(pub.failed))
	}
}

func TestGetHistoryClampsLimit(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, nil, nil)

	if _, err := svc.PriceOption(context.Background(), &PriceOptionRequest{
		Type: "put", Underlying: "ACME", Strike: 100, MaturityDays: 90, Market: testMarketSpec(),
	}); err != nil {
		t.Fatalf("PriceOption: %v", err)
	}
	fp := repo.saved[0].Fingerprint

	history, err := svc.GetHistory(context.Background(), fp, -5)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].Fingerprint != fp {
		t.Fatalf("history fingerprint mismatch")
	}
}

func TestRunLawCheckPasses(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	dto, err := svc.RunLawCheck(context.Background(), &LawCheckRequest{Seed: 99, Iterations: 50})
	if err != nil {
		t.Fatalf("RunLawCheck: %v", err)
	}
	if !dto.Passed {
		t.Fatalf("law check failed: %s", dto.Violation)
	}
	if dto.Iterations != 50 {
		t.Fatalf("iterations = %d, want 50", dto.Iterations)
	}
}
