package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationResult 估值结果实体。
// 落库的是估值的审计记录，合约树本身不持久化。
type ValuationResult struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Fingerprint string          `gorm:"column:fingerprint;type:varchar(64);index;not null" json:"fingerprint"`
	Contract    string          `gorm:"column:contract;type:text;not null" json:"contract"`
	Currency    string          `gorm:"column:currency;type:varchar(8)" json:"currency"`
	Value       decimal.Decimal `gorm:"column:value;type:decimal(32,12)" json:"value"`
	Delta       decimal.Decimal `gorm:"column:delta;type:decimal(32,12)" json:"delta"`
	Gamma       decimal.Decimal `gorm:"column:gamma;type:decimal(32,12)" json:"gamma"`
	Theta       decimal.Decimal `gorm:"column:theta;type:decimal(32,12)" json:"theta"`
	Vega        decimal.Decimal `gorm:"column:vega;type:decimal(32,12)" json:"vega"`
	Rho         decimal.Decimal `gorm:"column:rho;type:decimal(32,12)" json:"rho"`
	PricingMode string          `gorm:"column:pricing_mode;type:varchar(16)" json:"pricing_mode"`
	EvaluatedAt time.Time       `gorm:"column:evaluated_at;index" json:"evaluated_at"`
}

// TableName 指定表名
func (ValuationResult) TableName() string { return "valuation_results" }

// ValuationRepository 估值结果仓储接口
type ValuationRepository interface {
	Save(ctx context.Context, result *ValuationResult) error
	Latest(ctx context.Context, fingerprint string) (*ValuationResult, error)
	List(ctx context.Context, fingerprint string, limit int) ([]*ValuationResult, error)
}
