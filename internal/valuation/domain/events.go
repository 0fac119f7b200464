package domain

import "time"

// ContractValuedEvent 合约估值完成事件
type ContractValuedEvent struct {
	Fingerprint string    `json:"fingerprint"`
	Contract    string    `json:"contract"`
	Currency    string    `json:"currency"`
	Value       float64   `json:"value"`
	Delta       float64   `json:"delta"`
	Gamma       float64   `json:"gamma"`
	Theta       float64   `json:"theta"`
	Vega        float64   `json:"vega"`
	Rho         float64   `json:"rho"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// ValuationFailedEvent 估值失败事件
type ValuationFailedEvent struct {
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason"`
	FailedAt    time.Time `json:"failed_at"`
}

// EventPublisher 领域事件发布接口，由基础设施层实现
type EventPublisher interface {
	PublishContractValued(event ContractValuedEvent) error
	PublishValuationFailed(event ValuationFailedEvent) error
}
