package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
	"github.com/wyfcoding/contractpricing/pkg/logger"
	"github.com/wyfcoding/contractpricing/pkg/metrics"
	"github.com/wyfcoding/contractpricing/pkg/mq"
	"github.com/wyfcoding/contractpricing/pkg/utils"
)

// OutboxMessage 待投递事件，与业务写入同库保证不丢
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primary_key"`
	EventID   string    `gorm:"type:varchar(36);index"`
	EventType string    `gorm:"type:varchar(100);index"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "valuation_outbox_messages"
}

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式
type OutboxEventPublisher struct {
	db       *gorm.DB
	producer *mq.KafkaProducer
	topic    string
	metrics  *metrics.Metrics
}

// NewOutboxEventPublisher 创建 OutboxEventPublisher，producer 可为 nil（只落库不投递）
func NewOutboxEventPublisher(db *gorm.DB, producer *mq.KafkaProducer, topic string, m *metrics.Metrics) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: db, producer: producer, topic: topic, metrics: m}
}

// PublishContractValued 发布合约估值完成事件
func (p *OutboxEventPublisher) PublishContractValued(event domain.ContractValuedEvent) error {
	return p.publishEvent("ContractValuedEvent", event)
}

// PublishValuationFailed 发布估值失败事件
func (p *OutboxEventPublisher) PublishValuationFailed(event domain.ValuationFailedEvent) error {
	return p.publishEvent("ValuationFailedEvent", event)
}

// publishEvent 通用事件发布方法
func (p *OutboxEventPublisher) publishEvent(eventType string, event interface{}) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	message := OutboxMessage{
		ID:        uuid.New().String(),
		EventID:   uuid.New().String(),
		EventType: eventType,
		Payload:   string(eventData),
		Status:    "pending",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	return p.db.Create(&message).Error
}

// ProcessOutboxMessages 将待投递消息批量发送到 Kafka 并标记为 sent
func (p *OutboxEventPublisher) ProcessOutboxMessages(ctx context.Context, batchSize int) error {
	var messages []OutboxMessage

	if err := p.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at ASC").
		Limit(batchSize).
		Find(&messages).Error; err != nil {
		return err
	}

	if p.metrics != nil {
		var pending int64
		if err := p.db.WithContext(ctx).Model(&OutboxMessage{}).
			Where("status = ?", "pending").Count(&pending).Error; err == nil {
			p.metrics.OutboxPending.Set(float64(pending))
		}
	}

	for _, message := range messages {
		if p.producer != nil {
			err := utils.Retry(3, 100*time.Millisecond, func() error {
				return p.producer.SendRaw(ctx, p.topic, message.EventID, []byte(message.Payload))
			})
			if err != nil {
				logger.Warn(ctx, "outbox message delivery failed",
					"event_id", message.EventID,
					"event_type", message.EventType,
					"error", err,
				)
				// 投递失败保持 pending，下一轮重试
				continue
			}
		}

		if err := p.db.WithContext(ctx).Model(&message).
			Updates(map[string]any{"status": "sent", "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.OutboxPublished.Inc()
		}
	}

	return nil
}

// CleanupProcessedMessages 清理已投递的历史消息
func (p *OutboxEventPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) error {
	return p.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", "sent", before).
		Delete(&OutboxMessage{}).Error
}
