package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ==================== 事件总线 ====================

// ChangeEvent 对外广播的变更事件
// 尽力送达，消费者不得假设持久化
type ChangeEvent struct {
	Type      string    `json:"type"`
	EntityID  string    `json:"entityId"`
	Action    string    `json:"action"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// EventBus 变更事件发布接口
type EventBus interface {
	PublishPriceChange(ctx context.Context, listingID string, data any)
	PublishInventoryChange(ctx context.Context, productID string, data any)
}

// ==================== Redis 实现 ====================

const (
	channelPriceChange     = "events:price_change"
	channelInventoryChange = "events:inventory_change"
)

// RedisEventBus Redis PUBLISH 实现
type RedisEventBus struct {
	client *redis.Client
}

// NewRedisEventBus 创建 Redis 事件总线
func NewRedisEventBus(client *redis.Client) *RedisEventBus {
	return &RedisEventBus{client: client}
}

func (b *RedisEventBus) publish(ctx context.Context, channel string, event ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EventBus] 事件序列化失败: %v", err)
		return
	}
	// 发布失败只记日志，不影响主流程
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[EventBus] 发布失败 channel=%s: %v", channel, err)
	}
}

func (b *RedisEventBus) PublishPriceChange(ctx context.Context, listingID string, data any) {
	b.publish(ctx, channelPriceChange, ChangeEvent{
		Type:      "price_change",
		EntityID:  listingID,
		Action:    "update",
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (b *RedisEventBus) PublishInventoryChange(ctx context.Context, productID string, data any) {
	b.publish(ctx, channelInventoryChange, ChangeEvent{
		Type:      "inventory_change",
		EntityID:  productID,
		Action:    "update",
		Data:      data,
		Timestamp: time.Now(),
	})
}

// ==================== 空实现 ====================

// NoopEventBus 单机/测试用空实现
type NoopEventBus struct{}

func (NoopEventBus) PublishPriceChange(context.Context, string, any)     {}
func (NoopEventBus) PublishInventoryChange(context.Context, string, any) {}
