package service

import (
	"context"
	"strings"
	"testing"

	"resale_sync_v1_202609/internal/store"
)

// ==================== 单元测试 ====================

func newTestBreaker() *CircuitBreaker {
	return NewCircuitBreaker(store.NewMemoryCounterStore(), DefaultBreakerConfig())
}

func TestBreaker_ExcessiveDropBlocked(t *testing.T) {
	breaker := newTestBreaker()
	ctx := context.Background()

	// 100 → 50 是 50% 降幅，超过 20% 上限
	result, err := breaker.CanApply(ctx, 1, 100, 50)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Allowed {
		t.Fatal("超限降幅应被拒绝")
	}
	if result.SuggestedPrice == nil || *result.SuggestedPrice != 80 {
		t.Errorf("suggestedPrice = %v, want 80", result.SuggestedPrice)
	}
}

func TestBreaker_ExcessiveRiseBlocked(t *testing.T) {
	breaker := newTestBreaker()
	ctx := context.Background()

	// 100 → 140 是 40% 涨幅，超过 30% 上限
	result, err := breaker.CanApply(ctx, 1, 100, 140)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Allowed {
		t.Fatal("超限涨幅应被拒绝")
	}
	if result.SuggestedPrice == nil || *result.SuggestedPrice != 130 {
		t.Errorf("suggestedPrice = %v, want 130", result.SuggestedPrice)
	}
}

func TestBreaker_AbsoluteFloor(t *testing.T) {
	breaker := newTestBreaker()
	ctx := context.Background()

	result, err := breaker.CanApply(ctx, 1, 1.1, 0.5)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Allowed {
		t.Fatal("低于绝对下限应被拒绝")
	}
}

func TestBreaker_DailyLimit(t *testing.T) {
	breaker := newTestBreaker()
	ctx := context.Background()

	// 记满 5 次变更后第 6 次应被日频上限拦截
	for i := 0; i < 5; i++ {
		if err := breaker.RecordChange(ctx, 1); err != nil {
			t.Fatalf("记录变更失败: %v", err)
		}
	}

	result, err := breaker.CanApply(ctx, 1, 100, 99)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Allowed {
		t.Fatal("超过日频上限应被拒绝")
	}
	if !strings.Contains(result.Reason, "Daily limit") {
		t.Errorf("reason = %s, want Daily limit", result.Reason)
	}

	status, err := breaker.GetStatus(ctx, 1)
	if err != nil {
		t.Fatalf("获取状态失败: %v", err)
	}
	if !status.IsBlocked || status.BlockReason != "Daily limit exceeded" {
		t.Errorf("status = %+v, want Daily limit exceeded", status)
	}
}

func TestBreaker_Cooldown(t *testing.T) {
	breaker := newTestBreaker()
	ctx := context.Background()

	if err := breaker.RecordChange(ctx, 1); err != nil {
		t.Fatalf("记录变更失败: %v", err)
	}

	result, err := breaker.CanApply(ctx, 1, 100, 99)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if result.Allowed {
		t.Fatal("冷却期内应被拒绝")
	}
	if !strings.Contains(result.Reason, "Cooldown") {
		t.Errorf("reason = %s, want Cooldown", result.Reason)
	}

	status, err := breaker.GetStatus(ctx, 1)
	if err != nil {
		t.Fatalf("获取状态失败: %v", err)
	}
	if status.BlockReason != "Cooldown period active" {
		t.Errorf("blockReason = %s, want Cooldown period active", status.BlockReason)
	}
}

func TestBreaker_AlertWithoutBlock(t *testing.T) {
	breaker := newTestBreaker()
	ctx := context.Background()

	// 16% 降幅在 20% 上限内但超过 15% 告警阈值：放行且置告警
	result, err := breaker.CanApply(ctx, 1, 100, 84)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("16%% 降幅应放行: %s", result.Reason)
	}
	if !result.Alert {
		t.Error("超过告警阈值应置 Alert")
	}
}

func TestBreaker_ListingsIsolated(t *testing.T) {
	breaker := newTestBreaker()
	ctx := context.Background()

	if err := breaker.RecordChange(ctx, 1); err != nil {
		t.Fatalf("记录变更失败: %v", err)
	}

	// 其他刊登不受 listing=1 的冷却影响
	result, err := breaker.CanApply(ctx, 2, 100, 95)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if !result.Allowed {
		t.Errorf("刊登 2 不应被刊登 1 的冷却拦截: %s", result.Reason)
	}
}
