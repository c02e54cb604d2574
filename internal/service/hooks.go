package service

import (
	"academy_backend/pkg/logger"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	HookBadgeAwarded       = "badge_awarded"
	HookWeeklyTaskComplete = "weekly_task_completed"
)

// HookEvent 下游通知（站内信、邮件等由订阅方实现）
type HookEvent struct {
	Name    string                 `json:"name"`
	UserID  uint                   `json:"userId"`
	RefID   uint                   `json:"refId"`
	At      time.Time              `json:"at"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type HookHandler func(ctx context.Context, event HookEvent) error

// HookBus 进程内的同步通知总线，只在事务提交后触发
type HookBus struct {
	mu       sync.RWMutex
	handlers map[string][]HookHandler
}

func NewHookBus() *HookBus {
	return &HookBus{handlers: make(map[string][]HookHandler)}
}

func (b *HookBus) Subscribe(name string, handler HookHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Fire 订阅方的错误和 panic 只记录日志，不影响已提交的数据
func (b *HookBus) Fire(ctx context.Context, events ...HookEvent) {
	if b == nil {
		return
	}
	for _, event := range events {
		b.mu.RLock()
		handlers := append([]HookHandler(nil), b.handlers[event.Name]...)
		b.mu.RUnlock()

		for _, handler := range handlers {
			if err := safeCall(ctx, handler, event); err != nil {
				logger.Log.Warn("Hook handler failed",
					zap.String("hook", event.Name),
					zap.Uint("userID", event.UserID),
					zap.Error(err),
				)
			}
		}
	}
}

func safeCall(ctx context.Context, handler HookHandler, event HookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// HookQueue 收集事务内产生的通知，提交后统一 Fire
type HookQueue struct {
	events []HookEvent
}

func (q *HookQueue) Add(event HookEvent) {
	if q == nil {
		return
	}
	q.events = append(q.events, event)
}

func (q *HookQueue) Events() []HookEvent {
	if q == nil {
		return nil
	}
	return q.events
}
