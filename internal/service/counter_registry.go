package service

import (
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"context"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// Counter 徽章条件使用的计数器，db 可能是事务
type Counter interface {
	Key() string
	Count(ctx context.Context, db *gorm.DB, userID uint) (int64, error)
}

type counterFunc struct {
	key string
	fn  func(ctx context.Context, db *gorm.DB, userID uint) (int64, error)
}

func (c counterFunc) Key() string { return c.key }

func (c counterFunc) Count(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	return c.fn(ctx, db, userID)
}

// NewCounter 用函数构造计数器
func NewCounter(key string, fn func(ctx context.Context, db *gorm.DB, userID uint) (int64, error)) Counter {
	return counterFunc{key: key, fn: fn}
}

// CounterRegistry 计数器注册表，键区分大小写
type CounterRegistry struct {
	mu       sync.RWMutex
	counters map[string]Counter
}

func NewCounterRegistry() *CounterRegistry {
	return &CounterRegistry{counters: make(map[string]Counter)}
}

// Register 重复注册同一个键返回 ErrDuplicateCounter
func (r *CounterRegistry) Register(c Counter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.counters[c.Key()]; exists {
		return fmt.Errorf("%w: %s", util.ErrDuplicateCounter, c.Key())
	}
	r.counters[c.Key()] = c
	return nil
}

func (r *CounterRegistry) Lookup(key string) (Counter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.counters[key]
	return c, ok
}

func (r *CounterRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.counters))
	for k := range r.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const (
	CounterQuizzesPassed        = "quizzes_passed"
	CounterWorksheetsSubmitted  = "worksheets_submitted"
	CounterLessonsAttended      = "lessons_attended"
	CounterArticlesPublished    = "articles_published"
	CounterActiveMinutes        = "active_minutes"
	CounterWeeklyTasksCompleted = "weekly_tasks_completed"
	CounterTotalXP              = "total_xp"
)

// RegisterBuiltinCounters 注册内置计数器
func RegisterBuiltinCounters(r *CounterRegistry, activeTime *ActiveTimeService) error {
	counters := []Counter{
		NewCounter(CounterQuizzesPassed, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
			return repository.NewActivityRepository(db.WithContext(ctx)).CountQuizzesPassed(userID)
		}),
		NewCounter(CounterWorksheetsSubmitted, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
			return repository.NewActivityRepository(db.WithContext(ctx)).CountWorksheetsSubmitted(userID)
		}),
		NewCounter(CounterLessonsAttended, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
			return repository.NewActivityRepository(db.WithContext(ctx)).CountLessonsAttended(userID)
		}),
		NewCounter(CounterArticlesPublished, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
			return repository.NewActivityRepository(db.WithContext(ctx)).CountArticlesPublished(userID)
		}),
		NewCounter(CounterWeeklyTasksCompleted, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
			return repository.NewWeeklyTaskRepository(db.WithContext(ctx)).CountCompleted(userID)
		}),
		NewCounter(CounterTotalXP, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
			state, err := repository.NewXPRepository(db.WithContext(ctx)).FindState(userID)
			if err != nil || state == nil {
				return 0, err
			}
			return int64(state.TotalXP), nil
		}),
	}
	if activeTime != nil {
		counters = append(counters, NewCounter(CounterActiveMinutes, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
			return activeTime.LifetimeActiveMinutesTx(ctx, db, userID)
		}))
	}

	for _, c := range counters {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
