package event

import (
	"sync"
	"time"

	"hashbid/logger"
)

// Topic 强类型的发布/订阅主题
// Publish 在发布者的 goroutine 中同步调用所有处理函数，处理函数不能阻塞
type Topic[T any] struct {
	name   string
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
}

// NewTopic 创建主题
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name, subs: make(map[uint64]func(T))}
}

// Subscribe 注册处理函数，返回取消订阅函数（可重复调用）
func (t *Topic[T]) Subscribe(handler func(T)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = handler
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Publish 把消息分发给当前所有订阅者
func (t *Topic[T]) Publish(msg T) {
	t.mu.RLock()
	handlers := make([]func(T), 0, len(t.subs))
	for _, h := range t.subs {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		t.dispatch(h, msg)
	}
}

func (t *Topic[T]) dispatch(h func(T), msg T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ [%s] 订阅者处理消息时 panic: %v", t.name, r)
		}
	}()
	h(msg)
}

// Subscribers 当前订阅者数量
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// DifficultyChanged 币种难度变化
type DifficultyChanged struct {
	Coin       string
	Difficulty uint64
	Height     uint64
	At         time.Time
}

// PriceChanged 币种最优买价变化（聪/币）
type PriceChanged struct {
	Coin      string
	Exchange  string
	BestPrice int64
	At        time.Time
}

// SnapshotUpdated 市场盘口快照已刷新
type SnapshotUpdated struct {
	Location int
	Algo     int
	At       time.Time
}

// FeedDegraded 难度源连续失败超过阈值
type FeedDegraded struct {
	Coin     string
	Failures int
}

// Topics 业务事件主题集合
type Topics struct {
	DifficultyChanged *Topic[DifficultyChanged]
	PriceChanged      *Topic[PriceChanged]
	SnapshotUpdated   *Topic[SnapshotUpdated]
	FeedDegraded      *Topic[FeedDegraded]
}

// NewTopics 创建业务事件主题
func NewTopics() *Topics {
	return &Topics{
		DifficultyChanged: NewTopic[DifficultyChanged]("difficulty-changed"),
		PriceChanged:      NewTopic[PriceChanged]("price-changed"),
		SnapshotUpdated:   NewTopic[SnapshotUpdated]("snapshot-updated"),
		FeedDegraded:      NewTopic[FeedDegraded]("feed-degraded"),
	}
}
