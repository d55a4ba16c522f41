package feed

import (
	"context"
	"sync"
)

// MemoryFeed 进程内变更订阅实现
// Redis 未启用时使用，同时作为测试替身；投递顺序与发布顺序一致
type MemoryFeed struct {
	mu     sync.Mutex
	closed bool
	subs   map[string][]*memorySubscription
}

// NewMemoryFeed 创建进程内变更订阅
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		subs: make(map[string][]*memorySubscription),
	}
}

func memoryKey(table string, scopeID uint) string {
	return table + "/" + uintString(scopeID)
}

func uintString(v uint) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Publish 发布变更事件
func (f *MemoryFeed) Publish(ctx context.Context, event Event) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFeedClosed
	}
	subs := make([]*memorySubscription, len(f.subs[memoryKey(event.Table, event.ScopeID)]))
	copy(subs, f.subs[memoryKey(event.Table, event.ScopeID)])
	f.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
	return nil
}

// Subscribe 订阅单个作用域的变更
func (f *MemoryFeed) Subscribe(ctx context.Context, table string, scopeID uint) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	key := memoryKey(table, scopeID)
	sub := &memorySubscription{
		feed:   f,
		key:    key,
		events: make(chan Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	f.subs[key] = append(f.subs[key], sub)
	return sub, nil
}

// Close 关闭全部订阅
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	var all []*memorySubscription
	for _, subs := range f.subs {
		all = append(all, subs...)
	}
	f.subs = make(map[string][]*memorySubscription)
	f.mu.Unlock()

	for _, sub := range all {
		sub.markClosed()
	}
	return nil
}

func (f *MemoryFeed) drop(sub *memorySubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[sub.key]
	for i, s := range subs {
		if s == sub {
			f.subs[sub.key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(f.subs[sub.key]) == 0 {
		delete(f.subs, sub.key)
	}
}

// SubscriberCount 某作用域当前订阅数（用于测试观察释放行为）
func (f *MemoryFeed) SubscriberCount(table string, scopeID uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[memoryKey(table, scopeID)])
}

type memorySubscription struct {
	feed   *MemoryFeed
	key    string
	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Events 事件输出通道
func (s *memorySubscription) Events() <-chan Event {
	return s.events
}

// Close 释放订阅
func (s *memorySubscription) Close() error {
	s.feed.drop(s)
	s.markClosed()
	return nil
}

func (s *memorySubscription) markClosed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	// 等待阻塞中的投递退出后再关闭事件通道
	s.inflight.Wait()
	close(s.events)
}

// deliver 投递事件；消费积压时阻塞发布方，背压语义与 Redis 实现一致
func (s *memorySubscription) deliver(event Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.events <- event:
	case <-s.done:
	}
}
