package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcebridge/internal/logger"

	"github.com/redis/go-redis/v9"
)

const (
	subscribeBackoffBase = 500 * time.Millisecond
	subscribeBackoffMax  = 30 * time.Second
	subscriptionBuffer   = 64
)

// RedisFeed 基于 Redis Pub/Sub 的变更订阅实现
type RedisFeed struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	closed bool
	subs   map[*redisSubscription]struct{}
}

// NewRedisFeed 创建 Redis 变更订阅
func NewRedisFeed(client *redis.Client, prefix string) *RedisFeed {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "sb"
	}
	return &RedisFeed{
		client: client,
		prefix: prefix,
		subs:   make(map[*redisSubscription]struct{}),
	}
}

func (f *RedisFeed) channel(table string, scopeID uint) string {
	return fmt.Sprintf("%s:feed:%s:%d", f.prefix, table, scopeID)
}

// Publish 发布变更事件
func (f *RedisFeed) Publish(ctx context.Context, event Event) error {
	if f == nil || f.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel(event.Table, event.ScopeID), payload).Err()
}

// Subscribe 订阅单个作用域的变更
// 连接断开后按指数退避自动重订阅，直至 ctx 取消或 Close
func (f *RedisFeed) Subscribe(ctx context.Context, table string, scopeID uint) (Subscription, error) {
	if f == nil || f.client == nil {
		return nil, ErrFeedClosed
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		feed:    f,
		channel: f.channel(table, scopeID),
		events:  make(chan Event, subscriptionBuffer),
		cancel:  cancel,
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go sub.run(subCtx)
	return sub, nil
}

// Close 关闭全部订阅
func (f *RedisFeed) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	f.closed = true
	subs := make([]*redisSubscription, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (f *RedisFeed) drop(sub *redisSubscription) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

type redisSubscription struct {
	feed    *RedisFeed
	channel string
	events  chan Event
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// Events 事件输出通道
func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

// Close 释放订阅
func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.feed.drop(s)
	})
	return nil
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.events)
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		pubsub := s.feed.client.Subscribe(ctx, s.channel)
		// 确认订阅建立后重置退避
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			attempt++
			wait := nextBackoff(attempt)
			logger.Warnw("feed_subscribe_failed",
				"channel", s.channel,
				"attempt", attempt,
				"retry_in", wait.String(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		attempt = 0
		logger.Debugw("feed_subscribed", "channel", s.channel)

		s.pump(ctx, pubsub)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		attempt++
		wait := nextBackoff(attempt)
		logger.Warnw("feed_subscription_lost",
			"channel", s.channel,
			"retry_in", wait.String(),
			"error", ErrSubscriptionLost,
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// pump 将一条连接上的消息按序转发，连接异常时返回
func (s *redisSubscription) pump(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warnw("feed_event_decode_failed", "channel", s.channel, "error", err)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case s.events <- event:
			}
		}
	}
}

// nextBackoff 计算第 attempt 次重试的等待时间
func nextBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := subscribeBackoffBase
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= subscribeBackoffMax {
			return subscribeBackoffMax
		}
	}
	if wait > subscribeBackoffMax {
		return subscribeBackoffMax
	}
	return wait
}
