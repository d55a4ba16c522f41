package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/feed"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/service"
	"github.com/sourcebridge/internal/view"
)

const observerBuffer = 16

// Observer 一个观察者对单个供应商订单作用域的通知句柄
type Observer struct {
	scopeID uint
	ch      chan service.Notification
	once    sync.Once
}

// Notifications 按事件投递顺序输出通知；观察者被移除后通道关闭
func (o *Observer) Notifications() <-chan service.Notification {
	return o.ch
}

func (o *Observer) close() {
	o.once.Do(func() { close(o.ch) })
}

// scopeSub 单个作用域的订阅状态：一条变更订阅加一组观察者
type scopeSub struct {
	cancel    context.CancelFunc
	observers map[*Observer]struct{}
}

// Hub 实时同步层
// 每个作用域只维护一条到变更订阅源的逻辑订阅；收到事件时先失效本地视图
// 并启动预刷新，再分类为通知并按投递顺序推给该作用域的全部观察者。
// 最后一个观察者离开时释放订阅，进程退出时 Close 统一回收。
type Hub struct {
	changeFeed feed.Feed
	controller *view.Controller
	sink       service.NotificationSink

	mu     sync.Mutex
	scopes map[uint]*scopeSub
	closed bool
}

// NewHub 创建同步层
func NewHub(changeFeed feed.Feed, controller *view.Controller, sink service.NotificationSink) *Hub {
	return &Hub{
		changeFeed: changeFeed,
		controller: controller,
		sink:       sink,
		scopes:     make(map[uint]*scopeSub),
	}
}

// Watch 注册一个观察者
// 作用域的首个观察者触发建立变更订阅
func (h *Hub) Watch(ctx context.Context, scopeID uint) (*Observer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, feed.ErrFeedClosed
	}

	observer := &Observer{
		scopeID: scopeID,
		ch:      make(chan service.Notification, observerBuffer),
	}
	sub, ok := h.scopes[scopeID]
	if !ok {
		// 订阅生命周期跟随事件循环而非首个观察者的请求上下文
		runCtx, cancel := context.WithCancel(context.Background())
		subscription, err := h.changeFeed.Subscribe(runCtx, constants.FeedTableProductionStages, scopeID)
		if err != nil {
			cancel()
			return nil, err
		}
		sub = &scopeSub{
			cancel:    cancel,
			observers: make(map[*Observer]struct{}),
		}
		h.scopes[scopeID] = sub
		go h.run(runCtx, scopeID, subscription)
	}
	sub.observers[observer] = struct{}{}
	return observer, nil
}

// Unwatch 移除观察者，最后一个观察者离开时释放该作用域的订阅
func (h *Hub) Unwatch(observer *Observer) {
	if observer == nil {
		return
	}
	h.mu.Lock()
	sub, ok := h.scopes[observer.scopeID]
	if ok {
		delete(sub.observers, observer)
		if len(sub.observers) == 0 {
			sub.cancel()
			delete(h.scopes, observer.scopeID)
		}
	}
	h.mu.Unlock()
	observer.close()
}

// ObserverCount 返回作用域当前的观察者数量
func (h *Hub) ObserverCount(scopeID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.scopes[scopeID]
	if !ok {
		return 0
	}
	return len(sub.observers)
}

// Close 释放全部订阅与观察者
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	scopes := h.scopes
	h.scopes = make(map[uint]*scopeSub)
	h.mu.Unlock()

	for _, sub := range scopes {
		sub.cancel()
		for observer := range sub.observers {
			observer.close()
		}
	}
}

// run 单个作用域的事件循环，单协程消费保证投递顺序
// 订阅通道意外关闭时按退避重新订阅
func (h *Hub) run(ctx context.Context, scopeID uint, subscription feed.Subscription) {
	defer func() {
		if subscription != nil {
			_ = subscription.Close()
		}
	}()
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-subscription.Events():
			if !ok {
				// 订阅丢失：退避重订，观察者保持注册
				logger.Warnw("feed_subscription_lost", "scope_id", scopeID, "attempt", attempt)
				_ = subscription.Close()
				subscription = nil
				next, err := h.resubscribe(ctx, scopeID, &attempt)
				if err != nil {
					return
				}
				subscription = next
				continue
			}
			attempt = 0
			h.handle(ctx, scopeID, event)
		}
	}
}

func (h *Hub) resubscribe(ctx context.Context, scopeID uint, attempt *int) (feed.Subscription, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(resubscribeBackoff(*attempt)):
		}
		*attempt++
		subscription, err := h.changeFeed.Subscribe(ctx, constants.FeedTableProductionStages, scopeID)
		if err == nil {
			logger.Infow("feed_resubscribed", "scope_id", scopeID, "attempt", *attempt)
			return subscription, nil
		}
		logger.Warnw("feed_resubscribe_failed", "scope_id", scopeID, "attempt", *attempt, "error", err)
	}
}

// handle 处理一条事件：失效在先，通知在后
// 失效后立即启动预刷新，让下一次读取不必等待回源
func (h *Hub) handle(ctx context.Context, scopeID uint, event feed.Event) {
	h.controller.Invalidate(scopeID)
	h.controller.Refresh(ctx, scopeID)

	notification, ok := service.ClassifyStageEvent(event)
	if !ok {
		return
	}
	if h.sink != nil {
		h.sink.Notify(notification)
	}

	// 发送持锁进行，避免与 Unwatch 关闭通道竞争；发送本身非阻塞
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, exists := h.scopes[scopeID]
	if !exists {
		return
	}
	for observer := range sub.observers {
		select {
		case observer.ch <- notification:
		default:
			// 观察者消费过慢时丢弃，视图失效已保证下次读取拿到新数据
			logger.Warnw("observer_notification_dropped", "scope_id", scopeID, "kind", notification.Kind)
		}
	}
}

func resubscribeBackoff(attempt int) time.Duration {
	backoff := 500 * time.Millisecond << uint(attempt)
	if backoff > 30*time.Second || backoff <= 0 {
		return 30 * time.Second
	}
	return backoff
}
