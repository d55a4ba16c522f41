package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/feed"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/service"
	"github.com/sourcebridge/internal/view"
)

type recordingSink struct {
	mu            sync.Mutex
	notifications []service.Notification
}

func (s *recordingSink) Notify(n service.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

type countingLoader struct {
	mu     sync.Mutex
	loads  int
	stages []models.ProductionStage
}

func (l *countingLoader) load(ctx context.Context, scopeID uint) ([]models.ProductionStage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	stages := make([]models.ProductionStage, len(l.stages))
	copy(stages, l.stages)
	return stages, nil
}

func (l *countingLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

func setupHubTest(t *testing.T) (*Hub, *feed.MemoryFeed, *countingLoader, *recordingSink) {
	t.Helper()
	memoryFeed := feed.NewMemoryFeed()
	loader := &countingLoader{
		stages: []models.ProductionStage{{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Cutting", Status: constants.StageStatusInProgress, Percentage: 25}},
	}
	sink := &recordingSink{}
	hub := NewHub(memoryFeed, view.NewController(loader.load), sink)
	t.Cleanup(hub.Close)
	return hub, memoryFeed, loader, sink
}

func publishStageEvent(t *testing.T, memoryFeed *feed.MemoryFeed, eventType string, stage *models.ProductionStage) {
	t.Helper()
	event, err := feed.NewStageEvent(eventType, nil, stage)
	if err != nil {
		t.Fatalf("build event failed: %v", err)
	}
	if err := memoryFeed.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func receiveNotification(t *testing.T, observer *Observer) service.Notification {
	t.Helper()
	select {
	case n, ok := <-observer.Notifications():
		if !ok {
			t.Fatalf("observer channel closed unexpectedly")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
	}
	return service.Notification{}
}

func TestWatchDeliversClassifiedNotificationsInOrder(t *testing.T) {
	hub, memoryFeed, _, sink := setupHubTest(t)

	observer, err := hub.Watch(context.Background(), 1)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer hub.Unwatch(observer)

	stage := &models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Cutting", Status: constants.StageStatusInProgress, Percentage: 0}
	publishStageEvent(t, memoryFeed, constants.FeedEventInsert, stage)
	stage.Percentage = 60
	publishStageEvent(t, memoryFeed, constants.FeedEventUpdate, stage)

	first := receiveNotification(t, observer)
	if first.Kind != constants.NotificationStageStarted {
		t.Fatalf("expected stage_started first, got %s", first.Kind)
	}
	second := receiveNotification(t, observer)
	if second.Kind != constants.NotificationStageUpdated {
		t.Fatalf("expected stage_updated second, got %s", second.Kind)
	}
	if second.Percentage != 60 {
		t.Fatalf("expected percentage 60, got %d", second.Percentage)
	}

	deadline := time.Now().Add(time.Second)
	for sink.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sink received %d notifications, want 2", sink.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventInvalidatesViewBeforeNotification(t *testing.T) {
	hub, memoryFeed, loader, _ := setupHubTest(t)

	observer, err := hub.Watch(context.Background(), 1)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	defer hub.Unwatch(observer)

	// 预热视图
	if _, err := hub.controller.Stages(context.Background(), 1); err != nil {
		t.Fatalf("load view failed: %v", err)
	}
	loadsBefore := loader.loadCount()

	loader.mu.Lock()
	loader.stages[0].Status = constants.StageStatusCompleted
	loader.stages[0].Percentage = 100
	loader.mu.Unlock()
	publishStageEvent(t, memoryFeed, constants.FeedEventUpdate, &models.ProductionStage{
		ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Cutting",
		Status: constants.StageStatusCompleted, Percentage: 100,
	})
	receiveNotification(t, observer)

	// 通知已送达，此刻读取必须拿到完成态，不能再看到陈旧进行中视图
	// 数据可能来自预刷新或即时回源，但一定不是失效前的快照
	stages, err := hub.controller.Stages(context.Background(), 1)
	if err != nil {
		t.Fatalf("reload view failed: %v", err)
	}
	if loader.loadCount() <= loadsBefore {
		t.Fatalf("expected a fresh load after invalidation, loads stayed at %d", loadsBefore)
	}
	if stages[0].Status != constants.StageStatusCompleted {
		t.Fatalf("expected completed view after invalidation, got %s", stages[0].Status)
	}
}

func TestUnwatchReleasesSubscriptionOnLastObserver(t *testing.T) {
	hub, memoryFeed, _, _ := setupHubTest(t)

	first, err := hub.Watch(context.Background(), 1)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	second, err := hub.Watch(context.Background(), 1)
	if err != nil {
		t.Fatalf("second watch failed: %v", err)
	}
	if got := memoryFeed.SubscriberCount(constants.FeedTableProductionStages, 1); got != 1 {
		t.Fatalf("expected one logical subscription per scope, got %d", got)
	}
	if hub.ObserverCount(1) != 2 {
		t.Fatalf("expected 2 observers, got %d", hub.ObserverCount(1))
	}

	hub.Unwatch(first)
	if got := memoryFeed.SubscriberCount(constants.FeedTableProductionStages, 1); got != 1 {
		t.Fatalf("subscription must survive while observers remain, got %d", got)
	}

	hub.Unwatch(second)
	deadline := time.Now().Add(2 * time.Second)
	for memoryFeed.SubscriberCount(constants.FeedTableProductionStages, 1) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released after last observer left")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ObserverCount(1) != 0 {
		t.Fatalf("expected 0 observers after unwatch, got %d", hub.ObserverCount(1))
	}
}

func TestCloseTearsDownEverything(t *testing.T) {
	hub, memoryFeed, _, _ := setupHubTest(t)

	observer, err := hub.Watch(context.Background(), 1)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if _, err := hub.Watch(context.Background(), 2); err != nil {
		t.Fatalf("watch scope 2 failed: %v", err)
	}

	hub.Close()

	deadline := time.Now().Add(2 * time.Second)
	for memoryFeed.SubscriberCount(constants.FeedTableProductionStages, 1) != 0 ||
		memoryFeed.SubscriberCount(constants.FeedTableProductionStages, 2) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("close must release all subscriptions")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case _, ok := <-observer.Notifications():
		if ok {
			t.Fatalf("expected closed observer channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("observer channel not closed after hub close")
	}

	if _, err := hub.Watch(context.Background(), 3); err == nil {
		t.Fatalf("watch after close must fail")
	}
}

// ctxBoundFeed 订阅生命周期跟随 Subscribe 传入上下文的替身，行为对齐 RedisFeed
type ctxBoundFeed struct {
	inner *feed.MemoryFeed
}

func (f *ctxBoundFeed) Publish(ctx context.Context, event feed.Event) error {
	return f.inner.Publish(ctx, event)
}

func (f *ctxBoundFeed) Subscribe(ctx context.Context, table string, scopeID uint) (feed.Subscription, error) {
	sub, err := f.inner.Subscribe(ctx, table, scopeID)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

func (f *ctxBoundFeed) Close() error {
	return f.inner.Close()
}

func TestScopeSubscriptionOutlivesFirstWatcherContext(t *testing.T) {
	boundFeed := &ctxBoundFeed{inner: feed.NewMemoryFeed()}
	loader := &countingLoader{
		stages: []models.ProductionStage{{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Cutting", Status: constants.StageStatusInProgress, Percentage: 25}},
	}
	hub := NewHub(boundFeed, view.NewController(loader.load), &recordingSink{})
	t.Cleanup(hub.Close)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first, err := hub.Watch(firstCtx, 1)
	if err != nil {
		t.Fatalf("first watch failed: %v", err)
	}
	second, err := hub.Watch(context.Background(), 1)
	if err != nil {
		t.Fatalf("second watch failed: %v", err)
	}

	// 首个观察者的请求结束，不能连带断开整个作用域的订阅
	cancelFirst()
	hub.Unwatch(first)
	time.Sleep(50 * time.Millisecond)
	if got := boundFeed.inner.SubscriberCount(constants.FeedTableProductionStages, 1); got != 1 {
		t.Fatalf("subscription must not follow the first watcher's context, got %d", got)
	}

	publishStageEvent(t, boundFeed.inner, constants.FeedEventUpdate, &models.ProductionStage{
		ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Cutting",
		Status: constants.StageStatusInProgress, Percentage: 80,
	})
	n := receiveNotification(t, second)
	if n.Kind != constants.NotificationStageUpdated {
		t.Fatalf("expected stage_updated for remaining observer, got %s", n.Kind)
	}
	if n.Percentage != 80 {
		t.Fatalf("expected percentage 80, got %d", n.Percentage)
	}
}
