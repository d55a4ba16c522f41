package provider

import (
	"context"
	"time"

	"github.com/sourcebridge/internal/authz"
	"github.com/sourcebridge/internal/cache"
	"github.com/sourcebridge/internal/config"
	"github.com/sourcebridge/internal/feed"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/queue"
	"github.com/sourcebridge/internal/realtime"
	"github.com/sourcebridge/internal/repository"
	"github.com/sourcebridge/internal/service"
	"github.com/sourcebridge/internal/view"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	ChangeFeed  feed.Feed

	// Repositories
	OrderRepo         repository.OrderRepository
	SupplierRepo      repository.SupplierRepository
	SupplierOrderRepo repository.SupplierOrderRepository
	StageRepo         repository.ProductionStageRepository
	HistoryRepo       repository.OrderStatusHistoryRepository

	// Services
	AuthzService     *authz.Service
	WorkflowService  *service.WorkflowService
	OrderService     *service.OrderService
	StageService     *service.StageService
	SupplierService  *service.SupplierService
	NotificationSink service.NotificationSink

	// 实时视图
	ViewController *view.Controller
	Hub            *realtime.Hub
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	// 变更订阅源：有 Redis 走发布订阅，否则退化为进程内订阅
	var changeFeed feed.Feed
	if cache.Enabled() {
		changeFeed = feed.NewRedisFeed(cache.Client(), cfg.Redis.Prefix)
	} else {
		logger.Warnw("provider_feed_fallback_memory", "reason", "redis disabled")
		changeFeed = feed.NewMemoryFeed()
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		ChangeFeed:  changeFeed,
	}
	if err := c.initServices(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initServices() error {
	db := models.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.SupplierRepo = repository.NewSupplierRepository(db)
	c.SupplierOrderRepo = repository.NewSupplierOrderRepository(db)
	c.StageRepo = repository.NewProductionStageRepository(db)
	c.HistoryRepo = repository.NewOrderStatusHistoryRepository(db)

	authzService, err := authz.NewService()
	if err != nil {
		return err
	}
	c.AuthzService = authzService

	c.WorkflowService = service.NewWorkflowService(
		c.OrderRepo,
		c.HistoryRepo,
		c.SupplierOrderRepo,
		c.StageRepo,
		c.AuthzService,
		c.ChangeFeed,
		c.QueueClient,
	)
	c.OrderService = service.NewOrderService(
		c.OrderRepo,
		c.SupplierRepo,
		c.SupplierOrderRepo,
		c.HistoryRepo,
		c.WorkflowService,
	)
	cacheTTL := time.Duration(c.Config.Tracking.StageCacheTTLSeconds) * time.Second
	c.StageService = service.NewStageService(
		c.StageRepo,
		c.SupplierOrderRepo,
		c.OrderRepo,
		c.ChangeFeed,
		c.QueueClient,
		cacheTTL,
	)
	c.SupplierService = service.NewSupplierService(c.SupplierRepo, c.SupplierOrderRepo)
	c.NotificationSink = service.LogSink{}

	c.ViewController = view.NewController(func(ctx context.Context, scopeID uint) ([]models.ProductionStage, error) {
		return c.StageService.ListBySupplierOrder(ctx, scopeID)
	})
	c.Hub = realtime.NewHub(c.ChangeFeed, c.ViewController, c.NotificationSink)
	return nil
}

// Close 释放容器持有的资源
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.ChangeFeed != nil {
		if err := c.ChangeFeed.Close(); err != nil {
			logger.Warnw("provider_feed_close_failed", "error", err)
		}
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_queue_close_failed", "error", err)
		}
	}
}
