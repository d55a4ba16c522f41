package router

import (
	"fmt"
	"strings"

	"github.com/sourcebridge/internal/cache"
	"github.com/sourcebridge/internal/config"
	"github.com/sourcebridge/internal/constants"
	adminhandlers "github.com/sourcebridge/internal/http/handlers/admin"
	publichandlers "github.com/sourcebridge/internal/http/handlers/public"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/管理分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sb"
	}
	trackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:track", redisPrefix),
		WindowSeconds: cfg.Security.TrackRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.TrackRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 静态文件服务（阶段照片等上传内容）
	r.Static("/uploads", "./uploads")

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口：凭订单号 + 查询口令追踪订单
		public := apiV1.Group("/public")
		public.Use(RateLimitMiddleware(cache.Client(), trackRule, KeyByIPAndParam("order_no")))
		{
			public.GET("/orders/:order_no", publicHandler.TrackOrder)
			public.GET("/orders/:order_no/stages", publicHandler.TrackOrderStages)
		}

		// 需鉴权的接口
		authed := apiV1.Group("")
		authed.Use(JWTAuthMiddleware(cfg.JWT.SecretKey))

		// 买家接口
		buyer := authed.Group("/buyer", RequireRole(constants.RoleBuyer, constants.RoleAdmin))
		{
			buyer.POST("/orders", publicHandler.CreateOrder)
			buyer.GET("/orders", publicHandler.ListMyOrders)
			buyer.GET("/orders/:id", publicHandler.GetOrder)
			buyer.GET("/orders/:id/stages", publicHandler.GetOrderStages)
			buyer.GET("/orders/:id/history", publicHandler.GetOrderHistory)
			buyer.POST("/orders/:id/accept-quote", publicHandler.AcceptQuote)
			buyer.POST("/orders/:id/complete", publicHandler.CompleteOrder)
			buyer.POST("/orders/:id/abandon", publicHandler.AbandonOrder)
		}

		// 供应商接口（路径中的 :id 为供应商侧订单 ID）
		supplier := authed.Group("/supplier", RequireRole(constants.RoleSupplier))
		{
			supplier.GET("/orders", publicHandler.ListAssignedOrders)
			supplier.GET("/orders/:id/stages", publicHandler.ListSupplierOrderStages)
			supplier.GET("/orders/:id/stages/current", publicHandler.GetCurrentStage)
			supplier.POST("/orders/:id/stages", publicHandler.StartStage)
			supplier.POST("/orders/:id/transition", publicHandler.SupplierTransition)
			supplier.PATCH("/stages/:id", publicHandler.UpdateStage)
			supplier.POST("/stages/:id/complete", publicHandler.CompleteStage)
		}

		// 实时接口：订阅供应商订单的阶段变更（SSE）
		stream := authed.Group("/stream")
		{
			stream.GET("/supplier-orders/:id", publicHandler.WatchSupplierOrder)
		}

		// 管理接口
		admin := authed.Group("/admin", RequireRole(constants.RoleAdmin))
		{
			admin.POST("/suppliers", adminHandler.CreateSupplier)
			admin.GET("/suppliers", adminHandler.ListSuppliers)
			admin.GET("/suppliers/:id/orders", adminHandler.ListSupplierOrders)
			admin.GET("/orders", adminHandler.ListOrders)
			admin.GET("/orders/:id", adminHandler.GetOrder)
			admin.GET("/orders/:id/history", adminHandler.GetOrderHistory)
			admin.PUT("/orders/:id/quote", adminHandler.UpdateQuote)
			admin.POST("/orders/:id/assign", adminHandler.AssignSupplier)
			admin.POST("/orders/:id/transition", adminHandler.Transition)
			admin.POST("/orders/:id/force-status", adminHandler.ForceStatus)
			admin.POST("/orders/:id/abandon", adminHandler.AbandonOrder)
			admin.POST("/orders/:id/reinstate", adminHandler.ReinstateOrder)
		}
	}

	return r
}
