package main

import (
	"fmt"
	"time"

	"github.com/sourcebridge/internal/config"
	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/service"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 供应商
	suppliers := []models.Supplier{
		{
			Name:          "深圳联创电子厂",
			ContactPerson: "王磊",
			ContactEmail:  "wang.lei@lianchuang.example.com",
			Region:        "Shenzhen",
			Capabilities: models.JSON(map[string]interface{}{
				"categories": []string{"electronics", "pcb-assembly"},
				"moq":        500,
			}),
			Verified: true,
		},
		{
			Name:          "宁波恒业注塑",
			ContactPerson: "陈芳",
			ContactEmail:  "chen.fang@hengye.example.com",
			Region:        "Ningbo",
			Capabilities: models.JSON(map[string]interface{}{
				"categories": []string{"injection-molding", "tooling"},
				"moq":        1000,
			}),
			Verified: true,
		},
		{
			Name:          "义乌纺织品合作社",
			ContactPerson: "刘强",
			ContactEmail:  "liu.qiang@yiwu-textile.example.com",
			Region:        "Yiwu",
			Capabilities: models.JSON(map[string]interface{}{
				"categories": []string{"textile", "packaging"},
			}),
			Verified: false,
		},
	}
	for i := range suppliers {
		if err := models.DB.FirstOrCreate(&suppliers[i], models.Supplier{Name: suppliers[i].Name}).Error; err != nil {
			stdLog.Fatalf("Failed to seed supplier %s: %v", suppliers[i].Name, err)
		}
	}

	// 示例订单：已分配供应商并进入生产
	now := time.Now()
	targetDate := now.AddDate(0, 2, 0)
	order := models.Order{
		OrderNo:       "SBDEMO0001",
		BuyerID:       1001,
		ProductType:   "bluetooth-speaker",
		Quantity:      2000,
		BuyerPrice:    models.NewMoneyFromDecimal(decimal.NewFromInt(26000)),
		SupplierPrice: models.NewMoneyFromDecimal(decimal.NewFromInt(19500)),
		Margin:        models.NewMoneyFromDecimal(decimal.NewFromInt(6500)),
		Status:        constants.OrderStatusInProduction,
		TargetDate:    &targetDate,
	}
	if err := order.SetTrackingCode("demo-code"); err != nil {
		stdLog.Fatalf("Failed to set tracking code: %v", err)
	}
	if err := models.DB.FirstOrCreate(&order, models.Order{OrderNo: order.OrderNo}).Error; err != nil {
		stdLog.Fatalf("Failed to seed order: %v", err)
	}
	if order.SupplierID == nil {
		supplierID := suppliers[0].ID
		if err := models.DB.Model(&order).Update("supplier_id", supplierID).Error; err != nil {
			stdLog.Fatalf("Failed to link supplier: %v", err)
		}
	}

	supplierOrder := models.SupplierOrder{
		OrderID:         order.ID,
		SupplierID:      suppliers[0].ID,
		SupplierOrderNo: "SBSDEMO0001",
		Notes:           "首批样品已确认",
	}
	if err := models.DB.FirstOrCreate(&supplierOrder, models.SupplierOrder{OrderID: order.ID}).Error; err != nil {
		stdLog.Fatalf("Failed to seed supplier order: %v", err)
	}

	// 生产阶段时间线
	startedAt := now.AddDate(0, 0, -10)
	moldingDone := now.AddDate(0, 0, -3)
	stageTarget := now.AddDate(0, 1, 0)
	stages := []models.ProductionStage{
		{
			SupplierOrderID: supplierOrder.ID,
			StageNumber:     1,
			Name:            "模具制作",
			Status:          constants.StageStatusCompleted,
			Percentage:      100,
			StartedAt:       &startedAt,
			CompletedAt:     &moldingDone,
		},
		{
			SupplierOrderID: supplierOrder.ID,
			StageNumber:     2,
			Name:            "注塑成型",
			Status:          constants.StageStatusInProgress,
			Percentage:      45,
			StartedAt:       &moldingDone,
			TargetDate:      &stageTarget,
			Notes:           "外壳良率稳定在 98%",
		},
	}
	for i := range stages {
		if err := models.DB.FirstOrCreate(&stages[i], models.ProductionStage{
			SupplierOrderID: supplierOrder.ID,
			StageNumber:     stages[i].StageNumber,
		}).Error; err != nil {
			stdLog.Fatalf("Failed to seed stage %d: %v", stages[i].StageNumber, err)
		}
	}

	// 状态历史
	histories := []models.OrderStatusHistory{
		{OrderID: order.ID, OldStatus: constants.OrderStatusQuoteRequested, NewStatus: constants.OrderStatusQuoteProvided, ActorRole: constants.RoleAdmin, ActorID: 1},
		{OrderID: order.ID, OldStatus: constants.OrderStatusQuoteProvided, NewStatus: constants.OrderStatusQuoteAccepted, ActorRole: constants.RoleBuyer, ActorID: 1001},
		{OrderID: order.ID, OldStatus: constants.OrderStatusQuoteAccepted, NewStatus: constants.OrderStatusAssignedToSupplier, ActorRole: constants.RoleAdmin, ActorID: 1},
		{OrderID: order.ID, OldStatus: constants.OrderStatusAssignedToSupplier, NewStatus: constants.OrderStatusInProduction, ActorRole: constants.RoleSupplier, ActorID: suppliers[0].ID},
	}
	for i := range histories {
		if err := models.DB.FirstOrCreate(&histories[i], models.OrderStatusHistory{
			OrderID:   order.ID,
			NewStatus: histories[i].NewStatus,
		}).Error; err != nil {
			stdLog.Fatalf("Failed to seed history: %v", err)
		}
	}

	// 演示用访问令牌（与外部签发方同一密钥）
	tokens := map[string]uint{
		constants.RoleAdmin:    1,
		constants.RoleBuyer:    1001,
		constants.RoleSupplier: suppliers[0].ID,
	}
	fmt.Println("Seed data ready.")
	fmt.Printf("Demo order: %s (tracking code: demo-code)\n", order.OrderNo)
	for role, actorID := range tokens {
		token, err := service.IssueToken(cfg.JWT.SecretKey, actorID, role, 24*time.Hour)
		if err != nil {
			stdLog.Fatalf("Failed to issue %s token: %v", role, err)
		}
		fmt.Printf("%s token (actor %d):\n  %s\n", role, actorID, token)
	}
}
