package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/feed"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/queue"
	"github.com/sourcebridge/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupStageServiceTest(t *testing.T) (*StageService, *feed.MemoryFeed, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:stage_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Supplier{},
		&models.Order{},
		&models.SupplierOrder{},
		&models.ProductionStage{},
		&models.OrderStatusHistory{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("queue client failed: %v", err)
	}
	memoryFeed := feed.NewMemoryFeed()
	svc := NewStageService(
		repository.NewProductionStageRepository(db),
		repository.NewSupplierOrderRepository(db),
		repository.NewOrderRepository(db),
		memoryFeed,
		queueClient,
		time.Minute,
	)
	return svc, memoryFeed, db
}

func seedStageSupplierOrder(t *testing.T, db *gorm.DB) (*models.Order, *models.SupplierOrder) {
	t.Helper()
	order := models.Order{
		OrderNo:     fmt.Sprintf("SBTEST%d", time.Now().UnixNano()),
		BuyerID:     1,
		ProductType: "denim jacket",
		Quantity:    300,
		Status:      constants.OrderStatusInProduction,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	supplierOrder := models.SupplierOrder{
		OrderID:         order.ID,
		SupplierID:      1,
		SupplierOrderNo: fmt.Sprintf("SBS%d", time.Now().UnixNano()),
	}
	if err := db.Create(&supplierOrder).Error; err != nil {
		t.Fatalf("create supplier order failed: %v", err)
	}
	return &order, &supplierOrder
}

func TestStartStage(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	_, supplierOrder := seedStageSupplierOrder(t, db)

	stage, err := svc.StartStage(context.Background(), StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     1,
		Name:            "Material Sourcing",
	})
	if err != nil {
		t.Fatalf("start stage failed: %v", err)
	}
	if stage.Status != constants.StageStatusInProgress {
		t.Fatalf("expected status %s, got %s", constants.StageStatusInProgress, stage.Status)
	}
	if stage.Percentage != 0 {
		t.Fatalf("expected percentage 0, got %d", stage.Percentage)
	}
	if stage.StartedAt == nil {
		t.Fatalf("expected started_at set")
	}

	_, err = svc.StartStage(context.Background(), StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     1,
		Name:            "Material Sourcing Again",
	})
	if !errors.Is(err, ErrDuplicateStage) {
		t.Fatalf("expected ErrDuplicateStage, got %v", err)
	}
}

func TestUpdateStagePercentageAutoCompletes(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	_, supplierOrder := seedStageSupplierOrder(t, db)

	stage, err := svc.StartStage(context.Background(), StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     1,
		Name:            "Sewing",
	})
	if err != nil {
		t.Fatalf("start stage failed: %v", err)
	}

	full := 100
	updated, err := svc.UpdateStage(context.Background(), stage.ID, StageUpdateInput{Percentage: &full})
	if err != nil {
		t.Fatalf("update stage failed: %v", err)
	}
	if updated.Status != constants.StageStatusCompleted {
		t.Fatalf("percentage 100 must auto-complete, got status %s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("auto-completion must set completed_at")
	}

	var stored models.ProductionStage
	if err := db.First(&stored, stage.ID).Error; err != nil {
		t.Fatalf("load stage failed: %v", err)
	}
	if stored.Status != constants.StageStatusCompleted || stored.Percentage != 100 || stored.CompletedAt == nil {
		t.Fatalf("unexpected stored stage: status=%s percentage=%d", stored.Status, stored.Percentage)
	}
}

func TestUpdateStageStatusBackfillsPercentage(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	_, supplierOrder := seedStageSupplierOrder(t, db)

	stage, err := svc.StartStage(context.Background(), StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     1,
		Name:            "Quality Inspection",
	})
	if err != nil {
		t.Fatalf("start stage failed: %v", err)
	}

	completed := constants.StageStatusCompleted
	updated, err := svc.UpdateStage(context.Background(), stage.ID, StageUpdateInput{Status: &completed})
	if err != nil {
		t.Fatalf("update stage failed: %v", err)
	}
	if updated.Percentage != 100 {
		t.Fatalf("completed status must backfill percentage to 100, got %d", updated.Percentage)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("completed status must set completed_at")
	}
}

func TestCompleteStageIdempotent(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	_, supplierOrder := seedStageSupplierOrder(t, db)

	stage, err := svc.StartStage(context.Background(), StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     1,
		Name:            "Packing",
	})
	if err != nil {
		t.Fatalf("start stage failed: %v", err)
	}

	first, err := svc.CompleteStage(context.Background(), stage.ID)
	if err != nil {
		t.Fatalf("complete stage failed: %v", err)
	}
	second, err := svc.CompleteStage(context.Background(), stage.ID)
	if err != nil {
		t.Fatalf("second complete must be a no-op, got %v", err)
	}
	if second.Status != constants.StageStatusCompleted || second.Percentage != 100 {
		t.Fatalf("unexpected state after second complete: %s %d", second.Status, second.Percentage)
	}
	if first.CompletedAt == nil || second.CompletedAt == nil {
		t.Fatalf("completed_at must be set")
	}
	if !first.CompletedAt.Equal(*second.CompletedAt) {
		t.Fatalf("second complete must not move completed_at")
	}
}

func TestUpdateStageNotFound(t *testing.T) {
	svc, _, _ := setupStageServiceTest(t)
	full := 50
	_, err := svc.UpdateStage(context.Background(), 9999, StageUpdateInput{Percentage: &full})
	if !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}

func TestListByOrderWithoutSupplierOrder(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	order := models.Order{
		OrderNo:     fmt.Sprintf("SBTEST%d", time.Now().UnixNano()),
		BuyerID:     1,
		ProductType: "scarf",
		Quantity:    100,
		Status:      constants.OrderStatusQuoteRequested,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	stages, err := svc.ListByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("list by order failed: %v", err)
	}
	if len(stages) != 0 {
		t.Fatalf("expected empty list before assignment, got %d", len(stages))
	}
}

func TestStageOrderingByNumber(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	_, supplierOrder := seedStageSupplierOrder(t, db)

	for _, n := range []int{3, 1, 2} {
		_, err := svc.StartStage(context.Background(), StartStageInput{
			SupplierOrderID: supplierOrder.ID,
			StageNumber:     n,
			Name:            fmt.Sprintf("Stage %d", n),
		})
		if err != nil {
			t.Fatalf("start stage %d failed: %v", n, err)
		}
	}

	stages, err := svc.ListBySupplierOrder(context.Background(), supplierOrder.ID)
	if err != nil {
		t.Fatalf("list stages failed: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	for i := 1; i < len(stages); i++ {
		if stages[i].StageNumber < stages[i-1].StageNumber {
			t.Fatalf("stage numbers must be non-decreasing: %d before %d", stages[i-1].StageNumber, stages[i].StageNumber)
		}
	}
}

func TestDuplicateNumberEarlierCreatedWins(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	_, supplierOrder := seedStageSupplierOrder(t, db)

	earlier := models.ProductionStage{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     3,
		Name:            "Dye Lot A",
		Status:          constants.StageStatusInProgress,
		Percentage:      10,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	later := models.ProductionStage{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     3,
		Name:            "Dye Lot B",
		Status:          constants.StageStatusInProgress,
		Percentage:      20,
		CreatedAt:       time.Now(),
	}
	if err := db.Create(&earlier).Error; err != nil {
		t.Fatalf("create earlier stage failed: %v", err)
	}
	if err := db.Create(&later).Error; err != nil {
		t.Fatalf("create later stage failed: %v", err)
	}

	stages, err := svc.ListBySupplierOrder(context.Background(), supplierOrder.ID)
	if err != nil {
		t.Fatalf("list stages failed: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("listing must return both duplicate-number stages, got %d", len(stages))
	}
	if stages[0].Name != "Dye Lot A" {
		t.Fatalf("earlier-created stage must sort first, got %s", stages[0].Name)
	}

	current, err := svc.CurrentStage(context.Background(), supplierOrder.ID)
	if err != nil {
		t.Fatalf("current stage failed: %v", err)
	}
	if current == nil || current.Name != "Dye Lot A" {
		t.Fatalf("earlier-created stage must be current, got %+v", current)
	}
}

func TestOrderSummaryRefreshed(t *testing.T) {
	svc, _, db := setupStageServiceTest(t)
	order, supplierOrder := seedStageSupplierOrder(t, db)

	stage, err := svc.StartStage(context.Background(), StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     1,
		Name:            "Cutting",
	})
	if err != nil {
		t.Fatalf("start stage failed: %v", err)
	}

	var stored models.Order
	if err := db.First(&stored, order.ID).Error; err != nil {
		t.Fatalf("load order failed: %v", err)
	}
	if stored.CurrentStage != "Cutting" {
		t.Fatalf("expected current_stage Cutting, got %q", stored.CurrentStage)
	}

	sixty := 60
	if _, err := svc.UpdateStage(context.Background(), stage.ID, StageUpdateInput{Percentage: &sixty}); err != nil {
		t.Fatalf("update stage failed: %v", err)
	}
	if err := db.First(&stored, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	progress, ok := stored.StageProgress["Cutting"]
	if !ok {
		t.Fatalf("expected stage_progress entry for Cutting, got %v", stored.StageProgress)
	}
	// JSON 反序列化后数字为 float64
	if fmt.Sprintf("%v", progress) != "60" {
		t.Fatalf("expected progress 60, got %v", progress)
	}
}

func TestStageEventsDeliveredInOrder(t *testing.T) {
	svc, memoryFeed, db := setupStageServiceTest(t)
	_, supplierOrder := seedStageSupplierOrder(t, db)

	sub, err := memoryFeed.Subscribe(context.Background(), constants.FeedTableProductionStages, supplierOrder.ID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	stage, err := svc.StartStage(context.Background(), StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     1,
		Name:            "Weaving",
	})
	if err != nil {
		t.Fatalf("start stage failed: %v", err)
	}
	forty := 40
	if _, err := svc.UpdateStage(context.Background(), stage.ID, StageUpdateInput{Percentage: &forty}); err != nil {
		t.Fatalf("update stage failed: %v", err)
	}

	first := receiveEvent(t, sub)
	if first.Type != constants.FeedEventInsert {
		t.Fatalf("expected insert first, got %s", first.Type)
	}
	second := receiveEvent(t, sub)
	if second.Type != constants.FeedEventUpdate {
		t.Fatalf("expected update second, got %s", second.Type)
	}
	decoded, err := second.DecodeNewStage()
	if err != nil {
		t.Fatalf("decode stage failed: %v", err)
	}
	if decoded.Percentage != 40 {
		t.Fatalf("expected percentage 40 in event, got %d", decoded.Percentage)
	}
}

func receiveEvent(t *testing.T, sub feed.Subscription) feed.Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for feed event")
	}
	return feed.Event{}
}
