package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderService 订单服务
// 负责订单创建、报价、供应商分配与查询；状态推进交给 WorkflowService
type OrderService struct {
	orderRepo         repository.OrderRepository
	supplierRepo      repository.SupplierRepository
	supplierOrderRepo repository.SupplierOrderRepository
	historyRepo       repository.OrderStatusHistoryRepository
	workflowService   *WorkflowService
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, supplierRepo repository.SupplierRepository, supplierOrderRepo repository.SupplierOrderRepository, historyRepo repository.OrderStatusHistoryRepository, workflowService *WorkflowService) *OrderService {
	return &OrderService{
		orderRepo:         orderRepo,
		supplierRepo:      supplierRepo,
		supplierOrderRepo: supplierOrderRepo,
		historyRepo:       historyRepo,
		workflowService:   workflowService,
	}
}

// CreateOrderInput 创建订单输入
type CreateOrderInput struct {
	BuyerID      uint
	ProductType  string
	Quantity     int
	FactoryRef   string
	TargetDate   *time.Time
	TrackingCode string // 公开查询口令，可为空
}

// QuoteInput 报价输入
type QuoteInput struct {
	BuyerPrice       models.Money
	SupplierPrice    models.Money
	ExpectedDelivery *time.Time
}

// AssignSupplierInput 供应商分配输入
type AssignSupplierInput struct {
	OrderID    uint
	SupplierID uint
	Notes      string
	ActorID    uint
}

// CreateOrder 创建订单，初始状态为 quote_requested
func (s *OrderService) CreateOrder(input CreateOrderInput) (*models.Order, error) {
	if input.BuyerID == 0 || strings.TrimSpace(input.ProductType) == "" || input.Quantity <= 0 {
		return nil, ErrInvalidOrderInput
	}

	order := &models.Order{
		OrderNo:     generateOrderNo(),
		BuyerID:     input.BuyerID,
		ProductType: strings.TrimSpace(input.ProductType),
		Quantity:    input.Quantity,
		FactoryRef:  strings.TrimSpace(input.FactoryRef),
		Status:      constants.OrderStatusQuoteRequested,
		TargetDate:  input.TargetDate,
	}
	if err := order.SetTrackingCode(input.TrackingCode); err != nil {
		return nil, err
	}

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.WithTx(tx).Create(order); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		record := &models.OrderStatusHistory{
			OrderID:   order.ID,
			OldStatus: "",
			NewStatus: constants.OrderStatusQuoteRequested,
			ActorRole: constants.RoleBuyer,
			ActorID:   input.BuyerID,
			Note:      "order created",
		}
		return s.historyRepo.WithTx(tx).Append(record)
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("order_created",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"buyer_id", order.BuyerID,
		"product_type", order.ProductType,
	)
	return order, nil
}

// UpdateQuote 填写报价并重算毛利
// 仅允许在报价阶段修改价格；状态推进由调用方另行触发
func (s *OrderService) UpdateQuote(orderID uint, input QuoteInput) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusQuoteRequested && order.Status != constants.OrderStatusQuoteProvided {
		return nil, fmt.Errorf("%w: quote may not change in status %s", ErrInvalidTransition, order.Status)
	}

	order.BuyerPrice = input.BuyerPrice
	order.SupplierPrice = input.SupplierPrice
	order.RecalcMargin()
	now := time.Now()
	updates := map[string]interface{}{
		"buyer_price":    order.BuyerPrice,
		"supplier_price": order.SupplierPrice,
		"margin":         order.Margin,
		"updated_at":     now,
	}
	if input.ExpectedDelivery != nil {
		updates["expected_delivery"] = *input.ExpectedDelivery
		order.ExpectedDelivery = input.ExpectedDelivery
	}
	if err := s.orderRepo.UpdateFields(order.ID, updates); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	order.UpdatedAt = now
	logger.Infow("order_quote_updated",
		"order_id", order.ID,
		"buyer_price", order.BuyerPrice.String(),
		"supplier_price", order.SupplierPrice.String(),
		"margin", order.Margin.String(),
	)
	return order, nil
}

// AssignSupplier 把订单分配给已验厂的供应商
// 创建供应商侧订单并推进状态到 assigned_to_supplier
func (s *OrderService) AssignSupplier(ctx context.Context, input AssignSupplierInput) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusQuoteAccepted {
		return nil, fmt.Errorf("%w: assignment requires status %s", ErrInvalidTransition, constants.OrderStatusQuoteAccepted)
	}
	if order.SupplierID != nil {
		return nil, ErrSupplierAssigned
	}

	supplier, err := s.supplierRepo.GetByID(input.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if supplier == nil {
		return nil, ErrSupplierNotFound
	}
	if !supplier.Verified {
		return nil, fmt.Errorf("%w: supplier %d is not verified", ErrInvalidOrderInput, supplier.ID)
	}

	supplierOrder := &models.SupplierOrder{
		OrderID:         order.ID,
		SupplierID:      supplier.ID,
		SupplierOrderNo: generateSupplierOrderNo(),
		Notes:           strings.TrimSpace(input.Notes),
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.supplierOrderRepo.WithTx(tx).Create(supplierOrder); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		updates := map[string]interface{}{
			"supplier_id": supplier.ID,
			"updated_at":  time.Now(),
		}
		if err := s.orderRepo.WithTx(tx).UpdateFields(order.ID, updates); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("supplier_assigned",
		"order_id", order.ID,
		"supplier_id", supplier.ID,
		"supplier_order_no", supplierOrder.SupplierOrderNo,
	)
	return s.workflowService.Transition(ctx, TransitionInput{
		OrderID:   order.ID,
		To:        constants.OrderStatusAssignedToSupplier,
		ActorRole: constants.RoleAdmin,
		ActorID:   input.ActorID,
		Note:      fmt.Sprintf("assigned to supplier %d", supplier.ID),
	})
}

// GetByID 获取订单
func (s *OrderService) GetByID(id uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetByTrackingNo 公开追踪查询
// 订单设置了口令时必须匹配，未设置口令视为公开可查
func (s *OrderService) GetByTrackingNo(orderNo, trackingCode string) (*models.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(strings.TrimSpace(orderNo))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !order.CheckTrackingCode(trackingCode) {
		return nil, ErrTrackingCodeDenied
	}
	return order, nil
}

// List 查询订单列表
func (s *OrderService) List(filter repository.OrderListFilter) ([]models.Order, int64, error) {
	orders, total, err := s.orderRepo.List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return orders, total, nil
}

// generateOrderNo 生成订单编号
func generateOrderNo() string {
	return fmt.Sprintf("SB%s%s", time.Now().Format("20060102150405"), shortUUID())
}

// generateSupplierOrderNo 生成供应商侧订单编号
func generateSupplierOrderNo() string {
	return fmt.Sprintf("SBS%s%s", time.Now().Format("20060102150405"), shortUUID())
}

func shortUUID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
