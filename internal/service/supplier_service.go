package service

import (
	"fmt"
	"strings"

	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/repository"
)

// SupplierService 供应商服务
type SupplierService struct {
	supplierRepo      repository.SupplierRepository
	supplierOrderRepo repository.SupplierOrderRepository
}

// NewSupplierService 创建供应商服务
func NewSupplierService(supplierRepo repository.SupplierRepository, supplierOrderRepo repository.SupplierOrderRepository) *SupplierService {
	return &SupplierService{
		supplierRepo:      supplierRepo,
		supplierOrderRepo: supplierOrderRepo,
	}
}

// CreateSupplierInput 创建供应商输入
type CreateSupplierInput struct {
	Name          string
	ContactPerson string
	ContactEmail  string
	Region        string
	Capabilities  models.JSON
	Verified      bool
}

// Create 创建供应商
func (s *SupplierService) Create(input CreateSupplierInput) (*models.Supplier, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: supplier name required", ErrInvalidOrderInput)
	}
	supplier := &models.Supplier{
		Name:          name,
		ContactPerson: strings.TrimSpace(input.ContactPerson),
		ContactEmail:  strings.TrimSpace(input.ContactEmail),
		Region:        strings.TrimSpace(input.Region),
		Capabilities:  input.Capabilities,
		Verified:      input.Verified,
	}
	if err := s.supplierRepo.Create(supplier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logger.Infow("supplier_created", "supplier_id", supplier.ID, "name", supplier.Name, "verified", supplier.Verified)
	return supplier, nil
}

// GetByID 获取供应商
func (s *SupplierService) GetByID(id uint) (*models.Supplier, error) {
	supplier, err := s.supplierRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if supplier == nil {
		return nil, ErrSupplierNotFound
	}
	return supplier, nil
}

// ListVerified 列出已验厂供应商
func (s *SupplierService) ListVerified() ([]models.Supplier, error) {
	suppliers, err := s.supplierRepo.ListVerified()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return suppliers, nil
}

// ListOrders 列出供应商的执行订单
func (s *SupplierService) ListOrders(supplierID uint) ([]models.SupplierOrder, error) {
	supplierOrders, err := s.supplierOrderRepo.ListBySupplier(supplierID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return supplierOrders, nil
}
