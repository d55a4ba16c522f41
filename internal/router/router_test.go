package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sourcebridge/internal/config"
	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/provider"
	"github.com/sourcebridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const routerTestSecret = "router-test-secret"

func setupRouterTest(t *testing.T) (*gin.Engine, *provider.Container) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	cfg := &config.Config{}
	cfg.Server.Mode = "debug"
	cfg.JWT.SecretKey = routerTestSecret
	cfg.Redis.Enabled = false
	cfg.Queue.Enabled = false
	cfg.Tracking.StageCacheTTLSeconds = 60

	container, err := provider.NewContainer(cfg)
	if err != nil {
		t.Fatalf("new container failed: %v", err)
	}
	t.Cleanup(container.Close)

	return SetupRouter(cfg, container), container
}

func issueTestToken(t *testing.T, actorID uint, role string) string {
	t.Helper()
	token, err := service.IssueToken(routerTestSecret, actorID, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	return token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response %s %s failed: %v (body %s)", method, path, err, w.Body.String())
	}
	return w, resp
}

func statusCodeOf(resp map[string]interface{}) int {
	code, _ := resp["status_code"].(float64)
	return int(code)
}

func TestPublicTrackingEndpoint(t *testing.T) {
	r, container := setupRouterTest(t)

	order, err := container.OrderService.CreateOrder(service.CreateOrderInput{
		BuyerID:      1001,
		ProductType:  "speaker",
		Quantity:     100,
		TrackingCode: "secret-code",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	_, resp := doJSON(t, r, http.MethodGet, "/api/v1/public/orders/"+order.OrderNo+"?code=secret-code", "", "")
	if statusCodeOf(resp) != 0 {
		t.Fatalf("tracking with right code should succeed, got %v", resp)
	}
	data, _ := resp["data"].(map[string]interface{})
	if data["status"] != constants.OrderStatusQuoteRequested {
		t.Fatalf("status want quote_requested got %v", data["status"])
	}
	if _, exposed := data["buyer_price"]; exposed {
		t.Fatalf("public view must not expose prices")
	}

	_, resp = doJSON(t, r, http.MethodGet, "/api/v1/public/orders/"+order.OrderNo+"?code=wrong", "", "")
	if statusCodeOf(resp) != 404 {
		t.Fatalf("wrong code should look like missing order, got %v", resp)
	}
}

func TestBuyerOrderLifecycleOverHTTP(t *testing.T) {
	r, _ := setupRouterTest(t)
	buyerToken := issueTestToken(t, 1001, constants.RoleBuyer)
	adminToken := issueTestToken(t, 1, constants.RoleAdmin)

	_, resp := doJSON(t, r, http.MethodPost, "/api/v1/buyer/orders", buyerToken,
		`{"product_type":"speaker","quantity":500}`)
	if statusCodeOf(resp) != 0 {
		t.Fatalf("create order failed: %v", resp)
	}
	data, _ := resp["data"].(map[string]interface{})
	orderID := int(data["id"].(float64))

	// 管理员报价后买家才能接受
	path := fmt.Sprintf("/api/v1/admin/orders/%d/quote", orderID)
	_, resp = doJSON(t, r, http.MethodPut, path, adminToken,
		`{"buyer_price":"1200.00","supplier_price":"900.00"}`)
	if statusCodeOf(resp) != 0 {
		t.Fatalf("quote failed: %v", resp)
	}

	path = fmt.Sprintf("/api/v1/admin/orders/%d/transition", orderID)
	_, resp = doJSON(t, r, http.MethodPost, path, adminToken, `{"to":"quote_provided"}`)
	if statusCodeOf(resp) != 0 {
		t.Fatalf("transition to quote_provided failed: %v", resp)
	}

	path = fmt.Sprintf("/api/v1/buyer/orders/%d/accept-quote", orderID)
	_, resp = doJSON(t, r, http.MethodPost, path, buyerToken, "")
	if statusCodeOf(resp) != 0 {
		t.Fatalf("accept quote failed: %v", resp)
	}
	data, _ = resp["data"].(map[string]interface{})
	if data["status"] != constants.OrderStatusQuoteAccepted {
		t.Fatalf("status want quote_accepted got %v", data["status"])
	}

	// 买家不能访问管理接口
	w, resp := doJSON(t, r, http.MethodGet, "/api/v1/admin/orders", buyerToken, "")
	if w.Code != http.StatusOK || statusCodeOf(resp) != 403 {
		t.Fatalf("buyer on admin route want 403 envelope, got %v", resp)
	}
}

func TestBuyerCannotReadForeignOrder(t *testing.T) {
	r, container := setupRouterTest(t)

	order, err := container.OrderService.CreateOrder(service.CreateOrderInput{
		BuyerID:     1001,
		ProductType: "speaker",
		Quantity:    10,
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	otherToken := issueTestToken(t, 2002, constants.RoleBuyer)
	path := fmt.Sprintf("/api/v1/buyer/orders/%d", order.ID)
	_, resp := doJSON(t, r, http.MethodGet, path, otherToken, "")
	if statusCodeOf(resp) != 404 {
		t.Fatalf("foreign order should look missing, got %v", resp)
	}
}
