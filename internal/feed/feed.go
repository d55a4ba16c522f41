package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sourcebridge/internal/models"
)

var (
	// ErrSubscriptionLost 变更订阅断开
	ErrSubscriptionLost = errors.New("feed subscription lost")
	// ErrFeedClosed 订阅源已关闭
	ErrFeedClosed = errors.New("feed closed")
)

// Event 行级变更事件
// 同一作用域内按发布顺序投递，不同作用域之间不保证相对顺序
type Event struct {
	Table      string          `json:"table"`
	Type       string          `json:"type"` // insert / update / delete
	ScopeID    uint            `json:"scope_id"`
	OldRow     json.RawMessage `json:"old_row,omitempty"`
	NewRow     json.RawMessage `json:"new_row,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Subscription 单个作用域的变更订阅句柄
type Subscription interface {
	// Events 按投递顺序输出事件；订阅关闭后通道关闭
	Events() <-chan Event
	// Close 释放订阅
	Close() error
}

// Feed 变更订阅契约
type Feed interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, table string, scopeID uint) (Subscription, error)
	Close() error
}

// NewStageEvent 从阶段行构造变更事件
func NewStageEvent(eventType string, oldRow, newRow *models.ProductionStage) (Event, error) {
	event := Event{
		Table:      "production_stages",
		Type:       eventType,
		OccurredAt: time.Now(),
	}
	if newRow != nil {
		event.ScopeID = newRow.SupplierOrderID
	} else if oldRow != nil {
		event.ScopeID = oldRow.SupplierOrderID
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, err
		}
		event.OldRow = raw
	}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, err
		}
		event.NewRow = raw
	}
	return event, nil
}

// NewOrderEvent 从订单行构造变更事件
func NewOrderEvent(eventType string, order *models.Order) (Event, error) {
	event := Event{
		Table:      "orders",
		Type:       eventType,
		OccurredAt: time.Now(),
	}
	if order != nil {
		event.ScopeID = order.ID
		raw, err := json.Marshal(order)
		if err != nil {
			return Event{}, err
		}
		event.NewRow = raw
	}
	return event, nil
}

// DecodeNewStage 解析事件中的新阶段行
func (e Event) DecodeNewStage() (*models.ProductionStage, error) {
	if len(e.NewRow) == 0 {
		return nil, nil
	}
	var stage models.ProductionStage
	if err := json.Unmarshal(e.NewRow, &stage); err != nil {
		return nil, err
	}
	return &stage, nil
}

// DecodeOldStage 解析事件中的旧阶段行
func (e Event) DecodeOldStage() (*models.ProductionStage, error) {
	if len(e.OldRow) == 0 {
		return nil, nil
	}
	var stage models.ProductionStage
	if err := json.Unmarshal(e.OldRow, &stage); err != nil {
		return nil, err
	}
	return &stage, nil
}
