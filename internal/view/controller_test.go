package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sourcebridge/internal/models"
)

var errStoreDown = errors.New("store unavailable")

type fakeStore struct {
	mu     sync.Mutex
	stages map[uint][]models.ProductionStage
	loads  int
	block  chan struct{} // 非 nil 时 load 阻塞直到通道关闭
}

func newFakeStore() *fakeStore {
	return &fakeStore{stages: make(map[uint][]models.ProductionStage)}
}

func (s *fakeStore) loader(ctx context.Context, scopeID uint) ([]models.ProductionStage, error) {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	stages := make([]models.ProductionStage, len(s.stages[scopeID]))
	copy(stages, s.stages[scopeID])
	return stages, nil
}

func (s *fakeStore) seed(scopeID uint, stages ...models.ProductionStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[scopeID] = stages
}

func findStage(t *testing.T, stages []models.ProductionStage, id uint) models.ProductionStage {
	t.Helper()
	for _, stage := range stages {
		if stage.ID == id {
			return stage
		}
	}
	t.Fatalf("stage %d not in view", id)
	return models.ProductionStage{}
}

func TestMutateRollsBackOnFailure(t *testing.T) {
	store := newFakeStore()
	store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Cutting", Status: "in_progress", Percentage: 25})
	ctrl := NewController(store.loader)

	before, err := ctrl.Stages(context.Background(), 1)
	if err != nil {
		t.Fatalf("load view failed: %v", err)
	}
	if findStage(t, before, 10).Percentage != 25 {
		t.Fatalf("unexpected seed state")
	}

	err = ctrl.Mutate(context.Background(), 1, 10,
		func(stage *models.ProductionStage) { stage.Percentage = 60 },
		func(ctx context.Context) error { return errStoreDown },
	)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("mutation failure must surface to caller, got %v", err)
	}

	after, err := ctrl.Stages(context.Background(), 1)
	if err != nil {
		t.Fatalf("reload view failed: %v", err)
	}
	if got := findStage(t, after, 10).Percentage; got != 25 {
		t.Fatalf("rollback must restore pre-mutation value 25, got %d", got)
	}
}

func TestMutateOptimisticValueVisibleBeforeCommit(t *testing.T) {
	store := newFakeStore()
	store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Sewing", Status: "in_progress", Percentage: 25})
	ctrl := NewController(store.loader)
	if _, err := ctrl.Stages(context.Background(), 1); err != nil {
		t.Fatalf("load view failed: %v", err)
	}

	var observed int
	err := ctrl.Mutate(context.Background(), 1, 10,
		func(stage *models.ProductionStage) { stage.Percentage = 60 },
		func(ctx context.Context) error {
			// 提交期间本地视图已持有乐观值
			stages, err := ctrl.Stages(ctx, 1)
			if err != nil {
				return err
			}
			observed = findStage(t, stages, 10).Percentage
			return nil
		},
	)
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	if observed != 60 {
		t.Fatalf("optimistic value must be visible before commit resolves, got %d", observed)
	}
}

func TestMutateInvalidatesViewOnSuccess(t *testing.T) {
	store := newFakeStore()
	store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "QC", Status: "in_progress", Percentage: 90})
	ctrl := NewController(store.loader)
	if _, err := ctrl.Stages(context.Background(), 1); err != nil {
		t.Fatalf("load view failed: %v", err)
	}

	err := ctrl.Mutate(context.Background(), 1, 10,
		func(stage *models.ProductionStage) { stage.Percentage = 100 },
		func(ctx context.Context) error {
			// 服务端派生字段：自动完成
			store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "QC", Status: "completed", Percentage: 100})
			return nil
		},
	)
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	after, err := ctrl.Stages(context.Background(), 1)
	if err != nil {
		t.Fatalf("reload view failed: %v", err)
	}
	got := findStage(t, after, 10)
	if got.Status != "completed" {
		t.Fatalf("successful mutation must refetch server truth, got status %s", got.Status)
	}
}

func TestMutateCancelsInflightRefresh(t *testing.T) {
	store := newFakeStore()
	store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Dyeing", Status: "in_progress", Percentage: 25})
	ctrl := NewController(store.loader)
	if _, err := ctrl.Stages(context.Background(), 1); err != nil {
		t.Fatalf("load view failed: %v", err)
	}

	// 卡住一次后台刷新，它拿到的将是陈旧值
	block := make(chan struct{})
	store.mu.Lock()
	store.block = block
	store.mu.Unlock()
	ctrl.Refresh(context.Background(), 1)

	err := ctrl.Mutate(context.Background(), 1, 10,
		func(stage *models.ProductionStage) { stage.Percentage = 60 },
		func(ctx context.Context) error {
			store.mu.Lock()
			store.block = nil
			store.mu.Unlock()
			close(block)
			time.Sleep(50 * time.Millisecond) // 给被取消的刷新一个完成的机会
			return errStoreDown               // 失败路径：回滚后视图应是 25，而不是刷新的陈旧覆盖
		},
	)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected errStoreDown, got %v", err)
	}

	after, err := ctrl.Stages(context.Background(), 1)
	if err != nil {
		t.Fatalf("reload view failed: %v", err)
	}
	if got := findStage(t, after, 10).Percentage; got != 25 {
		t.Fatalf("canceled refresh must not overwrite, expected 25, got %d", got)
	}
}

func TestRefreshInstallsFreshData(t *testing.T) {
	store := newFakeStore()
	store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Packing", Status: "in_progress", Percentage: 10})
	ctrl := NewController(store.loader)
	if _, err := ctrl.Stages(context.Background(), 1); err != nil {
		t.Fatalf("load view failed: %v", err)
	}

	store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Packing", Status: "in_progress", Percentage: 70})
	ctrl.Refresh(context.Background(), 1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		stages, err := ctrl.Stages(context.Background(), 1)
		if err != nil {
			t.Fatalf("read view failed: %v", err)
		}
		if findStage(t, stages, 10).Percentage == 70 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("refresh did not install fresh data")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDropReleasesScope(t *testing.T) {
	store := newFakeStore()
	store.seed(1, models.ProductionStage{ID: 10, SupplierOrderID: 1, StageNumber: 1, Name: "Cutting", Status: "in_progress", Percentage: 10})
	ctrl := NewController(store.loader)
	if _, err := ctrl.Stages(context.Background(), 1); err != nil {
		t.Fatalf("load view failed: %v", err)
	}

	ctrl.Drop(1)

	store.mu.Lock()
	loadsBefore := store.loads
	store.mu.Unlock()
	if _, err := ctrl.Stages(context.Background(), 1); err != nil {
		t.Fatalf("reload after drop failed: %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.loads != loadsBefore+1 {
		t.Fatalf("dropped scope must reload from store, loads %d -> %d", loadsBefore, store.loads)
	}
}

func TestMutateUnknownStageStillCommits(t *testing.T) {
	store := newFakeStore()
	ctrl := NewController(store.loader)

	committed := false
	err := ctrl.Mutate(context.Background(), 2, 99,
		func(stage *models.ProductionStage) { stage.Percentage = 50 },
		func(ctx context.Context) error {
			committed = true
			return nil
		},
	)
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	if !committed {
		t.Fatalf("commit must run even when the stage is not in the local view")
	}
}
