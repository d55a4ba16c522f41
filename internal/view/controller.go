package view

import (
	"context"
	"sync"

	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/models"
)

// Loader 拉取某个供应商订单作用域的权威阶段列表
type Loader func(ctx context.Context, scopeID uint) ([]models.ProductionStage, error)

// Controller 乐观更新控制器
// 每个作用域持有一份本地视图：变更先落在本地立即可见，
// 写库成功后失效视图等待下次读取回源，失败则整体回滚并向调用方报错
type Controller struct {
	loader Loader

	mu     sync.Mutex
	scopes map[uint]*scopeView
}

// scopeView 单个作用域的本地视图
// writeMu 保证同一作用域同时只有一条写路径（乐观应用 -> 确认或回滚）
type scopeView struct {
	mu            sync.Mutex
	writeMu       sync.Mutex
	loaded        bool
	stages        []models.ProductionStage
	refreshCancel context.CancelFunc
	refreshSeq    uint64
}

// NewController 创建控制器
func NewController(loader Loader) *Controller {
	return &Controller{
		loader: loader,
		scopes: make(map[uint]*scopeView),
	}
}

func (c *Controller) scope(scopeID uint) *scopeView {
	c.mu.Lock()
	defer c.mu.Unlock()
	sv, ok := c.scopes[scopeID]
	if !ok {
		sv = &scopeView{}
		c.scopes[scopeID] = sv
	}
	return sv
}

// Stages 返回作用域的本地视图，未加载或已失效时回源拉取
func (c *Controller) Stages(ctx context.Context, scopeID uint) ([]models.ProductionStage, error) {
	sv := c.scope(scopeID)
	sv.mu.Lock()
	if sv.loaded {
		stages := cloneStages(sv.stages)
		sv.mu.Unlock()
		return stages, nil
	}
	sv.mu.Unlock()

	stages, err := c.loader(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	sv.mu.Lock()
	defer sv.mu.Unlock()
	// 回源期间视图可能已被乐观写入占据，不覆盖
	if !sv.loaded {
		sv.stages = cloneStages(stages)
		sv.loaded = true
	}
	return cloneStages(sv.stages), nil
}

// Mutate 乐观更新一个阶段
// 协议：取消在途刷新 -> 快照 -> 本地先行应用 -> 提交写库；
// 成功则失效视图等待回源（吸收服务端派生字段，例如自动完成），
// 失败则恢复全部快照并把错误交给调用方，不自动重试
func (c *Controller) Mutate(ctx context.Context, scopeID, stageID uint, apply func(*models.ProductionStage), commit func(context.Context) error) error {
	sv := c.scope(scopeID)
	sv.writeMu.Lock()
	defer sv.writeMu.Unlock()

	sv.mu.Lock()
	if sv.refreshCancel != nil {
		// 在途刷新的陈旧数据不允许覆盖乐观值
		sv.refreshCancel()
		sv.refreshCancel = nil
	}
	snapshot := cloneStages(sv.stages)
	snapshotLoaded := sv.loaded
	for i := range sv.stages {
		if sv.stages[i].ID == stageID {
			apply(&sv.stages[i])
			break
		}
	}
	sv.mu.Unlock()

	err := commit(ctx)

	sv.mu.Lock()
	defer sv.mu.Unlock()
	if err != nil {
		// 完整回滚：失败的乐观值不允许残留
		sv.stages = snapshot
		sv.loaded = snapshotLoaded
		return err
	}
	sv.stages = nil
	sv.loaded = false
	return nil
}

// Invalidate 失效作用域视图，下次读取回源
func (c *Controller) Invalidate(scopeID uint) {
	sv := c.scope(scopeID)
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.stages = nil
	sv.loaded = false
}

// Refresh 启动一次后台刷新
// 同作用域的新变更会取消它；被取消的刷新结果直接丢弃
func (c *Controller) Refresh(ctx context.Context, scopeID uint) {
	sv := c.scope(scopeID)
	refreshCtx, cancel := context.WithCancel(ctx)

	sv.mu.Lock()
	if sv.refreshCancel != nil {
		sv.refreshCancel()
	}
	sv.refreshCancel = cancel
	sv.refreshSeq++
	seq := sv.refreshSeq
	sv.mu.Unlock()

	go func() {
		stages, err := c.loader(refreshCtx, scopeID)

		sv.mu.Lock()
		defer sv.mu.Unlock()
		canceled := refreshCtx.Err() != nil
		if sv.refreshSeq == seq && sv.refreshCancel != nil {
			sv.refreshCancel = nil
		}
		cancel()
		if canceled {
			return
		}
		if err != nil {
			logger.Warnw("view_refresh_failed", "scope_id", scopeID, "error", err)
			return
		}
		sv.stages = cloneStages(stages)
		sv.loaded = true
	}()
}

// Drop 丢弃作用域视图并取消其在途刷新
func (c *Controller) Drop(scopeID uint) {
	c.mu.Lock()
	sv, ok := c.scopes[scopeID]
	if ok {
		delete(c.scopes, scopeID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.refreshCancel != nil {
		sv.refreshCancel()
		sv.refreshCancel = nil
	}
}

func cloneStages(stages []models.ProductionStage) []models.ProductionStage {
	if stages == nil {
		return nil
	}
	cloned := make([]models.ProductionStage, len(stages))
	copy(cloned, stages)
	return cloned
}
