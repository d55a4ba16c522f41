package authz

import (
	"fmt"
	"strings"

	"github.com/sourcebridge/internal/constants"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
)

const transitionModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// transitionPolicies 角色 -> 允许执行的状态边
// 策略是固定矩阵，随代码发布，不落库
var transitionPolicies = map[string][][2]string{
	constants.RoleAdmin: {
		{constants.OrderStatusQuoteRequested, constants.OrderStatusQuoteProvided},
		{constants.OrderStatusQuoteProvided, constants.OrderStatusQuoteAccepted},
		{constants.OrderStatusQuoteAccepted, constants.OrderStatusAssignedToSupplier},
		{constants.OrderStatusAssignedToSupplier, constants.OrderStatusInProduction},
		{constants.OrderStatusQualityCheck, constants.OrderStatusShipped},
		{constants.OrderStatusShipped, constants.OrderStatusDelivered},
		{constants.OrderStatusDelivered, constants.OrderStatusCompleted},
	},
	constants.RoleSupplier: {
		{constants.OrderStatusAssignedToSupplier, constants.OrderStatusInProduction},
		{constants.OrderStatusInProduction, constants.OrderStatusQualityCheck},
		{constants.OrderStatusQualityCheck, constants.OrderStatusShipped},
	},
	constants.RoleBuyer: {
		{constants.OrderStatusQuoteProvided, constants.OrderStatusQuoteAccepted},
		{constants.OrderStatusDelivered, constants.OrderStatusCompleted},
	},
	constants.RoleSystem: {
		{constants.OrderStatusInProduction, constants.OrderStatusQualityCheck},
	},
}

// Service 工作流转移授权服务
// 判定某个角色是否允许执行一条状态边；管理员强制改状态不经过这里
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务
func NewService() (*Service, error) {
	m, err := model.NewModelFromString(transitionModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}

	for role, edges := range transitionPolicies {
		for _, edge := range edges {
			if _, err := enforcer.AddPolicy(role, edge[0], edge[1]); err != nil {
				return nil, fmt.Errorf("add authz policy failed: %w", err)
			}
		}
	}
	return &Service{enforcer: enforcer}, nil
}

// CanTransition 判定角色是否允许执行 from -> to 的状态边
func (s *Service) CanTransition(role, from, to string) (bool, error) {
	if s == nil || s.enforcer == nil {
		return false, fmt.Errorf("authz service unavailable")
	}
	return s.enforcer.Enforce(
		strings.ToLower(strings.TrimSpace(role)),
		strings.TrimSpace(from),
		strings.TrimSpace(to),
	)
}

// KnownRole 判断角色是否已知
func KnownRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case constants.RoleAdmin, constants.RoleSupplier, constants.RoleBuyer, constants.RoleSystem:
		return true
	}
	return false
}
