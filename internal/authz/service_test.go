package authz

import (
	"testing"

	"github.com/sourcebridge/internal/constants"
)

func TestCanTransition(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	cases := []struct {
		role string
		from string
		to   string
		want bool
	}{
		{constants.RoleAdmin, constants.OrderStatusQuoteRequested, constants.OrderStatusQuoteProvided, true},
		{constants.RoleAdmin, constants.OrderStatusQuoteAccepted, constants.OrderStatusAssignedToSupplier, true},
		{constants.RoleAdmin, constants.OrderStatusInProduction, constants.OrderStatusQualityCheck, false},
		{constants.RoleSupplier, constants.OrderStatusInProduction, constants.OrderStatusQualityCheck, true},
		{constants.RoleSupplier, constants.OrderStatusQuoteAccepted, constants.OrderStatusAssignedToSupplier, false},
		{constants.RoleBuyer, constants.OrderStatusQuoteProvided, constants.OrderStatusQuoteAccepted, true},
		{constants.RoleBuyer, constants.OrderStatusDelivered, constants.OrderStatusCompleted, true},
		{constants.RoleBuyer, constants.OrderStatusShipped, constants.OrderStatusDelivered, false},
		{constants.RoleSystem, constants.OrderStatusInProduction, constants.OrderStatusQualityCheck, true},
		{constants.RoleSystem, constants.OrderStatusQualityCheck, constants.OrderStatusShipped, false},
		{"unknown", constants.OrderStatusQuoteRequested, constants.OrderStatusQuoteProvided, false},
	}
	for _, c := range cases {
		got, err := svc.CanTransition(c.role, c.from, c.to)
		if err != nil {
			t.Fatalf("CanTransition(%s, %s->%s): %v", c.role, c.from, c.to, err)
		}
		if got != c.want {
			t.Fatalf("CanTransition(%s, %s->%s) = %v, want %v", c.role, c.from, c.to, got, c.want)
		}
	}
}

func TestCanTransitionNormalizesRole(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ok, err := svc.CanTransition(" Admin ", constants.OrderStatusQuoteRequested, constants.OrderStatusQuoteProvided)
	if err != nil {
		t.Fatalf("CanTransition: %v", err)
	}
	if !ok {
		t.Fatalf("expected normalized role to be allowed")
	}
}

func TestKnownRole(t *testing.T) {
	if !KnownRole("admin") || !KnownRole("Supplier") {
		t.Fatalf("expected known roles")
	}
	if KnownRole("root") {
		t.Fatalf("expected unknown role")
	}
}
