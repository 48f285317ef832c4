package accesskit

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// countingOwnership records every Owns call and answers from a fixed table.
type countingOwnership struct {
	calls int
	owns  map[string]bool // "principal|type|id"
	err   error
}

func (c *countingOwnership) Owns(_ context.Context, principalID, resourceType, resourceID string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.owns[principalID+"|"+resourceType+"|"+resourceID], nil
}

func newEvalCtx(principalID string, perms PermissionSet, ownership OwnershipResolver) *EvalContext {
	return &EvalContext{
		PrincipalID: principalID,
		Permissions: perms,
		Components:  map[string]struct{}{"ledger": {}},
		EntityType:  "worker",
		EntityID:    "7",
		Params:      map[string]string{"id": "7"},
		Ownership:   ownership,
		Custom:      map[string]bool{},
	}
}

func TestEmptyAnyOfDenies(t *testing.T) {
	ec := newEvalCtx("u1", NewPermissionSet("workers.view"), nil)
	ok, err := (&AnyOf{}).Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ok {
		t.Fatalf("expected empty anyOf to evaluate false")
	}
}

func TestEmptyAllOfGrants(t *testing.T) {
	ec := newEvalCtx("", NewPermissionSet(), nil)
	ok, err := (&AllOf{}).Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ok {
		t.Fatalf("expected empty allOf to evaluate true")
	}
}

func TestAllOfShortCircuitsBeforeOwnership(t *testing.T) {
	own := &countingOwnership{}
	req := &AllOf{Children: []Requirement{
		&HasPermission{Key: "workers.manage"},
		&OwnsResource{ResourceType: "worker"},
	}}
	ec := newEvalCtx("u1", NewPermissionSet("workers.view"), own)
	ok, err := req.Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ok {
		t.Fatalf("expected deny")
	}
	if own.calls != 0 {
		t.Fatalf("ownership resolver invoked %d times after an earlier false sibling", own.calls)
	}
	if !strings.Contains(ec.FirstFailure(), "workers.manage") {
		t.Fatalf("expected reason to reference workers.manage, got %q", ec.FirstFailure())
	}
}

func TestAnyOfShortCircuitsAfterMatch(t *testing.T) {
	own := &countingOwnership{}
	req := &AnyOf{Children: []Requirement{
		&HasPermission{Key: "workers.manage"},
		&OwnsResource{ResourceType: "worker"},
	}}
	ec := newEvalCtx("u1", NewPermissionSet("workers.manage"), own)
	ok, err := req.Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ok {
		t.Fatalf("expected grant via first branch")
	}
	if own.calls != 0 {
		t.Fatalf("ownership resolver invoked %d times after an earlier true sibling", own.calls)
	}
}

func TestAnyOfMonotonicUnderAppendedChildren(t *testing.T) {
	base := &AnyOf{Children: []Requirement{&HasPermission{Key: "workers.view"}}}
	ec := newEvalCtx("u1", NewPermissionSet("workers.view"), nil)
	ok, _ := base.Evaluate(context.Background(), ec)
	if !ok {
		t.Fatalf("expected base anyOf to grant")
	}
	extended := &AnyOf{Children: append(base.Children, &HasPermission{Key: "never.granted"}, &CustomCheck{ID: "x"})}
	ok, _ = extended.Evaluate(context.Background(), newEvalCtx("u1", NewPermissionSet("workers.view"), nil))
	if !ok {
		t.Fatalf("appending children turned a true anyOf false")
	}
}

func TestAllOfAntiMonotonicUnderFalseChildren(t *testing.T) {
	base := &AllOf{Children: []Requirement{&HasPermission{Key: "workers.view"}}}
	ok, _ := base.Evaluate(context.Background(), newEvalCtx("u1", NewPermissionSet("workers.view"), nil))
	if !ok {
		t.Fatalf("expected base allOf to grant")
	}
	extended := &AllOf{Children: append(base.Children, &HasPermission{Key: "never.granted"})}
	ok, _ = extended.Evaluate(context.Background(), newEvalCtx("u1", NewPermissionSet("workers.view"), nil))
	if ok {
		t.Fatalf("expected allOf with a false child to deny")
	}
}

func TestOwnershipDeniesDespiteAuthentication(t *testing.T) {
	own := &countingOwnership{owns: map[string]bool{}}
	req := &OwnsResource{ResourceType: "employer", IDParam: "id"}
	ec := newEvalCtx("u1", NewPermissionSet(), own)
	ec.EntityType = "employer"
	ec.EntityID = "42"
	ec.Params = map[string]string{"id": "42"}
	ok, err := req.Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ok {
		t.Fatalf("expected deny for non-owner")
	}
	if own.calls != 1 {
		t.Fatalf("expected exactly one ownership lookup, got %d", own.calls)
	}
	if !strings.Contains(ec.FirstFailure(), "42") {
		t.Fatalf("expected reason to name the resource, got %q", ec.FirstFailure())
	}
}

func TestOwnershipErrorIsResolutionFailure(t *testing.T) {
	own := &countingOwnership{err: errors.New("storage down")}
	req := &OwnsResource{ResourceType: "worker"}
	_, err := req.Evaluate(context.Background(), newEvalCtx("u1", NewPermissionSet(), own))
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("expected ErrResolution, got %v", err)
	}
}

func TestOwnershipUnknownParamIsConfigurationError(t *testing.T) {
	req := &OwnsResource{ResourceType: "worker", IDParam: "employerId"}
	_, err := req.Evaluate(context.Background(), newEvalCtx("u1", NewPermissionSet(), &countingOwnership{}))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCustomCheckDefaultsFalseWithReason(t *testing.T) {
	req := &CustomCheck{ID: "payout-window", Reason: "payout window check not implemented"}
	ec := newEvalCtx("u1", NewPermissionSet("admin"), nil)
	ok, err := req.Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ok {
		t.Fatalf("expected custom check without a result to deny")
	}
	if ec.FirstFailure() != "payout window check not implemented" {
		t.Fatalf("unexpected reason %q", ec.FirstFailure())
	}
}

func TestCustomCheckUsesSuppliedResult(t *testing.T) {
	req := &CustomCheck{ID: "payout-window"}
	ec := newEvalCtx("u1", NewPermissionSet(), nil)
	ec.Custom["payout-window"] = true
	ok, err := req.Evaluate(context.Background(), ec)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ok {
		t.Fatalf("expected supplied true result to grant")
	}
}

func TestAuthenticatedAndComponentConditions(t *testing.T) {
	ctx := context.Background()
	ec := newEvalCtx("", NewPermissionSet(), nil)
	if ok, _ := (&Authenticated{}).Evaluate(ctx, ec); ok {
		t.Fatalf("expected unauthenticated context to deny")
	}
	ec = newEvalCtx("u1", NewPermissionSet(), nil)
	if ok, _ := (&Authenticated{}).Evaluate(ctx, ec); !ok {
		t.Fatalf("expected authenticated context to grant")
	}
	if ok, _ := (&ComponentEnabled{ID: "ledger"}).Evaluate(ctx, ec); !ok {
		t.Fatalf("expected enabled component to grant")
	}
	if ok, _ := (&ComponentEnabled{ID: "communications"}).Evaluate(ctx, ec); ok {
		t.Fatalf("expected disabled component to deny")
	}
	if !strings.Contains(ec.FirstFailure(), "communications") {
		t.Fatalf("expected reason to name the component, got %q", ec.FirstFailure())
	}
}

func TestAnyAllPermissionShortCircuit(t *testing.T) {
	ctx := context.Background()
	perms := NewPermissionSet("workers.view", "ledger.view")
	ec := newEvalCtx("u1", perms, nil)
	if ok, _ := (&AnyPermission{Keys: []string{"workers.view", "workers.manage"}}).Evaluate(ctx, ec); !ok {
		t.Fatalf("expected anyPermission to grant on first key")
	}
	ec = newEvalCtx("u1", perms, nil)
	if ok, _ := (&AllPermissions{Keys: []string{"workers.view", "workers.manage"}}).Evaluate(ctx, ec); ok {
		t.Fatalf("expected allPermissions to deny on missing key")
	}
	if !strings.Contains(ec.FirstFailure(), "workers.manage") {
		t.Fatalf("expected reason to name the first missing key, got %q", ec.FirstFailure())
	}
}
