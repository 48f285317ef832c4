package accesskit

import (
	"context"
	"fmt"
	"strings"
)

// OwnershipResolver answers whether a principal owns a resource. It is the
// only collaborator allowed to perform I/O during requirement evaluation, so
// composites must short-circuit before reaching it whenever the outcome is
// already determined.
type OwnershipResolver interface {
	Owns(ctx context.Context, principalID, resourceType, resourceID string) (bool, error)
}

// OwnershipResolverFunc adapts a function to OwnershipResolver.
type OwnershipResolverFunc func(ctx context.Context, principalID, resourceType, resourceID string) (bool, error)

func (f OwnershipResolverFunc) Owns(ctx context.Context, principalID, resourceType, resourceID string) (bool, error) {
	return f(ctx, principalID, resourceType, resourceID)
}

// EvalContext carries the snapshot a requirement tree is evaluated against:
// the principal, its effective permissions, the target entity, the enabled
// component set, and the ownership callback. The snapshot is taken once per
// batch, so a role edit mid-evaluation cannot yield a half-old decision.
type EvalContext struct {
	PrincipalID string
	Permissions PermissionSet
	Components  map[string]struct{}
	EntityType  string
	EntityID    string
	// Params supplies values for named ownership id parameters; the target
	// entity id is used when a condition names no parameter.
	Params    map[string]string
	Ownership OwnershipResolver
	// Custom supplies externally computed results for custom checks by id.
	Custom map[string]bool

	firstFailure string
}

// FirstFailure reports the first failing atomic condition encountered during
// evaluation. It is the denial reason when the tree evaluates false.
func (ec *EvalContext) FirstFailure() string { return ec.firstFailure }

func (ec *EvalContext) fail(reason string) {
	if ec.firstFailure == "" {
		ec.firstFailure = reason
	}
}

func (ec *EvalContext) componentEnabled(id string) bool {
	_, ok := ec.Components[id]
	return ok
}

// Requirement is a boolean expression over atomic conditions, possibly
// composite. Trees are finite and acyclic by construction: there is no
// variant that references a policy, so recursive policy composition is
// unrepresentable.
type Requirement interface {
	// Evaluate walks the tree depth-first, left-to-right, short-circuiting.
	// A returned error aborts the batch (fail-closed); a plain false is a
	// legitimate denial, with the reason available via ec.FirstFailure.
	Evaluate(ctx context.Context, ec *EvalContext) (bool, error)
	String() string
}

// Authenticated is satisfied when the context carries a principal id.
type Authenticated struct{}

func (r *Authenticated) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	if ec.PrincipalID == "" {
		ec.fail("not authenticated")
		return false, nil
	}
	return true, nil
}

func (r *Authenticated) String() string { return "authenticated" }

// HasPermission is satisfied when the principal holds the permission key.
type HasPermission struct {
	Key string
}

func (r *HasPermission) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	if !ec.Permissions.Has(r.Key) {
		ec.fail(fmt.Sprintf("missing permission %q", r.Key))
		return false, nil
	}
	return true, nil
}

func (r *HasPermission) String() string { return "permission(" + r.Key + ")" }

// AnyPermission is satisfied by the first held key, left to right.
type AnyPermission struct {
	Keys []string
}

func (r *AnyPermission) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	for _, k := range r.Keys {
		if ec.Permissions.Has(k) {
			return true, nil
		}
	}
	ec.fail(fmt.Sprintf("missing all of permissions %s", strings.Join(r.Keys, ", ")))
	return false, nil
}

func (r *AnyPermission) String() string {
	return "anyPermission(" + strings.Join(r.Keys, ", ") + ")"
}

// AllPermissions fails on the first missing key, left to right.
type AllPermissions struct {
	Keys []string
}

func (r *AllPermissions) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	for _, k := range r.Keys {
		if !ec.Permissions.Has(k) {
			ec.fail(fmt.Sprintf("missing permission %q", k))
			return false, nil
		}
	}
	return true, nil
}

func (r *AllPermissions) String() string {
	return "allPermissions(" + strings.Join(r.Keys, ", ") + ")"
}

// ComponentEnabled is satisfied when the feature component is enabled.
type ComponentEnabled struct {
	ID string
}

func (r *ComponentEnabled) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	if !ec.componentEnabled(r.ID) {
		ec.fail(fmt.Sprintf("component %q disabled", r.ID))
		return false, nil
	}
	return true, nil
}

func (r *ComponentEnabled) String() string { return "component(" + r.ID + ")" }

// OwnsResource asks the ownership resolver whether the principal owns the
// target resource. IDParam names an entry in ec.Params; when empty the target
// entity id is used.
type OwnsResource struct {
	ResourceType string
	IDParam      string
}

func (r *OwnsResource) Evaluate(ctx context.Context, ec *EvalContext) (bool, error) {
	if ec.Ownership == nil {
		return false, configErrorf("ownership condition %s evaluated without a resolver", r.String())
	}
	resourceID := ec.EntityID
	if r.IDParam != "" {
		v, ok := ec.Params[r.IDParam]
		if !ok {
			return false, configErrorf("ownership condition %s references unknown parameter %q", r.String(), r.IDParam)
		}
		resourceID = v
	}
	owns, err := ec.Ownership.Owns(ctx, ec.PrincipalID, r.ResourceType, resourceID)
	if err != nil {
		return false, &ResolutionFailure{Op: "ownership", Cause: err}
	}
	if !owns {
		ec.fail(fmt.Sprintf("principal does not own %s %q", r.ResourceType, resourceID))
		return false, nil
	}
	return true, nil
}

func (r *OwnsResource) String() string {
	if r.IDParam != "" {
		return "ownership(" + r.ResourceType + ", " + r.IDParam + ")"
	}
	return "ownership(" + r.ResourceType + ")"
}

// CustomCheck is an escape hatch whose truth is supplied externally through
// ec.Custom. With no supplied result it evaluates false and records Reason.
type CustomCheck struct {
	ID     string
	Reason string
}

func (r *CustomCheck) Evaluate(_ context.Context, ec *EvalContext) (bool, error) {
	if v, ok := ec.Custom[r.ID]; ok {
		if !v {
			ec.fail(fmt.Sprintf("custom check %q not satisfied", r.ID))
		}
		return v, nil
	}
	reason := r.Reason
	if reason == "" {
		reason = fmt.Sprintf("custom check %q has no result", r.ID)
	}
	ec.fail(reason)
	return false, nil
}

func (r *CustomCheck) String() string { return "custom(" + r.ID + ")" }

// AnyOf evaluates children in order and is satisfied by the first true child.
// An empty AnyOf evaluates false (vacuous OR).
type AnyOf struct {
	Children []Requirement
}

func (r *AnyOf) Evaluate(ctx context.Context, ec *EvalContext) (bool, error) {
	for _, child := range r.Children {
		if child == nil {
			return false, configErrorf("anyOf contains a nil requirement")
		}
		ok, err := child.Evaluate(ctx, ec)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	if len(r.Children) == 0 {
		ec.fail("empty anyOf")
	}
	return false, nil
}

func (r *AnyOf) String() string { return compositeString("anyOf", r.Children) }

// AllOf evaluates children in order and fails on the first false child. An
// empty AllOf evaluates true (vacuous AND).
type AllOf struct {
	Children []Requirement
}

func (r *AllOf) Evaluate(ctx context.Context, ec *EvalContext) (bool, error) {
	for _, child := range r.Children {
		if child == nil {
			return false, configErrorf("allOf contains a nil requirement")
		}
		ok, err := child.Evaluate(ctx, ec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *AllOf) String() string { return compositeString("allOf", r.Children) }

func compositeString(name string, children []Requirement) string {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		if c == nil {
			parts = append(parts, "<nil>")
			continue
		}
		parts = append(parts, c.String())
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}
