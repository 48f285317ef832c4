package accesskit

import (
	"context"
	"fmt"

	"github.com/oarkflow/accesskit/logger"
)

// AccessResolver turns batches of (tab, requirement-ref) pairs scoped to one
// entity instance into ordered grant/deny results. It owns the single
// admin-bypass check and the single permission-set fetch per batch.
type AccessResolver struct {
	catalog    *Catalog
	policies   *PolicyRegistry
	tabs       *TabRegistry
	perms      PermissionSource
	ownership  OwnershipResolver
	components map[string]struct{}
	custom     map[string]bool
	log        logger.Logger
}

// ResolverOption configures an AccessResolver.
type ResolverOption func(*AccessResolver)

// WithOwnershipResolver installs the ownership lookup used by ownership
// conditions.
func WithOwnershipResolver(o OwnershipResolver) ResolverOption {
	return func(r *AccessResolver) { r.ownership = o }
}

// WithComponents declares the enabled feature components.
func WithComponents(ids ...string) ResolverOption {
	return func(r *AccessResolver) {
		for _, id := range ids {
			r.components[id] = struct{}{}
		}
	}
}

// WithCustomResult supplies the externally computed outcome for a custom
// check id.
func WithCustomResult(id string, granted bool) ResolverOption {
	return func(r *AccessResolver) { r.custom[id] = granted }
}

// WithResolverLogger installs a structured logger for batch audit lines.
func WithResolverLogger(l logger.Logger) ResolverOption {
	return func(r *AccessResolver) { r.log = l }
}

func NewAccessResolver(catalog *Catalog, policies *PolicyRegistry, tabs *TabRegistry, perms PermissionSource, opts ...ResolverOption) *AccessResolver {
	r := &AccessResolver{
		catalog:    catalog,
		policies:   policies,
		tabs:       tabs,
		perms:      perms,
		components: make(map[string]struct{}),
		custom:     make(map[string]bool),
		log:        logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnableComponent marks a feature component as enabled after construction.
func (r *AccessResolver) EnableComponent(id string) {
	r.components[id] = struct{}{}
}

// Policies exposes the policy registry for the read-only audit endpoint.
func (r *AccessResolver) Policies() *PolicyRegistry { return r.policies }

// Tabs exposes the tab registry.
func (r *AccessResolver) Tabs() *TabRegistry { return r.tabs }

// ResolveBatch resolves every tab registered for the entity type against one
// entity instance, in registry order.
func (r *AccessResolver) ResolveBatch(ctx context.Context, principalID, entityType, entityID string) ([]TabAccessResult, error) {
	tabs, err := r.tabs.TabsFor(entityType)
	if err != nil {
		return nil, err
	}
	return r.ResolveTabs(ctx, principalID, entityType, entityID, tabs)
}

// ResolveTabs resolves an explicit tab slice against one entity instance.
// The result slice always has the same length and order as tabs. The
// permission set is fetched once; the admin bypass is checked exactly once,
// here, never inside nested condition evaluation, so that custom and
// ownership conditions are never skipped by a partial node-level check.
func (r *AccessResolver) ResolveTabs(ctx context.Context, principalID, entityType, entityID string, tabs []TabDefinition) ([]TabAccessResult, error) {
	perms, err := r.perms.EffectivePermissions(ctx, principalID)
	if err != nil {
		return nil, &ResolutionFailure{Op: "permissions", Cause: err}
	}

	results := make([]TabAccessResult, len(tabs))
	if perms.Has(PermissionAdmin) {
		for i, tab := range tabs {
			results[i] = TabAccessResult{TabID: tab.ID, Granted: true, Href: tab.Href(entityID)}
		}
		r.audit(principalID, entityType, entityID, len(tabs), len(tabs), true)
		return results, nil
	}

	granted := 0
	for i, tab := range tabs {
		req, err := r.requirementFor(tab.RequirementRef)
		if err != nil {
			return nil, err
		}
		ec := r.newEvalContext(principalID, perms, entityType, entityID)
		ok, err := req.Evaluate(ctx, ec)
		if err != nil {
			return nil, err
		}
		res := TabAccessResult{TabID: tab.ID, Granted: ok}
		if ok {
			granted++
			res.Href = tab.Href(entityID)
		} else {
			res.Reason = ec.FirstFailure()
		}
		results[i] = res
	}
	r.audit(principalID, entityType, entityID, len(tabs), granted, false)
	return results, nil
}

// TabTrace pairs a tab's access result with the evaluated requirement, for
// audit tooling.
type TabTrace struct {
	Result      TabAccessResult `json:"result"`
	Requirement string          `json:"requirement"`
}

// ResolveBatchExplain is ResolveBatch with the evaluated requirement attached
// to each result. The admin bypass is reported as-is rather than re-evaluated.
func (r *AccessResolver) ResolveBatchExplain(ctx context.Context, principalID, entityType, entityID string) ([]TabTrace, error) {
	tabs, err := r.tabs.TabsFor(entityType)
	if err != nil {
		return nil, err
	}
	results, err := r.ResolveTabs(ctx, principalID, entityType, entityID, tabs)
	if err != nil {
		return nil, err
	}
	traces := make([]TabTrace, len(results))
	for i, res := range results {
		req, err := r.requirementFor(tabs[i].RequirementRef)
		if err != nil {
			return nil, err
		}
		traces[i] = TabTrace{Result: res, Requirement: req.String()}
	}
	return traces, nil
}

// GuardRoute evaluates a single requirement ref for a guarded route. Denial
// is reported as (false, reason, nil); errors keep the batch semantics of
// ResolveTabs.
func (r *AccessResolver) GuardRoute(ctx context.Context, principalID, entityType, entityID, requirementRef string) (bool, string, error) {
	results, err := r.ResolveTabs(ctx, principalID, entityType, entityID, []TabDefinition{
		{ID: "route", RequirementRef: requirementRef},
	})
	if err != nil {
		return false, "", err
	}
	return results[0].Granted, results[0].Reason, nil
}

// requirementFor resolves a ref to a requirement tree: policy registry first,
// then the permission catalog. A ref matching neither is a configuration bug,
// not a deny.
func (r *AccessResolver) requirementFor(ref string) (Requirement, error) {
	if r.policies.Contains(ref) {
		return r.policies.Resolve(ref)
	}
	if _, ok := r.catalog.Lookup(ref); ok {
		return &HasPermission{Key: ref}, nil
	}
	return nil, configErrorf("requirement ref %q is neither a policy id nor a permission key", ref)
}

func (r *AccessResolver) newEvalContext(principalID string, perms PermissionSet, entityType, entityID string) *EvalContext {
	return &EvalContext{
		PrincipalID: principalID,
		Permissions: perms,
		Components:  r.components,
		EntityType:  entityType,
		EntityID:    entityID,
		Params:      map[string]string{"id": entityID},
		Ownership:   r.ownership,
		Custom:      r.custom,
	}
}

func (r *AccessResolver) audit(principalID, entityType, entityID string, total, granted int, adminBypass bool) {
	r.log.Info("access batch resolved",
		"principal", principalID,
		"entity", fmt.Sprintf("%s:%s", entityType, entityID),
		"tabs", total,
		"granted", granted,
		"admin_bypass", adminBypass,
	)
}
