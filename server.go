package accesskit

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oarkflow/accesskit/logger"
)

// PrincipalHeader carries the authenticated principal id. Authentication
// itself happens upstream; an empty header means an unauthenticated caller.
const PrincipalHeader = "X-Principal-ID"

// Server exposes the batch resolution protocol and the role/permission
// administration endpoints over HTTP.
type Server struct {
	resolver    *AccessResolver
	cache       *ResolutionCache
	roles       RoleStore
	memberships MembershipStore
	log         logger.Logger
}

type ServerOption func(*Server)

// WithServerLogger installs a structured logger for request diagnostics.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithAdminStores enables the role/permission administration endpoints.
func WithAdminStores(roles RoleStore, memberships MembershipStore) ServerOption {
	return func(s *Server) {
		s.roles = roles
		s.memberships = memberships
	}
}

func NewServer(resolver *AccessResolver, cache *ResolutionCache, opts ...ServerOption) *Server {
	s := &Server{resolver: resolver, cache: cache, log: logger.NewNullLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table. Mutating admin endpoints flush the
// resolution cache so grant decisions reflect the change immediately instead
// of waiting out the TTL.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /access/tabs", s.handleResolveTabs)
	mux.HandleFunc("GET /access/policies", s.handleListPolicies)
	if s.roles != nil && s.memberships != nil {
		mux.HandleFunc("POST /admin/roles/assign", s.handleAssignRole)
		mux.HandleFunc("POST /admin/roles/unassign", s.handleUnassignRole)
		mux.HandleFunc("POST /admin/roles/grant", s.handleGrantPermission)
		mux.HandleFunc("POST /admin/roles/revoke", s.handleRevokePermission)
	}
	return mux
}

type resolveTabsRequest struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

type resolveTabsResponse struct {
	Tabs []TabAccessResult `json:"tabs"`
}

func (s *Server) handleResolveTabs(w http.ResponseWriter, r *http.Request) {
	var req resolveTabsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	principalID := r.Header.Get(PrincipalHeader)

	var results []TabAccessResult
	var err error
	if s.cache != nil {
		results, err = s.cache.ResolveBatch(r.Context(), principalID, req.EntityType, req.EntityID)
	} else {
		results, err = s.resolver.ResolveBatch(r.Context(), principalID, req.EntityType, req.EntityID)
	}
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveTabsResponse{Tabs: results})
}

type policyView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := s.resolver.Policies().List()
	views := make([]policyView, 0, len(policies))
	for _, p := range policies {
		reqs := make([]string, 0, len(p.Requirements))
		for _, req := range p.Requirements {
			reqs = append(reqs, req.String())
		}
		views = append(views, policyView{ID: p.ID, Name: p.Name, Description: p.Description, Requirements: reqs})
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": views})
}

type roleAssignmentRequest struct {
	PrincipalID string `json:"principalId"`
	RoleID      string `json:"roleId"`
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req roleAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// idempotent: assigning an already-held role is a no-op success
	if err := s.memberships.AssignRole(r.Context(), req.PrincipalID, req.RoleID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	var req roleAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.memberships.RevokeRole(r.Context(), req.PrincipalID, req.RoleID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.invalidate()
	w.WriteHeader(http.StatusNoContent)
}

type permissionAssignmentRequest struct {
	RoleID     string `json:"roleId"`
	Permission string `json:"permission"`
}

func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.roles.GrantPermission(r.Context(), req.RoleID, req.Permission); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.roles.RevokePermission(r.Context(), req.RoleID, req.Permission); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) invalidate() {
	if s.cache != nil {
		s.cache.InvalidateAll()
	}
}

// writeResolveError maps the error taxonomy onto HTTP. Configuration errors
// surface as developer-facing diagnostics; resolution failures fail closed
// behind a generic message, with the cause kept in the logs.
func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrConfiguration):
		s.log.Error("access configuration error", "error", err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, ErrResolution):
		s.log.Error("access resolution failure", "error", err.Error())
		http.Error(w, "not authorized", http.StatusServiceUnavailable)
	default:
		s.log.Error("access request failed", "error", err.Error())
		http.Error(w, "not authorized", http.StatusServiceUnavailable)
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotAssigned), errors.Is(err, ErrRoleNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.log.Error("admin store error", "error", err.Error())
		http.Error(w, "store error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
