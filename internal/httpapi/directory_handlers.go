package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fixwell.io/internal/directory"
	"fixwell.io/internal/tenant"
)

type createOrganizationRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Plan       string `json:"plan"`
	AdminEmail string `json:"admin_email"`
}

type createOrganizationResponse struct {
	Organization directory.Organization `json:"organization"`
	Admin        directory.User         `json:"admin"`
}

type createUserRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type createUserResponse struct {
	User         directory.User `json:"user"`
	AutoPromoted bool           `json:"auto_promoted"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type setPrimaryAdminRequest struct {
	UserID string `json:"user_id"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if a.dir == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory service unavailable")
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.createOrganization(w, r)
	case http.MethodGet:
		a.listOrganizations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireSuperAdmin(w, r)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, admin, err := a.dir.CreateOrganization(r.Context(), directory.CreateOrganizationParams{
		Name:       req.Name,
		Slug:       req.Slug,
		Plan:       req.Plan,
		AdminEmail: req.AdminEmail,
		ActorID:    principal.UserID,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, createOrganizationResponse{Organization: org, Admin: admin})
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	orgs, err := a.dir.ListOrganizations(r.Context(), requestScope(r))
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	if a.dir == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]
	switch {
	case len(parts) == 1:
		a.getOrganization(w, r, orgID)
	case len(parts) == 2 && parts[1] == "users":
		a.handleOrganizationUsers(w, r, orgID)
	case len(parts) == 2 && parts[1] == "status":
		a.setOrganizationStatus(w, r, orgID)
	case len(parts) == 2 && parts[1] == "primary-admin":
		a.setPrimaryAdmin(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	org, err := a.dir.GetOrganization(r.Context(), requestScope(r), orgID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleOrganizationUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requirePrincipal(w, r); !ok {
			return
		}
		users, err := a.dir.ListUsers(r.Context(), requestScope(r), orgID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		principal, ok := requireAdmin(w, r)
		if !ok {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		result, err := a.dir.CreateUser(r.Context(), requestScope(r), directory.CreateUserParams{
			OrganizationID: orgID,
			Email:          req.Email,
			RequestedRole:  req.Role,
			ActorID:        principal.UserID,
			ActorRole:      principal.Role,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", result.User.ID))
		writeJSON(w, http.StatusCreated, createUserResponse{User: result.User, AutoPromoted: result.AutoPromoted})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) setOrganizationStatus(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	principal, ok := requireSuperAdmin(w, r)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var status directory.OrgStatus
	switch strings.TrimSpace(strings.ToLower(req.Status)) {
	case string(directory.OrgActive):
		status = directory.OrgActive
	case string(directory.OrgSuspended):
		status = directory.OrgSuspended
	default:
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unsupported status %q", req.Status))
		return
	}
	org, err := a.dir.SetOrganizationStatus(r.Context(), requestScope(r), orgID, status, principal.UserID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) setPrimaryAdmin(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req setPrimaryAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.dir.SetPrimaryAdmin(r.Context(), requestScope(r), orgID, req.UserID, principal.UserID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if a.dir == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]
	switch {
	case len(parts) == 1:
		a.getUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "role":
		a.setUserRole(w, r, userID)
	case len(parts) == 2 && parts[1] == "active":
		a.setUserActive(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	user, err := a.dir.GetUser(r.Context(), requestScope(r), userID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) setUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := directory.ParseRole(req.Role)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	user, err := a.dir.ChangeRole(r.Context(), requestScope(r), userID, role, principal.UserID, principal.Role)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) setUserActive(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.dir.SetActive(r.Context(), requestScope(r), userID, req.Active, principal.UserID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	// A deactivated account keeps no live sessions.
	if !req.Active && a.auth != nil {
		if err := a.auth.RevokeAllForUser(r.Context(), userID); err != nil {
			writeError(w, r, http.StatusInternalServerError, "session revocation failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, user)
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrEscalation):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, tenant.ErrNoTenant), errors.Is(err, tenant.ErrCrossTenant):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "directory operation failed")
	}
}
