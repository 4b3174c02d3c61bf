package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"fixwell.io/internal/audit"
	"fixwell.io/internal/auth"
	"fixwell.io/internal/directory"
	"fixwell.io/internal/tenant"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// allOrgsHeader lets a platform administrator opt into the global
	// tenant scope for one request. The opt-in is explicit so cross-tenant
	// reads never happen by accident.
	allOrgsHeader = "X-Fixwell-All-Orgs"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Transport metadata feeds every audit entry written below here,
		// including ones from pre-authentication flows such as login.
		ctx := audit.WithRequestMeta(r.Context(), audit.RequestMeta{
			RequestID: RequestIDFromContext(r.Context()),
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		r = r.WithContext(ctx)

		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.auth == nil {
			writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="fixwell"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="fixwell"`)
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		scope := principal.Scope()
		if wantsAllOrgs(r) {
			if principal.Role != directory.RoleSuperAdmin {
				writeError(w, r, http.StatusForbidden, "cross-organisation access requires a platform administrator")
				return
			}
			scope = tenant.Global()
		}

		ctx = auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = tenant.WithScope(ctx, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func wantsAllOrgs(r *http.Request) bool {
	v := strings.TrimSpace(strings.ToLower(r.Header.Get(allOrgsHeader)))
	return v == "true" || v == "1"
}

// requirePrincipal returns the authenticated principal or writes a 401.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fixwell"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return principal, true
}

// requireAdmin returns the principal when it holds any administrator role,
// otherwise writes 401/403.
func requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !principal.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "administrator role required")
		return auth.Principal{}, false
	}
	return principal, true
}

// requireSuperAdmin returns the principal when it is a platform
// administrator, otherwise writes 401/403.
func requireSuperAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if principal.Role != directory.RoleSuperAdmin {
		writeError(w, r, http.StatusForbidden, "platform administrator role required")
		return auth.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func requestScope(r *http.Request) tenant.Scope {
	return tenant.FromContext(r.Context())
}
