package httpapi

import (
	"errors"
	"net/http"

	"fixwell.io/internal/settings"
)

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	if a.settings == nil {
		writeError(w, r, http.StatusServiceUnavailable, "settings service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getSettings(w, r)
	case http.MethodPut:
		a.updateSettings(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	doc, err := a.settings.Get(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "settings load failed")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type updateSettingsResponse struct {
	Settings settings.Document `json:"settings"`
	Changed  []string          `json:"changed_keys"`
}

func (a *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireSuperAdmin(w, r)
	if !ok {
		return
	}
	var doc settings.Document
	if err := decodeJSON(w, r, &doc); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, diff, err := a.settings.Update(r.Context(), doc, principal.UserID)
	if err != nil {
		switch {
		case errors.Is(err, settings.ErrVersionConflict):
			writeError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, settings.ErrValidation):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "settings update failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, updateSettingsResponse{
		Settings: updated,
		Changed:  diff.ChangedKeys(),
	})
}
