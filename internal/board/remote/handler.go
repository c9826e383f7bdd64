package remote

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/mschirtzinger/beadboard/internal/board/fault"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// Handler serves a settings.Remote over HTTP:
//
//	GET   /users/{id}/settings   full record
//	PATCH /users/{id}/settings   JSON partial in, merged record out
type Handler struct {
	remote settings.Remote
	token  string
	logger *log.Logger
	mux    *http.ServeMux
}

// NewHandler returns a handler for r. When token is non-empty requests must
// carry it as a bearer token.
func NewHandler(r settings.Remote, token string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Handler{remote: r, token: token, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /users/{id}/settings", h.handleGet)
	h.mux.HandleFunc("PATCH /users/{id}/settings", h.handlePatch)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token != "" {
		want := "Bearer " + h.token
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.remote.FetchSettings(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Printf("Error fetching settings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	patch, err := settings.ParsePatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.remote.UpdateSettings(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		if errors.Is(err, fault.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Printf("Error updating settings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
