package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/splax/bookreview/internal/domain"
)

const msgInternal = "Internal server error"

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error onto its status. Causes of internal
// failures are logged and never sent to the client.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
	}
	writeError(w, statusForKind(kind), domain.MessageOf(err, msgInternal))
}
