package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bits-mayank/quizmasters/internal/quiz"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// httpError maps the service's sentinel errors onto status codes. Unknown
// errors are 500 with a generic body; details stay on the server log.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, quiz.ErrNotAuthorized):
		http.Error(w, "not authorized for this quiz", http.StatusForbidden)
	case errors.Is(err, quiz.ErrInvalidState):
		http.Error(w, "operation not allowed in current state", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
