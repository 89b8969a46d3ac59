package http

import (
	"encoding/json"
	"io"
	"net/http"

	applog "kvitto/internal/log"
)

// writePage renders a page. Pages buffer their output, so a template failure
// writes nothing and becomes a clean 500.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, render func(io.Writer) error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render(w); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).
			ErrorContext(r.Context(), "Template execution failed", applog.FieldError, err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
