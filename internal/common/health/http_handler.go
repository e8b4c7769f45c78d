package health

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HttpHandler answers health probes: 200 with {"status":"ok"} while all
// checkers pass, 503 with the failure text otherwise.
type HttpHandler struct {
	checker Checker
}

func NewHttpHandler(checker Checker) *HttpHandler {
	return &HttpHandler{checker: checker}
}

func (h *HttpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.checker.Check(); err != nil {
		log.Warnf("Health check failed: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
