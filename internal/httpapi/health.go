package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleHealth is the unauthenticated liveness probe (admission.Config's
// PublicPaths must include "/health").
func (d Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
