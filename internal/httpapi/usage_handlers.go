package httpapi

import (
	"net/http"
)

// handleGetUsage returns the authenticated client's aggregate usage.
func (r *Router) handleGetUsage(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "usage persistence not configured"}`, http.StatusServiceUnavailable)
		return
	}

	client := getAuthClient(req.Context())
	if client == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	summary, err := r.store.GetUsageSummary(req.Context(), client.ID)
	if err != nil {
		r.logger.Printf("usage: summary query failed for client %s: %v", client.ID, err)
		captureError(req, err, "usage: summary query failed")
		http.Error(w, `{"error": "failed to load usage"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleGetSessionUsage returns the usage records of one session.
func (r *Router) handleGetSessionUsage(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "usage persistence not configured"}`, http.StatusServiceUnavailable)
		return
	}

	sessionID := req.PathValue("sessionId")
	if sessionID == "" {
		http.Error(w, `{"error": "missing session id"}`, http.StatusBadRequest)
		return
	}

	records, err := r.store.ListUsage(req.Context(), sessionID)
	if err != nil {
		r.logger.Printf("usage: list query failed for session %s: %v", sessionID, err)
		captureError(req, err, "usage: list query failed")
		http.Error(w, `{"error": "failed to load usage"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"records":    records,
	})
}
