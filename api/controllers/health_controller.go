/*
 * @module api/controllers/health_controller
 * @description Liveness/readiness endpoints.
 * @architecture RESTful API - health checks
 */
package controllers

import "net/http"

type HealthController struct{}

func NewHealthController() *HealthController { return &HealthController{} }

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func (h *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"ready": true})
}
