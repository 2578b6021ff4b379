/*
 * @module api/controllers/response
 * @description Shared JSON response helpers for the HTTP layer.
 * @architecture RESTful API - response formatting
 * @dependencies github.com/go-chi/render
 */
package controllers

import (
	"net/http"

	"github.com/go-chi/render"
)

// errorResponse is the uniform error body for non-2xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	render.Status(r, status)
	render.JSON(w, r, body)
}
