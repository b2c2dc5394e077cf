// Package httpjson writes JSON responses from plain handler functions.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// Response is what a Handler wants written.
type Response struct {
	Status int
	Body   any
}

// M is shorthand for ad hoc JSON objects.
type M map[string]any

// Handler is an http.Handler that returns its response instead of writing
// it. A nil response is written as 204 No Content.
type Handler func(w http.ResponseWriter, r *http.Request) *Response

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h(w, r)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	Write(w, status, resp.Body)
}

// Write encodes v as indented JSON with statusCode.
func Write(w http.ResponseWriter, statusCode int, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = enc.Encode(v)
}
