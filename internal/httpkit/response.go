package httpkit

import (
	"net/http"

	"github.com/go-chi/render"
)

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

func WriteErr(w http.ResponseWriter, r *http.Request, status int, code, msg string, details map[string]any) {
	WriteJSON(w, r, status, ErrorEnvelope{Error: ErrorBody{Code: code, Message: msg, Details: details}})
}
