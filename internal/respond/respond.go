// Package respond escreve respostas JSON dos adapters HTTP.
package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody é o formato de erro comum das rotas REST.
type ErrorBody struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error usa o texto padrão do status como código ("Unauthorized", ...).
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Status: status, Error: http.StatusText(status), Message: message})
}
