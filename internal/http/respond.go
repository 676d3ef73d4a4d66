package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps an error kind to an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindAlreadyExists:
		status = http.StatusConflict
	case domain.KindInvalidCredentials:
		status = http.StatusUnauthorized
	case domain.KindConfiguration:
		status = http.StatusServiceUnavailable
	case domain.KindUpstream:
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}
