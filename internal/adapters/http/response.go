package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

type apiError struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// validationBody is the 422 shape browser clients of the notes UI expect.
type validationBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	writeJSON(w, statusCode, apiError{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

func writeValidation(w http.ResponseWriter, verr *domain.ValidationError) {
	body := validationBody{Message: "The given data was invalid.", Errors: verr.ByField()}
	if n := len(verr.Fields); n > 0 {
		body.Message = verr.Fields[0].Message
		switch n {
		case 1:
		case 2:
			body.Message += " (and 1 more error)"
		default:
			body.Message += fmt.Sprintf(" (and %d more errors)", n-1)
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, body)
}
