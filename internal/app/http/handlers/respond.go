package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/ledger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError maps domain error codes onto HTTP statuses. Unknown errors
// are masked as 500 without leaking the message.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		err = billing.NewError(billing.CodeNotFound, "record not found")
	}

	var body errorBody
	status := http.StatusInternalServerError
	code := billing.CodeOf(err)
	switch code {
	case billing.CodeValidation:
		status = http.StatusBadRequest
	case billing.CodeNotFound:
		status = http.StatusNotFound
	case billing.CodeInvalidTransition, billing.CodeInvalidState,
		billing.CodeAlreadyConverted, billing.CodeAlreadyApplied:
		status = http.StatusConflict
	case billing.CodeGatewayUnavailable:
		status = http.StatusBadGateway
	case billing.CodeDispatchFailed:
		status = http.StatusBadGateway
	}

	if code == "" {
		log.Printf("http: internal error: %v", err)
		body.Error.Code = "INTERNAL"
		body.Error.Message = "internal error"
	} else {
		var be *billing.Error
		errors.As(err, &be)
		body.Error.Code = string(code)
		body.Error.Message = be.Message
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, billing.NewError(billing.CodeValidation, "%s", msg))
}
