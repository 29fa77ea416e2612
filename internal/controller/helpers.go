package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
)

var validate = validator.New()

const maxBodyBytes = 64 << 10

type errorMapping struct {
	err     error
	status  int
	message string // empty keeps the error's own text
}

// Gateway details stay in the logs; clients only learn the kind of failure.
var errorMappings = []errorMapping{
	{domainErrors.ErrInvalidAmount, http.StatusBadRequest, ""},
	{domainErrors.ErrMissingConfiguration, http.StatusServiceUnavailable, "payment gateway is not configured"},
	{domainErrors.ErrGatewayAuthFailure, http.StatusBadGateway, "payment gateway rejected merchant credentials"},
	{domainErrors.ErrGatewayNetworkFailure, http.StatusBadGateway, "payment gateway unreachable"},
	{domainErrors.ErrGatewayProtocolFailure, http.StatusBadGateway, "payment gateway returned an unexpected response"},
	{domainErrors.ErrProviderNotFound, http.StatusServiceUnavailable, "payment provider not found"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation_error"})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.message
			if msg == "" {
				msg = m.err.Error()
			}
			writeJSON(w, m.status, ErrorResponse{Error: msg, Code: domainErrors.Code(m.err)})
			return
		}
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
