package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidVehicleType = "invalid_vehicle_type"
	codeInvalidSlotType    = "invalid_slot_type"
	codeInvalidStartDate   = "invalid_start_date"
	codeInvalidEndDate     = "invalid_end_date"
	codeVINRequired        = "vin_required"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps an engine error to a status by its kind: missing
// entities are 404, broken rules and duplicates are 409, and transient
// conflicts are 503 so clients know a retry may succeed. The error detail
// doubles as the response code.
func writeDomainError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	switch derr.Kind {
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, derr.Detail+"_not_found", err.Error())
	case domain.KindBusinessRule:
		writeError(w, http.StatusConflict, derr.Detail, err.Error())
	case domain.KindDuplicateKey:
		writeError(w, http.StatusConflict, "duplicate_"+derr.Detail, err.Error())
	case domain.KindConflict:
		writeError(w, http.StatusServiceUnavailable, derr.Detail, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
