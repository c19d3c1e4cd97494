package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mrcbstmnte/park-n-go/internal/app"
	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

// InvoiceService is the minimal interface the invoice endpoints need.
type InvoiceService interface {
	Open(ctx context.Context, in app.OpenInvoiceInput) (domain.Invoice, error)
	Settle(ctx context.Context, invoiceID string, departureAt *time.Time) (domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (domain.Invoice, error)
}

// HandleOpenInvoice returns an HTTP handler for POST /invoices: a vehicle
// arriving at an entry point.
func HandleOpenInvoice(svc InvoiceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req openInvoiceRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		if req.EntryPointID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "entry_point_id is required")
			return
		}
		if req.Vehicle.VIN == "" {
			writeError(w, http.StatusBadRequest, codeVINRequired, "vehicle vin is required")
			return
		}
		tier, ok := domain.ParseTier(req.Vehicle.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidVehicleType, "vehicle type must be small, medium or large")
			return
		}

		var arrivalAt *time.Time
		if req.StartDate != "" {
			parsed, err := time.Parse(time.RFC3339, req.StartDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidStartDate, "invalid start_date format")
				return
			}
			arrivalAt = &parsed
		}

		invoice, err := svc.Open(r.Context(), app.OpenInvoiceInput{
			EntryPointID: req.EntryPointID,
			VIN:          req.Vehicle.VIN,
			VehicleTier:  tier,
			ArrivalAt:    arrivalAt,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toInvoiceResponse(invoice))
	}
}

// HandleInvoiceByID serves GET /invoices/{id} and POST /invoices/{id}/settle.
func HandleInvoiceByID(svc InvoiceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, settle, ok := parseInvoicePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case settle && r.Method == http.MethodPost:
			handleSettle(w, r, svc, invoiceID)
		case !settle && r.Method == http.MethodGet:
			invoice, err := svc.GetInvoice(r.Context(), invoiceID)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(toInvoiceResponse(invoice))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func handleSettle(w http.ResponseWriter, r *http.Request, svc InvoiceService, invoiceID string) {
	var req settleInvoiceRequest
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
	}

	var departureAt *time.Time
	if req.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidEndDate, "invalid end_date format")
			return
		}
		departureAt = &parsed
	}

	invoice, err := svc.Settle(r.Context(), invoiceID, departureAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toInvoiceResponse(invoice))
}

func parseInvoicePath(path string) (id string, settle bool, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch len(parts) {
	case 2:
		if parts[0] != "invoices" || parts[1] == "" {
			return "", false, false
		}
		return parts[1], false, true
	case 3:
		if parts[0] != "invoices" || parts[1] == "" || parts[2] != "settle" {
			return "", false, false
		}
		return parts[1], true, true
	}
	return "", false, false
}

type openInvoiceRequest struct {
	EntryPointID string         `json:"entry_point_id"`
	Vehicle      vehicleRequest `json:"vehicle"`
	StartDate    string         `json:"start_date,omitempty"`
}

type vehicleRequest struct {
	VIN  string `json:"vin"`
	Type string `json:"type"`
}

type settleInvoiceRequest struct {
	EndDate string `json:"end_date,omitempty"`
}

type invoiceResponse struct {
	ID           string    `json:"id"`
	SlotID       string    `json:"slot_id"`
	VIN          string    `json:"vin"`
	HourlyRate   int64     `json:"hourly_rate"`
	IsContinuous bool      `json:"is_continuous"`
	Amount       int64     `json:"amount"`
	Settled      bool      `json:"settled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toInvoiceResponse(invoice domain.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:           invoice.ID,
		SlotID:       invoice.SlotID,
		VIN:          invoice.VIN,
		HourlyRate:   invoice.HourlyRate,
		IsContinuous: invoice.IsContinuous,
		Amount:       invoice.Amount,
		Settled:      invoice.Settled,
		CreatedAt:    invoice.CreatedAt,
		UpdatedAt:    invoice.UpdatedAt,
	}
}
