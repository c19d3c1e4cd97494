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

// LotAdminService is the minimal interface the lot endpoints need.
type LotAdminService interface {
	CreateLot(ctx context.Context, in app.CreateLotInput) (domain.Lot, []domain.EntryPoint, error)
	ListLots(ctx context.Context) ([]domain.Lot, error)
	AddEntryPoint(ctx context.Context, lotID, name string) (domain.EntryPoint, error)
	ListEntryPoints(ctx context.Context, lotID string) ([]domain.EntryPoint, error)
	CreateSlots(ctx context.Context, lotID string, specs []app.SlotSpec) ([]domain.Slot, error)
	ListSlots(ctx context.Context, lotID string) ([]domain.Slot, error)
}

// HandleLots returns an HTTP handler for creating and listing lots.
func HandleLots(svc LotAdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			lots, err := svc.ListLots(r.Context())
			if err != nil {
				writeDomainError(w, err)
				return
			}
			resp := make([]lotResponse, 0, len(lots))
			for _, lot := range lots {
				resp = append(resp, toLotResponse(lot))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		case http.MethodPost:
			var req createLotRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			if req.Name == "" {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "name is required")
				return
			}
			if len(req.EntryPoints) == 0 {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "at least one entry point is required")
				return
			}

			lot, entryPoints, err := svc.CreateLot(r.Context(), app.CreateLotInput{
				Name:        req.Name,
				EntryPoints: req.EntryPoints,
			})
			if err != nil {
				writeDomainError(w, err)
				return
			}

			resp := createLotResponse{Lot: toLotResponse(lot)}
			for _, ep := range entryPoints {
				resp.EntryPoints = append(resp.EntryPoints, toEntryPointResponse(ep))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(resp)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleLotSubresources serves the entry-point and slot collections of a
// lot: GET/POST /lots/{id}/entry-points and GET/POST /lots/{id}/slots.
func HandleLotSubresources(svc LotAdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lotID, resource, ok := parseLotSubresourcePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch resource {
		case "entry-points":
			handleEntryPoints(w, r, svc, lotID)
		case "slots":
			handleSlots(w, r, svc, lotID)
		}
	}
}

func handleEntryPoints(w http.ResponseWriter, r *http.Request, svc LotAdminService, lotID string) {
	switch r.Method {
	case http.MethodGet:
		entryPoints, err := svc.ListEntryPoints(r.Context(), lotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := make([]entryPointResponse, 0, len(entryPoints))
		for _, ep := range entryPoints {
			resp = append(resp, toEntryPointResponse(ep))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPost:
		var req createEntryPointRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "name is required")
			return
		}

		ep, err := svc.AddEntryPoint(r.Context(), lotID, req.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toEntryPointResponse(ep))
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

func handleSlots(w http.ResponseWriter, r *http.Request, svc LotAdminService, lotID string) {
	switch r.Method {
	case http.MethodGet:
		slots, err := svc.ListSlots(r.Context(), lotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := make([]slotResponse, 0, len(slots))
		for _, slot := range slots {
			resp = append(resp, toSlotResponse(slot))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPost:
		var req createSlotsRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if len(req.Slots) == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "at least one slot is required")
			return
		}

		specs := make([]app.SlotSpec, 0, len(req.Slots))
		for _, s := range req.Slots {
			tier, ok := domain.ParseTier(s.Type)
			if !ok {
				writeError(w, http.StatusBadRequest, codeInvalidSlotType, "slot type must be small, medium or large")
				return
			}
			specs = append(specs, app.SlotSpec{SizeTier: tier, Distance: s.Distance})
		}

		slots, err := svc.CreateSlots(r.Context(), lotID, specs)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp := make([]slotResponse, 0, len(slots))
		for _, slot := range slots {
			resp = append(resp, toSlotResponse(slot))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

func parseLotSubresourcePath(path string) (lotID, resource string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", "", false
	}
	if parts[0] != "lots" || parts[1] == "" {
		return "", "", false
	}
	if parts[2] != "entry-points" && parts[2] != "slots" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type createLotRequest struct {
	Name        string   `json:"name"`
	EntryPoints []string `json:"entry_points"`
}

type createLotResponse struct {
	Lot         lotResponse          `json:"lot"`
	EntryPoints []entryPointResponse `json:"entry_points"`
}

type createEntryPointRequest struct {
	Name string `json:"name"`
}

type createSlotsRequest struct {
	Slots []slotRequest `json:"slots"`
}

type slotRequest struct {
	Type     string         `json:"type"`
	Distance map[string]int `json:"distance,omitempty"`
}

type lotResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type entryPointResponse struct {
	ID        string    `json:"id"`
	LotID     string    `json:"lot_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type slotResponse struct {
	ID       string         `json:"id"`
	LotID    string         `json:"lot_id"`
	Label    string         `json:"label"`
	Type     string         `json:"type"`
	Distance map[string]int `json:"distance"`
	Occupied bool           `json:"occupied"`
}

func toLotResponse(lot domain.Lot) lotResponse {
	return lotResponse{ID: lot.ID, Name: lot.Name, CreatedAt: lot.CreatedAt}
}

func toEntryPointResponse(ep domain.EntryPoint) entryPointResponse {
	return entryPointResponse{ID: ep.ID, LotID: ep.LotID, Name: ep.Name, CreatedAt: ep.CreatedAt}
}

func toSlotResponse(slot domain.Slot) slotResponse {
	return slotResponse{
		ID:       slot.ID,
		LotID:    slot.LotID,
		Label:    slot.Label,
		Type:     slot.SizeTier.String(),
		Distance: slot.Distance,
		Occupied: slot.Occupied,
	}
}
