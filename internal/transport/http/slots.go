package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

// SlotGetter is the minimal interface needed to fetch a single slot.
type SlotGetter interface {
	GetSlot(ctx context.Context, slotID string) (domain.Slot, error)
}

// HandleSlotByID serves GET /slots/{id}.
func HandleSlotByID(svc SlotGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		slotID, ok := parseSlotPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		slot, err := svc.GetSlot(r.Context(), slotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(toSlotResponse(slot))
	}
}

func parseSlotPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "slots" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
