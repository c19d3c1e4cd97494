package domain

import "time"

// Lot is a parking facility owning slots and entry points.
type Lot struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryPoint is a gate of a lot. Slot distances are keyed by entry point ID.
type EntryPoint struct {
	ID        string
	LotID     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
