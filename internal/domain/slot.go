package domain

import "time"

// Slot is a single parking space inside a lot. Distance maps every entry
// point of the lot to a positive cost used for nearest-slot allocation.
type Slot struct {
	ID        string
	LotID     string
	Label     string
	SizeTier  Tier
	Distance  map[string]int
	Occupied  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
