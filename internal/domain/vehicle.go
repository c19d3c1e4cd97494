package domain

import "time"

// Visit records the outcome of a vehicle's last settled session. It is
// written only at settlement and read on the next arrival to decide
// whether the new session continues the previous one.
type Visit struct {
	DurationHours int64
	DepartedAt    time.Time
}

// Vehicle is keyed by VIN; one record per VIN across the whole system,
// upserted on every arrival.
type Vehicle struct {
	VIN       string
	SizeTier  Tier
	LastVisit *Visit
	CreatedAt time.Time
	UpdatedAt time.Time
}
