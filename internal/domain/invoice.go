package domain

import "time"

// Invoice represents one parking session. The hourly rate is snapshotted
// from the slot's tier when the session opens, so later rate changes never
// affect open invoices. Amount stays zero until the invoice is settled;
// the settle transition is the only mutation an invoice ever sees.
type Invoice struct {
	ID           string
	SlotID       string
	VIN          string
	HourlyRate   int64
	IsContinuous bool
	Amount       int64
	Settled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
