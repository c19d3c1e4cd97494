package app

import (
	"context"
	"errors"
	"time"

	"github.com/mrcbstmnte/park-n-go/internal/billing"
	"github.com/mrcbstmnte/park-n-go/internal/clock"
	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

// Transactor runs fn inside a single atomic transaction. Every store call
// made with the context fn receives joins that transaction; any error
// aborts all of its writes.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EntryPointDirectory resolves entry points to their lot.
type EntryPointDirectory interface {
	GetEntryPoint(ctx context.Context, id string) (domain.EntryPoint, error)
}

// SlotStore finds and reserves slots. Reserve and Release are the only
// paths that flip occupancy, and are always called inside a transaction.
type SlotStore interface {
	// FindNearest returns the unoccupied slot of at least minTier closest
	// to the entry point, or nil when none qualifies.
	FindNearest(ctx context.Context, lotID, entryPointID string, minTier domain.Tier) (*domain.Slot, error)
	// Reserve marks the slot occupied; it returns domain.ErrSlotTaken when
	// a concurrent arrival won the slot first.
	Reserve(ctx context.Context, slotID string, at time.Time) error
	// Release marks the slot vacant again.
	Release(ctx context.Context, slotID string, at time.Time) error
}

// VehicleStore tracks vehicles by VIN and their last settled visit.
type VehicleStore interface {
	// Upsert creates or updates the vehicle record for the VIN, setting its
	// tier. It never touches the last-visit fields; the returned vehicle
	// carries the visit recorded by the previous settlement, if any.
	Upsert(ctx context.Context, vin string, tier domain.Tier, at time.Time) (domain.Vehicle, error)
	GetByVIN(ctx context.Context, vin string) (*domain.Vehicle, error)
	RecordVisit(ctx context.Context, vin string, visit domain.Visit) error
}

// InvoiceStore persists invoices and their single settle transition.
type InvoiceStore interface {
	Create(ctx context.Context, invoice domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	Settle(ctx context.Context, id string, amount int64, at time.Time) (domain.Invoice, error)
}

// maxOpenAttempts bounds the select+reserve retry loop. Selection happens
// outside the transaction, so a candidate can go stale when two arrivals
// race for the same slot; losing the reserve re-runs selection.
const maxOpenAttempts = 3

// InvoiceService owns the parking session lifecycle: it allocates a slot
// and opens an invoice on arrival, and computes and settles the payment on
// departure. All multi-entity writes happen inside one transaction.
type InvoiceService struct {
	tx          Transactor
	entryPoints EntryPointDirectory
	slots       SlotStore
	vehicles    VehicleStore
	invoices    InvoiceStore
	policy      billing.Policy
	clock       clock.Clock
}

func NewInvoiceService(
	tx Transactor,
	entryPoints EntryPointDirectory,
	slots SlotStore,
	vehicles VehicleStore,
	invoices InvoiceStore,
	policy billing.Policy,
	clk clock.Clock,
) *InvoiceService {
	return &InvoiceService{
		tx:          tx,
		entryPoints: entryPoints,
		slots:       slots,
		vehicles:    vehicles,
		invoices:    invoices,
		policy:      policy,
		clock:       clk,
	}
}

type OpenInvoiceInput struct {
	EntryPointID string
	VIN          string
	VehicleTier  domain.Tier
	// ArrivalAt defaults to the current time.
	ArrivalAt *time.Time
}

// Open assigns the arriving vehicle to the nearest eligible free slot and
// creates its invoice. The vehicle upsert, invoice creation and occupancy
// flip commit atomically; on failure no partial state is visible.
func (s *InvoiceService) Open(ctx context.Context, in OpenInvoiceInput) (domain.Invoice, error) {
	arrival := s.clock.Now()
	if in.ArrivalAt != nil {
		arrival = in.ArrivalAt.UTC()
	}

	entryPoint, err := s.entryPoints.GetEntryPoint(ctx, in.EntryPointID)
	if err != nil {
		return domain.Invoice{}, err
	}

	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		slot, err := s.slots.FindNearest(ctx, entryPoint.LotID, entryPoint.ID, in.VehicleTier)
		if err != nil {
			return domain.Invoice{}, err
		}
		if slot == nil {
			return domain.Invoice{}, domain.ErrNoSlotsAvailable
		}

		var result domain.Invoice
		err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
			if err := s.slots.Reserve(txCtx, slot.ID, arrival); err != nil {
				return err
			}

			vehicle, err := s.vehicles.Upsert(txCtx, in.VIN, in.VehicleTier, arrival)
			if err != nil {
				return err
			}

			invoice := domain.Invoice{
				ID:           newID(),
				SlotID:       slot.ID,
				VIN:          in.VIN,
				HourlyRate:   s.policy.HourlyRate(slot.SizeTier),
				IsContinuous: s.policy.IsContinuous(vehicle.LastVisit, arrival),
				CreatedAt:    arrival,
				UpdatedAt:    arrival,
			}
			if err := s.invoices.Create(txCtx, invoice); err != nil {
				return err
			}

			result = invoice
			return nil
		})
		if errors.Is(err, domain.ErrSlotTaken) {
			// Lost the slot to a concurrent arrival; pick again.
			continue
		}
		if err != nil {
			return domain.Invoice{}, err
		}
		return result, nil
	}

	return domain.Invoice{}, domain.ErrTxConflict
}

// Settle computes the payment for the session and closes it: the slot is
// freed, the vehicle's last visit is recorded, and the invoice is marked
// settled with the final amount — all in one transaction.
func (s *InvoiceService) Settle(ctx context.Context, invoiceID string, departureAt *time.Time) (domain.Invoice, error) {
	departure := s.clock.Now()
	if departureAt != nil {
		departure = departureAt.UTC()
	}

	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	if invoice.Settled {
		return domain.Invoice{}, domain.ErrAlreadySettled
	}
	if departure.Before(invoice.CreatedAt) {
		return domain.Invoice{}, domain.ErrInvalidEndDate
	}

	vehicle, err := s.vehicles.GetByVIN(ctx, invoice.VIN)
	if err != nil {
		return domain.Invoice{}, err
	}
	if vehicle == nil {
		// Data-integrity fault: every open invoice has an upserted vehicle.
		return domain.Invoice{}, domain.ErrVehicleNotFound
	}

	flat := s.policy.FlatComponent(invoice.IsContinuous)
	sessionHours := billing.ElapsedHours(invoice.CreatedAt, departure, billing.RoundUp)

	// A continuous session is billed as one unbroken stay: the previous
	// visit's hours carry over, only the flat fee is waived.
	totalHours := sessionHours
	if invoice.IsContinuous && vehicle.LastVisit != nil {
		totalHours += vehicle.LastVisit.DurationHours
	}

	amount := s.policy.Payment(invoice.HourlyRate, flat, totalHours)

	var settled domain.Invoice
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.slots.Release(txCtx, invoice.SlotID, departure); err != nil {
			return err
		}
		if err := s.vehicles.RecordVisit(txCtx, invoice.VIN, domain.Visit{
			DurationHours: totalHours,
			DepartedAt:    departure,
		}); err != nil {
			return err
		}

		out, err := s.invoices.Settle(txCtx, invoice.ID, amount, departure)
		if err != nil {
			return err
		}
		settled = out
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return settled, nil
}

// GetInvoice returns the invoice with the given ID.
func (s *InvoiceService) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return *invoice, nil
}
