package app

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mrcbstmnte/park-n-go/internal/billing"
	"github.com/mrcbstmnte/park-n-go/internal/clock"
	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

var testPolicy = billing.Policy{
	FlatFee:     40,
	WholeDayFee: 5000,
	HourlyRates: [3]int64{20, 60, 100},
	FreeHours:   3,
	GraceHours:  1,
}

func TestInvoiceService_Open(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	makeSvc := func(engine *fakeEngine) *InvoiceService {
		return NewInvoiceService(engine, engine, engine, engine, engine, testPolicy, clock.NewFixed(now))
	}

	t.Run("assigns the nearest eligible slot", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-far", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 3}},
				{ID: "slot-near", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 1}},
			},
		)
		svc := makeSvc(engine)

		invoice, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierSmall,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if invoice.SlotID != "slot-near" {
			t.Fatalf("expected slot-near, got %s", invoice.SlotID)
		}
		if !engine.slots["slot-near"].Occupied {
			t.Fatalf("expected slot-near to be occupied")
		}
		if invoice.HourlyRate != 20 {
			t.Fatalf("expected hourly rate 20, got %d", invoice.HourlyRate)
		}
		if invoice.IsContinuous {
			t.Fatalf("expected first visit to not be continuous")
		}
		if !invoice.CreatedAt.Equal(now) {
			t.Fatalf("expected created_at %v, got %v", now, invoice.CreatedAt)
		}
	})

	t.Run("skips slots smaller than the vehicle", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-small", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 1}},
				{ID: "slot-large", LotID: "lot-1", SizeTier: domain.TierLarge, Distance: map[string]int{"ep-a": 2}},
			},
		)
		svc := makeSvc(engine)

		invoice, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierMedium,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if invoice.SlotID != "slot-large" {
			t.Fatalf("expected slot-large, got %s", invoice.SlotID)
		}
		if invoice.HourlyRate != 100 {
			t.Fatalf("expected the slot's rate 100, got %d", invoice.HourlyRate)
		}
	})

	t.Run("prefers the smaller slot on equal distance", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-large", LotID: "lot-1", SizeTier: domain.TierLarge, Distance: map[string]int{"ep-a": 1}},
				{ID: "slot-medium", LotID: "lot-1", SizeTier: domain.TierMedium, Distance: map[string]int{"ep-a": 1}},
			},
		)
		svc := makeSvc(engine)

		invoice, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierSmall,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if invoice.SlotID != "slot-medium" {
			t.Fatalf("expected slot-medium, got %s", invoice.SlotID)
		}
	})

	t.Run("no eligible slot leaves no state behind", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-1", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 1}},
			},
		)
		svc := makeSvc(engine)

		_, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierLarge,
		})
		if !errors.Is(err, domain.ErrNoSlotsAvailable) {
			t.Fatalf("expected ErrNoSlotsAvailable, got %v", err)
		}
		if len(engine.invoices) != 0 {
			t.Fatalf("expected no invoices, got %d", len(engine.invoices))
		}
		if len(engine.vehicles) != 0 {
			t.Fatalf("expected no vehicles, got %d", len(engine.vehicles))
		}
	})

	t.Run("unknown entry point", func(t *testing.T) {
		engine := newFakeEngine(nil, nil)
		svc := makeSvc(engine)

		_, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-missing",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierSmall,
		})
		if !errors.Is(err, domain.ErrEntryPointNotFound) {
			t.Fatalf("expected ErrEntryPointNotFound, got %v", err)
		}
	})

	t.Run("retries selection when the reserve is lost", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-near", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 1}},
				{ID: "slot-far", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 2}},
			},
		)
		// A concurrent arrival grabs the nearest slot between selection and
		// reservation.
		engine.beforeReserve = func(slotID string) {
			engine.beforeReserve = nil
			slot := engine.slots["slot-near"]
			slot.Occupied = true
			engine.slots["slot-near"] = slot
		}
		svc := makeSvc(engine)

		invoice, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierSmall,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if invoice.SlotID != "slot-far" {
			t.Fatalf("expected fallback to slot-far, got %s", invoice.SlotID)
		}
		if len(engine.invoices) != 1 {
			t.Fatalf("expected a single invoice, got %d", len(engine.invoices))
		}
	})

	t.Run("gives up after repeated reserve conflicts", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-1", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 1}},
			},
		)
		engine.reserveErr = domain.ErrSlotTaken
		svc := makeSvc(engine)

		_, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierSmall,
		})
		if !errors.Is(err, domain.ErrTxConflict) {
			t.Fatalf("expected ErrTxConflict, got %v", err)
		}
		if engine.reserveCalls != maxOpenAttempts {
			t.Fatalf("expected %d reserve attempts, got %d", maxOpenAttempts, engine.reserveCalls)
		}
	})

	t.Run("marks returning vehicle within grace as continuous", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-1", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 1}},
			},
		)
		engine.vehicles["VIN-1"] = domain.Vehicle{
			VIN:      "VIN-1",
			SizeTier: domain.TierSmall,
			LastVisit: &domain.Visit{
				DurationHours: 4,
				DepartedAt:    now.Add(-40 * time.Minute),
			},
		}
		svc := makeSvc(engine)

		invoice, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierSmall,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !invoice.IsContinuous {
			t.Fatalf("expected invoice to be continuous")
		}
	})

	t.Run("returning vehicle past grace is a fresh visit", func(t *testing.T) {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: "slot-1", LotID: "lot-1", SizeTier: domain.TierSmall, Distance: map[string]int{"ep-a": 1}},
			},
		)
		engine.vehicles["VIN-1"] = domain.Vehicle{
			VIN:      "VIN-1",
			SizeTier: domain.TierSmall,
			LastVisit: &domain.Visit{
				DurationHours: 4,
				DepartedAt:    now.Add(-2 * time.Hour),
			},
		}
		svc := makeSvc(engine)

		invoice, err := svc.Open(context.Background(), OpenInvoiceInput{
			EntryPointID: "ep-a",
			VIN:          "VIN-1",
			VehicleTier:  domain.TierSmall,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if invoice.IsContinuous {
			t.Fatalf("expected invoice to not be continuous")
		}
	})
}

func TestInvoiceService_Settle(t *testing.T) {
	t.Parallel()

	arrival := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	seed := func(invoice domain.Invoice, vehicle domain.Vehicle) *fakeEngine {
		engine := newFakeEngine(
			[]domain.EntryPoint{{ID: "ep-a", LotID: "lot-1"}},
			[]domain.Slot{
				{ID: invoice.SlotID, LotID: "lot-1", SizeTier: domain.TierSmall, Occupied: true, Distance: map[string]int{"ep-a": 1}},
			},
		)
		engine.invoices[invoice.ID] = invoice
		engine.vehicles[vehicle.VIN] = vehicle
		return engine
	}

	makeSvc := func(engine *fakeEngine, now time.Time) *InvoiceService {
		return NewInvoiceService(engine, engine, engine, engine, engine, testPolicy, clock.NewFixed(now))
	}

	t.Run("short stay pays the flat fee", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-1", HourlyRate: 20, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{VIN: "VIN-1", SizeTier: domain.TierSmall})
		departure := arrival.Add(2*time.Hour + 30*time.Minute)
		svc := makeSvc(engine, departure)

		settled, err := svc.Settle(context.Background(), "inv-1", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if settled.Amount != 40 {
			t.Fatalf("expected amount 40, got %d", settled.Amount)
		}
		if !settled.Settled {
			t.Fatalf("expected invoice settled")
		}
		if engine.slots["slot-1"].Occupied {
			t.Fatalf("expected slot released")
		}
		visit := engine.vehicles["VIN-1"].LastVisit
		if visit == nil || visit.DurationHours != 3 {
			t.Fatalf("expected recorded visit of 3 hours, got %+v", visit)
		}
		if visit != nil && !visit.DepartedAt.Equal(departure) {
			t.Fatalf("expected departed_at %v, got %v", departure, visit.DepartedAt)
		}
	})

	t.Run("hours past the free window bill at the slot rate", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-1", HourlyRate: 100, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{VIN: "VIN-1", SizeTier: domain.TierLarge})
		svc := makeSvc(engine, arrival.Add(4*time.Hour+1*time.Minute))

		settled, err := svc.Settle(context.Background(), "inv-1", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		// 5 chargeable hours: flat 40 plus 2 excess at 100.
		if settled.Amount != 240 {
			t.Fatalf("expected amount 240, got %d", settled.Amount)
		}
	})

	t.Run("full days bill the whole-day fee", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-1", HourlyRate: 20, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{VIN: "VIN-1", SizeTier: domain.TierSmall})
		svc := makeSvc(engine, arrival.Add(25*time.Hour))

		settled, err := svc.Settle(context.Background(), "inv-1", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		// One day at 5000 plus one remainder hour at 20.
		if settled.Amount != 5020 {
			t.Fatalf("expected amount 5020, got %d", settled.Amount)
		}
	})

	t.Run("continuous session carries prior hours and waives the flat fee", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-1", HourlyRate: 20, IsContinuous: true, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{
			VIN:      "VIN-1",
			SizeTier: domain.TierSmall,
			LastVisit: &domain.Visit{
				DurationHours: 3,
				DepartedAt:    arrival.Add(-30 * time.Minute),
			},
		})
		departure := arrival.Add(2 * time.Hour)
		svc := makeSvc(engine, departure)

		settled, err := svc.Settle(context.Background(), "inv-1", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		// 3 carried + 2 new = 5 total; 2 hours past the free window at 20,
		// no flat fee.
		if settled.Amount != 40 {
			t.Fatalf("expected amount 40, got %d", settled.Amount)
		}
		visit := engine.vehicles["VIN-1"].LastVisit
		if visit == nil || visit.DurationHours != 5 {
			t.Fatalf("expected recorded visit of 5 hours, got %+v", visit)
		}
	})

	t.Run("explicit departure time overrides the clock", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-1", HourlyRate: 20, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{VIN: "VIN-1", SizeTier: domain.TierSmall})
		svc := makeSvc(engine, arrival.Add(48*time.Hour))

		departure := arrival.Add(time.Hour)
		settled, err := svc.Settle(context.Background(), "inv-1", &departure)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if settled.Amount != 40 {
			t.Fatalf("expected amount 40, got %d", settled.Amount)
		}
	})

	t.Run("already settled", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-1", HourlyRate: 20, Settled: true, Amount: 40, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{VIN: "VIN-1", SizeTier: domain.TierSmall})
		svc := makeSvc(engine, arrival.Add(2*time.Hour))

		_, err := svc.Settle(context.Background(), "inv-1", nil)
		if !errors.Is(err, domain.ErrAlreadySettled) {
			t.Fatalf("expected ErrAlreadySettled, got %v", err)
		}
	})

	t.Run("departure before arrival leaves the session open", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-1", HourlyRate: 20, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{VIN: "VIN-1", SizeTier: domain.TierSmall})
		svc := makeSvc(engine, arrival.Add(2*time.Hour))

		departure := arrival.Add(-time.Minute)
		_, err := svc.Settle(context.Background(), "inv-1", &departure)
		if !errors.Is(err, domain.ErrInvalidEndDate) {
			t.Fatalf("expected ErrInvalidEndDate, got %v", err)
		}
		if !engine.slots["slot-1"].Occupied {
			t.Fatalf("expected slot to stay occupied")
		}
		if engine.invoices["inv-1"].Settled {
			t.Fatalf("expected invoice to stay open")
		}
	})

	t.Run("unknown invoice", func(t *testing.T) {
		engine := newFakeEngine(nil, nil)
		svc := makeSvc(engine, arrival)

		_, err := svc.Settle(context.Background(), "inv-missing", nil)
		if !errors.Is(err, domain.ErrInvoiceNotFound) {
			t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
		}
	})

	t.Run("missing vehicle record", func(t *testing.T) {
		invoice := domain.Invoice{ID: "inv-1", SlotID: "slot-1", VIN: "VIN-ghost", HourlyRate: 20, CreatedAt: arrival}
		engine := seed(invoice, domain.Vehicle{VIN: "VIN-other", SizeTier: domain.TierSmall})
		svc := makeSvc(engine, arrival.Add(2*time.Hour))

		_, err := svc.Settle(context.Background(), "inv-1", nil)
		if !errors.Is(err, domain.ErrVehicleNotFound) {
			t.Fatalf("expected ErrVehicleNotFound, got %v", err)
		}
	})
}

// fakeEngine backs all of the service's collaborators with in-memory maps.
type fakeEngine struct {
	entryPoints map[string]domain.EntryPoint
	slots       map[string]domain.Slot
	vehicles    map[string]domain.Vehicle
	invoices    map[string]domain.Invoice

	reserveErr    error
	reserveCalls  int
	beforeReserve func(slotID string)
}

func newFakeEngine(entryPoints []domain.EntryPoint, slots []domain.Slot) *fakeEngine {
	f := &fakeEngine{
		entryPoints: make(map[string]domain.EntryPoint),
		slots:       make(map[string]domain.Slot),
		vehicles:    make(map[string]domain.Vehicle),
		invoices:    make(map[string]domain.Invoice),
	}
	for _, ep := range entryPoints {
		f.entryPoints[ep.ID] = ep
	}
	for _, slot := range slots {
		f.slots[slot.ID] = slot
	}
	return f
}

func (f *fakeEngine) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeEngine) GetEntryPoint(_ context.Context, id string) (domain.EntryPoint, error) {
	ep, ok := f.entryPoints[id]
	if !ok {
		return domain.EntryPoint{}, domain.ErrEntryPointNotFound
	}
	return ep, nil
}

func (f *fakeEngine) FindNearest(_ context.Context, lotID, entryPointID string, minTier domain.Tier) (*domain.Slot, error) {
	var candidates []domain.Slot
	for _, slot := range f.slots {
		if slot.LotID != lotID || slot.Occupied || !slot.SizeTier.Fits(minTier) {
			continue
		}
		candidates = append(candidates, slot)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := candidates[i].Distance[entryPointID], candidates[j].Distance[entryPointID]
		if di != dj {
			return di < dj
		}
		return candidates[i].SizeTier < candidates[j].SizeTier
	})
	best := candidates[0]
	return &best, nil
}

func (f *fakeEngine) Reserve(_ context.Context, slotID string, at time.Time) error {
	f.reserveCalls++
	if f.reserveErr != nil {
		return f.reserveErr
	}
	if f.beforeReserve != nil {
		f.beforeReserve(slotID)
	}
	slot, ok := f.slots[slotID]
	if !ok {
		return domain.ErrSlotNotFound
	}
	if slot.Occupied {
		return domain.ErrSlotTaken
	}
	slot.Occupied = true
	slot.UpdatedAt = at
	f.slots[slotID] = slot
	return nil
}

func (f *fakeEngine) Release(_ context.Context, slotID string, at time.Time) error {
	slot, ok := f.slots[slotID]
	if !ok {
		return domain.ErrSlotNotFound
	}
	slot.Occupied = false
	slot.UpdatedAt = at
	f.slots[slotID] = slot
	return nil
}

func (f *fakeEngine) Upsert(_ context.Context, vin string, tier domain.Tier, at time.Time) (domain.Vehicle, error) {
	vehicle, ok := f.vehicles[vin]
	if !ok {
		vehicle = domain.Vehicle{VIN: vin, CreatedAt: at}
	}
	vehicle.SizeTier = tier
	vehicle.UpdatedAt = at
	f.vehicles[vin] = vehicle
	return vehicle, nil
}

func (f *fakeEngine) GetByVIN(_ context.Context, vin string) (*domain.Vehicle, error) {
	vehicle, ok := f.vehicles[vin]
	if !ok {
		return nil, nil
	}
	return &vehicle, nil
}

func (f *fakeEngine) RecordVisit(_ context.Context, vin string, visit domain.Visit) error {
	vehicle, ok := f.vehicles[vin]
	if !ok {
		return domain.ErrVehicleNotFound
	}
	vehicle.LastVisit = &visit
	f.vehicles[vin] = vehicle
	return nil
}

func (f *fakeEngine) Create(_ context.Context, invoice domain.Invoice) error {
	f.invoices[invoice.ID] = invoice
	return nil
}

func (f *fakeEngine) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	invoice, ok := f.invoices[id]
	if !ok {
		return nil, nil
	}
	return &invoice, nil
}

func (f *fakeEngine) Settle(_ context.Context, id string, amount int64, at time.Time) (domain.Invoice, error) {
	invoice, ok := f.invoices[id]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	if invoice.Settled {
		return domain.Invoice{}, domain.ErrAlreadySettled
	}
	invoice.Settled = true
	invoice.Amount = amount
	invoice.UpdatedAt = at
	f.invoices[id] = invoice
	return invoice, nil
}
