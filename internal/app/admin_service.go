package app

import (
	"context"
	"time"

	"github.com/mrcbstmnte/park-n-go/internal/clock"
	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

// LotRepository persists the parking facility layout: lots, their entry
// points, and their slots.
type LotRepository interface {
	CreateLot(ctx context.Context, lot domain.Lot) error
	ListLots(ctx context.Context) ([]domain.Lot, error)
	LotExists(ctx context.Context, lotID string) (bool, error)
	CreateEntryPoint(ctx context.Context, entryPoint domain.EntryPoint) error
	ListEntryPoints(ctx context.Context, lotID string) ([]domain.EntryPoint, error)
	// AddEntryPointDistance extends the distance map of every slot in the
	// lot with a cost for the new entry point.
	AddEntryPointDistance(ctx context.Context, lotID, entryPointID string, distance int, at time.Time) error
	CreateSlots(ctx context.Context, slots []domain.Slot) error
	ListSlots(ctx context.Context, lotID string) ([]domain.Slot, error)
	GetSlot(ctx context.Context, slotID string) (domain.Slot, error)
}

// Existing slots cannot know how far a brand-new entry point is, so they
// all start at the minimum cost; operators adjust afterwards.
const newEntryPointDistance = 1

// AdminService manages lot registration: lots, entry points, and slots.
type AdminService struct {
	tx    Transactor
	repo  LotRepository
	clock clock.Clock
}

func NewAdminService(tx Transactor, repo LotRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		tx:    tx,
		repo:  repo,
		clock: clk,
	}
}

type CreateLotInput struct {
	Name        string
	EntryPoints []string
}

// CreateLot registers a lot together with its named entry points in a
// single transaction.
func (s *AdminService) CreateLot(ctx context.Context, in CreateLotInput) (domain.Lot, []domain.EntryPoint, error) {
	if in.Name == "" {
		return domain.Lot{}, nil, domain.RuleViolation("lot_name_required")
	}
	if len(in.EntryPoints) == 0 {
		return domain.Lot{}, nil, domain.RuleViolation("entry_points_required")
	}
	for _, name := range in.EntryPoints {
		if name == "" {
			return domain.Lot{}, nil, domain.RuleViolation("entry_point_name_required")
		}
	}

	now := s.clock.Now()
	lot := domain.Lot{
		ID:        newID(),
		Name:      in.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	entryPoints := make([]domain.EntryPoint, 0, len(in.EntryPoints))
	for _, name := range in.EntryPoints {
		entryPoints = append(entryPoints, domain.EntryPoint{
			ID:        newID(),
			LotID:     lot.ID,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateLot(txCtx, lot); err != nil {
			return err
		}
		for _, entryPoint := range entryPoints {
			if err := s.repo.CreateEntryPoint(txCtx, entryPoint); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Lot{}, nil, err
	}
	return lot, entryPoints, nil
}

func (s *AdminService) ListLots(ctx context.Context) ([]domain.Lot, error) {
	return s.repo.ListLots(ctx)
}

// AddEntryPoint registers a new entry point for an existing lot and
// extends every slot's distance map with it, atomically.
func (s *AdminService) AddEntryPoint(ctx context.Context, lotID, name string) (domain.EntryPoint, error) {
	if name == "" {
		return domain.EntryPoint{}, domain.RuleViolation("entry_point_name_required")
	}

	exists, err := s.repo.LotExists(ctx, lotID)
	if err != nil {
		return domain.EntryPoint{}, err
	}
	if !exists {
		return domain.EntryPoint{}, domain.ErrLotNotFound
	}

	now := s.clock.Now()
	entryPoint := domain.EntryPoint{
		ID:        newID(),
		LotID:     lotID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateEntryPoint(txCtx, entryPoint); err != nil {
			return err
		}
		return s.repo.AddEntryPointDistance(txCtx, lotID, entryPoint.ID, newEntryPointDistance, now)
	})
	if err != nil {
		return domain.EntryPoint{}, err
	}
	return entryPoint, nil
}

func (s *AdminService) ListEntryPoints(ctx context.Context, lotID string) ([]domain.EntryPoint, error) {
	return s.repo.ListEntryPoints(ctx, lotID)
}

type SlotSpec struct {
	SizeTier domain.Tier
	Distance map[string]int
}

// CreateSlots bulk-registers slots for a lot. Labels are generated here;
// the store enforces their uniqueness.
func (s *AdminService) CreateSlots(ctx context.Context, lotID string, specs []SlotSpec) ([]domain.Slot, error) {
	if len(specs) == 0 {
		return nil, domain.RuleViolation("slots_required")
	}

	exists, err := s.repo.LotExists(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrLotNotFound
	}

	now := s.clock.Now()
	slots := make([]domain.Slot, 0, len(specs))
	for _, spec := range specs {
		distance := spec.Distance
		if distance == nil {
			distance = map[string]int{}
		}
		slots = append(slots, domain.Slot{
			ID:        newID(),
			LotID:     lotID,
			Label:     newSlotLabel(),
			SizeTier:  spec.SizeTier,
			Distance:  distance,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		return s.repo.CreateSlots(txCtx, slots)
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *AdminService) ListSlots(ctx context.Context, lotID string) ([]domain.Slot, error) {
	return s.repo.ListSlots(ctx, lotID)
}

func (s *AdminService) GetSlot(ctx context.Context, slotID string) (domain.Slot, error) {
	return s.repo.GetSlot(ctx, slotID)
}
