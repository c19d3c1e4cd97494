package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrcbstmnte/park-n-go/internal/domain"
	"github.com/mrcbstmnte/park-n-go/internal/testutil"
)

func TestSlotRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewSlotRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("FindNearest picks the closest vacant slot that fits", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		lotID, epID := testutil.InsertLotWithEntryPoint(t, ctx, pool, "Mega Tower", "north")

		testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "A1", SizeTier: domain.TierSmall, Distance: map[string]int{epID: 1}, Occupied: true,
		})
		testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "A2", SizeTier: domain.TierSmall, Distance: map[string]int{epID: 3},
		})
		nearVacant := testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "A3", SizeTier: domain.TierMedium, Distance: map[string]int{epID: 2},
		})

		slot, err := repo.FindNearest(ctx, lotID, epID, domain.TierSmall)
		if err != nil {
			t.Fatalf("find nearest: %v", err)
		}
		if slot == nil || slot.ID != nearVacant {
			t.Fatalf("expected slot %s, got %+v", nearVacant, slot)
		}
	})

	t.Run("FindNearest skips slots below the vehicle tier", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		lotID, epID := testutil.InsertLotWithEntryPoint(t, ctx, pool, "Mega Tower", "north")

		testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "S1", SizeTier: domain.TierSmall, Distance: map[string]int{epID: 1},
		})
		largeID := testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "L1", SizeTier: domain.TierLarge, Distance: map[string]int{epID: 5},
		})

		slot, err := repo.FindNearest(ctx, lotID, epID, domain.TierLarge)
		if err != nil {
			t.Fatalf("find nearest: %v", err)
		}
		if slot == nil || slot.ID != largeID {
			t.Fatalf("expected slot %s, got %+v", largeID, slot)
		}
	})

	t.Run("FindNearest breaks distance ties on the smaller tier", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		lotID, epID := testutil.InsertLotWithEntryPoint(t, ctx, pool, "Mega Tower", "north")

		testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "L1", SizeTier: domain.TierLarge, Distance: map[string]int{epID: 1},
		})
		mediumID := testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "M1", SizeTier: domain.TierMedium, Distance: map[string]int{epID: 1},
		})

		slot, err := repo.FindNearest(ctx, lotID, epID, domain.TierSmall)
		if err != nil {
			t.Fatalf("find nearest: %v", err)
		}
		if slot == nil || slot.ID != mediumID {
			t.Fatalf("expected slot %s, got %+v", mediumID, slot)
		}
	})

	t.Run("FindNearest returns nil when nothing qualifies", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		lotID, epID := testutil.InsertLotWithEntryPoint(t, ctx, pool, "Mega Tower", "north")

		testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "S1", SizeTier: domain.TierSmall, Distance: map[string]int{epID: 1}, Occupied: true,
		})

		slot, err := repo.FindNearest(ctx, lotID, epID, domain.TierSmall)
		if err != nil {
			t.Fatalf("find nearest: %v", err)
		}
		if slot != nil {
			t.Fatalf("expected nil, got %+v", slot)
		}
	})

	t.Run("Reserve is first-writer-wins", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		lotID, epID := testutil.InsertLotWithEntryPoint(t, ctx, pool, "Mega Tower", "north")
		slotID := testutil.InsertSlot(t, ctx, pool, lotID, domain.Slot{
			Label: "A1", SizeTier: domain.TierSmall, Distance: map[string]int{epID: 1},
		})
		now := time.Now().UTC()

		if err := repo.Reserve(ctx, slotID, now); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := repo.Reserve(ctx, slotID, now); !errors.Is(err, domain.ErrSlotTaken) {
			t.Fatalf("expected ErrSlotTaken, got %v", err)
		}

		if err := repo.Release(ctx, slotID, now); err != nil {
			t.Fatalf("release: %v", err)
		}
		if err := repo.Reserve(ctx, slotID, now); err != nil {
			t.Fatalf("reserve after release: %v", err)
		}
	})

	t.Run("Release unknown slot", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		err := repo.Release(ctx, "00000000-0000-0000-0000-000000000001", time.Now().UTC())
		if !errors.Is(err, domain.ErrSlotNotFound) {
			t.Fatalf("expected ErrSlotNotFound, got %v", err)
		}
	})
}
