package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrcbstmnte/park-n-go/internal/domain"
)

// SlotRepository answers nearest-slot queries and flips occupancy.
type SlotRepository struct {
	pool *pgxpool.Pool
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

func (r *SlotRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// FindNearest picks the vacant slot of at least minTier with the lowest
// distance from the entry point. Ties go to the smaller tier, then the
// label, so the choice is deterministic.
func (r *SlotRepository) FindNearest(ctx context.Context, lotID, entryPointID string, minTier domain.Tier) (*domain.Slot, error) {
	const query = `
SELECT id, lot_id, label, size_tier, distance, occupied, created_at, updated_at
FROM slots
WHERE lot_id = $1 AND NOT occupied AND size_tier >= $2
ORDER BY (distance->>$3)::int ASC NULLS LAST, size_tier ASC, label ASC
LIMIT 1`

	var slot domain.Slot
	err := r.queryRow(ctx, query, lotID, minTier, entryPointID).Scan(
		&slot.ID,
		&slot.LotID,
		&slot.Label,
		&slot.SizeTier,
		&slot.Distance,
		&slot.Occupied,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows || isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find nearest slot: %w", err)
	}
	return &slot, nil
}

// Reserve flips the slot to occupied only if it is still vacant. Losing
// the race surfaces as ErrSlotTaken so the caller can select again.
func (r *SlotRepository) Reserve(ctx context.Context, slotID string, at time.Time) error {
	const stmt = `
UPDATE slots
SET occupied = TRUE, updated_at = $2
WHERE id = $1 AND NOT occupied`

	tag, err := r.exec(ctx, stmt, slotID, at)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlotTaken
	}
	return nil
}

func (r *SlotRepository) Release(ctx context.Context, slotID string, at time.Time) error {
	const stmt = `
UPDATE slots
SET occupied = FALSE, updated_at = $2
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, slotID, at)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (r *SlotRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *SlotRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
