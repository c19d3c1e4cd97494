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

// LotRepository stores the facility layout: lots, entry points and slots.
type LotRepository struct {
	pool *pgxpool.Pool
}

func NewLotRepository(pool *pgxpool.Pool) *LotRepository {
	return &LotRepository{pool: pool}
}

func (r *LotRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *LotRepository) CreateLot(ctx context.Context, lot domain.Lot) error {
	const stmt = `
INSERT INTO lots (id, name, created_at, updated_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.exec(ctx, stmt, lot.ID, lot.Name, lot.CreatedAt, lot.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.DuplicateKey("lot_name")
		}
		return fmt.Errorf("create lot: %w", err)
	}
	return nil
}

func (r *LotRepository) ListLots(ctx context.Context) ([]domain.Lot, error) {
	const query = `
SELECT id, name, created_at, updated_at
FROM lots
ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var lots []domain.Lot
	for rows.Next() {
		var lot domain.Lot
		if err := rows.Scan(&lot.ID, &lot.Name, &lot.CreatedAt, &lot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate lots: %w", rows.Err())
	}
	return lots, nil
}

func (r *LotRepository) LotExists(ctx context.Context, lotID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM lots WHERE id = $1)`
	var exists bool
	if err := r.queryRow(ctx, query, lotID).Scan(&exists); err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, fmt.Errorf("check lot: %w", err)
	}
	return exists, nil
}

func (r *LotRepository) CreateEntryPoint(ctx context.Context, entryPoint domain.EntryPoint) error {
	const stmt = `
INSERT INTO entry_points (id, lot_id, name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.exec(ctx, stmt,
		entryPoint.ID,
		entryPoint.LotID,
		entryPoint.Name,
		entryPoint.CreatedAt,
		entryPoint.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.DuplicateKey("entry_point_name")
		}
		if isForeignKeyViolation(err) {
			return domain.ErrLotNotFound
		}
		return fmt.Errorf("create entry point: %w", err)
	}
	return nil
}

func (r *LotRepository) GetEntryPoint(ctx context.Context, id string) (domain.EntryPoint, error) {
	const query = `
SELECT id, lot_id, name, created_at, updated_at
FROM entry_points
WHERE id = $1`
	var ep domain.EntryPoint
	err := r.queryRow(ctx, query, id).
		Scan(&ep.ID, &ep.LotID, &ep.Name, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows || isInvalidUUID(err) {
			return domain.EntryPoint{}, domain.ErrEntryPointNotFound
		}
		return domain.EntryPoint{}, fmt.Errorf("get entry point: %w", err)
	}
	return ep, nil
}

func (r *LotRepository) ListEntryPoints(ctx context.Context, lotID string) ([]domain.EntryPoint, error) {
	exists, err := r.LotExists(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrLotNotFound
	}

	const query = `
SELECT id, lot_id, name, created_at, updated_at
FROM entry_points
WHERE lot_id = $1
ORDER BY created_at ASC, name ASC`
	rows, err := r.pool.Query(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("list entry points: %w", err)
	}
	defer rows.Close()

	var entryPoints []domain.EntryPoint
	for rows.Next() {
		var ep domain.EntryPoint
		if err := rows.Scan(&ep.ID, &ep.LotID, &ep.Name, &ep.CreatedAt, &ep.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entry point: %w", err)
		}
		entryPoints = append(entryPoints, ep)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate entry points: %w", rows.Err())
	}
	return entryPoints, nil
}

// AddEntryPointDistance stamps a cost for the entry point into the distance
// map of every slot in the lot.
func (r *LotRepository) AddEntryPointDistance(ctx context.Context, lotID, entryPointID string, distance int, at time.Time) error {
	const stmt = `
UPDATE slots
SET distance = jsonb_set(distance, ARRAY[$2], to_jsonb($3::int), true),
    updated_at = $4
WHERE lot_id = $1`
	_, err := r.exec(ctx, stmt, lotID, entryPointID, distance, at)
	if err != nil {
		return fmt.Errorf("add entry point distance: %w", err)
	}
	return nil
}

func (r *LotRepository) CreateSlots(ctx context.Context, slots []domain.Slot) error {
	const stmt = `
INSERT INTO slots (id, lot_id, label, size_tier, distance, occupied, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, slot := range slots {
		_, err := r.exec(ctx, stmt,
			slot.ID,
			slot.LotID,
			slot.Label,
			slot.SizeTier,
			slot.Distance,
			slot.Occupied,
			slot.CreatedAt,
			slot.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.DuplicateKey("slot_label")
			}
			if isForeignKeyViolation(err) {
				return domain.ErrLotNotFound
			}
			return fmt.Errorf("create slot: %w", err)
		}
	}
	return nil
}

func (r *LotRepository) ListSlots(ctx context.Context, lotID string) ([]domain.Slot, error) {
	exists, err := r.LotExists(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrLotNotFound
	}

	const query = `
SELECT id, lot_id, label, size_tier, distance, occupied, created_at, updated_at
FROM slots
WHERE lot_id = $1
ORDER BY label ASC`
	rows, err := r.pool.Query(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		var slot domain.Slot
		if err := rows.Scan(
			&slot.ID,
			&slot.LotID,
			&slot.Label,
			&slot.SizeTier,
			&slot.Distance,
			&slot.Occupied,
			&slot.CreatedAt,
			&slot.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate slots: %w", rows.Err())
	}
	return slots, nil
}

func (r *LotRepository) GetSlot(ctx context.Context, slotID string) (domain.Slot, error) {
	const query = `
SELECT id, lot_id, label, size_tier, distance, occupied, created_at, updated_at
FROM slots
WHERE id = $1`
	var slot domain.Slot
	err := r.queryRow(ctx, query, slotID).Scan(
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
			return domain.Slot{}, domain.ErrSlotNotFound
		}
		return domain.Slot{}, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

func (r *LotRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *LotRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
