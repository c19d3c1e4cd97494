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

// VehicleRepository keys vehicles by VIN and keeps their last settled visit.
type VehicleRepository struct {
	pool *pgxpool.Pool
}

func NewVehicleRepository(pool *pgxpool.Pool) *VehicleRepository {
	return &VehicleRepository{pool: pool}
}

func (r *VehicleRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// Upsert inserts or refreshes the vehicle row without touching the
// last-visit columns, and returns the row as it stands afterwards. The
// returned visit therefore belongs to the previous settlement.
func (r *VehicleRepository) Upsert(ctx context.Context, vin string, tier domain.Tier, at time.Time) (domain.Vehicle, error) {
	const stmt = `
INSERT INTO vehicles (vin, size_tier, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (vin) DO UPDATE
SET size_tier = EXCLUDED.size_tier, updated_at = EXCLUDED.updated_at
RETURNING vin, size_tier, last_visit_hours, last_visit_departed_at, created_at, updated_at`

	var v domain.Vehicle
	var hours *int64
	var departedAt *time.Time
	err := r.queryRow(ctx, stmt, vin, tier, at).
		Scan(&v.VIN, &v.SizeTier, &hours, &departedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("upsert vehicle: %w", err)
	}
	if hours != nil && departedAt != nil {
		v.LastVisit = &domain.Visit{DurationHours: *hours, DepartedAt: *departedAt}
	}
	return v, nil
}

func (r *VehicleRepository) GetByVIN(ctx context.Context, vin string) (*domain.Vehicle, error) {
	const query = `
SELECT vin, size_tier, last_visit_hours, last_visit_departed_at, created_at, updated_at
FROM vehicles
WHERE vin = $1`

	var v domain.Vehicle
	var hours *int64
	var departedAt *time.Time
	err := r.queryRow(ctx, query, vin).
		Scan(&v.VIN, &v.SizeTier, &hours, &departedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	if hours != nil && departedAt != nil {
		v.LastVisit = &domain.Visit{DurationHours: *hours, DepartedAt: *departedAt}
	}
	return &v, nil
}

func (r *VehicleRepository) RecordVisit(ctx context.Context, vin string, visit domain.Visit) error {
	const stmt = `
UPDATE vehicles
SET last_visit_hours = $2, last_visit_departed_at = $3, updated_at = $3
WHERE vin = $1`

	tag, err := r.exec(ctx, stmt, vin, visit.DurationHours, visit.DepartedAt)
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVehicleNotFound
	}
	return nil
}

func (r *VehicleRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *VehicleRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
