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

type InvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

func (r *InvoiceRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice domain.Invoice) error {
	const stmt = `
INSERT INTO invoices (id, slot_id, vin, hourly_rate, is_continuous, amount, settled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		invoice.ID,
		invoice.SlotID,
		invoice.VIN,
		invoice.HourlyRate,
		invoice.IsContinuous,
		invoice.Amount,
		invoice.Settled,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.DuplicateKey("invoice_id")
		}
		if isForeignKeyViolation(err) {
			return domain.ErrSlotNotFound
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	const query = `
SELECT id, slot_id, vin, hourly_rate, is_continuous, amount, settled, created_at, updated_at
FROM invoices
WHERE id = $1`

	var inv domain.Invoice
	err := r.queryRow(ctx, query, id).Scan(
		&inv.ID,
		&inv.SlotID,
		&inv.VIN,
		&inv.HourlyRate,
		&inv.IsContinuous,
		&inv.Amount,
		&inv.Settled,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows || isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

// Settle marks the invoice settled with its final amount. The guard on
// settled makes the transition single-shot even under concurrent calls.
func (r *InvoiceRepository) Settle(ctx context.Context, id string, amount int64, at time.Time) (domain.Invoice, error) {
	const stmt = `
UPDATE invoices
SET settled = TRUE, amount = $2, updated_at = $3
WHERE id = $1 AND NOT settled
RETURNING id, slot_id, vin, hourly_rate, is_continuous, amount, settled, created_at, updated_at`

	var inv domain.Invoice
	err := r.queryRow(ctx, stmt, id, amount, at).Scan(
		&inv.ID,
		&inv.SlotID,
		&inv.VIN,
		&inv.HourlyRate,
		&inv.IsContinuous,
		&inv.Amount,
		&inv.Settled,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Invoice{}, domain.ErrAlreadySettled
		}
		return domain.Invoice{}, fmt.Errorf("settle invoice: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *InvoiceRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
