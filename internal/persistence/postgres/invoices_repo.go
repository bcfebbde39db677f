package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/freelanceflow/revcast/internal/persistence"
)

// invoiceRepo implements InvoiceRepo for PostgreSQL
type invoiceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewInvoiceRepo creates a new PostgreSQL invoice repository
func NewInvoiceRepo(db *sqlx.DB, timeout time.Duration) persistence.InvoiceRepo {
	return &invoiceRepo{
		db:      db,
		timeout: timeout,
	}
}

// MonthlyPaidRevenue aggregates paid invoices into per-month totals
func (r *invoiceRepo) MonthlyPaidRevenue(ctx context.Context, userID string, tr persistence.TimeRange) ([]persistence.MonthlyRevenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT date_trunc('month', paid_at AT TIME ZONE 'UTC') AS month,
		       SUM(amount) AS total
		FROM invoices
		WHERE user_id = $1 AND status = $2 AND paid_at >= $3 AND paid_at <= $4
		GROUP BY 1
		ORDER BY 1 ASC`

	var totals []persistence.MonthlyRevenue
	err := r.db.SelectContext(ctx, &totals, query,
		userID, persistence.InvoiceStatusPaid, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly revenue: %w", err)
	}

	return totals, nil
}

// ListPaid retrieves paid invoices for a user within time range
func (r *invoiceRepo) ListPaid(ctx context.Context, userID string, tr persistence.TimeRange, limit int) ([]persistence.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, user_id, client_id, number, status, amount, issued_at, paid_at, attributes, created_at
		FROM invoices
		WHERE user_id = $1 AND status = $2 AND paid_at >= $3 AND paid_at <= $4
		ORDER BY paid_at DESC
		LIMIT $5`

	rows, err := r.db.QueryxContext(ctx, query,
		userID, persistence.InvoiceStatusPaid, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query paid invoices: %w", err)
	}
	defer rows.Close()

	return r.scanInvoices(rows)
}

// CountPaid returns the number of paid invoices in time range
func (r *invoiceRepo) CountPaid(ctx context.Context, userID string, tr persistence.TimeRange) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM invoices
		WHERE user_id = $1 AND status = $2 AND paid_at >= $3 AND paid_at <= $4`

	var count int64
	err := r.db.GetContext(ctx, &count, query,
		userID, persistence.InvoiceStatusPaid, tr.From, tr.To)
	if err != nil {
		return 0, fmt.Errorf("failed to count paid invoices: %w", err)
	}

	return count, nil
}

// ActiveUserIDs returns users with at least one paid invoice in time range
func (r *invoiceRepo) ActiveUserIDs(ctx context.Context, tr persistence.TimeRange) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT DISTINCT user_id
		FROM invoices
		WHERE status = $1 AND paid_at >= $2 AND paid_at <= $3
		ORDER BY user_id`

	var userIDs []string
	err := r.db.SelectContext(ctx, &userIDs, query,
		persistence.InvoiceStatusPaid, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}

	return userIDs, nil
}

// scanInvoices converts database rows to Invoice structs
func (r *invoiceRepo) scanInvoices(rows *sqlx.Rows) ([]persistence.Invoice, error) {
	var invoices []persistence.Invoice

	for rows.Next() {
		var inv persistence.Invoice
		var attributesJSON []byte
		var paidAt sql.NullTime

		err := rows.Scan(&inv.ID, &inv.UserID, &inv.ClientID, &inv.Number,
			&inv.Status, &inv.Amount, &inv.IssuedAt, &paidAt,
			&attributesJSON, &inv.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}

		if paidAt.Valid {
			t := paidAt.Time
			inv.PaidAt = &t
		}
		if len(attributesJSON) > 0 {
			if err := unmarshalAttributes(attributesJSON, &inv.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal invoice attributes: %w", err)
			}
		}

		invoices = append(invoices, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}

	return invoices, nil
}
