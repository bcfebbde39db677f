package persistence

import (
	"context"
	"time"
)

// TimeRange represents a time window for data queries.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Invoice represents a client invoice as stored by the CRM.
type Invoice struct {
	ID         int64                  `json:"id" db:"id"`
	UserID     string                 `json:"user_id" db:"user_id"`
	ClientID   int64                  `json:"client_id" db:"client_id"`
	Number     string                 `json:"number" db:"number"`
	Status     string                 `json:"status" db:"status"`
	Amount     float64                `json:"amount" db:"amount"`
	IssuedAt   time.Time              `json:"issued_at" db:"issued_at"`
	PaidAt     *time.Time             `json:"paid_at,omitempty" db:"paid_at"`
	Attributes map[string]interface{} `json:"attributes" db:"attributes"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// InvoiceStatusPaid is the status value counted as realized revenue.
const InvoiceStatusPaid = "paid"

// MonthlyRevenue is one month's paid-invoice total for a user. Month is
// truncated to the first day of the month in UTC.
type MonthlyRevenue struct {
	Month time.Time `json:"month" db:"month"`
	Total float64   `json:"total" db:"total"`
}

// ForecastSnapshot is a stored forecast run, kept for auditability so a
// dashboard number can always be traced back to the model that produced it.
type ForecastSnapshot struct {
	ID           string             `json:"id" db:"id"`
	UserID       string             `json:"user_id" db:"user_id"`
	GeneratedAt  time.Time          `json:"generated_at" db:"generated_at"`
	WindowMonths int                `json:"window_months" db:"window_months"`
	Horizon      int                `json:"horizon" db:"horizon"`
	Degree       int                `json:"degree" db:"degree"`
	Coefficients []float64          `json:"coefficients" db:"coefficients"`
	RSquared     *float64           `json:"r_squared,omitempty" db:"r_squared"`
	Projections  map[string]float64 `json:"projections" db:"projections"`
	Reason       string             `json:"reason,omitempty" db:"reason"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
}

// InvoiceRepo provides read access to invoice data for analytics.
type InvoiceRepo interface {
	// MonthlyPaidRevenue aggregates paid invoices into per-month totals for
	// a user within the time range, ordered by month ascending. Months with
	// no paid invoices are absent from the result.
	MonthlyPaidRevenue(ctx context.Context, userID string, tr TimeRange) ([]MonthlyRevenue, error)

	// ListPaid retrieves paid invoices for a user within the time range,
	// most recent first.
	ListPaid(ctx context.Context, userID string, tr TimeRange, limit int) ([]Invoice, error)

	// CountPaid returns the number of paid invoices in the time range.
	CountPaid(ctx context.Context, userID string, tr TimeRange) (int64, error)

	// ActiveUserIDs returns users with at least one paid invoice in the
	// time range, for scheduled forecast refreshes.
	ActiveUserIDs(ctx context.Context, tr TimeRange) ([]string, error)
}

// ForecastRepo persists forecast snapshots.
type ForecastRepo interface {
	// Insert stores a new forecast snapshot.
	Insert(ctx context.Context, snapshot ForecastSnapshot) error

	// Latest returns the most recent snapshot for a user, or nil when the
	// user has none.
	Latest(ctx context.Context, userID string) (*ForecastSnapshot, error)

	// ListRange retrieves snapshot history for a user within a time window,
	// most recent first.
	ListRange(ctx context.Context, userID string, tr TimeRange, limit int) ([]ForecastSnapshot, error)
}
