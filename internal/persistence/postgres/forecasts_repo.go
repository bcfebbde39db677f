package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/freelanceflow/revcast/internal/persistence"
)

// forecastRepo implements ForecastRepo for PostgreSQL
type forecastRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewForecastRepo creates a new PostgreSQL forecast snapshot repository
func NewForecastRepo(db *sqlx.DB, timeout time.Duration) persistence.ForecastRepo {
	return &forecastRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert stores a new forecast snapshot
func (r *forecastRepo) Insert(ctx context.Context, snapshot persistence.ForecastSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	projectionsJSON, err := json.Marshal(snapshot.Projections)
	if err != nil {
		return fmt.Errorf("failed to marshal projections: %w", err)
	}

	var rSquared sql.NullFloat64
	if snapshot.RSquared != nil {
		rSquared = sql.NullFloat64{Float64: *snapshot.RSquared, Valid: true}
	}

	query := `
		INSERT INTO forecast_snapshots
			(id, user_id, generated_at, window_months, horizon, degree, coefficients, r_squared, projections, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		snapshot.ID, snapshot.UserID, snapshot.GeneratedAt,
		snapshot.WindowMonths, snapshot.Horizon, snapshot.Degree,
		pq.Array(snapshot.Coefficients), rSquared, projectionsJSON, snapshot.Reason)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate forecast snapshot %s: %w", snapshot.ID, err)
		}
		return fmt.Errorf("failed to insert forecast snapshot: %w", err)
	}

	return nil
}

// Latest returns the most recent snapshot for a user
func (r *forecastRepo) Latest(ctx context.Context, userID string) (*persistence.ForecastSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, user_id, generated_at, window_months, horizon, degree, coefficients, r_squared, projections, reason, created_at
		FROM forecast_snapshots
		WHERE user_id = $1
		ORDER BY generated_at DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, userID)

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	return snapshot, nil
}

// ListRange retrieves snapshot history for a user within a time window
func (r *forecastRepo) ListRange(ctx context.Context, userID string, tr persistence.TimeRange, limit int) ([]persistence.ForecastSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, user_id, generated_at, window_months, horizon, degree, coefficients, r_squared, projections, reason, created_at
		FROM forecast_snapshots
		WHERE user_id = $1 AND generated_at >= $2 AND generated_at <= $3
		ORDER BY generated_at DESC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, userID, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var snapshots []persistence.ForecastSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, *snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return snapshots, nil
}

// rowScanner abstracts sqlx.Row and sqlx.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSnapshot converts a database row to a ForecastSnapshot
func scanSnapshot(row rowScanner) (*persistence.ForecastSnapshot, error) {
	var snapshot persistence.ForecastSnapshot
	var coefficients pq.Float64Array
	var rSquared sql.NullFloat64
	var projectionsJSON []byte

	err := row.Scan(&snapshot.ID, &snapshot.UserID, &snapshot.GeneratedAt,
		&snapshot.WindowMonths, &snapshot.Horizon, &snapshot.Degree,
		&coefficients, &rSquared, &projectionsJSON, &snapshot.Reason,
		&snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}

	snapshot.Coefficients = []float64(coefficients)
	if rSquared.Valid {
		v := rSquared.Float64
		snapshot.RSquared = &v
	}
	if len(projectionsJSON) > 0 {
		if err := json.Unmarshal(projectionsJSON, &snapshot.Projections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal projections: %w", err)
		}
	}

	return &snapshot, nil
}

// unmarshalAttributes decodes a JSONB attributes column
func unmarshalAttributes(data []byte, dest *map[string]interface{}) error {
	return json.Unmarshal(data, dest)
}
