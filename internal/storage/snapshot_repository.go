package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/types"
)

// SnapshotRepository handles hourly snapshots and daily rollups
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create appends an hourly snapshot
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.PortfolioSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	byChain, err := json.Marshal(snapshot.ValueByChain)
	if err != nil {
		return fmt.Errorf("failed to marshal value by chain: %w", err)
	}

	query := `
		INSERT INTO portfolio_snapshots (id, user_id, total_value, value_by_chain, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		snapshot.ID,
		snapshot.UserID,
		snapshot.TotalValue,
		byChain,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// UpsertDaily folds a value into the day's open/close/high/low row.
// The first value of the day sets open; every later value moves close.
func (r *SnapshotRepository) UpsertDaily(ctx context.Context, userID string, day time.Time, value float64) error {
	query := `
		INSERT INTO portfolio_daily (user_id, date, open_value, close_value, high_value, low_value, updated_at)
		VALUES ($1, $2, $3, $3, $3, $3, NOW())
		ON CONFLICT (user_id, date)
		DO UPDATE SET
			close_value = EXCLUDED.close_value,
			high_value = GREATEST(portfolio_daily.high_value, EXCLUDED.high_value),
			low_value = LEAST(portfolio_daily.low_value, EXCLUDED.low_value),
			updated_at = NOW()
	`

	date := day.UTC().Truncate(24 * time.Hour)
	if _, err := r.db.Pool().Exec(ctx, query, userID, date, value); err != nil {
		return fmt.Errorf("failed to upsert daily rollup: %w", err)
	}

	return nil
}

// ListSnapshots returns a user's hourly snapshots since the given time
func (r *SnapshotRepository) ListSnapshots(ctx context.Context, userID string, since time.Time) ([]*models.PortfolioSnapshot, error) {
	query := `
		SELECT id, user_id, total_value, value_by_chain, created_at
		FROM portfolio_snapshots
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*models.PortfolioSnapshot, 0)
	for rows.Next() {
		var s models.PortfolioSnapshot
		var byChain []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.TotalValue, &byChain, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.ValueByChain = make(map[types.ChainID]float64)
		if len(byChain) > 0 {
			if err := json.Unmarshal(byChain, &s.ValueByChain); err != nil {
				return nil, fmt.Errorf("failed to unmarshal value by chain: %w", err)
			}
		}
		snapshots = append(snapshots, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// ListDaily returns a user's daily rollups since the given date
func (r *SnapshotRepository) ListDaily(ctx context.Context, userID string, since time.Time) ([]*models.PortfolioDaily, error) {
	query := `
		SELECT user_id, date, open_value, close_value, high_value, low_value, updated_at
		FROM portfolio_daily
		WHERE user_id = $1 AND date >= $2
		ORDER BY date ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, since.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily rollups: %w", err)
	}
	defer rows.Close()

	days := make([]*models.PortfolioDaily, 0)
	for rows.Next() {
		var d models.PortfolioDaily
		if err := rows.Scan(&d.UserID, &d.Date, &d.OpenValue, &d.CloseValue, &d.HighValue, &d.LowValue, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily rollup: %w", err)
		}
		days = append(days, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily rollups: %w", err)
	}

	return days, nil
}
