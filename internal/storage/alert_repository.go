package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chain-portfolio/internal/models"
)

// AlertRepository persists user price alerts
type AlertRepository struct {
	db *PostgresDB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *PostgresDB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, user_id, type, asset, condition, threshold, enabled, triggered, last_triggered, created_at, updated_at`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	var alertType, condition string
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&alertType,
		&a.Asset,
		&condition,
		&a.Threshold,
		&a.Enabled,
		&a.Triggered,
		&a.LastTriggered,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Type = models.AlertType(alertType)
	a.Condition = models.AlertCondition(condition)
	return &a, nil
}

// Create inserts a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		alert.ID,
		alert.UserID,
		alert.Type,
		alert.Asset,
		alert.Condition,
		alert.Threshold,
		alert.Enabled,
		alert.Triggered,
		alert.LastTriggered,
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Get returns one alert owned by userID
func (r *AlertRepository) Get(ctx context.Context, userID, id string) (*models.Alert, error) {
	row := r.db.Pool().QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1 AND user_id = $2`, id, userID)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// ListByUser returns every alert owned by userID, newest first
func (r *AlertRepository) ListByUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	return r.list(ctx, `SELECT `+alertColumns+` FROM alerts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListEnabledByUser returns the enabled alerts owned by userID, oldest first
func (r *AlertRepository) ListEnabledByUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	return r.list(ctx, `SELECT `+alertColumns+` FROM alerts WHERE user_id = $1 AND enabled ORDER BY created_at ASC`, userID)
}

func (r *AlertRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// Update saves the editable fields of an alert
func (r *AlertRepository) Update(ctx context.Context, alert *models.Alert) error {
	alert.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE alerts
		SET asset = $3, condition = $4, threshold = $5, enabled = $6, triggered = $7, updated_at = $8
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		alert.ID,
		alert.UserID,
		alert.Asset,
		alert.Condition,
		alert.Threshold,
		alert.Enabled,
		alert.Triggered,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTriggered flags the alert as fired at the given time
func (r *AlertRepository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE alerts SET triggered = TRUE, last_triggered = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an alert owned by userID
func (r *AlertRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM alerts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
