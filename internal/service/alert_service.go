package service

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/chain-portfolio/internal/errors"
	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/metrics"
	"github.com/chain-portfolio/internal/models"
	"github.com/chain-portfolio/internal/pricing"
	"github.com/chain-portfolio/internal/storage"
	"github.com/chain-portfolio/internal/types"
)

// DefaultAlertCooldown is the minimum time between two triggers of one alert
const DefaultAlertCooldown = 60 * time.Minute

// AlertRepository interface for alert data operations
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	Get(ctx context.Context, userID, id string) (*models.Alert, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Alert, error)
	ListEnabledByUser(ctx context.Context, userID string) ([]*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, userID, id string) error
}

// AlertNotifier delivers a triggered alert to its owner
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, to string, alert *models.Alert, price float64) error
}

// AlertService manages price alerts and evaluates them
type AlertService struct {
	repo     AlertRepository
	prices   PriceResolver
	notifier AlertNotifier
	cooldown time.Duration
	now      func() time.Time
}

// NewAlertService creates a new alert service. notifier may be nil, in
// which case triggered alerts are recorded without an email.
func NewAlertService(repo AlertRepository, prices PriceResolver, notifier AlertNotifier, cooldown time.Duration) *AlertService {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	return &AlertService{
		repo:     repo,
		prices:   prices,
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// CreateAlertInput represents input for creating an alert
type CreateAlertInput struct {
	Type      string  `json:"type" validate:"omitempty,oneof=price percent_change"`
	Asset     string  `json:"asset" validate:"required,max=32"`
	Condition string  `json:"condition" validate:"required,oneof=above below"`
	Threshold float64 `json:"threshold" validate:"gt=0"`
}

// UpdateAlertInput represents a partial alert update
type UpdateAlertInput struct {
	ID        string   `json:"id" validate:"required"`
	Enabled   *bool    `json:"enabled,omitempty"`
	Threshold *float64 `json:"threshold,omitempty" validate:"omitempty,gt=0"`
	Condition *string  `json:"condition,omitempty" validate:"omitempty,oneof=above below"`
	Asset     *string  `json:"asset,omitempty" validate:"omitempty,max=32"`
}

// CheckResult summarizes one evaluation pass
type CheckResult struct {
	Checked         int              `json:"checked"`
	Triggered       int              `json:"triggered"`
	TriggeredIDs    []string         `json:"triggeredIds"`
	TriggeredAlerts []TriggeredAlert `json:"triggeredAlerts"`
}

// TriggeredAlert is one alert that fired during a pass
type TriggeredAlert struct {
	ID        string                `json:"id"`
	Asset     string                `json:"asset"`
	Condition models.AlertCondition `json:"condition"`
	Threshold float64               `json:"threshold"`
	Price     float64               `json:"price"`
	Notified  bool                  `json:"notified"`
}

// List returns the user's alerts, newest first
func (s *AlertService) List(ctx context.Context, userID string) ([]*models.Alert, error) {
	alerts, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, databaseError("failed to list alerts", err)
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	return alerts, nil
}

// Create stores a new enabled alert. percent_change alerts are accepted
// but never fire.
func (s *AlertService) Create(ctx context.Context, userID string, input CreateAlertInput) (*models.Alert, error) {
	alertType := models.AlertType(strings.ToLower(strings.TrimSpace(input.Type)))
	if alertType == "" {
		alertType = models.AlertTypePrice
	}
	if alertType != models.AlertTypePrice && alertType != models.AlertTypePercentChange {
		return nil, invalidAlertField("type", input.Type)
	}
	condition, ok := parseCondition(input.Condition)
	if !ok {
		return nil, invalidAlertField("condition", input.Condition)
	}
	asset, err := alertAsset(input.Asset)
	if err != nil {
		return nil, err
	}
	if input.Threshold <= 0 {
		return nil, invalidAlertField("threshold", input.Threshold)
	}

	alert := &models.Alert{
		UserID:    userID,
		Type:      alertType,
		Asset:     asset,
		Condition: condition,
		Threshold: input.Threshold,
		Enabled:   true,
	}
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, databaseError("failed to create alert", err)
	}
	return alert, nil
}

// Update applies a partial update to one of the user's alerts. Changing
// the asset, condition or threshold re-arms the alert.
func (s *AlertService) Update(ctx context.Context, userID string, input UpdateAlertInput) (*models.Alert, error) {
	alert, err := s.get(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	rearm := false
	if input.Asset != nil {
		asset, err := alertAsset(*input.Asset)
		if err != nil {
			return nil, err
		}
		rearm = rearm || asset != alert.Asset
		alert.Asset = asset
	}
	if input.Condition != nil {
		condition, ok := parseCondition(*input.Condition)
		if !ok {
			return nil, invalidAlertField("condition", *input.Condition)
		}
		rearm = rearm || condition != alert.Condition
		alert.Condition = condition
	}
	if input.Threshold != nil {
		if *input.Threshold <= 0 {
			return nil, invalidAlertField("threshold", *input.Threshold)
		}
		rearm = rearm || *input.Threshold != alert.Threshold
		alert.Threshold = *input.Threshold
	}
	if input.Enabled != nil {
		alert.Enabled = *input.Enabled
	}
	if rearm {
		alert.Triggered = false
	}

	if err := s.repo.Update(ctx, alert); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, alertNotFound()
		}
		return nil, databaseError("failed to update alert", err)
	}
	return alert, nil
}

// Delete removes one of the user's alerts
func (s *AlertService) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return &types.ServiceError{Code: types.ErrCodeInvalidInput, Message: "id is required"}
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return alertNotFound()
		}
		return databaseError("failed to delete alert", err)
	}
	return nil
}

// CheckAlerts evaluates every enabled alert of userID once. Alerts are
// handled one at a time; each fired alert is persisted before its
// notification is attempted, and a failed notification does not undo it.
func (s *AlertService) CheckAlerts(ctx context.Context, userID, email string) (*CheckResult, error) {
	alerts, err := s.repo.ListEnabledByUser(ctx, userID)
	if err != nil {
		return nil, databaseError("failed to load alerts", err)
	}

	result := &CheckResult{
		Checked:         len(alerts),
		TriggeredIDs:    []string{},
		TriggeredAlerts: []TriggeredAlert{},
	}

	now := s.now().UTC()
	var eligible []*models.Alert
	var symbols []string
	seen := make(map[string]bool)
	for _, a := range alerts {
		if a.Type != models.AlertTypePrice || a.RecentlyTriggered(now, s.cooldown) {
			continue
		}
		eligible = append(eligible, a)
		if sym := strings.ToUpper(a.Asset); !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if len(eligible) == 0 {
		return result, nil
	}

	quotes := s.prices.BySymbol(ctx, symbols)
	logger := logging.FromContext(ctx).WithField("user_id", userID)

	for _, a := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q, ok := quotes[strings.ToUpper(a.Asset)]
		if !ok || q.Price <= 0 {
			logger.WithField("asset", a.Asset).Debug("no price for alert asset")
			continue
		}
		if !a.Satisfied(q.Price) {
			continue
		}

		if err := s.repo.MarkTriggered(ctx, a.ID, now); err != nil {
			logger.WithField("alert_id", a.ID).WithError(err).Error("failed to mark alert triggered")
			continue
		}
		a.Triggered = true
		a.LastTriggered = &now
		metrics.AlertsTriggered.WithLabelValues(strings.ToUpper(a.Asset)).Inc()

		fired := TriggeredAlert{
			ID:        a.ID,
			Asset:     a.Asset,
			Condition: a.Condition,
			Threshold: a.Threshold,
			Price:     q.Price,
			Notified:  s.notify(ctx, email, a, q.Price),
		}
		result.Triggered++
		result.TriggeredIDs = append(result.TriggeredIDs, a.ID)
		result.TriggeredAlerts = append(result.TriggeredAlerts, fired)
	}

	return result, nil
}

// notify sends the alert email and reports whether it was delivered
func (s *AlertService) notify(ctx context.Context, to string, a *models.Alert, price float64) bool {
	if s.notifier == nil || to == "" {
		metrics.AlertNotifications.WithLabelValues("skipped").Inc()
		return false
	}
	if err := s.notifier.NotifyAlert(ctx, to, a, price); err != nil {
		metrics.AlertNotifications.WithLabelValues("failed").Inc()
		logging.FromContext(ctx).WithField("alert_id", a.ID).WithError(err).Warn("alert notification failed")
		return false
	}
	metrics.AlertNotifications.WithLabelValues("sent").Inc()
	return true
}

func (s *AlertService) get(ctx context.Context, userID, id string) (*models.Alert, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &types.ServiceError{Code: types.ErrCodeInvalidInput, Message: "id is required"}
	}
	alert, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, alertNotFound()
		}
		return nil, databaseError("failed to load alert", err)
	}
	return alert, nil
}

func parseCondition(s string) (models.AlertCondition, bool) {
	switch models.AlertCondition(strings.ToLower(strings.TrimSpace(s))) {
	case models.ConditionAbove:
		return models.ConditionAbove, true
	case models.ConditionBelow:
		return models.ConditionBelow, true
	default:
		return "", false
	}
}

// alertAsset normalizes an alert's asset symbol. Only symbols with a
// price feed are accepted; any other alert could never trigger.
func alertAsset(raw string) (string, error) {
	asset := strings.ToUpper(strings.TrimSpace(raw))
	if asset == "" {
		return "", &types.ServiceError{Code: types.ErrCodeInvalidInput, Message: "asset is required"}
	}
	if _, ok := pricing.CoinGeckoID(asset); !ok {
		return "", apperrors.NewNoPriceFeedError(asset)
	}
	return asset, nil
}

func invalidAlertField(field string, value interface{}) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeInvalidInput,
		Message: "invalid alert " + field,
		Details: map[string]interface{}{field: value},
	}
}

func alertNotFound() *types.ServiceError {
	return apperrors.NewAlertNotFoundError()
}
