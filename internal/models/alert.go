package models

import (
	"time"
)

// AlertType is the kind of condition an alert watches
type AlertType string

const (
	// AlertTypePrice compares the asset's USD price against the threshold
	AlertTypePrice AlertType = "price"
	// AlertTypePercentChange is accepted at creation but never evaluated
	AlertTypePercentChange AlertType = "percent_change"
)

// AlertCondition is the comparison direction
type AlertCondition string

const (
	ConditionAbove AlertCondition = "above"
	ConditionBelow AlertCondition = "below"
)

// Alert is a user-owned price alert
type Alert struct {
	ID            string         `json:"id" db:"id"`
	UserID        string         `json:"userId" db:"user_id"`
	Type          AlertType      `json:"type" db:"type"`
	Asset         string         `json:"asset" db:"asset"`
	Condition     AlertCondition `json:"condition" db:"condition"`
	Threshold     float64        `json:"threshold" db:"threshold"`
	Enabled       bool           `json:"enabled" db:"enabled"`
	Triggered     bool           `json:"triggered" db:"triggered"`
	LastTriggered *time.Time     `json:"lastTriggered,omitempty" db:"last_triggered"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" db:"updated_at"`
}

// RecentlyTriggered reports whether the alert fired within cooldown of now
func (a *Alert) RecentlyTriggered(now time.Time, cooldown time.Duration) bool {
	if a.LastTriggered == nil {
		return false
	}
	return now.Sub(*a.LastTriggered) < cooldown
}

// Satisfied reports whether price meets the alert's condition
func (a *Alert) Satisfied(price float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return price > a.Threshold
	case ConditionBelow:
		return price < a.Threshold
	default:
		return false
	}
}
