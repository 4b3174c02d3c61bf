// Package settings maintains the platform-wide configuration document under
// optimistic concurrency: writers supply the version they read, a mismatch is
// a conflict, and every applied change yields a field-level diff for audit.
package settings

import (
	"errors"
	"time"
)

// Key identifies the single settings row.
const Key = "platform_settings"

var (
	ErrNotFound = errors.New("settings: not found")

	// ErrVersionConflict marks a stale write: the caller must reload and
	// retry. The stored document is never mutated on conflict.
	ErrVersionConflict = errors.New("settings: version conflict")

	// ErrValidation marks a rejected update; no field is applied.
	ErrValidation = errors.New("settings: validation failed")
)

// RolloutMode controls which organisations receive AI-assisted features.
type RolloutMode string

const (
	RolloutAll       RolloutMode = "all"
	RolloutAllowlist RolloutMode = "allowlist"
	RolloutNone      RolloutMode = "none"
)

// Document is the singleton platform configuration. Currency amounts are in
// cents; percentage fields state their bounds in the field name comments.
type Document struct {
	Version int `json:"version"`

	MaintenanceMode bool `json:"maintenance_mode"`

	DefaultCalloutFeeCents     int64 `json:"default_callout_fee_cents"`
	MaxCalloutFeeCents         int64 `json:"max_callout_fee_cents"`
	AutoApproveQuoteLimitCents int64 `json:"auto_approve_quote_limit_cents"`

	// QuoteApprovalThresholdPct is bounded [0,100].
	QuoteApprovalThresholdPct float64 `json:"quote_approval_threshold_pct"`
	// ContractorMatchWeight is bounded [0,1].
	ContractorMatchWeight float64 `json:"contractor_match_weight"`

	// AIKillSwitch force-disables every dependent AI feature flag below.
	AIKillSwitch          bool `json:"ai_kill_switch"`
	AITriageEnabled       bool `json:"ai_triage_enabled"`
	AIQuoteSuggestEnabled bool `json:"ai_quote_suggest_enabled"`
	AISummariesEnabled    bool `json:"ai_summaries_enabled"`

	RolloutMode      RolloutMode `json:"rollout_mode"`
	RolloutAllowlist []string    `json:"rollout_allowlist,omitempty"`

	NotificationDefaults map[string]bool `json:"notification_defaults"`

	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Defaults returns the system defaults used when no document exists yet.
// Version 0 means "never written".
func Defaults() Document {
	return Document{
		Version:                    0,
		DefaultCalloutFeeCents:     5000,
		MaxCalloutFeeCents:         25000,
		AutoApproveQuoteLimitCents: 50000,
		QuoteApprovalThresholdPct:  80,
		ContractorMatchWeight:      0.5,
		RolloutMode:                RolloutNone,
		NotificationDefaults: map[string]bool{
			"ticket_created":  true,
			"quote_approved":  true,
			"invoice_issued":  true,
			"work_order_done": false,
		},
	}
}
