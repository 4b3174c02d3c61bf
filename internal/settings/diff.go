package settings

import "reflect"

// FieldChange records one changed field with its before and after values.
// Collection fields carry whole before/after snapshots, not per-element deltas.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// Diff is the result of comparing two documents field by field. Version and
// update metadata are excluded: they change on every write by construction.
type Diff struct {
	Changes []FieldChange `json:"changes"`
}

// ChangedKeys lists the names of changed fields in declaration order.
func (d Diff) ChangedKeys() []string {
	keys := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		keys = append(keys, c.Field)
	}
	return keys
}

// Empty reports whether no field changed.
func (d Diff) Empty() bool { return len(d.Changes) == 0 }

// Compare computes the field-by-field diff between two documents. Scalars
// compare by equality; the allowlist slice and notification map compare by
// full-content equality.
func Compare(prev, next Document) Diff {
	var d Diff
	record := func(field string, old, new any, changed bool) {
		if changed {
			d.Changes = append(d.Changes, FieldChange{Field: field, Old: old, New: new})
		}
	}

	record("maintenance_mode", prev.MaintenanceMode, next.MaintenanceMode,
		prev.MaintenanceMode != next.MaintenanceMode)
	record("default_callout_fee_cents", prev.DefaultCalloutFeeCents, next.DefaultCalloutFeeCents,
		prev.DefaultCalloutFeeCents != next.DefaultCalloutFeeCents)
	record("max_callout_fee_cents", prev.MaxCalloutFeeCents, next.MaxCalloutFeeCents,
		prev.MaxCalloutFeeCents != next.MaxCalloutFeeCents)
	record("auto_approve_quote_limit_cents", prev.AutoApproveQuoteLimitCents, next.AutoApproveQuoteLimitCents,
		prev.AutoApproveQuoteLimitCents != next.AutoApproveQuoteLimitCents)
	record("quote_approval_threshold_pct", prev.QuoteApprovalThresholdPct, next.QuoteApprovalThresholdPct,
		prev.QuoteApprovalThresholdPct != next.QuoteApprovalThresholdPct)
	record("contractor_match_weight", prev.ContractorMatchWeight, next.ContractorMatchWeight,
		prev.ContractorMatchWeight != next.ContractorMatchWeight)
	record("ai_kill_switch", prev.AIKillSwitch, next.AIKillSwitch,
		prev.AIKillSwitch != next.AIKillSwitch)
	record("ai_triage_enabled", prev.AITriageEnabled, next.AITriageEnabled,
		prev.AITriageEnabled != next.AITriageEnabled)
	record("ai_quote_suggest_enabled", prev.AIQuoteSuggestEnabled, next.AIQuoteSuggestEnabled,
		prev.AIQuoteSuggestEnabled != next.AIQuoteSuggestEnabled)
	record("ai_summaries_enabled", prev.AISummariesEnabled, next.AISummariesEnabled,
		prev.AISummariesEnabled != next.AISummariesEnabled)
	record("rollout_mode", string(prev.RolloutMode), string(next.RolloutMode),
		prev.RolloutMode != next.RolloutMode)
	record("rollout_allowlist", prev.RolloutAllowlist, next.RolloutAllowlist,
		!reflect.DeepEqual(prev.RolloutAllowlist, next.RolloutAllowlist))
	record("notification_defaults", prev.NotificationDefaults, next.NotificationDefaults,
		!reflect.DeepEqual(prev.NotificationDefaults, next.NotificationDefaults))
	return d
}
