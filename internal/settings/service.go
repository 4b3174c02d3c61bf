package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store persists the settings document. Save is a compare-and-swap on the
// version the caller read: it returns ErrVersionConflict without writing when
// the stored version moved.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document, expectedVersion int) error
}

// Auditor appends one audit record for an applied update that changed fields.
type Auditor interface {
	Record(ctx context.Context, orgID, actorID, action, entityType, entityID string, changes any) error
}

// Service applies versioned settings updates: optimistic version check,
// atomic validation, kill-switch normalisation, diff and audit.
type Service struct {
	store   Store
	auditor Auditor
	now     func() time.Time
}

// NewService constructs the settings service.
func NewService(store Store, auditor Auditor) (*Service, error) {
	if store == nil {
		return nil, errors.New("settings store is required")
	}
	if auditor == nil {
		return nil, errors.New("auditor is required")
	}
	return &Service{store: store, auditor: auditor, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Get returns the current document, or the system defaults at version 0 when
// nothing has been written yet.
func (s *Service) Get(ctx context.Context) (Document, error) {
	doc, err := s.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Update applies an incoming document against the version its author read.
// The whole update is atomic: a stale version or any validation failure
// rejects it without touching the stored document or the audit trail.
func (s *Service) Update(ctx context.Context, incoming Document, actorID string) (Document, Diff, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return Document{}, Diff{}, err
	}
	if incoming.Version != current.Version {
		return Document{}, Diff{}, fmt.Errorf("%w: submitted version %d, current version %d",
			ErrVersionConflict, incoming.Version, current.Version)
	}

	next := normalize(incoming)
	if err := validate(next); err != nil {
		return Document{}, Diff{}, err
	}

	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actorID

	diff := Compare(current, next)

	if err := s.store.Save(ctx, next, current.Version); err != nil {
		return Document{}, Diff{}, err
	}
	if !diff.Empty() {
		if err := s.auditor.Record(ctx, "", actorID, "settings.update", "platform_settings", Key, map[string]any{
			"changed_keys": diff.ChangedKeys(),
			"changes":      diff.Changes,
			"version":      next.Version,
		}); err != nil {
			return Document{}, Diff{}, err
		}
	}
	return next, diff, nil
}

// normalize applies cross-cutting rules before validation: the kill switch
// force-disables every dependent AI flag regardless of what the caller
// requested, and the allowlist is trimmed, lower-cased and deduplicated.
func normalize(doc Document) Document {
	if doc.AIKillSwitch {
		doc.AITriageEnabled = false
		doc.AIQuoteSuggestEnabled = false
		doc.AISummariesEnabled = false
	}
	if len(doc.RolloutAllowlist) > 0 {
		seen := make(map[string]struct{}, len(doc.RolloutAllowlist))
		cleaned := make([]string, 0, len(doc.RolloutAllowlist))
		for _, slug := range doc.RolloutAllowlist {
			slug = strings.TrimSpace(strings.ToLower(slug))
			if slug == "" {
				continue
			}
			if _, ok := seen[slug]; ok {
				continue
			}
			seen[slug] = struct{}{}
			cleaned = append(cleaned, slug)
		}
		if len(cleaned) == 0 {
			cleaned = nil
		}
		doc.RolloutAllowlist = cleaned
	}
	return doc
}

// validate checks field ranges and cross-field relationships. The first
// violation rejects the whole update; nothing is partially applied.
func validate(doc Document) error {
	if doc.DefaultCalloutFeeCents < 0 {
		return fmt.Errorf("%w: default callout fee must not be negative", ErrValidation)
	}
	if doc.MaxCalloutFeeCents < doc.DefaultCalloutFeeCents {
		return fmt.Errorf("%w: max callout fee must be at least the default callout fee", ErrValidation)
	}
	if doc.AutoApproveQuoteLimitCents < 0 {
		return fmt.Errorf("%w: auto-approve quote limit must not be negative", ErrValidation)
	}
	if doc.QuoteApprovalThresholdPct < 0 || doc.QuoteApprovalThresholdPct > 100 {
		return fmt.Errorf("%w: quote approval threshold must be within [0,100]", ErrValidation)
	}
	if doc.ContractorMatchWeight < 0 || doc.ContractorMatchWeight > 1 {
		return fmt.Errorf("%w: contractor match weight must be within [0,1]", ErrValidation)
	}
	switch doc.RolloutMode {
	case RolloutAll, RolloutNone:
	case RolloutAllowlist:
		if len(doc.RolloutAllowlist) == 0 {
			return fmt.Errorf("%w: rollout allowlist must be non-empty in %s mode", ErrValidation, RolloutAllowlist)
		}
	default:
		return fmt.Errorf("%w: unsupported rollout mode %q", ErrValidation, doc.RolloutMode)
	}
	return nil
}
