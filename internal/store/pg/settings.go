package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fixwell.io/internal/settings"
)

// SettingsStore persists the settings document as one versioned row. The
// version column is the compare-and-swap guard: two admins racing on the
// same read version lose deterministically, one of them gets a conflict.
type SettingsStore struct {
	s *Store
}

var _ settings.Store = (*SettingsStore)(nil)

// Settings returns the settings sub-store.
func (s *Store) Settings() *SettingsStore {
	return &SettingsStore{s: s}
}

func (st *SettingsStore) Load(ctx context.Context) (settings.Document, error) {
	var raw []byte
	var version int
	err := st.s.db.QueryRowContext(ctx, `
		select version, doc from platform_settings where key = $1
	`, settings.Key).Scan(&version, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Document{}, settings.ErrNotFound
	}
	if err != nil {
		return settings.Document{}, err
	}
	var doc settings.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return settings.Document{}, fmt.Errorf("decode settings document: %w", err)
	}
	doc.Version = version
	return doc, nil
}

func (st *SettingsStore) Save(ctx context.Context, doc settings.Document, expectedVersion int) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings document: %w", err)
	}
	res, err := st.s.db.ExecContext(ctx, `
		insert into platform_settings (key, version, doc, updated_at, updated_by)
		values ($1, $2, $3, $4, $5)
		on conflict (key) do update
		set version = excluded.version,
		    doc = excluded.doc,
		    updated_at = excluded.updated_at,
		    updated_by = excluded.updated_by
		where platform_settings.version = $6
	`, settings.Key, doc.Version, raw, doc.UpdatedAt, doc.UpdatedBy, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settings.ErrVersionConflict
	}
	return nil
}
