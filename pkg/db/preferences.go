package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const prefsLogPrefix = "db:preferences"

// Preference is one stored shared preference. Value is the JSON encoding of
// the value; Kind records the setter that wrote it.
type Preference struct {
	Key      string
	Kind     string
	Value    []byte
	Modified time.Time
}

// PreferencesRepository stores shared preferences in the shared_preferences table.
type PreferencesRepository struct {
	pool *pgxpool.Pool
}

// NewPreferencesRepository creates a PreferencesRepository on pool.
func NewPreferencesRepository(pool *pgxpool.Pool) *PreferencesRepository {
	return &PreferencesRepository{pool: pool}
}

// ListPreferences returns the preferences whose keys start with prefix,
// ordered by key. An empty prefix lists everything.
func (r *PreferencesRepository) ListPreferences(ctx context.Context, prefix string) ([]Preference, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, kind, value, modified FROM shared_preferences
		 WHERE starts_with(key, $1)
		 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s - list failed: %w", prefsLogPrefix, err)
	}
	prefs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Preference, error) {
		var p Preference
		err := row.Scan(&p.Key, &p.Kind, &p.Value, &p.Modified)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - scan failed: %w", prefsLogPrefix, err)
	}
	return prefs, nil
}

// UpsertPreference creates or replaces the preference at p.Key.
func (r *PreferencesRepository) UpsertPreference(ctx context.Context, p Preference) error {
	slog.Debug(fmt.Sprintf("%s - UpsertPreference key=%s kind=%s", prefsLogPrefix, p.Key, p.Kind))

	_, err := r.pool.Exec(ctx,
		`INSERT INTO shared_preferences (key, kind, value, modified)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE
		 SET kind = EXCLUDED.kind, value = EXCLUDED.value, modified = EXCLUDED.modified`,
		p.Key, p.Kind, string(p.Value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s - upsert %s failed: %w", prefsLogPrefix, p.Key, err)
	}
	return nil
}

// DeletePreference removes key and reports whether it existed.
func (r *PreferencesRepository) DeletePreference(ctx context.Context, key string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shared_preferences WHERE key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("%s - delete %s failed: %w", prefsLogPrefix, key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearPreferences removes the preferences whose keys start with prefix and
// returns how many were removed.
func (r *PreferencesRepository) ClearPreferences(ctx context.Context, prefix string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shared_preferences WHERE starts_with(key, $1)`, prefix)
	if err != nil {
		return 0, fmt.Errorf("%s - clear failed: %w", prefsLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Cleared %d preferences", prefsLogPrefix, tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
