package sharedprefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/desktop-embedding/pkg/db"
)

const postgresLogPrefix = "sharedprefs:postgres_store"

// PostgresStore is a Store backed by the shared_preferences table.
type PostgresStore struct {
	repo *db.PreferencesRepository
}

// NewPostgresStore creates a PostgresStore over repo.
func NewPostgresStore(repo *db.PreferencesRepository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

func (s *PostgresStore) GetAll(ctx context.Context, prefix string) (map[string]any, error) {
	prefs, err := s.repo.ListPreferences(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(prefs))
	for _, p := range prefs {
		v, err := decodeStored(p.Kind, p.Value)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - skipping unreadable preference %s: %v", postgresLogPrefix, p.Key, err))
			continue
		}
		out[p.Key] = v
	}
	return out, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, kind string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s: %w", postgresLogPrefix, key, err)
	}
	return s.repo.UpsertPreference(ctx, db.Preference{Key: key, Kind: kind, Value: data})
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	_, err := s.repo.DeletePreference(ctx, key)
	return err
}

func (s *PostgresStore) Clear(ctx context.Context, prefix string) error {
	_, err := s.repo.ClearPreferences(ctx, prefix)
	return err
}

// decodeStored turns a stored JSON value back into the Go type its kind implies.
func decodeStored(kind string, data []byte) (any, error) {
	var err error
	switch kind {
	case KindBool:
		var v bool
		err = json.Unmarshal(data, &v)
		return v, err
	case KindInt:
		var v int64
		err = json.Unmarshal(data, &v)
		return v, err
	case KindDouble:
		var v float64
		err = json.Unmarshal(data, &v)
		return v, err
	case KindString:
		var v string
		err = json.Unmarshal(data, &v)
		return v, err
	case KindStringList:
		var v []string
		err = json.Unmarshal(data, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}
