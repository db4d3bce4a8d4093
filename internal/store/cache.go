package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"djenwatch/internal/services"
)

// LoadCacheEntries returns every analysis cache payload keyed by case number.
func (s *Store) LoadCacheEntries(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT case_number, payload FROM analysis_cache")
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "load cache", "", err)
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key     string
			payload string
		)
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "store", "load cache", "scan", err)
		}
		out[key] = []byte(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "load cache", "iterate", err)
	}
	return out, nil
}

// PutCacheEntry replaces the payload stored under key.
func (s *Store) PutCacheEntry(ctx context.Context, key string, payload []byte) error {
	stmt := builder.Insert("analysis_cache").
		Columns("case_number", "payload", "updated_at").
		Values(key, string(payload), s.timestamp()).
		Suffix("ON CONFLICT(case_number) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at")
	if _, err := s.exec(ctx, stmt); err != nil {
		return services.Wrap(services.ErrPersistence, "store", "put cache entry", key, err)
	}
	return nil
}

// DeleteCacheEntry removes key; missing keys are ignored.
func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	if _, err := s.exec(ctx, builder.Delete("analysis_cache").Where(sq.Eq{"case_number": key})); err != nil {
		return services.Wrap(services.ErrPersistence, "store", "delete cache entry", key, err)
	}
	return nil
}

// ClearCache removes every analysis cache entry and reports how many were dropped.
func (s *Store) ClearCache(ctx context.Context) (int, error) {
	res, err := s.exec(ctx, builder.Delete("analysis_cache"))
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "store", "clear cache", "", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
