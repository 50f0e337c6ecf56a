package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SaveSettings replaces the persisted effective configuration.
func (t *Tx) SaveSettings(ctx context.Context, settings map[string]string, now time.Time) error {
	if _, err := t.exec(ctx, builder.Delete("config")); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	if len(settings) == 0 {
		return nil
	}
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	insert := builder.Insert("config").Columns("key", "value", "updated_at")
	stamp := formatTime(now)
	for _, key := range keys {
		insert = insert.Values(key, settings[key], stamp)
	}
	if _, err := t.exec(ctx, insert); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ReadSettings returns the persisted configuration rows, optionally limited
// to keys with the given prefix.
func (t *Tx) ReadSettings(ctx context.Context, prefix string) (map[string]string, error) {
	q := builder.Select("key", "value").From("config").OrderBy("key")
	if prefix != "" {
		q = q.Where(sq.Like{"key": prefix + "%"})
	}
	rows, err := t.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}
