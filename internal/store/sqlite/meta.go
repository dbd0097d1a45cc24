package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pairsync/pairsync-server/internal/store"
)

// metaBatch bounds the number of ids per IN clause.
const metaBatch = 500

// GetMeta returns a metadata value. ok is false when the key is absent.
func (s *Store) GetMeta(ctx context.Context, ref store.EntityRef, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE kind = ? AND entity_id = ? AND key = ?`,
		string(ref.Kind), ref.ID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta upserts a metadata value.
func (s *Store) SetMeta(ctx context.Context, ref store.EntityRef, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (kind, entity_id, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, entity_id, key) DO UPDATE SET value = excluded.value`,
		string(ref.Kind), ref.ID, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// DeleteMeta removes a metadata value. Removing an absent key is not an error.
func (s *Store) DeleteMeta(ctx context.Context, ref store.EntityRef, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM meta WHERE kind = ? AND entity_id = ? AND key = ?`,
		string(ref.Kind), ref.ID, key)
	if err != nil {
		return fmt.Errorf("delete meta %s: %w", key, err)
	}
	return nil
}

// loadMeta fetches metadata for many entities at once, keyed by entity id.
func (s *Store) loadMeta(ctx context.Context, kind store.EntityKind, ids []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(ids))
	for start := 0; start < len(ids); start += metaBatch {
		end := min(start+metaBatch, len(ids))
		chunk := ids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, string(kind))
		for _, id := range chunk {
			args = append(args, id)
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT entity_id, key, value FROM meta WHERE kind = ? AND entity_id IN (`+placeholders(len(chunk))+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("load meta: %w", err)
		}
		for rows.Next() {
			var entityID, key, value string
			if err := rows.Scan(&entityID, &key, &value); err != nil {
				rows.Close()
				return nil, err
			}
			if out[entityID] == nil {
				out[entityID] = make(map[string]string)
			}
			out[entityID][key] = value
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func deleteAllMeta(ctx context.Context, tx *sql.Tx, kind store.EntityKind, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM meta WHERE kind = ? AND entity_id = ?`, string(kind), id)
	return err
}
