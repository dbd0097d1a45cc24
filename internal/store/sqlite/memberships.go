package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/store"
)

// SetPrimaryCategories replaces the primary's categories within one taxonomy.
// Unknown category ids, or ids from another taxonomy, are rejected.
func (s *Store) SetPrimaryCategories(ctx context.Context, primaryID, taxonomy string, categoryIDs []string) error {
	if _, err := s.GetPrimary(ctx, primaryID); err != nil {
		return err
	}
	ids := domain.CleanOrder(categoryIDs)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if len(ids) > 0 {
			args := make([]any, 0, len(ids)+1)
			args = append(args, taxonomy)
			for _, cid := range ids {
				args = append(args, cid)
			}
			var found int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM categories WHERE taxonomy = ? AND id IN (`+placeholders(len(ids))+`)`,
				args...).Scan(&found); err != nil {
				return fmt.Errorf("check categories: %w", err)
			}
			if found != len(ids) {
				return store.ErrInvalidInput.WithCause(
					fmt.Errorf("%d of %d category ids are not in %s", len(ids)-found, len(ids), taxonomy))
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM primary_categories WHERE primary_id = ? AND taxonomy = ?`, primaryID, taxonomy); err != nil {
			return fmt.Errorf("clear memberships: %w", err)
		}
		for _, cid := range ids {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO primary_categories (primary_id, category_id, taxonomy) VALUES (?, ?, ?)`,
				primaryID, cid, taxonomy); err != nil {
				return fmt.Errorf("insert membership: %w", err)
			}
		}
		return nil
	})
}

// PrimaryCategoryIDs lists the primary's categories in taxonomy, oldest category first.
func (s *Store) PrimaryCategoryIDs(ctx context.Context, primaryID, taxonomy string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pc.category_id FROM primary_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.primary_id = ? AND pc.taxonomy = ?
		ORDER BY c.seq ASC`, primaryID, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("primary categories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		ids = append(ids, cid)
	}
	return ids, rows.Err()
}
