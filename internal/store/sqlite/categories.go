package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pairsync/pairsync-server/internal/domain"
	"github.com/pairsync/pairsync-server/internal/id"
	"github.com/pairsync/pairsync-server/internal/normalize"
	"github.com/pairsync/pairsync-server/internal/store"
)

// categoryColumns must match the scan order in scanCategory.
const categoryColumns = `c.id, c.taxonomy, c.name, c.slug, c.description, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM primary_categories pc JOIN primaries p ON p.id = pc.primary_id
	 WHERE pc.category_id = c.id AND p.status = 'published')`

func scanCategory(scanner interface{ Scan(dest ...any) error }) (*domain.Category, error) {
	var (
		c         domain.Category
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&c.ID, &c.Taxonomy, &c.Name, &c.Slug, &c.Description, &createdAt, &updatedAt, &c.Count); err != nil {
		return nil, err
	}

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	c.Meta = map[string]string{}
	return &c, nil
}

// CreateCategory inserts a category and fires CategoryCreated.
// A name already present in the taxonomy yields store.ErrAlreadyExists.
func (s *Store) CreateCategory(ctx context.Context, taxonomy, name, description string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", store.ErrInvalidInput.WithCause(errors.New("category name is empty"))
	}

	categoryID, err := id.Generate(id.PrefixCategory)
	if err != nil {
		return "", err
	}

	now := formatTime(time.Now())
	base := normalize.Slugify(name)
	if base == "" {
		base = strings.ToLower(categoryID)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		slug, err := uniqueSlug(ctx, tx, "categories", "taxonomy", taxonomy, base)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO categories (id, taxonomy, name, slug, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			categoryID, taxonomy, name, slug, description, now, now)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrAlreadyExists.WithCause(fmt.Errorf("category %q in %s", name, taxonomy))
		}
		return "", fmt.Errorf("insert category: %w", err)
	}

	created, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return "", err
	}
	s.lifecycle().CategoryCreated(ctx, created)

	return categoryID, nil
}

// GetCategory retrieves a category with its metadata.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetCategory(ctx context.Context, categoryID string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories c WHERE c.id = ?`, categoryID)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if err := s.attachCategoryMeta(ctx, []*domain.Category{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// FindCategoryByExactName looks a category up by its exact name.
func (s *Store) FindCategoryByExactName(ctx context.Context, taxonomy, name string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories c WHERE c.taxonomy = ? AND c.name = ?`, taxonomy, name)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find category by name: %w", err)
	}
	if err := s.attachCategoryMeta(ctx, []*domain.Category{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCategory applies fields and fires CategoryUpdated.
func (s *Store) UpdateCategory(ctx context.Context, categoryID string, fields domain.CategoryUpdate) error {
	before, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if fields.Empty() {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}
	if fields.Name != nil {
		if strings.TrimSpace(*fields.Name) == "" {
			return store.ErrInvalidInput.WithCause(errors.New("category name is empty"))
		}
		sets = append(sets, "name = ?")
		args = append(args, *fields.Name)
	}
	if fields.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *fields.Description)
	}
	args = append(args, categoryID)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE categories SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists.WithCause(err)
		}
		return fmt.Errorf("update category: %w", err)
	}

	after, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	s.lifecycle().CategoryUpdated(ctx, before, after)
	return nil
}

// DeleteCategory fires CategoryBeforeDelete, then removes the category,
// its metadata, and its memberships.
func (s *Store) DeleteCategory(ctx context.Context, categoryID string) error {
	c, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}

	s.lifecycle().CategoryBeforeDelete(ctx, c)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteAllMeta(ctx, tx, store.KindCategory, categoryID); err != nil {
			return fmt.Errorf("delete category meta: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM primary_categories WHERE category_id = ?`, categoryID); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, categoryID); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
}

// QueryCategories lists a taxonomy in creation order with metadata loaded.
func (s *Store) QueryCategories(ctx context.Context, taxonomy string, includeEmpty bool) ([]*domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories c WHERE c.taxonomy = ? ORDER BY c.seq ASC`, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []*domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		if !includeEmpty && c.Count == 0 {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.attachCategoryMeta(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountCategories counts every category in a taxonomy.
func (s *Store) CountCategories(ctx context.Context, taxonomy string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE taxonomy = ?`, taxonomy).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

func (s *Store) attachCategoryMeta(ctx context.Context, categories []*domain.Category) error {
	if len(categories) == 0 {
		return nil
	}
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	meta, err := s.loadMeta(ctx, store.KindCategory, ids)
	if err != nil {
		return err
	}
	for _, c := range categories {
		if m, ok := meta[c.ID]; ok {
			c.Meta = m
		}
	}
	return nil
}
