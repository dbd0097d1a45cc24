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

// primaryColumns must match the scan order in scanPrimary.
const primaryColumns = `id, type, name, slug, body, status, menu_order, created_at, updated_at`

func scanPrimary(scanner interface{ Scan(dest ...any) error }) (*domain.Primary, error) {
	var (
		p         domain.Primary
		status    string
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&p.ID, &p.Type, &p.Name, &p.Slug, &p.Body, &status, &p.MenuOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	p.Meta = map[string]string{}
	return &p, nil
}

// CreatePrimary inserts a primary and fires PrimaryCreated.
func (s *Store) CreatePrimary(ctx context.Context, primaryType, name, body string, status domain.Status) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", store.ErrInvalidInput.WithCause(errors.New("primary name is empty"))
	}
	if status == "" {
		status = domain.StatusPublished
	}
	if !status.Valid() || status == domain.StatusDeleted {
		return "", store.ErrInvalidInput.WithCause(fmt.Errorf("status %q", status))
	}

	primaryID, err := id.Generate(id.PrefixPrimary)
	if err != nil {
		return "", err
	}

	now := formatTime(time.Now())
	base := normalize.Slugify(name)
	if base == "" {
		base = strings.ToLower(primaryID)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		slug, err := uniqueSlug(ctx, tx, "primaries", "type", primaryType, base)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO primaries (id, type, name, slug, body, status, menu_order, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			primaryID, primaryType, name, slug, body, string(status), now, now)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrAlreadyExists.WithCause(err)
		}
		return "", fmt.Errorf("insert primary: %w", err)
	}

	created, err := s.GetPrimary(ctx, primaryID)
	if err != nil {
		return "", err
	}
	s.lifecycle().PrimaryCreated(ctx, created)

	return primaryID, nil
}

// GetPrimary retrieves a primary with its metadata.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetPrimary(ctx context.Context, primaryID string) (*domain.Primary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+primaryColumns+` FROM primaries WHERE id = ?`, primaryID)
	p, err := scanPrimary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get primary: %w", err)
	}
	if err := s.attachPrimaryMeta(ctx, []*domain.Primary{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePrimary applies fields and fires PrimaryUpdated with before/after snapshots.
// The slug is kept stable across renames.
func (s *Store) UpdatePrimary(ctx context.Context, primaryID string, fields domain.PrimaryUpdate) error {
	before, err := s.GetPrimary(ctx, primaryID)
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
			return store.ErrInvalidInput.WithCause(errors.New("primary name is empty"))
		}
		sets = append(sets, "name = ?")
		args = append(args, *fields.Name)
	}
	if fields.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *fields.Body)
	}
	if fields.Status != nil {
		if !fields.Status.Valid() || *fields.Status == domain.StatusDeleted {
			return store.ErrInvalidInput.WithCause(fmt.Errorf("status %q", *fields.Status))
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*fields.Status))
	}
	if fields.MenuOrder != nil {
		sets = append(sets, "menu_order = ?")
		args = append(args, *fields.MenuOrder)
	}
	args = append(args, primaryID)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE primaries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("update primary: %w", err)
	}

	after, err := s.GetPrimary(ctx, primaryID)
	if err != nil {
		return err
	}
	s.lifecycle().PrimaryUpdated(ctx, before, after)
	return nil
}

// DeletePrimary trashes the primary, or with hard=true fires PrimaryBeforeDelete
// and removes it along with its metadata and memberships.
func (s *Store) DeletePrimary(ctx context.Context, primaryID string, hard bool) error {
	p, err := s.GetPrimary(ctx, primaryID)
	if err != nil {
		return err
	}

	if !hard {
		if p.Status == domain.StatusTrashed {
			return nil
		}
		trashed := domain.StatusTrashed
		return s.UpdatePrimary(ctx, primaryID, domain.PrimaryUpdate{Status: &trashed})
	}

	s.lifecycle().PrimaryBeforeDelete(ctx, p)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteAllMeta(ctx, tx, store.KindPrimary, primaryID); err != nil {
			return fmt.Errorf("delete primary meta: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM primary_categories WHERE primary_id = ?`, primaryID); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM primaries WHERE id = ?`, primaryID); err != nil {
			return fmt.Errorf("delete primary: %w", err)
		}
		return nil
	})
}

// FindPrimaryByExactName returns the earliest-created primary whose name matches exactly.
func (s *Store) FindPrimaryByExactName(ctx context.Context, primaryType, name string, status domain.Status) (*domain.Primary, error) {
	where, args := statusClause(status)
	args = append([]any{primaryType, name}, args...)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+primaryColumns+` FROM primaries WHERE type = ? AND name = ? AND `+where+` ORDER BY seq LIMIT 1`,
		args...)
	p, err := scanPrimary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find primary by name: %w", err)
	}
	if err := s.attachPrimaryMeta(ctx, []*domain.Primary{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// QueryPrimaries lists primaries with their metadata.
func (s *Store) QueryPrimaries(ctx context.Context, q store.PrimaryQuery) ([]*domain.Primary, error) {
	var (
		conds []string
		args  []any
	)
	if q.Type != "" {
		conds = append(conds, "p.type = ?")
		args = append(args, q.Type)
	}
	where, statusArgs := statusClause(q.Status)
	conds = append(conds, strings.ReplaceAll(where, "status", "p.status"))
	args = append(args, statusArgs...)
	if q.CategoryID != "" {
		conds = append(conds, "p.id IN (SELECT primary_id FROM primary_categories WHERE category_id = ?)")
		args = append(args, q.CategoryID)
	}

	query := `SELECT ` + prefixColumns("p.", primaryColumns) + ` FROM primaries p WHERE ` + strings.Join(conds, " AND ")
	switch q.Order {
	case store.OrderMenu:
		query += ` ORDER BY p.menu_order ASC, p.id ASC`
	default:
		query += ` ORDER BY p.seq ASC`
	}
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, max(q.Offset, 0))
	} else if q.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query primaries: %w", err)
	}
	defer rows.Close()

	var out []*domain.Primary
	for rows.Next() {
		p, err := scanPrimary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.attachPrimaryMeta(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountPrimaries counts primaries of a type in a status.
func (s *Store) CountPrimaries(ctx context.Context, primaryType string, status domain.Status) (int, error) {
	where, args := statusClause(status)
	args = append([]any{primaryType}, args...)

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM primaries WHERE type = ? AND `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count primaries: %w", err)
	}
	return n, nil
}

func (s *Store) attachPrimaryMeta(ctx context.Context, primaries []*domain.Primary) error {
	if len(primaries) == 0 {
		return nil
	}
	ids := make([]string, len(primaries))
	for i, p := range primaries {
		ids[i] = p.ID
	}
	meta, err := s.loadMeta(ctx, store.KindPrimary, ids)
	if err != nil {
		return err
	}
	for _, p := range primaries {
		if m, ok := meta[p.ID]; ok {
			p.Meta = m
		}
	}
	return nil
}

// statusClause matches one status, or every live status when status is empty.
func statusClause(status domain.Status) (string, []any) {
	if status == "" {
		return "status NOT IN (?, ?)", []any{string(domain.StatusTrashed), string(domain.StatusDeleted)}
	}
	return "status = ?", []any{string(status)}
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
