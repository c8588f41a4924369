package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/AjCodes/FocusUp-sub000/internal/errors"
)

type scanner interface {
	Scan(dest ...any) error
}

// tableSpec describes how one model maps onto a table. The first column is
// always the primary key "id" and every table has a "user_id" column.
type tableSpec[T any] struct {
	name    string
	columns []string
	orderBy string
	// conflict is the unique key an insert may collide on. Empty means "id".
	// On any other key the existing row wins and its id is returned.
	conflict string
	id       func(T) string
	withID  func(T, string) T
	values  func(T) ([]any, error)
	scan    func(scanner) (T, error)
}

func (s tableSpec[T]) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

func (s tableSpec[T]) insertQuery() string {
	if s.conflict != "" {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET id = %s.id RETURNING id",
			s.name, strings.Join(s.columns, ", "), s.placeholders(len(s.columns)), s.conflict, s.name)
	}
	sets := make([]string, 0, len(s.columns)-1)
	for _, c := range s.columns[1:] {
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s RETURNING id",
		s.name, strings.Join(s.columns, ", "), s.placeholders(len(s.columns)), strings.Join(sets, ", "))
}

func (s tableSpec[T]) updateQuery() string {
	sets := make([]string, 0, len(s.columns)-1)
	for i, c := range s.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+2))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", s.name, strings.Join(sets, ", "))
}

func (s tableSpec[T]) selectQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE user_id = $1 ORDER BY %s",
		strings.Join(s.columns, ", "), s.name, s.orderBy)
}

// table is a generic owner-scoped table backed by a tableSpec.
type table[T any] struct {
	db   *sql.DB
	spec tableSpec[T]
}

func (t *table[T]) Insert(ctx context.Context, rec T) (T, error) {
	var zero T
	op := "insert " + t.spec.name

	args, err := t.spec.values(rec)
	if err != nil {
		return zero, apperrors.Wrap(op, t.spec.id(rec), err)
	}

	var id string
	if err := t.db.QueryRowContext(ctx, t.spec.insertQuery(), args...).Scan(&id); err != nil {
		return zero, apperrors.Wrap(op, t.spec.id(rec), err)
	}
	return t.spec.withID(rec, id), nil
}

func (t *table[T]) Update(ctx context.Context, rec T) error {
	op := "update " + t.spec.name
	id := t.spec.id(rec)

	args, err := t.spec.values(rec)
	if err != nil {
		return apperrors.Wrap(op, id, err)
	}

	res, err := t.db.ExecContext(ctx, t.spec.updateQuery(), args...)
	if err != nil {
		return apperrors.Wrap(op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(op, id, err)
	}
	if n == 0 {
		return apperrors.Wrap(op, id, apperrors.ErrNotFound)
	}
	return nil
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	if _, err := t.db.ExecContext(ctx, "DELETE FROM "+t.spec.name+" WHERE id = $1", id); err != nil {
		return apperrors.Wrap("delete "+t.spec.name, id, err)
	}
	return nil
}

func (t *table[T]) SelectByOwner(ctx context.Context, ownerID string) ([]T, error) {
	op := "select " + t.spec.name

	rows, err := t.db.QueryContext(ctx, t.spec.selectQuery(), ownerID)
	if err != nil {
		return nil, apperrors.Wrap(op, "", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := t.spec.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(op, "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(op, "", err)
	}
	return out, nil
}
