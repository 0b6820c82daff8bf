package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
)

// recordRepository implements ports.RecordBackend over a connection or a transaction
type recordRepository struct {
	db dbExecutor
}

// NewRecordRepository creates a record repository over db, which may be a *sqlx.DB or *sqlx.Tx
func NewRecordRepository(db dbExecutor) ports.RecordBackend {
	return &recordRepository{db: db}
}

func (r *recordRepository) Type() ports.BackendType {
	return ports.BackendStructured
}

// NextID scans existing ids and the persisted high-water mark, then reserves the next value
func (r *recordRepository) NextID(ctx context.Context, collection models.Collection) (string, error) {
	spec, err := collection.Spec()
	if err != nil {
		return "", err
	}

	var ids []string
	query := r.db.Rebind(fmt.Sprintf(`SELECT id FROM %s WHERE id LIKE ?`, spec.Table))
	if err := r.db.SelectContext(ctx, &ids, query, spec.IDPrefix+"-%"); err != nil {
		return "", fmt.Errorf("failed to scan %s ids: %w", collection, err)
	}

	var highest int64
	for _, id := range ids {
		if seq, ok := models.ParseIDSequence(spec.IDPrefix, id); ok && seq > highest {
			highest = seq
		}
	}

	var last int64
	query = r.db.Rebind(`SELECT last_value FROM id_sequences WHERE collection = ?`)
	if err := r.db.GetContext(ctx, &last, query, string(collection)); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read %s sequence: %w", collection, err)
	}
	if last > highest {
		highest = last
	}
	next := highest + 1

	query = r.db.Rebind(`
		INSERT INTO id_sequences (collection, last_value) VALUES (?, ?)
		ON CONFLICT (collection) DO UPDATE SET last_value = excluded.last_value
	`)
	if _, err := r.db.ExecContext(ctx, query, string(collection), next); err != nil {
		return "", fmt.Errorf("failed to reserve %s sequence: %w", collection, err)
	}

	return models.FormatID(spec.IDPrefix, next), nil
}

// Insert adds a new record
func (r *recordRepository) Insert(ctx context.Context, record models.Record) error {
	spec, err := record.Collection().Spec()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (:%s)`,
		spec.Table, strings.Join(spec.Columns, ", "), strings.Join(spec.Columns, ", :"))

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", spec.Table, err)
	}
	return nil
}

// Select retrieves matching records in the collection's documented order
func (r *recordRepository) Select(ctx context.Context, collection models.Collection, filter models.Filter, dest any) error {
	spec, err := collection.Spec()
	if err != nil {
		return err
	}

	where, args, err := buildWhere(spec, filter)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY %s`,
		strings.Join(spec.Columns, ", "), spec.Table, where, spec.OrderBy)

	if err := r.db.SelectContext(ctx, dest, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to select from %s: %w", spec.Table, err)
	}
	return nil
}

// Get retrieves a record by id
func (r *recordRepository) Get(ctx context.Context, collection models.Collection, id string, dest any) error {
	spec, err := collection.Spec()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, strings.Join(spec.Columns, ", "), spec.Table)
	if err := r.db.GetContext(ctx, dest, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.ErrNotFound
		}
		return fmt.Errorf("failed to get %s %s: %w", collection, id, err)
	}
	return nil
}

// Update merges changes into a single record
func (r *recordRepository) Update(ctx context.Context, collection models.Collection, id string, changes models.Changes) error {
	spec, err := collection.Spec()
	if err != nil {
		return err
	}

	set, args, err := buildSet(spec, changes)
	if err != nil {
		return err
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, spec.Table, set)
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", collection, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// UpdateWhere merges changes into every record matching filter
func (r *recordRepository) UpdateWhere(ctx context.Context, collection models.Collection, filter models.Filter, changes models.Changes) (int64, error) {
	spec, err := collection.Spec()
	if err != nil {
		return 0, err
	}

	set, setArgs, err := buildSet(spec, changes)
	if err != nil {
		return 0, err
	}
	where, whereArgs, err := buildWhere(spec, filter)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`UPDATE %s SET %s%s`, spec.Table, set, where)
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), append(setArgs, whereArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", spec.Table, err)
	}
	return result.RowsAffected()
}

// Delete removes a record by id
func (r *recordRepository) Delete(ctx context.Context, collection models.Collection, id string) error {
	spec, err := collection.Spec()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, spec.Table)
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", collection, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// buildWhere renders filter as a WHERE clause with ? placeholders.
// Column names are checked against the collection schema before use.
func buildWhere(spec models.CollectionSpec, filter models.Filter) (string, []any, error) {
	var conds []string
	var args []any

	for _, col := range sortedKeys(filter.Equals) {
		if !spec.HasColumn(col) {
			return "", nil, fmt.Errorf("unknown column %q for %s", col, spec.Name)
		}
		conds = append(conds, col+" = ?")
		args = append(args, filter.Equals[col])
	}

	for _, col := range sortedKeys(filter.Contains) {
		if !spec.HasColumn(col) {
			return "", nil, fmt.Errorf("unknown column %q for %s", col, spec.Name)
		}
		values := filter.Contains[col]
		if len(values) == 0 {
			continue
		}
		ors := make([]string, 0, len(values))
		for _, v := range values {
			ors = append(ors, "LOWER("+col+") LIKE ?")
			args = append(args, "%"+strings.ToLower(v)+"%")
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	for _, col := range filter.IsNull {
		if !spec.HasColumn(col) {
			return "", nil, fmt.Errorf("unknown column %q for %s", col, spec.Name)
		}
		conds = append(conds, col+" IS NULL")
	}

	for _, rg := range filter.Ranges {
		if !spec.HasColumn(rg.Column) {
			return "", nil, fmt.Errorf("unknown column %q for %s", rg.Column, spec.Name)
		}
		conds = append(conds, rg.Column+" BETWEEN ? AND ?")
		args = append(args, rg.Min, rg.Max)
	}

	if filter.ActiveOnly {
		if !spec.HasColumn("is_active") {
			return "", nil, fmt.Errorf("%s has no is_active column", spec.Name)
		}
		conds = append(conds, "is_active = ?")
		args = append(args, true)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func buildSet(spec models.CollectionSpec, changes models.Changes) (string, []any, error) {
	if len(changes) == 0 {
		return "", nil, errors.New("no changes to apply")
	}

	cols := sortedKeys(changes)
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		if col == "id" || !spec.HasColumn(col) {
			return "", nil, fmt.Errorf("column %q cannot be updated on %s", col, spec.Name)
		}
		parts = append(parts, col+" = ?")
		args = append(args, changes[col])
	}
	return strings.Join(parts, ", "), args, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
