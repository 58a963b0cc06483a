package store

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/index"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/queryir"
)

var _ client.Client = (*Store)(nil)

// FindAll implements client.Client.
func (s *Store) FindAll(ctx context.Context, m *meta.EntityMetadata, columns []string, ids []any) ([]client.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	stmt, cols, params, err := s.compiler.SelectByIDs(m, columns, ids)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, m, stmt, cols, params)
}

// Find implements client.Client. Filters are evaluated in SQL.
func (s *Store) Find(ctx context.Context, m *meta.EntityMetadata, q *queryir.Query, limit int) ([]client.Row, error) {
	var filters []queryir.Element
	if q != nil {
		filters = q.Filters
	}
	stmt, cols, params, err := s.compiler.Select(m, nil, filters, limit)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, m, stmt, cols, params)
}

// FindByID implements client.Client.
func (s *Store) FindByID(ctx context.Context, m *meta.EntityMetadata, id any) (*client.Row, error) {
	if id == nil {
		return nil, ormerr.IllegalArgument("find " + m.Class + ": nil id")
	}
	rows, err := s.FindAll(ctx, m, nil, []any{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) query(ctx context.Context, m *meta.EntityMetadata, stmt string, cols []string, params []any) ([]client.Row, error) {
	s.logger.Debug("query", zap.String("class", m.Class), zap.String("sql", stmt))

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", m.Class, err)
	}
	defer rows.Close()

	return scanRows(rows, m, cols)
}

// JoinTargets implements client.Client. Only join-table relations are
// multi-valued in the column store, and edges carry no attributes.
func (s *Store) JoinTargets(ctx context.Context, m *meta.EntityMetadata, rel *meta.Relation, ownerID any) ([]client.Link, error) {
	if !rel.ViaJoinTable() {
		return nil, ormerr.QueryHandler(m.Class, rel.Property, "relation has no join table")
	}
	if rel.MapKeyJoinClass != "" {
		return nil, ormerr.Unsupported("relationship entities in the column store")
	}

	stmt, params := s.compiler.SelectLinks(rel, ownerID)
	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s.%s links: %w", m.Class, rel.Property, err)
	}
	defer rows.Close()

	var links []client.Link
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, client.Link{TargetID: target})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

// Persist implements client.Client. A duplicate id fails.
func (s *Store) Persist(ctx context.Context, m *meta.EntityMetadata, entity any) error {
	return s.write(ctx, m, entity, false)
}

// Merge implements client.Client.
func (s *Store) Merge(ctx context.Context, m *meta.EntityMetadata, entity any) error {
	return s.write(ctx, m, entity, true)
}

func (s *Store) write(ctx context.Context, m *meta.EntityMetadata, entity any, upsert bool) error {
	values, err := s.encodeRow(m, entity)
	if err != nil {
		return err
	}
	id := values[m.ID.Column]

	var stmt string
	var params []any
	if upsert {
		stmt, params, err = s.compiler.Upsert(m, values)
	} else {
		stmt, params, err = s.compiler.Insert(m, values)
	}
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write %s: %w", m.Class, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt, params...); err != nil {
		return fmt.Errorf("write %s %v: %w", m.Class, id, err)
	}

	for _, r := range m.Relations {
		if !r.ViaJoinTable() || r.MapKeyJoinClass != "" {
			continue
		}
		targets, err := s.joinTargetIDs(m, r, entity)
		if err != nil {
			return err
		}
		if err := s.replaceLinks(ctx, tx, r, id, targets); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write %s: %w", m.Class, err)
	}

	s.logger.Debug("wrote entity",
		zap.String("class", m.Class),
		zap.String("id", prop.String(id)),
		zap.Bool("merge", upsert))

	return s.reindex(ctx, m, entity, id)
}

func (s *Store) replaceLinks(ctx context.Context, tx *sql.Tx, r *meta.Relation, ownerID any, targets []any) error {
	stmt, params := s.compiler.DeleteLinks(r, ownerID)
	if _, err := tx.ExecContext(ctx, stmt, params...); err != nil {
		return fmt.Errorf("clear %s: %w", r.JoinTable, err)
	}
	for i, target := range targets {
		stmt, params := s.compiler.InsertLink(r, ownerID, target, i)
		if _, err := tx.ExecContext(ctx, stmt, params...); err != nil {
			return fmt.Errorf("link %s: %w", r.JoinTable, err)
		}
	}
	return nil
}

// Remove implements client.Client. Removing a missing entity is a no-op.
func (s *Store) Remove(ctx context.Context, m *meta.EntityMetadata, entity any) error {
	id, err := meta.ID(entity, m)
	if err != nil {
		return err
	}
	if id == nil {
		return ormerr.Mapping(m.Class, m.ID.Name, fmt.Errorf("entity has no id"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove %s: %w", m.Class, err)
	}
	defer tx.Rollback()

	for _, r := range m.Relations {
		if !r.ViaJoinTable() || r.MapKeyJoinClass != "" {
			continue
		}
		stmt, params := s.compiler.DeleteLinks(r, id)
		if _, err := tx.ExecContext(ctx, stmt, params...); err != nil {
			return fmt.Errorf("clear %s: %w", r.JoinTable, err)
		}
	}
	stmt, params := s.compiler.Delete(m, id)
	if _, err := tx.ExecContext(ctx, stmt, params...); err != nil {
		return fmt.Errorf("remove %s %v: %w", m.Class, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove %s: %w", m.Class, err)
	}

	if s.index != nil {
		return s.index.Delete(ctx, m.Class, prop.String(id))
	}
	return nil
}

func (s *Store) reindex(ctx context.Context, m *meta.EntityMetadata, entity, id any) error {
	if s.index == nil {
		return nil
	}
	fields, err := index.Document(m, entity)
	if err != nil {
		return err
	}
	_, err = s.index.Put(ctx, m.Class, prop.String(id), fields)
	return err
}

// IndexManager implements client.Client.
func (s *Store) IndexManager() client.IndexManager {
	if s.index == nil {
		return nil
	}
	return s.index
}

// Capabilities implements client.Client.
func (s *Store) Capabilities() client.Capabilities {
	return client.Capabilities{NativeFilter: true, Search: s.index != nil}
}

func typeOf(v any) reflect.Type {
	return reflect.TypeOf(v)
}
