// Package querysql compiles entity metadata and filter sequences into
// parameterized SQLite statements for the column store.
//
// Every entity has one table named by EntityMetadata.Table: the id column
// as primary key, one column per singular attribute, and one column per
// single-valued relation that declares a join column. Join tables hold
// (owner_id, target_id, position) rows.
//
// CRITICAL: All values are parameterized, never interpolated.
// CRITICAL: Every SELECT orders by a deterministic key.
package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/queryir"
)

// Join table column names.
const (
	OwnerColumn    = "owner_id"
	TargetColumn   = "target_id"
	PositionColumn = "position"
)

// SQLCompiler compiles queries for one entity into SQLite statements.
// The zero value is ready to use.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Quote quotes an identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// CreateTable returns the DDL for the entity table.
func (c *SQLCompiler) CreateTable(m *meta.EntityMetadata) string {
	cols := []string{Quote(m.ID.Column) + " " + columnType(m.ID.Kind) + " PRIMARY KEY"}
	for _, a := range m.Singular() {
		if a == m.ID {
			continue
		}
		cols = append(cols, Quote(a.Column)+" "+columnType(a.Kind))
	}
	for _, r := range m.Relations {
		if r.JoinColumn != "" && !r.Collection {
			cols = append(cols, Quote(r.JoinColumn)+" TEXT")
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Quote(m.Table), strings.Join(cols, ", "))
}

// CreateJoinTable returns the DDL for a join table.
func (c *SQLCompiler) CreateJoinTable(r *meta.Relation) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL, %s TEXT NOT NULL, %s INTEGER NOT NULL, PRIMARY KEY (%s, %s))",
		Quote(r.JoinTable), OwnerColumn, TargetColumn, PositionColumn, OwnerColumn, PositionColumn,
	)
}

// columnType maps a kind to a declared type. The declared types make the
// driver return bool for BOOLEAN and time.Time for TIMESTAMP columns.
func columnType(k meta.Kind) string {
	switch k {
	case meta.KindBool:
		return "BOOLEAN"
	case meta.KindInt16, meta.KindInt32, meta.KindInt64:
		return "INTEGER"
	case meta.KindFloat32, meta.KindFloat64:
		return "REAL"
	case meta.KindDate, meta.KindCalendar:
		return "TIMESTAMP"
	case meta.KindBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Columns returns the stored columns of the entity table, id first, then
// singular attributes, then join columns.
func (c *SQLCompiler) Columns(m *meta.EntityMetadata) []string {
	cols := []string{m.ID.Column}
	for _, a := range m.Singular() {
		if a != m.ID {
			cols = append(cols, a.Column)
		}
	}
	for _, r := range m.Relations {
		if r.JoinColumn != "" && !r.Collection {
			cols = append(cols, r.JoinColumn)
		}
	}
	return cols
}

// projection resolves selected attribute paths to columns. An empty
// selection projects every stored column. The id column is always first.
func (c *SQLCompiler) projection(m *meta.EntityMetadata, selected []string) ([]string, error) {
	if len(selected) == 0 {
		return c.Columns(m), nil
	}
	cols := []string{m.ID.Column}
	for _, name := range selected {
		a, ok := m.Attribute(name)
		if !ok {
			return nil, ormerr.QueryHandler(m.Class, name, "no such column")
		}
		if a == m.ID {
			continue
		}
		cols = append(cols, a.Column)
	}
	return cols, nil
}

// Select compiles a filtered select. Filter values must be resolved.
// limit <= 0 means no limit.
func (c *SQLCompiler) Select(m *meta.EntityMetadata, selected []string, filters []queryir.Element, limit int) (string, []string, []any, error) {
	cols, err := c.projection(m, selected)
	if err != nil {
		return "", nil, nil, err
	}

	var whereClause string
	var params []any
	if len(filters) > 0 {
		filterSQL, filterParams, err := c.compileFilters(m, filters)
		if err != nil {
			return "", nil, nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		quoteAll(cols), Quote(m.Table), whereClause, c.stableOrderKey(m))
	if limit > 0 {
		sql += " LIMIT ?"
		params = append(params, limit)
	}
	return sql, cols, params, nil
}

// SelectByIDs compiles a primary-key lookup.
func (c *SQLCompiler) SelectByIDs(m *meta.EntityMetadata, selected []string, ids []any) (string, []string, []any, error) {
	cols, err := c.projection(m, selected)
	if err != nil {
		return "", nil, nil, err
	}
	if len(ids) == 0 {
		return "", nil, nil, fmt.Errorf("select %s by ids: no ids", m.Class)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = prop.ToNative(id)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s",
		quoteAll(cols), Quote(m.Table), Quote(m.ID.Column), placeholders, c.stableOrderKey(m))
	return sql, cols, params, nil
}

// Upsert compiles an insert-or-replace of one row. values maps column to
// native value and must contain the id column.
func (c *SQLCompiler) Upsert(m *meta.EntityMetadata, values map[string]any) (string, []any, error) {
	return c.insert(m, values, true)
}

// Insert compiles a plain insert of one row.
func (c *SQLCompiler) Insert(m *meta.EntityMetadata, values map[string]any) (string, []any, error) {
	return c.insert(m, values, false)
}

func (c *SQLCompiler) insert(m *meta.EntityMetadata, values map[string]any, upsert bool) (string, []any, error) {
	if _, ok := values[m.ID.Column]; !ok {
		return "", nil, ormerr.Mapping(m.Class, m.ID.Name, fmt.Errorf("row has no id column %q", m.ID.Column))
	}

	// Column order follows the table definition so statements are stable.
	var cols []string
	var params []any
	for _, col := range c.Columns(m) {
		v, ok := values[col]
		if !ok {
			continue
		}
		cols = append(cols, col)
		params = append(params, v)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Quote(m.Table), quoteAll(cols), placeholders)
	if upsert {
		var sets []string
		for _, col := range c.Columns(m) {
			if col == m.ID.Column {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", Quote(col), Quote(col)))
		}
		if len(sets) == 0 {
			sql += fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", Quote(m.ID.Column))
		} else {
			sql += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", Quote(m.ID.Column), strings.Join(sets, ", "))
		}
	}
	return sql, params, nil
}

// Delete compiles a delete by primary key.
func (c *SQLCompiler) Delete(m *meta.EntityMetadata, id any) (string, []any) {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", Quote(m.Table), Quote(m.ID.Column)), []any{prop.ToNative(id)}
}

// SelectLinks compiles a join-table lookup for one owner.
func (c *SQLCompiler) SelectLinks(r *meta.Relation, ownerID any) (string, []any) {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s ASC",
		TargetColumn, Quote(r.JoinTable), OwnerColumn, PositionColumn), []any{prop.String(ownerID)}
}

// DeleteLinks compiles removal of every join-table row of one owner.
func (c *SQLCompiler) DeleteLinks(r *meta.Relation, ownerID any) (string, []any) {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?", Quote(r.JoinTable), OwnerColumn), []any{prop.String(ownerID)}
}

// InsertLink compiles one join-table row.
func (c *SQLCompiler) InsertLink(r *meta.Relation, ownerID, targetID any, position int) (string, []any) {
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)",
			Quote(r.JoinTable), OwnerColumn, TargetColumn, PositionColumn),
		[]any{prop.String(ownerID), prop.String(targetID), position}
}

// stableOrderKey orders by primary key. COLLATE BINARY keeps text ordering
// identical across SQLite builds.
func (c *SQLCompiler) stableOrderKey(m *meta.EntityMetadata) string {
	return Quote(m.ID.Column) + " COLLATE BINARY ASC"
}

// compileFilters converts a filter sequence to a WHERE fragment, keeping
// element order. Connectors map one to one.
func (c *SQLCompiler) compileFilters(m *meta.EntityMetadata, filters []queryir.Element) (string, []any, error) {
	var sb strings.Builder
	var params []any

	for _, el := range filters {
		switch e := el.(type) {
		case queryir.FilterClause:
			sql, p, err := c.compileClause(m, e)
			if err != nil {
				return "", nil, err
			}
			sb.WriteString(sql)
			params = append(params, p...)
		case queryir.Connector:
			switch e {
			case queryir.And, queryir.Or:
				sb.WriteString(" " + string(e) + " ")
			case queryir.LParen, queryir.RParen:
				sb.WriteString(string(e))
			default:
				return "", nil, ormerr.IllegalArgument(fmt.Sprintf("unknown connector %q", string(e)))
			}
		default:
			return "", nil, ormerr.IllegalArgument(fmt.Sprintf("unsupported filter element %T", el))
		}
	}
	return sb.String(), params, nil
}

// compileClause compiles one predicate. Decimal and big integer columns
// are stored as text and compared numerically through CAST.
func (c *SQLCompiler) compileClause(m *meta.EntityMetadata, fc queryir.FilterClause) (string, []any, error) {
	if p, ok := fc.Value.(queryir.Param); ok {
		return "", nil, ormerr.IllegalState(fmt.Sprintf("parameter %s is not bound", p))
	}
	a, ok := m.Attribute(fc.Property)
	if !ok {
		return "", nil, ormerr.QueryHandler(m.Class, fc.Property, "no such column")
	}
	op, err := queryir.ParseOperator(string(fc.Condition))
	if err != nil {
		return "", nil, err
	}

	column := Quote(a.Column)
	if a.Kind == meta.KindDecimal || a.Kind == meta.KindBigInt {
		column = "CAST(" + column + " AS NUMERIC)"
	}

	value := Param(fc.Value)
	switch {
	case op == queryir.OpLike:
		return column + ` LIKE ? ESCAPE '\'`, []any{escapeLike(prop.String(fc.Value)) + "%"}, nil
	case value == nil && op == queryir.OpEq:
		return column + " IS NULL", nil, nil
	default:
		return column + " " + string(op) + " ?", []any{value}, nil
	}
}

// Param converts an attribute value to a SQLite parameter. Temporal values
// are normalized to UTC so stored text compares consistently.
func Param(v any) any {
	native := prop.ToNative(v)
	if t, ok := native.(time.Time); ok {
		return t.UTC()
	}
	return native
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = Quote(col)
	}
	return strings.Join(quoted, ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
