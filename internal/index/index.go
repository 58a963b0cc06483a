// Package index provides a SQLite-backed search index.
//
// Entities are indexed as documents: a match identifier, the entity class,
// the primary key, and one text value per field. Field names follow
// querysearch.FieldName, plus the querysearch.EntityClassField scoping term.
// Search executes the grammar produced by querysearch.ToSearchQuery and
// returns one hit per matching document, so a key indexed under several
// documents appears several times.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/prop"
	"github.com/roach88/strata/internal/querysearch"
)

//go:embed schema.sql
var schemaSQL string

// IDGenerator produces document match identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates time-ordered UUIDv7 match identifiers.
type UUIDGenerator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Index is a search index stored in a SQLite database.
type Index struct {
	db     *sql.DB
	ids    IDGenerator
	logger *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithIDGenerator overrides the match identifier generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(x *Index) { x.ids = g }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// New creates the index tables in db if needed. The caller owns db.
func New(db *sql.DB, opts ...Option) (*Index, error) {
	x := &Index{db: db, ids: UUIDGenerator{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(x)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply index schema: %w", err)
	}
	return x, nil
}

// Document builds the indexed fields of an entity: every non-nil singular
// attribute in canonical text form, plus the entity class term.
func Document(m *meta.EntityMetadata, entity any) (map[string]string, error) {
	fields := map[string]string{
		querysearch.EntityClassField: querysearch.ClassTerm(m),
	}
	for _, a := range m.Singular() {
		v, err := m.Accessor.Get(entity, a.Field)
		if err != nil {
			return nil, fmt.Errorf("index %s.%s: %w", m.Class, a.Path(), err)
		}
		if v == nil {
			continue
		}
		fields[querysearch.FieldName(m, a.Path())] = prop.String(v)
	}
	return fields, nil
}

// Put replaces every document of (class, pk) with a single new document.
func (x *Index) Put(ctx context.Context, class, pk string, fields map[string]string) (string, error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin index put: %w", err)
	}
	defer tx.Rollback()

	if err := deleteDocuments(ctx, tx, class, pk); err != nil {
		return "", err
	}
	matchID, err := x.insert(ctx, tx, class, pk, fields)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit index put: %w", err)
	}
	return matchID, nil
}

// Add indexes an additional document for (class, pk), keeping existing ones.
func (x *Index) Add(ctx context.Context, class, pk string, fields map[string]string) (string, error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin index add: %w", err)
	}
	defer tx.Rollback()

	matchID, err := x.insert(ctx, tx, class, pk, fields)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit index add: %w", err)
	}
	return matchID, nil
}

func (x *Index) insert(ctx context.Context, tx *sql.Tx, class, pk string, fields map[string]string) (string, error) {
	matchID := x.ids.Generate()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO search_documents (match_id, class, pk) VALUES (?, ?, ?)`,
		matchID, class, pk,
	); err != nil {
		return "", fmt.Errorf("insert document %s: %w", matchID, err)
	}

	for field, value := range fields {
		var num any
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			num = f
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_fields (match_id, field, value, num) VALUES (?, ?, ?, ?)`,
			matchID, field, value, num,
		); err != nil {
			return "", fmt.Errorf("insert field %s of %s: %w", field, matchID, err)
		}
	}
	return matchID, nil
}

// Delete removes every document of (class, pk).
func (x *Index) Delete(ctx context.Context, class, pk string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index delete: %w", err)
	}
	defer tx.Rollback()

	if err := deleteDocuments(ctx, tx, class, pk); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index delete: %w", err)
	}
	return nil
}

// deleteDocuments removes fields explicitly so it does not depend on the
// foreign_keys pragma of the caller's connection.
func deleteDocuments(ctx context.Context, tx *sql.Tx, class, pk string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM search_fields WHERE match_id IN (SELECT match_id FROM search_documents WHERE class = ? AND pk = ?)`,
		class, pk,
	); err != nil {
		return fmt.Errorf("delete fields of %s/%s: %w", class, pk, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_documents WHERE class = ? AND pk = ?`, class, pk); err != nil {
		return fmt.Errorf("delete documents of %s/%s: %w", class, pk, err)
	}
	return nil
}

// Search runs a search query scoped to class and returns match identifier
// to primary key. Hits are ordered by match identifier before offset and
// limit apply; limit <= 0 means no limit.
func (x *Index) Search(ctx context.Context, class, query string, offset, limit int) (map[string]string, error) {
	tree, err := parseQuery(query)
	if err != nil {
		return nil, err
	}
	where, params := compileNode(tree)

	if limit <= 0 {
		limit = -1
	}
	stmt := "SELECT d.match_id, d.pk FROM search_documents d WHERE d.class = ? AND " + where +
		" ORDER BY d.match_id COLLATE BINARY ASC LIMIT ? OFFSET ?"
	args := append([]any{class}, params...)
	args = append(args, limit, offset)

	x.logger.Debug("search", zap.String("class", class), zap.String("query", query))

	rows, err := x.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", class, err)
	}
	defer rows.Close()

	hits := make(map[string]string)
	for rows.Next() {
		var matchID, pk string
		if err := rows.Scan(&matchID, &pk); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits[matchID] = pk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}

// compileNode converts a parsed search expression into a parameterized
// SQL condition over search_documents d.
func compileNode(n node) (string, []any) {
	switch q := n.(type) {
	case boolNode:
		left, lp := compileNode(q.left)
		right, rp := compileNode(q.right)
		return "(" + left + " " + q.op + " " + right + ")", append(lp, rp...)

	case termNode:
		cond, params := termCondition(q)
		return fieldExists(cond), append([]any{q.field}, params...)

	case rangeNode:
		cond, params := rangeCondition(q)
		return fieldExists(cond), append([]any{q.field}, params...)

	default:
		return "0", nil
	}
}

func fieldExists(cond string) string {
	return "EXISTS (SELECT 1 FROM search_fields f WHERE f.match_id = d.match_id AND f.field = ? AND " + cond + ")"
}

func termCondition(t termNode) (string, []any) {
	if t.prefix {
		return `f.value LIKE ? ESCAPE '\'`, []any{escapeLike(t.value) + "%"}
	}
	if num, ok := number(t.value); ok {
		return "(f.value = ? OR f.num = ?)", []any{t.value, num}
	}
	return "f.value = ?", []any{t.value}
}

// rangeCondition compares numerically when every closed bound is a
// number, and as text otherwise. A non-numeric open end arrives as the
// literal "null" and is compared as text like any other bound.
func rangeCondition(r rangeNode) (string, []any) {
	column := "f.value"
	numeric := true
	for _, b := range []struct {
		value string
		open  bool
	}{{r.lower, r.lowerOpen}, {r.upper, r.upperOpen}} {
		if b.open {
			continue
		}
		if _, ok := number(b.value); !ok {
			numeric = false
		}
	}
	if numeric {
		column = "f.num"
	}

	var conds []string
	var params []any
	add := func(value string, op string) {
		conds = append(conds, column+" "+op+" ?")
		if numeric {
			n, _ := number(value)
			params = append(params, n)
		} else {
			params = append(params, value)
		}
	}
	if !r.lowerOpen {
		if r.lowerInclusive {
			add(r.lower, ">=")
		} else {
			add(r.lower, ">")
		}
	}
	if !r.upperOpen {
		if r.upperInclusive {
			add(r.upper, "<=")
		} else {
			add(r.upper, "<")
		}
	}
	if len(conds) == 0 {
		return "1", nil
	}
	return strings.Join(conds, " AND "), params
}

func number(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
