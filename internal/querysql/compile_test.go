package querysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/testutil"
)

func clause(p string, op queryir.Operator, v any) queryir.FilterClause {
	return queryir.FilterClause{Property: p, Condition: op, Value: v}
}

func TestCreateTable(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	c := NewSQLCompiler()

	account := testutil.Meta(t, cat, testutil.AccountClass)
	ddl := c.CreateTable(account)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "account" (`+
		`"id" TEXT PRIMARY KEY, "owner" TEXT, "balance" TEXT, "limit" TEXT, "opened" TIMESTAMP, `+
		`"renewal" TIMESTAMP, "score" REAL, "active" BOOLEAN, "visits" INTEGER, "city" TEXT, "zip" TEXT)`, ddl)

	author := testutil.Meta(t, cat, testutil.AuthorClass)
	assert.Contains(t, c.CreateTable(author), `"address_id" TEXT`)
	assert.NotContains(t, c.CreateTable(author), "books")

	books, ok := author.Relation("books")
	require.True(t, ok)
	assert.Contains(t, c.CreateJoinTable(books), `"author_books"`)
}

func TestSelect(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	person := testutil.Meta(t, cat, testutil.PersonClass)
	c := NewSQLCompiler()

	sql, cols, params, err := c.Select(person, nil, []queryir.Element{
		clause("age", queryir.OpGte, int64(30)),
		queryir.And,
		queryir.LParen,
		clause("name", queryir.OpLike, "A_"),
		queryir.Or,
		clause("name", queryir.OpEq, "Grace"),
		queryir.RParen,
	}, 100)
	require.NoError(t, err)

	assert.Equal(t, `SELECT "id", "name", "age" FROM "person" WHERE "age" >= ? AND ("name" LIKE ? ESCAPE '\' OR "name" = ?) ORDER BY "id" COLLATE BINARY ASC LIMIT ?`, sql)
	assert.Equal(t, []string{"id", "name", "age"}, cols)
	assert.Equal(t, []any{int64(30), `A\_%`, "Grace", 100}, params)
	assert.NotContains(t, sql, "Grace", "values are never interpolated")
}

func TestSelect_Projection(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	person := testutil.Meta(t, cat, testutil.PersonClass)
	c := NewSQLCompiler()

	sql, cols, params, err := c.Select(person, []string{"name", "id"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name" FROM "person" ORDER BY "id" COLLATE BINARY ASC`, sql)
	assert.Equal(t, []string{"id", "name"}, cols)
	assert.Empty(t, params)

	_, _, _, err = c.Select(person, []string{"salary"}, nil, 0)
	assert.True(t, ormerr.IsQueryHandler(err))
}

func TestSelect_DecimalAndTemporal(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	account := testutil.Meta(t, cat, testutil.AccountClass)
	c := NewSQLCompiler()

	when := time.Date(2021, 1, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	sql, _, params, err := c.Select(account, []string{"owner"}, []queryir.Element{
		clause("balance", queryir.OpGt, testutil.Decimal(t, "10.5")),
		queryir.And,
		clause("opened", queryir.OpLt, when),
		queryir.And,
		clause("home.city", queryir.OpEq, nil),
	}, 0)
	require.NoError(t, err)

	assert.Contains(t, sql, `CAST("balance" AS NUMERIC) > ?`)
	assert.Contains(t, sql, `"opened" < ?`)
	assert.Contains(t, sql, `"city" IS NULL`)
	require.Len(t, params, 2)
	assert.Equal(t, "10.5", params[0])
	assert.Equal(t, time.UTC, params[1].(time.Time).Location())
}

func TestSelect_Errors(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	person := testutil.Meta(t, cat, testutil.PersonClass)
	c := NewSQLCompiler()

	_, _, _, err := c.Select(person, nil, []queryir.Element{clause("salary", queryir.OpEq, 1)}, 0)
	assert.True(t, ormerr.IsQueryHandler(err))

	_, _, _, err = c.Select(person, nil, []queryir.Element{clause("age", queryir.OpEq, queryir.Named("a"))}, 0)
	assert.True(t, ormerr.IsIllegalState(err))

	_, _, _, err = c.Select(person, nil, []queryir.Element{clause("age", queryir.OpEq, 1), queryir.Connector("XOR")}, 0)
	assert.True(t, ormerr.IsIllegalArgument(err))
}

func TestSelectByIDs(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	person := testutil.Meta(t, cat, testutil.PersonClass)
	c := NewSQLCompiler()

	sql, cols, params, err := c.SelectByIDs(person, []string{"age"}, []any{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "age" FROM "person" WHERE "id" IN (?, ?) ORDER BY "id" COLLATE BINARY ASC`, sql)
	assert.Equal(t, []string{"id", "age"}, cols)
	assert.Equal(t, []any{"1", "2"}, params)

	_, _, _, err = c.SelectByIDs(person, nil, nil)
	assert.Error(t, err)
}

func TestUpsert(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	person := testutil.Meta(t, cat, testutil.PersonClass)
	c := NewSQLCompiler()

	sql, params, err := c.Upsert(person, map[string]any{"age": int32(3), "id": "1"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "person" ("id", "age") VALUES (?, ?) ON CONFLICT("id") DO UPDATE SET "name" = excluded."name", "age" = excluded."age"`, sql)
	assert.Equal(t, []any{"1", int32(3)}, params)

	sql, _, err = c.Insert(person, map[string]any{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "person" ("id") VALUES (?)`, sql)

	_, _, err = c.Upsert(person, map[string]any{"age": 1})
	assert.True(t, ormerr.IsMapping(err))
}

func TestLinksAndDelete(t *testing.T) {
	cat := testutil.Catalog(t, "column")
	author := testutil.Meta(t, cat, testutil.AuthorClass)
	books, _ := author.Relation("books")
	c := NewSQLCompiler()

	sql, params := c.SelectLinks(books, "a1")
	assert.Equal(t, `SELECT target_id FROM "author_books" WHERE owner_id = ? ORDER BY position ASC`, sql)
	assert.Equal(t, []any{"a1"}, params)

	sql, params = c.InsertLink(books, "a1", "b1", 0)
	assert.Equal(t, `INSERT INTO "author_books" (owner_id, target_id, position) VALUES (?, ?, ?)`, sql)
	assert.Equal(t, []any{"a1", "b1", 0}, params)

	sql, _ = c.DeleteLinks(books, "a1")
	assert.Equal(t, `DELETE FROM "author_books" WHERE owner_id = ?`, sql)

	sql, params = c.Delete(author, "a1")
	assert.Equal(t, `DELETE FROM "author" WHERE "id" = ?`, sql)
	assert.Equal(t, []any{"a1"}, params)
}
