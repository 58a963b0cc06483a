// Package testutil provides entity fixtures and helpers shared by package tests.
package testutil

import (
	"math/big"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/meta"
)

// Person is a flat entity with no relations.
type Person struct {
	ID   string `strata:"id,id"`
	Name string `strata:"name"`
	Age  int32  `strata:"age"`
}

// Address is the single-valued target of Author.Address.
type Address struct {
	ID     string `strata:"id,id"`
	Street string `strata:"street"`
	City   string `strata:"city"`
}

// Book is the multi-valued target of Author.Books.
type Book struct {
	ID    string `strata:"id,id"`
	Title string `strata:"title"`
	Year  int32  `strata:"year"`
}

// Author references an Address by foreign key and Books through a join table.
type Author struct {
	ID      string   `strata:"id,id"`
	Name    string   `strata:"name"`
	Address *Address `strata:"address,rel,target=example.Address,join=address_id"`
	Books   []*Book  `strata:"books,rel,target=example.Book,jointable=author_books"`
}

// Location is embedded in Account.
type Location struct {
	City string `strata:"city"`
	Zip  string `strata:"zip"`
}

// Account carries every scalar kind.
type Account struct {
	ID      string         `strata:"id,id"`
	Owner   string         `strata:"owner"`
	Balance *apd.Decimal   `strata:"balance"`
	Limit   *big.Int       `strata:"limit"`
	Opened  time.Time      `strata:"opened"`
	Renewal *meta.Calendar `strata:"renewal"`
	Score   float64        `strata:"score"`
	Active  bool           `strata:"active"`
	Visits  int64          `strata:"visits"`
	Home    Location       `strata:"home,embedded"`
}

// Actor holds ActedIn relationship entities pointing at movies.
type Actor struct {
	ID    string     `strata:"id,id"`
	Name  string     `strata:"name"`
	Roles []*ActedIn `strata:"roles,rel,target=example.Movie,mapkey=example.ActedIn"`
}

// Movie is the target of Actor.Roles.
type Movie struct {
	ID    string `strata:"id,id"`
	Title string `strata:"title"`
	Year  int32  `strata:"year"`
}

// ActedIn lives on the edge between an Actor and a Movie. Its Actor and
// Movie fields are the edge endpoints.
type ActedIn struct {
	ID    string `strata:"id,id"`
	Role  string `strata:"role"`
	Actor *Actor `strata:"actor"`
	Movie *Movie `strata:"movie"`
}

// Classes of the fixture entities.
const (
	PersonClass  = "example.Person"
	AddressClass = "example.Address"
	BookClass    = "example.Book"
	AuthorClass  = "example.Author"
	AccountClass = "example.Account"
	ActorClass   = "example.Actor"
	MovieClass   = "example.Movie"
	ActedInClass = "example.ActedIn"
)

// Entities describes every fixture entity in the given persistence unit.
func Entities(t testing.TB, unit string) []*meta.EntityMetadata {
	t.Helper()

	describe := func(class string, proto any) *meta.EntityMetadata {
		m, err := meta.Describe(class, proto, meta.WithUnit(unit))
		require.NoError(t, err)
		return m
	}

	return []*meta.EntityMetadata{
		describe(PersonClass, &Person{}),
		describe(AddressClass, &Address{}),
		describe(BookClass, &Book{}),
		describe(AuthorClass, &Author{}),
		describe(AccountClass, &Account{}),
		describe(ActorClass, &Actor{}),
		describe(MovieClass, &Movie{}),
		describe(ActedInClass, &ActedIn{}),
	}
}

// Catalog builds a catalog of every fixture entity in the given unit.
func Catalog(t testing.TB, unit string) *meta.StaticCatalog {
	t.Helper()
	cat, err := meta.NewCatalog(Entities(t, unit)...)
	require.NoError(t, err)
	return cat
}

// Meta returns the metadata for class from cat.
func Meta(t testing.TB, cat meta.Catalog, class string) *meta.EntityMetadata {
	t.Helper()
	m, err := cat.Entity(class)
	require.NoError(t, err)
	return m
}

// Decimal parses a decimal literal.
func Decimal(t testing.TB, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

// BigInt parses a base-10 integer literal.
func BigInt(t testing.TB, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "invalid big integer %q", s)
	return n
}

// SampleAccount returns an Account with every attribute set.
func SampleAccount(t testing.TB) *Account {
	t.Helper()
	opened := time.Date(2021, time.March, 4, 10, 30, 0, 0, time.UTC)
	return &Account{
		ID:      "acc-1",
		Owner:   "Ada",
		Balance: Decimal(t, "1234.5600"),
		Limit:   BigInt(t, "123456789012345678901234567890"),
		Opened:  opened,
		Renewal: meta.NewCalendar(opened.AddDate(1, 0, 0)),
		Score:   0.75,
		Active:  true,
		Visits:  42,
		Home:    Location{City: "London", Zip: "N1"},
	}
}
