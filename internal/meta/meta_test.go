package meta

import (
	"math/big"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLocation struct {
	City string
	Zip  string
}

type testAddress struct {
	ID   string `strata:"id,id"`
	City string
}

type testPerson struct {
	ID       string        `strata:"id,id"`
	Name     string        `strata:"name,column=full_name"`
	Age      int32         `strata:"age"`
	Salary   *apd.Decimal  `strata:"salary"`
	Limit    *big.Int      `strata:"limit"`
	Born     time.Time     `strata:"born"`
	Renewal  *Calendar     `strata:"renewal"`
	Home     testLocation  `strata:"home,embedded"`
	Address  *testAddress  `strata:"address,rel,target=test.Address,join=address_id"`
	Friends  []*testPerson `strata:"friends,rel,target=test.Person,jointable=friends"`
	Tags     []string
	internal string
	Ignored  string `strata:"-"`
}

func describePerson(t *testing.T) *EntityMetadata {
	t.Helper()
	m, err := Describe("test.Person", &testPerson{}, WithUnit("column"))
	require.NoError(t, err)
	return m
}

func TestDescribe_Attributes(t *testing.T) {
	m := describePerson(t)

	assert.Equal(t, "person", m.Table)
	assert.Equal(t, "person", m.IndexName)
	assert.Equal(t, "column", m.PersistenceUnit)
	require.NotNil(t, m.ID)
	assert.Equal(t, "id", m.ID.Name)

	var paths []string
	for _, a := range m.Attributes {
		paths = append(paths, a.Path())
	}
	assert.Equal(t, []string{"id", "name", "age", "salary", "limit", "born", "renewal", "home.city", "home.zip", "tags"}, paths)

	name, ok := m.Attribute("name")
	require.True(t, ok)
	assert.Equal(t, "full_name", name.Column)

	byColumn, ok := m.Attribute("full_name")
	require.True(t, ok)
	assert.Same(t, name, byColumn)

	kinds := map[string]Kind{
		"age":       KindInt32,
		"salary":    KindDecimal,
		"limit":     KindBigInt,
		"born":      KindDate,
		"renewal":   KindCalendar,
		"home.city": KindString,
	}
	for path, want := range kinds {
		a, ok := m.Attribute(path)
		require.True(t, ok, path)
		assert.Equal(t, want, a.Kind, path)
	}

	tags, _ := m.Attribute("tags")
	assert.True(t, tags.Collection)
	assert.NotContains(t, m.Singular(), tags)
}

func TestDescribe_Relations(t *testing.T) {
	m := describePerson(t)

	assert.Equal(t, []string{"address", "friends"}, m.RelationNames())
	assert.True(t, m.RelationViaJoinTable)
	assert.True(t, m.HasRelations())

	addr, ok := m.Relation("address")
	require.True(t, ok)
	assert.Equal(t, "address_id", addr.JoinColumn)
	assert.False(t, addr.Collection)
	assert.False(t, addr.ViaJoinTable())

	friends, ok := m.Relation("friends")
	require.True(t, ok)
	assert.True(t, friends.Collection)
	assert.True(t, friends.ViaJoinTable())
}

func TestEntityMetadata_EnclosingEmbedded(t *testing.T) {
	m := describePerson(t)

	assert.Equal(t, "home", m.EnclosingEmbedded("home.city"))
	assert.Equal(t, "", m.EnclosingEmbedded("age"))
	assert.Equal(t, "", m.EnclosingEmbedded("unknown"))

	field, ok := m.FieldName("full_name")
	require.True(t, ok)
	assert.Equal(t, "name", field)
}

func TestDescribe_RequiresID(t *testing.T) {
	type noID struct{ Name string }
	_, err := Describe("test.NoID", &noID{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no field tagged id")

	_, err = Describe("test.Value", testPerson{})
	require.Error(t, err)
}

func TestStructAccessor_GetSet(t *testing.T) {
	acc := StructAccessor{}
	p := &testPerson{}

	require.NoError(t, acc.Set(p, "Name", "Ada"))
	require.NoError(t, acc.Set(p, "Age", int64(36)))
	require.NoError(t, acc.Set(p, "Home.City", "London"))
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, int32(36), p.Age)
	assert.Equal(t, "London", p.Home.City)

	v, err := acc.Get(p, "Home.City")
	require.NoError(t, err)
	assert.Equal(t, "London", v)

	v, err = acc.Get(p, "Salary")
	require.NoError(t, err)
	assert.Nil(t, v, "nil pointer fields read as nil")

	require.NoError(t, acc.Set(p, "Address.City", "Paris"))
	require.NotNil(t, p.Address, "intermediate pointers are allocated on set")
	assert.Equal(t, "Paris", p.Address.City)

	require.NoError(t, acc.Set(p, "Name", nil))
	assert.Equal(t, "", p.Name)

	assert.Error(t, acc.Set(p, "Name", 42), "numbers never silently convert to strings")
	assert.Error(t, acc.Set(p, "Missing", "x"))
	_, err = acc.Get(testPerson{}, "Name")
	assert.Error(t, err)
}

func TestRecordAccessor(t *testing.T) {
	acc := RecordAccessor{}
	r := NewRecord("test.Dyn")

	require.NoError(t, acc.Set(r, "name", "x"))
	v, err := acc.Get(r, "name")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	v, err = acc.Get(r, "absent")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = acc.Get(&testPerson{}, "name")
	assert.Error(t, err)
}

func TestID(t *testing.T) {
	m := describePerson(t)
	id, err := ID(&testPerson{ID: "p1"}, m)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
}

func TestCatalog(t *testing.T) {
	person := describePerson(t)
	address, err := Describe("test.Address", &testAddress{}, WithUnit("graph"))
	require.NoError(t, err)

	cat, err := NewCatalog(person, address)
	require.NoError(t, err)

	got, err := cat.Entity("test.Person")
	require.NoError(t, err)
	assert.Same(t, person, got)

	got, err = cat.Entity("Address")
	require.NoError(t, err)
	assert.Same(t, address, got)

	_, err = cat.Entity("Missing")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	assert.Equal(t, []*EntityMetadata{address}, cat.Entities("graph"))
	assert.Len(t, cat.Entities(""), 2)
}

func TestCatalog_RejectsInvalid(t *testing.T) {
	person := describePerson(t)

	_, err := NewCatalog(person)
	require.Error(t, err, "relation targets must be registered")

	address, err := Describe("test.Address", &testAddress{})
	require.NoError(t, err)
	_, err = NewCatalog(address, address)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestKind(t *testing.T) {
	assert.True(t, KindInt32.Numeric())
	assert.True(t, KindDecimal.Numeric())
	assert.False(t, KindString.Numeric())
	assert.False(t, KindDate.Numeric())
	assert.True(t, KindCalendar.Temporal())

	k, err := ParseKind("double")
	require.NoError(t, err)
	assert.Equal(t, KindFloat64, k)

	_, err = ParseKind("money")
	assert.Error(t, err)
}

func TestLowerCamel(t *testing.T) {
	testCases := map[string]string{
		"Age":     "age",
		"ID":      "id",
		"URLPath": "urlPath",
		"name":    "name",
	}
	for in, want := range testCases {
		assert.Equal(t, want, lowerCamel(in), in)
	}
}
