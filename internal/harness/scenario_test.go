package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: one persist
catalog: catalog
flow:
  - persist: example.Person
    values: {id: 1, name: Ada}
assertions:
  - type: trace_count
    action: example.Person
    count: 1
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "catalog", s.Catalog)
	require.Len(t, s.Flow, 1)
	kind, target := s.Flow[0].Kind()
	assert.Equal(t, TracePersist, kind)
	assert.Equal(t, "example.Person", target)
	assert.Equal(t, map[string]any{"id": 1, "name": "Ada"}, s.Flow[0].Values)
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{
			name: "unknown field",
			yaml: minimalScenario + "assertion: []\n",
			msg:  "field assertion not found",
		},
		{
			name: "missing name",
			yaml: "description: d\ncatalog: c\nflow: [{find: A, id: 1}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "name is required",
		},
		{
			name: "missing catalog",
			yaml: "name: n\ndescription: d\nflow: [{find: A, id: 1}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "catalog is required",
		},
		{
			name: "empty flow",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: []\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "flow list is required",
		},
		{
			name: "two operations",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: [{find: A, remove: A, id: 1}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "flow[0]: exactly one of",
		},
		{
			name: "persist without values",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: [{persist: A}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "values are required for persist",
		},
		{
			name: "find without id",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: [{find: A}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "id is required for find",
		},
		{
			name: "unknown mode",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: [{query: 'SELECT a FROM A a', mode: stream}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  `unknown query mode "stream"`,
		},
		{
			name: "params on find",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: [{find: A, id: 1, params: {a: 1}}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "apply to queries only",
		},
		{
			name: "expect in setup",
			yaml: "name: n\ndescription: d\ncatalog: c\nsetup: [{find: A, id: 1, expect: {count: 1}}]\nflow: [{find: A, id: 1}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  "setup[0]: expect is not allowed",
		},
		{
			name: "unsupported backend",
			yaml: "name: n\ndescription: d\ncatalog: c\nunits: {column: neo4j}\nflow: [{find: A, id: 1}]\nassertions: [{type: trace_count, action: A}]\n",
			msg:  `units.column: unsupported backend "neo4j"`,
		},
		{
			name: "final_state without expect",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: [{find: A, id: 1}]\nassertions: [{type: final_state, entity: A, id: 1}]\n",
			msg:  "expect is required for final_state",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\ncatalog: c\nflow: [{find: A, id: 1}]\nassertions: [{type: trace_exists}]\n",
			msg:  `unknown assertion type "trace_exists"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadScenarioResolvesCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "catalog"), 0o755))
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "catalog"), s.Catalog)
}

func TestLoadScenarioMissingCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog directory not found")
}

func TestLoadScenarioTestdata(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			require.NoError(t, err)
		})
	}
}
