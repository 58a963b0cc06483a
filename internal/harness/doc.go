// Package harness runs YAML scenarios against a catalog and records a
// deterministic trace of every step and lifecycle event.
//
// A scenario names a CUE catalog directory, maps persistence units to
// in-memory backends and lists setup and flow steps:
//
//	name: people
//	description: persist and query people
//	catalog: ../catalog
//	units: {column: sqlite}
//	setup:
//	  - persist: example.Person
//	    values: {id: 1, name: Ada, age: 36}
//	flow:
//	  - query: "SELECT p FROM Person p WHERE p.age >= :min"
//	    params: {min: 30}
//	    expect: {count: 1, results: [{name: Ada}]}
//	assertions:
//	  - type: trace_count
//	    kind: event
//	    action: post-persist
//	    count: 1
//
// Steps returning an ormerr code are outcomes matched against expect.error;
// everything else is a harness failure. Traces render as canonical JSON
// (sorted keys, NFC strings) and are compared against golden files with
// RunWithGolden.
package harness
