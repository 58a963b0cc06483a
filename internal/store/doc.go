// Package store provides the SQLite column store client.
//
// A Store maps every entity of its persistence unit to one table compiled
// by querysql: the id column, one column per singular attribute, and one
// foreign-key column per single-valued relation. Multi-valued relations
// live in join tables of (owner_id, target_id, position) rows.
//
// # Critical Patterns
//
// Deterministic results: every SELECT orders by primary key with
// COLLATE BINARY, and join-table targets come back in insertion order.
//
// Parameterized statements: values never appear in SQL text.
//
// Search: when enabled, every persist and merge re-indexes the entity in
// an index.Index sharing the same database, and removals drop its
// documents. Index writes happen after the row transaction commits.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
