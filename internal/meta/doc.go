// Package meta provides the entity metadata catalog consumed by every other
// strata package.
//
// This package contains descriptors and accessors only. All other internal
// packages import meta; meta imports nothing internal except ormerr.
//
// Key design constraints:
//   - Attribute lists are built once, when a catalog is constructed, and
//     iterated as static slices afterwards (no live introspection per call)
//   - Every EntityMetadata has exactly one id attribute
//   - A catalog is immutable after NewCatalog returns and is passed
//     explicitly; there is no process-wide registry
//
// Entities are either Go structs (read and written by StructAccessor) or
// dynamic *Record values (read and written by RecordAccessor). Both satisfy
// the same PropertyAccessor contract so the mapping layers never care which
// one they are holding.
package meta
