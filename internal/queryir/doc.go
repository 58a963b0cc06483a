// Package queryir provides the store-agnostic clause model shared by every
// strata backend.
//
// A query is an entity class plus two ordered sequences:
//
//	Filters: FilterClause and Connector elements, in source order
//	Updates: UpdateClause assignments, applied in source order
//
// ARCHITECTURE:
//
//	[query string] → Parse → [Query] → Resolve → [backend compilers]
//	                                          → querysearch (search index)
//	                                          → querysql    (column store)
//	                                          → graph       (in-memory filter)
//
// SEALED ELEMENTS:
//
// Element is a sealed interface using the marker method pattern. Only
// FilterClause and Connector implement it, so backends can switch
// exhaustively:
//
//	switch e := el.(type) {
//	case FilterClause:
//	    // predicate
//	case Connector:
//	    // AND, OR, "(" or ")" spliced verbatim
//	}
//
// Connectors are opaque tokens. Backends translate them positionally and
// never restructure the sequence, so left-to-right order survives into
// every emitted query.
//
// PARAMETERS:
//
// A clause value may be a Param (":name" or "?1"). Parameters are bound on
// the Query and substituted by Resolve; backends only ever see literals.
package queryir
