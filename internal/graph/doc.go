// Package graph maps entities onto a property graph.
//
// Entities become nodes labelled with their index name and keyed by their
// id property. Multi-valued relations become outgoing relationships typed
// by the relation's join column (or its upper-cased property name). When a
// relation carries a relationship entity, that entity's attributes live on
// the relationship, except the attributes pointing back at either
// endpoint.
//
// Two Store implementations exist: Neo4jStore talks to a Neo4j server
// through the official driver, and MemStore keeps the graph in memory for
// tests and embedded use. Client adapts either to client.Client.
package graph
