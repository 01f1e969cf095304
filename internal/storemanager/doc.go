// Package storemanager coordinates the document lifecycle of a tenant store.
//
// It wires the indexer, cluster manager and search engine over one vector
// store, emits lifecycle events, keeps a bounded in-memory log of document
// versions replaced by updates, and runs the maintenance operations
// (reindex, rebalance, cleanup) while tracking their progress.
package storemanager
