// Package types defines the shared domain model for the Nexus retrieval
// engine: chunks, stored vectors, search hits, and the sentinel errors
// every engine reports through.
//
// The package is a leaf: it imports nothing from internal/ so that storage,
// the semantic engines, and the searcher can all depend on it without cycles.
package types
