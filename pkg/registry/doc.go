// Package registry assembles the plugin registry document.
//
// # Overview
//
// The Builder drives the whole pipeline for one build: a single
// discovery call, then one fetch+validate cycle per candidate
// repository, then normalization of accepted manifests into entries.
// The output is a pure function of the fetched inputs: identical
// discovery and fetch results produce an identical entry set, and the
// document is overwritten wholesale on every build.
//
// # Partial-Failure Tolerance
//
// The defining robustness property: no single repository can take the
// build down. A missing manifest, a dead host, or a rejected document
// is logged with its reason and skipped. Only two failures are fatal —
// discovery itself failing, and the artifact write (pkg/storage).
//
// # Ordering
//
// Entries appear in discovery-query order. When fetches run
// concurrently, each worker writes into a per-index slot, so completion
// order never leaks into the document.
package registry
