// Package plugins defines the plugin manifest model and its admission
// rule.
//
// # Overview
//
// Plugin authors publish a plugin.json manifest in their repository.
// This package decides which of those documents are admitted to the
// registry: Validate runs a fixed, ordered set of checks over the
// untyped decoded document and classifies the first failure. It never
// performs I/O and never inspects fields beyond the admission rule, so
// it can be unit tested exhaustively against the reason enumeration.
//
// # Admission Rule
//
// 1. The document must be a mapping.
// 2. name, version, author, type, entry and permissions must be present
// and non-empty, checked in that order.
// 3. type must be one of: js, wasm.
// 4. permissions must be an array.
// 5. category, when present, must be one of: audio, ui, lyrics,
// library, utility.
//
// Everything else passes through unexamined. Normalization of accepted
// manifests into registry entries happens in pkg/registry.
package plugins
