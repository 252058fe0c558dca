// Package github retrieves discovery listings and plugin manifests.
//
// Discovery is one paginated repository search filtered by a topic
// label; manifest fetches are raw-content requests against a
// repository's default branch. The client distinguishes three failure
// shapes: a non-success discovery status (DiscoveryError, fatal to the
// build), a non-success manifest status (ErrManifestNotFound, an
// expected per-item outcome), and transport-level failures, which are
// retried with capped exponential backoff before surfacing.
//
// An optional bearer token raises the API rate limit; without one the
// client still works until GitHub's anonymous ceiling is hit.
package github
