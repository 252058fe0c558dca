// Package storage persists the built registry artifact.
//
// Two backends implement the Writer interface: a filesystem writer that
// writes through a temp file and an atomic rename, and an S3 writer for
// object-store deployments (MinIO supported via custom endpoint and
// path-style addressing). Write failures are fatal to the build by
// contract — a truncated or empty registry is worse than a failed build
// that leaves the previous artifact intact.
package storage
