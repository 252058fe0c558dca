package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/harmonium-app/plugin-registry/pkg/github"
	"github.com/harmonium-app/plugin-registry/pkg/plugins"
)

// Skip labels for per-item outcomes that are not validation reasons.
const (
	skipNotFound    = "not_found"
	skipFetchFailed = "fetch_failed"
)

// Fetcher is the transport the builder drives. *github.Client
// implements it; tests substitute fakes.
type Fetcher interface {
	Discover(ctx context.Context, topic string) ([]github.Repository, error)
	FetchManifest(ctx context.Context, repo github.Repository) ([]byte, error)
	ManifestURL(repo github.Repository) string
}

// Summary describes one build for logging and the CLI exit report.
type Summary struct {
	BuildID    string
	Topic      string
	Discovered int
	Accepted   int
	Skipped    map[string]int
	Duration   time.Duration
}

// Builder assembles the registry document: it drives discovery, fetches
// and validates each candidate manifest, and folds accepted entries
// into a document in discovery order.
type Builder struct {
	fetcher Fetcher
	logger  *logrus.Logger
	workers int
}

// NewBuilder creates a builder. workers bounds how many fetch+validate
// cycles run concurrently; values below 1 mean sequential.
func NewBuilder(fetcher Fetcher, logger *logrus.Logger, workers int) *Builder {
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		fetcher: fetcher,
		logger:  logger,
		workers: workers,
	}
}

// Build produces a registry document for one topic. A discovery failure
// aborts the whole build; every per-item failure (missing manifest,
// exhausted fetch retries, validation rejection) is logged and skipped
// so that one bad repository never takes the build down. Entries appear
// in discovery order regardless of worker completion order, and
// duplicate plugin names are preserved as-is.
func (b *Builder) Build(ctx context.Context, topic string) (*Document, *Summary, error) {
	start := time.Now()
	buildID := uuid.NewString()
	log := b.logger.WithFields(logrus.Fields{"build_id": buildID, "topic": topic})

	repos, err := b.fetcher.Discover(ctx, topic)
	if err != nil {
		return nil, nil, fmt.Errorf("discovery failed: %w", err)
	}
	log.Infof("discovered %d candidate repositories", len(repos))

	// One slot per discovery index: workers write disjoint slots, so no
	// shared accumulator is mutated concurrently and the final order is
	// the discovery order.
	slots := make([]*Entry, len(repos))
	skipReasons := make([]string, len(repos))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			entry, reason := b.processRepository(ctx, log, repo)
			slots[i] = entry
			skipReasons[i] = reason
			return nil
		})
	}
	// Workers report outcomes through their slots, never errors.
	_ = g.Wait()

	entries := make([]Entry, 0, len(repos))
	skipped := make(map[string]int)
	for i := range slots {
		if slots[i] != nil {
			entries = append(entries, *slots[i])
		} else {
			skipped[skipReasons[i]]++
		}
	}

	doc := &Document{
		Version:   SchemaVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Plugins:   entries,
	}
	summary := &Summary{
		BuildID:    buildID,
		Topic:      topic,
		Discovered: len(repos),
		Accepted:   len(entries),
		Skipped:    skipped,
		Duration:   time.Since(start),
	}

	log.WithFields(logrus.Fields{
		"accepted": summary.Accepted,
		"skipped":  len(repos) - summary.Accepted,
	}).Info("build complete")

	return doc, summary, nil
}

// processRepository runs one fetch+validate cycle. It returns either an
// entry or a skip reason label; it never fails the build.
func (b *Builder) processRepository(ctx context.Context, log *logrus.Entry, repo github.Repository) (*Entry, string) {
	itemLog := log.WithField("repo", repo.FullName)

	body, err := b.fetcher.FetchManifest(ctx, repo)
	if errors.Is(err, github.ErrManifestNotFound) {
		itemLog.Debug("no manifest published, skipping")
		return nil, skipNotFound
	}
	if err != nil {
		itemLog.WithError(err).Warn("manifest fetch failed, skipping")
		return nil, skipFetchFailed
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		doc = nil // undecodable bodies are classified by the validator
	}

	result := plugins.Validate(doc)
	if !result.Accepted {
		itemLog.WithField("reason", result.String()).Info("manifest rejected, skipping")
		return nil, string(result.Reason)
	}

	raw, _ := doc.(map[string]any)
	return b.newEntry(plugins.RawManifest(raw), repo), ""
}

// newEntry normalizes an accepted manifest into a registry entry,
// applying the documented defaults: description falls back to the
// empty string, homepage to the repository URL, and license to the
// repository's declared license.
func (b *Builder) newEntry(raw plugins.RawManifest, repo github.Repository) *Entry {
	manifest := plugins.Manifest{
		Name:        stringField(raw, "name"),
		Version:     stringField(raw, "version"),
		Author:      stringField(raw, "author"),
		Description: stringField(raw, "description"),
		Type:        plugins.PluginType(stringField(raw, "type")),
		Entry:       stringField(raw, "entry"),
		Permissions: stringSlice(raw["permissions"]),
		UI:          stringSlice(raw["ui"]),
		Icon:        stringField(raw, "icon"),
		Homepage:    stringField(raw, "homepage"),
		Category:    plugins.Category(stringField(raw, "category")),
		Tags:        stringSlice(raw["tags"]),
		License:     stringField(raw, "license"),
	}

	if manifest.Homepage == "" {
		manifest.Homepage = repo.HTMLURL
	}
	if manifest.License == "" {
		manifest.License = repo.LicenseID()
	}

	return &Entry{
		Manifest:    manifest,
		Curated:     false,
		Verified:    false,
		Repo:        repo.HTMLURL,
		ManifestURL: b.fetcher.ManifestURL(repo),
		Stars:       repo.Stars,
		Downloads:   0,
		LastUpdated: repo.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// stringField reads a manifest field as a string. Authors occasionally
// publish scalars of the wrong kind (a numeric version, say), so
// non-string scalars are rendered rather than dropped.
func stringField(raw plugins.RawManifest, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// stringSlice reads a manifest field as a string sequence, preserving
// element order.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}
