package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmonium-app/plugin-registry/pkg/github"
	"github.com/harmonium-app/plugin-registry/pkg/plugins"
)

type fakeFetcher struct {
	repos       []github.Repository
	discoverErr error
	manifests   map[string][]byte
	fetchErrs   map[string]error
	delays      map[string]time.Duration
	fetchCalls  atomic.Int32
}

func (f *fakeFetcher) Discover(ctx context.Context, topic string) ([]github.Repository, error) {
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.repos, nil
}

func (f *fakeFetcher) FetchManifest(ctx context.Context, repo github.Repository) ([]byte, error) {
	f.fetchCalls.Add(1)
	if d := f.delays[repo.FullName]; d > 0 {
		time.Sleep(d)
	}
	if err := f.fetchErrs[repo.FullName]; err != nil {
		return nil, err
	}
	if body, ok := f.manifests[repo.FullName]; ok {
		return body, nil
	}
	return nil, github.ErrManifestNotFound
}

func (f *fakeFetcher) ManifestURL(repo github.Repository) string {
	return fmt.Sprintf("https://raw.example.com/%s/%s/plugin.json", repo.FullName, repo.DefaultBranch)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRepo(name string, stars int) github.Repository {
	return github.Repository{
		FullName:      name,
		DefaultBranch: "main",
		HTMLURL:       "https://github.com/" + name,
		Stars:         stars,
		UpdatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		License:       &github.License{SPDXID: "MIT"},
	}
}

func minimalManifest(name string) []byte {
	return fmt.Appendf(nil, `{
		"name": %q,
		"version": "1.0.0",
		"author": "Acme",
		"type": "js",
		"entry": "index.js",
		"permissions": ["player:read"]
	}`, name)
}

func TestBuildEndToEnd(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repository{testRepo("acme/my-plugin", 42)},
		manifests: map[string][]byte{
			"acme/my-plugin": []byte(`{
				"name": "My Plugin",
				"version": "1.0.0",
				"author": "Acme",
				"type": "js",
				"entry": "index.js",
				"permissions": ["player:read"]
			}`),
		},
	}

	builder := NewBuilder(fetcher, testLogger(), 1)
	doc, summary, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, doc.Version)
	require.Len(t, doc.Plugins, 1)

	entry := doc.Plugins[0]
	assert.Equal(t, "My Plugin", entry.Manifest.Name)
	assert.Equal(t, "1.0.0", entry.Manifest.Version)
	assert.Equal(t, "Acme", entry.Manifest.Author)
	assert.Equal(t, plugins.PluginTypeJS, entry.Manifest.Type)
	assert.Equal(t, "index.js", entry.Manifest.Entry)
	assert.Equal(t, []string{"player:read"}, entry.Manifest.Permissions)
	assert.Equal(t, "", entry.Manifest.Description)
	assert.Equal(t, "MIT", entry.Manifest.License)
	assert.Equal(t, "https://github.com/acme/my-plugin", entry.Manifest.Homepage)
	assert.False(t, entry.Curated)
	assert.False(t, entry.Verified)
	assert.Equal(t, "https://github.com/acme/my-plugin", entry.Repo)
	assert.Equal(t, "https://raw.example.com/acme/my-plugin/main/plugin.json", entry.ManifestURL)
	assert.Equal(t, 42, entry.Stars)
	assert.Equal(t, int64(0), entry.Downloads)
	assert.Equal(t, "2024-05-01T12:00:00Z", entry.LastUpdated)

	assert.Equal(t, 1, summary.Discovered)
	assert.Equal(t, 1, summary.Accepted)
	assert.Empty(t, summary.Skipped)
	assert.NotEmpty(t, summary.BuildID)
}

func TestBuildDocumentShape(t *testing.T) {
	fetcher := &fakeFetcher{
		repos:     []github.Repository{testRepo("acme/my-plugin", 42)},
		manifests: map[string][]byte{"acme/my-plugin": minimalManifest("My Plugin")},
	}

	builder := NewBuilder(fetcher, testLogger(), 1)
	doc, _, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "version")
	assert.Contains(t, decoded, "updated_at")
	assert.Contains(t, decoded, "plugins")

	entries := decoded["plugins"].([]any)
	entry := entries[0].(map[string]any)
	for _, key := range []string{"manifest", "curated", "verified", "repo", "manifest_url", "stars", "downloads", "lastUpdated"} {
		assert.Contains(t, entry, key)
	}
	// Absent optional manifest fields are omitted, not nulled.
	manifest := entry["manifest"].(map[string]any)
	assert.NotContains(t, manifest, "ui")
	assert.NotContains(t, manifest, "icon")
	assert.NotContains(t, manifest, "category")
	assert.NotContains(t, manifest, "tags")
}

func TestBuildNotFoundAndFailuresAreSkips(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repository{
			testRepo("acme/good", 10),
			testRepo("acme/no-manifest", 9),
			testRepo("acme/flaky", 8),
		},
		manifests: map[string][]byte{"acme/good": minimalManifest("Good")},
		fetchErrs: map[string]error{"acme/flaky": errors.New("connection reset")},
	}

	builder := NewBuilder(fetcher, testLogger(), 1)
	doc, summary, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)

	require.Len(t, doc.Plugins, 1)
	assert.Equal(t, "Good", doc.Plugins[0].Manifest.Name)
	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 1, summary.Accepted)
	assert.Equal(t, 1, summary.Skipped["not_found"])
	assert.Equal(t, 1, summary.Skipped["fetch_failed"])
}

func TestBuildValidationRejectionsAreSkips(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repository{
			testRepo("acme/garbled", 10),
			testRepo("acme/incomplete", 9),
			testRepo("acme/wrong-type", 8),
		},
		manifests: map[string][]byte{
			"acme/garbled":    []byte("not json at all"),
			"acme/incomplete": []byte(`{"name":"X"}`),
			"acme/wrong-type": []byte(`{"name":"X","version":"1","author":"A","type":"py","entry":"x","permissions":[]}`),
		},
	}

	builder := NewBuilder(fetcher, testLogger(), 1)
	doc, summary, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)

	assert.Empty(t, doc.Plugins)
	assert.Equal(t, 1, summary.Skipped[string(plugins.ReasonMalformedDocument)])
	assert.Equal(t, 1, summary.Skipped[string(plugins.ReasonMissingField)])
	assert.Equal(t, 1, summary.Skipped[string(plugins.ReasonInvalidType)])
}

func TestBuildDiscoveryFailureAbortsBeforeFetch(t *testing.T) {
	fetcher := &fakeFetcher{
		discoverErr: &github.DiscoveryError{StatusCode: 503},
	}

	builder := NewBuilder(fetcher, testLogger(), 1)
	_, _, err := builder.Build(context.Background(), "harmonium-plugin")

	var discErr *github.DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, 503, discErr.StatusCode)
	assert.Equal(t, int32(0), fetcher.fetchCalls.Load())
}

func TestBuildPreservesDiscoveryOrderWithWorkers(t *testing.T) {
	var repos []github.Repository
	manifests := make(map[string][]byte)
	delays := make(map[string]time.Duration)
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("acme/plugin-%d", i)
		repos = append(repos, testRepo(name, 100-i))
		manifests[name] = minimalManifest(name)
		// Earlier items finish later, so completion order inverts
		// discovery order.
		delays[name] = time.Duration(8-i) * 5 * time.Millisecond
	}

	fetcher := &fakeFetcher{repos: repos, manifests: manifests, delays: delays}
	builder := NewBuilder(fetcher, testLogger(), 4)

	doc, _, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)

	require.Len(t, doc.Plugins, 8)
	for i, entry := range doc.Plugins {
		assert.Equal(t, fmt.Sprintf("acme/plugin-%d", i), entry.Manifest.Name)
	}
}

func TestBuildDeterministic(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repository{testRepo("acme/a", 5), testRepo("acme/b", 3)},
		manifests: map[string][]byte{
			"acme/a": minimalManifest("A"),
			"acme/b": minimalManifest("B"),
		},
	}
	builder := NewBuilder(fetcher, testLogger(), 2)

	first, _, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)
	second, _, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Plugins, second.Plugins)
}

func TestBuildDuplicateNamesPreserved(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repository{testRepo("acme/original", 50), testRepo("fork/original", 2)},
		manifests: map[string][]byte{
			"acme/original": minimalManifest("Same Name"),
			"fork/original": minimalManifest("Same Name"),
		},
	}

	builder := NewBuilder(fetcher, testLogger(), 1)
	doc, _, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)

	require.Len(t, doc.Plugins, 2)
	assert.Equal(t, "https://github.com/acme/original", doc.Plugins[0].Repo)
	assert.Equal(t, "https://github.com/fork/original", doc.Plugins[1].Repo)
}

func TestBuildEmptyRegistryMarshalsAsArray(t *testing.T) {
	builder := NewBuilder(&fakeFetcher{}, testLogger(), 1)
	doc, summary, err := builder.Build(context.Background(), "harmonium-plugin")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Accepted)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"plugins":[]`)
}

func TestNormalizationDefaults(t *testing.T) {
	t.Run("no optional fields", func(t *testing.T) {
		fetcher := &fakeFetcher{
			repos:     []github.Repository{testRepo("acme/bare", 1)},
			manifests: map[string][]byte{"acme/bare": minimalManifest("Bare")},
		}
		builder := NewBuilder(fetcher, testLogger(), 1)

		doc, _, err := builder.Build(context.Background(), "harmonium-plugin")
		require.NoError(t, err)
		require.Len(t, doc.Plugins, 1)

		m := doc.Plugins[0].Manifest
		assert.Equal(t, "", m.Description)
		assert.Equal(t, "https://github.com/acme/bare", m.Homepage)
		assert.Equal(t, "MIT", m.License)
	})

	t.Run("all optional fields supplied", func(t *testing.T) {
		fetcher := &fakeFetcher{
			repos: []github.Repository{testRepo("acme/full", 1)},
			manifests: map[string][]byte{"acme/full": []byte(`{
				"name": "Full",
				"version": "2.0.0",
				"author": "Acme",
				"type": "wasm",
				"entry": "main.wasm",
				"permissions": ["player:read", "library:write"],
				"description": "Does everything",
				"homepage": "https://full.example.com",
				"license": "Apache-2.0",
				"ui": ["sidebar", "settings"],
				"icon": "icon.svg",
				"category": "audio",
				"tags": ["eq", "dsp"]
			}`)},
		}
		builder := NewBuilder(fetcher, testLogger(), 1)

		doc, _, err := builder.Build(context.Background(), "harmonium-plugin")
		require.NoError(t, err)
		require.Len(t, doc.Plugins, 1)

		m := doc.Plugins[0].Manifest
		assert.Equal(t, "Does everything", m.Description)
		assert.Equal(t, "https://full.example.com", m.Homepage)
		assert.Equal(t, "Apache-2.0", m.License)
		assert.Equal(t, []string{"sidebar", "settings"}, m.UI)
		assert.Equal(t, "icon.svg", m.Icon)
		assert.Equal(t, plugins.CategoryAudio, m.Category)
		assert.Equal(t, []string{"eq", "dsp"}, m.Tags)
		assert.Equal(t, []string{"player:read", "library:write"}, m.Permissions)
	})

	t.Run("no repository license either", func(t *testing.T) {
		r := testRepo("acme/unlicensed", 1)
		r.License = nil
		fetcher := &fakeFetcher{
			repos:     []github.Repository{r},
			manifests: map[string][]byte{"acme/unlicensed": minimalManifest("Unlicensed")},
		}
		builder := NewBuilder(fetcher, testLogger(), 1)

		doc, _, err := builder.Build(context.Background(), "harmonium-plugin")
		require.NoError(t, err)
		require.Len(t, doc.Plugins, 1)
		assert.Equal(t, "", doc.Plugins[0].Manifest.License)
	})
}

func TestStringFieldToleratesLooseScalars(t *testing.T) {
	raw := plugins.RawManifest{
		"version": float64(2),
		"name":    "X",
		"nested":  map[string]any{"a": 1},
		"list":    []any{"a"},
	}

	assert.Equal(t, "2", stringField(raw, "version"))
	assert.Equal(t, "X", stringField(raw, "name"))
	assert.Equal(t, "", stringField(raw, "nested"))
	assert.Equal(t, "", stringField(raw, "list"))
	assert.Equal(t, "", stringField(raw, "absent"))
}

func TestStringSlicePreservesOrder(t *testing.T) {
	got := stringSlice([]any{"b", "a", float64(3)})
	assert.Equal(t, []string{"b", "a", "3"}, got)
	assert.Nil(t, stringSlice("scalar"))
	assert.Nil(t, stringSlice(nil))
}
