package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultRawBaseURL = "https://raw.githubusercontent.com"

	// ManifestPath is the fixed location of a plugin manifest inside a
	// repository.
	ManifestPath = "plugin.json"

	// maxManifestSize bounds how much of a manifest response is read.
	maxManifestSize = 1 << 20

	manifestCacheSize = 512
)

// ErrManifestNotFound indicates a repository carries the discovery
// topic but serves no manifest at the expected path. This is a normal
// outcome, not an error condition for the build.
var ErrManifestNotFound = errors.New("manifest not found")

// DiscoveryError indicates the search endpoint returned a non-success
// status. Discovery failures are fatal to the whole build.
type DiscoveryError struct {
	StatusCode int
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery request failed with status %d", e.StatusCode)
}

// License holds the SPDX identifier GitHub reports for a repository.
type License struct {
	SPDXID string `json:"spdx_id"`
}

// Repository is one candidate source location returned by discovery.
type Repository struct {
	FullName      string    `json:"full_name"`
	DefaultBranch string    `json:"default_branch"`
	HTMLURL       string    `json:"html_url"`
	Stars         int       `json:"stargazers_count"`
	UpdatedAt     time.Time `json:"updated_at"`
	License       *License  `json:"license"`
}

// LicenseID returns the repository's declared SPDX license id, or ""
// when GitHub reports none.
func (r Repository) LicenseID() string {
	if r.License == nil {
		return ""
	}
	return r.License.SPDXID
}

type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []Repository `json:"items"`
}

// Config holds GitHub client settings.
type Config struct {
	// APIBaseURL and RawBaseURL are overridable for tests and GitHub
	// Enterprise deployments.
	APIBaseURL string `yaml:"api_base_url"`
	RawBaseURL string `yaml:"raw_base_url"`

	// Token is an optional bearer credential. Its absence never fails a
	// build; it only lowers the rate-limit ceiling.
	Token string `yaml:"-"`

	PageSize          int           `yaml:"page_size"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxRetries        uint64        `yaml:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
}

// DefaultConfig returns the default GitHub client configuration.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:        defaultAPIBaseURL,
		RawBaseURL:        defaultRawBaseURL,
		PageSize:          100,
		RequestTimeout:    30 * time.Second,
		MaxRetries:        3,
		RetryInitialDelay: time.Second,
	}
}

type cachedManifest struct {
	etag string
	body []byte
}

// Client discovers plugin repositories through the GitHub search API
// and fetches their manifests from raw content URLs. Transport-level
// failures are retried with capped exponential backoff; HTTP statuses
// are interpreted, never retried.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logrus.Logger

	// manifestCache keeps ETag-tagged manifest bodies so repeated
	// builds revalidate with If-None-Match instead of refetching.
	manifestCache *lru.Cache[string, cachedManifest]
}

// NewClient creates a GitHub client. When cfg.Token is set, requests
// carry it as a bearer credential for rate-limit headroom.
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.RawBaseURL == "" {
		cfg.RawBaseURL = defaultRawBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = time.Second
	}

	httpClient := &http.Client{}
	if cfg.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	// A stuck request must never block the whole build.
	httpClient.Timeout = cfg.RequestTimeout

	cache, _ := lru.New[string, cachedManifest](manifestCacheSize)

	return &Client{
		cfg:           cfg,
		httpClient:    httpClient,
		logger:        logger,
		manifestCache: cache,
	}
}

// Discover runs one paginated search for repositories carrying the
// topic label, sorted by stars descending, and returns every item
// across all pages. A non-success status from the search endpoint
// yields a DiscoveryError; there is no partial discovery.
func (c *Client) Discover(ctx context.Context, topic string) ([]Repository, error) {
	var all []Repository

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("q", "topic:"+topic)
		q.Set("sort", "stars")
		q.Set("order", "desc")
		q.Set("per_page", fmt.Sprintf("%d", c.cfg.PageSize))
		q.Set("page", fmt.Sprintf("%d", page))
		searchURL := fmt.Sprintf("%s/search/repositories?%s", c.cfg.APIBaseURL, q.Encode())

		resp, err := c.doWithRetry(ctx, searchURL, nil)
		if err != nil {
			return nil, fmt.Errorf("discovery request failed: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &DiscoveryError{StatusCode: resp.StatusCode}
		}

		var sr searchResponse
		err = json.NewDecoder(resp.Body).Decode(&sr)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode search response: %w", err)
		}

		all = append(all, sr.Items...)
		c.logger.Debugf("discovery page %d returned %d of %d repositories", page, len(sr.Items), sr.TotalCount)

		if len(sr.Items) == 0 || len(all) >= sr.TotalCount {
			return all, nil
		}
	}
}

// FetchManifest requests the manifest at the repository's default
// branch and returns the raw body. Any non-success status, 404
// included, yields ErrManifestNotFound. Transport failures are retried
// before being surfaced, and the caller treats them as a per-item skip.
func (c *Client) FetchManifest(ctx context.Context, repo Repository) ([]byte, error) {
	manifestURL := c.ManifestURL(repo)

	var headers http.Header
	cached, revalidate := c.manifestCache.Get(manifestURL)
	if revalidate {
		headers = http.Header{"If-None-Match": []string{cached.etag}}
	}

	resp, err := c.doWithRetry(ctx, manifestURL, headers)
	if err != nil {
		return nil, fmt.Errorf("manifest fetch failed for %s: %w", repo.FullName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && revalidate:
		c.logger.Debugf("manifest for %s unchanged, using cached copy", repo.FullName)
		return cached.body, nil

	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest for %s: %w", repo.FullName, err)
		}
		if etag := resp.Header.Get("ETag"); etag != "" {
			c.manifestCache.Add(manifestURL, cachedManifest{etag: etag, body: body})
		}
		return body, nil

	default:
		return nil, ErrManifestNotFound
	}
}

// ManifestURL returns the canonical raw-content location of a
// repository's manifest at its default branch.
func (c *Client) ManifestURL(repo Repository) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.cfg.RawBaseURL, repo.FullName, repo.DefaultBranch, ManifestPath)
}

// doWithRetry issues one GET, retrying transport-level failures (DNS,
// timeout, connection reset) with exponential backoff up to the
// configured bound. A response with any status code counts as success
// here; status interpretation belongs to the caller.
func (c *Client) doWithRetry(ctx context.Context, rawURL string, headers http.Header) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		for k, vals := range headers {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.WithError(err).Debugf("transient request failure for %s", rawURL)
			return nil, err
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInitialDelay

	return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
}
