// Package release implements ReleasePoller: a throttled query against
// an upstream "latest release" endpoint (e.g. a code-hosting releases
// API), used to detect new versions to roll out. Grounded on
// cloudflare/client.go's shape for an external API client, backed by
// github.com/hashicorp/go-retryablehttp for resilience against the
// upstream registry's own transient failures, a library already
// present in the teacher's dependency graph by way of cloudflare-go.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var logger = log.New(log.Writer(), "[RELEASE] ", log.LstdFlags)

// Release is the subset of the upstream release payload we care about.
type Release struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	HTMLURL     string `json:"html_url,omitempty"`
}

// ErrInvalidRemote is returned by ParseRemote when the url has fewer
// than two path segments.
var ErrInvalidRemote = errors.New("release: remote url does not contain an owner/repo path")

// Poller queries an upstream releases API for the latest tag.
type Poller struct {
	client *retryablehttp.Client
	apiFmt string // e.g. "https://api.github.com/repos/%s/%s/releases/latest"
}

// New creates a Poller targeting a GitHub-shaped "latest release"
// endpoint. The retryable client retries idempotent GETs against
// transient 5xx/network failures with capped backoff rather than
// failing the whole release sweep. Its logger is disabled, so
// individual retries are not logged.
func New() *Poller {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Poller{
		client: rc,
		apiFmt: "https://api.github.com/repos/%s/%s/releases/latest",
	}
}

// ParseRemote strips the scheme, host, ".git" suffix, and trailing
// slash from a remote url and returns its first two path segments as
// (owner, repo). Returns ErrInvalidRemote when fewer than two segments
// remain.
func ParseRemote(remote string) (owner, repo string, err error) {
	u, parseErr := url.Parse(remote)
	path := remote
	if parseErr == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimPrefix(path, "/")

	segments := strings.Split(path, "/")
	// Without a scheme, url.Parse leaves a host such as "github.com" in
	// the path; drop it when it is followed by owner and repo.
	if (parseErr != nil || u.Host == "") && len(segments) > 2 && strings.Contains(segments[0], ".") {
		segments = segments[1:]
	}
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", ErrInvalidRemote
	}
	return segments[0], segments[1], nil
}

// GetLatest queries the upstream "latest release" endpoint for
// remoteURL. Returns (nil, nil) when the upstream has no releases yet
// (404) or returns any other non-2xx status; both are logged and
// treated as "nothing to report this cycle," never as a hard error.
func (p *Poller) GetLatest(ctx context.Context, remoteURL string) (*Release, error) {
	owner, repo, err := ParseRemote(remoteURL)
	if err != nil {
		logger.Printf("invalid remote url %q: %v", remoteURL, err)
		return nil, nil
	}

	endpoint := fmt.Sprintf(p.apiFmt, owner, repo)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("release: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "podctl-orchestrator")

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Printf("unreachable: %s: %v", endpoint, err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		logger.Printf("no releases for %s/%s", owner, repo)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Printf("warning: %s returned status %d", endpoint, resp.StatusCode)
		return nil, nil
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		logger.Printf("warning: failed to decode release payload from %s: %v", endpoint, err)
		return nil, nil
	}
	return &rel, nil
}

// CheckForUpdate returns the latest release iff its tag differs from
// currentVersion. The comparison is a literal string match, not a
// semver comparison. currentVersion == "" matches "current is null".
func (p *Poller) CheckForUpdate(ctx context.Context, remoteURL, currentVersion string) (*Release, error) {
	latest, err := p.GetLatest(ctx, remoteURL)
	if err != nil || latest == nil {
		return nil, err
	}
	if currentVersion != "" && latest.TagName == currentVersion {
		return nil, nil
	}
	return latest, nil
}
