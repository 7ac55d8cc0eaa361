package release

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

func TestParseRemote(t *testing.T) {
	cases := []struct {
		remote    string
		wantOwner string
		wantRepo  string
		wantErr   error
	}{
		{"https://github.com/acme/widgets", "acme", "widgets", nil},
		{"https://github.com/acme/widgets.git", "acme", "widgets", nil},
		{"https://github.com/acme/widgets/", "acme", "widgets", nil},
		{"github.com/acme/widgets", "acme", "widgets", nil},
		{"acme/widgets", "acme", "widgets", nil},
		{"https://github.com/acme", "", "", ErrInvalidRemote},
		{"", "", "", ErrInvalidRemote},
	}

	for _, c := range cases {
		owner, repo, err := ParseRemote(c.remote)
		if !errors.Is(err, c.wantErr) {
			t.Errorf("ParseRemote(%q) err = %v, want %v", c.remote, err, c.wantErr)
			continue
		}
		if err == nil && (owner != c.wantOwner || repo != c.wantRepo) {
			t.Errorf("ParseRemote(%q) = (%q, %q), want (%q, %q)", c.remote, owner, repo, c.wantOwner, c.wantRepo)
		}
	}
}

func testPoller(apiFmt string) *Poller {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.HTTPClient.Timeout = 2 * time.Second
	rc.Logger = nil
	return &Poller{client: rc, apiFmt: apiFmt}
}

func TestGetLatestNotFoundIsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := testPoller(srv.URL + "/repos/%s/%s/releases/latest")
	rel, err := p.GetLatest(context.Background(), "acme/widgets")
	if err != nil || rel != nil {
		t.Errorf("GetLatest() = %+v, %v, want nil, nil", rel, err)
	}
}

func TestGetLatestDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tag_name": "v2.0.0"}`))
	}))
	defer srv.Close()

	p := testPoller(srv.URL + "/repos/%s/%s/releases/latest")
	rel, err := p.GetLatest(context.Background(), "acme/widgets")
	if err != nil || rel == nil || rel.TagName != "v2.0.0" {
		t.Errorf("GetLatest() = %+v, %v, want tag v2.0.0", rel, err)
	}
}

func TestCheckForUpdateNoOpWhenSameVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tag_name": "v1.0.0"}`))
	}))
	defer srv.Close()

	p := testPoller(srv.URL + "/repos/%s/%s/releases/latest")
	rel, err := p.CheckForUpdate(context.Background(), "acme/widgets", "v1.0.0")
	if err != nil || rel != nil {
		t.Errorf("CheckForUpdate() = %+v, %v, want nil, nil for unchanged version", rel, err)
	}
}

func TestCheckForUpdateHitOnNewVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tag_name": "v2.0.0"}`))
	}))
	defer srv.Close()

	p := testPoller(srv.URL + "/repos/%s/%s/releases/latest")
	rel, err := p.CheckForUpdate(context.Background(), "acme/widgets", "v1.0.0")
	if err != nil || rel == nil || rel.TagName != "v2.0.0" {
		t.Errorf("CheckForUpdate() = %+v, %v, want tag v2.0.0", rel, err)
	}
}
