package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelmgr/pkg/types"
)

// fakeListing maps "repoID" or "repoID/subPath" to tree entries.
type fakeListing map[string][]treeEntry

func newFakeServer(t *testing.T, listing fakeListing, failRepos map[string]int, hits *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		// Path shape: /api/models/{owner}/{repo}/tree/main[/{subPath}];
		// collapse it back to the listing key "{owner}/{repo}[/{subPath}]".
		lookup := strings.TrimPrefix(r.URL.Path, "/api/models/")
		lookup = strings.Replace(lookup, "/tree/main", "", 1)
		lookup = strings.TrimSuffix(lookup, "/")
		if code, bad := failRepos[lookup]; bad {
			w.WriteHeader(code)
			return
		}
		entries, ok := listing[lookup]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(entries)
	}))
}

func newTestHub(url string, repos []Repository, ttl time.Duration) *Hub {
	return New(Options{
		Host:         url,
		Repositories: repos,
		TTL:          ttl,
		Logger:       zerolog.Nop(),
	})
}

func lfs(size int64) *struct {
	Size int64 `json:"size"`
} {
	return &struct {
		Size int64 `json:"size"`
	}{Size: size}
}

func TestDiscoverMultiFileWithFailingSibling(t *testing.T) {
	listing := fakeListing{
		"acme/speech": {
			{Type: "file", Path: "README.md", Size: 120},
			{Type: "directory", Path: "variant"},
		},
		"acme/speech/variant/compiled": {
			{Type: "file", Path: "variant/compiled/weights.bin", Size: 134, LFS: lfs(1_000_000_000)},
			{Type: "file", Path: "variant/compiled/config.json", Size: 50_000_000},
			{Type: "directory", Path: "variant/compiled/sub"},
			{Type: "directory", Path: "variant/compiled/analytics"},
		},
		"acme/speech/variant/compiled/sub": {
			{Type: "file", Path: "variant/compiled/sub/extra.bin", Size: 800_000_000},
		},
		"broken/repo": nil,
	}
	srv := newFakeServer(t, listing, map[string]int{"broken/repo": http.StatusInternalServerError}, nil)
	defer srv.Close()

	h := newTestHub(srv.URL, []Repository{
		{Name: "speech", ID: "acme/speech", TreePath: "variant/compiled"},
		{Name: "broken", ID: "broken/repo", TreePath: "whatever"},
	}, time.Minute)

	arts, err := h.Discover(context.Background(), false)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("expected exactly one artifact from the healthy repo, got %d", len(arts))
	}
	a := arts[0]
	if a.Kind != types.ArtifactTree {
		t.Fatalf("expected tree artifact, got %s", a.Kind)
	}
	if a.TotalBytes != 1_850_000_000 {
		t.Fatalf("expected aggregate 1850000000, got %d", a.TotalBytes)
	}
	if len(a.Files) != 3 {
		t.Fatalf("expected 3 files, got %d: %+v", len(a.Files), a.Files)
	}
	wantRel := map[string]bool{"weights.bin": true, "config.json": true, "sub/extra.bin": true}
	for _, f := range a.Files {
		if !wantRel[f.RelativePath] {
			t.Fatalf("unexpected relative path %q", f.RelativePath)
		}
		if f.DownloadURL != srv.URL+"/acme/speech/resolve/main/variant/compiled/"+f.RelativePath {
			t.Fatalf("bad download url %q", f.DownloadURL)
		}
	}
}

func TestDiscoverPrefersLFSPointerSize(t *testing.T) {
	listing := fakeListing{
		"acme/speech": {
			{Type: "directory", Path: "variant"},
		},
		"acme/speech/variant/compiled": {
			{Type: "file", Path: "variant/compiled/w.bin", Size: 134, LFS: lfs(777)},
		},
	}
	srv := newFakeServer(t, listing, nil, nil)
	defer srv.Close()
	h := newTestHub(srv.URL, []Repository{{ID: "acme/speech", TreePath: "variant/compiled"}}, time.Minute)
	arts, err := h.Discover(context.Background(), false)
	if err != nil || len(arts) != 1 {
		t.Fatalf("discover: %v arts=%d", err, len(arts))
	}
	if arts[0].Files[0].SizeBytes != 777 {
		t.Fatalf("expected LFS size 777, got %d", arts[0].Files[0].SizeBytes)
	}
}

func TestDiscoverPrefersV2Archive(t *testing.T) {
	listing := fakeListing{
		"acme/speech": {
			{Type: "file", Path: "model-compiled.zip", Size: 100},
			{Type: "file", Path: "model-compiled-v2.zip", Size: 200},
		},
	}
	srv := newFakeServer(t, listing, nil, nil)
	defer srv.Close()
	h := newTestHub(srv.URL, []Repository{{ID: "acme/speech"}}, time.Minute)
	arts, err := h.Discover(context.Background(), false)
	if err != nil || len(arts) != 1 {
		t.Fatalf("discover: %v arts=%d", err, len(arts))
	}
	a := arts[0]
	if a.Kind != types.ArtifactArchive || a.Name != "model-compiled-v2.zip" || a.TotalBytes != 200 {
		t.Fatalf("expected v2 archive preferred, got %+v", a)
	}
}

func TestDiscoverCacheAndForceRefresh(t *testing.T) {
	var hits int64
	listing := fakeListing{
		"acme/speech": {
			{Type: "file", Path: "model-compiled-v2.zip", Size: 10},
		},
	}
	srv := newFakeServer(t, listing, nil, &hits)
	defer srv.Close()
	h := newTestHub(srv.URL, []Repository{{ID: "acme/speech"}}, time.Minute)

	if _, err := h.Discover(context.Background(), false); err != nil {
		t.Fatalf("discover: %v", err)
	}
	first := atomic.LoadInt64(&hits)
	if _, err := h.Discover(context.Background(), false); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if atomic.LoadInt64(&hits) != first {
		t.Fatalf("cached discover should not hit the server")
	}
	if _, err := h.Discover(context.Background(), true); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if atomic.LoadInt64(&hits) <= first {
		t.Fatalf("forceRefresh must bypass the cache")
	}
}

func TestResultCacheInvalidation(t *testing.T) {
	c := newResultCache(50 * time.Millisecond)
	now := time.Now()
	c.put([]types.Artifact{{RepoID: "a"}}, now)
	if _, ok := c.get(now); !ok {
		t.Fatalf("expected fresh cache hit")
	}
	if _, ok := c.get(now.Add(51 * time.Millisecond)); ok {
		t.Fatalf("expected expired cache miss")
	}
	c.reset()
	if _, ok := c.get(now); ok {
		t.Fatalf("expected miss after reset")
	}
}
