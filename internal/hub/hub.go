// Package hub discovers downloadable model artifacts in known remote
// repositories by walking their tree-structured listing API.
package hub

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"modelmgr/pkg/types"
)

// Repository is one known remote source of model bundles.
type Repository struct {
	Name        string
	ID          string
	Description string
	// Subdirectory enumerated when no prebuilt archive exists, e.g.
	// "variant/compiled".
	TreePath string
}

// Archive naming conventions, most specific first: a repackaged "v2" archive
// wins over the original packaging when both are present.
var archiveSuffixes = []string{"-compiled-v2.zip", "-compiled.zip"}

const (
	defaultHost = "https://huggingface.co"
	defaultKind = "models"
	defaultTTL  = 5 * time.Minute
	// Concurrent repository fetches during discovery.
	discoverConcurrency = 4
)

// defaultRepositories is the built-in catalog of known sources.
var defaultRepositories = []Repository{
	{
		Name:        "Whisper compiled models",
		ID:          "argmaxinc/whisperkit-coreml",
		Description: "Prebuilt speech models, archive or per-file tree",
		TreePath:    "openai_whisper-large-v3/compiled",
	},
	{
		Name:        "Community compiled models",
		ID:          "ggerganov/whisper.cpp",
		Description: "Community conversions without prebuilt archives",
		TreePath:    "models/compiled",
	},
}

// Options configures a Hub.
type Options struct {
	// Host of the listing/download API (default huggingface.co).
	Host string
	// API kind segment (default "models").
	Kind string
	// Repositories to discover; defaults to the built-in list.
	Repositories []Repository
	TTL          time.Duration
	Client       *http.Client
	Logger       zerolog.Logger
}

// Hub walks remote repositories and caches the discovered artifacts.
type Hub struct {
	host   string
	kind   string
	repos  []Repository
	client *http.Client
	cache  *resultCache
	log    zerolog.Logger
}

// New constructs a Hub. The cache is owned by the instance so it can be
// reset deterministically in tests.
func New(o Options) *Hub {
	h := &Hub{
		host:   strings.TrimSuffix(o.Host, "/"),
		kind:   o.Kind,
		repos:  o.Repositories,
		client: o.Client,
		log:    o.Logger,
	}
	if h.host == "" {
		h.host = defaultHost
	}
	if h.kind == "" {
		h.kind = defaultKind
	}
	if h.repos == nil {
		h.repos = defaultRepositories
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: 30 * time.Second}
	}
	ttl := o.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	h.cache = newResultCache(ttl)
	return h
}

// Repositories returns the configured repository list.
func (h *Hub) Repositories() []Repository {
	out := make([]Repository, len(h.repos))
	copy(out, h.repos)
	return out
}

// InvalidateCache drops any cached discovery result.
func (h *Hub) InvalidateCache() { h.cache.reset() }

// Discover returns one artifact per reachable repository. Individual
// repository failures are logged and skipped; they never abort discovery of
// the others. Results are cached for the configured TTL unless forceRefresh
// bypasses it.
func (h *Hub) Discover(ctx context.Context, forceRefresh bool) ([]types.Artifact, error) {
	if !forceRefresh {
		if arts, ok := h.cache.get(time.Now()); ok {
			return arts, nil
		}
	}

	results := make([]*types.Artifact, len(h.repos))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoverConcurrency)
	for i, repo := range h.repos {
		i, repo := i, repo
		g.Go(func() error {
			art, err := h.discoverRepo(gctx, repo)
			if err != nil {
				// Isolated failure: warn with the repository id and move on.
				h.log.Warn().Str("repo", repo.ID).Err(err).Msg("repository discovery failed")
				return nil
			}
			mu.Lock()
			results[i] = art
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	arts := make([]types.Artifact, 0, len(results))
	for _, a := range results {
		if a != nil {
			arts = append(arts, *a)
		}
	}
	h.cache.put(arts, time.Now())
	return arts, nil
}

// discoverRepo produces the repository's artifact: the best archive match
// when one exists, otherwise the multi-file manifest of its tree path.
func (h *Hub) discoverRepo(ctx context.Context, repo Repository) (*types.Artifact, error) {
	top, err := h.listTree(ctx, repo.ID, "")
	if err != nil {
		return nil, err
	}
	if e, ok := bestArchive(top); ok {
		return &types.Artifact{
			RepoID:      repo.ID,
			Name:        baseName(e.Path),
			Description: repo.Description,
			Kind:        types.ArtifactArchive,
			TotalBytes:  e.effectiveSize(),
			Files: []types.ArtifactFile{{
				RelativePath: baseName(e.Path),
				SizeBytes:    e.effectiveSize(),
				DownloadURL:  h.resolveURL(repo.ID, e.Path),
			}},
		}, nil
	}
	if repo.TreePath == "" {
		h.log.Debug().Str("repo", repo.ID).Msg("no archive and no tree path configured")
		return nil, nil
	}
	files, err := h.walkTree(ctx, repo.ID, repo.TreePath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		h.log.Debug().Str("repo", repo.ID).Msg("tree path is empty")
		return nil, nil
	}
	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}
	return &types.Artifact{
		RepoID:      repo.ID,
		Name:        repo.Name,
		Description: repo.Description,
		Kind:        types.ArtifactTree,
		TotalBytes:  total,
		Files:       files,
	}, nil
}

// bestArchive scans entries against the archive conventions in order of
// specificity; the first convention with a match wins.
func bestArchive(entries []treeEntry) (treeEntry, bool) {
	for _, suffix := range archiveSuffixes {
		for _, e := range entries {
			if e.Type == "file" && strings.HasSuffix(e.Path, suffix) {
				return e, true
			}
		}
	}
	return treeEntry{}, false
}

// resolveURL builds the direct download URL:
// {host}/{repoID}/resolve/main/{path}.
func (h *Hub) resolveURL(repoID, path string) string {
	return h.host + "/" + repoID + "/resolve/main/" + path
}
