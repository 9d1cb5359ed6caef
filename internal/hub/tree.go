package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"modelmgr/pkg/types"
)

const (
	// Directories deeper than this below the walk root are not enumerated.
	maxTreeDepth = 4
	// Telemetry directory present in some repositories; never model data.
	excludedDirName = "analytics"
	// Parallel directory fetches per walk.
	treeWalkConcurrency = 4
)

// treeEntry is one row of the remote listing API.
type treeEntry struct {
	Type string `json:"type"` // "file" or "directory"
	Path string `json:"path"`
	Size int64  `json:"size"`
	LFS  *struct {
		Size int64 `json:"size"`
	} `json:"lfs,omitempty"`
}

// effectiveSize prefers the large-file-storage pointer size: listings report
// a small pointer record for binaries tracked out-of-band.
func (e treeEntry) effectiveSize() int64 {
	if e.LFS != nil && e.LFS.Size > 0 {
		return e.LFS.Size
	}
	return e.Size
}

// listTree fetches one directory level of a repository.
// URL shape: {host}/api/{kind}/{repoID}/tree/main[/{subPath}].
func (h *Hub) listTree(ctx context.Context, repoID, subPath string) ([]treeEntry, error) {
	url := fmt.Sprintf("%s/api/%s/%s/tree/main", h.host, h.kind, repoID)
	if subPath != "" {
		url += "/" + subPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", url, err)
	}
	var entries []treeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("list %s: %w", url, err)
	}
	return entries, nil
}

// walkTree recursively enumerates root inside repoID, recursing into
// subdirectories in parallel up to maxTreeDepth levels below root. File
// relative paths are preserved against root so callers can reconstruct the
// directory layout on disk.
func (h *Hub) walkTree(ctx context.Context, repoID, root string) ([]types.ArtifactFile, error) {
	var (
		mu    sync.Mutex
		files []types.ArtifactFile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(treeWalkConcurrency)

	var walk func(path string, depth int) error
	walk = func(path string, depth int) error {
		entries, err := h.listTree(gctx, repoID, path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			switch e.Type {
			case "file":
				rel := relativeTo(root, e.Path)
				af := types.ArtifactFile{
					RelativePath: rel,
					SizeBytes:    e.effectiveSize(),
					DownloadURL:  h.resolveURL(repoID, e.Path),
				}
				mu.Lock()
				files = append(files, af)
				mu.Unlock()
			case "directory":
				if depth >= maxTreeDepth {
					continue
				}
				if baseName(e.Path) == excludedDirName {
					continue
				}
				sub := e.Path
				next := depth + 1
				// TryGo instead of Go: a worker that blocks spawning while
				// holding its own slot could deadlock the pool.
				if !g.TryGo(func() error { return walk(sub, next) }) {
					if err := walk(sub, next); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	g.Go(func() error { return walk(root, 0) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Parallel recursion produces nondeterministic order; sort for stable
	// manifests.
	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, nil
}

func relativeTo(root, path string) string {
	if root == "" {
		return path
	}
	prefix := root + "/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
