// Package catalog is the persisted source of truth for which model files the
// device holds. Reads are self-healing: entries whose backing file vanished
// are pruned from the persisted record, not merely filtered out.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"modelmgr/internal/common/fsutil"
	"modelmgr/internal/store"
	"modelmgr/pkg/types"
)

type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs the catalog's NotFound error.
func ErrModelNotFound(id string) error { return notFoundError{id: id} }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// Catalog persists DownloadedModel entries in the key-value store and keeps
// them consistent with the filesystem.
type Catalog struct {
	mu        sync.Mutex
	st        *store.Store
	modelsDir string
	log       zerolog.Logger
	now       func() time.Time
}

// New constructs a Catalog over the given store and managed directory.
func New(st *store.Store, modelsDir string, log zerolog.Logger) *Catalog {
	return &Catalog{st: st, modelsDir: modelsDir, log: log, now: time.Now}
}

// ModelsDir returns the managed storage directory.
func (c *Catalog) ModelsDir() string { return c.modelsDir }

func (c *Catalog) load() ([]types.DownloadedModel, error) {
	var models []types.DownloadedModel
	if _, err := c.st.GetJSON(store.KeyCatalog, &models); err != nil {
		return nil, err
	}
	return models, nil
}

func (c *Catalog) save(models []types.DownloadedModel) error {
	return c.st.PutJSON(store.KeyCatalog, models)
}

// ListDownloaded returns all valid entries. Entries whose backing file no
// longer exists are dropped and the persisted record is rewritten without
// them.
func (c *Catalog) ListDownloaded() ([]types.DownloadedModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listLocked()
}

func (c *Catalog) listLocked() ([]types.DownloadedModel, error) {
	models, err := c.load()
	if err != nil {
		return nil, err
	}
	valid := models[:0:0]
	pruned := 0
	for _, m := range models {
		if !fsutil.PathExists(m.Path) {
			c.log.Warn().Str("model", m.ID).Str("path", m.Path).Msg("backing file missing, pruning catalog entry")
			pruned++
			continue
		}
		valid = append(valid, m)
	}
	if pruned > 0 {
		if err := c.save(valid); err != nil {
			return nil, fmt.Errorf("rewrite after prune: %w", err)
		}
	}
	return valid, nil
}

// Get returns one valid entry by id.
func (c *Catalog) Get(modelID string) (types.DownloadedModel, error) {
	models, err := c.ListDownloaded()
	if err != nil {
		return types.DownloadedModel{}, err
	}
	for _, m := range models {
		if m.ID == modelID {
			return m, nil
		}
	}
	return types.DownloadedModel{}, ErrModelNotFound(modelID)
}

// FindByPath resolves a local path back to its catalog entry.
func (c *Catalog) FindByPath(path string) (types.DownloadedModel, bool) {
	models, err := c.ListDownloaded()
	if err != nil {
		return types.DownloadedModel{}, false
	}
	for _, m := range models {
		if m.Path == path {
			return m, true
		}
	}
	return types.DownloadedModel{}, false
}

// Register records a completed download. The on-disk size is measured rather
// than trusted from the remote listing. Re-registering an id replaces the
// previous entry.
func (c *Catalog) Register(repoID string, file types.RemoteFile, localPath string) (types.DownloadedModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := fsutil.FileSize(localPath)
	if size == 0 && !fsutil.PathExists(localPath) {
		return types.DownloadedModel{}, fmt.Errorf("register %s: file does not exist at %s", file.Name, localPath)
	}
	author := repoAuthor(repoID)
	entry := types.DownloadedModel{
		ID:           types.ModelKey(repoID, file.Name),
		Name:         displayName(file.Name),
		Author:       author,
		Path:         localPath,
		SizeBytes:    size,
		Quant:        file.Quant,
		DownloadedAt: c.now(),
		Provenance:   classifyAuthor(author),
	}
	if file.Companion != nil {
		companionPath := filepath.Join(filepath.Dir(localPath), file.Companion.Name)
		if fsutil.PathExists(companionPath) {
			entry.CompanionPath = companionPath
			entry.CompanionBytes = fsutil.FileSize(companionPath)
		}
	}

	models, err := c.load()
	if err != nil {
		return types.DownloadedModel{}, err
	}
	replaced := false
	for i := range models {
		if models[i].ID == entry.ID {
			models[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		models = append(models, entry)
	}
	if err := c.save(models); err != nil {
		return types.DownloadedModel{}, err
	}
	c.log.Info().Str("model", entry.ID).Int64("bytes", entry.SizeBytes).Str("provenance", string(entry.Provenance)).Msg("model registered")
	return entry, nil
}

// Delete removes the entry and its backing file(s).
func (c *Catalog) Delete(modelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	models, err := c.load()
	if err != nil {
		return err
	}
	idx := -1
	for i, m := range models {
		if m.ID == modelID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrModelNotFound(modelID)
	}
	m := models[idx]
	if err := fsutil.RemoveIfExists(m.Path); err != nil {
		return fmt.Errorf("delete %s: %w", m.Path, err)
	}
	if m.CompanionPath != "" {
		if err := fsutil.RemoveIfExists(m.CompanionPath); err != nil {
			return fmt.Errorf("delete companion %s: %w", m.CompanionPath, err)
		}
	}
	models = append(models[:idx], models[idx+1:]...)
	if err := c.save(models); err != nil {
		return err
	}
	c.log.Info().Str("model", modelID).Msg("model deleted")
	return nil
}

// StorageUsed sums the current on-disk size of all tracked files.
func (c *Catalog) StorageUsed() (int64, error) {
	models, err := c.ListDownloaded()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, m := range models {
		total += fsutil.FileSize(m.Path)
		if m.CompanionPath != "" {
			total += fsutil.FileSize(m.CompanionPath)
		}
	}
	return total, nil
}

// AvailableStorage reports free bytes on the volume holding the models
// directory.
func (c *Catalog) AvailableStorage() (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(c.modelsDir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", c.modelsDir, err)
	}
	return int64(st.Bavail) * st.Bsize, nil
}

// ListOrphaned scans the managed directory for files and directories no
// catalog entry tracks, so the user can adopt or discard leftovers from
// interrupted sessions.
func (c *Catalog) ListOrphaned() ([]types.OrphanedFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	models, err := c.listLocked()
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]bool, len(models)*2)
	for _, m := range models {
		tracked[m.Path] = true
		if m.CompanionPath != "" {
			tracked[m.CompanionPath] = true
		}
	}

	entries, err := readDir(c.modelsDir)
	if err != nil {
		return nil, err
	}
	var orphans []types.OrphanedFile
	for _, e := range entries {
		p := filepath.Join(c.modelsDir, e.name)
		if tracked[p] {
			continue
		}
		if e.dir {
			// A directory is tracked when any tracked path lives under it.
			inUse := false
			for t := range tracked {
				if strings.HasPrefix(t, p+string(filepath.Separator)) {
					inUse = true
					break
				}
			}
			if inUse {
				continue
			}
			size, _ := fsutil.DirSize(p)
			orphans = append(orphans, types.OrphanedFile{Name: e.name, Path: p, SizeBytes: size})
			continue
		}
		if strings.HasSuffix(e.name, ".partial") {
			// In-flight temp files are not orphans yet.
			continue
		}
		orphans = append(orphans, types.OrphanedFile{Name: e.name, Path: p, SizeBytes: fsutil.FileSize(p)})
	}
	return orphans, nil
}

type dirEntry struct {
	name string
	dir  bool
}

func readDir(dir string) ([]dirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dirEntry{name: e.Name(), dir: e.IsDir()})
	}
	return out, nil
}

func repoAuthor(repoID string) string {
	if i := strings.IndexByte(repoID, '/'); i > 0 {
		return repoID[:i]
	}
	return repoID
}

func displayName(fileName string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return strings.NewReplacer("-", " ", "_", " ").Replace(name)
}
