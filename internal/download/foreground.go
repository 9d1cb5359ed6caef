// Package download streams model files to local storage in the foreground.
// At most one transfer per {repoID}/{fileName} key is ever in flight.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelmgr/internal/common/fsutil"
	"modelmgr/pkg/types"
)

// Progress is delivered to the caller at a bounded interval.
type Progress struct {
	BytesDownloaded int64
	TotalBytes      int64
}

// Hooks are the caller's observation points. Any of them may be nil.
type Hooks struct {
	OnProgress func(Progress)
	OnComplete func(types.DownloadedModel)
	OnError    func(error)
}

// Registrar is the catalog slice the downloader needs.
type Registrar interface {
	Register(repoID string, file types.RemoteFile, localPath string) (types.DownloadedModel, error)
}

const defaultProgressInterval = 250 * time.Millisecond

// Manager owns the in-flight job table and the destination directory.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job

	client           *http.Client
	registrar        Registrar
	destDir          string
	log              zerolog.Logger
	progressInterval time.Duration
}

type job struct {
	cancel context.CancelFunc
	// partial path cleaned up on cancel
	partial string
}

// Options configures a Manager.
type Options struct {
	Client    *http.Client
	Registrar Registrar
	// Destination directory for completed files.
	DestDir string
	Logger  zerolog.Logger
	// Minimum interval between OnProgress calls (default 250ms).
	ProgressInterval time.Duration
}

// NewManager constructs a foreground download manager.
func NewManager(o Options) *Manager {
	m := &Manager{
		jobs:             make(map[string]*job),
		client:           o.Client,
		registrar:        o.Registrar,
		destDir:          o.DestDir,
		log:              o.Logger,
		progressInterval: o.ProgressInterval,
	}
	if m.client == nil {
		m.client = http.DefaultClient
	}
	if m.progressInterval <= 0 {
		m.progressInterval = defaultProgressInterval
	}
	return m
}

// Download streams file into the destination directory. It returns (and
// calls OnError) on primary failure; a companion failure is logged and
// swallowed. When the destination already exists the artifact is registered
// and OnComplete fires without any network transfer.
func (m *Manager) Download(ctx context.Context, repoID string, file types.RemoteFile, hooks Hooks) error {
	key := types.ModelKey(repoID, file.Name)
	dest := filepath.Join(m.destDir, file.Name)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	j := &job{cancel: cancel, partial: dest + ".partial"}

	m.mu.Lock()
	if _, exists := m.jobs[key]; exists {
		m.mu.Unlock()
		err := ErrAlreadyDownloading(key)
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
		return err
	}
	m.jobs[key] = j
	m.mu.Unlock()
	// The job entry is removed on every path: success, failure, cancel.
	defer m.removeJob(key, j)

	if fsutil.PathExists(dest) {
		m.log.Debug().Str("key", key).Msg("destination exists, skipping transfer")
		return m.finish(repoID, file, dest, hooks)
	}

	if err := fsutil.EnsureDir(m.destDir); err != nil {
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
		return err
	}
	if err := m.fetch(jobCtx, file.DownloadURL, dest, file.SizeBytes, hooks.OnProgress); err != nil {
		// partial cleanup also happens on cancel; RemoveIfExists keeps the
		// duplicate harmless
		_ = fsutil.RemoveIfExists(dest + ".partial")
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
		return err
	}

	if file.Companion != nil {
		if err := m.downloadCompanion(jobCtx, file.Companion); err != nil {
			// degraded capability, not a failure of the operation
			m.log.Warn().Str("key", key).Err(err).Msg("companion download failed, continuing without vision support")
		}
	}
	return m.finish(repoID, file, dest, hooks)
}

func (m *Manager) downloadCompanion(ctx context.Context, companion *types.RemoteFile) error {
	dest := filepath.Join(m.destDir, companion.Name)
	if fsutil.PathExists(dest) {
		return nil
	}
	if err := m.fetch(ctx, companion.DownloadURL, dest, companion.SizeBytes, nil); err != nil {
		_ = fsutil.RemoveIfExists(dest + ".partial")
		return err
	}
	return nil
}

func (m *Manager) finish(repoID string, file types.RemoteFile, dest string, hooks Hooks) error {
	entry, err := m.registrar.Register(repoID, file, dest)
	if err != nil {
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
		return err
	}
	if hooks.OnComplete != nil {
		hooks.OnComplete(entry)
	}
	return nil
}

// fetch streams url to dest via a ".partial" temp file renamed on success.
func (m *Manager) fetch(ctx context.Context, url, dest string, sizeHint int64, onProgress func(Progress)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrTransport(url, resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = sizeHint
	}

	partial := dest + ".partial"
	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}

	var written int64
	lastReport := time.Time{}
	buf := make([]byte, 128*1024)
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				return fmt.Errorf("write %s: %w", partial, writeErr)
			}
			written += int64(n)
			if onProgress != nil && time.Since(lastReport) >= m.progressInterval {
				onProgress(Progress{BytesDownloaded: written, TotalBytes: total})
				lastReport = time.Now()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			out.Close()
			return fmt.Errorf("read %s: %w", url, readErr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", partial, err)
	}
	if onProgress != nil {
		onProgress(Progress{BytesDownloaded: written, TotalBytes: total})
	}
	return os.Rename(partial, dest)
}

// Cancel stops an in-flight download and deletes its partial file. Canceling
// a download that does not exist is a silent no-op; duplicate cancels are
// idempotent.
func (m *Manager) Cancel(repoID, fileName string) {
	key := types.ModelKey(repoID, fileName)
	m.mu.Lock()
	j, ok := m.jobs[key]
	if ok {
		delete(m.jobs, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	j.cancel()
	_ = fsutil.RemoveIfExists(j.partial)
	m.log.Info().Str("key", key).Msg("download canceled")
}

// Active returns the keys of in-flight downloads.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		keys = append(keys, k)
	}
	return keys
}

func (m *Manager) removeJob(key string, j *job) {
	m.mu.Lock()
	// Cancel may already have removed (or replaced) the entry.
	if cur, ok := m.jobs[key]; ok && cur == j {
		delete(m.jobs, key)
	}
	m.mu.Unlock()
}
