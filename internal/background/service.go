package background

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelmgr/internal/common/fsutil"
	"modelmgr/internal/download"
	"modelmgr/internal/store"
	"modelmgr/pkg/types"
)

const partialSuffix = ".partial"

// journalEntry is the persisted form of one job. Bytes are checkpointed at
// file boundaries; exact progress is recomputed from disk on restart.
type journalEntry struct {
	Info  types.BackgroundDownloadInfo `json:"info"`
	Files []FileSpec                   `json:"files"`
}

type jobState struct {
	info   types.BackgroundDownloadInfo
	files  []FileSpec
	cancel context.CancelFunc
}

// Options configures the durable Service.
type Options struct {
	Store  *store.Store
	Client *http.Client
	// StagingDir holds in-flight and completed-but-unclaimed payloads.
	StagingDir string
	Logger     zerolog.Logger
}

// Service is the daemon-managed Transport. Jobs run in their own goroutines
// and survive restarts through a journal in the key-value store.
type Service struct {
	mu     sync.Mutex
	jobs   map[int64]*jobState
	nextID int64

	st      *store.Store
	client  *http.Client
	staging string
	log     zerolog.Logger
	reg     *registry

	baseCtx    context.Context
	cancelAll  context.CancelFunc
	wg         sync.WaitGroup
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewService opens the job journal and resumes any non-terminal jobs.
func NewService(o Options) (*Service, error) {
	if err := fsutil.EnsureDir(o.StagingDir); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		jobs:      make(map[int64]*jobState),
		nextID:    1,
		st:        o.Store,
		client:    o.Client,
		staging:   o.StagingDir,
		log:       o.Logger,
		reg:       newRegistry(),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if err := s.restore(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Service) IsAvailable() bool { return true }

// restore loads the journal and resumes jobs that were still in flight when
// the process last exited.
func (s *Service) restore() error {
	var journal map[string]journalEntry
	if _, err := s.st.GetJSON(store.KeyJobs, &journal); err != nil {
		return err
	}
	var resume []*jobState
	s.mu.Lock()
	for key, entry := range journal {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		if id >= s.nextID {
			s.nextID = id + 1
		}
		j := &jobState{info: entry.Info, files: entry.Files}
		j.info.ID = id
		if !j.info.Status.Terminal() {
			j.info.Status = types.StatusPending
			j.info.BytesDownloaded = s.stagedBytes(id, entry.Files)
			resume = append(resume, j)
		}
		s.jobs[id] = j
	}
	s.mu.Unlock()
	for _, j := range resume {
		s.log.Info().Int64("id", j.info.ID).Str("model", j.info.ModelID).Msg("resuming background download")
		s.startWorker(j)
	}
	return nil
}

// stagedBytes sums what is already on disk for a job, partial or complete.
func (s *Service) stagedBytes(id int64, files []FileSpec) int64 {
	var n int64
	for _, f := range files {
		p := s.filePath(id, f)
		if fsutil.PathExists(p) {
			n += fsutil.FileSize(p)
		} else {
			n += fsutil.FileSize(p + partialSuffix)
		}
	}
	return n
}

func (s *Service) jobDir(id int64) string {
	return filepath.Join(s.staging, strconv.FormatInt(id, 10))
}

func (s *Service) filePath(id int64, f FileSpec) string {
	return filepath.Join(s.jobDir(id), filepath.FromSlash(f.RelativePath))
}

// StartDownload begins a single-file job and returns its transport id.
func (s *Service) StartDownload(modelID string, file FileSpec) (int64, error) {
	return s.start(modelID, []FileSpec{file})
}

// StartMultiFileDownload begins a job that fetches every file into a shared
// directory, preserving relative paths. Progress aggregates across files.
func (s *Service) StartMultiFileDownload(modelID string, files []FileSpec) (int64, error) {
	return s.start(modelID, files)
}

func (s *Service) start(modelID string, files []FileSpec) (int64, error) {
	if len(files) == 0 {
		return 0, errors.New("background: no files to download")
	}
	for _, f := range files {
		if f.URL == "" || f.RelativePath == "" {
			return 0, fmt.Errorf("background: file spec missing url or path: %+v", f)
		}
	}
	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	j := &jobState{
		info: types.BackgroundDownloadInfo{
			ID:         id,
			ModelID:    modelID,
			FileName:   files[0].RelativePath,
			Status:     types.StatusPending,
			TotalBytes: total,
			StartedAt:  time.Now().UTC(),
		},
		files: files,
	}
	s.jobs[id] = j
	s.persistLocked()
	s.mu.Unlock()

	s.log.Info().Int64("id", id).Str("model", modelID).Int("files", len(files)).Msg("background download started")
	s.startWorker(j)
	return id, nil
}

func (s *Service) startWorker(j *jobState) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.mu.Lock()
	j.cancel = cancel
	j.info.Status = types.StatusRunning
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		err := s.run(ctx, j)
		s.mu.Lock()
		switch {
		case err == nil:
			j.info.Status = types.StatusCompleted
			j.info.CompletedAt = time.Now().UTC()
			j.info.LocalPath = s.jobDir(j.info.ID)
			if len(j.files) == 1 {
				j.info.LocalPath = s.filePath(j.info.ID, j.files[0])
			}
		case errors.Is(err, context.Canceled):
			// CancelDownload removed the job; on shutdown the journal still
			// holds it as running so restore can resume it
			s.mu.Unlock()
			return
		default:
			j.info.Status = types.StatusFailed
			j.info.Error = err.Error()
			j.info.CompletedAt = time.Now().UTC()
		}
		s.persistLocked()
		info := j.info
		s.mu.Unlock()

		if err != nil {
			s.log.Warn().Int64("id", info.ID).Err(err).Msg("background download failed")
			s.reg.dispatch(kindError, info)
			return
		}
		s.log.Info().Int64("id", info.ID).Int64("bytes", info.BytesDownloaded).Msg("background download completed")
		s.reg.dispatch(kindComplete, info)
	}()
}

func (s *Service) run(ctx context.Context, j *jobState) error {
	for _, f := range j.files {
		dest := s.filePath(j.info.ID, f)
		if fsutil.PathExists(dest) {
			continue
		}
		if err := fsutil.EnsureDir(filepath.Dir(dest)); err != nil {
			return err
		}
		if err := s.fetchResumable(ctx, f.URL, dest, j); err != nil {
			return err
		}
		s.mu.Lock()
		s.persistLocked()
		s.mu.Unlock()
	}
	return nil
}

// fetchResumable continues an interrupted transfer via a Range request when
// a partial file is present, falling back to a full fetch when the server
// ignores the range.
func (s *Service) fetchResumable(ctx context.Context, url, dest string, j *jobState) error {
	partial := dest + partialSuffix
	offset := fsutil.FileSize(partial)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out *os.File
	switch resp.StatusCode {
	case http.StatusPartialContent:
		out, err = os.OpenFile(partial, os.O_WRONLY|os.O_APPEND, 0o644)
	case http.StatusOK:
		// server ignored the range; start over
		if offset > 0 {
			s.addBytes(j, -offset)
			offset = 0
		}
		out, err = os.Create(partial)
	default:
		return download.ErrTransport(url, resp.StatusCode)
	}
	if err != nil {
		return err
	}

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
				return writeErr
			}
			s.addBytes(j, int64(n))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			out.Close()
			return readErr
		}
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(partial, dest)
}

func (s *Service) addBytes(j *jobState, n int64) {
	s.mu.Lock()
	j.info.BytesDownloaded += n
	s.mu.Unlock()
}

// CancelDownload stops a job and deletes everything it staged.
func (s *Service) CancelDownload(id int64) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
		s.persistLocked()
	}
	s.mu.Unlock()
	if !ok {
		return ErrDownloadNotFound(id)
	}
	if j.cancel != nil {
		j.cancel()
	}
	if err := os.RemoveAll(s.jobDir(id)); err != nil {
		return err
	}
	s.log.Info().Int64("id", id).Msg("background download canceled")
	return nil
}

// ActiveDownloads reports every known job, including terminal ones not yet
// claimed, ordered by id.
func (s *Service) ActiveDownloads() ([]types.BackgroundDownloadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.BackgroundDownloadInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// MoveCompletedDownload relocates a finished payload to targetPath and
// forgets the job. Single-file jobs move the file; multi-file jobs move the
// whole staged tree under targetPath.
func (s *Service) MoveCompletedDownload(id int64, targetPath string) (string, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok && j.info.Status != types.StatusCompleted {
		s.mu.Unlock()
		return "", notCompletedError{id: id}
	}
	s.mu.Unlock()
	if !ok {
		return "", ErrDownloadNotFound(id)
	}

	if len(j.files) == 1 {
		if err := fsutil.MoveFile(s.filePath(id, j.files[0]), targetPath); err != nil {
			return "", err
		}
	} else if err := moveTree(s.jobDir(id), targetPath); err != nil {
		return "", err
	}
	_ = os.RemoveAll(s.jobDir(id))

	s.mu.Lock()
	delete(s.jobs, id)
	s.persistLocked()
	s.mu.Unlock()
	return targetPath, nil
}

// moveTree relocates a directory, falling back to per-file moves when a
// rename crosses filesystems.
func moveTree(src, dst string) error {
	if err := fsutil.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		return fsutil.MoveFile(p, filepath.Join(dst, rel))
	})
}

func (s *Service) OnProgress(id int64, fn Handler) func() { return s.reg.subscribe(kindProgress, id, fn) }
func (s *Service) OnComplete(id int64, fn Handler) func() { return s.reg.subscribe(kindComplete, id, fn) }
func (s *Service) OnError(id int64, fn Handler) func()    { return s.reg.subscribe(kindError, id, fn) }

// StartProgressPolling begins periodic progress dispatch for running jobs.
// Idempotent; attach listeners first.
func (s *Service) StartProgressPolling(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollCancel != nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.pollCancel = cancel
	s.pollDone = make(chan struct{})
	go s.poll(ctx, interval, s.pollDone)
}

func (s *Service) poll(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		s.mu.Lock()
		var running []types.BackgroundDownloadInfo
		for _, j := range s.jobs {
			if j.info.Status == types.StatusRunning {
				running = append(running, j.info)
			}
		}
		s.mu.Unlock()
		sort.Slice(running, func(i, k int) bool { return running[i].ID < running[k].ID })
		for _, info := range running {
			s.reg.dispatch(kindProgress, info)
		}
	}
}

// StopProgressPolling halts dispatch. Idempotent.
func (s *Service) StopProgressPolling() {
	s.mu.Lock()
	cancel, done := s.pollCancel, s.pollDone
	s.pollCancel, s.pollDone = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops polling and all workers, then waits for them.
func (s *Service) Close() error {
	s.StopProgressPolling()
	s.cancelAll()
	s.wg.Wait()
	return nil
}

// persistLocked writes the journal. Caller holds s.mu.
func (s *Service) persistLocked() {
	journal := make(map[string]journalEntry, len(s.jobs))
	for id, j := range s.jobs {
		journal[strconv.FormatInt(id, 10)] = journalEntry{Info: j.info, Files: j.files}
	}
	if err := s.st.PutJSON(store.KeyJobs, journal); err != nil {
		s.log.Error().Err(err).Msg("persist job journal failed")
	}
}
