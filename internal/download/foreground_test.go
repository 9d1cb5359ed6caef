package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelmgr/pkg/types"
)

// fakeRegistrar records registrations without a real catalog.
type fakeRegistrar struct {
	calls int32
}

func (f *fakeRegistrar) Register(repoID string, file types.RemoteFile, localPath string) (types.DownloadedModel, error) {
	atomic.AddInt32(&f.calls, 1)
	return types.DownloadedModel{
		ID:        types.ModelKey(repoID, file.Name),
		Path:      localPath,
		SizeBytes: fileSize(localPath),
	}, nil
}

func fileSize(p string) int64 {
	fi, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func newTestManager(t *testing.T, handler http.Handler) (*Manager, *httptest.Server, *fakeRegistrar, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	reg := &fakeRegistrar{}
	m := NewManager(Options{
		Registrar:        reg,
		DestDir:          dir,
		Logger:           zerolog.Nop(),
		ProgressInterval: time.Millisecond,
	})
	return m, srv, reg, dir
}

func payloadHandler(hits *int64, payload []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		_, _ = w.Write(payload)
	})
}

func TestDownloadWritesFileAndRegisters(t *testing.T) {
	var hits int64
	m, srv, reg, dir := newTestManager(t, payloadHandler(&hits, make([]byte, 2048)))

	var progress []Progress
	var completed *types.DownloadedModel
	err := m.Download(context.Background(), "acme/repo", types.RemoteFile{
		Name:        "m.gguf",
		DownloadURL: srv.URL + "/m.gguf",
	}, Hooks{
		OnProgress: func(p Progress) { progress = append(progress, p) },
		OnComplete: func(e types.DownloadedModel) { completed = &e },
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if completed == nil || completed.SizeBytes != 2048 {
		t.Fatalf("expected completion with 2048 bytes, got %+v", completed)
	}
	if fileSize(filepath.Join(dir, "m.gguf")) != 2048 {
		t.Fatalf("destination file missing or wrong size")
	}
	if atomic.LoadInt32(&reg.calls) != 1 {
		t.Fatalf("expected one registration")
	}
	if len(progress) == 0 {
		t.Fatalf("expected progress callbacks")
	}
	last := progress[len(progress)-1]
	if last.BytesDownloaded != 2048 {
		t.Fatalf("final progress should report all bytes, got %+v", last)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].BytesDownloaded < progress[i-1].BytesDownloaded {
			t.Fatalf("progress must be monotonically non-decreasing")
		}
	}
}

func TestDownloadConflictOnDuplicateKey(t *testing.T) {
	var hits int64
	started := make(chan struct{})
	release := make(chan struct{})
	m, srv, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		<-release
	}))

	done := make(chan error, 1)
	go func() {
		done <- m.Download(context.Background(), "acme/repo", types.RemoteFile{
			Name: "m.gguf", DownloadURL: srv.URL + "/m.gguf",
		}, Hooks{})
	}()
	<-started

	err := m.Download(context.Background(), "acme/repo", types.RemoteFile{
		Name: "m.gguf", DownloadURL: srv.URL + "/m.gguf",
	}, Hooks{})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Fatalf("second transfer must not start")
	}
	close(release)
	<-done
}

func TestDownloadExistingDestinationShortCircuits(t *testing.T) {
	var hits int64
	m, srv, reg, dir := newTestManager(t, payloadHandler(&hits, []byte("x")))
	if err := os.WriteFile(filepath.Join(dir, "m.gguf"), make([]byte, 512), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	var completed *types.DownloadedModel
	err := m.Download(context.Background(), "acme/repo", types.RemoteFile{
		Name: "m.gguf", DownloadURL: srv.URL + "/m.gguf",
	}, Hooks{OnComplete: func(e types.DownloadedModel) { completed = &e }})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if atomic.LoadInt64(&hits) != 0 {
		t.Fatalf("short-circuit must perform zero network calls, got %d", hits)
	}
	if completed == nil || completed.SizeBytes != 512 {
		t.Fatalf("expected completion with catalog entry, got %+v", completed)
	}
	if atomic.LoadInt32(&reg.calls) != 1 {
		t.Fatalf("expected registration on short-circuit")
	}
}

func TestDownloadTransportFailureCleansPartial(t *testing.T) {
	m, srv, _, dir := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	var gotErr error
	err := m.Download(context.Background(), "acme/repo", types.RemoteFile{
		Name: "m.gguf", DownloadURL: srv.URL + "/m.gguf",
	}, Hooks{OnError: func(e error) { gotErr = e }})
	if !IsTransportFailure(err) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	var te interface{ StatusCode() int }
	if !errors.As(err, &te) || te.StatusCode() != http.StatusInternalServerError {
		t.Fatalf("expected status 500 carried, got %v", err)
	}
	if gotErr == nil {
		t.Fatalf("OnError hook must fire")
	}
	if _, err := os.Stat(filepath.Join(dir, "m.gguf.partial")); !os.IsNotExist(err) {
		t.Fatalf("partial file must be deleted on failure")
	}
	if len(m.Active()) != 0 {
		t.Fatalf("job entry must be removed after failure")
	}
}

func TestCompanionFailureIsSwallowed(t *testing.T) {
	m, srv, _, dir := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/mmproj.gguf" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(make([]byte, 64))
	}))
	var completed *types.DownloadedModel
	err := m.Download(context.Background(), "acme/repo", types.RemoteFile{
		Name:        "vision.gguf",
		DownloadURL: srv.URL + "/vision.gguf",
		Companion:   &types.RemoteFile{Name: "mmproj.gguf", DownloadURL: srv.URL + "/mmproj.gguf"},
	}, Hooks{OnComplete: func(e types.DownloadedModel) { completed = &e }})
	if err != nil {
		t.Fatalf("companion failure must not fail the operation: %v", err)
	}
	if completed == nil {
		t.Fatalf("OnComplete must still fire")
	}
	if _, err := os.Stat(filepath.Join(dir, "mmproj.gguf")); !os.IsNotExist(err) {
		t.Fatalf("failed companion must not leave a file")
	}
}

func TestCompanionSuccess(t *testing.T) {
	m, srv, _, dir := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	err := m.Download(context.Background(), "acme/repo", types.RemoteFile{
		Name:        "vision.gguf",
		DownloadURL: srv.URL + "/vision.gguf",
		Companion:   &types.RemoteFile{Name: "mmproj.gguf", DownloadURL: srv.URL + "/mmproj.gguf"},
	}, Hooks{})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if fileSize(filepath.Join(dir, "mmproj.gguf")) != 64 {
		t.Fatalf("companion file missing")
	}
}

func TestCancelInFlight(t *testing.T) {
	started := make(chan struct{})
	m, srv, _, dir := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, 10))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		<-r.Context().Done()
	}))
	done := make(chan error, 1)
	go func() {
		done <- m.Download(context.Background(), "acme/repo", types.RemoteFile{
			Name: "m.gguf", DownloadURL: srv.URL + "/m.gguf",
		}, Hooks{})
	}()
	<-started
	m.Cancel("acme/repo", "m.gguf")

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("canceled download should return an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("download did not stop after cancel")
	}
	if _, err := os.Stat(filepath.Join(dir, "m.gguf.partial")); !os.IsNotExist(err) {
		t.Fatalf("partial file must be deleted on cancel")
	}
	if _, err := os.Stat(filepath.Join(dir, "m.gguf")); !os.IsNotExist(err) {
		t.Fatalf("no final file may exist after cancel")
	}
}

func TestCancelUnknownIsNoop(t *testing.T) {
	m, _, _, _ := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	// must not panic or error
	m.Cancel("acme/repo", "never-started.gguf")
	m.Cancel("acme/repo", "never-started.gguf")
}
