package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"modelmgr/internal/common/fsutil"
	"modelmgr/pkg/types"
)

// fakeTransport reports a fixed set of downloads and moves files from a
// staging dir.
type fakeTransport struct {
	downloads []types.BackgroundDownloadInfo
	staged    map[int64]string
	moved     []int64
}

func (f *fakeTransport) ActiveDownloads() ([]types.BackgroundDownloadInfo, error) {
	return f.downloads, nil
}

func (f *fakeTransport) MoveCompletedDownload(id int64, targetPath string) (string, error) {
	src, ok := f.staged[id]
	if !ok {
		return "", fmt.Errorf("no staged file for id %d", id)
	}
	if err := fsutil.MoveFile(src, targetPath); err != nil {
		return "", err
	}
	f.moved = append(f.moved, id)
	return targetPath, nil
}

func TestReconcileCompletedWithMetadata(t *testing.T) {
	c, st, dir := newTestCatalog(t)
	side := NewSideTable(st)

	staging := t.TempDir()
	staged := filepath.Join(staging, "dl-7.bin")
	if err := os.WriteFile(staged, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := side.Put(7, types.DownloadMeta{RepoID: "acme/repo", FileName: "model.gguf", Quant: "Q4_0", TotalBytes: 2048}); err != nil {
		t.Fatalf("side put: %v", err)
	}
	tr := &fakeTransport{
		downloads: []types.BackgroundDownloadInfo{{ID: 7, Status: types.StatusCompleted}},
		staged:    map[int64]string{7: staged},
	}

	res, err := c.Reconcile(context.Background(), tr, side)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.Registered) != 1 {
		t.Fatalf("expected exactly one registration, got %+v", res)
	}
	entry := res.Registered[0]
	if entry.ID != "acme/repo/model.gguf" || entry.SizeBytes != 2048 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Path != filepath.Join(dir, "model.gguf") {
		t.Fatalf("expected file moved into managed dir, got %s", entry.Path)
	}
	if _, ok, _ := side.Get(7); ok {
		t.Fatalf("side-table entry 7 must be cleared")
	}
}

func TestReconcileCompletedWithoutMetadataIsSkipped(t *testing.T) {
	c, st, _ := newTestCatalog(t)
	side := NewSideTable(st)
	tr := &fakeTransport{
		downloads: []types.BackgroundDownloadInfo{{ID: 9, Status: types.StatusCompleted}},
	}
	res, err := c.Reconcile(context.Background(), tr, side)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.Registered) != 0 {
		t.Fatalf("unattributable download must not be adopted: %+v", res)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != 9 {
		t.Fatalf("expected id 9 skipped, got %+v", res.Skipped)
	}
	if len(tr.moved) != 0 {
		t.Fatalf("nothing should be moved")
	}
	models, _ := c.ListDownloaded()
	if len(models) != 0 {
		t.Fatalf("catalog must stay empty")
	}
}

func TestReconcileFailedClearsMetadata(t *testing.T) {
	c, st, _ := newTestCatalog(t)
	side := NewSideTable(st)
	if err := side.Put(3, types.DownloadMeta{RepoID: "a/r", FileName: "f.gguf"}); err != nil {
		t.Fatalf("side put: %v", err)
	}
	tr := &fakeTransport{
		downloads: []types.BackgroundDownloadInfo{{ID: 3, Status: types.StatusFailed, Error: "disk full"}},
	}
	res, err := c.Reconcile(context.Background(), tr, side)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.Registered) != 0 || len(res.ClearedFailed) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok, _ := side.Get(3); ok {
		t.Fatalf("metadata for failed download must be cleared")
	}
}

func TestReconcileInFlightLeftUntouched(t *testing.T) {
	c, st, _ := newTestCatalog(t)
	side := NewSideTable(st)
	if err := side.Put(5, types.DownloadMeta{RepoID: "a/r", FileName: "f.gguf"}); err != nil {
		t.Fatalf("side put: %v", err)
	}
	for _, status := range []types.DownloadStatus{types.StatusRunning, types.StatusPending, types.StatusPaused} {
		tr := &fakeTransport{
			downloads: []types.BackgroundDownloadInfo{{ID: 5, Status: status}},
		}
		res, err := c.Reconcile(context.Background(), tr, side)
		if err != nil {
			t.Fatalf("reconcile(%s): %v", status, err)
		}
		if len(res.InFlight) != 1 {
			t.Fatalf("expected in-flight for %s, got %+v", status, res)
		}
		if _, ok, _ := side.Get(5); !ok {
			t.Fatalf("metadata must survive %s", status)
		}
	}
}

func TestSideTableClearIdempotent(t *testing.T) {
	_, st, _ := newTestCatalog(t)
	side := NewSideTable(st)
	if err := side.Clear(42); err != nil {
		t.Fatalf("clear absent id: %v", err)
	}
	if err := side.Put(42, types.DownloadMeta{FileName: "x"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := side.Clear(42); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := side.Clear(42); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
