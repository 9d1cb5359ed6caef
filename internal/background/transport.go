// Package background manages durable, daemon-owned download jobs that
// outlive the request that started them.
package background

import (
	"time"

	"modelmgr/pkg/types"
)

// FileSpec describes one remote file of a background job.
type FileSpec struct {
	URL          string
	RelativePath string
	SizeBytes    int64
}

// Transport is the background download capability. Exactly one
// implementation is selected at construction time; callers must treat an
// Unavailable error from any method as "feature absent", not a fault.
type Transport interface {
	// IsAvailable reports whether this transport can start downloads.
	IsAvailable() bool

	StartDownload(modelID string, file FileSpec) (int64, error)
	StartMultiFileDownload(modelID string, files []FileSpec) (int64, error)
	CancelDownload(id int64) error
	ActiveDownloads() ([]types.BackgroundDownloadInfo, error)
	// MoveCompletedDownload relocates the finished payload to targetPath and
	// removes the transport record. Returns the final path.
	MoveCompletedDownload(id int64, targetPath string) (string, error)

	// Event subscriptions return an unsubscribe func. Attach listeners
	// before starting progress polling or events may be missed.
	OnProgress(id int64, fn Handler) func()
	OnComplete(id int64, fn Handler) func()
	OnError(id int64, fn Handler) func()

	StartProgressPolling(interval time.Duration)
	StopProgressPolling()

	Close() error
}

// Unavailable is the stub transport for platforms/configurations without
// background download support. Every operation fails fast.
type Unavailable struct{}

// NewUnavailable returns the stub transport.
func NewUnavailable() *Unavailable { return &Unavailable{} }

func (*Unavailable) IsAvailable() bool { return false }

func (*Unavailable) StartDownload(string, FileSpec) (int64, error) {
	return 0, ErrUnavailable()
}

func (*Unavailable) StartMultiFileDownload(string, []FileSpec) (int64, error) {
	return 0, ErrUnavailable()
}

func (*Unavailable) CancelDownload(int64) error { return ErrUnavailable() }

func (*Unavailable) ActiveDownloads() ([]types.BackgroundDownloadInfo, error) {
	return nil, ErrUnavailable()
}

func (*Unavailable) MoveCompletedDownload(int64, string) (string, error) {
	return "", ErrUnavailable()
}

func (*Unavailable) OnProgress(int64, Handler) func() { return func() {} }
func (*Unavailable) OnComplete(int64, Handler) func() { return func() {} }
func (*Unavailable) OnError(int64, Handler) func()    { return func() {} }

func (*Unavailable) StartProgressPolling(time.Duration) {}
func (*Unavailable) StopProgressPolling()               {}

func (*Unavailable) Close() error { return nil }
