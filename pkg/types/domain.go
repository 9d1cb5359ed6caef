package types

import "time"

// ModelKey builds the composite identity used for downloads and catalog
// entries: "{repoID}/{fileName}".
func ModelKey(repoID, fileName string) string { return repoID + "/" + fileName }

// RemoteFile describes a downloadable model file that is not on disk yet.
type RemoteFile struct {
	// File name inside the repository.
	// example: llama-3.2-1b-instruct-q4_k_m.gguf
	Name string `json:"name"`
	// Remote-reported size in bytes.
	SizeBytes int64 `json:"size_bytes"`
	// Quantization label (e.g. Q4_K_M).
	Quant string `json:"quant,omitempty"`
	// Direct download URL.
	DownloadURL string `json:"download_url"`
	// Optional companion file (vision projector). Non-fatal if missing.
	Companion *RemoteFile `json:"companion,omitempty"`
}

// ArtifactKind distinguishes how an artifact must be fetched.
type ArtifactKind string

const (
	// ArtifactArchive is a single prebuilt file.
	ArtifactArchive ArtifactKind = "archive"
	// ArtifactTree is a directory of files whose relative layout must be
	// reproduced on disk.
	ArtifactTree ArtifactKind = "tree"
)

// ArtifactFile is one file of a multi-file artifact.
type ArtifactFile struct {
	// Path relative to the artifact root; preserved on disk.
	RelativePath string `json:"relative_path"`
	SizeBytes    int64  `json:"size_bytes"`
	DownloadURL  string `json:"download_url"`
}

// Artifact is a downloadable model bundle discovered in a remote repository:
// either a single prebuilt archive or a multi-file manifest.
type Artifact struct {
	RepoID      string       `json:"repo_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Kind        ArtifactKind `json:"kind"`
	// Sum of all file sizes.
	TotalBytes int64 `json:"total_bytes"`
	// One entry for archives, one per discovered file for trees.
	Files []ArtifactFile `json:"files"`
}

// Provenance is the trust tier assigned to a downloaded model's author.
type Provenance string

const (
	ProvenanceTrustedCommunity Provenance = "trusted_community"
	ProvenanceOfficial         Provenance = "official"
	ProvenanceVerified         Provenance = "verified"
	ProvenanceCommunity        Provenance = "community"
)

// DownloadedModel is a persisted catalog entry. It is valid only while its
// Path resolves to an existing file; readers must re-verify.
type DownloadedModel struct {
	// Composite identity "{repoID}/{fileName}".
	ID string `json:"id"`
	// Human-friendly name derived from the file name.
	Name string `json:"name"`
	// Owning author (first path segment of the repo id).
	Author string `json:"author"`
	// Absolute local path of the primary file.
	Path string `json:"path"`
	// On-disk size in bytes, measured at registration.
	SizeBytes int64  `json:"size_bytes"`
	Quant     string `json:"quant,omitempty"`
	// Completion timestamp.
	DownloadedAt time.Time  `json:"downloaded_at"`
	Provenance   Provenance `json:"provenance"`
	// Vision companion, when present.
	CompanionPath  string `json:"companion_path,omitempty"`
	CompanionBytes int64  `json:"companion_bytes,omitempty"`
}

// HasVision reports whether a companion projector was registered.
func (m DownloadedModel) HasVision() bool { return m.CompanionPath != "" }

// DownloadStatus is the lifecycle of a background transfer.
type DownloadStatus string

const (
	StatusPending   DownloadStatus = "pending"
	StatusRunning   DownloadStatus = "running"
	StatusPaused    DownloadStatus = "paused"
	StatusCompleted DownloadStatus = "completed"
	StatusFailed    DownloadStatus = "failed"
	StatusUnknown   DownloadStatus = "unknown"
)

// Terminal reports whether no further progress events can follow.
func (s DownloadStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BackgroundDownloadInfo is the transport's view of one logical job. The
// numeric ID is the only handle that survives a process restart; all other
// application-level metadata must be persisted by the caller in a side-table.
type BackgroundDownloadInfo struct {
	ID              int64          `json:"id"`
	ModelID         string         `json:"model_id"`
	FileName        string         `json:"file_name"`
	Status          DownloadStatus `json:"status"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	TotalBytes      int64          `json:"total_bytes"`
	// Where the transport wrote the payload, set on completion.
	LocalPath   string    `json:"local_path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	// Failure reason, set when Status is failed.
	Error string `json:"error,omitempty"`
}

// DownloadMeta is the caller-side metadata persisted per transport ID so a
// completed transfer can be attributed and registered after a restart.
type DownloadMeta struct {
	RepoID     string `json:"repo_id"`
	FileName   string `json:"file_name"`
	Quant      string `json:"quant,omitempty"`
	Author     string `json:"author,omitempty"`
	TotalBytes int64  `json:"total_bytes"`
}

// Slot identifies an independent residency slot in the coordinator.
type Slot string

const (
	// SlotText is the primary slot (LLM weights).
	SlotText Slot = "text"
	// SlotImage is the secondary slot (image model).
	SlotImage Slot = "image"
)

// Severity grades an admission-control decision.
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityBlocked  Severity = "blocked"
)

// MemoryCheckResult is the outcome of admission control. Computed on demand,
// never persisted.
type MemoryCheckResult struct {
	CanLoad  bool     `json:"can_load"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// OrphanedFile is an on-disk file or directory inside the managed storage
// area that no catalog entry tracks.
type OrphanedFile struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}
