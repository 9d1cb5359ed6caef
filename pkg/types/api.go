package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: bartowski/model.gguf
	Error string `json:"error" example:"model not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// DownloadRequest asks the daemon to start a foreground download.
type DownloadRequest struct {
	// Repository id, e.g. "bartowski/Meta-Llama-3.1-8B-Instruct-GGUF".
	RepoID string `json:"repo_id"`
	// File descriptor, usually taken from a hub discovery result.
	File RemoteFile `json:"file"`
}

// BackgroundDownloadRequest asks the daemon to hand a transfer to the
// durable transport.
type BackgroundDownloadRequest struct {
	RepoID string     `json:"repo_id"`
	File   RemoteFile `json:"file"`
}

// LoadRequest asks the coordinator to make a model resident.
type LoadRequest struct {
	ModelID string `json:"model_id"`
	// "text" (default) or "image".
	Slot Slot `json:"slot,omitempty"`
	// Accept a warning-severity admission result without re-prompting.
	AcknowledgeWarning bool `json:"acknowledge_warning,omitempty"`
}

// SlotStatus summarizes one coordinator slot for /status.
type SlotStatus struct {
	Slot Slot `json:"slot"`
	// Resident model id, empty when nothing is loaded.
	ModelID string `json:"model_id,omitempty"`
	// True while a load or unload is in flight.
	Busy bool `json:"busy"`
}

// StorageStatus reports managed-disk accounting for /status.
type StorageStatus struct {
	// Bytes used by catalog-tracked files.
	UsedBytes int64 `json:"used_bytes"`
	// Free bytes on the volume holding the models directory.
	AvailableBytes int64 `json:"available_bytes"`
	// Number of tracked models.
	Models int `json:"models"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Slots   []SlotStatus  `json:"slots"`
	Storage StorageStatus `json:"storage"`
	// Background transfers currently known to the transport.
	ActiveDownloads []BackgroundDownloadInfo `json:"active_downloads"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Whether the durable background transport is available.
	BackgroundAvailable bool `json:"background_available"`
}

// ModelsResponse wraps the list of downloaded models returned by GET /models.
type ModelsResponse struct {
	Models []DownloadedModel `json:"models"`
}

// ArtifactsResponse wraps hub discovery results.
type ArtifactsResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

// OrphansResponse wraps the orphan scan result.
type OrphansResponse struct {
	Orphans []OrphanedFile `json:"orphans"`
}

// UnloadAllResponse reports which slots were actually vacated.
type UnloadAllResponse struct {
	PrimaryUnloaded   bool `json:"primary_unloaded"`
	SecondaryUnloaded bool `json:"secondary_unloaded"`
}
