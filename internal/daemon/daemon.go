// Package daemon assembles the subsystems behind the HTTP API: hub,
// downloaders, catalog, coordinator, and the key-value store.
package daemon

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelmgr/internal/background"
	"modelmgr/internal/catalog"
	"modelmgr/internal/config"
	"modelmgr/internal/coordinator"
	"modelmgr/internal/device"
	"modelmgr/internal/download"
	"modelmgr/internal/hub"
	"modelmgr/internal/store"
	"modelmgr/pkg/types"
)

// Daemon implements httpapi.Service over the assembled subsystems.
type Daemon struct {
	cfg config.Config
	log zerolog.Logger

	st      *store.Store
	hub     *hub.Hub
	catalog *catalog.Catalog
	side    *catalog.SideTable
	fg      *download.Manager
	bg      background.Transport
	coord   *coordinator.Coordinator
	device  device.Info

	started time.Time
}

// New builds a Daemon from config. Call Close when done.
func New(cfg config.Config, log zerolog.Logger) (*Daemon, error) {
	st, err := store.Open(store.Options{Dir: filepath.Join(cfg.DataDir, "db")})
	if err != nil {
		return nil, err
	}
	cat := catalog.New(st, cfg.ModelsDir, log)

	ttl := time.Duration(cfg.HubTTLSeconds) * time.Second
	h := hub.New(hub.Options{TTL: ttl, Logger: log})

	fg := download.NewManager(download.Options{
		Registrar: cat,
		DestDir:   cfg.ModelsDir,
		Logger:    log,
	})

	var bg background.Transport
	if cfg.BackgroundDownloads {
		svc, err := background.NewService(background.Options{
			Store:      st,
			StagingDir: filepath.Join(cfg.DataDir, "staging"),
			Logger:     log,
		})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		bg = svc
	} else {
		bg = background.NewUnavailable()
	}

	side := catalog.NewSideTable(st)
	if cfg.BackgroundDownloads {
		// adopt transfers that finished while the process was down
		res, err := cat.Reconcile(context.Background(), bg, side)
		if err != nil {
			log.Warn().Err(err).Msg("startup reconciliation failed")
		} else if len(res.Registered) > 0 {
			log.Info().Int("registered", len(res.Registered)).Msg("adopted completed downloads")
		}
	}

	dev := device.NewHardware(cfg.TotalMemoryGB)
	coord := coordinator.New(coordinator.Options{
		Catalog:   cat,
		Device:    dev,
		Publisher: coordinator.NewBroadcast(),
		Logger:    log,
	})
	coord.SyncWithRuntimeState(context.Background())

	return &Daemon{
		cfg:     cfg,
		log:     log,
		st:      st,
		hub:     h,
		catalog: cat,
		side:    side,
		fg:      fg,
		bg:      bg,
		coord:   coord,
		device:  dev,
		started: time.Now(),
	}, nil
}

// Close stops the background transport and the store.
func (d *Daemon) Close() error {
	err := d.bg.Close()
	if cerr := d.st.Close(); err == nil {
		err = cerr
	}
	return err
}

// Coordinator exposes the residency coordinator for callers outside the
// HTTP surface (CLI wiring, tests).
func (d *Daemon) Coordinator() *coordinator.Coordinator { return d.coord }

func (d *Daemon) DiscoverArtifacts(ctx context.Context, forceRefresh bool) ([]types.Artifact, error) {
	return d.hub.Discover(ctx, forceRefresh)
}

func (d *Daemon) ListModels() ([]types.DownloadedModel, error) {
	return d.catalog.ListDownloaded()
}

func (d *Daemon) DeleteModel(modelID string) error {
	return d.catalog.Delete(modelID)
}

func (d *Daemon) ListOrphans() ([]types.OrphanedFile, error) {
	return d.catalog.ListOrphaned()
}

func (d *Daemon) Reconcile(ctx context.Context) (catalog.ReconcileResult, error) {
	return d.catalog.Reconcile(ctx, d.bg, d.side)
}

// StartDownload runs a foreground transfer to completion and returns the
// registered catalog entry.
func (d *Daemon) StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadedModel, error) {
	var entry types.DownloadedModel
	err := d.fg.Download(ctx, req.RepoID, req.File, download.Hooks{
		OnProgress: func(p download.Progress) {
			d.log.Debug().
				Str("repo", req.RepoID).
				Str("file", req.File.Name).
				Int64("bytes", p.BytesDownloaded).
				Int64("total", p.TotalBytes).
				Msg("download progress")
		},
		OnComplete: func(e types.DownloadedModel) { entry = e },
	})
	return entry, err
}

func (d *Daemon) CancelDownload(repoID, fileName string) {
	d.fg.Cancel(repoID, fileName)
}

func (d *Daemon) ActiveForegroundDownloads() []string {
	return d.fg.Active()
}

func (d *Daemon) BackgroundAvailable() bool { return d.bg.IsAvailable() }

// StartBackgroundDownload hands the primary file to the durable transport
// and records attribution metadata keyed by the transport id.
func (d *Daemon) StartBackgroundDownload(ctx context.Context, req types.BackgroundDownloadRequest) (int64, error) {
	modelID := types.ModelKey(req.RepoID, req.File.Name)
	id, err := d.bg.StartDownload(modelID, background.FileSpec{
		URL:          req.File.DownloadURL,
		RelativePath: req.File.Name,
		SizeBytes:    req.File.SizeBytes,
	})
	if err != nil {
		return 0, err
	}
	meta := types.DownloadMeta{
		RepoID:     req.RepoID,
		FileName:   req.File.Name,
		Quant:      req.File.Quant,
		Author:     repoAuthor(req.RepoID),
		TotalBytes: req.File.SizeBytes,
	}
	if err := d.side.Put(id, meta); err != nil {
		// without attribution the download could never be adopted
		_ = d.bg.CancelDownload(id)
		return 0, err
	}
	return id, nil
}

// repoAuthor is the owner segment of a "{author}/{repo}" id.
func repoAuthor(repoID string) string {
	if i := strings.Index(repoID, "/"); i > 0 {
		return repoID[:i]
	}
	return repoID
}

func (d *Daemon) ActiveBackgroundDownloads() ([]types.BackgroundDownloadInfo, error) {
	return d.bg.ActiveDownloads()
}

func (d *Daemon) CancelBackgroundDownload(id int64) error {
	if err := d.bg.CancelDownload(id); err != nil {
		return err
	}
	return d.side.Clear(id)
}

func (d *Daemon) Load(ctx context.Context, req types.LoadRequest) error {
	if req.Slot == types.SlotImage {
		return d.coord.LoadSecondary(ctx, req.ModelID, req.AcknowledgeWarning)
	}
	return d.coord.LoadPrimary(ctx, req.ModelID, req.AcknowledgeWarning)
}

func (d *Daemon) Unload(ctx context.Context, slot types.Slot) error {
	if slot == types.SlotImage {
		return d.coord.UnloadSecondary(ctx)
	}
	return d.coord.UnloadPrimary(ctx)
}

func (d *Daemon) UnloadAll(ctx context.Context) (types.UnloadAllResponse, error) {
	return d.coord.UnloadAll(ctx)
}

func (d *Daemon) CheckMemory(modelID string, slot types.Slot) types.MemoryCheckResult {
	return d.coord.CheckMemory(modelID, slot)
}

func (d *Daemon) CheckMemoryDual(textModelID, imageModelID string) types.MemoryCheckResult {
	return d.coord.CheckMemoryDual(textModelID, imageModelID)
}

func (d *Daemon) Status() types.StatusResponse {
	used, err := d.catalog.StorageUsed()
	if err != nil {
		d.log.Warn().Err(err).Msg("storage used unavailable")
	}
	avail, err := d.catalog.AvailableStorage()
	if err != nil {
		d.log.Warn().Err(err).Msg("free space unavailable")
	}
	models, err := d.catalog.ListDownloaded()
	if err != nil {
		d.log.Warn().Err(err).Msg("catalog read failed")
	}
	var active []types.BackgroundDownloadInfo
	if d.bg.IsAvailable() {
		if infos, err := d.bg.ActiveDownloads(); err == nil {
			active = infos
		}
	}
	now := time.Now()
	return types.StatusResponse{
		Slots:               d.coord.ActiveModels(),
		Storage:             types.StorageStatus{UsedBytes: used, AvailableBytes: avail, Models: len(models)},
		ActiveDownloads:     active,
		UptimeSeconds:       int64(now.Sub(d.started).Seconds()),
		ServerTimeUnix:      now.Unix(),
		BackgroundAvailable: d.bg.IsAvailable(),
	}
}
