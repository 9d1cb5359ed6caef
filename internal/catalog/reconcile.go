package catalog

import (
	"context"
	"path/filepath"

	"modelmgr/pkg/types"
)

// TransportView is the slice of the background transport Reconcile needs.
type TransportView interface {
	ActiveDownloads() ([]types.BackgroundDownloadInfo, error)
	MoveCompletedDownload(id int64, targetPath string) (string, error)
}

// ReconcileResult summarizes what a reconciliation pass did.
type ReconcileResult struct {
	Registered []types.DownloadedModel
	// Side-table entries cleared for failed transfers.
	ClearedFailed []int64
	// Reported ids with no side-table metadata; never adopted.
	Skipped []int64
	// Transfers still in flight, left untouched.
	InFlight []int64
}

// Reconcile rebuilds catalog truth from the transport's report after a
// process restart. Completed transfers with side-table metadata are moved
// into the managed directory and registered; failed ones only have their
// metadata cleared; in-flight ones are left alone so the UI can keep
// tracking them; unattributable ones are skipped entirely.
func (c *Catalog) Reconcile(ctx context.Context, transport TransportView, side *SideTable) (ReconcileResult, error) {
	var res ReconcileResult
	downloads, err := transport.ActiveDownloads()
	if err != nil {
		return res, err
	}
	for _, dl := range downloads {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		meta, ok, err := side.Get(dl.ID)
		if err != nil {
			return res, err
		}
		if !ok {
			c.log.Warn().Int64("transport_id", dl.ID).Str("status", string(dl.Status)).Msg("download has no metadata, skipping")
			res.Skipped = append(res.Skipped, dl.ID)
			continue
		}
		switch dl.Status {
		case types.StatusCompleted:
			target := filepath.Join(c.modelsDir, meta.FileName)
			moved, err := transport.MoveCompletedDownload(dl.ID, target)
			if err != nil {
				c.log.Error().Int64("transport_id", dl.ID).Err(err).Msg("failed to collect completed download")
				continue
			}
			file := types.RemoteFile{Name: meta.FileName, SizeBytes: meta.TotalBytes, Quant: meta.Quant}
			entry, err := c.Register(meta.RepoID, file, moved)
			if err != nil {
				c.log.Error().Int64("transport_id", dl.ID).Err(err).Msg("failed to register completed download")
				continue
			}
			if err := side.Clear(dl.ID); err != nil {
				return res, err
			}
			res.Registered = append(res.Registered, entry)
		case types.StatusFailed:
			if err := side.Clear(dl.ID); err != nil {
				return res, err
			}
			res.ClearedFailed = append(res.ClearedFailed, dl.ID)
		default:
			// running / pending / paused: both transport state and metadata
			// stay untouched.
			res.InFlight = append(res.InFlight, dl.ID)
		}
	}
	return res, nil
}
