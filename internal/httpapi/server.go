package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelmgr/internal/catalog"
	"modelmgr/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	DiscoverArtifacts(ctx context.Context, forceRefresh bool) ([]types.Artifact, error)

	ListModels() ([]types.DownloadedModel, error)
	DeleteModel(modelID string) error
	ListOrphans() ([]types.OrphanedFile, error)
	Reconcile(ctx context.Context) (catalog.ReconcileResult, error)

	StartDownload(ctx context.Context, req types.DownloadRequest) (types.DownloadedModel, error)
	CancelDownload(repoID, fileName string)
	ActiveForegroundDownloads() []string

	BackgroundAvailable() bool
	StartBackgroundDownload(ctx context.Context, req types.BackgroundDownloadRequest) (int64, error)
	ActiveBackgroundDownloads() ([]types.BackgroundDownloadInfo, error)
	CancelBackgroundDownload(id int64) error

	Load(ctx context.Context, req types.LoadRequest) error
	Unload(ctx context.Context, slot types.Slot) error
	UnloadAll(ctx context.Context) (types.UnloadAllResponse, error)
	CheckMemory(modelID string, slot types.Slot) types.MemoryCheckResult
	CheckMemoryDual(textModelID, imageModelID string) types.MemoryCheckResult

	Status() types.StatusResponse
}

// NewMux builds the daemon's HTTP surface.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// @Summary List remote artifacts
	// @Produce json
	// @Success 200 {object} types.ArtifactsResponse
	// @Router /hub/artifacts [get]
	r.Get("/hub/artifacts", func(w http.ResponseWriter, req *http.Request) {
		force := req.URL.Query().Get("refresh") == "true"
		ctx, cancel := joinContexts(serverBaseCtx, req.Context())
		defer cancel()
		artifacts, err := svc.DiscoverArtifacts(ctx, force)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, types.ArtifactsResponse{Artifacts: artifacts})
	})

	// @Summary List downloaded models
	// @Produce json
	// @Success 200 {object} types.ModelsResponse
	// @Router /models [get]
	r.Get("/models", func(w http.ResponseWriter, req *http.Request) {
		models, err := svc.ListModels()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, types.ModelsResponse{Models: models})
	})

	// model ids contain slashes ("{repoID}/{fileName}"), hence the wildcard
	r.Delete("/models/*", func(w http.ResponseWriter, req *http.Request) {
		modelID := chi.URLParam(req, "*")
		if err := svc.DeleteModel(modelID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/models/orphans", func(w http.ResponseWriter, req *http.Request) {
		orphans, err := svc.ListOrphans()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, types.OrphansResponse{Orphans: orphans})
	})

	r.Post("/models/reconcile", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := joinContexts(serverBaseCtx, req.Context())
		defer cancel()
		res, err := svc.Reconcile(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	// @Summary Start a foreground download
	// @Accept json
	// @Produce json
	// @Success 200 {object} types.DownloadedModel
	// @Failure 409 {object} types.ErrorResponse
	// @Router /downloads [post]
	r.Post("/downloads", func(w http.ResponseWriter, req *http.Request) {
		var body types.DownloadRequest
		if !decodeJSON(w, req, &body) {
			return
		}
		if body.RepoID == "" || body.File.Name == "" {
			writeJSONError(w, http.StatusBadRequest, "repo_id and file.name are required")
			return
		}
		// shutdown cancels the transfer along with the client disconnecting
		ctx, cancel := joinContexts(serverBaseCtx, req.Context())
		defer cancel()
		entry, err := svc.StartDownload(ctx, body)
		if err != nil {
			downloadsStarted.WithLabelValues("rejected").Inc()
			writeError(w, err)
			return
		}
		downloadsStarted.WithLabelValues("completed").Inc()
		writeJSON(w, entry)
	})

	r.Get("/downloads", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"active": svc.ActiveForegroundDownloads()})
	})

	r.Delete("/downloads/*", func(w http.ResponseWriter, req *http.Request) {
		key := chi.URLParam(req, "*")
		idx := strings.LastIndex(key, "/")
		if idx <= 0 || idx == len(key)-1 {
			writeJSONError(w, http.StatusBadRequest, "expected {repoID}/{fileName}")
			return
		}
		svc.CancelDownload(key[:idx], key[idx+1:])
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/background/downloads", func(w http.ResponseWriter, req *http.Request) {
		var body types.BackgroundDownloadRequest
		if !decodeJSON(w, req, &body) {
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, req.Context())
		defer cancel()
		id, err := svc.StartBackgroundDownload(ctx, body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]int64{"id": id})
	})

	r.Get("/background/downloads", func(w http.ResponseWriter, req *http.Request) {
		infos, err := svc.ActiveBackgroundDownloads()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"downloads": infos})
	})

	r.Delete("/background/downloads/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid download id")
			return
		}
		if err := svc.CancelBackgroundDownload(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// @Summary Load a model into a slot
	// @Accept json
	// @Success 204
	// @Failure 422 {object} types.ErrorResponse
	// @Router /load [post]
	r.Post("/load", func(w http.ResponseWriter, req *http.Request) {
		var body types.LoadRequest
		if !decodeJSON(w, req, &body) {
			return
		}
		if body.ModelID == "" {
			writeJSONError(w, http.StatusBadRequest, "model_id is required")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, req.Context())
		defer cancel()
		if err := svc.Load(ctx, body); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/unload", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Slot types.Slot `json:"slot"`
		}
		if !decodeJSON(w, req, &body) {
			return
		}
		if body.Slot == "" {
			body.Slot = types.SlotText
		}
		ctx, cancel := joinContexts(serverBaseCtx, req.Context())
		defer cancel()
		if err := svc.Unload(ctx, body.Slot); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/unload/all", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := joinContexts(serverBaseCtx, req.Context())
		defer cancel()
		res, err := svc.UnloadAll(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	// an image_model_id makes this a dual check: both candidates graded as
	// if resident at the same time
	r.Get("/memory/check", func(w http.ResponseWriter, req *http.Request) {
		modelID := req.URL.Query().Get("model_id")
		imageID := req.URL.Query().Get("image_model_id")
		if modelID == "" && imageID == "" {
			writeJSONError(w, http.StatusBadRequest, "model_id is required")
			return
		}
		if imageID != "" {
			writeJSON(w, svc.CheckMemoryDual(modelID, imageID))
			return
		}
		slot := types.Slot(req.URL.Query().Get("slot"))
		if slot == "" {
			slot = types.SlotText
		}
		writeJSON(w, svc.CheckMemory(modelID, slot))
	})

	// @Summary Daemon status
	// @Produce json
	// @Success 200 {object} types.StatusResponse
	// @Router /status [get]
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		if zlog != nil {
			zlog.Error().Err(err).Msg("encode response failed")
		}
	}
}

// decodeJSON enforces content type and body size; it writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
