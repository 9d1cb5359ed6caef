package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"modelmgr/internal/common/fsutil"
	"modelmgr/internal/config"
	"modelmgr/internal/daemon"
	"modelmgr/internal/httpapi"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":8090"
	if v := os.Getenv("MODELMGR_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8090")
	configPath := flag.String("config", os.Getenv("MODELMGR_CONFIG"), "Optional YAML/JSON/TOML config file")
	modelsDir := flag.String("models-dir", "~/models", "Managed storage directory for model files")
	dataDir := flag.String("data-dir", "~/.modelmgr", "Directory for the persisted store and staging area")
	backgroundDownloads := flag.Bool("background-downloads", true, "Enable the durable background transport")
	totalMemoryGB := flag.Float64("total-memory-gb", 0, "Override detected total memory for admission control (0=autodetect)")
	logLevel := flag.String("log-level", envOr("MODELMGR_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		log = log.Level(lvl)
	}

	cfg := config.Config{
		Addr:                *addr,
		ModelsDir:           *modelsDir,
		DataDir:             *dataDir,
		BackgroundDownloads: *backgroundDownloads,
		TotalMemoryGB:       *totalMemoryGB,
	}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg = merge(cfg, loaded)
	}
	var err error
	if cfg.ModelsDir, err = fsutil.ExpandHome(cfg.ModelsDir); err != nil {
		log.Fatal().Err(err).Msg("resolve models dir")
	}
	if cfg.DataDir, err = fsutil.ExpandHome(cfg.DataDir); err != nil {
		log.Fatal().Err(err).Msg("resolve data dir")
	}
	if err := fsutil.EnsureDir(cfg.ModelsDir); err != nil {
		log.Fatal().Err(err).Msg("create models dir")
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("start daemon")
	}

	// shutdown cancels in-flight downloads through the handlers' joined ctx
	baseCtx, cancelBase := context.WithCancel(context.Background())
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(log)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(d)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("modelmgrd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := d.Close(); err != nil {
		log.Warn().Err(err).Msg("close error")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// merge lets a config file override flag defaults field by field.
func merge(base, file config.Config) config.Config {
	out := base
	if file.Addr != "" {
		out.Addr = file.Addr
	}
	if file.ModelsDir != "" {
		out.ModelsDir = file.ModelsDir
	}
	if file.DataDir != "" {
		out.DataDir = file.DataDir
	}
	if file.BackgroundDownloads {
		out.BackgroundDownloads = true
	}
	if file.HubTTLSeconds != 0 {
		out.HubTTLSeconds = file.HubTTLSeconds
	}
	if file.TotalMemoryGB != 0 {
		out.TotalMemoryGB = file.TotalMemoryGB
	}
	return out
}
