package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leca/enhance-studio/internal/config"
	"github.com/leca/enhance-studio/internal/database"
	"github.com/leca/enhance-studio/internal/enhancer"
	"github.com/leca/enhance-studio/internal/logging"
	"github.com/leca/enhance-studio/internal/router"
	"github.com/leca/enhance-studio/internal/session"
	"github.com/leca/enhance-studio/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// CLI flags. Unset flags leave the environment configuration in place.
var (
	addrFlag       string
	serviceURLFlag string
	dbFlag         string
	storageFlag    string
	maxUploadFlag  int64
	logLevelFlag   string
	logFormatFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "enhance-studio",
	Short: "Web client for an image super-resolution service",
	Long: `Enhance Studio serves a single-page tool for upscaling images. Pick or
drop an image, choose a scale factor and tile size, and the image is sent to
the enhancement service; the result can be downloaded or enhanced again.

Configuration is read from ENH_* environment variables; flags override them.

Examples:
  enhance-studio
  enhance-studio --addr :9090 --service-url http://gpu-box:8013/api
  enhance-studio --log-format console --log-level debug`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addrFlag, "addr", "", "listen address (ENH_LISTEN_ADDR)")
	f.StringVar(&serviceURLFlag, "service-url", "", "enhancement service base URL (ENH_SERVICE_URL)")
	f.StringVar(&dbFlag, "db", "", "SQLite session database path (ENH_DB_PATH)")
	f.StringVar(&storageFlag, "storage", "", "blob storage directory (ENH_STORAGE_PATH)")
	f.Int64Var(&maxUploadFlag, "max-upload", 0, "largest accepted upload in bytes (ENH_MAX_UPLOAD_BYTES)")
	f.StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (ENH_LOG_LEVEL)")
	f.StringVar(&logFormatFlag, "log-format", "", "json or console (ENH_LOG_FORMAT)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.ListenAddr = addrFlag
	}
	if f.Changed("service-url") {
		cfg.ServiceURL = serviceURLFlag
	}
	if f.Changed("db") {
		cfg.DBPath = dbFlag
	}
	if f.Changed("storage") {
		cfg.StoragePath = storageFlag
	}
	if f.Changed("max-upload") {
		cfg.MaxUploadBytes = maxUploadFlag
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if f.Changed("log-format") {
		cfg.LogFormat = logFormatFlag
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyFlags(cmd, cfg)
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	db, err := database.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	store := storage.NewFileSystem(cfg.StoragePath)
	client := enhancer.New(cfg.ServiceURL, nil)
	sessions := session.NewController(db, store, client, session.WithMaxUpload(cfg.MaxUploadBytes))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := sessions.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recovering interrupted sessions: %w", err)
	} else if n > 0 {
		log.Warn().Int("sessions", n).Msg("marked interrupted enhancements as failed")
	}

	srv, err := router.New(sessions, client, cfg)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Str("service_url", cfg.ServiceURL).Msg("starting server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sessions.RunSweeper(ctx, cfg.SweepInterval, cfg.SessionTTL)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	return nil
}
