package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"resume-matcher/internal/db"
	"resume-matcher/internal/helper"
	"resume-matcher/internal/matcher"
	"resume-matcher/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web form and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if err := helper.CreateFolder(cfg.Server.UploadDir); err != nil {
			return err
		}

		m, err := matcher.FromConfig(cfg)
		if err != nil {
			return err
		}

		var store *db.Store
		if cfg.Database.Enabled {
			database, err := db.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Debug)
			if err != nil {
				return fmt.Errorf("opening history database: %w", err)
			}
			defer database.Close()
			store = db.NewStore(database)
			m.WithHistory(store)
		}

		srv := server.New(server.Config{
			Addr:            cfg.Server.Addr,
			UploadDir:       cfg.Server.UploadDir,
			KeepUploads:     cfg.Server.KeepUploads,
			MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
			RequestTimeout:  time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
			AllowAllOrigins: cfg.Server.AllowAllOrigins,
		}, m, store)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
