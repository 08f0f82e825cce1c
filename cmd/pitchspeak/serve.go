package main

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sjawhar/pitchspeak/internal/export"
	"github.com/sjawhar/pitchspeak/internal/server"
)

//go:embed static/*
var staticFiles embed.FS

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI, REST API and session websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			a.logWarnings()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			assets, err := fs.Sub(staticFiles, "static")
			if err != nil {
				return fmt.Errorf("static assets: %w", err)
			}

			opts := server.Options{
				Gate:         a.gate,
				Summarizer:   a.pipeline(),
				OwnerHeader:  a.cfg.OwnerHeader,
				AdminToken:   a.cfg.AdminToken,
				PageSize:     a.cfg.HistoryPageSize,
				QuotaBackend: a.cfg.QuotaBackend,
				Warnings:     func() []string { return a.warnings },
				Logger:       a.logger,
			}
			if a.cfg.ResendAPIKey != "" {
				opts.Mailer = export.NewMailer(a.cfg.ResendAPIKey, a.cfg.EmailFrom)
			}
			if a.cfg.GDriveFolderID != "" {
				uploader, err := export.NewDriveUploader(ctx, a.cfg.GoogleCredentialsFile, a.cfg.GDriveFolderID)
				if err != nil {
					a.logger.Warn("drive export disabled", "error", err)
				} else {
					opts.Drive = uploader
				}
			}

			handler, err := server.Handler(assets, server.NewHub(), a.store, opts)
			if err != nil {
				return fmt.Errorf("build http handler: %w", err)
			}

			err = server.Serve(ctx, addr, handler, a.logger)
			a.logger.Info("pitchspeak: shutting down")
			return err
		},
	}
	cmd.Flags().String("addr", "", "listen address (defaults to listen_addr from config)")
	return cmd
}
