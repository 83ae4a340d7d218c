package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tydee/tydee-pro/internal/blob"
	"github.com/tydee/tydee-pro/internal/marketplace"
	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/schemas"
	"github.com/tydee/tydee-pro/internal/server"
	"github.com/tydee/tydee-pro/internal/server/ratelimit"
)

var (
	servePort   int
	serveMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the marketplace REST endpoints and runs the job expiry sweeper.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Use the in-memory store instead of PostgreSQL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	jwtCfg, err := cfg.JWTSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, serveMemory)
	if err != nil {
		return err
	}
	defer closeStore()
	if migrator, ok := store.(interface{ Migrate(context.Context) error }); ok {
		if err := migrator.Migrate(ctx); err != nil {
			return err
		}
	}

	registry, err := schemas.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load property schemas: %w", err)
	}
	options := []marketplace.Option{marketplace.WithPropertyValidator(registry)}

	if cfg.Blob.Bucket != "" {
		photos, err := blob.New(ctx, cfg.Blob)
		if err != nil {
			return err
		}
		defer func() { _ = photos.Close() }()
		options = append(options, marketplace.WithPhotoStore(photos))
	} else {
		observability.Logger().Warn("blob.bucket not set, profile photo uploads are disabled")
	}

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	service := marketplace.NewService(store, marketplace.OptionsFromConfig(cfg), options...)
	srv, err := server.New(server.Config{
		Port:      cfg.Server.Port,
		JWT:       jwtCfg,
		RateLimit: ratelimit.LoadConfig(),
	}, service)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sweeper := marketplace.NewSweeper(store, locker, cfg.Sweeper.Interval, cfg.Sweeper.MaxAge)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})
	return g.Wait()
}
