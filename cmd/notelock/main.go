package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkravets/notelock/internal/blob"
	"github.com/dkravets/notelock/internal/cli"
	"github.com/dkravets/notelock/internal/config"
	"github.com/dkravets/notelock/internal/engine"
	"github.com/dkravets/notelock/internal/identity"
	"github.com/dkravets/notelock/internal/keyring"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/mirror"
	"github.com/dkravets/notelock/internal/store"
	"github.com/dkravets/notelock/internal/store/inmemory"
	"github.com/dkravets/notelock/internal/store/postgres"
)

func main() {
	cfg := config.LoadConfig()

	log := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigs
		cancel()
	}()

	var remote store.RemoteStore
	if cfg.DatabaseDSN != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Error(ctx, "remote store init failed", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		remote = pg
	} else {
		log.Info(ctx, "no DSN configured, using in-memory demo store")
		remote = inmemory.New()
	}

	session := keyring.NewSession(remote, log, cfg.KDFIterations)
	adapter := store.NewAdapter(remote, session, log)
	eng := engine.New(session, adapter, log)

	var m *mirror.Mirror
	if cfg.MirrorPath != "" {
		var err error
		m, err = mirror.Open(ctx, cfg.MirrorPath, log)
		if err != nil {
			// Advisory layer: run without it rather than refuse to start.
			log.Warn(ctx, "mirror unavailable", "err", err)
		} else {
			defer m.Close()
			eng.Subscribe(m)
		}
	}

	if cfg.S3Endpoint != "" || cfg.S3Region != "" {
		exporter, err := blob.New(ctx, blob.Config{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			BucketPrefix: cfg.S3BucketPrefix,
		}, log)
		if err != nil {
			log.Warn(ctx, "blob exporter unavailable", "err", err)
		} else {
			eng.Subscribe(blob.NewNoteObserver(exporter, session))
		}
	}

	watcher := identity.NewWatcher([]byte(cfg.AuthSecret), session, eng, log)
	if cfg.DemoUser != "" {
		token, err := identity.GenerateToken(cfg.DemoUser, []byte(cfg.AuthSecret), 24*time.Hour)
		if err != nil {
			log.Error(ctx, "demo token issue failed", "err", err)
			os.Exit(1)
		}
		if err := watcher.TokenIssued(ctx, token); err != nil {
			log.Error(ctx, "demo sign-in failed", "err", err)
			os.Exit(1)
		}
	}

	app := cli.NewApp(session, eng, m, cfg.BackupKeep, log)
	app.Run(ctx)

	watcher.SignedOut(ctx)
}
