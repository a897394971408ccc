package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"weft/outbound-queue/blob"
	"weft/outbound-queue/bridge"
	"weft/outbound-queue/config"
	"weft/outbound-queue/job"
	"weft/outbound-queue/log"
	"weft/outbound-queue/prometheus"
	"weft/outbound-queue/queue/data"
	"weft/outbound-queue/queue/poller"
	"weft/outbound-queue/runtime"
	"weft/outbound-queue/storage"
	"weft/outbound-queue/storage/pebbledb"
	"weft/outbound-queue/storage/sqlitedb"
)

func main() {
	// a missing .env is fine, the environment may be set by the shell
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	cfg, err := config.NewConfig()
	if err != nil {
		log.Logger.Fatalf("unable to create configuration: %s", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	backend, err := newBackend(cfg)
	if err != nil {
		log.Logger.Fatalf("unable to open durable storage: %s", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Logger.WithError(err).Error("error closing durable storage during shutdown")
		}
	}()

	blobs := blob.New(backend.Blobs())
	repo := data.NewRepository(data.NewStore(backend.KV(), blobs))
	if err := repo.Load(ctx); err != nil {
		log.Logger.Fatalf("unable to load the outbound queue: %s", err)
	}

	var exitCode int
	switch {
	case cfg.RunPrune:
		exitCode = job.RunPrune(ctx, repo, blobs)
	case cfg.RunCompact:
		exitCode = job.RunCompact(ctx, backend)
	default:
		runMainApp(ctx, cfg, backend, repo, blobs)
	}

	if exitCode > 0 {
		// we call this manually because os.Exit() does not respect defer
		if err := backend.Close(); err != nil {
			log.Logger.WithError(err).Error("error closing durable storage during shutdown")
		}
		os.Exit(exitCode)
	}
}

func newBackend(cfg *config.Config) (storage.Backend, error) {
	if cfg.StorageDriver.SQLite() {
		return sqlitedb.Open(cfg.GetStoragePath(), cfg.SkipMigrations)
	}

	return pebbledb.Open(cfg.GetStoragePath())
}

func runMainApp(ctx context.Context, cfg *config.Config, backend storage.Backend, repo *data.Repository, blobs *blob.Store) {
	br := bridge.NewStdio(os.Stdin, os.Stdout)
	go func() {
		if err := br.Run(ctx); err != nil && ctx.Err() == nil {
			log.Logger.WithError(err).Error("the client shell bridge stopped unexpectedly")
		}
	}()

	unsubscribe := runtime.NewReconciler(repo, br).Start(ctx, br)
	defer unsubscribe()

	poller.Start(ctx, cfg, repo, br)

	go prometheus.ObserveQueueSize(ctx, repo)
	go prometheus.ObservePausedSize(ctx, repo)
	go prometheus.ObserveBlobUsage(ctx, blobs)
	prometheus.StartHttpServer(cfg, backend)
}
