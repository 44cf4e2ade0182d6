package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/jun/scandrive/internal/app"
	"github.com/jun/scandrive/internal/config"
	"github.com/jun/scandrive/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("SCANDRIVE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	services, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("init services: %v", err)
	}
	defer services.Close()

	server := asynq.NewServer(app.RedisOpt(cfg.Queue), asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
	})
	processor := worker.NewProcessor(services.Drive)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
