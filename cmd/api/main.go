package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"funding/internal/config"
	"funding/internal/database"
	"funding/internal/pkg/rabbitmq"
	"funding/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	publisher := rabbitmq.Connect(cfg.RabbitMQURL, log.Printf)
	defer publisher.Close()

	srv := server.New(server.Options{
		Config:    cfg,
		DB:        db,
		Publisher: publisher,
		Loggerf:   log.Printf,
	})
	defer srv.Hub.Close()

	if err := srv.Scheduler.Start(); err != nil {
		log.Fatalf("analytics scheduler: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("level=info msg=http server listening addr=%s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("level=info msg=shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("level=error msg=http shutdown failed err=%v", err)
	}

	select {
	case <-srv.Scheduler.Stop().Done():
	case <-ctx.Done():
		log.Println("level=warn msg=analytics job still running at shutdown")
	}
	log.Println("level=info msg=server stopped")
}
