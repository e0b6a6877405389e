package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brandkit/internal/gateway/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("brandkit: failed to initialize: %v", err)
	}

	go func() {
		if err := a.Start(); err != nil {
			log.Printf("brandkit: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("brandkit: shutting down gateway...")

	// Drain in-flight step runs; provider calls past their own timeout are
	// abandoned with the process.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		log.Fatalf("brandkit: forced shutdown: %v", err)
	}

	log.Println("brandkit: gateway stopped")
}
