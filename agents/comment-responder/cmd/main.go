package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	commentresponder "comment-responder/agents/comment-responder"
	"comment-responder/shared/config"
	"comment-responder/shared/monitoring"
	"comment-responder/shared/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("comment-responder: ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context that responds to signals
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	monitor := monitoring.NewMonitor()
	agent := commentresponder.NewResponder(cfg, monitor)
	s := scheduler.New(cfg, agent, monitor)

	if len(os.Args) > 1 && os.Args[1] == "--once" {
		fmt.Println("Running once...")
		if err := agent.Initialize(ctx); err != nil {
			log.Fatalf("Failed to initialize agent: %v", err)
		}

		if err := s.RunOnce(ctx); err != nil {
			log.Fatalf("Failed to run: %v", err)
		}
		return
	}

	fmt.Println("Starting scheduler...")
	if err := s.Start(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
}
