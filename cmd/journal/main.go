package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/saviobatista/pigeon-post/internal/config"
	"github.com/saviobatista/pigeon-post/internal/nats"
	"github.com/saviobatista/pigeon-post/internal/storage"
	"github.com/saviobatista/pigeon-post/internal/types"
)

// EventSubscriber delivers post events to a handler
type EventSubscriber interface {
	SubscribeEvents(handler func(*types.PostEvent)) error
}

// EventWriter persists a single post event
type EventWriter interface {
	WriteEvent(ev *types.PostEvent) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	client, err := nats.New(cfg.NATSURL)
	if err != nil {
		log.Printf("Failed to create NATS client: %v", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runJournal(ctx, cfg.JournalDir, client); err != nil {
		log.Printf("Journal failed: %v", err)
		client.Close()
		os.Exit(1)
	}
}

// runJournal appends every post event to the journal in outputDir until ctx is done
func runJournal(ctx context.Context, outputDir string, sub EventSubscriber) error {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	journal := storage.New(outputDir)
	if err := journal.Start(); err != nil {
		return fmt.Errorf("failed to start journal: %w", err)
	}
	defer func() {
		if err := journal.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing journal: %v\n", err)
		}
	}()

	if err := sub.SubscribeEvents(eventHandler(journal)); err != nil {
		return fmt.Errorf("failed to subscribe to post events: %w", err)
	}
	log.Printf("Journaling post events to %s", outputDir)

	<-ctx.Done()
	log.Println("Shutting down...")
	return nil
}

// eventHandler writes events, logging failures instead of dropping the subscription
func eventHandler(w EventWriter) func(*types.PostEvent) {
	return func(ev *types.PostEvent) {
		if err := w.WriteEvent(ev); err != nil {
			log.Printf("Failed to write event %s for message %s: %v", ev.Kind, ev.MessageID, err)
		}
	}
}
