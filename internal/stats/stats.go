package stats

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Store persists statistics snapshots
type Store interface {
	StoreStats(ctx context.Context, stats map[string]interface{}) error
}

// Stats tracks post delivery statistics
type Stats struct {
	// Reconciler counters
	ReconcileTicks    uint64
	DueMessages       uint64
	DeliveredMessages uint64
	FailedDeliveries  uint64

	// Dispatch counters
	SentMessages    uint64
	PublishedEvents uint64

	// Timing
	StartTime     time.Time
	LastTickTime  time.Time
	TickDurations time.Duration

	store Store

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{
		StartTime: time.Now(),
	}
}

// SetStore sets the backend used for persistence
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	if store == nil {
		return fmt.Errorf("stats store not set")
	}

	return store.StoreStats(ctx, s.GetStats())
}

// IncrementReconcileTicks increments the reconcile ticks counter
func (s *Stats) IncrementReconcileTicks() {
	atomic.AddUint64(&s.ReconcileTicks, 1)
}

// AddDueMessages adds to the due messages counter
func (s *Stats) AddDueMessages(n int) {
	if n > 0 {
		atomic.AddUint64(&s.DueMessages, uint64(n))
	}
}

// IncrementDeliveredMessages increments the delivered messages counter
func (s *Stats) IncrementDeliveredMessages() {
	atomic.AddUint64(&s.DeliveredMessages, 1)
}

// IncrementFailedDeliveries increments the failed deliveries counter
func (s *Stats) IncrementFailedDeliveries() {
	atomic.AddUint64(&s.FailedDeliveries, 1)
}

// IncrementSentMessages increments the sent messages counter
func (s *Stats) IncrementSentMessages() {
	atomic.AddUint64(&s.SentMessages, 1)
}

// IncrementPublishedEvents increments the published events counter
func (s *Stats) IncrementPublishedEvents() {
	atomic.AddUint64(&s.PublishedEvents, 1)
}

// RecordTick records the completion time and duration of a reconcile tick
func (s *Stats) RecordTick(duration time.Duration) {
	s.mu.Lock()
	s.LastTickTime = time.Now()
	s.TickDurations += duration
	s.mu.Unlock()
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"reconcile_ticks":    atomic.LoadUint64(&s.ReconcileTicks),
		"due_messages":       atomic.LoadUint64(&s.DueMessages),
		"delivered_messages": atomic.LoadUint64(&s.DeliveredMessages),
		"failed_deliveries":  atomic.LoadUint64(&s.FailedDeliveries),
		"sent_messages":      atomic.LoadUint64(&s.SentMessages),
		"published_events":   atomic.LoadUint64(&s.PublishedEvents),
		"last_tick_time":     s.LastTickTime,
		"tick_durations":     s.TickDurations,
		"uptime":             time.Since(s.StartTime),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	stats := s.GetStats()
	return fmt.Sprintf(
		"Reconcile Ticks: %d\n"+
			"Due Messages: %d\n"+
			"Delivered Messages: %d\n"+
			"Failed Deliveries: %d\n"+
			"Sent Messages: %d\n"+
			"Published Events: %d\n"+
			"Last Tick Time: %s\n"+
			"Tick Durations: %s\n"+
			"Uptime: %s",
		stats["reconcile_ticks"],
		stats["due_messages"],
		stats["delivered_messages"],
		stats["failed_deliveries"],
		stats["sent_messages"],
		stats["published_events"],
		stats["last_tick_time"],
		stats["tick_durations"],
		stats["uptime"],
	)
}

// StartPersistence starts periodic persistence of statistics
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Persist(finalCtx); err != nil {
				log.Printf("Warning: Failed to persist final statistics: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Persist(ctx); err != nil {
				log.Printf("Warning: Failed to persist statistics: %v", err)
			}
		}
	}
}
