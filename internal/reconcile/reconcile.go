// Package reconcile promotes the persisted status of landed letters to
// delivered. The rule is stateless: every tick re-reads the known messages
// and re-selects whatever is still due, so a failed write is retried by the
// next tick without any bookkeeping.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/saviobatista/pigeon-post/internal/flight"
	"github.com/saviobatista/pigeon-post/internal/stats"
	"github.com/saviobatista/pigeon-post/internal/types"
)

const (
	DefaultInterval     = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Source returns the messages currently known to the session, sent and received
type Source interface {
	Snapshot(ctx context.Context) ([]*types.Message, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) ([]*types.Message, error)

// Snapshot calls f(ctx)
func (f SourceFunc) Snapshot(ctx context.Context) ([]*types.Message, error) {
	return f(ctx)
}

// Store performs the idempotent status write. changed is false when the row
// was already delivered.
type Store interface {
	MarkDelivered(ctx context.Context, messageID string) (changed bool, err error)
}

// Cache drops cached message collections
type Cache interface {
	InvalidateMessages(ctx context.Context, userIDs ...string) error
}

// Publisher announces delivered letters
type Publisher interface {
	PublishEvent(ev *types.PostEvent) error
}

// Options configures a Reconciler. Zero values select the defaults and nil
// collaborators are skipped.
type Options struct {
	Interval     time.Duration
	WriteTimeout time.Duration
	Cache        Cache
	Publisher    Publisher
	Stats        *stats.Stats
}

// Result summarizes one tick
type Result struct {
	Due       int
	Delivered int
	Unchanged int
	Failed    int
}

// Reconciler periodically marks landed letters as delivered
type Reconciler struct {
	source       Source
	store        Store
	cache        Cache
	publisher    Publisher
	stats        *stats.Stats
	interval     time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

// New creates a new Reconciler
func New(source Source, store Store, opts Options) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	return &Reconciler{
		source:       source,
		store:        store,
		cache:        opts.Cache,
		publisher:    opts.Publisher,
		stats:        opts.Stats,
		interval:     opts.Interval,
		writeTimeout: opts.WriteTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Stats returns the reconciler's counters
func (r *Reconciler) Stats() *stats.Stats {
	return r.stats
}

// Due selects the messages whose status is not delivered but whose flight has landed at now
func Due(messages []*types.Message, now time.Time) []*types.Message {
	var due []*types.Message
	for _, m := range messages {
		if m == nil || m.Status == types.StatusDelivered {
			continue
		}
		if flight.Arrived(m.DepartureTime, m.ArrivalTime, now) {
			due = append(due, m)
		}
	}
	return due
}

// Tick snapshots the source and issues one write per due message, concurrently.
// It returns once every write has settled.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) (Result, error) {
	start := time.Now()
	r.stats.IncrementReconcileTicks()
	defer func() { r.stats.RecordTick(time.Since(start)) }()

	messages, err := r.source.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to snapshot messages: %w", err)
	}

	due := Due(messages, now)
	r.stats.AddDueMessages(len(due))
	result := Result{Due: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, m := range due {
		wg.Add(1)
		go func(m *types.Message) {
			defer wg.Done()
			changed, err := r.deliver(ctx, m)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
			case changed:
				result.Delivered++
			default:
				result.Unchanged++
			}
		}(m)
	}
	wg.Wait()

	return result, nil
}

// deliver writes the status of one message. The write itself outlives
// teardown; its side effects do not.
func (r *Reconciler) deliver(ctx context.Context, m *types.Message) (bool, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	changed, err := r.store.MarkDelivered(writeCtx, m.ID)
	if err != nil {
		r.stats.IncrementFailedDeliveries()
		log.Printf("Warning: Failed to mark message %s delivered: %v", m.ID, err)
		return false, err
	}
	if changed {
		r.stats.IncrementDeliveredMessages()
	}

	if ctx.Err() != nil {
		return changed, nil
	}

	if r.cache != nil {
		if err := r.cache.InvalidateMessages(ctx, m.SenderID, m.RecipientID); err != nil {
			log.Printf("Warning: Failed to invalidate cached messages: %v", err)
		}
	}

	if changed && r.publisher != nil {
		ev := &types.PostEvent{
			Kind:        types.EventDelivered,
			MessageID:   m.ID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Status:      types.StatusDelivered,
			PigeonName:  m.PigeonName,
			ArrivalTime: m.ArrivalTime,
			Timestamp:   r.now(),
		}
		if err := r.publisher.PublishEvent(ev); err != nil {
			log.Printf("Warning: Failed to publish delivered event: %v", err)
		} else {
			r.stats.IncrementPublishedEvents()
		}
	}

	return changed, nil
}

// Run ticks once immediately and then on every interval until ctx is done.
// A slow tick does not delay the next one. Run returns after all ticks it
// started have settled.
func (r *Reconciler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Tick(ctx, r.now())
			if err != nil {
				log.Printf("Warning: Reconcile tick failed: %v", err)
				return
			}
			if res.Due > 0 {
				log.Printf("Reconciled %d due messages: %d delivered, %d unchanged, %d failed",
					res.Due, res.Delivered, res.Unchanged, res.Failed)
			}
		}()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
