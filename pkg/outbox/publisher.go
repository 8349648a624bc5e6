package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/aobuilder/aob/pkg/dlq"
	"github.com/aobuilder/aob/pkg/eventstore"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/joeycumines/go-microbatch"
)

// job is one outbox row in flight through a batch, carrying back its own
// publish outcome so the drain loop can decide retry vs. quarantine
// without a second round trip to the store.
type job struct {
	entry *events.OutboxEntry
	event *events.Event
	err   error
}

// Publisher drains the event store's outbox in the background, batching
// rows via go-microbatch before handing them to the Bus.
type Publisher struct {
	store         eventstore.Store
	bus           Bus
	dlq           dlq.Queue
	batcher       *microbatch.Batcher[*job]
	maxRetries    int
	batchSize     int
	pollEvery     time.Duration
	quarantineTTL time.Duration
	log           *slog.Logger

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPollInterval overrides how often the Publisher scans the outbox
// for newly durable events (default 200ms).
func WithPollInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.pollEvery = d }
}

// WithMaxRetries overrides how many publish attempts an event gets
// before it is quarantined to the dead-letter queue (default 8).
func WithMaxRetries(n int) PublisherOption {
	return func(p *Publisher) { p.maxRetries = n }
}

// WithBatchSize overrides how many unpublished entries one drain pass
// reads past the watermark (default 64). The microbatch flush size
// follows it.
func WithBatchSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithQuarantineTTL overrides how long a dead-lettered event stays
// quarantined before dlq.List(ready_for_retry) offers it back to an
// operator (default 24h).
func WithQuarantineTTL(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.quarantineTTL = d
		}
	}
}

// WithLogger overrides the Publisher's logger (default slog.Default()).
func WithLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.log = l }
}

// NewPublisher wires a Publisher over store, bus and dead-letter queue.
func NewPublisher(store eventstore.Store, bus Bus, dq dlq.Queue, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:         store,
		bus:           bus,
		dlq:           dq,
		maxRetries:    8,
		batchSize:     64,
		pollEvery:     200 * time.Millisecond,
		quarantineTTL: 24 * time.Hour,
		log:           slog.Default(),
		stopChan:      make(chan struct{}),
		stoppedChan:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	// MaxConcurrency stays 1: concurrent batches could publish two
	// events of the same correlation id out of sequence order, breaking
	// the per-correlation ordering guarantee consumers rely on.
	// Batching still amortizes per-flush overhead.
	p.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:        p.batchSize,
		FlushInterval:  50 * time.Millisecond,
		MaxConcurrency: 1,
	}, p.processBatch)

	return p
}

// processBatch is the go-microbatch BatchProcessor: it publishes each job
// to the bus, partitioned by the event's correlation id, and records the
// per-job outcome back onto the job itself for DrainOnce to act on.
func (p *Publisher) processBatch(ctx context.Context, jobs []*job) error {
	for _, j := range jobs {
		j.err = p.bus.Publish(ctx, j.event.CorrelationID, j.event)
	}
	return nil
}

// Start launches the background drain loop. Call Stop to shut it down.
func (p *Publisher) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop signals the drain loop to exit and waits for it to finish.
func (p *Publisher) Stop() {
	close(p.stopChan)
	<-p.stoppedChan
	_ = p.batcher.Shutdown(context.Background())
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stoppedChan)

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	var cursor int64 = -1

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			next, err := p.DrainOnce(ctx, cursor)
			if err != nil {
				p.log.Error("aob/outbox: drain failed", "error", err)
				continue
			}
			cursor = next
		}
	}
}

// DrainOnce scans one page of the outbox, publishes it through the
// batcher, and advances the scan cursor. Events whose publish attempts
// are exhausted are quarantined to the dead-letter queue rather than
// retried forever. Exported so callers that want a
// synchronous drain (e.g. tests) don't need the background loop.
func (p *Publisher) DrainOnce(ctx context.Context, cursor int64) (int64, error) {
	entries, err := p.store.ScanOutbox(ctx, p.batchSize, cursor)
	if err != nil {
		return cursor, err
	}
	if len(entries) == 0 {
		return cursor, nil
	}

	// resolved[i] tracks whether entries[i] reached a terminal state this
	// pass (published or quarantined) rather than just having been
	// scanned - the cursor may only advance through the contiguous
	// resolved prefix, or a row that still needs retrying would fall
	// behind the watermark and never be scanned again.
	resolved := make([]bool, len(entries))
	results := make([]*microbatch.JobResult[*job], len(entries))

	for i, entry := range entries {
		ev, err := p.store.GetEvent(ctx, entry.EventID.String())
		if err != nil {
			p.log.Error("aob/outbox: missing event for outbox entry", "event_id", entry.EventID, "error", err)
			resolved[i] = true
			continue
		}

		j := &job{entry: entry, event: ev}

		res, err := p.batcher.Submit(ctx, j)
		if err != nil {
			return cursor, err
		}
		results[i] = res
	}

	var publishedIDs []string
	for i, res := range results {
		if res == nil {
			continue
		}
		if err := res.Wait(ctx); err != nil {
			// the batch itself failed (BatchProcessor never returns an
			// error here; this guards future changes) - treat the job
			// as failed.
			res.Job.err = err
		}

		if res.Job.err == nil {
			publishedIDs = append(publishedIDs, res.Job.entry.EventID.String())
			resolved[i] = true
			continue
		}

		quarantined, err := p.handleFailure(ctx, res.Job)
		if err != nil {
			p.log.Error("aob/outbox: failed to record publish failure", "error", err)
			continue
		}
		if quarantined {
			// quarantining marks the row published with an error marker
			// so it stops being rescanned.
			publishedIDs = append(publishedIDs, res.Job.entry.EventID.String())
		}
		resolved[i] = quarantined
	}

	if len(publishedIDs) > 0 {
		if err := p.store.MarkPublished(ctx, publishedIDs); err != nil {
			return cursor, err
		}
	}

	next := cursor
	for i, entry := range entries {
		if !resolved[i] {
			break
		}
		next = entry.Cursor
	}
	return next, nil
}

// handleFailure records a failed publish attempt and quarantines the
// event once its attempt count reaches maxRetries, reporting back
// whether quarantine happened so DrainOnce can advance the cursor past
// it.
func (p *Publisher) handleFailure(ctx context.Context, j *job) (quarantined bool, err error) {
	attempts, err := p.store.MarkAttempt(ctx, j.entry.EventID.String(), j.err.Error())
	if err != nil {
		return false, err
	}

	if attempts < p.maxRetries {
		return false, nil
	}

	if err := p.dlq.Quarantine(ctx, &events.DLQEntry{
		EventID:         j.entry.EventID,
		CorrelationID:   j.event.CorrelationID,
		LastError:       j.err.Error(),
		QuarantineUntil: time.Now().Add(p.quarantineTTL),
		CreatedAt:       time.Now(),
	}); err != nil {
		return false, err
	}
	return true, nil
}
