package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ringQueue is a bounded FIFO that drops its oldest entry when pushed at
// capacity. Diagnostics are best effort, so losing the oldest lines under
// pressure is acceptable.
type ringQueue[T any] struct {
	buf  []T
	head int
	n    int
}

func newRingQueue[T any](capacity int) *ringQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringQueue[T]{buf: make([]T, capacity)}
}

// push appends v, reporting whether an old entry was dropped to make room.
func (q *ringQueue[T]) push(v T) bool {
	if q.n == len(q.buf) {
		q.buf[q.head] = v
		q.head = (q.head + 1) % len(q.buf)
		return true
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return false
}

func (q *ringQueue[T]) pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

func (q *ringQueue[T]) len() int { return q.n }

// Pipeline decouples high-frequency log producers from the rate-limited UI
// channel. Lines land in a bounded ingestion ring from any goroutine; a
// dispatcher periodically joins them into batches on a bounded outbound
// queue; a sender publishes one outbound event at a time on the bus.
// Ordering is FIFO end to end.
type Pipeline struct {
	bus *Bus
	cfg PipelineConfig

	mu       sync.Mutex
	ingest   *ringQueue[string]
	outbound *ringQueue[Event]

	runMu   sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPipeline creates a stopped pipeline publishing on bus.
func NewPipeline(bus *Bus, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		bus:      bus,
		cfg:      cfg,
		ingest:   newRingQueue[string](cfg.IngestCapacity),
		outbound: newRingQueue[Event](cfg.OutboundCapacity),
	}
}

// Append queues a single log line. Safe from any goroutine; never blocks.
func (p *Pipeline) Append(line string) {
	if line == "" {
		return
	}
	p.mu.Lock()
	p.ingest.push(line)
	p.mu.Unlock()
}

// AppendEvent queues a pre-formed event directly onto the outbound queue,
// bypassing batching. Used for tick, clock and button-state events.
func (p *Pipeline) AppendEvent(ev Event) {
	p.mu.Lock()
	p.outbound.push(ev)
	p.mu.Unlock()
}

// Start spawns the dispatcher and sender. It can be called again after Stop.
func (p *Pipeline) Start() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.wg.Add(2)
	go p.loop(ctx, p.cfg.DispatchInterval(), p.dispatchOnce)
	go p.loop(ctx, p.cfg.SendInterval(), p.sendOnce)
}

// Stop halts both stages and waits for them. Queued entries stay queued.
func (p *Pipeline) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.runMu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline) loop(ctx context.Context, interval time.Duration, work func()) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			work()
		}
	}
}

// dispatchOnce drains up to one batch of lines into one outbound log event.
func (p *Pipeline) dispatchOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ingest.len() == 0 {
		return
	}
	batch := make([]string, 0, p.cfg.BatchSize)
	for len(batch) < p.cfg.BatchSize {
		line, ok := p.ingest.pop()
		if !ok {
			break
		}
		batch = append(batch, line)
	}
	p.outbound.push(Event{Type: EventLog, Payload: strings.Join(batch, "\n")})
}

// sendOnce publishes the oldest outbound event, if any.
func (p *Pipeline) sendOnce() {
	p.mu.Lock()
	ev, ok := p.outbound.pop()
	p.mu.Unlock()
	if ok {
		p.bus.Publish(ev)
	}
}

// Flush synchronously drains both queues to the bus. Intended for shutdown
// and tests; the periodic stages keep running if started.
func (p *Pipeline) Flush() {
	for {
		p.mu.Lock()
		empty := p.ingest.len() == 0 && p.outbound.len() == 0
		p.mu.Unlock()
		if empty {
			return
		}
		p.dispatchOnce()
		p.sendOnce()
	}
}

// Logf formats a line and appends it, letting the pipeline double as the
// controller's log sink.
func (p *Pipeline) Logf(format string, v ...any) {
	p.Append(fmt.Sprintf(format, v...))
}
