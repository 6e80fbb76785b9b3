package sim

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		IngestCapacity:     10000,
		OutboundCapacity:   10000,
		BatchSize:          50,
		DispatchIntervalMS: 5,
		SendIntervalMS:     1,
	}
}

func collectLogLines(events <-chan Event) []string {
	var lines []string
	for {
		select {
		case ev := <-events:
			if ev.Type == EventLog {
				lines = append(lines, strings.Split(ev.Payload, "\n")...)
			}
		default:
			return lines
		}
	}
}

func TestRingQueue_FIFO(t *testing.T) {
	q := newRingQueue[int](4)
	for i := 1; i <= 4; i++ {
		if dropped := q.push(i); dropped {
			t.Fatalf("push %d dropped below capacity", i)
		}
	}
	for want := 1; want <= 4; want++ {
		got, ok := q.pop()
		if !ok || got != want {
			t.Fatalf("pop = %d,%v, want %d,true", got, ok, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("pop from empty queue succeeded")
	}
}

func TestRingQueue_DropsOldestAtCapacity(t *testing.T) {
	q := newRingQueue[int](3)
	q.push(1)
	q.push(2)
	q.push(3)
	if dropped := q.push(4); !dropped {
		t.Fatal("push at capacity did not report a drop")
	}
	for _, want := range []int{2, 3, 4} {
		got, _ := q.pop()
		if got != want {
			t.Fatalf("pop = %d, want %d", got, want)
		}
	}
}

func TestPipeline_BatchesPreserveOrder(t *testing.T) {
	bus := NewBus()
	pipe := NewPipeline(bus, testPipelineConfig())
	events, cancel := bus.Subscribe(64)
	defer cancel()

	total := 120
	for i := 0; i < total; i++ {
		pipe.Append(fmt.Sprintf("line-%03d", i))
	}
	pipe.Flush()

	lines := collectLogLines(events)
	if len(lines) != total {
		t.Fatalf("delivered %d lines, want %d", len(lines), total)
	}
	for i, line := range lines {
		if want := fmt.Sprintf("line-%03d", i); line != want {
			t.Fatalf("line %d = %q, want %q", i, line, want)
		}
	}
}

func TestPipeline_BatchSizeBound(t *testing.T) {
	cfg := testPipelineConfig()
	bus := NewBus()
	pipe := NewPipeline(bus, cfg)
	events, cancel := bus.Subscribe(64)
	defer cancel()

	for i := 0; i < 120; i++ {
		pipe.Append(fmt.Sprintf("line-%03d", i))
	}
	pipe.Flush()

	var batches []int
	for {
		select {
		case ev := <-events:
			if ev.Type == EventLog {
				batches = append(batches, len(strings.Split(ev.Payload, "\n")))
			}
			continue
		default:
		}
		break
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3 (%v)", len(batches), batches)
	}
	for i, n := range batches {
		if n > cfg.BatchSize {
			t.Errorf("batch %d has %d lines, exceeds %d", i, n, cfg.BatchSize)
		}
	}
	if batches[0] != 50 || batches[1] != 50 || batches[2] != 20 {
		t.Errorf("batch sizes = %v, want [50 50 20]", batches)
	}
}

func TestPipeline_PerProducerOrderUnderConcurrency(t *testing.T) {
	bus := NewBus()
	pipe := NewPipeline(bus, testPipelineConfig())
	events, cancel := bus.Subscribe(256)
	defer cancel()

	producers, perProducer := 4, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				pipe.Append(fmt.Sprintf("p%d-%04d", p, i))
			}
		}(p)
	}
	wg.Wait()
	pipe.Flush()

	lines := collectLogLines(events)
	if len(lines) != producers*perProducer {
		t.Fatalf("delivered %d lines, want %d", len(lines), producers*perProducer)
	}

	// Lines from the same producer must come out in append order.
	next := make(map[string]int)
	for _, line := range lines {
		var p, i int
		if _, err := fmt.Sscanf(line, "p%d-%d", &p, &i); err != nil {
			t.Fatalf("unexpected line %q: %v", line, err)
		}
		key := fmt.Sprintf("p%d", p)
		if i != next[key] {
			t.Fatalf("producer %s delivered %d, want %d", key, i, next[key])
		}
		next[key]++
	}
}

func TestPipeline_DropsOldestOnOverflow(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.IngestCapacity = 10
	bus := NewBus()
	pipe := NewPipeline(bus, cfg)
	events, cancel := bus.Subscribe(16)
	defer cancel()

	for i := 0; i < 15; i++ {
		pipe.Append(fmt.Sprintf("line-%02d", i))
	}
	pipe.Flush()

	lines := collectLogLines(events)
	if len(lines) != 10 {
		t.Fatalf("delivered %d lines, want 10", len(lines))
	}
	if lines[0] != "line-05" || lines[9] != "line-14" {
		t.Errorf("oldest lines not dropped, got %v", lines)
	}
}

func TestPipeline_AppendEventBypassesBatching(t *testing.T) {
	bus := NewBus()
	pipe := NewPipeline(bus, testPipelineConfig())
	events, cancel := bus.Subscribe(16)
	defer cancel()

	pipe.AppendEvent(Event{Type: EventClock, Payload: "12:00:00"})
	pipe.Flush()

	select {
	case ev := <-events:
		if ev.Type != EventClock || ev.Payload != "12:00:00" {
			t.Fatalf("got %+v, want clock event", ev)
		}
	default:
		t.Fatal("clock event not delivered")
	}
}

func TestPipeline_PeriodicStagesDeliver(t *testing.T) {
	bus := NewBus()
	pipe := NewPipeline(bus, testPipelineConfig())
	events, cancel := bus.Subscribe(16)
	defer cancel()

	pipe.Start()
	defer pipe.Stop()
	pipe.Append("hello from the background")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventLog && strings.Contains(ev.Payload, "hello from the background") {
				return
			}
		case <-deadline:
			t.Fatal("pipeline did not deliver within 2s")
		}
	}
}

func TestClock_PublishesTimestamps(t *testing.T) {
	bus := NewBus()
	pipe := NewPipeline(bus, testPipelineConfig())
	events, cancel := bus.Subscribe(16)
	defer cancel()

	pipe.Start()
	defer pipe.Stop()
	clock := NewClock(pipe, 10*time.Millisecond)
	clock.Start()
	defer clock.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventClock {
				if _, err := time.Parse(clockFormat, ev.Payload); err != nil {
					t.Fatalf("bad clock payload %q: %v", ev.Payload, err)
				}
				return
			}
		case <-deadline:
			t.Fatal("no clock event within 2s")
		}
	}
}
