package radio

import (
	"context"
	"sync"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/vita"
)

// StreamRouter spreads decoded datagrams over a fixed set of workers. All
// packets of one stream id land on the same worker, so per-stream state is
// only ever touched by one goroutine.
type StreamRouter struct {
	shards  []chan vita.Packet
	handle  func(vita.Packet)
	metrics *common.Metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewStreamRouter returns a router with workers shards of queue slots each.
func NewStreamRouter(workers, queue int, handle func(vita.Packet), metrics *common.Metrics) *StreamRouter {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}
	r := &StreamRouter{handle: handle, metrics: metrics}
	r.shards = make([]chan vita.Packet, workers)
	for i := range r.shards {
		r.shards[i] = make(chan vita.Packet, queue)
	}
	return r
}

// Start launches the workers. They exit when ctx is cancelled or Close is
// called.
func (r *StreamRouter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	for _, ch := range r.shards {
		r.wg.Add(1)
		go r.work(ctx, ch)
	}
}

func (r *StreamRouter) work(ctx context.Context, ch <-chan vita.Packet) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-ch:
			if !ok {
				return
			}
			r.handle(pkt)
		}
	}
}

// Shard returns the worker index for streamID.
func (r *StreamRouter) Shard(streamID uint32) int {
	return int(streamID % uint32(len(r.shards)))
}

// Route queues pkt without blocking. It returns false when the shard queue
// is full or the router is closed; the packet is then dropped and counted.
func (r *StreamRouter) Route(pkt vita.Packet) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.Inc(common.Dropped)
		return false
	}
	select {
	case r.shards[r.Shard(pkt.Header.StreamID)] <- pkt:
		return true
	default:
		r.metrics.Inc(common.Dropped)
		common.Throttled("router:full", "stream worker queue full, dropping datagrams for stream 0x%08X", pkt.Header.StreamID)
		return false
	}
}

// Close stops accepting packets, lets workers drain what is queued and
// waits for them.
func (r *StreamRouter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, ch := range r.shards {
		close(ch)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
