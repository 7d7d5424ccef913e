// Package reassembly accumulates spectrum and waterfall datagrams into
// complete frames.
package reassembly

import (
	"fmt"

	"example.com/sdrmodel/internal/vita"
)

// PoolSize is the number of frame slots an Assembler rotates through. A
// delivered frame stays untouched until PoolSize-1 further frames have
// completed.
const PoolSize = 6

// Result classifies what Accept did with a datagram.
type Result uint8

const (
	ResultPartial Result = iota
	ResultComplete
	ResultStale
	ResultUnsynced
	ResultMalformed
)

func (r Result) String() string {
	switch r {
	case ResultPartial:
		return "partial"
	case ResultComplete:
		return "complete"
	case ResultStale:
		return "stale"
	case ResultUnsynced:
		return "unsynced"
	case ResultMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("result(%d)", uint8(r))
	}
}

// Frame is one reassembled frame. Meta carries whatever the caller attached
// to the first datagram of the frame.
type Frame[M any] struct {
	Index uint32
	Total int
	Bins  []uint16
	Meta  M
}

// Stats counts what an Assembler has seen.
type Stats struct {
	Frames    uint64
	Gaps      uint64
	Stale     uint64
	Unsynced  uint64
	Malformed uint64
}

// Assembler is the per-stream reassembly state. It is not safe for
// concurrent use; route every datagram of a stream through one goroutine.
type Assembler[M any] struct {
	expected     uint32
	haveExpected bool
	synced       bool
	accumulated  int
	pool         [PoolSize]Frame[M]
	slot         int
	stats        Stats
}

func New[M any]() *Assembler[M] {
	return &Assembler[M]{}
}

// Accept adds count big-endian bins from raw at offset start of frame
// frameIndex, which holds total bins. When the datagram completes a frame
// the frame is returned with ResultComplete.
//
// A frame index lower than the one being assembled is stale. A higher one
// means datagrams were lost: the partial frame is abandoned and assembly
// jumps to the new index. If that datagram does not start at bin 0 it is
// dropped too and assembly resumes with the next datagram that does.
func (a *Assembler[M]) Accept(frameIndex uint32, start, count, total int, raw []byte, meta M) (*Frame[M], Result) {
	if total <= 0 || start < 0 || count < 0 || start+count > total || len(raw) < count*2 {
		a.stats.Malformed++
		return nil, ResultMalformed
	}

	if !a.haveExpected {
		a.haveExpected = true
		a.expected = frameIndex
		a.synced = start == 0
	}

	switch {
	case frameIndex < a.expected:
		a.stats.Stale++
		return nil, ResultStale
	case frameIndex > a.expected:
		if a.synced {
			a.stats.Gaps++
		}
		a.expected = frameIndex
		a.accumulated = 0
		a.synced = start == 0
	}

	if !a.synced {
		if start != 0 {
			a.stats.Unsynced++
			return nil, ResultUnsynced
		}
		a.synced = true
		a.accumulated = 0
	}

	f := &a.pool[a.slot]
	if a.accumulated == 0 {
		f.Index = frameIndex
		f.Total = total
		f.Meta = meta
		if cap(f.Bins) < total {
			f.Bins = make([]uint16, total)
		}
		f.Bins = f.Bins[:total]
	} else if total != f.Total || a.accumulated+count > f.Total {
		a.stats.Malformed++
		return nil, ResultMalformed
	}

	for i := 0; i < count; i++ {
		f.Bins[start+i] = vita.Bin(raw, i)
	}
	a.accumulated += count
	if a.accumulated < f.Total {
		return nil, ResultPartial
	}

	a.stats.Frames++
	a.expected++
	a.accumulated = 0
	a.slot = (a.slot + 1) % PoolSize
	return f, ResultComplete
}

// Expected returns the frame index being assembled and whether one has been
// seen yet.
func (a *Assembler[M]) Expected() (uint32, bool) {
	return a.expected, a.haveExpected
}

func (a *Assembler[M]) Stats() Stats {
	return a.stats
}

// Reset forgets the current frame and index but keeps the pool and counters.
func (a *Assembler[M]) Reset() {
	a.haveExpected = false
	a.synced = false
	a.accumulated = 0
}
