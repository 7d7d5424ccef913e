package capture

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sink receives replayed records.
type Sink interface {
	OnStatusLine(line string)
	OnStreamDatagram(buf []byte)
}

// ReplayStats summarizes a replay.
type ReplayStats struct {
	Status    int
	Datagrams int
	Commands  int
	Resyncs   int
	Span      time.Duration
}

// Replay feeds every record from r into sink. With speed > 0 the original
// inter-record timing is reproduced, scaled by speed; otherwise records are
// delivered as fast as possible. Command records are counted but not
// delivered.
func Replay(ctx context.Context, r *Reader, sink Sink, speed float64) (ReplayStats, error) {
	var (
		st          ReplayStats
		first, prev time.Time
		wallStart   time.Time
	)
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			st.Resyncs = r.Resyncs()
			return st, nil
		}
		if err != nil {
			st.Resyncs = r.Resyncs()
			return st, err
		}
		if first.IsZero() {
			first, wallStart = rec.Time, time.Now()
		}
		if rec.Time.After(prev) {
			prev = rec.Time
		}
		if speed > 0 {
			due := wallStart.Add(time.Duration(float64(rec.Time.Sub(first)) / speed))
			if wait := time.Until(due); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return st, ctx.Err()
				case <-t.C:
				}
			}
		}
		st.Span = prev.Sub(first)
		switch rec.Kind {
		case KindStatus:
			st.Status++
			sink.OnStatusLine(string(rec.Data))
		case KindDatagram:
			st.Datagrams++
			sink.OnStreamDatagram(rec.Data)
		case KindCommand:
			st.Commands++
		}
	}
}
