// Package record keeps a Parquet history of meter readings.
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/event"
)

// MeterRow is one recorded meter value.
type MeterRow struct {
	Time   int64   `parquet:"ts"` // unix microseconds
	Number int32   `parquet:"number"`
	Name   string  `parquet:"name,dict"`
	Source string  `parquet:"source,dict"`
	Unit   string  `parquet:"unit,dict"`
	Value  float64 `parquet:"value"`
}

// MeterMeta describes a meter at the time a value is recorded.
type MeterMeta struct {
	Name   string
	Source string
	Unit   string
}

// MeterLookup resolves a meter number to its description.
type MeterLookup func(number uint16) (MeterMeta, bool)

// Recorder buffers meter value changes and writes them as row groups.
type Recorder struct {
	mu        sync.Mutex
	file      io.Closer
	writer    *parquet.GenericWriter[MeterRow]
	lookup    MeterLookup
	pending   []MeterRow
	flushRows int
	rows      int64
	closed    bool
}

// NewRecorder writes to w, which is closed by Close. metadata is stored as
// file key/value metadata.
func NewRecorder(w io.WriteCloser, lookup MeterLookup, flushRows int, metadata map[string]string) *Recorder {
	if flushRows <= 0 {
		flushRows = 1024
	}
	opts := []parquet.WriterOption{}
	for k, v := range metadata {
		opts = append(opts, parquet.KeyValueMetadata(k, v))
	}
	return &Recorder{
		file:      w,
		writer:    parquet.NewGenericWriter[MeterRow](w, opts...),
		lookup:    lookup,
		flushRows: flushRows,
	}
}

// Create opens path for writing and returns a recorder over it.
func Create(path string, lookup MeterLookup, flushRows int, metadata map[string]string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewRecorder(f, lookup, flushRows, metadata), nil
}

// Add records ev if it is a meter value change and reports whether it did.
func (r *Recorder) Add(ev event.Event) (bool, error) {
	if ev.Type != event.PropertyChanged || ev.Kind != "meter" || ev.Property != "value" {
		return false, nil
	}
	v, ok := ev.New.(float64)
	if !ok {
		return false, nil
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	row := MeterRow{Time: ts.UnixMicro(), Number: int32(ev.ID), Value: v}
	if r.lookup != nil {
		if meta, ok := r.lookup(uint16(ev.ID)); ok {
			row.Name, row.Source, row.Unit = meta.Name, meta.Source, meta.Unit
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, errors.New("record: recorder closed")
	}
	r.pending = append(r.pending, row)
	if len(r.pending) >= r.flushRows {
		return true, r.flushLocked()
	}
	return true, nil
}

// Run records from sub until ctx is done or sub is closed.
func (r *Recorder) Run(ctx context.Context, sub *event.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if _, err := r.Add(ev); err != nil {
				common.Throttled("record", "meter record: %v", err)
			}
		}
	}
}

// Flush writes pending rows as a row group.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if len(r.pending) == 0 {
		return nil
	}
	n, err := r.writer.Write(r.pending)
	r.rows += int64(n)
	r.pending = r.pending[:0]
	if err != nil {
		return fmt.Errorf("write meter rows: %w", err)
	}
	return r.writer.Flush()
}

// Rows returns the number of rows written so far.
func (r *Recorder) Rows() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Close flushes, writes the file footer and closes the underlying writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.flushLocked(); err != nil {
		r.file.Close()
		return err
	}
	if err := r.writer.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// ReadFile loads every row of a meter history file.
func ReadFile(path string) ([]MeterRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rd := parquet.NewGenericReader[MeterRow](f)
	defer rd.Close()
	rows := make([]MeterRow, rd.NumRows())
	n, err := rd.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows[:n], nil
}
