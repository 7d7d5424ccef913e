package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"example.com/sdrmodel/internal/common"
)

type memSink struct {
	lines     []string
	datagrams [][]byte
}

func (s *memSink) OnStatusLine(line string)    { s.lines = append(s.lines, line) }
func (s *memSink) OnStreamDatagram(buf []byte) { s.datagrams = append(s.datagrams, buf) }

func writeSample(t *testing.T, w *Writer, base time.Time) {
	t.Helper()
	steps := []struct {
		kind Kind
		data string
	}{
		{KindStatus, "H12345678"},
		{KindCommand, "C1|sub pan all"},
		{KindDatagram, "\x38\x00\x00\x04"},
		{KindStatus, "S12345678|display pan 0x40000000 center=14.100000"},
	}
	for i, s := range steps {
		if err := w.Write(s.kind, base.Add(time.Duration(i)*time.Millisecond), []byte(s.data)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cap")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	writeSample(t, w, base)
	if w.Records() != 4 {
		t.Fatalf("records = %d", w.Records())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	var got []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != 4 {
		t.Fatalf("read %d records", len(got))
	}
	if got[0].Kind != KindStatus || string(got[0].Data) != "H12345678" || !got[0].Time.Equal(base) {
		t.Fatalf("record 0 = %+v", got[0])
	}
	if got[2].Kind != KindDatagram || !bytes.Equal(got[2].Data, []byte{0x38, 0, 0, 4}) {
		t.Fatalf("record 2 = %+v", got[2])
	}
	if got[3].Offset != int64(3*headerSize+9+14+4) {
		t.Fatalf("record 3 offset = %d", got[3].Offset)
	}
	if r.Resyncs() != 0 {
		t.Fatalf("resyncs = %d", r.Resyncs())
	}
}

func TestResyncSkipsGarbage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	base := time.Unix(1700000000, 0)
	if err := w.WriteStatus(base, "first"); err != nil {
		t.Fatal(err)
	}
	w.Flush()
	buf.Write([]byte{0x00, 0xEB, 0x12, 0x34, 0xFF})
	if err := w.WriteStatus(base, "second"); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	m := common.NewMetrics()
	r := NewReaderAt(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	r.SetMetrics(m)
	var lines []string
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		lines = append(lines, string(rec.Data))
	}
	if len(lines) != 2 || lines[1] != "second" {
		t.Fatalf("lines = %q", lines)
	}
	if r.Resyncs() == 0 || m.Get(common.Malformed) != int64(r.Resyncs()) {
		t.Fatalf("resyncs = %d, malformed = %d", r.Resyncs(), m.Get(common.Malformed))
	}
}

func TestReaderErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteStatus(time.Now(), "ok")
	w.Flush()
	full := buf.Bytes()

	t.Run("truncated header", func(t *testing.T) {
		data := append(append([]byte{}, full...), 0xEB, 0x90, 0x01)
		r := NewReaderAt(bytes.NewReader(data), int64(len(data)))
		if _, err := r.Next(); err != nil {
			t.Fatalf("first: %v", err)
		}
		if _, err := r.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("no sync in window", func(t *testing.T) {
		data := append(make([]byte, 64), full...)
		r := NewReaderAt(bytes.NewReader(data), int64(len(data)))
		r.resyncWindow = 16
		if _, err := r.Next(); !errors.Is(err, ErrNoSync) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("oversized payload", func(t *testing.T) {
		if err := NewWriter(io.Discard).Write(KindDatagram, time.Now(), make([]byte, maxPayload+1)); !errors.Is(err, ErrTooLarge) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestReplayDeliversInOrder(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	writeSample(t, w, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	w.Flush()

	sink := &memSink{}
	r := NewReaderAt(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	st, err := Replay(context.Background(), r, sink, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if st.Status != 2 || st.Datagrams != 1 || st.Commands != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.Span != 3*time.Millisecond {
		t.Fatalf("span = %v", st.Span)
	}
	if len(sink.lines) != 2 || sink.lines[0] != "H12345678" {
		t.Fatalf("lines = %q", sink.lines)
	}
	if len(sink.datagrams) != 1 {
		t.Fatalf("datagrams = %d", len(sink.datagrams))
	}
}

func TestReplayHonorsContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	base := time.Now()
	w.WriteStatus(base, "a")
	w.WriteStatus(base.Add(time.Hour), "b")
	w.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sink := &memSink{}
	r := NewReaderAt(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	_, err := Replay(ctx, r, sink, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if len(sink.lines) != 1 {
		t.Fatalf("lines = %q", sink.lines)
	}
}
