// Package capture reads and writes session recordings: the control channel
// lines and stream datagrams of a radio session, in arrival order.
//
// A recording is a sequence of records, each a 16 byte big-endian header
// followed by the payload:
//
//	sync   uint16  0xEB90
//	kind   uint8
//	flags  uint8   reserved, zero
//	length uint32  payload bytes
//	time   int64   unix microseconds
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"example.com/sdrmodel/internal/common"
)

const (
	syncWord            = 0xEB90
	headerSize          = 16
	maxPayload          = 1 << 20
	defaultResyncWindow = 64 * 1024
)

var (
	ErrNoSync   = errors.New("capture: sync word 0xEB90 not found within resync window")
	ErrTooLarge = errors.New("capture: record payload too large")
)

// Kind tags a record.
type Kind uint8

const (
	KindStatus   Kind = 1 // control line received from the radio
	KindDatagram Kind = 2 // stream datagram received from the radio
	KindCommand  Kind = 3 // command line sent to the radio
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindDatagram:
		return "datagram"
	case KindCommand:
		return "command"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindStatus && k <= KindCommand
}

// Record is one captured item. Data is owned by the caller.
type Record struct {
	Kind   Kind
	Time   time.Time
	Data   []byte
	Offset int64
}

// Writer appends records. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	hdr     [headerSize]byte
	records int64
}

func NewWriter(w io.Writer) *Writer {
	cw := &Writer{w: bufio.NewWriterSize(w, 64*1024)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// Create truncates path and returns a Writer over it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewWriter(f), nil
}

func (w *Writer) WriteStatus(t time.Time, line string) error {
	return w.Write(KindStatus, t, []byte(line))
}

func (w *Writer) WriteDatagram(t time.Time, buf []byte) error {
	return w.Write(KindDatagram, t, buf)
}

func (w *Writer) WriteCommand(t time.Time, line string) error {
	return w.Write(KindCommand, t, []byte(line))
}

func (w *Writer) Write(kind Kind, t time.Time, data []byte) error {
	if len(data) > maxPayload {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	binary.BigEndian.PutUint16(w.hdr[0:2], syncWord)
	w.hdr[2] = byte(kind)
	w.hdr[3] = 0
	binary.BigEndian.PutUint32(w.hdr[4:8], uint32(len(data)))
	binary.BigEndian.PutUint64(w.hdr[8:16], uint64(t.UnixMicro()))
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	w.records++
	return nil
}

// Records returns how many records have been written.
func (w *Writer) Records() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

// Close flushes and closes the underlying writer if it is an io.Closer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}

// Reader iterates across a recording, skipping damaged regions by scanning
// for the next sync word.
type Reader struct {
	src          io.ReaderAt
	closer       io.Closer
	size         int64
	offset       int64
	resyncWindow int64
	resyncBuf    []byte
	hdr          [headerSize]byte
	resyncs      int
	metrics      *common.Metrics
}

// NewReader opens the recording at path.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r := NewReaderAt(f, info.Size())
	r.closer = f
	return r, nil
}

// NewReaderAt reads size bytes of recording from src.
func NewReaderAt(src io.ReaderAt, size int64) *Reader {
	return &Reader{src: src, size: size, resyncWindow: defaultResyncWindow}
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// SetMetrics counts damaged records as malformed.
func (r *Reader) SetMetrics(m *common.Metrics) { r.metrics = m }

// Resyncs returns how many times the reader had to search for a sync word.
func (r *Reader) Resyncs() int { return r.resyncs }

// Next returns the next record. It returns io.EOF at the end of the
// recording and io.ErrUnexpectedEOF when it ends inside a record header.
func (r *Reader) Next() (Record, error) {
	for {
		if r.offset >= r.size {
			return Record{}, io.EOF
		}
		if r.offset+headerSize > r.size {
			return Record{}, io.ErrUnexpectedEOF
		}
		if _, err := r.src.ReadAt(r.hdr[:], r.offset); err != nil && !errors.Is(err, io.EOF) {
			return Record{}, err
		}
		if binary.BigEndian.Uint16(r.hdr[0:2]) != syncWord {
			if err := r.resync("sync word"); err != nil {
				return Record{}, err
			}
			continue
		}
		kind := Kind(r.hdr[2])
		length := int64(binary.BigEndian.Uint32(r.hdr[4:8]))
		if !kind.valid() {
			if err := r.resync("record kind"); err != nil {
				return Record{}, err
			}
			continue
		}
		if length > maxPayload || r.offset+headerSize+length > r.size {
			if err := r.resync("record length"); err != nil {
				return Record{}, err
			}
			continue
		}
		rec := Record{
			Kind:   kind,
			Time:   time.UnixMicro(int64(binary.BigEndian.Uint64(r.hdr[8:16]))).UTC(),
			Data:   make([]byte, length),
			Offset: r.offset,
		}
		if length > 0 {
			if _, err := r.src.ReadAt(rec.Data, r.offset+headerSize); err != nil && !errors.Is(err, io.EOF) {
				return Record{}, err
			}
		}
		r.offset += headerSize + length
		return rec, nil
	}
}

func (r *Reader) resync(reason string) error {
	common.Debugf("capture resync at offset %d: %s", r.offset, reason)
	r.resyncs++
	r.metrics.Inc(common.Malformed)
	start := r.offset + 1
	if start >= r.size {
		r.offset = r.size
		return io.EOF
	}
	limit := start + r.resyncWindow
	if limit > r.size {
		limit = r.size
	}
	window := limit - start
	if window < 2 {
		r.offset = limit
		return io.EOF
	}
	if int64(len(r.resyncBuf)) < window {
		r.resyncBuf = make([]byte, window)
	}
	buf := r.resyncBuf[:window]
	n, err := r.src.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	for i := 0; i < n-1; i++ {
		if buf[i] == byte(syncWord>>8) && buf[i+1] == byte(syncWord&0xFF) {
			r.offset = start + int64(i)
			return nil
		}
	}
	r.offset = limit
	if limit >= r.size {
		return io.EOF
	}
	return ErrNoSync
}
