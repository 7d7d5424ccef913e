package vita

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		hdr     Header
		payload []byte
		trailer uint32
	}{
		{
			name:    "meter stream",
			hdr:     StreamHeader(0x00000700, ClassMeter, 3),
			payload: []byte{0x00, 0x07, 0xFF, 0x80, 0x00, 0x08, 0x01, 0x00},
		},
		{
			name: "no stream id no class",
			hdr: Header{
				PacketType: TypeIFData,
				TSI:        TSINone,
				TSF:        TSFNone,
			},
			payload: []byte{1, 2, 3, 4},
		},
		{
			name: "trailer and utc timestamps",
			hdr: Header{
				PacketType:          TypeExtContext,
				HasClassID:          true,
				HasTrailer:          true,
				TSI:                 TSIUTC,
				TSF:                 TSFRealTime,
				PacketCount:         15,
				StreamID:            0x84000001,
				OUI:                 FlexOUI,
				InformationClass:    0x534C,
				ClassCode:           ClassDiscovery,
				IntegerTimestamp:    1700000000,
				FractionalTimestamp: 0x0102030405060708,
			},
			payload: []byte("name=FLEX-6600"),
			trailer: 0xDEADBEEF,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Encode(tc.hdr, tc.payload, tc.trailer)
			if err != nil {
				t.Fatalf("Encode returned error: %v", err)
			}
			if len(buf)%4 != 0 {
				t.Fatalf("encoded length %d is not word aligned", len(buf))
			}
			pkt, err := Decode(buf)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			want := tc.hdr
			want.SizeWords = uint16(len(buf) / 4)
			if pkt.Header != want {
				t.Fatalf("header = %+v, want %+v", pkt.Header, want)
			}
			if !bytes.HasPrefix(pkt.Payload, tc.payload) {
				t.Fatalf("payload = %x, want prefix %x", pkt.Payload, tc.payload)
			}
			for _, b := range pkt.Payload[len(tc.payload):] {
				if b != 0 {
					t.Fatalf("padding not zero: %x", pkt.Payload)
				}
			}
			if pkt.Trailer != tc.trailer {
				t.Fatalf("trailer = 0x%X, want 0x%X", pkt.Trailer, tc.trailer)
			}
			again, err := Encode(pkt.Header, pkt.Payload, pkt.Trailer)
			if err != nil {
				t.Fatalf("re-Encode returned error: %v", err)
			}
			if !bytes.Equal(again, buf) {
				t.Fatalf("re-encoded bytes differ:\n got %x\nwant %x", again, buf)
			}
		})
	}
}

func TestDecodeHeaderBits(t *testing.T) {
	buf := make([]byte, 28)
	// ext data with stream, C set, TSI other, TSF sample count, count 9, 7 words
	binary.BigEndian.PutUint32(buf[0:4], 0x38D90007)
	binary.BigEndian.PutUint32(buf[4:8], 0x40000000)
	binary.BigEndian.PutUint32(buf[8:12], FlexOUI)
	binary.BigEndian.PutUint16(buf[12:14], 0x534C)
	binary.BigEndian.PutUint16(buf[14:16], ClassFFT)
	binary.BigEndian.PutUint32(buf[16:20], 42)
	binary.BigEndian.PutUint64(buf[20:28], 7)

	pkt, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	h := pkt.Header
	if h.PacketType != TypeExtDataWithStream {
		t.Fatalf("PacketType = %d, want %d", h.PacketType, TypeExtDataWithStream)
	}
	if !h.HasClassID || h.HasTrailer {
		t.Fatalf("C/T = %v/%v, want true/false", h.HasClassID, h.HasTrailer)
	}
	if h.TSI != TSIOther || h.TSF != TSFSampleCount {
		t.Fatalf("TSI/TSF = %d/%d", h.TSI, h.TSF)
	}
	if h.PacketCount != 9 {
		t.Fatalf("PacketCount = %d, want 9", h.PacketCount)
	}
	if h.StreamID != 0x40000000 || h.OUI != FlexOUI || h.ClassCode != ClassFFT {
		t.Fatalf("stream/oui/class = 0x%X/0x%X/0x%X", h.StreamID, h.OUI, h.ClassCode)
	}
	if h.IntegerTimestamp != 42 || h.FractionalTimestamp != 7 {
		t.Fatalf("timestamps = %d/%d", h.IntegerTimestamp, h.FractionalTimestamp)
	}
	if len(pkt.Payload) != 0 {
		t.Fatalf("payload length = %d, want 0", len(pkt.Payload))
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		wantErr error
	}{
		{name: "empty", buf: nil, wantErr: ErrShortPacket},
		{name: "three bytes", buf: []byte{0x18, 0x00, 0x00}, wantErr: ErrShortPacket},
		{name: "size smaller than header", buf: []byte{0x18, 0x00, 0x00, 0x01, 0, 0, 0, 0}, wantErr: ErrSizeMismatch},
		{name: "size beyond buffer", buf: []byte{0x10, 0x00, 0x00, 0x04, 0, 0, 0, 0}, wantErr: ErrShortPacket},
		{name: "trailer without room", buf: []byte{0x04, 0x00, 0x00, 0x01}, wantErr: ErrSizeMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.buf)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(StreamHeader(1, ClassDAXAudio, 0), make([]byte, 0x10000*4), 0)
	if !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestFFTPayloadLayouts(t *testing.T) {
	bins := []uint16{10, 20, 30, 0xFFFF}
	for _, layout := range []Layout{LayoutCurrent, LayoutLegacy} {
		t.Run(layout.String(), func(t *testing.T) {
			in := FFTHeader{StartBin: 4, TotalBins: 8, FrameIndex: 77}
			payload := EncodeFFTPayload(in, bins, layout)
			hdr, raw, err := DecodeFFTHeader(payload, layout)
			if err != nil {
				t.Fatalf("DecodeFFTHeader returned error: %v", err)
			}
			if hdr.StartBin != 4 || hdr.NumBins != 4 || hdr.BinSize != 2 || hdr.FrameIndex != 77 {
				t.Fatalf("header = %+v", hdr)
			}
			wantTotal := uint32(8)
			if layout == LayoutLegacy {
				wantTotal = 0
			}
			if hdr.TotalBins != wantTotal {
				t.Fatalf("TotalBins = %d, want %d", hdr.TotalBins, wantTotal)
			}
			for i, b := range bins {
				if got := Bin(raw, i); got != b {
					t.Fatalf("bin %d = %d, want %d", i, got, b)
				}
			}
		})
	}
}

func TestFFTPayloadShort(t *testing.T) {
	payload := EncodeFFTPayload(FFTHeader{TotalBins: 4}, []uint16{1, 2, 3, 4}, LayoutCurrent)
	if _, _, err := DecodeFFTHeader(payload[:len(payload)-1], LayoutCurrent); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
	if _, _, err := DecodeFFTHeader(payload[:8], LayoutCurrent); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload for truncated header, got %v", err)
	}
}

func TestWaterfallPayloadLayouts(t *testing.T) {
	bins := []uint16{100, 200, 300}
	in := WaterfallHeader{
		FirstBinFreq:   uint64(14_000_000) << 20,
		BinBandwidth:   uint64(100) << 20,
		LineDurationMs: 100,
		Timecode:       1234,
		AutoBlackLevel: 5,
		TotalBins:      6,
		FirstBin:       3,
	}
	for _, layout := range []Layout{LayoutCurrent, LayoutLegacy} {
		t.Run(layout.String(), func(t *testing.T) {
			payload := EncodeWaterfallPayload(in, bins, layout)
			hdr, raw, err := DecodeWaterfallHeader(payload, layout)
			if err != nil {
				t.Fatalf("DecodeWaterfallHeader returned error: %v", err)
			}
			if hdr.Width != 3 || hdr.Height != 1 || hdr.Timecode != 1234 {
				t.Fatalf("header = %+v", hdr)
			}
			if hdr.FirstBinHz() != 14_000_000 || hdr.BinBandwidthHz() != 100 {
				t.Fatalf("freq = %v bw = %v", hdr.FirstBinHz(), hdr.BinBandwidthHz())
			}
			wantTotal, wantFirst := uint16(6), uint16(3)
			if layout == LayoutLegacy {
				wantTotal, wantFirst = 3, 0
			}
			if hdr.TotalBins != wantTotal || hdr.FirstBin != wantFirst {
				t.Fatalf("total/first = %d/%d, want %d/%d", hdr.TotalBins, hdr.FirstBin, wantTotal, wantFirst)
			}
			if len(raw) != 6 || Bin(raw, 2) != 300 {
				t.Fatalf("raw bins = %x", raw)
			}
		})
	}
}

func TestMeterReadings(t *testing.T) {
	in := []MeterReading{{Number: 7, Raw: -128}, {Number: 8, Raw: 256}, {Number: 7, Raw: 1}}
	out, err := MeterReadings(EncodeMeterPayload(in), nil)
	if err != nil {
		t.Fatalf("MeterReadings returned error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d readings, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("reading %d = %+v, want %+v", i, out[i], in[i])
		}
	}
	if _, err := MeterReadings([]byte{0, 1, 2}, out); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		major, minor int
		want         Layout
	}{
		{0, 0, LayoutCurrent},
		{1, 4, LayoutLegacy},
		{1, 99, LayoutLegacy},
		{2, 0, LayoutCurrent},
		{3, 3, LayoutCurrent},
	}
	for _, tc := range tests {
		if got := LayoutFor(tc.major, tc.minor); got != tc.want {
			t.Fatalf("LayoutFor(%d,%d) = %s, want %s", tc.major, tc.minor, got, tc.want)
		}
	}
}

func TestWordHelpers(t *testing.T) {
	buf := make([]byte, 12)
	PutFloat32(buf, 0, 1)
	PutFloat32(buf, 1, -2)
	PutWord(buf, 2, 0x0102ABCD)
	if !bytes.Equal(buf[:8], []byte{0x3F, 0x80, 0x00, 0x00, 0xC0, 0x00, 0x00, 0x00}) {
		t.Fatalf("float words = % x", buf[:8])
	}
	if Float32(buf, 0) != 1 || Float32(buf, 1) != -2 {
		t.Fatalf("floats = %v/%v", Float32(buf, 0), Float32(buf, 1))
	}
	if Word(buf, 2) != 0x0102ABCD || binary.BigEndian.Uint32(buf[8:]) != 0x0102ABCD {
		t.Fatalf("word = %08X", Word(buf, 2))
	}
	if Bin(buf, 4) != 0x0102 || Bin(buf, 5) != 0xABCD {
		t.Fatalf("bins = %04X %04X", Bin(buf, 4), Bin(buf, 5))
	}
}
