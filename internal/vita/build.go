package vita

import (
	"encoding/binary"
	"fmt"
)

// Encode serialises hdr and payload into a single datagram. The payload is
// zero padded to a word boundary and SizeWords is computed, so the value in
// hdr is ignored. When hdr.HasTrailer is set, trailer is appended.
func Encode(hdr Header, payload []byte, trailer uint32) ([]byte, error) {
	headerLen := hdr.headerWords() * 4
	pad := (4 - len(payload)%4) % 4
	trailerLen := 0
	if hdr.HasTrailer {
		trailerLen = 4
	}
	total := headerLen + len(payload) + pad + trailerLen
	if total/4 > int(headerSizeMask) {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, total)
	}
	buf := make([]byte, total)

	word := uint32(hdr.PacketType&0xF) << headerTypeShift
	if hdr.HasClassID {
		word |= headerClassIDBit
	}
	if hdr.HasTrailer {
		word |= headerTrailerBit
	}
	word |= uint32(hdr.TSI&0x3) << headerTSIShift
	word |= uint32(hdr.TSF&0x3) << headerTSFShift
	word |= uint32(hdr.PacketCount&0xF) << headerCountShift
	word |= uint32(total / 4)
	binary.BigEndian.PutUint32(buf[0:4], word)

	off := 4
	if hdr.PacketType.HasStreamID() {
		binary.BigEndian.PutUint32(buf[off:off+4], hdr.StreamID)
		off += 4
	}
	if hdr.HasClassID {
		binary.BigEndian.PutUint32(buf[off:off+4], hdr.OUI&classOUIMask)
		binary.BigEndian.PutUint16(buf[off+4:off+6], hdr.InformationClass)
		binary.BigEndian.PutUint16(buf[off+6:off+8], hdr.ClassCode)
		off += 8
	}
	if hdr.TSI != TSINone {
		binary.BigEndian.PutUint32(buf[off:off+4], hdr.IntegerTimestamp)
		off += 4
	}
	if hdr.TSF != TSFNone {
		binary.BigEndian.PutUint64(buf[off:off+8], hdr.FractionalTimestamp)
		off += 8
	}
	copy(buf[off:], payload)
	if hdr.HasTrailer {
		binary.BigEndian.PutUint32(buf[total-4:total], trailer)
	}
	return buf, nil
}

// StreamHeader returns the header the radio uses for data packets of the
// given class on streamID.
func StreamHeader(streamID uint32, class uint16, count uint8) Header {
	pt := TypeIFDataWithStream
	if class == ClassMeter || class == ClassFFT || class == ClassWaterfall || class == ClassOpus {
		pt = TypeExtDataWithStream
	}
	return Header{
		PacketType:  pt,
		HasClassID:  true,
		TSI:         TSIOther,
		TSF:         TSFSampleCount,
		PacketCount: count & 0xF,
		StreamID:    streamID,
		OUI:         FlexOUI,
		ClassCode:   class,
	}
}

// EncodeFFTPayload builds a panadapter payload in the requested layout.
func EncodeFFTPayload(hdr FFTHeader, bins []uint16, layout Layout) []byte {
	var out []byte
	if layout == LayoutLegacy {
		out = make([]byte, fftLegacyHeaderSize+len(bins)*binSize)
		binary.BigEndian.PutUint32(out[0:4], hdr.StartBin)
		binary.BigEndian.PutUint32(out[4:8], uint32(len(bins)))
		binary.BigEndian.PutUint32(out[8:12], binSize)
		binary.BigEndian.PutUint32(out[12:16], hdr.FrameIndex)
	} else {
		out = make([]byte, fftHeaderSize+len(bins)*binSize)
		binary.BigEndian.PutUint16(out[0:2], uint16(hdr.StartBin))
		binary.BigEndian.PutUint16(out[2:4], uint16(len(bins)))
		binary.BigEndian.PutUint16(out[4:6], binSize)
		binary.BigEndian.PutUint16(out[6:8], uint16(hdr.TotalBins))
		binary.BigEndian.PutUint32(out[8:12], hdr.FrameIndex)
	}
	putBins(out[len(out)-len(bins)*binSize:], bins)
	return out
}

// EncodeWaterfallPayload builds a waterfall tile payload in the requested
// layout. Width is taken from len(bins) when Height is one.
func EncodeWaterfallPayload(hdr WaterfallHeader, bins []uint16, layout Layout) []byte {
	need := waterfallHeaderSize
	if layout == LayoutLegacy {
		need = waterfallLegacyHdrSize
	}
	if hdr.Height == 0 {
		hdr.Height = 1
	}
	if hdr.Height == 1 {
		hdr.Width = uint16(len(bins))
	}
	out := make([]byte, need+len(bins)*binSize)
	binary.BigEndian.PutUint64(out[0:8], hdr.FirstBinFreq)
	binary.BigEndian.PutUint64(out[8:16], hdr.BinBandwidth)
	binary.BigEndian.PutUint32(out[16:20], hdr.LineDurationMs)
	binary.BigEndian.PutUint16(out[20:22], hdr.Width)
	binary.BigEndian.PutUint16(out[22:24], hdr.Height)
	binary.BigEndian.PutUint32(out[24:28], hdr.Timecode)
	binary.BigEndian.PutUint32(out[28:32], hdr.AutoBlackLevel)
	if layout != LayoutLegacy {
		binary.BigEndian.PutUint16(out[32:34], hdr.TotalBins)
		binary.BigEndian.PutUint16(out[34:36], hdr.FirstBin)
	}
	putBins(out[need:], bins)
	return out
}

// EncodeMeterPayload builds a meter payload from readings.
func EncodeMeterPayload(readings []MeterReading) []byte {
	out := make([]byte, len(readings)*meterPairSize)
	for i, r := range readings {
		binary.BigEndian.PutUint16(out[i*meterPairSize:], r.Number)
		binary.BigEndian.PutUint16(out[i*meterPairSize+2:], uint16(r.Raw))
	}
	return out
}

func putBins(dst []byte, bins []uint16) {
	for i, b := range bins {
		binary.BigEndian.PutUint16(dst[i*binSize:], b)
	}
}
