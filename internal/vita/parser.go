package vita

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	headerTypeShift  = 28
	headerClassIDBit = uint32(1) << 27
	headerTrailerBit = uint32(1) << 26
	headerTSIShift   = 22
	headerTSFShift   = 20
	headerCountShift = 16
	headerSizeMask   = uint32(0xFFFF)

	classOUIMask = uint32(0x00FFFFFF)

	fftHeaderSize          = 12
	fftLegacyHeaderSize    = 16
	waterfallHeaderSize    = 36
	waterfallLegacyHdrSize = 32
	meterPairSize          = 4
	binSize                = 2
)

var (
	ErrShortPacket    = errors.New("vita: datagram shorter than header claims")
	ErrSizeMismatch   = errors.New("vita: packet size inconsistent with header fields")
	ErrShortPayload   = errors.New("vita: payload shorter than payload header claims")
	ErrPacketTooLarge = errors.New("vita: packet exceeds 16-bit word count")
)

// Layout selects between the two payload-header revisions the radio has
// shipped. It is a property of the session, never of a packet.
type Layout uint8

const (
	LayoutCurrent Layout = iota
	LayoutLegacy
)

func (l Layout) String() string {
	if l == LayoutLegacy {
		return "legacy"
	}
	return "current"
}

// LayoutFor returns the payload layout used by a radio reporting the given
// API version. Version 1.x firmware uses the legacy layout; minor versions
// never change it.
func LayoutFor(major, _ int) Layout {
	if major > 0 && major < 2 {
		return LayoutLegacy
	}
	return LayoutCurrent
}

func (h *Header) headerWords() int {
	words := 1
	if h.PacketType.HasStreamID() {
		words++
	}
	if h.HasClassID {
		words += 2
	}
	if h.TSI != TSINone {
		words++
	}
	if h.TSF != TSFNone {
		words += 2
	}
	return words
}

// Decode interprets one datagram. The returned payload aliases buf.
func Decode(buf []byte) (Packet, error) {
	var pkt Packet
	if len(buf) < 4 {
		return pkt, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	word := binary.BigEndian.Uint32(buf[0:4])
	hdr := &pkt.Header
	hdr.PacketType = PacketType(word >> headerTypeShift)
	hdr.HasClassID = word&headerClassIDBit != 0
	hdr.HasTrailer = word&headerTrailerBit != 0
	hdr.TSI = uint8(word>>headerTSIShift) & 0x3
	hdr.TSF = uint8(word>>headerTSFShift) & 0x3
	hdr.PacketCount = uint8(word>>headerCountShift) & 0xF
	hdr.SizeWords = uint16(word & headerSizeMask)

	headerLen := hdr.headerWords() * 4
	trailerLen := 0
	if hdr.HasTrailer {
		trailerLen = 4
	}
	size := int(hdr.SizeWords) * 4
	if size < headerLen+trailerLen {
		return pkt, fmt.Errorf("%w: %d words for %d header bytes", ErrSizeMismatch, hdr.SizeWords, headerLen)
	}
	if len(buf) < size {
		return pkt, fmt.Errorf("%w: have %d bytes, header claims %d", ErrShortPacket, len(buf), size)
	}

	off := 4
	if hdr.PacketType.HasStreamID() {
		hdr.StreamID = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
	}
	if hdr.HasClassID {
		hdr.OUI = binary.BigEndian.Uint32(buf[off:off+4]) & classOUIMask
		hdr.InformationClass = binary.BigEndian.Uint16(buf[off+4 : off+6])
		hdr.ClassCode = binary.BigEndian.Uint16(buf[off+6 : off+8])
		off += 8
	}
	if hdr.TSI != TSINone {
		hdr.IntegerTimestamp = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
	}
	if hdr.TSF != TSFNone {
		hdr.FractionalTimestamp = binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
	}
	pkt.Payload = buf[off : size-trailerLen]
	if hdr.HasTrailer {
		pkt.Trailer = binary.BigEndian.Uint32(buf[size-4 : size])
	}
	return pkt, nil
}

// DecodeFFTHeader splits a panadapter payload into its header and the raw
// big-endian bin bytes.
func DecodeFFTHeader(payload []byte, layout Layout) (FFTHeader, []byte, error) {
	var hdr FFTHeader
	var bins []byte
	switch layout {
	case LayoutLegacy:
		if len(payload) < fftLegacyHeaderSize {
			return hdr, nil, fmt.Errorf("%w: fft legacy header needs %d bytes, have %d", ErrShortPayload, fftLegacyHeaderSize, len(payload))
		}
		hdr.StartBin = binary.BigEndian.Uint32(payload[0:4])
		hdr.NumBins = binary.BigEndian.Uint32(payload[4:8])
		hdr.BinSize = binary.BigEndian.Uint32(payload[8:12])
		hdr.FrameIndex = binary.BigEndian.Uint32(payload[12:16])
		bins = payload[fftLegacyHeaderSize:]
	default:
		if len(payload) < fftHeaderSize {
			return hdr, nil, fmt.Errorf("%w: fft header needs %d bytes, have %d", ErrShortPayload, fftHeaderSize, len(payload))
		}
		hdr.StartBin = uint32(binary.BigEndian.Uint16(payload[0:2]))
		hdr.NumBins = uint32(binary.BigEndian.Uint16(payload[2:4]))
		hdr.BinSize = uint32(binary.BigEndian.Uint16(payload[4:6]))
		hdr.TotalBins = uint32(binary.BigEndian.Uint16(payload[6:8]))
		hdr.FrameIndex = binary.BigEndian.Uint32(payload[8:12])
		bins = payload[fftHeaderSize:]
	}
	if uint64(len(bins)) < uint64(hdr.NumBins)*binSize {
		return hdr, nil, fmt.Errorf("%w: %d fft bins need %d bytes, have %d", ErrShortPayload, hdr.NumBins, hdr.NumBins*binSize, len(bins))
	}
	return hdr, bins[:hdr.NumBins*binSize], nil
}

// DecodeWaterfallHeader splits a waterfall tile payload into its header and
// the raw big-endian bin bytes.
func DecodeWaterfallHeader(payload []byte, layout Layout) (WaterfallHeader, []byte, error) {
	var hdr WaterfallHeader
	need := waterfallHeaderSize
	if layout == LayoutLegacy {
		need = waterfallLegacyHdrSize
	}
	if len(payload) < need {
		return hdr, nil, fmt.Errorf("%w: waterfall header needs %d bytes, have %d", ErrShortPayload, need, len(payload))
	}
	hdr.FirstBinFreq = binary.BigEndian.Uint64(payload[0:8])
	hdr.BinBandwidth = binary.BigEndian.Uint64(payload[8:16])
	hdr.LineDurationMs = binary.BigEndian.Uint32(payload[16:20])
	hdr.Width = binary.BigEndian.Uint16(payload[20:22])
	hdr.Height = binary.BigEndian.Uint16(payload[22:24])
	hdr.Timecode = binary.BigEndian.Uint32(payload[24:28])
	hdr.AutoBlackLevel = binary.BigEndian.Uint32(payload[28:32])
	if layout == LayoutLegacy {
		hdr.TotalBins = hdr.Width
		hdr.FirstBin = 0
	} else {
		hdr.TotalBins = binary.BigEndian.Uint16(payload[32:34])
		hdr.FirstBin = binary.BigEndian.Uint16(payload[34:36])
	}
	bins := payload[need:]
	count := int(hdr.Width) * int(hdr.Height)
	if len(bins) < count*binSize {
		return hdr, nil, fmt.Errorf("%w: %d waterfall bins need %d bytes, have %d", ErrShortPayload, count, count*binSize, len(bins))
	}
	return hdr, bins[:count*binSize], nil
}

// MeterReadings decodes every (number, value) pair of a meter payload into
// dst, which is reset first.
func MeterReadings(payload []byte, dst []MeterReading) ([]MeterReading, error) {
	dst = dst[:0]
	if len(payload)%meterPairSize != 0 {
		return dst, fmt.Errorf("%w: meter payload of %d bytes is not a multiple of %d", ErrShortPayload, len(payload), meterPairSize)
	}
	for off := 0; off+meterPairSize <= len(payload); off += meterPairSize {
		dst = append(dst, MeterReading{
			Number: binary.BigEndian.Uint16(payload[off : off+2]),
			Raw:    int16(binary.BigEndian.Uint16(payload[off+2 : off+4])),
		})
	}
	return dst, nil
}

// Bin returns the i-th big-endian 16-bit bin from raw bin bytes.
func Bin(raw []byte, i int) uint16 {
	return binary.BigEndian.Uint16(raw[i*binSize : i*binSize+binSize])
}

// Word returns the i-th big-endian 32-bit word from raw payload bytes.
func Word(raw []byte, i int) uint32 {
	return binary.BigEndian.Uint32(raw[i*4 : i*4+4])
}

// PutWord stores v as the i-th big-endian 32-bit word of dst.
func PutWord(dst []byte, i int, v uint32) {
	binary.BigEndian.PutUint32(dst[i*4:i*4+4], v)
}

// Float32 returns the i-th big-endian IEEE-754 word of raw.
func Float32(raw []byte, i int) float32 {
	return math.Float32frombits(Word(raw, i))
}

// PutFloat32 stores v as the i-th big-endian IEEE-754 word of dst.
func PutFloat32(dst []byte, i int, v float32) {
	PutWord(dst, i, math.Float32bits(v))
}
