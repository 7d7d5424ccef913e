package vita

// Header is the decoded VITA-49 packet prologue.
type Header struct {
	PacketType  PacketType
	HasClassID  bool
	HasTrailer  bool
	TSI         uint8
	TSF         uint8
	PacketCount uint8 // 4 bits, modulo 16
	SizeWords   uint16

	StreamID uint32

	OUI              uint32
	InformationClass uint16
	ClassCode        uint16

	IntegerTimestamp    uint32
	FractionalTimestamp uint64
}

// Packet is a decoded datagram. Payload aliases the buffer handed to Decode.
type Packet struct {
	Header  Header
	Payload []byte
	Trailer uint32
}

// PacketType is the 4-bit VITA packet type field.
type PacketType uint8

const (
	TypeIFData            PacketType = 0x0
	TypeIFDataWithStream  PacketType = 0x1
	TypeExtData           PacketType = 0x2
	TypeExtDataWithStream PacketType = 0x3
	TypeIFContext         PacketType = 0x4
	TypeExtContext        PacketType = 0x5
)

// HasStreamID reports whether packets of this type carry a stream id word.
func (t PacketType) HasStreamID() bool {
	switch t {
	case TypeIFData, TypeExtData:
		return false
	default:
		return true
	}
}

// Timestamp integer (TSI) and fractional (TSF) kinds.
const (
	TSINone  uint8 = 0
	TSIUTC   uint8 = 1
	TSIGPS   uint8 = 2
	TSIOther uint8 = 3

	TSFNone        uint8 = 0
	TSFSampleCount uint8 = 1
	TSFRealTime    uint8 = 2
	TSFFreeRunning uint8 = 3
)

// FlexOUI is the organizationally unique identifier used by the radio.
const FlexOUI uint32 = 0x001C2D

// Packet class codes.
const (
	ClassMeter     uint16 = 0x8002
	ClassFFT       uint16 = 0x8003
	ClassWaterfall uint16 = 0x8004
	ClassOpus      uint16 = 0x8005
	ClassDAXAudio  uint16 = 0x03E3
	ClassDAXIQ24k  uint16 = 0x02E3
	ClassDAXIQ48k  uint16 = 0x02E4
	ClassDAXIQ96k  uint16 = 0x02E5
	ClassDAXIQ192k uint16 = 0x02E6
	ClassDiscovery uint16 = 0xFFFF
)

// IsIQ reports whether the class code identifies a DAX IQ stream.
func IsIQ(class uint16) bool {
	return class >= ClassDAXIQ24k && class <= ClassDAXIQ192k
}

// FFTHeader describes one panadapter datagram.
type FFTHeader struct {
	StartBin   uint32
	NumBins    uint32
	BinSize    uint32
	TotalBins  uint32 // zero in the legacy layout
	FrameIndex uint32
}

// WaterfallHeader describes one waterfall tile datagram.
type WaterfallHeader struct {
	FirstBinFreq   uint64 // Hz, 44.20 fixed point
	BinBandwidth   uint64
	LineDurationMs uint32
	Width          uint16
	Height         uint16
	Timecode       uint32
	AutoBlackLevel uint32
	TotalBins      uint16
	FirstBin       uint16
}

// FirstBinHz converts the fixed point first bin frequency to Hz.
func (h WaterfallHeader) FirstBinHz() float64 {
	return float64(h.FirstBinFreq) / float64(1<<20)
}

// BinBandwidthHz converts the fixed point bin bandwidth to Hz.
func (h WaterfallHeader) BinBandwidthHz() float64 {
	return float64(h.BinBandwidth) / float64(1<<20)
}

// MeterReading is one (number, value) pair from a meter datagram.
type MeterReading struct {
	Number uint16
	Raw    int16
}
