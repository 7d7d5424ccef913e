package radio

import (
	"sync/atomic"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/reassembly"
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
	"example.com/sdrmodel/internal/vita"
)

const KindPanadapter = "panadapter"

type panToken string

const (
	panCenter       panToken = "center"
	panBandwidth    panToken = "bandwidth"
	panMinDbm       panToken = "min_dbm"
	panMaxDbm       panToken = "max_dbm"
	panFPS          panToken = "fps"
	panAverage      panToken = "average"
	panBand         panToken = "band"
	panXPixels      panToken = "x_pixels"
	panYPixels      panToken = "y_pixels"
	panWaterfall    panToken = "waterfall"
	panRxAnt        panToken = "rxant"
	panRFGain       panToken = "rfgain"
	panDaxIQChannel panToken = "daxiq_channel"
	panWide         panToken = "wide"
	panClientHandle panToken = "client_handle"
	panInUse        panToken = "in_use"
)

// PanadapterFrame is one complete spectrum frame. Bins are valid until the
// handler returns.
type PanadapterFrame = reassembly.Frame[vita.FFTHeader]

// PanadapterHandler receives completed spectrum frames on a stream worker.
type PanadapterHandler func(*PanadapterFrame)

// Panadapter is a spectrum display stream.
type Panadapter struct {
	registry.Base

	center       float64 // MHz
	bandwidth    float64 // MHz
	minDbm       float64
	maxDbm       float64
	fps          int
	average      int
	band         string
	xPixels      int
	yPixels      int
	waterfall    uint32
	rxAnt        string
	rfGain       int
	daxIQChannel int
	wide         bool
	clientHandle uint32

	handler   atomic.Pointer[PanadapterHandler]
	assembler *reassembly.Assembler[vita.FFTHeader]
}

func newPanadapter(id registry.ID, o *Options) *Panadapter {
	p := &Panadapter{assembler: reassembly.New[vita.FFTHeader]()}
	p.Init(id, KindPanadapter, o.Bus, o.Metrics)
	return p
}

func (p *Panadapter) ApplyProperties(props []status.Property) {
	s := p.Store()
	for _, prop := range props {
		var err error
		switch panToken(prop.Key) {
		case panCenter:
			err = setFloat(s, prop, &p.center)
		case panBandwidth:
			err = setFloat(s, prop, &p.bandwidth)
		case panMinDbm:
			err = setFloat(s, prop, &p.minDbm)
		case panMaxDbm:
			err = setFloat(s, prop, &p.maxDbm)
		case panFPS:
			err = setInt(s, prop, &p.fps)
		case panAverage:
			err = setInt(s, prop, &p.average)
		case panBand:
			store.Set(s, prop.Key, &p.band, prop.Value)
		case panXPixels:
			err = setInt(s, prop, &p.xPixels)
		case panYPixels:
			err = setInt(s, prop, &p.yPixels)
		case panWaterfall:
			err = setHex(s, prop, &p.waterfall)
		case panRxAnt:
			store.Set(s, prop.Key, &p.rxAnt, prop.Value)
		case panRFGain:
			err = setInt(s, prop, &p.rfGain)
		case panDaxIQChannel:
			err = setInt(s, prop, &p.daxIQChannel)
		case panWide:
			err = setBool(s, prop, &p.wide)
		case panClientHandle:
			err = setHex(s, prop, &p.clientHandle)
		case panInUse:
		default:
			p.Unknown(prop)
		}
		if err != nil {
			p.Invalid(prop, err)
		}
	}
}

// Ready requires a center, a bandwidth and at least one level bound.
func (p *Panadapter) Ready() bool {
	var ok bool
	p.Store().Read(func() {
		ok = p.center != 0 && p.bandwidth != 0 && (p.minDbm != 0 || p.maxDbm != 0)
	})
	return ok
}

func (p *Panadapter) Center() float64      { return store.Get(p.Store(), &p.center) }
func (p *Panadapter) Bandwidth() float64   { return store.Get(p.Store(), &p.bandwidth) }
func (p *Panadapter) MinDbm() float64      { return store.Get(p.Store(), &p.minDbm) }
func (p *Panadapter) MaxDbm() float64      { return store.Get(p.Store(), &p.maxDbm) }
func (p *Panadapter) XPixels() int         { return store.Get(p.Store(), &p.xPixels) }
func (p *Panadapter) WaterfallID() uint32  { return store.Get(p.Store(), &p.waterfall) }
func (p *Panadapter) ClientHandle() uint32 { return store.Get(p.Store(), &p.clientHandle) }

// SetFrameHandler installs h, replacing any previous handler. A nil h stops
// delivery.
func (p *Panadapter) SetFrameHandler(h PanadapterHandler) {
	if h == nil {
		p.handler.Store(nil)
		return
	}
	p.handler.Store(&h)
}

// AssemblyStats returns the reassembler counters. Call it only from the
// stream worker or after the stream has stopped.
func (p *Panadapter) AssemblyStats() reassembly.Stats {
	return p.assembler.Stats()
}

func (p *Panadapter) handleDatagram(pkt vita.Packet, layout vita.Layout) {
	m := p.Metrics()
	hdr, raw, err := vita.DecodeFFTHeader(pkt.Payload, layout)
	if err != nil {
		m.Inc(common.Malformed)
		common.Throttled("fft:"+p.ID().String(), "panadapter %s: %v", p.ID(), err)
		return
	}
	total := int(hdr.TotalBins)
	if layout == vita.LayoutLegacy {
		total = p.XPixels()
		if total == 0 {
			total = int(hdr.NumBins)
		}
	}
	gaps := p.assembler.Stats().Gaps
	frame, res := p.assembler.Accept(hdr.FrameIndex, int(hdr.StartBin), int(hdr.NumBins), total, raw, hdr)
	countResult(m, res, gaps, p.assembler.Stats())
	if frame == nil {
		return
	}
	if h := p.handler.Load(); h != nil {
		(*h)(frame)
	}
}

// PanadapterInfo is the serialisable state of a Panadapter.
type PanadapterInfo struct {
	ID           registry.ID `json:"id"`
	Ready        bool        `json:"ready"`
	Center       float64     `json:"centerMHz"`
	Bandwidth    float64     `json:"bandwidthMHz"`
	MinDbm       float64     `json:"minDbm"`
	MaxDbm       float64     `json:"maxDbm"`
	FPS          int         `json:"fps"`
	Average      int         `json:"average"`
	Band         string      `json:"band,omitempty"`
	XPixels      int         `json:"xPixels"`
	YPixels      int         `json:"yPixels"`
	Waterfall    registry.ID `json:"waterfall,omitempty"`
	RxAnt        string      `json:"rxAnt,omitempty"`
	RFGain       int         `json:"rfGain"`
	DaxIQChannel int         `json:"daxIqChannel"`
	Wide         bool        `json:"wide"`
	ClientHandle uint32      `json:"clientHandle,omitempty"`
}

func (p *Panadapter) Info() PanadapterInfo {
	info := PanadapterInfo{ID: p.ID(), Ready: p.Initialized()}
	p.Store().Read(func() {
		info.Center = p.center
		info.Bandwidth = p.bandwidth
		info.MinDbm = p.minDbm
		info.MaxDbm = p.maxDbm
		info.FPS = p.fps
		info.Average = p.average
		info.Band = p.band
		info.XPixels = p.xPixels
		info.YPixels = p.yPixels
		info.Waterfall = registry.ID(p.waterfall)
		info.RxAnt = p.rxAnt
		info.RFGain = p.rfGain
		info.DaxIQChannel = p.daxIQChannel
		info.Wide = p.wide
		info.ClientHandle = p.clientHandle
	})
	return info
}
