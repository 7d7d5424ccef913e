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

const KindWaterfall = "waterfall"

type waterfallToken string

const (
	wfPanadapter    waterfallToken = "panadapter"
	wfLineDuration  waterfallToken = "line_duration"
	wfBlackLevel    waterfallToken = "black_level"
	wfAutoBlack     waterfallToken = "auto_black"
	wfColorGain     waterfallToken = "color_gain"
	wfGradientIndex waterfallToken = "gradient_index"
	wfXPixels       waterfallToken = "x_pixels"
	wfClientHandle  waterfallToken = "client_handle"
	wfInUse         waterfallToken = "in_use"
)

// WaterfallFrame is one complete waterfall line.
type WaterfallFrame = reassembly.Frame[vita.WaterfallHeader]

type WaterfallHandler func(*WaterfallFrame)

// Waterfall is the history display attached to a panadapter.
type Waterfall struct {
	registry.Base

	panadapter    uint32
	lineDuration  int
	blackLevel    int
	autoBlack     bool
	colorGain     int
	gradientIndex int
	xPixels       int
	clientHandle  uint32

	handler   atomic.Pointer[WaterfallHandler]
	assembler *reassembly.Assembler[vita.WaterfallHeader]
}

func newWaterfall(id registry.ID, o *Options) *Waterfall {
	w := &Waterfall{assembler: reassembly.New[vita.WaterfallHeader]()}
	w.Init(id, KindWaterfall, o.Bus, o.Metrics)
	return w
}

func (w *Waterfall) ApplyProperties(props []status.Property) {
	s := w.Store()
	for _, prop := range props {
		var err error
		switch waterfallToken(prop.Key) {
		case wfPanadapter:
			err = setHex(s, prop, &w.panadapter)
		case wfLineDuration:
			err = setInt(s, prop, &w.lineDuration)
		case wfBlackLevel:
			err = setInt(s, prop, &w.blackLevel)
		case wfAutoBlack:
			err = setBool(s, prop, &w.autoBlack)
		case wfColorGain:
			err = setInt(s, prop, &w.colorGain)
		case wfGradientIndex:
			err = setInt(s, prop, &w.gradientIndex)
		case wfXPixels:
			err = setInt(s, prop, &w.xPixels)
		case wfClientHandle:
			err = setHex(s, prop, &w.clientHandle)
		case wfInUse:
		default:
			w.Unknown(prop)
		}
		if err != nil {
			w.Invalid(prop, err)
		}
	}
}

// Ready requires the owning panadapter to be known.
func (w *Waterfall) Ready() bool {
	return store.Get(w.Store(), &w.panadapter) != 0
}

func (w *Waterfall) PanadapterID() uint32 { return store.Get(w.Store(), &w.panadapter) }
func (w *Waterfall) LineDuration() int    { return store.Get(w.Store(), &w.lineDuration) }

func (w *Waterfall) SetFrameHandler(h WaterfallHandler) {
	if h == nil {
		w.handler.Store(nil)
		return
	}
	w.handler.Store(&h)
}

func (w *Waterfall) AssemblyStats() reassembly.Stats {
	return w.assembler.Stats()
}

// Tiles taller than one line only contribute their first line.
func (w *Waterfall) handleDatagram(pkt vita.Packet, layout vita.Layout) {
	m := w.Metrics()
	hdr, raw, err := vita.DecodeWaterfallHeader(pkt.Payload, layout)
	if err != nil {
		m.Inc(common.Malformed)
		common.Throttled("waterfall:"+w.ID().String(), "waterfall %s: %v", w.ID(), err)
		return
	}
	gaps := w.assembler.Stats().Gaps
	frame, res := w.assembler.Accept(hdr.Timecode, int(hdr.FirstBin), int(hdr.Width), int(hdr.TotalBins), raw, hdr)
	countResult(m, res, gaps, w.assembler.Stats())
	if frame == nil {
		return
	}
	if h := w.handler.Load(); h != nil {
		(*h)(frame)
	}
}

type WaterfallInfo struct {
	ID            registry.ID `json:"id"`
	Ready         bool        `json:"ready"`
	Panadapter    registry.ID `json:"panadapter"`
	LineDuration  int         `json:"lineDurationMs"`
	BlackLevel    int         `json:"blackLevel"`
	AutoBlack     bool        `json:"autoBlack"`
	ColorGain     int         `json:"colorGain"`
	GradientIndex int         `json:"gradientIndex"`
	XPixels       int         `json:"xPixels"`
	ClientHandle  uint32      `json:"clientHandle,omitempty"`
}

func (w *Waterfall) Info() WaterfallInfo {
	info := WaterfallInfo{ID: w.ID(), Ready: w.Initialized()}
	w.Store().Read(func() {
		info.Panadapter = registry.ID(w.panadapter)
		info.LineDuration = w.lineDuration
		info.BlackLevel = w.blackLevel
		info.AutoBlack = w.autoBlack
		info.ColorGain = w.colorGain
		info.GradientIndex = w.gradientIndex
		info.XPixels = w.xPixels
		info.ClientHandle = w.clientHandle
	})
	return info
}
