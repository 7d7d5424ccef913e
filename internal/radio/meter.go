package radio

import (
	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/meter"
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
	"example.com/sdrmodel/internal/vita"
)

const KindMeter = "meter"

type meterToken string

const (
	meterSource      meterToken = "src"
	meterSourceIndex meterToken = "num"
	meterName        meterToken = "nam"
	meterLow         meterToken = "low"
	meterHigh        meterToken = "hi"
	meterDescription meterToken = "desc"
	meterUnit        meterToken = "unit"
	meterFPS         meterToken = "fps"
)

// Meter is one numbered measurement source. Its id is the meter number.
type Meter struct {
	registry.Base

	source      string
	sourceIndex int
	name        string
	low         float64
	high        float64
	description string
	unit        meter.Unit
	fps         int
	value       float64
}

func newMeter(id registry.ID, o *Options) *Meter {
	m := &Meter{}
	m.Init(id, KindMeter, o.Bus, o.Metrics)
	return m
}

func (m *Meter) ApplyProperties(props []status.Property) {
	s := m.Store()
	for _, prop := range props {
		var err error
		switch meterToken(prop.Key) {
		case meterSource:
			store.Set(s, prop.Key, &m.source, prop.Value)
		case meterSourceIndex:
			err = setInt(s, prop, &m.sourceIndex)
		case meterName:
			store.Set(s, prop.Key, &m.name, prop.Value)
		case meterLow:
			err = setFloat(s, prop, &m.low)
		case meterHigh:
			err = setFloat(s, prop, &m.high)
		case meterDescription:
			setText(s, prop, &m.description)
		case meterUnit:
			u, ok := meter.ParseUnit(prop.Value)
			if !ok {
				m.Metrics().Inc(common.UnknownUnits)
				common.Throttled("meter-unit:"+prop.Value, "meter %d: unknown unit %q", m.Number(), prop.Value)
			}
			store.Set(s, prop.Key, &m.unit, u)
		case meterFPS:
			err = setInt(s, prop, &m.fps)
		default:
			m.Unknown(prop)
		}
		if err != nil {
			m.Invalid(prop, err)
		}
	}
}

// Ready requires a name and a unit this client can scale.
func (m *Meter) Ready() bool {
	var ok bool
	m.Store().Read(func() {
		ok = m.name != "" && m.unit != meter.UnitUnknown
	})
	return ok
}

func (m *Meter) Number() uint16   { return uint16(m.ID()) }
func (m *Meter) Name() string     { return store.Get(m.Store(), &m.name) }
func (m *Meter) Source() string   { return store.Get(m.Store(), &m.source) }
func (m *Meter) Unit() meter.Unit { return store.Get(m.Store(), &m.unit) }
func (m *Meter) Value() float64   { return store.Get(m.Store(), &m.value) }

func (m *Meter) Range() (lo, hi float64) {
	m.Store().Read(func() { lo, hi = m.low, m.high })
	return lo, hi
}

// SetRaw scales a reading from the meter stream. A change notification is
// only produced when the scaled value differs from the current one.
func (m *Meter) SetRaw(raw int16, legacy bool) error {
	v, err := meter.Scale(m.Unit(), raw, legacy)
	if err != nil {
		m.Metrics().Inc(common.UnknownUnits)
		common.Throttled("meter-scale:"+m.ID().String(), "meter %d %s: %v", m.Number(), m.Name(), err)
		return err
	}
	store.Set(m.Store(), "value", &m.value, v)
	return nil
}

type MeterInfo struct {
	Number      uint16     `json:"number"`
	Ready       bool       `json:"ready"`
	Source      string     `json:"source"`
	SourceIndex int        `json:"sourceIndex"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Unit        meter.Unit `json:"unit"`
	Low         float64    `json:"low"`
	High        float64    `json:"high"`
	FPS         int        `json:"fps"`
	Value       float64    `json:"value"`
}

func (m *Meter) Info() MeterInfo {
	info := MeterInfo{Number: m.Number(), Ready: m.Initialized()}
	m.Store().Read(func() {
		info.Source = m.source
		info.SourceIndex = m.sourceIndex
		info.Name = m.name
		info.Description = m.description
		info.Unit = m.unit
		info.Low = m.low
		info.High = m.high
		info.FPS = m.fps
		info.Value = m.value
	})
	return info
}

// meterStream feeds the shared meter datagram stream into the demux.
type meterStream struct {
	demux   *meter.Demux
	metrics *common.Metrics
}

func newMeterStream(meters *registry.Collection[*Meter], metrics *common.Metrics) *meterStream {
	return &meterStream{
		demux: meter.NewDemux(func(n uint16) (meter.Target, bool) {
			m, ok := meters.Get(registry.ID(n))
			if !ok {
				return nil, false
			}
			return m, true
		}),
		metrics: metrics,
	}
}

func (s *meterStream) handleDatagram(pkt vita.Packet, layout vita.Layout) {
	st, err := s.demux.Apply(pkt.Payload, layout == vita.LayoutLegacy)
	if err != nil {
		s.metrics.Inc(common.Malformed)
		common.Throttled("meter-stream", "meter datagram: %v", err)
		return
	}
	if st.Duplicates > 0 {
		common.Debugf("meter datagram repeated %d meter numbers", st.Duplicates)
	}
}
