package radio

import (
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
)

const KindXvtr = "xvtr"

type xvtrToken string

const (
	xvtrName      xvtrToken = "name"
	xvtrRFFreq    xvtrToken = "rf_freq"
	xvtrIFFreq    xvtrToken = "if_freq"
	xvtrLOError   xvtrToken = "lo_error"
	xvtrRxGain    xvtrToken = "rx_gain"
	xvtrMaxPower  xvtrToken = "max_power"
	xvtrRxOnly    xvtrToken = "rx_only"
	xvtrOrder     xvtrToken = "order"
	xvtrIsValid   xvtrToken = "is_valid"
	xvtrPreferred xvtrToken = "preferred"
	xvtrTwoMeter  xvtrToken = "two_meter_int"
	xvtrInUse     xvtrToken = "in_use"
)

// Xvtr is a transverter definition.
type Xvtr struct {
	registry.Base

	name      string
	rfFreq    float64
	ifFreq    float64
	loError   float64
	rxGain    float64
	maxPower  float64
	rxOnly    bool
	order     int
	isValid   bool
	preferred bool
	twoMeter  bool
}

func newXvtr(id registry.ID, o *Options) *Xvtr {
	x := &Xvtr{}
	x.Init(id, KindXvtr, o.Bus, o.Metrics)
	return x
}

func (x *Xvtr) ApplyProperties(props []status.Property) {
	s := x.Store()
	for _, prop := range props {
		var err error
		switch xvtrToken(prop.Key) {
		case xvtrName:
			setText(s, prop, &x.name)
		case xvtrRFFreq:
			err = setFloat(s, prop, &x.rfFreq)
		case xvtrIFFreq:
			err = setFloat(s, prop, &x.ifFreq)
		case xvtrLOError:
			err = setFloat(s, prop, &x.loError)
		case xvtrRxGain:
			err = setFloat(s, prop, &x.rxGain)
		case xvtrMaxPower:
			err = setFloat(s, prop, &x.maxPower)
		case xvtrRxOnly:
			err = setBool(s, prop, &x.rxOnly)
		case xvtrOrder:
			err = setInt(s, prop, &x.order)
		case xvtrIsValid:
			err = setBool(s, prop, &x.isValid)
		case xvtrPreferred:
			err = setBool(s, prop, &x.preferred)
		case xvtrTwoMeter:
			err = setBool(s, prop, &x.twoMeter)
		case xvtrInUse:
		default:
			x.Unknown(prop)
		}
		if err != nil {
			x.Invalid(prop, err)
		}
	}
}

func (x *Xvtr) Ready() bool {
	return store.Get(x.Store(), &x.name) != ""
}

func (x *Xvtr) Name() string { return store.Get(x.Store(), &x.name) }

type XvtrInfo struct {
	ID        registry.ID `json:"id"`
	Ready     bool        `json:"ready"`
	Name      string      `json:"name"`
	RFFreq    float64     `json:"rfFreqMHz"`
	IFFreq    float64     `json:"ifFreqMHz"`
	LOError   float64     `json:"loError"`
	RxGain    float64     `json:"rxGain"`
	MaxPower  float64     `json:"maxPower"`
	RxOnly    bool        `json:"rxOnly"`
	Order     int         `json:"order"`
	IsValid   bool        `json:"isValid"`
	Preferred bool        `json:"preferred"`
	TwoMeter  bool        `json:"twoMeterInt"`
}

func (x *Xvtr) Info() XvtrInfo {
	info := XvtrInfo{ID: x.ID(), Ready: x.Initialized()}
	x.Store().Read(func() {
		info.Name = x.name
		info.RFFreq = x.rfFreq
		info.IFFreq = x.ifFreq
		info.LOError = x.loError
		info.RxGain = x.rxGain
		info.MaxPower = x.maxPower
		info.RxOnly = x.rxOnly
		info.Order = x.order
		info.IsValid = x.isValid
		info.Preferred = x.preferred
		info.TwoMeter = x.twoMeter
	})
	return info
}
