package radio

import (
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
)

const KindAmplifier = "amplifier"

type ampToken string

const (
	ampIP        ampToken = "ip"
	ampPort      ampToken = "port"
	ampModel     ampToken = "model"
	ampSerialNum ampToken = "serial_num"
	ampState     ampToken = "state"
	ampAnt       ampToken = "ant"
	ampHandle    ampToken = "handle"
)

// Amplifier is an external power amplifier known to the radio.
type Amplifier struct {
	registry.Base

	ip        string
	port      int
	model     string
	serialNum string
	state     string
	ant       string
	handle    uint32
}

func newAmplifier(id registry.ID, o *Options) *Amplifier {
	a := &Amplifier{}
	a.Init(id, KindAmplifier, o.Bus, o.Metrics)
	return a
}

func (a *Amplifier) ApplyProperties(props []status.Property) {
	s := a.Store()
	for _, prop := range props {
		var err error
		switch ampToken(prop.Key) {
		case ampIP:
			store.Set(s, prop.Key, &a.ip, prop.Value)
		case ampPort:
			err = setInt(s, prop, &a.port)
		case ampModel:
			setText(s, prop, &a.model)
		case ampSerialNum:
			store.Set(s, prop.Key, &a.serialNum, prop.Value)
		case ampState:
			store.Set(s, prop.Key, &a.state, prop.Value)
		case ampAnt:
			store.Set(s, prop.Key, &a.ant, prop.Value)
		case ampHandle:
			err = setHex(s, prop, &a.handle)
		default:
			a.Unknown(prop)
		}
		if err != nil {
			a.Invalid(prop, err)
		}
	}
}

// Ready requires an address and port.
func (a *Amplifier) Ready() bool {
	var ok bool
	a.Store().Read(func() { ok = a.ip != "" && a.port != 0 })
	return ok
}

func (a *Amplifier) IP() string    { return store.Get(a.Store(), &a.ip) }
func (a *Amplifier) Port() int     { return store.Get(a.Store(), &a.port) }
func (a *Amplifier) State() string { return store.Get(a.Store(), &a.state) }

type AmplifierInfo struct {
	ID        registry.ID `json:"id"`
	Ready     bool        `json:"ready"`
	IP        string      `json:"ip"`
	Port      int         `json:"port"`
	Model     string      `json:"model,omitempty"`
	SerialNum string      `json:"serialNum,omitempty"`
	State     string      `json:"state,omitempty"`
	Ant       string      `json:"ant,omitempty"`
}

func (a *Amplifier) Info() AmplifierInfo {
	info := AmplifierInfo{ID: a.ID(), Ready: a.Initialized()}
	a.Store().Read(func() {
		info.IP = a.ip
		info.Port = a.port
		info.Model = a.model
		info.SerialNum = a.serialNum
		info.State = a.state
		info.Ant = a.ant
	})
	return info
}
