package radio

import (
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
)

const KindSlice = "slice"

type sliceToken string

const (
	sliceInUse        sliceToken = "in_use"
	sliceFrequency    sliceToken = "RF_frequency"
	sliceMode         sliceToken = "mode"
	slicePan          sliceToken = "pan"
	sliceRxAnt        sliceToken = "rxant"
	sliceTxAnt        sliceToken = "txant"
	sliceFilterLow    sliceToken = "filter_lo"
	sliceFilterHigh   sliceToken = "filter_hi"
	sliceAudioGain    sliceToken = "audio_gain"
	sliceAudioMute    sliceToken = "audio_mute"
	sliceDax          sliceToken = "dax"
	sliceActive       sliceToken = "active"
	sliceTx           sliceToken = "tx"
	sliceIndexLetter  sliceToken = "index_letter"
	sliceClientHandle sliceToken = "client_handle"
)

// Slice is a receiver tuned within a panadapter.
type Slice struct {
	registry.Base

	frequency    float64 // MHz
	mode         string
	pan          uint32
	rxAnt        string
	txAnt        string
	filterLow    int
	filterHigh   int
	audioGain    int
	audioMute    bool
	dax          int
	active       bool
	tx           bool
	letter       string
	clientHandle uint32
}

func newSlice(id registry.ID, o *Options) *Slice {
	sl := &Slice{}
	sl.Init(id, KindSlice, o.Bus, o.Metrics)
	return sl
}

func (sl *Slice) ApplyProperties(props []status.Property) {
	s := sl.Store()
	for _, prop := range props {
		var err error
		switch sliceToken(prop.Key) {
		case sliceInUse:
		case sliceFrequency:
			err = setFloat(s, prop, &sl.frequency)
		case sliceMode:
			store.Set(s, prop.Key, &sl.mode, prop.Value)
		case slicePan:
			err = setHex(s, prop, &sl.pan)
		case sliceRxAnt:
			store.Set(s, prop.Key, &sl.rxAnt, prop.Value)
		case sliceTxAnt:
			store.Set(s, prop.Key, &sl.txAnt, prop.Value)
		case sliceFilterLow:
			err = setInt(s, prop, &sl.filterLow)
		case sliceFilterHigh:
			err = setInt(s, prop, &sl.filterHigh)
		case sliceAudioGain:
			err = setInt(s, prop, &sl.audioGain)
		case sliceAudioMute:
			err = setBool(s, prop, &sl.audioMute)
		case sliceDax:
			err = setInt(s, prop, &sl.dax)
		case sliceActive:
			err = setBool(s, prop, &sl.active)
		case sliceTx:
			err = setBool(s, prop, &sl.tx)
		case sliceIndexLetter:
			store.Set(s, prop.Key, &sl.letter, prop.Value)
		case sliceClientHandle:
			err = setHex(s, prop, &sl.clientHandle)
		default:
			sl.Unknown(prop)
		}
		if err != nil {
			sl.Invalid(prop, err)
		}
	}
}

// Ready requires a panadapter, a frequency and a mode.
func (sl *Slice) Ready() bool {
	var ok bool
	sl.Store().Read(func() {
		ok = sl.pan != 0 && sl.frequency != 0 && sl.mode != ""
	})
	return ok
}

func (sl *Slice) Frequency() float64   { return store.Get(sl.Store(), &sl.frequency) }
func (sl *Slice) Mode() string         { return store.Get(sl.Store(), &sl.mode) }
func (sl *Slice) PanadapterID() uint32 { return store.Get(sl.Store(), &sl.pan) }

type SliceInfo struct {
	ID           registry.ID `json:"id"`
	Ready        bool        `json:"ready"`
	Letter       string      `json:"letter,omitempty"`
	Frequency    float64     `json:"frequencyMHz"`
	Mode         string      `json:"mode"`
	Panadapter   registry.ID `json:"panadapter"`
	RxAnt        string      `json:"rxAnt,omitempty"`
	TxAnt        string      `json:"txAnt,omitempty"`
	FilterLow    int         `json:"filterLow"`
	FilterHigh   int         `json:"filterHigh"`
	AudioGain    int         `json:"audioGain"`
	AudioMute    bool        `json:"audioMute"`
	Dax          int         `json:"dax"`
	Active       bool        `json:"active"`
	Tx           bool        `json:"tx"`
	ClientHandle uint32      `json:"clientHandle,omitempty"`
}

func (sl *Slice) Info() SliceInfo {
	info := SliceInfo{ID: sl.ID(), Ready: sl.Initialized()}
	sl.Store().Read(func() {
		info.Letter = sl.letter
		info.Frequency = sl.frequency
		info.Mode = sl.mode
		info.Panadapter = registry.ID(sl.pan)
		info.RxAnt = sl.rxAnt
		info.TxAnt = sl.txAnt
		info.FilterLow = sl.filterLow
		info.FilterHigh = sl.filterHigh
		info.AudioGain = sl.audioGain
		info.AudioMute = sl.audioMute
		info.Dax = sl.dax
		info.Active = sl.active
		info.Tx = sl.tx
		info.ClientHandle = sl.clientHandle
	})
	return info
}
