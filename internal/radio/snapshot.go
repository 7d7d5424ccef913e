package radio

import (
	"strconv"
	"time"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/registry"
)

// Snapshot is a point in time copy of the whole model.
type Snapshot struct {
	Time         time.Time              `json:"time"`
	ClientHandle string                 `json:"clientHandle"`
	APIVersion   string                 `json:"apiVersion"`
	Layout       string                 `json:"layout"`
	Panadapters  []PanadapterInfo       `json:"panadapters"`
	Waterfalls   []WaterfallInfo        `json:"waterfalls"`
	Meters       []MeterInfo            `json:"meters"`
	Amplifiers   []AmplifierInfo        `json:"amplifiers"`
	Xvtrs        []XvtrInfo             `json:"xvtrs"`
	Slices       []SliceInfo            `json:"slices"`
	Streams      []StreamInfo           `json:"streams"`
	Metrics      common.MetricsSnapshot `json:"metrics"`
}

// Objects returns the snapshot entries for one kind, or false for an
// unknown kind. Stream kinds return only streams of that kind.
func (s *Snapshot) Objects(kind string) (any, bool) {
	switch kind {
	case KindPanadapter:
		return s.Panadapters, true
	case KindWaterfall:
		return s.Waterfalls, true
	case KindMeter:
		return s.Meters, true
	case KindAmplifier:
		return s.Amplifiers, true
	case KindXvtr:
		return s.Xvtrs, true
	case KindSlice:
		return s.Slices, true
	case "stream":
		return s.Streams, true
	case KindDaxRx, KindDaxTx, KindDaxMic, KindDaxIQ, KindRemoteRx, KindRemoteTx:
		out := []StreamInfo{}
		for _, st := range s.Streams {
			if st.Kind == kind {
				out = append(out, st)
			}
		}
		return out, true
	}
	return nil, false
}

// Kinds lists every object kind the model tracks.
func Kinds() []string {
	return []string{
		KindPanadapter, KindWaterfall, KindMeter, KindAmplifier, KindXvtr, KindSlice,
		KindDaxRx, KindDaxTx, KindDaxMic, KindDaxIQ, KindRemoteRx, KindRemoteTx,
	}
}

func (r *Radio) Snapshot() Snapshot {
	major, minor := r.session.APIVersion()
	s := Snapshot{
		Time:         time.Now().UTC(),
		ClientHandle: registry.ID(r.session.ClientHandle()).String(),
		APIVersion:   versionString(major, minor),
		Layout:       r.session.Layout().String(),
		Panadapters:  infos(r.panadapters, (*Panadapter).Info),
		Waterfalls:   infos(r.waterfalls, (*Waterfall).Info),
		Meters:       infos(r.meters, (*Meter).Info),
		Amplifiers:   infos(r.amplifiers, (*Amplifier).Info),
		Xvtrs:        infos(r.xvtrs, (*Xvtr).Info),
		Slices:       infos(r.slices, (*Slice).Info),
		Metrics:      r.metrics.Snapshot(),
	}
	s.Streams = append(s.Streams, infos(r.daxRx, (*DaxRxAudioStream).Info)...)
	s.Streams = append(s.Streams, infos(r.daxTx, (*DaxTxAudioStream).Info)...)
	s.Streams = append(s.Streams, infos(r.daxMic, (*DaxMicAudioStream).Info)...)
	s.Streams = append(s.Streams, infos(r.daxIQ, (*DaxIqStream).Info)...)
	s.Streams = append(s.Streams, infos(r.remoteRx, (*RemoteRxAudioStream).Info)...)
	s.Streams = append(s.Streams, infos(r.remoteTx, (*RemoteTxAudioStream).Info)...)
	if s.Streams == nil {
		s.Streams = []StreamInfo{}
	}
	return s
}

func infos[T registry.Object, I any](c *registry.Collection[T], info func(T) I) []I {
	all := c.All()
	out := make([]I, len(all))
	for i, obj := range all {
		out[i] = info(obj)
	}
	return out
}

func versionString(major, minor int) string {
	if major == 0 && minor == 0 {
		return ""
	}
	return strconv.Itoa(major) + "." + strconv.Itoa(minor)
}
