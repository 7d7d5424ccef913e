package radio

import (
	"sync"
	"sync/atomic"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/sample"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
	"example.com/sdrmodel/internal/vita"
)

// Stream kinds, named after the type= token of their status lines.
const (
	KindDaxRx    = "dax_rx"
	KindDaxTx    = "dax_tx"
	KindDaxMic   = "dax_mic"
	KindDaxIQ    = "dax_iq"
	KindRemoteRx = "remote_audio_rx"
	KindRemoteTx = "remote_audio_tx"
)

type streamToken string

const (
	streamType         streamToken = "type"
	streamClientHandle streamToken = "client_handle"
	streamIP           streamToken = "ip"
	streamDaxChannel   streamToken = "dax_channel"
	streamSlice        streamToken = "slice"
	streamPan          streamToken = "pan"
	streamRate         streamToken = "rate"
	streamActive       streamToken = "active"
	streamTx           streamToken = "tx"
	streamCompression  streamToken = "compression"
)

// streamBase holds what every audio and IQ stream shares.
type streamBase struct {
	registry.Base

	clientHandle uint32
	ip           string
	gain         int

	seq  sample.SeqChecker
	lost atomic.Uint64
}

func (b *streamBase) init(id registry.ID, kind string, o *Options) {
	b.Init(id, kind, o.Bus, o.Metrics)
	b.gain = 50
}

// applyCommon handles tokens shared by all streams and reports whether prop
// was one of them.
func (b *streamBase) applyCommon(prop status.Property) (bool, error) {
	s := b.Store()
	switch streamToken(prop.Key) {
	case streamType:
		return true, nil
	case streamClientHandle:
		return true, setHex(s, prop, &b.clientHandle)
	case streamIP:
		store.Set(s, prop.Key, &b.ip, prop.Value)
		return true, nil
	}
	return false, nil
}

// Ready is true once the stream is known to belong to this client.
func (b *streamBase) Ready() bool {
	return store.Get(b.Store(), &b.clientHandle) != 0
}

func (b *streamBase) ClientHandle() uint32 { return store.Get(b.Store(), &b.clientHandle) }

// Gain returns the 0-100 gain applied to samples.
func (b *streamBase) Gain() int { return store.Get(b.Store(), &b.gain) }

// SetGain sets the 0-100 gain applied to samples. 50 is unity.
func (b *streamBase) SetGain(g int) {
	if g < 0 {
		g = 0
	}
	if g > 100 {
		g = 100
	}
	store.Set(b.Store(), "gain", &b.gain, g)
}

// LostPackets returns how many packet count gaps the stream has seen.
func (b *streamBase) LostPackets() uint64 { return b.lost.Load() }

func (b *streamBase) checkSeq(pkt vita.Packet) {
	if !b.seq.Check(pkt.Header.PacketCount) {
		b.lost.Add(1)
		b.Metrics().Inc(common.LostPackets)
	}
}

func (b *streamBase) wrongClass(pkt vita.Packet) {
	b.Metrics().Inc(common.Malformed)
	common.Throttled("class:"+b.ID().String(), "%s %s: unexpected class code 0x%04X", b.Kind(), b.ID(), pkt.Header.ClassCode)
}

func (b *streamBase) applyAll(props []status.Property, own func(status.Property) (bool, error)) {
	for _, prop := range props {
		handled, err := b.applyCommon(prop)
		if !handled && own != nil {
			handled, err = own(prop)
		}
		if err != nil {
			b.Invalid(prop, err)
			continue
		}
		if !handled {
			b.Unknown(prop)
		}
	}
}

// StreamInfo is the serialisable state common to every stream.
type StreamInfo struct {
	ID           registry.ID `json:"id"`
	Kind         string      `json:"kind"`
	Ready        bool        `json:"ready"`
	ClientHandle uint32      `json:"clientHandle"`
	IP           string      `json:"ip,omitempty"`
	Gain         int         `json:"gain"`
	DaxChannel   int         `json:"daxChannel,omitempty"`
	Slice        int         `json:"slice,omitempty"`
	Panadapter   registry.ID `json:"panadapter,omitempty"`
	Rate         int         `json:"rate,omitempty"`
	Active       bool        `json:"active,omitempty"`
	Transmit     bool        `json:"tx,omitempty"`
	Compression  string      `json:"compression,omitempty"`
	LostPackets  uint64      `json:"lostPackets"`
}

func (b *streamBase) info() StreamInfo {
	info := StreamInfo{ID: b.ID(), Kind: b.Kind(), Ready: b.Initialized(), LostPackets: b.LostPackets()}
	b.Store().Read(func() {
		info.ClientHandle = b.clientHandle
		info.IP = b.ip
		info.Gain = b.gain
	})
	return info
}

// AudioHandler receives decoded audio blocks on a stream worker. The frame
// is reused for the next datagram.
type AudioHandler func(*sample.Frame)

// DaxRxAudioStream carries receive audio for one DAX channel.
type DaxRxAudioStream struct {
	streamBase

	daxChannel int
	slice      int

	handler atomic.Pointer[AudioHandler]
	frame   sample.Frame
}

func newDaxRx(id registry.ID, o *Options) *DaxRxAudioStream {
	st := &DaxRxAudioStream{}
	st.init(id, KindDaxRx, o)
	return st
}

func (st *DaxRxAudioStream) ApplyProperties(props []status.Property) {
	s := st.Store()
	st.applyAll(props, func(p status.Property) (bool, error) {
		switch streamToken(p.Key) {
		case streamDaxChannel:
			return true, setInt(s, p, &st.daxChannel)
		case streamSlice:
			return true, setInt(s, p, &st.slice)
		}
		return false, nil
	})
}

func (st *DaxRxAudioStream) DaxChannel() int { return store.Get(st.Store(), &st.daxChannel) }

func (st *DaxRxAudioStream) SetHandler(h AudioHandler) { storeHandler(&st.handler, h) }

func (st *DaxRxAudioStream) handleDatagram(pkt vita.Packet, _ vita.Layout) {
	if pkt.Header.ClassCode != vita.ClassDAXAudio {
		st.wrongClass(pkt)
		return
	}
	st.checkSeq(pkt)
	deliverAudio(&st.streamBase, &st.handler, &st.frame, pkt)
}

func (st *DaxRxAudioStream) Info() StreamInfo {
	info := st.info()
	st.Store().Read(func() {
		info.DaxChannel = st.daxChannel
		info.Slice = st.slice
	})
	return info
}

// DaxMicAudioStream carries the radio's microphone audio to this client.
type DaxMicAudioStream struct {
	streamBase

	handler atomic.Pointer[AudioHandler]
	frame   sample.Frame
}

func newDaxMic(id registry.ID, o *Options) *DaxMicAudioStream {
	st := &DaxMicAudioStream{}
	st.init(id, KindDaxMic, o)
	return st
}

func (st *DaxMicAudioStream) ApplyProperties(props []status.Property) {
	st.applyAll(props, nil)
}

func (st *DaxMicAudioStream) SetHandler(h AudioHandler) { storeHandler(&st.handler, h) }

func (st *DaxMicAudioStream) handleDatagram(pkt vita.Packet, _ vita.Layout) {
	if pkt.Header.ClassCode != vita.ClassDAXAudio {
		st.wrongClass(pkt)
		return
	}
	st.checkSeq(pkt)
	deliverAudio(&st.streamBase, &st.handler, &st.frame, pkt)
}

func (st *DaxMicAudioStream) Info() StreamInfo { return st.info() }

// IQHandler receives decoded IQ blocks on a stream worker.
type IQHandler func(*sample.IQFrame)

// DaxIqStream carries raw IQ for a panadapter.
type DaxIqStream struct {
	streamBase

	daxChannel int
	pan        uint32
	rate       int
	active     bool

	handler atomic.Pointer[IQHandler]
	frame   sample.IQFrame
}

func newDaxIQ(id registry.ID, o *Options) *DaxIqStream {
	st := &DaxIqStream{}
	st.init(id, KindDaxIQ, o)
	return st
}

func (st *DaxIqStream) ApplyProperties(props []status.Property) {
	s := st.Store()
	st.applyAll(props, func(p status.Property) (bool, error) {
		switch streamToken(p.Key) {
		case streamDaxChannel:
			return true, setInt(s, p, &st.daxChannel)
		case streamPan:
			return true, setHex(s, p, &st.pan)
		case streamRate:
			return true, setInt(s, p, &st.rate)
		case streamActive:
			return true, setBool(s, p, &st.active)
		}
		return false, nil
	})
}

func (st *DaxIqStream) Rate() int { return store.Get(st.Store(), &st.rate) }

func (st *DaxIqStream) SetHandler(h IQHandler) {
	if h == nil {
		st.handler.Store(nil)
		return
	}
	st.handler.Store(&h)
}

var iqRates = map[uint16]int{
	vita.ClassDAXIQ24k:  24000,
	vita.ClassDAXIQ48k:  48000,
	vita.ClassDAXIQ96k:  96000,
	vita.ClassDAXIQ192k: 192000,
}

func (st *DaxIqStream) handleDatagram(pkt vita.Packet, _ vita.Layout) {
	if !vita.IsIQ(pkt.Header.ClassCode) {
		st.wrongClass(pkt)
		return
	}
	st.checkSeq(pkt)
	h := st.handler.Load()
	if h == nil {
		return
	}
	sample.DecodeFloatPairs(pkt.Payload, sample.GainScalar(st.Gain()), &st.frame.Frame)
	st.frame.SampleRate = iqRates[pkt.Header.ClassCode]
	st.Metrics().Inc(common.Frames)
	(*h)(&st.frame)
}

func (st *DaxIqStream) Info() StreamInfo {
	info := st.info()
	st.Store().Read(func() {
		info.DaxChannel = st.daxChannel
		info.Panadapter = registry.ID(st.pan)
		info.Rate = st.rate
		info.Active = st.active
	})
	return info
}

// OpusHandler receives compressed audio on a stream worker.
type OpusHandler func(*sample.OpusFrame)

// RemoteRxAudioStream carries compressed receive audio for remote
// operation.
type RemoteRxAudioStream struct {
	streamBase

	compression string

	handler atomic.Pointer[OpusHandler]
	frame   sample.OpusFrame
}

func newRemoteRx(id registry.ID, o *Options) *RemoteRxAudioStream {
	st := &RemoteRxAudioStream{}
	st.init(id, KindRemoteRx, o)
	return st
}

func (st *RemoteRxAudioStream) ApplyProperties(props []status.Property) {
	s := st.Store()
	st.applyAll(props, func(p status.Property) (bool, error) {
		if streamToken(p.Key) == streamCompression {
			store.Set(s, p.Key, &st.compression, p.Value)
			return true, nil
		}
		return false, nil
	})
}

func (st *RemoteRxAudioStream) Compression() string { return store.Get(st.Store(), &st.compression) }

func (st *RemoteRxAudioStream) SetHandler(h OpusHandler) {
	if h == nil {
		st.handler.Store(nil)
		return
	}
	st.handler.Store(&h)
}

func (st *RemoteRxAudioStream) handleDatagram(pkt vita.Packet, _ vita.Layout) {
	if pkt.Header.ClassCode != vita.ClassOpus {
		st.wrongClass(pkt)
		return
	}
	st.checkSeq(pkt)
	h := st.handler.Load()
	if h == nil {
		return
	}
	sample.DecodeOpus(pkt.Payload, &st.frame)
	st.Metrics().Inc(common.Frames)
	(*h)(&st.frame)
}

func (st *RemoteRxAudioStream) Info() StreamInfo {
	info := st.info()
	info.Compression = st.Compression()
	return info
}

// txStream is the outbound half shared by transmit streams.
type txStream struct {
	mu      sync.Mutex
	counter sample.Counter
	sender  Sender
}

func (t *txStream) send(streamID registry.ID, class uint16, payload []byte, m *common.Metrics) bool {
	if t.sender == nil {
		return false
	}
	t.mu.Lock()
	hdr := vita.StreamHeader(uint32(streamID), class, t.counter.Next())
	t.mu.Unlock()
	buf, err := vita.Encode(hdr, payload, 0)
	if err != nil {
		m.Inc(common.Malformed)
		common.Throttled("tx:"+streamID.String(), "stream %s: %v", streamID, err)
		return false
	}
	if err := t.sender.SendDatagram(buf); err != nil {
		common.Throttled("tx-send:"+streamID.String(), "stream %s: send: %v", streamID, err)
		return false
	}
	return true
}

// DaxTxAudioStream sends transmit audio to the radio.
type DaxTxAudioStream struct {
	streamBase
	txStream

	transmit bool
}

func newDaxTx(id registry.ID, o *Options) *DaxTxAudioStream {
	st := &DaxTxAudioStream{}
	st.init(id, KindDaxTx, o)
	st.sender = o.Sender
	return st
}

func (st *DaxTxAudioStream) ApplyProperties(props []status.Property) {
	s := st.Store()
	st.applyAll(props, func(p status.Property) (bool, error) {
		if streamToken(p.Key) == streamTx {
			return true, setBool(s, p, &st.transmit)
		}
		return false, nil
	})
}

// Transmit reports whether this stream is the active transmit channel.
func (st *DaxTxAudioStream) Transmit() bool { return store.Get(st.Store(), &st.transmit) }

// SendFrame scales and sends n stereo samples. It returns false when the
// stream is not the active transmit channel or the datagram could not be
// sent.
func (st *DaxTxAudioStream) SendFrame(left, right []float32, n int) bool {
	if !st.Transmit() {
		return false
	}
	payload := sample.EncodeFloatPairs(left, right, n, sample.GainScalar(st.Gain()))
	return st.send(st.ID(), vita.ClassDAXAudio, payload, st.Metrics())
}

func (st *DaxTxAudioStream) Info() StreamInfo {
	info := st.info()
	info.Transmit = st.Transmit()
	return info
}

// RemoteTxAudioStream sends compressed transmit audio to the radio.
type RemoteTxAudioStream struct {
	streamBase
	txStream

	compression string
}

func newRemoteTx(id registry.ID, o *Options) *RemoteTxAudioStream {
	st := &RemoteTxAudioStream{}
	st.init(id, KindRemoteTx, o)
	st.sender = o.Sender
	return st
}

func (st *RemoteTxAudioStream) ApplyProperties(props []status.Property) {
	s := st.Store()
	st.applyAll(props, func(p status.Property) (bool, error) {
		if streamToken(p.Key) == streamCompression {
			store.Set(s, p.Key, &st.compression, p.Value)
			return true, nil
		}
		return false, nil
	})
}

// SendFrame sends the first n bytes of an Opus packet. It returns false
// until the stream has been confirmed for this client or when the datagram
// could not be sent. VITA-49 sizes packets in words, so a packet whose
// length is not a multiple of four arrives with up to three trailing zero
// bytes.
func (st *RemoteTxAudioStream) SendFrame(opus []byte, n int) bool {
	if !st.Initialized() {
		return false
	}
	return st.send(st.ID(), vita.ClassOpus, sample.EncodeOpus(opus, n), st.Metrics())
}

func (st *RemoteTxAudioStream) Info() StreamInfo {
	info := st.info()
	info.Compression = store.Get(st.Store(), &st.compression)
	return info
}

func storeHandler(p *atomic.Pointer[AudioHandler], h AudioHandler) {
	if h == nil {
		p.Store(nil)
		return
	}
	p.Store(&h)
}

func deliverAudio(b *streamBase, handler *atomic.Pointer[AudioHandler], frame *sample.Frame, pkt vita.Packet) {
	h := handler.Load()
	if h == nil {
		return
	}
	sample.DecodeFloatPairs(pkt.Payload, sample.GainScalar(b.Gain()), frame)
	b.Metrics().Inc(common.Frames)
	(*h)(frame)
}
