// Package radio is the live model of one radio: the per-kind object
// collections fed by control channel status lines, and the stream path that
// routes VITA-49 datagrams to those objects.
package radio

import (
	"context"
	"strings"
	"sync"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/event"
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/vita"
)

// Sender transmits one encoded datagram to the radio.
type Sender interface {
	SendDatagram(b []byte) error
}

// ReplyFunc observes command replies from the control channel.
type ReplyFunc func(status.Line)

// Options is the explicit context a Radio is built from. Zero fields get
// working defaults.
type Options struct {
	Session *Session
	Bus     *event.Bus
	Metrics *common.Metrics
	Sender  Sender
	OnReply ReplyFunc

	// Workers is the number of stream workers. Zero processes datagrams on
	// the caller's goroutine, one datagram at a time.
	Workers int
	// Queue is the per-worker backlog before datagrams are dropped.
	Queue int
}

// streamSink is implemented by every object that consumes datagrams.
type streamSink interface {
	handleDatagram(pkt vita.Packet, layout vita.Layout)
}

// Radio owns every collection. OnStatusLine must be called from a single
// goroutine; OnStreamDatagram may be called from any.
type Radio struct {
	opts    Options
	session *Session
	bus     *event.Bus
	metrics *common.Metrics

	panadapters *registry.Collection[*Panadapter]
	waterfalls  *registry.Collection[*Waterfall]
	meters      *registry.Collection[*Meter]
	amplifiers  *registry.Collection[*Amplifier]
	xvtrs       *registry.Collection[*Xvtr]
	slices      *registry.Collection[*Slice]
	daxRx       *registry.Collection[*DaxRxAudioStream]
	daxTx       *registry.Collection[*DaxTxAudioStream]
	daxMic      *registry.Collection[*DaxMicAudioStream]
	daxIQ       *registry.Collection[*DaxIqStream]
	remoteRx    *registry.Collection[*RemoteRxAudioStream]
	remoteTx    *registry.Collection[*RemoteTxAudioStream]

	meterStream *meterStream
	router      *StreamRouter
	// inline serializes dispatch when there is no router.
	inline sync.Mutex
}

func New(opts Options) *Radio {
	if opts.Session == nil {
		opts.Session = NewSession()
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	if opts.Metrics == nil {
		opts.Metrics = common.NewMetrics()
	}
	r := &Radio{opts: opts, session: opts.Session, bus: opts.Bus, metrics: opts.Metrics}
	o := &r.opts
	bus, m := o.Bus, o.Metrics

	display := r.acceptUnclaimed
	owned := r.acceptOwned
	r.panadapters = registry.NewCollection(KindPanadapter, bus, m, func(id registry.ID) *Panadapter { return newPanadapter(id, o) }).WithAccept(display)
	r.waterfalls = registry.NewCollection(KindWaterfall, bus, m, func(id registry.ID) *Waterfall { return newWaterfall(id, o) }).WithAccept(display)
	r.meters = registry.NewCollection(KindMeter, bus, m, func(id registry.ID) *Meter { return newMeter(id, o) })
	r.amplifiers = registry.NewCollection(KindAmplifier, bus, m, func(id registry.ID) *Amplifier { return newAmplifier(id, o) })
	r.xvtrs = registry.NewCollection(KindXvtr, bus, m, func(id registry.ID) *Xvtr { return newXvtr(id, o) })
	r.slices = registry.NewCollection(KindSlice, bus, m, func(id registry.ID) *Slice { return newSlice(id, o) }).WithAccept(display)
	r.daxRx = registry.NewCollection(KindDaxRx, bus, m, func(id registry.ID) *DaxRxAudioStream { return newDaxRx(id, o) }).WithAccept(owned)
	r.daxTx = registry.NewCollection(KindDaxTx, bus, m, func(id registry.ID) *DaxTxAudioStream { return newDaxTx(id, o) }).WithAccept(owned)
	r.daxMic = registry.NewCollection(KindDaxMic, bus, m, func(id registry.ID) *DaxMicAudioStream { return newDaxMic(id, o) }).WithAccept(owned)
	r.daxIQ = registry.NewCollection(KindDaxIQ, bus, m, func(id registry.ID) *DaxIqStream { return newDaxIQ(id, o) }).WithAccept(owned)
	r.remoteRx = registry.NewCollection(KindRemoteRx, bus, m, func(id registry.ID) *RemoteRxAudioStream { return newRemoteRx(id, o) }).WithAccept(owned)
	r.remoteTx = registry.NewCollection(KindRemoteTx, bus, m, func(id registry.ID) *RemoteTxAudioStream { return newRemoteTx(id, o) }).WithAccept(owned)

	r.meterStream = newMeterStream(r.meters, m)
	if opts.Workers > 0 {
		r.router = NewStreamRouter(opts.Workers, opts.Queue, r.dispatch, m)
	}
	return r
}

func (r *Radio) Session() *Session        { return r.session }
func (r *Radio) Bus() *event.Bus          { return r.bus }
func (r *Radio) Metrics() *common.Metrics { return r.metrics }

func (r *Radio) Panadapters() *registry.Collection[*Panadapter]         { return r.panadapters }
func (r *Radio) Waterfalls() *registry.Collection[*Waterfall]           { return r.waterfalls }
func (r *Radio) Meters() *registry.Collection[*Meter]                   { return r.meters }
func (r *Radio) Amplifiers() *registry.Collection[*Amplifier]           { return r.amplifiers }
func (r *Radio) Xvtrs() *registry.Collection[*Xvtr]                     { return r.xvtrs }
func (r *Radio) Slices() *registry.Collection[*Slice]                   { return r.slices }
func (r *Radio) DaxRxAudioStreams() *registry.Collection[*DaxRxAudioStream] {
	return r.daxRx
}
func (r *Radio) DaxTxAudioStreams() *registry.Collection[*DaxTxAudioStream] {
	return r.daxTx
}
func (r *Radio) DaxMicAudioStreams() *registry.Collection[*DaxMicAudioStream] {
	return r.daxMic
}
func (r *Radio) DaxIqStreams() *registry.Collection[*DaxIqStream] { return r.daxIQ }
func (r *Radio) RemoteRxAudioStreams() *registry.Collection[*RemoteRxAudioStream] {
	return r.remoteRx
}
func (r *Radio) RemoteTxAudioStreams() *registry.Collection[*RemoteTxAudioStream] {
	return r.remoteTx
}

// Start launches the stream workers, if any were configured.
func (r *Radio) Start(ctx context.Context) {
	r.metrics.Start()
	if r.router != nil {
		r.router.Start(ctx)
	}
}

// Close stops the stream workers after draining their queues.
func (r *Radio) Close() {
	if r.router != nil {
		r.router.Close()
	}
	r.metrics.Stop()
}

// acceptUnclaimed admits display objects unless they name another client.
func (r *Radio) acceptUnclaimed(props []status.Property, exists bool) bool {
	v, ok := status.Lookup(props, "client_handle")
	if !ok {
		return true
	}
	return r.isOwnHandle(v)
}

// acceptOwned admits stream lines only when they name this client, or when
// they update a stream already accepted.
func (r *Radio) acceptOwned(props []status.Property, exists bool) bool {
	v, ok := status.Lookup(props, "client_handle")
	if !ok {
		return exists
	}
	return r.isOwnHandle(v)
}

func (r *Radio) isOwnHandle(v string) bool {
	h, err := status.ParseHandle(v)
	if err != nil {
		return false
	}
	own := r.session.ClientHandle()
	return own == 0 || h == own
}

// RunStatus applies lines until the channel is closed or ctx is done. It is
// the single parse path for the control channel.
func (r *Radio) RunStatus(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			r.OnStatusLine(line)
		}
	}
}

// OnStatusLine handles one framed control channel line.
func (r *Radio) OnStatusLine(text string) {
	r.metrics.Inc(common.StatusLines)
	ln, err := status.ParseLine(text)
	if err != nil {
		if err != status.ErrEmptyLine {
			r.metrics.Inc(common.Malformed)
			common.Throttled("status-line", "control line: %v", err)
		}
		return
	}
	switch ln.Kind {
	case status.KindHandle:
		r.session.SetClientHandle(ln.Handle)
		common.Logf("client handle 0x%08X", ln.Handle)
	case status.KindVersion:
		major, minor, err := status.ParseVersion(ln.Body)
		if err != nil {
			common.Warnf("version line: %v", err)
			return
		}
		r.session.SetAPIVersion(major, minor)
		common.Logf("radio protocol version %s, %s payload layout", ln.Body, r.session.Layout())
	case status.KindMessage:
		common.Logf("radio message 0x%08X: %s", ln.Code, ln.Body)
	case status.KindReply:
		if ln.Code != 0 {
			common.Warnf("command %d failed: 0x%08X %s", ln.Seq, ln.Code, ln.Body)
		}
		if r.opts.OnReply != nil {
			r.opts.OnReply(ln)
		}
	case status.KindStatus:
		r.ApplyStatus(ln.Body)
	}
}

// ApplyStatus handles the body of one status message.
func (r *Radio) ApplyStatus(body string) {
	props := status.Fields(body)
	if len(props) == 0 {
		return
	}
	switch props[0].Key {
	case "display":
		if len(props) < 3 {
			r.malformedStatus(body)
			return
		}
		switch props[1].Key {
		case "pan":
			applyKeyed(r, r.panadapters, props[2].Key, props[3:])
		case "waterfall":
			applyKeyed(r, r.waterfalls, props[2].Key, props[3:])
		default:
			common.Debugf("ignoring display status %q", props[1].Key)
		}
	case "meter":
		r.applyMeters(body)
	case "amplifier":
		if len(props) < 2 {
			r.malformedStatus(body)
			return
		}
		applyKeyed(r, r.amplifiers, props[1].Key, props[2:])
	case "xvtr":
		if len(props) < 2 {
			r.malformedStatus(body)
			return
		}
		applyKeyed(r, r.xvtrs, props[1].Key, props[2:])
	case "slice":
		if len(props) < 2 {
			r.malformedStatus(body)
			return
		}
		applyKeyed(r, r.slices, props[1].Key, props[2:])
	case "stream":
		if len(props) < 2 {
			r.malformedStatus(body)
			return
		}
		r.applyStream(props[1].Key, props[2:])
	default:
		common.Debugf("ignoring status for %q", props[0].Key)
	}
}

func (r *Radio) malformedStatus(body string) {
	r.metrics.Inc(common.Malformed)
	common.Throttled("status-body", "malformed status %q", body)
}

// inUse is false for "removed" and "in_use=0" lines.
func inUse(props []status.Property) bool {
	for _, p := range props {
		if p.Key == "removed" && p.Value == "" {
			return false
		}
		if p.Key == "in_use" && p.Value == "0" {
			return false
		}
	}
	return true
}

func applyKeyed[T registry.Object](r *Radio, c *registry.Collection[T], idText string, props []status.Property) {
	id, err := status.ParseID(idText)
	if err != nil {
		r.metrics.Inc(common.Malformed)
		common.Throttled("id:"+c.Kind(), "%s status with bad id %q: %v", c.Kind(), idText, err)
		return
	}
	c.Apply(registry.ID(id), props, inUse(props))
}

// applyMeters handles "meter 7.nam=...#7.unit=...#" and "meter 7 removed".
// Only a bare "<n> removed" or "<n> in_use=0" removes; words inside values
// never do.
func (r *Radio) applyMeters(body string) {
	rest := strings.TrimSpace(strings.TrimPrefix(body, "meter"))
	fields := status.Fields(rest)
	if len(fields) == 2 && !inUse(fields[1:]) {
		id, err := status.ParseID(fields[0].Key)
		if err != nil {
			r.malformedStatus(body)
			return
		}
		r.meters.Remove(registry.ID(id))
		return
	}
	for _, g := range status.MeterGroups(rest) {
		r.meters.Apply(registry.ID(g.Number), g.Props, true)
	}
}

func (r *Radio) applyStream(idText string, props []status.Property) {
	id64, err := status.ParseID(idText)
	if err != nil {
		r.malformedStatus("stream " + idText)
		return
	}
	id := registry.ID(id64)
	if !inUse(props) {
		r.removeStream(id)
		return
	}
	typ, ok := status.Lookup(props, "type")
	if !ok {
		typ = r.streamKind(id)
	}
	switch typ {
	case KindDaxRx:
		r.daxRx.Apply(id, props, true)
	case KindDaxTx:
		r.daxTx.Apply(id, props, true)
	case KindDaxMic:
		r.daxMic.Apply(id, props, true)
	case KindDaxIQ:
		r.daxIQ.Apply(id, props, true)
	case KindRemoteRx:
		r.remoteRx.Apply(id, props, true)
	case KindRemoteTx:
		r.remoteTx.Apply(id, props, true)
	case "":
		common.Debugf("stream %s status without type for unknown stream", id)
	default:
		r.metrics.Inc(common.UnknownTokens)
		common.Throttled("stream-type:"+typ, "stream %s: unknown type %q", id, typ)
	}
}

// streamKind returns the kind of an existing stream, or "".
func (r *Radio) streamKind(id registry.ID) string {
	switch {
	case has(r.daxRx, id):
		return KindDaxRx
	case has(r.daxTx, id):
		return KindDaxTx
	case has(r.daxMic, id):
		return KindDaxMic
	case has(r.daxIQ, id):
		return KindDaxIQ
	case has(r.remoteRx, id):
		return KindRemoteRx
	case has(r.remoteTx, id):
		return KindRemoteTx
	}
	return ""
}

func has[T registry.Object](c *registry.Collection[T], id registry.ID) bool {
	_, ok := c.Get(id)
	return ok
}

func (r *Radio) removeStream(id registry.ID) {
	_ = r.daxRx.Remove(id) ||
		r.daxTx.Remove(id) ||
		r.daxMic.Remove(id) ||
		r.daxIQ.Remove(id) ||
		r.remoteRx.Remove(id) ||
		r.remoteTx.Remove(id)
}

// OnStreamDatagram accepts one received datagram. buf must not be reused by
// the caller afterwards; packets alias it until processed.
func (r *Radio) OnStreamDatagram(buf []byte) {
	r.metrics.AddDatagram(len(buf))
	pkt, err := vita.Decode(buf)
	if err != nil {
		r.metrics.Inc(common.Malformed)
		common.Throttled("vita", "datagram: %v", err)
		return
	}
	if r.router != nil {
		r.router.Route(pkt)
		return
	}
	r.inline.Lock()
	r.dispatch(pkt)
	r.inline.Unlock()
}

// dispatch runs on the stream worker that owns pkt's stream id.
func (r *Radio) dispatch(pkt vita.Packet) {
	if sink := r.sinkFor(pkt.Header); sink != nil {
		sink.handleDatagram(pkt, r.session.Layout())
	}
}

func (r *Radio) sinkFor(h vita.Header) streamSink {
	id := registry.ID(h.StreamID)
	switch {
	case h.ClassCode == vita.ClassMeter:
		return r.meterStream
	case h.ClassCode == vita.ClassFFT:
		if p, ok := r.panadapters.Get(id); ok {
			return p
		}
	case h.ClassCode == vita.ClassWaterfall:
		if w, ok := r.waterfalls.Get(id); ok {
			return w
		}
	case h.ClassCode == vita.ClassDiscovery:
		return nil
	case vita.IsIQ(h.ClassCode):
		if s, ok := r.daxIQ.Get(id); ok {
			return s
		}
	case h.ClassCode == vita.ClassOpus:
		if s, ok := r.remoteRx.Get(id); ok {
			return s
		}
	case h.ClassCode == vita.ClassDAXAudio:
		if s, ok := r.daxRx.Get(id); ok {
			return s
		}
		if s, ok := r.daxMic.Get(id); ok {
			return s
		}
	default:
		r.metrics.Inc(common.Malformed)
		common.Throttled("class", "datagram with unhandled class code 0x%04X", h.ClassCode)
		return nil
	}
	r.metrics.Inc(common.Unaddressed)
	return nil
}
