package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"example.com/sdrmodel/internal/capture"
	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/config"
	"example.com/sdrmodel/internal/event"
	"example.com/sdrmodel/internal/manifest"
	"example.com/sdrmodel/internal/radio"
	"example.com/sdrmodel/internal/record"
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/report"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/vita"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type command func(ctx context.Context, args []string, stdout io.Writer) error

var commands = map[string]command{
	"replay":   replayCmd,
	"decode":   decodeCmd,
	"report":   reportCmd,
	"events":   eventsCmd,
	"meters":   metersCmd,
	"manifest": manifestCmd,
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		return
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage(os.Stderr)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd(ctx, os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `sdrctl %s (built %s) <command> [options]

Commands:
  replay   --in <session.cap> [--speed <x>] [--api <major.minor>] [--snapshot <out.json>] [--pdf <out.pdf>] [--events <out.jsonl>] [--meters <out.parquet>] [--progress]
  decode   --in <session.cap> [--limit <n>] [--kind status|datagram|command]
  report   --snapshot <snapshot.json> --pdf <out.pdf>
  events   --in <events.jsonl> [--kind <kind,...>]
  meters   --in <meters.parquet> [--number <n>]
  manifest --inputs <file,...> --out <manifest.json> | --verify <manifest.json>
`, version, buildDate)
}

func newFlagSet(name string, stdout io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stdout)
	return fs
}

func replayCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("replay", stdout)
	in := fs.String("in", "", "session recording")
	speed := fs.Float64("speed", 0, "replay speed factor, 0 replays as fast as possible")
	api := fs.String("api", "", "pin the protocol version instead of using the recorded V line")
	snapOut := fs.String("snapshot", "", "write the final model snapshot as JSON")
	pdfOut := fs.String("pdf", "", "write the final model snapshot as a PDF report")
	eventsOut := fs.String("events", "", "append lifecycle events to a JSONL log")
	metersOut := fs.String("meters", "", "record meter values to a Parquet file")
	progress := fs.Bool("progress", false, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}

	reader, err := capture.NewReader(*in)
	if err != nil {
		return err
	}
	defer reader.Close()

	session := radio.NewSession()
	if *api != "" {
		major, minor, err := config.ParseAPIVersion(*api)
		if err != nil {
			return err
		}
		session.PinAPIVersion(major, minor)
	}
	metrics := common.NewMetrics()
	reader.SetMetrics(metrics)
	rad := radio.New(radio.Options{Session: session, Bus: event.NewBus(), Metrics: metrics})
	rad.Start(ctx)

	var sinks []func()
	if *eventsOut != "" {
		elog := common.NewEventLog(*eventsOut)
		sub := rad.Bus().Subscribe(1 << 16)
		done := make(chan error, 1)
		go func() { done <- event.Journal(context.Background(), sub, elog, true) }()
		sinks = append(sinks, func() {
			sub.Close()
			<-done
			elog.Close()
		})
	}
	var rec *record.Recorder
	if *metersOut != "" {
		lookup := func(n uint16) (record.MeterMeta, bool) {
			m, ok := rad.Meters().Get(registry.ID(n))
			if !ok {
				return record.MeterMeta{}, false
			}
			return record.MeterMeta{Name: m.Name(), Source: m.Source(), Unit: m.Unit().String()}, true
		}
		rec, err = record.Create(*metersOut, lookup, 0, map[string]string{"source": *in})
		if err != nil {
			return err
		}
		sub := rad.Bus().SubscribeFunc(1<<16, event.OfKind(radio.KindMeter))
		done := make(chan error, 1)
		go func() { done <- rec.Run(context.Background(), sub) }()
		sinks = append(sinks, func() {
			sub.Close()
			<-done
		})
	}

	stopProgress := func() {}
	if *progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	st, replayErr := capture.Replay(ctx, reader, rad, *speed)
	stopProgress()
	rad.Close()
	for _, stop := range sinks {
		stop()
	}
	if rec != nil {
		if err := rec.Close(); err != nil {
			return fmt.Errorf("meter record: %w", err)
		}
		fmt.Fprintf(stdout, "Meter rows: %d -> %s\n", rec.Rows(), *metersOut)
	}
	if replayErr != nil {
		return replayErr
	}

	snap := rad.Snapshot()
	fmt.Fprintf(stdout, "Replayed %d status lines, %d datagrams, %d commands over %s (%d resyncs)\n",
		st.Status, st.Datagrams, st.Commands, st.Span, st.Resyncs)
	printSummary(stdout, snap)
	if *snapOut != "" {
		if err := report.SaveSnapshotJSON(snap, *snapOut); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Wrote snapshot:", *snapOut)
	}
	if *pdfOut != "" {
		if err := report.SaveSessionPDF(snap, *pdfOut); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Wrote PDF:", *pdfOut)
	}
	return nil
}

func printSummary(w io.Writer, snap radio.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Client handle\t%s\n", snap.ClientHandle)
	fmt.Fprintf(tw, "Protocol\t%s (%s layout)\n", emptyDash(snap.APIVersion), snap.Layout)
	for _, kind := range radio.Kinds() {
		objs, _ := snap.Objects(kind)
		fmt.Fprintf(tw, "%s\t%d\n", kind, countOf(objs))
	}
	m := snap.Metrics
	fmt.Fprintf(tw, "Frames\t%d\n", m.Frames)
	fmt.Fprintf(tw, "Gaps / stale / unsynced / lost\t%d / %d / %d / %d\n", m.Gaps, m.Stale, m.Unsynced, m.LostPackets)
	fmt.Fprintf(tw, "Malformed / unaddressed\t%d / %d\n", m.Malformed, m.Unaddressed)
	tw.Flush()
}

func countOf(v any) int {
	switch s := v.(type) {
	case []radio.PanadapterInfo:
		return len(s)
	case []radio.WaterfallInfo:
		return len(s)
	case []radio.MeterInfo:
		return len(s)
	case []radio.AmplifierInfo:
		return len(s)
	case []radio.XvtrInfo:
		return len(s)
	case []radio.SliceInfo:
		return len(s)
	case []radio.StreamInfo:
		return len(s)
	}
	return 0
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func decodeCmd(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("decode", stdout)
	in := fs.String("in", "", "session recording")
	limit := fs.Int("limit", 0, "stop after this many records")
	kind := fs.String("kind", "", "only show records of this kind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	reader, err := capture.NewReader(*in)
	if err != nil {
		return err
	}
	defer reader.Close()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tTIME\tKIND\tDETAIL")
	shown := 0
	for *limit <= 0 || shown < *limit {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			tw.Flush()
			return err
		}
		if *kind != "" && rec.Kind.String() != *kind {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", rec.Offset, rec.Time.Format("15:04:05.000000"), rec.Kind, describe(rec))
		shown++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n := reader.Resyncs(); n > 0 {
		fmt.Fprintf(stdout, "%d resyncs\n", n)
	}
	return nil
}

var classNames = map[uint16]string{
	vita.ClassMeter:     "meter",
	vita.ClassFFT:       "fft",
	vita.ClassWaterfall: "waterfall",
	vita.ClassOpus:      "opus",
	vita.ClassDAXAudio:  "dax-audio",
	vita.ClassDAXIQ24k:  "dax-iq-24k",
	vita.ClassDAXIQ48k:  "dax-iq-48k",
	vita.ClassDAXIQ96k:  "dax-iq-96k",
	vita.ClassDAXIQ192k: "dax-iq-192k",
	vita.ClassDiscovery: "discovery",
}

func describe(rec capture.Record) string {
	switch rec.Kind {
	case capture.KindDatagram:
		pkt, err := vita.Decode(rec.Data)
		if err != nil {
			return fmt.Sprintf("undecodable (%d bytes): %v", len(rec.Data), err)
		}
		name, ok := classNames[pkt.Header.ClassCode]
		if !ok {
			name = fmt.Sprintf("class 0x%04X", pkt.Header.ClassCode)
		}
		return fmt.Sprintf("stream 0x%08X %s count=%d payload=%d", pkt.Header.StreamID, name, pkt.Header.PacketCount, len(pkt.Payload))
	case capture.KindStatus:
		text := string(rec.Data)
		ln, err := status.ParseLine(text)
		if err != nil {
			return fmt.Sprintf("%q (%v)", text, err)
		}
		return fmt.Sprintf("%s %s", ln.Kind, truncate(text, 96))
	default:
		return truncate(string(rec.Data), 96)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func reportCmd(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("report", stdout)
	snapPath := fs.String("snapshot", "", "snapshot JSON written by replay --snapshot")
	pdfPath := fs.String("pdf", "", "output session report PDF")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *snapPath == "" || *pdfPath == "" {
		return errors.New("required: --snapshot and --pdf")
	}
	snap, err := report.LoadSnapshotJSON(*snapPath)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := report.SaveSessionPDF(snap, *pdfPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	digest, err := common.DigestJSON(snap)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Wrote PDF:", *pdfPath)
	fmt.Fprintln(stdout, "Snapshot digest:", digest)
	return nil
}

func eventsCmd(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("events", stdout)
	in := fs.String("in", "", "event log (JSONL)")
	kinds := fs.StringSlice("kind", nil, "only show these object kinds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	entries, err := common.ReadEventLog(*in)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(*kinds))
	for _, k := range *kinds {
		keep[strings.TrimSpace(k)] = true
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tKIND\tID\tCHANGE")
	for _, e := range entries {
		if len(keep) > 0 && !keep[e.Kind] {
			continue
		}
		change := ""
		if e.Property != "" {
			change = fmt.Sprintf("%s: %v -> %v", e.Property, e.Old, e.New)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Ts.Format(time.RFC3339Nano), e.Type, e.Kind, e.ID, change)
	}
	return tw.Flush()
}

func metersCmd(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("meters", stdout)
	in := fs.String("in", "", "meter history (Parquet)")
	number := fs.Int("number", -1, "only show this meter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	rows, err := record.ReadFile(*in)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETER\tSOURCE\tNAME\tVALUE\tUNIT")
	for _, r := range rows {
		if *number >= 0 && int(r.Number) != *number {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.2f\t%s\n", time.UnixMicro(r.Time).UTC().Format(time.RFC3339Nano), r.Number, r.Source, r.Name, r.Value, r.Unit)
	}
	return tw.Flush()
}

func manifestCmd(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("manifest", stdout)
	inputs := fs.StringSlice("inputs", nil, "files to list")
	out := fs.String("out", "manifest.json", "output manifest")
	session := fs.String("session", "", "session identifier to record")
	verify := fs.String("verify", "", "check the files listed in an existing manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verify != "" {
		m, err := manifest.Load(*verify)
		if err != nil {
			return err
		}
		changed, err := manifest.Verify(m)
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			return fmt.Errorf("%d of %d files changed: %s", len(changed), len(m.Items), strings.Join(changed, ", "))
		}
		fmt.Fprintf(stdout, "Manifest OK: %d files\n", len(m.Items))
		return nil
	}
	if len(*inputs) == 0 {
		return errors.New("required: --inputs or --verify")
	}
	m, err := manifest.Build(*session, *inputs)
	if err != nil {
		return err
	}
	if err := manifest.Save(m, *out); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Wrote manifest:", *out)
	return nil
}
