package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"example.com/sdrmodel/internal/capture"
	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/config"
	"example.com/sdrmodel/internal/event"
	"example.com/sdrmodel/internal/manifest"
	"example.com/sdrmodel/internal/publish"
	"example.com/sdrmodel/internal/radio"
	"example.com/sdrmodel/internal/record"
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/server"
	"example.com/sdrmodel/internal/transport"
)

// radioStreamPort is where the radio accepts transmit stream datagrams.
const radioStreamPort = 4993

func main() {
	flags := pflag.NewFlagSet("sdrmodeld", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "config/sdrmodeld.yaml", "path to configuration file")
	addr := flags.String("addr", "", "HTTP listen address (overrides http.addr)")
	radioAddr := flags.String("radio", "", "radio address (overrides radio.address)")
	writeTimeout := flags.Duration("write-timeout", 10*time.Second, "websocket write timeout")
	origins := flags.StringSlice("allow-origin", nil, "allowed websocket origins")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if *radioAddr != "" && errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Decode(strings.NewReader(""))
	}
	if *radioAddr != "" && errors.Is(err, config.ErrNoRadio) {
		err = nil
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *radioAddr != "" {
		cfg.Radio.Address = *radioAddr
		if _, _, err := net.SplitHostPort(cfg.Radio.Address); err != nil {
			cfg.Radio.Address = net.JoinHostPort(cfg.Radio.Address, "4992")
		}
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("data dir: %v", err)
	}
	if err := setupLogging(cfg.Logs); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sessionID := uuid.New()
	runErr := run(ctx, cfg, sessionID, server.Options{WriteTimeout: *writeTimeout, AllowedOrigins: *origins})
	if err := writeManifest(cfg, sessionID); err != nil {
		common.Warnf("session manifest: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		common.Fatalf("%v", runErr)
	}
	common.Logf("sdrmodeld stopped")
}

// writeManifest records digests of the files this session produced.
func writeManifest(cfg config.Config, sessionID uuid.UUID) error {
	var paths []string
	for _, p := range []string{cfg.Capture, cfg.EventLog, cfg.Record.Meters} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	m, err := manifest.Build(sessionID.String(), paths)
	if err != nil {
		return err
	}
	out := filepath.Join(cfg.DataDir, "session-"+sessionID.String()+".manifest.json")
	if err := manifest.Save(m, out); err != nil {
		return err
	}
	common.Logf("wrote %s", out)
	return nil
}

func run(ctx context.Context, cfg config.Config, sessionID uuid.UUID, srvOpts server.Options) error {
	common.Logf("session %s connecting to %s", sessionID, cfg.Radio.Address)

	host, _, err := net.SplitHostPort(cfg.Radio.Address)
	if err != nil {
		return fmt.Errorf("radio address: %w", err)
	}
	streams, err := transport.ListenStreams(":"+strconv.Itoa(cfg.Radio.StreamPort), net.JoinHostPort(host, strconv.Itoa(radioStreamPort)))
	if err != nil {
		return err
	}
	defer streams.Close()

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	control, err := transport.Dial(dialCtx, cfg.Radio.Address)
	cancelDial()
	if err != nil {
		return err
	}
	defer control.Close()

	var capw *capture.Writer
	if cfg.Capture != "" {
		if capw, err = capture.Create(cfg.Capture); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		defer func() {
			if err := capw.Close(); err != nil {
				common.Warnf("close capture: %v", err)
			}
			common.Logf("captured %d records to %s", capw.Records(), cfg.Capture)
		}()
		control.OnSend(func(line string) { capw.WriteCommand(time.Now(), line) })
	}

	session := radio.NewSession()
	if cfg.Radio.APIVersion != "" {
		major, minor, _ := config.ParseAPIVersion(cfg.Radio.APIVersion)
		session.PinAPIVersion(major, minor)
	}
	rad := radio.New(radio.Options{
		Session: session,
		Bus:     event.NewBus(),
		Metrics: common.NewMetrics(),
		Sender:  streams,
		OnReply: control.HandleReply,
		Workers: cfg.Stream.Workers,
		Queue:   cfg.Stream.Queue,
	})
	rad.Start(ctx)
	defer rad.Close()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		control.Close()
		streams.Close()
		wg.Wait()
	}()
	errc := make(chan error, 1)
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				select {
				case errc <- fmt.Errorf("%s: %w", name, err):
				default:
					common.Warnf("%s: %v", name, err)
				}
			}
		}()
	}

	raw := make(chan string, 256)
	lines := make(chan string, 256)
	goRun("control", func() error {
		err := control.ReadLines(ctx, raw)
		if err == nil {
			err = errors.New("radio closed the control channel")
		}
		return err
	})
	goRun("capture", func() error {
		defer close(lines)
		for line := range raw {
			if capw != nil {
				capw.WriteStatus(time.Now(), line)
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	goRun("status", func() error { return rad.RunStatus(ctx, lines) })
	goRun("streams", func() error {
		return streams.Run(ctx, func(buf []byte) {
			if capw != nil {
				capw.WriteDatagram(time.Now(), buf)
			}
			rad.OnStreamDatagram(buf)
		})
	})

	if cfg.EventLog != "" {
		elog := common.NewEventLog(cfg.EventLog)
		defer elog.Close()
		sub := rad.Bus().Subscribe(1024)
		defer sub.Close()
		goRun("event log", func() error { return event.Journal(ctx, sub, elog, false) })
	}

	if cfg.NATS.URL != "" {
		pub, err := publish.Connect(cfg.NATS.URL, "sdrmodeld-"+sessionID.String(), cfg.NATS.Subject)
		if err != nil {
			return err
		}
		defer pub.Close()
		sub := rad.Bus().Subscribe(4096)
		defer sub.Close()
		goRun("nats", func() error { return pub.Run(ctx, sub) })
	}

	if cfg.Record.Meters != "" {
		lookup := func(n uint16) (record.MeterMeta, bool) {
			m, ok := rad.Meters().Get(registry.ID(n))
			if !ok {
				return record.MeterMeta{}, false
			}
			return record.MeterMeta{Name: m.Name(), Source: m.Source(), Unit: m.Unit().String()}, true
		}
		rec, err := record.Create(cfg.Record.Meters, lookup, cfg.Record.Flush, map[string]string{
			"session": sessionID.String(),
			"radio":   cfg.Radio.Address,
		})
		if err != nil {
			return fmt.Errorf("meter record: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				common.Warnf("close meter record: %v", err)
			}
		}()
		sub := rad.Bus().SubscribeFunc(4096, event.OfKind("meter"))
		defer sub.Close()
		goRun("meter record", func() error { return rec.Run(ctx, sub) })
	}

	srvOpts.Radio = rad
	srv, err := server.NewServer(srvOpts)
	if err != nil {
		return err
	}
	router, err := server.NewRouter(srv)
	if err != nil {
		return err
	}
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	goRun("http", func() error {
		common.Logf("sdrmodeld listening on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := handshake(ctx, control, cfg.Radio, streams.LocalPort()); err != nil {
		common.Warnf("handshake: %v", err)
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		common.Warnf("http shutdown: %v", serr)
	}
	return err
}

// handshake identifies the client, reports the stream port and subscribes.
// Failures are logged per command; the model keeps whatever status arrives.
func handshake(ctx context.Context, c *transport.Control, rc config.Radio, udpPort int) error {
	cmds := []string{
		"client program " + rc.Program,
		"client station " + rc.Station,
		"client udpport " + strconv.Itoa(udpPort),
	}
	cmds = append(cmds, rc.Subscriptions...)
	var failed int
	for _, cmd := range cmds {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := c.Command(cctx, cmd)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			common.Warnf("%s: %v", cmd, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, len(cmds))
	}
	return nil
}
