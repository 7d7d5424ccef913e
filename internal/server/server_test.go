package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"example.com/sdrmodel/internal/event"
	"example.com/sdrmodel/internal/radio"
)

func newTestServer(t *testing.T) (*radio.Radio, *httptest.Server) {
	t.Helper()
	r := radio.New(radio.Options{})
	r.OnStatusLine("H2A")
	r.OnStatusLine("V3.2.31.0")
	r.OnStatusLine("S0|display pan 0x40000000 center=14.1 bandwidth=0.2 max_dbm=-40 x_pixels=800")
	r.OnStatusLine("S0|slice 0 RF_frequency=14.074 mode=DIGU pan=0x40000000")
	srv, err := NewServer(Options{Radio: r})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	h, err := NewRouter(srv)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return r, ts
}

func getBody(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp.StatusCode, b
}

func waitSubscribers(t *testing.T, r *radio.Radio, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Bus().Subscribers() < n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewServerRequiresRadio(t *testing.T) {
	if _, err := NewServer(Options{}); err == nil {
		t.Fatalf("server without radio accepted")
	}
}

func TestObjectsEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := getBody(t, ts.URL+"/objects")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var snap radio.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Panadapters) != 1 || snap.Panadapters[0].XPixels != 800 {
		t.Fatalf("panadapters = %+v", snap.Panadapters)
	}

	code, body = getBody(t, ts.URL+"/objects/slice")
	if code != http.StatusOK {
		t.Fatalf("slice status = %d", code)
	}
	var slices []radio.SliceInfo
	if err := json.Unmarshal(body, &slices); err != nil {
		t.Fatalf("decode slices: %v", err)
	}
	if len(slices) != 1 || slices[0].Mode != "DIGU" {
		t.Fatalf("slices = %+v", slices)
	}

	if code, _ := getBody(t, ts.URL+"/objects/bogus"); code != http.StatusNotFound {
		t.Fatalf("bogus kind status = %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	code, body := getBody(t, ts.URL+"/healthz")
	if code != http.StatusOK || !strings.Contains(string(body), `"clientHandle":"0x0000002A"`) {
		t.Fatalf("healthz = %d %s", code, body)
	}

	code, body = getBody(t, ts.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	if !strings.Contains(string(body), "sdrmodel_status_lines_total 4") {
		t.Fatalf("metrics missing status line count:\n%s", body)
	}
}

func TestReportPDF(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/report.pdf")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	b, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
}

func TestEventStreamNDJSON(t *testing.T) {
	r, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/events.ndjson?kind=amplifier")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	if !sc.Scan() || !strings.Contains(sc.Text(), "subscribed") {
		t.Fatalf("first line = %q", sc.Text())
	}

	r.OnStatusLine("S0|slice 0 mode=USB")
	r.OnStatusLine("S0|amplifier 0x1 ip=10.0.0.5 port=9010")

	for sc.Scan() {
		var ev event.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		if ev.Kind != radio.KindAmplifier {
			t.Fatalf("filter leaked %+v", ev)
		}
		if ev.Type == event.Added {
			return
		}
	}
	t.Fatalf("stream ended before the added event: %v", sc.Err())
}

func TestEventsWebsocket(t *testing.T) {
	r, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events?kind=xvtr"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitSubscribers(t, r, 1)

	r.OnStatusLine("S0|xvtr 0 name=2M rf_freq=144.0")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Kind != radio.KindXvtr {
			t.Fatalf("filter leaked %+v", ev)
		}
		if ev.Type == event.Added {
			break
		}
	}
}

func TestEventsRequiresUpgrade(t *testing.T) {
	_, ts := newTestServer(t)
	if code, _ := getBody(t, ts.URL+"/events"); code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
}

func TestOriginCheck(t *testing.T) {
	opts, err := Options{Radio: radio.New(radio.Options{}), AllowedOrigins: []string{" https://shack.example/ ", ""}}.withDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if !opts.originAllowed("https://shack.example") {
		t.Fatalf("configured origin rejected")
	}
	if opts.originAllowed("https://elsewhere.example") {
		t.Fatalf("foreign origin allowed")
	}
	if got := kindFilter(" pan, ,meter"); len(got) != 2 || got[1] != "meter" {
		t.Fatalf("kinds = %v", got)
	}
}
