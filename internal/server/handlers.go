// Package server exposes the live radio model over HTTP: snapshots, live
// lifecycle events, Prometheus metrics and a PDF session report.
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/event"
	"example.com/sdrmodel/internal/radio"
	"example.com/sdrmodel/internal/registry"
	"example.com/sdrmodel/internal/report"
)

// Server serves one Radio.
type Server struct {
	radio    *radio.Radio
	opts     Options
	upgrader websocket.Upgrader
	started  time.Time
}

func NewServer(opts Options) (*Server, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	s := &Server{radio: opts.Radio, opts: opts, started: time.Now()}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return opts.originAllowed(r.Header.Get("Origin"))
		},
	}
	return s, nil
}

type healthResponse struct {
	Status       string  `json:"status"`
	ClientHandle string  `json:"clientHandle"`
	Layout       string  `json:"layout"`
	Uptime       float64 `json:"uptimeSeconds"`
	Subscribers  int     `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sess := s.radio.Session()
	status := "ok"
	if sess.ClientHandle() == 0 {
		status = "connecting"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       status,
		ClientHandle: radioID(sess.ClientHandle()),
		Layout:       sess.Layout().String(),
		Uptime:       time.Since(s.started).Seconds(),
		Subscribers:  s.radio.Bus().Subscribers(),
	})
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.radio.Snapshot())
}

func (s *Server) handleObjectKind(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	snap := s.radio.Snapshot()
	objs, ok := snap.Objects(kind)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "unknown object kind " + kind,
			"kinds": radio.Kinds(),
		})
		return
	}
	writeJSON(w, http.StatusOK, objs)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := report.WriteSessionPDF(&buf, s.radio.Snapshot()); err != nil {
		common.Errorf("session report: %v", err)
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="session.pdf"`)
	w.Write(buf.Bytes())
}

func (s *Server) subscribe(r *http.Request) *event.Subscription {
	kinds := kindFilter(r.URL.Query().Get("kind"))
	return s.radio.Bus().SubscribeFunc(s.opts.EventBuffer, event.OfKind(kinds...))
}

// handleEventStream streams events as NDJSON until the client goes away.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	sub := s.subscribe(r)
	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	nw := NewNDJSONWriter(w)
	nw.WriteObject(map[string]string{"status": "subscribed"})
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := nw.WriteEvent(ev); err != nil {
				return
			}
		}
	}
}

// handleEvents upgrades to a websocket and sends one JSON message per event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		common.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	sub := s.subscribe(r)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					common.Debugf("websocket read: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				common.Debugf("websocket write: %v", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func radioID(id uint32) string {
	if id == 0 {
		return ""
	}
	return registry.ID(id).String()
}
