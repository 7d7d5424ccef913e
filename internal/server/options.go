package server

import (
	"errors"
	"strings"
	"time"

	"example.com/sdrmodel/internal/radio"
)

// Options configures server creation.
type Options struct {
	Radio *radio.Radio
	// EventBuffer is the per-client backlog for /events and /events.ndjson.
	EventBuffer int
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

func (o Options) withDefaults() (Options, error) {
	if o.Radio == nil {
		return o, errors.New("server: radio is required")
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	origins := o.AllowedOrigins[:0:0]
	for _, origin := range o.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, strings.TrimRight(origin, "/"))
		}
	}
	o.AllowedOrigins = origins
	return o, nil
}

func (o Options) originAllowed(origin string) bool {
	if len(o.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, allowed := range o.AllowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// kindFilter parses a "kind=a,b" query value.
func kindFilter(raw string) []string {
	var kinds []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
