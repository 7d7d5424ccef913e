// Package publish forwards model lifecycle events to NATS.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/event"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Publisher sends each event as JSON on <prefix>.<kind>.<type>.
type Publisher struct {
	prefix string

	mu   sync.Mutex
	conn Conn

	published uint64
	failed    uint64
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Connect dials url with automatic reconnects.
func Connect(url, name, prefix string) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				common.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			common.Logf("nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			common.Debugf("nats connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	common.Logf("nats connected to %s", url)
	return NewPublisher(nc, prefix), nil
}

// Subject returns the subject ev is published on.
func (p *Publisher) Subject(ev event.Event) string {
	return p.prefix + "." + token(ev.Kind) + "." + ev.Type.String()
}

// Publish sends one event. A closed publisher drops events silently.
func (p *Publisher) Publish(ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	subject := p.Subject(ev)
	if err := p.conn.Publish(subject, data); err != nil {
		p.failed++
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.published++
	return nil
}

// Run publishes everything from sub until ctx is done or sub is closed.
func (p *Publisher) Run(ctx context.Context, sub *event.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := p.Publish(ev); err != nil {
				common.Throttled("nats-publish", "%v", err)
			}
		}
	}
}

// Counts returns how many events were published and how many failed.
func (p *Publisher) Counts() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.failed
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
