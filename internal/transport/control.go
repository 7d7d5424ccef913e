// Package transport connects a radio model to real sockets: the TCP control
// channel and the UDP stream port.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/status"
)

var ErrClosed = errors.New("transport: connection closed")

// ReplyError is a non-zero command reply code.
type ReplyError struct {
	Command string
	Code    uint32
	Body    string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("command %q failed: 0x%08X %s", e.Command, e.Code, e.Body)
}

// Control is the line oriented command and status channel.
type Control struct {
	conn net.Conn

	mu      sync.Mutex
	w       *bufio.Writer
	seq     uint32
	pending map[uint32]chan status.Line
	closed  bool
	onSend  func(line string)
}

// Dial connects to addr, typically "<radio>:4992".
func Dial(ctx context.Context, addr string) (*Control, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewControl(conn), nil
}

func NewControl(conn net.Conn) *Control {
	return &Control{
		conn:    conn,
		w:       bufio.NewWriter(conn),
		pending: make(map[uint32]chan status.Line),
	}
}

// OnSend registers a hook that sees every command line written.
func (c *Control) OnSend(fn func(line string)) {
	c.mu.Lock()
	c.onSend = fn
	c.mu.Unlock()
}

// Send writes "C<seq>|cmd" and returns the sequence number used.
func (c *Control) Send(cmd string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(cmd)
}

func (c *Control) sendLocked(cmd string) (uint32, error) {
	if c.closed {
		return 0, ErrClosed
	}
	c.seq++
	line := fmt.Sprintf("C%d|%s", c.seq, strings.TrimRight(cmd, "\r\n"))
	if _, err := c.w.WriteString(line + "\n"); err != nil {
		return 0, err
	}
	if err := c.w.Flush(); err != nil {
		return 0, err
	}
	if c.onSend != nil {
		c.onSend(line)
	}
	return c.seq, nil
}

// Command sends cmd and waits for its reply. Replies reach it through
// HandleReply, which the status reader must be wired to.
func (c *Control) Command(ctx context.Context, cmd string) (status.Line, error) {
	ch := make(chan status.Line, 1)
	c.mu.Lock()
	seq, err := c.sendLocked(cmd)
	if err != nil {
		c.mu.Unlock()
		return status.Line{}, err
	}
	c.pending[seq] = ch
	c.mu.Unlock()

	select {
	case ln, ok := <-ch:
		if !ok {
			return status.Line{}, ErrClosed
		}
		if ln.Code != 0 {
			return ln, &ReplyError{Command: cmd, Code: ln.Code, Body: ln.Body}
		}
		return ln, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return status.Line{}, ctx.Err()
	}
}

// HandleReply completes a pending Command. Replies nobody waits for are
// ignored.
func (c *Control) HandleReply(ln status.Line) {
	c.mu.Lock()
	ch, ok := c.pending[ln.Seq]
	delete(c.pending, ln.Seq)
	c.mu.Unlock()
	if ok {
		ch <- ln
	}
}

// ReadLines forwards every received line to out until the connection
// fails, ctx is done or Close is called. out is closed on return.
func (c *Control) ReadLines(ctx context.Context, out chan<- string) error {
	defer close(out)
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}
		return fmt.Errorf("control read: %w", err)
	}
	common.Logf("control channel closed by radio")
	return nil
}

// Close shuts the connection and fails pending commands.
func (c *Control) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
	return c.conn.Close()
}
