package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"example.com/sdrmodel/internal/status"
)

// fakeRadio answers every command with a reply; "fail" gets code 0x50000015.
func fakeRadio(t *testing.T, conn net.Conn) {
	t.Helper()
	go func() {
		w := bufio.NewWriter(conn)
		fmt.Fprintf(w, "V1.4.0.0\nH0000ABCD\n")
		w.Flush()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			seq, cmd, _ := strings.Cut(strings.TrimPrefix(sc.Text(), "C"), "|")
			code := "0"
			if cmd == "fail" {
				code = "50000015"
			}
			fmt.Fprintf(w, "S0000ABCD|echo %s\nR%s|%s|\n", cmd, seq, code)
			w.Flush()
		}
	}()
}

func startControl(t *testing.T) (*Control, <-chan string, context.CancelFunc) {
	t.Helper()
	client, server := net.Pipe()
	fakeRadio(t, server)
	c := NewControl(client)
	t.Cleanup(func() { c.Close(); server.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	raw := make(chan string, 16)
	go c.ReadLines(ctx, raw)

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		for text := range raw {
			ln, err := status.ParseLine(text)
			if err == nil && ln.Kind == status.KindReply {
				c.HandleReply(ln)
				continue
			}
			lines <- text
		}
	}()
	return c, lines, cancel
}

func TestCommandReplies(t *testing.T) {
	c, lines, cancel := startControl(t)
	defer cancel()

	var sent []string
	c.OnSend(func(line string) { sent = append(sent, line) })

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if _, err := c.Command(ctx, "sub pan all"); err != nil {
		t.Fatalf("command: %v", err)
	}
	_, err := c.Command(ctx, "fail")
	var re *ReplyError
	if !errors.As(err, &re) || re.Code != 0x50000015 {
		t.Fatalf("err = %v", err)
	}
	if len(sent) != 2 || sent[0] != "C1|sub pan all" || sent[1] != "C2|fail" {
		t.Fatalf("sent = %q", sent)
	}

	want := []string{"V1.4.0.0", "H0000ABCD", "S0000ABCD|echo sub pan all", "S0000ABCD|echo fail"}
	for _, w := range want {
		select {
		case got := <-lines:
			if got != w {
				t.Fatalf("line = %q, want %q", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing line %q", w)
		}
	}
}

func TestCloseFailsPendingCommand(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		sc := bufio.NewScanner(server)
		for sc.Scan() {
		}
	}()
	c := NewControl(client)
	errc := make(chan error, 1)
	go func() {
		_, err := c.Command(context.Background(), "info")
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("command still pending")
	}
	if _, err := c.Send("info"); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestReadLinesStopsOnContext(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := NewControl(client)
	defer c.Close()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string)
	errc := make(chan error, 1)
	go func() { errc <- c.ReadLines(ctx, out) }()
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reader did not stop")
	}
	if _, ok := <-out; ok {
		t.Fatalf("output not closed")
	}
}

func TestStreamsLoopback(t *testing.T) {
	rx, err := ListenStreams("127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer rx.Close()
	tx, err := ListenStreams("127.0.0.1:0", fmt.Sprintf("127.0.0.1:%d", rx.LocalPort()))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer tx.Close()

	if err := rx.SendDatagram([]byte{1}); err == nil {
		t.Fatalf("send without destination accepted")
	}

	got := make(chan []byte, 4)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- rx.Run(ctx, func(b []byte) { got <- b }) }()

	if err := tx.SendDatagram([]byte{0x18, 0x00, 0x00, 0x07}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case b := <-got:
		if len(b) != 4 || b[3] != 7 {
			t.Fatalf("datagram = % x", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("datagram not received")
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
}
