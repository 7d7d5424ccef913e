package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"example.com/sdrmodel/internal/common"
)

// maxDatagram is above any VITA-49 packet the radio sends.
const maxDatagram = 16 * 1024

// Streams is the UDP socket datagrams arrive on and transmit streams leave
// from. It satisfies radio.Sender.
type Streams struct {
	conn   net.PacketConn
	remote net.Addr
}

// ListenStreams binds local (":0" picks a port) and sends to remote.
func ListenStreams(local, remote string) (*Streams, error) {
	conn, err := net.ListenPacket("udp", local)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", local, err)
	}
	var raddr net.Addr
	if remote != "" {
		ua, err := net.ResolveUDPAddr("udp", remote)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve %s: %w", remote, err)
		}
		raddr = ua
	}
	return &Streams{conn: conn, remote: raddr}, nil
}

// LocalPort is the bound UDP port, reported to the radio with
// "client udpport".
func (s *Streams) LocalPort() int {
	if ua, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return ua.Port
	}
	return 0
}

func (s *Streams) SendDatagram(b []byte) error {
	if s.remote == nil {
		return errors.New("transport: no stream destination")
	}
	_, err := s.conn.WriteTo(b, s.remote)
	return err
}

// Run delivers each datagram to fn in its own buffer until ctx is done or
// the socket is closed.
func (s *Streams) Run(ctx context.Context, fn func(buf []byte)) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}
		if n == 0 {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		fn(pkt)
	}
}

func (s *Streams) Close() error {
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	if err != nil {
		common.Debugf("close stream socket: %v", err)
	}
	return err
}
