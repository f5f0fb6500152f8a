// Package serialtcp adapts a TCP connection to the serial.Port interface,
// for controllers reachable through ser2net style bridges instead of a
// local device node.
package serialtcp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"
)

// ErrNotSupported is returned by the serial.Port methods that have no TCP
// equivalent: mode, modem lines, buffer resets and break.
var ErrNotSupported = errors.New("not supported over TCP")

// Port implements serial.Port over a TCP connection. Only the data path
// and read timeouts are functional.
type Port struct {
	conn        net.Conn
	readTimeout time.Duration
}

// Dial connects to a serial over TCP bridge at address (host:port).
func Dial(ctx context.Context, address string, timeout time.Duration) (*Port, error) {
	logger := log.MustLogger(ctx)
	logger.Info("Dialing serial TCP bridge", "address", address, "timeout", timeout)
	dialer := &net.Dialer{
		Timeout: timeout,
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	// Sends are tiny line writes and single control bytes; coalescing them
	// adds latency the controller protocol cannot tolerate.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return nil, errors.Join(err, conn.Close())
		}
	}
	return &Port{conn: conn}, nil
}

func (p *Port) SetMode(mode *serial.Mode) error {
	return ErrNotSupported
}

// Read applies the configured read timeout as a connection deadline. Zero
// and serial.NoTimeout both mean block until data arrives. A timed out
// read fails with a net error satisfying errors.Is(err,
// os.ErrDeadlineExceeded), matching local port semantics closely enough
// for polling readers.
func (p *Port) Read(b []byte) (n int, err error) {
	deadline := time.Time{}
	if p.readTimeout > 0 {
		deadline = time.Now().Add(p.readTimeout)
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	return p.conn.Read(b)
}

func (p *Port) Write(b []byte) (n int, err error) {
	return p.conn.Write(b)
}

func (p *Port) Drain() error {
	return ErrNotSupported
}

func (p *Port) ResetInputBuffer() error {
	return ErrNotSupported
}

func (p *Port) ResetOutputBuffer() error {
	return ErrNotSupported
}

func (p *Port) SetDTR(dtr bool) error {
	return ErrNotSupported
}

func (p *Port) SetRTS(rts bool) error {
	return ErrNotSupported
}

func (p *Port) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return nil, ErrNotSupported
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.readTimeout = t
	return nil
}

func (p *Port) Close() error {
	return p.conn.Close()
}

func (p *Port) Break(time.Duration) error {
	return ErrNotSupported
}
