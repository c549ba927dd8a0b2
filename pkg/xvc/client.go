package xvc

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/OpenTraceLab/xvcplay/pkg/scan"
)

// Client speaks XVC to a remote agent over a stream connection. It
// implements scan.Link. A Client is not safe for concurrent use; the scan
// session drives it from a single goroutine.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	log     *slog.Logger
	req     []byte
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every request/response exchange. Zero disables the
// deadline and lets reads block until the peer answers or closes.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClientLogger routes client diagnostics to l.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opts ...ClientOption) *Client {
	c := &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		log:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to an agent at addr ("host:port").
func Dial(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("xvc: dial %s: %w: %w", addr, scan.ErrConnectivity, err)
	}
	c := NewClient(conn, opts...)
	c.log.Debug("connected", slog.String("addr", conn.RemoteAddr().String()))
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Shift sends one shift: request and reads the TDO vector into tdo.
func (c *Client) Shift(ctx context.Context, bits uint32, tms, tdi, tdo []byte) error {
	n := ShiftBytes(bits)
	if len(tms) != n || len(tdi) != n || len(tdo) != n {
		return fmt.Errorf("xvc: vectors must be %d bytes for %d bits (tms=%d tdi=%d tdo=%d)",
			n, bits, len(tms), len(tdi), len(tdo))
	}
	c.req = AppendShift(c.req[:0], bits, tms, tdi)
	return c.exchange(ctx, "shift", c.req, func() error {
		_, err := io.ReadFull(c.r, tdo)
		return err
	})
}

// Info queries the agent's protocol version and maximum vector size.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var line string
	err := c.exchange(ctx, "getinfo", []byte(cmdGetInfo), func() error {
		var err error
		line, err = c.r.ReadString('\n')
		return err
	})
	if err != nil {
		return Info{}, err
	}
	return ParseInfo(line)
}

// SetTCK requests a TCK period and returns the period the agent applied.
func (c *Client) SetTCK(ctx context.Context, periodNs uint32) (uint32, error) {
	var reply [4]byte
	err := c.exchange(ctx, "settck", AppendSetTCK(nil, periodNs), func() error {
		_, err := io.ReadFull(c.r, reply[:])
		return err
	})
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(reply[:]), nil
}

// SetFrequency converts hz to a period and applies it with SetTCK.
func (c *Client) SetFrequency(ctx context.Context, hz int) (int, error) {
	period, err := PeriodFromHz(hz)
	if err != nil {
		return 0, err
	}
	actual, err := c.SetTCK(ctx, period)
	if err != nil {
		return 0, err
	}
	return HzFromPeriod(actual), nil
}

// exchange writes req in full and runs read for the reply. Any failure is
// reported as a connectivity error; the caller must not reuse the stream.
func (c *Client) exchange(ctx context.Context, op string, req []byte, read func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("xvc: %s: %w: %w", op, scan.ErrConnectivity, err)
	}
	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		if d := time.Now().Add(c.timeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("xvc: %s: set deadline: %w: %w", op, scan.ErrConnectivity, err)
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := writeFull(c.conn, req); err != nil {
		return fmt.Errorf("xvc: %s: write: %w: %w", op, scan.ErrConnectivity, err)
	}
	if err := read(); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("xvc: %s: read: %w: %w", op, scan.ErrConnectivity, err)
	}
	return nil
}

// writeFull loops until p is written; a zero-length write without error is
// treated as a short write.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		p = p[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
