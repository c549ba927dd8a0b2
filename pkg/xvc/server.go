package xvc

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/OpenTraceLab/xvcplay/pkg/jtag"
)

// DefaultMaxVectorBytes is the getinfo: vector length advertised by Server.
// It covers both TMS and TDI, so a request carries at most half of it per
// vector.
const DefaultMaxVectorBytes = 2048

// Server exposes a JTAG adapter as an XVC agent. Connections are served
// concurrently but adapter access is serialized.
type Server struct {
	adapter   jtag.Adapter
	maxVector int
	log       *slog.Logger

	mu    sync.Mutex // guards adapter
	conns sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxVectorBytes sets the advertised vector length.
func WithMaxVectorBytes(n int) ServerOption {
	return func(s *Server) {
		s.maxVector = n
	}
}

// WithServerLogger routes server diagnostics to l.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// NewServer creates an agent backed by adapter.
func NewServer(adapter jtag.Adapter, opts ...ServerOption) *Server {
	s := &Server{
		adapter:   adapter,
		maxVector: DefaultMaxVectorBytes,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections on ln until ctx is cancelled or ln fails. It
// closes ln and waits for active connections before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("xvc agent listening", slog.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			stopped := ctx.Err() != nil
			cancel()
			s.conns.Wait()
			if stopped {
				return nil
			}
			return fmt.Errorf("xvc: accept: %w", err)
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			if err := s.ServeConn(ctx, conn); err != nil {
				s.log.Warn("connection closed", slog.String("peer", conn.RemoteAddr().String()), slog.Any("error", err))
			}
		}()
	}
}

// ServeConn handles requests on conn until the peer disconnects, a protocol
// error occurs or ctx is cancelled. A clean disconnect returns nil.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	peer := conn.RemoteAddr().String()
	s.log.Debug("client connected", slog.String("peer", peer))

	r := bufio.NewReader(conn)
	for {
		cmd, err := readCommand(r)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				s.log.Debug("client disconnected", slog.String("peer", peer))
				return nil
			}
			return err
		}

		var reply []byte
		switch cmd {
		case cmdGetInfo:
			reply = fmt.Appendf(nil, "%s%d\n", infoPrefix, s.maxVector)
		case cmdSetTCK:
			reply, err = s.setTCK(r)
		case cmdShift:
			reply, err = s.shift(r)
		default:
			err = fmt.Errorf("xvc: unknown command %q", cmd)
		}
		if err != nil {
			return err
		}
		if err := writeFull(conn, reply); err != nil {
			return fmt.Errorf("xvc: write reply: %w", err)
		}
	}
}

// readCommand reads a command tag up to and including ':'.
func readCommand(r *bufio.Reader) (string, error) {
	var tag []byte
	for len(tag) < maxCommandLen {
		b, err := r.ReadByte()
		if err != nil {
			if len(tag) > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		tag = append(tag, b)
		if b == ':' {
			return string(tag), nil
		}
	}
	return "", fmt.Errorf("xvc: unknown command %q", tag)
}

func (s *Server) setTCK(r io.Reader) ([]byte, error) {
	var field [4]byte
	if _, err := io.ReadFull(r, field[:]); err != nil {
		return nil, fmt.Errorf("xvc: read settck: %w", err)
	}
	period := binary.LittleEndian.Uint32(field[:])

	hz := HzFromPeriod(period)
	s.mu.Lock()
	err := s.adapter.SetSpeed(hz)
	s.mu.Unlock()
	if err != nil {
		// The reply reports the period requested; the adapter keeps its
		// previous clock.
		s.log.Warn("set TCK failed", slog.Int("hz", hz), slog.Any("error", err))
	} else {
		s.log.Debug("set TCK", slog.Int("hz", hz), slog.Uint64("period_ns", uint64(period)))
	}
	return field[:], nil
}

func (s *Server) shift(r io.Reader) ([]byte, error) {
	var field [4]byte
	if _, err := io.ReadFull(r, field[:]); err != nil {
		return nil, fmt.Errorf("xvc: read shift length: %w", err)
	}
	bits := binary.LittleEndian.Uint32(field[:])
	n := ShiftBytes(bits)
	if 2*n > s.maxVector {
		return nil, fmt.Errorf("xvc: shift of %d bits exceeds vector length %d", bits, s.maxVector)
	}

	vectors := make([]byte, 2*n)
	if _, err := io.ReadFull(r, vectors); err != nil {
		return nil, fmt.Errorf("xvc: read shift vectors: %w", err)
	}
	if bits == 0 {
		return nil, nil
	}

	s.mu.Lock()
	tdo, err := s.adapter.Shift(vectors[:n], vectors[n:], int(bits))
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("xvc: shift %d bits: %w", bits, err)
	}
	s.log.Debug("shift", slog.Uint64("bits", uint64(bits)))

	reply := make([]byte, n)
	copy(reply, tdo)
	return reply, nil
}
