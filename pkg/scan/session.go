// Package scan packs JTAG clock cycles into byte-aligned bit planes and
// flushes them to a remote agent, verifying the returned TDO under mask.
//
// A Session is single-threaded: the playback engine drives it through
// sequential calls and no locking is performed. The first failure latches
// the session; every later operation returns AlreadyFailed without touching
// the planes or the link.
package scan

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultCapacity is the per-plane buffer size in bytes.
const DefaultCapacity = 1024

// Link transmits one batch of accumulated cycles to the remote agent and
// fills tdo with the observed scan-out. tms, tdi and tdo all hold
// ceil(bits/8) bytes.
type Link interface {
	Shift(ctx context.Context, bits uint32, tms, tdi, tdo []byte) error
}

// Stats counts session activity since the last Reset.
type Stats struct {
	Flushes       int // flushes that performed I/O
	AutoFlushes   int // flushes forced by a full buffer
	BitsSent      int64
	BytesCompared int
}

// Session is the sole mutable state of a playback run.
type Session struct {
	link   Link
	ctx    context.Context
	log    *slog.Logger
	size   int
	planes planeSet
	tdo    []byte // observed scan-out scratch

	failure Result // first failing result, Ok while healthy
	stats   Stats
}

// Option configures a Session.
type Option func(*Session)

// WithCapacity sets the per-plane buffer size in bytes.
func WithCapacity(bytes int) Option {
	return func(s *Session) {
		s.size = bytes
	}
}

// WithLogger routes session diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithContext sets the context handed to the link on every flush.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.ctx = ctx
	}
}

// New creates an empty session flushing to link.
func New(link Link, opts ...Option) (*Session, error) {
	if link == nil {
		return nil, fmt.Errorf("scan: nil link")
	}
	s := &Session{
		link: link,
		ctx:  context.Background(),
		log:  slog.New(slog.DiscardHandler),
		size: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.size <= 0 {
		return nil, fmt.Errorf("scan: capacity must be positive, got %d", s.size)
	}
	s.planes = newPlaneSet(s.size)
	s.tdo = make([]byte, s.size)
	return s, nil
}

// Reset clears all planes, rewinds the cursor and clears the latched
// failure. It is the only way out of the failed state.
func (s *Session) Reset() {
	s.planes.clear()
	s.failure = okResult
	s.stats = Stats{}
}

// Capacity returns the per-plane buffer size in bytes.
func (s *Session) Capacity() int {
	return s.planes.capacity()
}

// Pending returns the number of cycles recorded but not yet flushed.
func (s *Session) Pending() int {
	return s.planes.cur.Bits()
}

// Cursor returns the position of the next bit to be written.
func (s *Session) Cursor() Cursor {
	return s.planes.cur
}

// Failed reports whether a failure has been latched.
func (s *Session) Failed() bool {
	return !s.failure.OK()
}

// Failure returns the latched failure, or nil.
func (s *Session) Failure() error {
	return s.failure.Err
}

// Stats returns activity counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// alreadyFailed builds the short-circuit result for a latched session.
func (s *Session) alreadyFailed() Result {
	return Result{
		Outcome: AlreadyFailed,
		Err:     fmt.Errorf("%w: %w", ErrAlreadyFailed, s.failure.Err),
	}
}

func (s *Session) latch(r Result) Result {
	if s.failure.OK() {
		s.failure = r
	}
	return r
}
