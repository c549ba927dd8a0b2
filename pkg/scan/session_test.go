package scan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type shiftCall struct {
	Bits uint32
	TMS  []byte
	TDI  []byte
}

// fakeLink records every batch and answers with respond (zeros when nil).
type fakeLink struct {
	calls   []shiftCall
	respond func(call shiftCall, tdo []byte)
	err     error
}

func (f *fakeLink) Shift(_ context.Context, bits uint32, tms, tdi, tdo []byte) error {
	call := shiftCall{Bits: bits, TMS: bytes.Clone(tms), TDI: bytes.Clone(tdi)}
	f.calls = append(f.calls, call)
	if f.err != nil {
		return f.err
	}
	if f.respond != nil {
		f.respond(call, tdo)
	}
	return nil
}

func newTestSession(t *testing.T, link Link, capacity int) *Session {
	t.Helper()
	s, err := New(link, WithCapacity(capacity))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s
}

func mustOK(t *testing.T, r Result) {
	t.Helper()
	if !r.OK() {
		t.Fatalf("unexpected result: %v", r)
	}
}

func TestFiveTMSCyclesPackLSBFirst(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, DefaultCapacity)

	for i := 0; i < 5; i++ {
		mustOK(t, s.RecordCycle(Cycle{TMS: true}))
	}
	mustOK(t, s.Flush())

	want := []shiftCall{{Bits: 5, TMS: []byte{0x1F}, TDI: []byte{0x00}}}
	if diff := cmp.Diff(want, link.calls); diff != "" {
		t.Fatalf("shift calls mismatch (-want +got):\n%s", diff)
	}
	if s.Pending() != 0 || s.Cursor() != origin {
		t.Fatalf("cursor not rewound: pending=%d cursor=%+v", s.Pending(), s.Cursor())
	}
}

func TestFlushTransmitsCeilBytes(t *testing.T) {
	for _, bits := range []int{1, 7, 8, 9, 63, 64, 65, 127} {
		link := &fakeLink{}
		s := newTestSession(t, link, 16)
		for i := 0; i < bits; i++ {
			mustOK(t, s.RecordCycle(Cycle{TDI: i%2 == 0}))
		}
		mustOK(t, s.Flush())

		if len(link.calls) != 1 {
			t.Fatalf("bits=%d: got %d flushes, want 1", bits, len(link.calls))
		}
		call := link.calls[0]
		wantBytes := (bits + 7) / 8
		if int(call.Bits) != bits || len(call.TMS) != wantBytes || len(call.TDI) != wantBytes {
			t.Fatalf("bits=%d: got bits=%d tms=%d tdi=%d bytes, want %d bytes",
				bits, call.Bits, len(call.TMS), len(call.TDI), wantBytes)
		}
	}
}

func TestSecondFlushIsNoop(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, 4)

	mustOK(t, s.RecordCycle(Cycle{TMS: true}))
	mustOK(t, s.Flush())
	mustOK(t, s.Flush())

	if len(link.calls) != 1 {
		t.Fatalf("got %d flushes, want 1", len(link.calls))
	}
}

func TestOverflowTriggersSingleAutoFlush(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, 2)

	for i := 0; i < 16; i++ {
		mustOK(t, s.RecordCycle(Cycle{TMS: true}))
	}
	mustOK(t, s.RecordCycle(Cycle{TMS: true, TDI: true}))

	want := []shiftCall{{Bits: 16, TMS: []byte{0xFF, 0xFF}, TDI: []byte{0x00, 0x00}}}
	if diff := cmp.Diff(want, link.calls); diff != "" {
		t.Fatalf("shift calls mismatch (-want +got):\n%s", diff)
	}
	if got := s.Stats().AutoFlushes; got != 1 {
		t.Fatalf("AutoFlushes = %d, want 1", got)
	}
	if got := s.Cursor(); got != (Cursor{Byte: 0, Bit: 0x02}) {
		t.Fatalf("cursor = %+v, want overflow bit recorded at origin", got)
	}
	if s.planes.buf[PlaneTMS][0] != 0x01 || s.planes.buf[PlaneTDI][0] != 0x01 {
		t.Fatalf("overflow bit not at origin: tms=%02x tdi=%02x",
			s.planes.buf[PlaneTMS][0], s.planes.buf[PlaneTDI][0])
	}
}

func TestSyncAfterAutoFlushDoesNotFlushTwice(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, 1)

	for i := 0; i < 7; i++ {
		mustOK(t, s.RecordCycle(Cycle{}))
	}
	mustOK(t, s.RecordCycle(Cycle{Sync: true}))

	if len(link.calls) != 1 || link.calls[0].Bits != 8 {
		t.Fatalf("calls = %+v, want a single 8-bit flush", link.calls)
	}
}

func TestSyncFlushesImmediately(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, 8)

	mustOK(t, s.RecordCycle(Cycle{TMS: true}))
	mustOK(t, s.RecordCycle(Cycle{TDI: true, Sync: true}))

	want := []shiftCall{{Bits: 2, TMS: []byte{0x01}, TDI: []byte{0x02}}}
	if diff := cmp.Diff(want, link.calls); diff != "" {
		t.Fatalf("shift calls mismatch (-want +got):\n%s", diff)
	}
}

func TestOnlyComparedCyclesSetMask(t *testing.T) {
	s := newTestSession(t, &fakeLink{}, 4)

	mustOK(t, s.RecordCycle(Cycle{TMS: true, TDO: true}))         // TDO ignored
	mustOK(t, s.RecordCycle(Cycle{TDO: true, Compare: true}))     // bit 1
	mustOK(t, s.RecordCycle(Cycle{TDO: false, Compare: true}))    // bit 2, mask only
	mustOK(t, s.RecordCycle(Cycle{TDI: true, TDO: true}))         // TDO ignored

	if got := s.planes.buf[PlaneMask][0]; got != 0x06 {
		t.Fatalf("mask = %02x, want 06", got)
	}
	if got := s.planes.buf[PlaneTDO][0]; got != 0x02 {
		t.Fatalf("expected tdo = %02x, want 02", got)
	}
}

func TestWaitNeverSetsMask(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, 4)

	var masks [][]byte
	link.respond = func(call shiftCall, tdo []byte) {
		masks = append(masks, bytes.Clone(s.planes.bytes(PlaneMask, len(tdo))))
		for i := range tdo {
			tdo[i] = 0xFF
		}
	}

	mustOK(t, s.Wait(true, 40))

	if len(masks) != 2 {
		t.Fatalf("got %d flushes, want 2 (one automatic, one final)", len(masks))
	}
	for i, m := range masks {
		if !bytes.Equal(m, make([]byte, len(m))) {
			t.Fatalf("flush %d carried mask %X, want all zero", i, m)
		}
	}
	if link.calls[0].Bits != 32 || link.calls[1].Bits != 8 {
		t.Fatalf("flush sizes = %d/%d, want 32/8", link.calls[0].Bits, link.calls[1].Bits)
	}
}

func TestWaitZeroCyclesStillFlushes(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, 4)

	mustOK(t, s.Wait(false, 0))
	if len(link.calls) != 0 {
		t.Fatalf("empty wait performed %d flushes, want 0", len(link.calls))
	}

	mustOK(t, s.RecordCycle(Cycle{TMS: true}))
	mustOK(t, s.RecordCycle(Cycle{TMS: true}))
	mustOK(t, s.Wait(false, 0))
	if len(link.calls) != 1 || link.calls[0].Bits != 2 {
		t.Fatalf("calls = %+v, want pending 2 bits drained", link.calls)
	}
}

func TestMismatchShortCircuitsAndLatches(t *testing.T) {
	link := &fakeLink{
		respond: func(_ shiftCall, tdo []byte) {
			tdo[1] = 0x04
			tdo[3] = 0xFF
		},
	}
	s := newTestSession(t, link, 8)

	for i := 0; i < 32; i++ {
		mustOK(t, s.RecordCycle(Cycle{Compare: true}))
	}
	r := s.Flush()

	if r.Outcome != VerificationMismatch {
		t.Fatalf("outcome = %v, want %v", r.Outcome, VerificationMismatch)
	}
	var mismatch *MismatchError
	if !errors.As(r.Err, &mismatch) {
		t.Fatalf("error %v is not a *MismatchError", r.Err)
	}
	want := MismatchError{Index: 1, Observed: 0x04, Mask: 0xFF, Expected: 0x00}
	if diff := cmp.Diff(want, *mismatch); diff != "" {
		t.Fatalf("mismatch detail (-want +got):\n%s", diff)
	}
	if got := s.Stats().BytesCompared; got != 2 {
		t.Fatalf("BytesCompared = %d, want 2", got)
	}
	if !s.Failed() || !errors.Is(s.Failure(), ErrVerification) {
		t.Fatalf("session not latched: failed=%v failure=%v", s.Failed(), s.Failure())
	}
}

func TestFailedSessionShortCircuits(t *testing.T) {
	link := &fakeLink{respond: func(_ shiftCall, tdo []byte) { tdo[0] = 0x01 }}
	s := newTestSession(t, link, 8)

	if r := s.RecordCycle(Cycle{Compare: true, Sync: true}); r.Outcome != VerificationMismatch {
		t.Fatalf("outcome = %v, want %v", r.Outcome, VerificationMismatch)
	}
	cursor := s.Cursor()

	for _, r := range []Result{
		s.RecordCycle(Cycle{TMS: true, TDI: true, Compare: true, Sync: true}),
		s.Wait(true, 10),
		s.Flush(),
	} {
		if r.Outcome != AlreadyFailed {
			t.Fatalf("outcome = %v, want %v", r.Outcome, AlreadyFailed)
		}
		if !errors.Is(r.Err, ErrAlreadyFailed) || !errors.Is(r.Err, ErrVerification) {
			t.Fatalf("error %v does not wrap the latched failure", r.Err)
		}
	}
	if len(link.calls) != 1 {
		t.Fatalf("failed session performed %d extra flushes", len(link.calls)-1)
	}
	if s.Cursor() != cursor || s.planes.buf[PlaneTMS][0] != 0 {
		t.Fatalf("failed session mutated planes")
	}
}

func TestLinkErrorIsConnectivity(t *testing.T) {
	link := &fakeLink{err: io.ErrUnexpectedEOF}
	s := newTestSession(t, link, 1)

	r := s.Wait(true, 20)
	if r.Outcome != ConnectivityError {
		t.Fatalf("outcome = %v, want %v", r.Outcome, ConnectivityError)
	}
	if !errors.Is(r.Err, ErrConnectivity) || !errors.Is(r.Err, io.ErrUnexpectedEOF) {
		t.Fatalf("error %v does not wrap connectivity cause", r.Err)
	}
	if len(link.calls) != 1 {
		t.Fatalf("wait continued after failure: %d flushes", len(link.calls))
	}
	if s.Pending() != 8 {
		t.Fatalf("pending = %d, want the failed batch kept (8)", s.Pending())
	}
}

func TestAutoFlushMismatchFailsRecord(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(t, link, 1)

	for i := 0; i < 7; i++ {
		mustOK(t, s.RecordCycle(Cycle{TDO: true, Compare: true}))
	}
	r := s.RecordCycle(Cycle{TDO: true, Compare: true})
	if r.Outcome != VerificationMismatch {
		t.Fatalf("outcome = %v, want %v", r.Outcome, VerificationMismatch)
	}
}

func TestResetClearsFailure(t *testing.T) {
	link := &fakeLink{err: io.EOF}
	s := newTestSession(t, link, 2)

	s.RecordCycle(Cycle{Sync: true})
	if !s.Failed() {
		t.Fatalf("expected failed session")
	}

	s.Reset()
	link.err = nil
	if s.Failed() || s.Pending() != 0 || s.Stats() != (Stats{}) {
		t.Fatalf("Reset left state behind: failed=%v pending=%d", s.Failed(), s.Pending())
	}
	mustOK(t, s.RecordCycle(Cycle{TMS: true, Sync: true}))
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil link")
	}
	if _, err := New(&fakeLink{}, WithCapacity(0)); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
	s, err := New(&fakeLink{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if s.Capacity() != DefaultCapacity {
		t.Fatalf("Capacity = %d, want %d", s.Capacity(), DefaultCapacity)
	}
}

func TestCursorBits(t *testing.T) {
	cases := []struct {
		cur   Cursor
		bits  int
		bytes int
	}{
		{origin, 0, 0},
		{Cursor{Byte: 0, Bit: 0x20}, 5, 1},
		{Cursor{Byte: 1, Bit: 0x01}, 8, 1},
		{Cursor{Byte: 2, Bit: 0x80}, 23, 3},
	}
	for _, tc := range cases {
		if got := tc.cur.Bits(); got != tc.bits {
			t.Fatalf("%+v.Bits() = %d, want %d", tc.cur, got, tc.bits)
		}
		if got := tc.cur.Bytes(); got != tc.bytes {
			t.Fatalf("%+v.Bytes() = %d, want %d", tc.cur, got, tc.bytes)
		}
	}
}
