package xmodem

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// ReaderWithTimeout is an interface for reading with timeout support.
// It extends io.Reader with timeout capabilities.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// ctxPollInterval bounds how long a blocking read waits before looking at
// the context again.
const ctxPollInterval = 250 * time.Millisecond

// StreamChannel adapts a line (reader + writer) and a payload sink to the
// Channel interface. Reads are buffered; a byte seen by Available stays in
// the buffer for the next ReadByte.
type StreamChannel struct {
	reader ReaderWithTimeout
	writer io.Writer
	sink   io.Writer
	rbuf   []byte
	rpos   int
	rleft  int
	ctx    context.Context

	// noDeadline is set once the reader refuses deadlines
	noDeadline bool
}

// NewStreamChannel creates a Channel over reader/writer delivering payloads
// to sink.
//
// Parameters:
//   - reader: the line input (should support SetReadDeadline)
//   - writer: the line output
//   - sink: where accepted blocks are written
//   - bufsize: size of the read buffer (at least 1)
func NewStreamChannel(reader ReaderWithTimeout, writer io.Writer, sink io.Writer, bufsize int) *StreamChannel {
	if bufsize < 1 {
		bufsize = PacketSize
	}
	return &StreamChannel{
		reader: reader,
		writer: writer,
		sink:   sink,
		rbuf:   make([]byte, bufsize),
		ctx:    context.Background(),
	}
}

// SetContext sets the context for cancellation.
// A cancelled context makes every subsequent read fail.
func (s *StreamChannel) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// ReadByte returns the next buffered byte, blocking for more input when the
// buffer is empty.
func (s *StreamChannel) ReadByte() (byte, error) {
	if s.rleft > 0 {
		return s.take(), nil
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return 0, err
		}
		var deadline time.Time
		if s.ctx.Done() != nil {
			deadline = time.Now().Add(ctxPollInterval)
		}
		ok, err := s.fill(deadline)
		if err != nil {
			return 0, err
		}
		if ok {
			return s.take(), nil
		}
	}
}

// Available reports whether a byte arrives within timeout.
func (s *StreamChannel) Available(timeout time.Duration) (bool, error) {
	if s.rleft > 0 {
		return true, nil
	}
	if err := s.ctx.Err(); err != nil {
		return false, err
	}
	return s.fill(time.Now().Add(timeout))
}

// fill performs one read into the buffer. A zero deadline blocks.
// It returns false without error when the deadline expired first.
func (s *StreamChannel) fill(deadline time.Time) (bool, error) {
	if !s.noDeadline {
		if err := s.reader.SetReadDeadline(deadline); err != nil {
			if !errors.Is(err, os.ErrNoDeadline) {
				return false, err
			}
			s.noDeadline = true
		}
	}

	n, err := s.reader.Read(s.rbuf)
	if n > 0 {
		s.rpos = 0
		s.rleft = n
		return true, nil
	}
	if err != nil {
		if isTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return false, nil
}

func (s *StreamChannel) take() byte {
	b := s.rbuf[s.rpos]
	s.rpos++
	s.rleft--
	return b
}

// WriteByte writes a single byte to the line.
func (s *StreamChannel) WriteByte(b byte) error {
	if _, err := s.writer.Write([]byte{b}); err != nil {
		return err
	}
	return s.Flush()
}

// Flush flushes any buffered writes.
func (s *StreamChannel) Flush() error {
	if f, ok := s.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Delay waits for d or until the context is cancelled.
func (s *StreamChannel) Delay(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.ctx.Done():
	}
}

// WritePayload writes an accepted block to the sink.
func (s *StreamChannel) WritePayload(p []byte) (int, error) {
	return s.sink.Write(p)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// readResult carries one chunk from the pump goroutine.
type readResult struct {
	data []byte
	err  error
}

// deadlineReader gives an arbitrary reader deadline semantics by reading
// from it on a separate goroutine.
type deadlineReader struct {
	src     io.Reader
	results chan readResult
	once    sync.Once

	mu       sync.Mutex
	deadline time.Time

	pending []byte
	err     error
}

// NewDeadlineReader wraps r so that it supports SetReadDeadline. Reads that
// hit the deadline return os.ErrDeadlineExceeded and lose no data.
//
// The pump goroutine exits when r returns an error; a reader that blocks
// forever keeps it alive until the process ends.
func NewDeadlineReader(r io.Reader) ReaderWithTimeout {
	return &deadlineReader{
		src:     r,
		results: make(chan readResult),
	}
}

func (d *deadlineReader) pump() {
	for {
		buf := make([]byte, 512)
		n, err := d.src.Read(buf)
		if n > 0 || err != nil {
			d.results <- readResult{data: buf[:n], err: err}
		}
		if err != nil {
			close(d.results)
			return
		}
	}
}

func (d *deadlineReader) SetReadDeadline(t time.Time) error {
	d.mu.Lock()
	d.deadline = t
	d.mu.Unlock()
	return nil
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if len(d.pending) > 0 {
		n := copy(p, d.pending)
		d.pending = d.pending[n:]
		return n, nil
	}
	if d.err != nil {
		return 0, d.err
	}
	d.once.Do(func() { go d.pump() })

	d.mu.Lock()
	deadline := d.deadline
	d.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res, ok := <-d.results:
		if !ok {
			return 0, d.err
		}
		if res.err != nil {
			d.err = res.err
		}
		n := copy(p, res.data)
		d.pending = res.data[n:]
		if n == 0 {
			return 0, d.err
		}
		return n, nil
	case <-timeout:
		return 0, os.ErrDeadlineExceeded
	}
}
