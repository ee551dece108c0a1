// Package capture multiplexes one or more child output streams into a
// single thread-safe, append-only byte buffer while the child is still
// running.
//
// The reader-goroutine-per-stream shape is grounded on the teacher's
// internal/infrastructure/processmgr "supervise" pattern (a goroutine per
// pipe, draining with a bufio.Scanner, reporting completion over a
// channel); this package generalizes that from "exactly stdout+stderr of
// one process" to "any number of attached streams feeding one buffer."
package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
)

// forever is used internally where a caller wants to block until the
// capture drains rather than until a wall-clock timeout.
const forever = 365 * 24 * time.Hour

// Option configures a Capture at construction time.
type Option func(*Capture)

// WithBufferSize sets the flush granularity: 0 = unbuffered (flush on every
// underlying Read), -1 = line-buffered (flush at newline boundaries), >0 =
// block-buffered with that fixed chunk size.
func WithBufferSize(n int) Option { return func(c *Capture) { c.bufferSize = n } }

// WithTimeout sets the default timeout applied to blocking Read/ReadLine/
// Expect calls that don't specify one explicitly (timeout <= 0).
func WithTimeout(d time.Duration) Option { return func(c *Capture) { c.timeout = d } }

// WithLogger attaches a logger for reader-goroutine failures. A nil logger
// (the default if this option is omitted) is replaced with zap.NewNop(),
// matching the teacher's nilable-logger constructor convention.
func WithLogger(log *zap.Logger) Option {
	return func(c *Capture) {
		if log != nil {
			c.log = log
		}
	}
}

// MatchResult is the outcome of a successful Expect call: the matched
// bytes and their byte offsets within the full accumulated buffer.
type MatchResult struct {
	Match []byte
	Start int
	End   int
}

// Capture is an append-only byte buffer fed by background reader
// goroutines, one per attached stream via AddStream. All exported methods
// are safe for concurrent use.
type Capture struct {
	mu sync.Mutex

	buf       []byte
	readPos   int // forward cursor for Read/ReadLine
	expectPos int // forward cursor for Expect, advances past each match

	active int  // number of reader goroutines still running
	closed bool // Close has been called: no more streams will be added

	notify chan struct{} // closed and replaced on every state change

	bufferSize int
	timeout    time.Duration
	log        *zap.Logger

	wg sync.WaitGroup
}

// New constructs a Capture. Default buffer_size is 0 (unbuffered); default
// timeout is 5s.
func New(opts ...Option) *Capture {
	c := &Capture{
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
		notify:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wake signals all goroutines currently blocked waiting on c.notify.
// Must be called with c.mu held.
func (c *Capture) wake() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// AddStream spawns a reader goroutine that drains r and appends everything
// it reads to the buffer. Safe to call before or after Close.
func (c *Capture) AddStream(r io.Reader) {
	c.mu.Lock()
	c.active++
	c.mu.Unlock()

	c.wg.Add(1)
	go c.drain(r)
}

func (c *Capture) drain(r io.Reader) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.active--
		c.wake()
		c.mu.Unlock()
	}()
	// The stream is typically our end of a pipe installed by pkg/command;
	// closing it here once it's drained saves callers from having to track
	// it separately.
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	switch {
	case c.bufferSize < 0:
		c.drainLines(r)
	case c.bufferSize == 0:
		c.drainUnbuffered(r)
	default:
		c.drainBlocks(r)
	}
}

func (c *Capture) drainLines(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			c.append(line)
		}
		if err != nil {
			if err != io.EOF {
				c.log.Warn("capture: line-buffered stream read failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Capture) drainUnbuffered(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.append(chunk)
		}
		if err != nil {
			if err != io.EOF {
				c.log.Warn("capture: unbuffered stream read failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Capture) drainBlocks(r io.Reader) {
	buf := make([]byte, c.bufferSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.append(chunk)
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				c.log.Warn("capture: block-buffered stream read failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Capture) append(b []byte) {
	if len(b) == 0 {
		return
	}
	c.mu.Lock()
	c.buf = append(c.buf, b...)
	c.wake()
	c.mu.Unlock()
}

// drainedLocked reports whether every attached stream has EOFed and no
// more will be added. Must be called with c.mu held.
func (c *Capture) drainedLocked() bool {
	return c.closed && c.active == 0
}

func effectiveTimeout(requested, fallback time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return fallback
}

// Read returns up to n bytes from the current position (or everything
// currently available if n < 0). With block=true it waits until n bytes
// are available, the capture drains, or timeout elapses -- on timeout it
// returns whatever is available, never an error (per the library's
// no-kill timeout sentinel convention).
func (c *Capture) Read(n int, block bool, timeout time.Duration) []byte {
	deadline := time.Now().Add(effectiveTimeout(timeout, c.timeout))
	for {
		c.mu.Lock()
		avail := len(c.buf) - c.readPos
		satisfied := c.drainedLocked() || avail > 0
		if n >= 0 {
			satisfied = c.drainedLocked() || avail >= n
		}
		if satisfied || !block {
			take := avail
			if n >= 0 && n < avail {
				take = n
			}
			if take < 0 {
				take = 0
			}
			out := make([]byte, take)
			copy(out, c.buf[c.readPos:c.readPos+take])
			c.readPos += take
			c.mu.Unlock()
			return out
		}
		notify := c.notify
		c.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.Read(n, false, 0)
		}
		select {
		case <-notify:
		case <-time.After(remaining):
			return c.Read(n, false, 0)
		}
	}
}

// ReadLine returns bytes up to and including the next '\n', or the next
// size bytes if no newline arrives first (size < 0 means no such limit),
// or whatever remains once the capture drains.
func (c *Capture) ReadLine(size int, block bool, timeout time.Duration) []byte {
	deadline := time.Now().Add(effectiveTimeout(timeout, c.timeout))
	for {
		c.mu.Lock()
		chunk := c.buf[c.readPos:]
		if idx := bytes.IndexByte(chunk, '\n'); idx >= 0 {
			take := idx + 1
			out := append([]byte(nil), chunk[:take]...)
			c.readPos += take
			c.mu.Unlock()
			return out
		}
		if size >= 0 && len(chunk) >= size {
			out := append([]byte(nil), chunk[:size]...)
			c.readPos += size
			c.mu.Unlock()
			return out
		}
		if c.drainedLocked() || !block {
			out := append([]byte(nil), chunk...)
			c.readPos += len(chunk)
			c.mu.Unlock()
			return out
		}
		notify := c.notify
		c.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.ReadLine(size, false, 0)
		}
		select {
		case <-notify:
		case <-time.After(remaining):
			return c.ReadLine(size, false, 0)
		}
	}
}

// ReadLines blocks until the capture drains and returns every remaining
// line, each including its trailing '\n' except possibly the last.
func (c *Capture) ReadLines() [][]byte {
	var out [][]byte
	for {
		line := c.ReadLine(-1, true, forever)
		if len(line) == 0 {
			return out
		}
		out = append(out, line)
	}
}

// Lines returns a channel of successive lines, closed once the capture
// drains. This is the iteration form spec.md §4.5 describes.
func (c *Capture) Lines() <-chan []byte {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for {
			line := c.ReadLine(-1, true, forever)
			if len(line) == 0 {
				return
			}
			ch <- line
		}
	}()
	return ch
}

// Expect waits for pattern (applied in MULTILINE mode) to match bytes
// appended since the last successful Expect call, returning the match or
// nil on timeout / drain-without-match. A malformed pattern is returned as
// an error immediately.
func (c *Capture) Expect(pattern string, timeout time.Duration) (*MatchResult, error) {
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("capture: invalid expect pattern %q: %w", pattern, err)
	}

	deadline := time.Now().Add(effectiveTimeout(timeout, c.timeout))
	for {
		c.mu.Lock()
		tail := c.buf[c.expectPos:]
		if loc := re.FindIndex(tail); loc != nil {
			start := c.expectPos + loc[0]
			end := c.expectPos + loc[1]
			m := &MatchResult{
				Match: append([]byte(nil), c.buf[start:end]...),
				Start: start,
				End:   end,
			}
			c.expectPos = end
			c.mu.Unlock()
			return m, nil
		}
		if c.drainedLocked() {
			c.mu.Unlock()
			return nil, nil
		}
		notify := c.notify
		c.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-notify:
		case <-time.After(remaining):
			return nil, nil
		}
	}
}

// Bytes returns a copy of everything accumulated so far.
func (c *Capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

// Text returns Bytes decoded as UTF-8.
func (c *Capture) Text() string {
	return string(c.Bytes())
}

// Close signals that no further streams will be added. If drain is true it
// blocks until every reader goroutine has exited, guaranteeing Bytes/Text
// reflect the complete output.
func (c *Capture) Close(drain bool) {
	c.mu.Lock()
	c.closed = true
	c.wake()
	c.mu.Unlock()

	if drain {
		c.wg.Wait()
	}
}
