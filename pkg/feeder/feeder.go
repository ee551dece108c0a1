// Package feeder lets a host program push bytes into a running child's
// stdin on demand, independent of how much the child has already
// consumed.
package feeder

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrClosed is returned by Feed once the Feeder has been closed.
var ErrClosed = errors.New("feeder: closed")

// Feeder is a host-owned write end of an OS pipe whose read end is handed
// to a child as its stdin.
type Feeder struct {
	mu     sync.Mutex
	r      *os.File
	w      *os.File
	closed bool
}

// New creates a Feeder backed by a real OS pipe (os.Pipe), so its read end
// can be installed directly as an exec.Cmd's Stdin without a copying
// goroutine.
func New() (*Feeder, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("feeder: create pipe: %w", err)
	}
	return &Feeder{r: r, w: w}, nil
}

// ReadFile returns the pipe's read end, for the pipeline executor to
// install as a child's stdin.
func (f *Feeder) ReadFile() *os.File { return f.r }

// Fd returns the read end's file descriptor, mirroring spec.md §4.6's
// fileno().
func (f *Feeder) Fd() uintptr { return f.r.Fd() }

// Feed writes b to the pipe's write end, blocking if the child hasn't
// drained enough of the pipe buffer. Fails with ErrClosed once Close has
// been called.
func (f *Feeder) Feed(b []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, ErrClosed
	}
	w := f.w
	f.mu.Unlock()
	return w.Write(b)
}

// FeedString UTF-8 encodes s and feeds it.
func (f *Feeder) FeedString(s string) (int, error) {
	return f.Feed([]byte(s))
}

// Close closes both ends of the pipe. Idempotent.
func (f *Feeder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	errR := f.r.Close()
	errW := f.w.Close()
	if errR != nil {
		return errR
	}
	return errW
}
