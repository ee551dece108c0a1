// Package testhelper provides small, controllable data sources used by the
// test suites in pkg/capture and pkg/feeder. They are Go
// ports of the fixtures original_source/ ships for exactly this purpose:
// lister.py (slow line emitter), echoer.py (line-doubling echo), and
// waiter.py (sleep-then-exit). Kept in-process (driven over an io.Pipe)
// rather than built as separate binaries, since nothing in this module's
// build is ever exercised through `go build`/`go test` by the harness that
// produced it; pkg/pipeline's own tests instead spawn real POSIX utilities
// (sh, cat, sleep, true, false) for end-to-end process coverage.
package testhelper

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// RunLister writes n lines ("line 1\n" .. "line N\n") to w, sleeping delay
// between consecutive lines. Grounded on original_source/lister.py, which
// spec.md §8's Expect scenario exercises directly.
func RunLister(w io.Writer, n int, delay time.Duration) {
	for i := 1; i <= n; i++ {
		fmt.Fprintf(w, "line %d\n", i)
		if i < n && delay > 0 {
			time.Sleep(delay)
		}
	}
}

// RunEchoer reads newline-terminated lines from r and writes each, doubled
// ("hello\n" -> "hello hello\n"), to w until r is exhausted. Grounded on
// original_source/echoer.py, used by spec.md §8's Feeder round-trip
// scenario.
func RunEchoer(r io.Reader, w io.Writer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		fmt.Fprintf(w, "%s %s\n", line, line)
	}
}

// RunWaiter blocks for d, the Go port of original_source/waiter.py's
// sleep-then-exit behavior, for in-process timeout tests that don't need a
// real child process.
func RunWaiter(d time.Duration) {
	time.Sleep(d)
}
