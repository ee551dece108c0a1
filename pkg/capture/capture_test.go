package capture

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/edirooss/procpipe/internal/testhelper"
	"github.com/stretchr/testify/require"
)

func TestCaptureOrdering(t *testing.T) {
	c := New()
	c.AddStream(strings.NewReader("foofoo"))
	c.Close(true)

	require.Equal(t, []byte("foo"), c.Read(3, false, 0))
	require.Equal(t, []byte("foo"), c.Read(3, false, 0))
	require.Empty(t, c.Read(-1, false, 0))
}

func TestCaptureBlockingReadWaitsForData(t *testing.T) {
	pr, pw := io.Pipe()
	c := New(WithTimeout(time.Second))
	c.AddStream(pr)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("hello"))
		_ = pw.Close()
	}()

	got := c.Read(5, true, time.Second)
	require.Equal(t, []byte("hello"), got)
}

func TestCaptureReadTimeoutReturnsPartial(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := New()
	c.AddStream(pr)

	got := c.Read(10, true, 20*time.Millisecond)
	require.Empty(t, got)
}

func TestCaptureReadLines(t *testing.T) {
	c := New()
	c.AddStream(strings.NewReader("a\nb\nc"))
	c.Close(true)

	lines := c.ReadLines()
	require.Equal(t, [][]byte{[]byte("a\n"), []byte("b\n"), []byte("c")}, lines)
}

func TestCaptureExpectSequentialMatches(t *testing.T) {
	pr, pw := io.Pipe()
	c := New(WithTimeout(2 * time.Second))
	c.AddStream(pr)
	go func() {
		testhelper.RunLister(pw, 10, 10*time.Millisecond)
		pw.Close()
	}()

	m1, err := c.Expect(`^line 1\r?$`, time.Second)
	require.NoError(t, err)
	require.NotNil(t, m1)
	require.Equal(t, "line 1", string(m1.Match))

	m2, err := c.Expect(`^line 5\r?$`, time.Second)
	require.NoError(t, err)
	require.NotNil(t, m2)
	require.Equal(t, "line 5", string(m2.Match))

	m3, err := c.Expect(`^line 1.*\r?$`, time.Second)
	require.NoError(t, err)
	require.NotNil(t, m3)
	require.Equal(t, "line 10", string(m3.Match))
}

func TestCaptureExpectTimesOutWithoutMatch(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := New()
	c.AddStream(pr)

	m, err := c.Expect(`nope`, 20*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestCaptureLineBuffered(t *testing.T) {
	pr, pw := io.Pipe()
	c := New(WithBufferSize(-1))
	c.AddStream(pr)
	go func() {
		io.WriteString(pw, "one\ntwo\n")
		pw.Close()
	}()
	c.Close(true)
	require.Equal(t, "one\ntwo\n", c.Text())
}
