package feeder

import (
	"bufio"
	"os"
	"testing"

	"github.com/edirooss/procpipe/internal/testhelper"
	"github.com/stretchr/testify/require"
)

func TestFeederRoundTrip(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	go func() {
		testhelper.RunEchoer(f.ReadFile(), outW)
		outW.Close()
	}()

	_, err = f.FeedString("hello\n")
	require.NoError(t, err)
	_, err = f.FeedString("goodbye\n")
	require.NoError(t, err)

	// Close shuts the read end the in-process echoer is reading from, so
	// the echoed lines are collected before closing the Feeder.
	sc := bufio.NewScanner(outR)
	var lines []string
	for len(lines) < 2 && sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, f.Close())
	require.Equal(t, []string{"hello hello", "goodbye goodbye"}, lines)
}

func TestFeedAfterCloseFails(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = f.Feed([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}
