package fmtx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// whatever it wrote. PrintErrChain/PrintErrChainDebug write directly to
// os.Stdout, so this is the only way to assert on their output.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestPrintErrChainNil(t *testing.T) {
	out := captureStdout(t, func() { PrintErrChain(nil) })
	require.Equal(t, "<nil>\n", out)
}

func TestPrintErrChainWalksWraps(t *testing.T) {
	base := &os.PathError{Op: "open", Path: "missing", Err: os.ErrNotExist}
	wrapped := fmt.Errorf("spawn: %w", base)

	out := captureStdout(t, func() { PrintErrChain(wrapped) })
	require.Contains(t, out, "[0]")
	require.Contains(t, out, "spawn:")
	require.Contains(t, out, "[1]")
	require.Contains(t, out, "*fs.PathError")
}

func TestPrintErrChainDebugDumpsFields(t *testing.T) {
	base := &os.PathError{Op: "open", Path: "missing", Err: os.ErrNotExist}
	wrapped := fmt.Errorf("spawn: %w", base)

	out := captureStdout(t, func() { PrintErrChainDebug(wrapped) })
	require.Contains(t, out, "[0]")
	require.Contains(t, out, "[1]")
	require.Contains(t, out, "*fs.PathError")
	require.Contains(t, out, "Field Path")
	require.Contains(t, out, "missing")
}
