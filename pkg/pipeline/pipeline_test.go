package pipeline

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/procpipe/pkg/capture"
	"github.com/edirooss/procpipe/pkg/command"
)

func runCaptured(t *testing.T, source string) (*Pipeline, *capture.Capture) {
	t.Helper()
	c := capture.New()
	p, err := Run(source, WithStdout(command.ToCapture(c)))
	require.NoError(t, err)
	require.NoError(t, p.Wait(5*time.Second))
	c.Close(true)
	return p, c
}

func TestPipelineAndShortCircuit(t *testing.T) {
	_, c := runCaptured(t, "false && echo foo")
	require.Equal(t, "", c.Text())
}

func TestPipelineAndRunsRight(t *testing.T) {
	_, c := runCaptured(t, "true && echo foo")
	require.Equal(t, "foo\n", c.Text())
}

func TestPipelineOrSkipsOnSuccess(t *testing.T) {
	_, c := runCaptured(t, "true || echo foo")
	require.Equal(t, "", c.Text())
}

func TestPipelineOrRunsOnFailure(t *testing.T) {
	_, c := runCaptured(t, "false || echo foo")
	require.Equal(t, "foo\n", c.Text())
}

func TestPipelinePipeThenAnd(t *testing.T) {
	p, c := runCaptured(t, "false | cat && echo foo")
	require.Equal(t, "foo\n", c.Text())
	require.Equal(t, 0, p.ReturnCode())
}

func TestPipelineReturnCode(t *testing.T) {
	p, err := Run("false")
	require.NoError(t, err)
	require.NoError(t, p.Wait(5*time.Second))
	require.Equal(t, 1, p.ReturnCode())
}

func TestPipelineAsyncBackground(t *testing.T) {
	_, c := runCaptured(t, "echo foo & (sleep 0.2; echo bar) & (sleep 0.1; echo baz)")
	text := c.Text()
	require.Contains(t, text, "foo\n")
	require.Contains(t, text, "bar\n")
	require.Contains(t, text, "baz\n")
}

func TestPipelineLargeFileIntegrity(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	dst := filepath.Join(dir, "out.bin")

	blob := make([]byte, 20*1024*1024)
	_, err := rand.Read(blob)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, blob, 0644))

	p, err := Run("cat " + src + " | cat | cat | cat | cat | cat > " + dst)
	require.NoError(t, err)
	require.NoError(t, p.Wait(30*time.Second))
	require.Equal(t, 0, p.ReturnCode())

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, blob, got)
}

func TestPipelineWaitTimeout(t *testing.T) {
	// Run must be async here: a synchronous Run blocks inside runRoot
	// until "sleep 1" exits before ever returning, so p.done would
	// already be closed and Wait would never see the timeout.
	p, err := Run("sleep 1", WithAsync(true))
	require.NoError(t, err)

	err = p.Wait(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, []*int{nil}, p.ReturnCodes())

	require.NoError(t, p.Wait(5*time.Second))
	zero := 0
	require.Equal(t, []*int{&zero}, p.ReturnCodes())

	require.NoError(t, p.Close())
}

func TestPipelineWithInput(t *testing.T) {
	c := capture.New()
	p, err := Run("cat", WithInput([]byte("hello from test\n")), WithStdout(command.ToCapture(c)))
	require.NoError(t, err)
	require.NoError(t, p.Wait(5*time.Second))
	c.Close(true)
	require.Equal(t, "hello from test\n", c.Text())
}

func TestPipelineProcesses(t *testing.T) {
	p, err := Run("true | true")
	require.NoError(t, err)
	require.NoError(t, p.Wait(5*time.Second))
	require.Len(t, p.Processes(), 2)
}
