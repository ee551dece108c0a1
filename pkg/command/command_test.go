package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edirooss/procpipe/pkg/capture"
)

func TestCommandRunsAndReportsExitCode(t *testing.T) {
	cmd, err := New([]string{"true"})
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	code, err := cmd.Wait(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestCommandNonZeroExit(t *testing.T) {
	cmd, err := New([]string{"false"})
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	code, err := cmd.Wait(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, code)
}

func TestCommandCapturesStdout(t *testing.T) {
	c := capture.New()
	cmd, err := New([]string{"sh", "-c", "echo hello"}, WithStdout(ToCapture(c)))
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	_, err = cmd.Wait(5 * time.Second)
	require.NoError(t, err)
	c.Close(true)
	require.Equal(t, "hello\n", c.Text())
}

func TestCommandNotFound(t *testing.T) {
	cmd, err := New([]string{"definitely-not-a-real-executable-xyz"})
	require.NoError(t, err)
	err = cmd.Start()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCommandShellString(t *testing.T) {
	c := capture.New()
	cmd, err := New("echo $((2+2))", WithShell(true), WithStdout(ToCapture(c)))
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	_, err = cmd.Wait(5 * time.Second)
	require.NoError(t, err)
	c.Close(true)
	require.Equal(t, "4\n", c.Text())
}

func TestCommandPollNonBlocking(t *testing.T) {
	cmd, err := New([]string{"sh", "-c", "sleep 0.2"})
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	require.Nil(t, cmd.Poll())
	_, err = cmd.Wait(5 * time.Second)
	require.NoError(t, err)
	code := cmd.Poll()
	require.NotNil(t, code)
	require.Equal(t, 0, *code)
}

func TestCommandWaitTimeout(t *testing.T) {
	cmd, err := New([]string{"sh", "-c", "sleep 1"})
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	_, err = cmd.Wait(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	_ = cmd.Kill()
}

func TestCommandStop(t *testing.T) {
	cmd, err := New([]string{"sh", "-c", "trap '' TERM; sleep 5"})
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	err = cmd.Stop(50 * time.Millisecond)
	require.NoError(t, err)
	code, err := cmd.Wait(time.Second)
	require.NoError(t, err)
	require.NotEqual(t, 0, code)
}

func TestCommandInvalidBindingRejected(t *testing.T) {
	c := capture.New()
	cmd, err := New([]string{"true"}, WithStdin(ToCapture(c)))
	require.NoError(t, err)
	err = cmd.Start()
	require.ErrorIs(t, err, ErrInvalidBinding)
}
