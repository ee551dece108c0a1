package quote

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShellQuoteBasic(t *testing.T) {
	require.Equal(t, "''", ShellQuote(""))
	require.Equal(t, "abc_123./-", ShellQuote("abc_123./-"))
	require.Equal(t, `'*.py'`, ShellQuote("*.py"))
}

func TestShellQuoteRoundTrip(t *testing.T) {
	s := `'\"; touch /tmp/foo #'`
	quoted := ShellQuote(s)
	out, err := exec.Command("sh", "-c", "echo "+quoted).Output()
	require.NoError(t, err)
	require.Equal(t, s+"\n", string(out))
}

func TestShellFormat(t *testing.T) {
	out, err := ShellFormat("ls {0}", "*.py")
	require.NoError(t, err)
	require.Equal(t, "ls '*.py'", out)

	out, err = ShellFormat("ls {0!s}", "*.py")
	require.NoError(t, err)
	require.Equal(t, "ls *.py", out)
}

func TestSplitRoundTrip(t *testing.T) {
	words, err := Split(`a "b c" 'd e'`)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b c", "d e"}, words)
}
