package procpipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	p, err := Retry("true", 3, time.Millisecond, WithAsync(false))
	require.NoError(t, err)
	require.Equal(t, 0, p.ReturnCode())
}

func TestRetryExhaustsAttemptsOnPersistentFailure(t *testing.T) {
	start := time.Now()
	_, err := Retry("false", 3, 10*time.Millisecond)
	require.Error(t, err)
	// The delay applies between attempts but not after the last one, so
	// 3 attempts sleep twice: >=20ms total.
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
