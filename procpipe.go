// Package procpipe is the library surface spec.md §6 describes: parse a
// shell-like command line, run it as a pipeline of child processes, and
// capture their output, without ever handing the expression to an actual
// shell.
//
// The heavy lifting lives in pkg/shlex (tokenizer), pkg/shparse (parser +
// tree), pkg/quote (quoting/formatting), pkg/capture, pkg/feeder,
// pkg/command, and pkg/pipeline (the executor); this package is a thin
// facade over them, the way sarge's top-level module functions are thin
// wrappers over its Pipeline/Capture classes.
package procpipe

import (
	"fmt"
	"io"
	"time"

	"github.com/edirooss/procpipe/internal/diag"
	"github.com/edirooss/procpipe/pkg/capture"
	"github.com/edirooss/procpipe/pkg/command"
	"github.com/edirooss/procpipe/pkg/pipeline"
	"github.com/edirooss/procpipe/pkg/quote"
	"github.com/edirooss/procpipe/pkg/shparse"
)

// Option re-exports pipeline.Option so callers need only import this
// package for the common case.
type Option = pipeline.Option

var (
	WithPosix       = pipeline.WithPosix
	WithShell       = pipeline.WithShell
	WithAsync       = pipeline.WithAsync
	WithCwd         = pipeline.WithCwd
	WithEnvOverlay  = pipeline.WithEnvOverlay
	WithReplaceEnv  = pipeline.WithReplaceEnv
	WithLogger      = pipeline.WithLogger
	WithStdin       = pipeline.WithStdin
	WithStdout      = pipeline.WithStdout
	WithStderr      = pipeline.WithStderr
	WithInput       = pipeline.WithInput
	WithInputFeeder = pipeline.WithInputFeeder
)

// Pipeline re-exports pkg/pipeline.Pipeline, the result of Run.
type Pipeline = pipeline.Pipeline

// Run parses source as a shell-like pipeline expression and executes it,
// per spec.md §6's run(...) entry point.
func Run(source string, opts ...Option) (*Pipeline, error) {
	return pipeline.Run(source, opts...)
}

// ParseCommandLine parses source without running anything, per spec.md
// §6's parse_command_line.
func ParseCommandLine(source string, posix bool) (shparse.Tree, error) {
	return shparse.ParseCommandLine(source, posix)
}

// ShellQuote POSIX-quotes s per spec.md §6/§9's fixed contract.
func ShellQuote(s string) string { return quote.ShellQuote(s) }

// ShellFormat formats template with positional substitutions, {n} quoted
// and {n!s} raw, per spec.md §6.
func ShellFormat(template string, args ...string) (string, error) {
	return quote.ShellFormat(template, args...)
}

// DumpStacks writes every goroutine's current stack trace to w, for
// diagnosing a pipeline or capture call that appears hung.
func DumpStacks(w io.Writer) error { return diag.DumpStacks(w) }

// captureRun runs source with a Capture attached to the requested
// stream(s) and waits for it to finish.
func captureRun(source string, toStdout, toStderr bool, opts ...Option) (*Pipeline, *capture.Capture, error) {
	c := capture.New()
	full := make([]Option, 0, len(opts)+2)
	full = append(full, opts...)
	if toStdout {
		full = append(full, WithStdout(command.ToCapture(c)))
	}
	if toStderr {
		full = append(full, WithStderr(command.ToCapture(c)))
	}
	p, err := Run(source, full...)
	if err != nil {
		return nil, nil, err
	}
	if err := p.Wait(0); err != nil {
		c.Close(true)
		return p, c, err
	}
	c.Close(true)
	return p, c, nil
}

// CaptureStdout attaches a Capture to stdout only, runs source to
// completion, and returns both.
func CaptureStdout(source string, opts ...Option) (*Pipeline, *capture.Capture, error) {
	return captureRun(source, true, false, opts...)
}

// CaptureStderr attaches a Capture to stderr only.
func CaptureStderr(source string, opts ...Option) (*Pipeline, *capture.Capture, error) {
	return captureRun(source, false, true, opts...)
}

// CaptureBoth merges stdout and stderr into a single Capture.
func CaptureBoth(source string, opts ...Option) (*Pipeline, *capture.Capture, error) {
	return captureRun(source, true, true, opts...)
}

// GetStdout runs source synchronously and returns its captured stdout as
// a UTF-8 string, per spec.md §6's get_stdout.
func GetStdout(source string, opts ...Option) (string, error) {
	_, c, err := CaptureStdout(source, opts...)
	if err != nil {
		return "", err
	}
	return c.Text(), nil
}

// GetStderr is GetStdout for stderr.
func GetStderr(source string, opts ...Option) (string, error) {
	_, c, err := CaptureStderr(source, opts...)
	if err != nil {
		return "", err
	}
	return c.Text(), nil
}

// GetBoth is GetStdout for the merged stdout+stderr stream.
func GetBoth(source string, opts ...Option) (string, error) {
	_, c, err := CaptureBoth(source, opts...)
	if err != nil {
		return "", err
	}
	return c.Text(), nil
}

// Retry runs source up to retries times (at least once), waiting delay
// between attempts, stopping as soon as one attempt exits 0. It ported
// from original_source/retrier.py's retry loop, generalized from a fixed
// CLI wrapper into a library helper.
func Retry(source string, retries int, delay time.Duration, opts ...Option) (*Pipeline, error) {
	if retries < 1 {
		retries = 1
	}
	var last *Pipeline
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		p, err := Run(source, opts...)
		if err != nil {
			return nil, err
		}
		waitErr := p.Wait(0)
		last, lastErr = p, waitErr
		if waitErr == nil && p.ReturnCode() == 0 {
			return p, nil
		}
		if delay > 0 && attempt < retries-1 {
			time.Sleep(delay)
		}
	}
	if lastErr != nil {
		return last, fmt.Errorf("procpipe: retry: %w", lastErr)
	}
	return last, fmt.Errorf("procpipe: %q failed after %d attempt(s), last exit code %d", source, retries, last.ReturnCode())
}
