// Package pipeline walks a pkg/shparse tree, spawns the pkg/command
// Commands it describes, wires their file descriptors per the shell
// operator each stage sits under, and aggregates the resulting return
// codes — spec.md §4.4's Pipeline Executor.
//
// The overall shape (walk a tree of commands joined by |, sequence left
// to finish before right, track children so the host can wait on the
// whole thing) is grounded on mozilla-services-heka's
// pipeline/process_chain.go CommandChain, generalized from a fixed
// left-to-right pipe chain to the full operator set spec.md §4.2 parses
// (;, &&, ||, &, nested groups), and on the teacher's
// processmgr.ProcessManager for the supervisor-goroutine/errgroup
// concurrency shape used for async mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edirooss/procpipe/pkg/command"
	"github.com/edirooss/procpipe/pkg/shparse"
)

// ErrTimeout is returned by Wait when the deadline elapses before every
// tracked child has finished.
var ErrTimeout = errors.New("pipeline: wait timed out")

type runOptions struct {
	posix      bool
	shell      bool
	async      bool
	cwd        string
	envOverlay map[string]string
	replaceEnv []string
	logger     *zap.Logger

	stdin, stdout, stderr command.Binding
	input                 []byte
	inputFeeder           *command.Binding
}

// Option configures a pipeline Run.
type Option func(*runOptions)

// WithPosix selects POSIX (default) or non-POSIX quote handling in the
// lexer, per spec.md §4.1.
func WithPosix(posix bool) Option { return func(o *runOptions) { o.posix = posix } }

// WithShell bypasses this library's own mini-language parser entirely
// and hands source to the OS shell verbatim, matching sarge's run(...,
// shell=True) escape hatch for constructs this grammar doesn't cover.
func WithShell(shell bool) Option { return func(o *runOptions) { o.shell = shell } }

// WithAsync makes Run return as soon as the tree has been fully built
// (every Command constructed) without waiting for any of it to finish;
// call Wait to block for completion.
func WithAsync(async bool) Option { return func(o *runOptions) { o.async = async } }

func WithCwd(dir string) Option { return func(o *runOptions) { o.cwd = dir } }

func WithEnvOverlay(overlay map[string]string) Option {
	return func(o *runOptions) { o.envOverlay = overlay }
}

func WithReplaceEnv(env []string) Option { return func(o *runOptions) { o.replaceEnv = env } }

func WithLogger(log *zap.Logger) Option {
	return func(o *runOptions) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithStdin/WithStdout/WithStderr bind the root pipeline's stdio, exactly
// as pkg/command's bindings do for a single Command.
func WithStdin(b command.Binding) Option  { return func(o *runOptions) { o.stdin = b } }
func WithStdout(b command.Binding) Option { return func(o *runOptions) { o.stdout = b } }
func WithStderr(b command.Binding) Option { return func(o *runOptions) { o.stderr = b } }

// WithInput supplies literal bytes to be written to the first stage's
// stdin: the executor opens an OS pipe, installs the read end as stdin,
// and writes data on a dedicated goroutine before closing the write end
// (spec.md §4.4's "Input routing").
func WithInput(data []byte) Option { return func(o *runOptions) { o.input = data } }

// WithInputFeeder installs f's read end directly as the first stage's
// stdin; the executor does not close f's write end, since the host
// retains ownership of feeding and closing it (spec.md §4.4).
func WithInputFeeder(f *command.Binding) Option { return func(o *runOptions) { o.inputFeeder = f } }

// Pipeline is the result of Run: the ordered Commands it spawned, and the
// machinery to wait for them and read aggregate return codes.
type Pipeline struct {
	log  *zap.Logger
	tree shparse.Tree
	b    *builder

	// Commands lists every Command the tree describes, in source order —
	// fully populated before Run returns, in both sync and async mode
	// (spec.md §9's explicit ambiguity resolution).
	Commands []*command.Command

	async     bool
	bg        sync.WaitGroup
	done      chan struct{}
	runErr    error
	mu        sync.Mutex
	inputErrs []error
}

// Run parses source (unless WithShell is set) and executes it.
func Run(source string, opts ...Option) (*Pipeline, error) {
	ro := runOptions{posix: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&ro)
	}

	var tree shparse.Tree
	if ro.shell {
		tree = &shparse.Node{Argv: []string{source}, Redirects: map[int]shparse.Redirect{}}
	} else {
		t, err := shparse.ParseCommandLine(source, ro.posix)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		tree = t
	}

	rootIO := stdio{stdin: ro.stdin, stdout: ro.stdout, stderr: ro.stderr}

	runID := uuid.NewString()
	ro.logger = ro.logger.With(zap.String("run_id", runID))
	p := &Pipeline{log: ro.logger, tree: tree, async: ro.async, done: make(chan struct{})}
	ro.logger.Debug("pipeline run starting", zap.String("source", source), zap.Bool("async", ro.async))

	var inputWriter func()
	switch {
	case ro.inputFeeder != nil:
		rootIO.stdin = *ro.inputFeeder
	case ro.input != nil:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("pipeline: create input pipe: %w", err)
		}
		rootIO.stdin = command.ToPipe(pr)
		data := ro.input
		inputWriter = func() {
			if _, err := pw.Write(data); err != nil {
				p.mu.Lock()
				p.inputErrs = append(p.inputErrs, err)
				p.mu.Unlock()
			}
			_ = pw.Close()
		}
	}

	if ro.shell {
		// A shell=True invocation bypasses the tree entirely: build one
		// bare command.Command directly instead of going through the
		// builder's Node path (WithShell must reach pkg/command, which
		// the builder doesn't thread through for the normal grammar
		// path).
		opts := []command.Option{
			command.WithShell(true),
			command.WithStdin(rootIO.stdin),
			command.WithStdout(rootIO.stdout),
			command.WithStderr(rootIO.stderr),
			command.WithLogger(ro.logger),
		}
		if ro.cwd != "" {
			opts = append(opts, command.WithDir(ro.cwd))
		}
		if ro.replaceEnv != nil {
			opts = append(opts, command.WithReplaceEnv(ro.replaceEnv))
		} else if len(ro.envOverlay) > 0 {
			opts = append(opts, command.WithEnvOverlay(ro.envOverlay))
		}
		cmd, err := command.New(source, opts...)
		if err != nil {
			return nil, err
		}
		b := newBuilder(ro)
		b.cmdByN[tree.(*shparse.Node)] = cmd
		b.order = []*command.Command{cmd}
		p.b = b
	} else {
		b := newBuilder(ro)
		if err := b.build(tree, rootIO); err != nil {
			return nil, err
		}
		p.b = b
	}
	p.Commands = p.b.order

	if inputWriter != nil {
		go inputWriter()
	}

	if ro.async {
		go p.runRoot()
	} else {
		p.runRoot()
	}
	return p, nil
}

func (p *Pipeline) runRoot() {
	err := p.execTree(p.tree)
	p.bg.Wait()
	p.b.of.closeAll()
	p.mu.Lock()
	p.runErr = err
	p.mu.Unlock()
	close(p.done)
}

// Wait blocks until every tracked child (including any started in the
// background) has finished, or timeout elapses (<=0 means forever).
// ReturnCodes still reports nil for any child that hasn't finished when
// Wait returns ErrTimeout.
func (p *Pipeline) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-p.done
	} else {
		select {
		case <-p.done:
		case <-time.After(timeout):
			return ErrTimeout
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inputErrs) > 0 {
		return fmt.Errorf("pipeline: input write: %w", errors.Join(p.inputErrs...))
	}
	return p.runErr
}

// WaitContext is a context-aware variant of Wait, for callers already
// threading a context through.
func (p *Pipeline) WaitContext(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Wait(0)
	case <-ctx.Done():
		return ErrTimeout
	}
}

// ReturnCodes reports one slot per Command in source order; nil for a
// child still running.
func (p *Pipeline) ReturnCodes() []*int {
	out := make([]*int, len(p.Commands))
	for i, cmd := range p.Commands {
		out[i] = cmd.Poll()
	}
	return out
}

// ReturnCode is the last non-nil entry in ReturnCodes, or 0 if every
// child is still running or there are no commands.
func (p *Pipeline) ReturnCode() int {
	codes := p.ReturnCodes()
	for i := len(codes) - 1; i >= 0; i-- {
		if codes[i] != nil {
			return *codes[i]
		}
	}
	return 0
}

// Processes returns the OS pids of every spawned child, in source order,
// skipping any Command never started.
func (p *Pipeline) Processes() []int {
	var pids []int
	for _, cmd := range p.Commands {
		if pid, ok := cmd.Pid(); ok {
			pids = append(pids, pid)
		}
	}
	return pids
}

// Close terminates every still-running child (including background ones)
// and waits for the pipeline to settle. It mirrors spec.md §4.4's
// "Termination" paragraph for explicit-close/context-manager-exit use.
func (p *Pipeline) Close() error {
	for _, cmd := range p.Commands {
		if cmd.Poll() == nil {
			_ = cmd.Terminate()
		}
	}
	return p.Wait(5 * time.Second)
}
