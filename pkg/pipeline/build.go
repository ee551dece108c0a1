package pipeline

import (
	"fmt"
	"os"

	"github.com/edirooss/procpipe/pkg/command"
	"github.com/edirooss/procpipe/pkg/shparse"
)

// pipePair is the OS pipe wired across one `|`/`|&` operator. Its ends are
// shared, via stdio propagation, by every Command on either side of the
// operator (every stage of a Group or Seq chain sitting immediately next
// to the pipe), so closing them is the executor's job, done once the
// relevant side has fully finished running (see exec.go), not
// pkg/command's.
type pipePair struct {
	r, w *os.File
}

// builder walks a parse tree once, before anything is spawned, to
// construct every Command object up front (spec.md §9's "p.commands is
// fully populated before run() returns, even in async mode") and to open
// every file/pipe the run will need.
type builder struct {
	opts    runOptions
	of      *openFiles
	cmdByN  map[*shparse.Node]*command.Command
	pipeByB map[*shparse.BinOp]*pipePair
	order   []*command.Command
}

func newBuilder(opts runOptions) *builder {
	return &builder{
		opts:    opts,
		of:      &openFiles{},
		cmdByN:  make(map[*shparse.Node]*command.Command),
		pipeByB: make(map[*shparse.BinOp]*pipePair),
	}
}

func (b *builder) build(t shparse.Tree, io stdio) error {
	switch n := t.(type) {
	case *shparse.Node:
		return b.buildNode(n, io)
	case *shparse.Group:
		resolved, err := resolveRedirects(io, n.Redirects, b.of)
		if err != nil {
			return err
		}
		return b.build(n.Inner, resolved)
	case *shparse.BinOp:
		return b.buildBinOp(n, io)
	default:
		return fmt.Errorf("pipeline: unknown tree node %T", t)
	}
}

func (b *builder) buildNode(n *shparse.Node, io stdio) error {
	resolved, err := resolveRedirects(io, n.Redirects, b.of)
	if err != nil {
		return err
	}
	opts := []command.Option{
		command.WithStdin(resolved.stdin),
		command.WithStdout(resolved.stdout),
		command.WithStderr(resolved.stderr),
		command.WithLogger(b.opts.logger),
	}
	if b.opts.cwd != "" {
		opts = append(opts, command.WithDir(b.opts.cwd))
	}
	if b.opts.replaceEnv != nil {
		opts = append(opts, command.WithReplaceEnv(b.opts.replaceEnv))
	} else if len(b.opts.envOverlay) > 0 {
		opts = append(opts, command.WithEnvOverlay(b.opts.envOverlay))
	}

	cmd, err := command.New(append([]string{}, n.Argv...), opts...)
	if err != nil {
		return err
	}
	b.cmdByN[n] = cmd
	b.order = append(b.order, cmd)
	return nil
}

func (b *builder) buildBinOp(n *shparse.BinOp, io stdio) error {
	switch n.Op {
	case shparse.OpPipe, shparse.OpPipeBoth:
		pr, pw, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("pipeline: create pipe: %w", err)
		}
		b.pipeByB[n] = &pipePair{r: pr, w: pw}

		leftIO := io
		leftIO.stdout = command.ToPipe(pw)
		if n.Op == shparse.OpPipeBoth {
			leftIO.stderr = command.ToPipe(pw)
		}
		if err := b.build(n.Left, leftIO); err != nil {
			return err
		}

		rightIO := io
		rightIO.stdin = command.ToPipe(pr)
		return b.build(n.Right, rightIO)

	case shparse.OpSeq, shparse.OpAnd, shparse.OpOr, shparse.OpBackground:
		if err := b.build(n.Left, io); err != nil {
			return err
		}
		if n.Right == nil {
			return nil
		}
		return b.build(n.Right, io)

	default:
		return fmt.Errorf("pipeline: unknown operator %v", n.Op)
	}
}

// rightmostNode finds the last Node of a subtree in source order: the
// last stage of a pipe chain, the right-hand branch of a
// sequence/conditional (whether or not that branch ran), or a trailing
// background marker's left side when there is no right side.
func rightmostNode(t shparse.Tree) *shparse.Node {
	switch n := t.(type) {
	case *shparse.Node:
		return n
	case *shparse.Group:
		return rightmostNode(n.Inner)
	case *shparse.BinOp:
		if n.Right == nil {
			return rightmostNode(n.Left)
		}
		return rightmostNode(n.Right)
	default:
		return nil
	}
}
