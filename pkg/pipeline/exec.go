package pipeline

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edirooss/procpipe/pkg/shparse"
)

// execTree runs t to completion, recursing for every operator per
// spec.md §4.4's walk rules. Pipe/pipe-both fan the two sides out onto
// goroutines (so they run concurrently, connected by the OS pipe the
// builder already created) and blocks until both finish; every other
// operator is a plain sequential call, which is what makes an outer
// sequence/conditional correctly wait for a whole piped subtree before
// deciding whether to continue.
func (p *Pipeline) execTree(t shparse.Tree) error {
	switch n := t.(type) {
	case *shparse.Node:
		return p.execNode(n)
	case *shparse.Group:
		return p.execTree(n.Inner)
	case *shparse.BinOp:
		return p.execBinOp(n)
	default:
		return fmt.Errorf("pipeline: unknown tree node %T", t)
	}
}

func (p *Pipeline) execNode(n *shparse.Node) error {
	cmd := p.b.cmdByN[n]
	if cmd == nil {
		return fmt.Errorf("pipeline: no command built for node %v", n.Argv)
	}
	if err := cmd.Start(); err != nil {
		p.log.Error("stage failed to start", zap.Strings("argv", n.Argv), zap.Error(err))
		return err
	}
	_, err := cmd.Wait(0)
	return err
}

func (p *Pipeline) execBinOp(n *shparse.BinOp) error {
	switch n.Op {
	case shparse.OpPipe, shparse.OpPipeBoth:
		return p.execPipe(n)
	case shparse.OpSeq:
		_ = p.execTree(n.Left)
		if n.Right == nil {
			return nil
		}
		return p.execTree(n.Right)
	case shparse.OpAnd:
		if err := p.execTree(n.Left); err != nil {
			return err
		}
		if n.Right == nil || p.codeOf(n.Left) != 0 {
			return nil
		}
		return p.execTree(n.Right)
	case shparse.OpOr:
		if err := p.execTree(n.Left); err != nil {
			return err
		}
		if n.Right == nil || p.codeOf(n.Left) == 0 {
			return nil
		}
		return p.execTree(n.Right)
	case shparse.OpBackground:
		p.goBackground(n.Left)
		if n.Right == nil {
			return nil
		}
		return p.execTree(n.Right)
	default:
		return fmt.Errorf("pipeline: unknown operator %v", n.Op)
	}
}

func (p *Pipeline) execPipe(n *shparse.BinOp) error {
	pair := p.b.pipeByB[n]
	var g errgroup.Group
	g.Go(func() error {
		err := p.execTree(n.Left)
		_ = pair.w.Close()
		return err
	})
	g.Go(func() error {
		err := p.execTree(n.Right)
		_ = pair.r.Close()
		return err
	})
	return g.Wait()
}

// codeOf returns the return code of the stage that executed last in t,
// per spec.md §8's "pipe's return code is that of its last stage" rule
// (which generalizes to every other operator: whichever stage executed
// last on a side is the one that decides &&/|| continuation). A &&/||
// whose right side was skipped yields its left side's code.
func (p *Pipeline) codeOf(t shparse.Tree) int {
	switch n := t.(type) {
	case *shparse.Group:
		return p.codeOf(n.Inner)
	case *shparse.BinOp:
		if n.Right == nil {
			return p.codeOf(n.Left)
		}
		if n.Op == shparse.OpAnd || n.Op == shparse.OpOr {
			if left := p.codeOf(n.Left); (left == 0) != (n.Op == shparse.OpAnd) {
				return left
			}
		}
		return p.codeOf(n.Right)
	}
	node := rightmostNode(t)
	if node == nil {
		return 0
	}
	cmd := p.b.cmdByN[node]
	if cmd == nil {
		return 0
	}
	if code := cmd.Poll(); code != nil {
		return *code
	}
	return 0
}

// goBackground starts t without waiting for it, but still tracks it so
// the pipeline's own Wait can observe it finishing later (spec.md §4.4:
// "Child processes started this way still belong to the returned
// pipeline object so the host can wait() on the whole").
func (p *Pipeline) goBackground(t shparse.Tree) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		if err := p.execTree(t); err != nil {
			p.log.Warn("background stage exited with error", zap.Error(err))
		}
	}()
}
