package pipeline

import (
	"fmt"
	"os"

	"github.com/edirooss/procpipe/pkg/command"
	"github.com/edirooss/procpipe/pkg/shparse"
)

// stdio is the stdin/stdout/stderr binding set threaded down through the
// tree walk. A Group or a Node's own redirects only ever override the fds
// they explicitly mention; every other fd is inherited unchanged, which is
// what lets a Group's redirect or a pipe's write end reach every stage
// nested underneath it (spec.md §4.4's "enclosed subpipeline inherits the
// group's redirections and pipe wiring").
type stdio struct {
	stdin, stdout, stderr command.Binding
}

// openFiles tracks every *os.File this pipeline run has opened for
// redirection or inter-stage piping, so it can be closed in the parent
// once no longer needed (spec.md §5's FD hygiene rule) without relying on
// pkg/command to do it — these files are frequently shared across several
// sequential Commands (a Group's redirect applies to every stage inside
// it), so only the executor knows when the last user has started.
type openFiles struct {
	files []*os.File
}

func (o *openFiles) track(f *os.File) *os.File {
	o.files = append(o.files, f)
	return f
}

func (o *openFiles) closeAll() {
	for _, f := range o.files {
		_ = f.Close()
	}
}

// resolveRedirects applies a node/group's redirect map onto base, per
// spec.md §4.4's "Redirection implementation". Aliasing ("&N") resolves
// against base (the fd values as they stood before this clause), not
// against other redirects being applied in the same map: the parse tree
// stores redirects as a map keyed by target fd (spec.md §3), which does
// not preserve source order between different fds, so simultaneous
// (parallel) assignment against the pre-redirect snapshot is the only
// order-independent interpretation available — and it is exactly what
// every testable scenario in spec.md §8 needs (plain "2>&1" aliasing,
// never a three-way fd swap, which the grammar couldn't express anyway
// since redirect sources are restricted to fds 0/1/2).
func resolveRedirects(base stdio, redirects map[int]shparse.Redirect, of *openFiles) (stdio, error) {
	out := base
	for fd, r := range redirects {
		var b command.Binding
		if r.IsFDTarget {
			b = bindingForFD(base, r.TargetFD)
		} else {
			f, err := openRedirectFile(r)
			if err != nil {
				return stdio{}, err
			}
			of.track(f)
			b = command.ToFile(f)
		}
		switch fd {
		case shparse.FDStdin:
			out.stdin = b
		case shparse.FDStdout:
			out.stdout = b
		case shparse.FDStderr:
			out.stderr = b
		default:
			return stdio{}, fmt.Errorf("pipeline: redirect targets unsupported fd %d", fd)
		}
	}
	return out, nil
}

func bindingForFD(io stdio, fd int) command.Binding {
	switch fd {
	case shparse.FDStdin:
		return io.stdin
	case shparse.FDStdout:
		return io.stdout
	case shparse.FDStderr:
		return io.stderr
	default:
		return command.Binding{}
	}
}

func openRedirectFile(r shparse.Redirect) (*os.File, error) {
	switch r.Op {
	case shparse.RedirRead:
		f, err := os.OpenFile(r.File, os.O_RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("pipeline: open %q for reading: %w", r.File, err)
		}
		return f, nil
	case shparse.RedirWrite:
		f, err := os.OpenFile(r.File, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("pipeline: open %q for writing: %w", r.File, err)
		}
		return f, nil
	case shparse.RedirAppend:
		f, err := os.OpenFile(r.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("pipeline: open %q for appending: %w", r.File, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown redirect op %v", r.Op)
	}
}
