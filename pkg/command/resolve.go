package command

import (
	"fmt"
	"os/exec"
	"strings"
)

// shellInvocation wraps s for execution by the OS shell, matching
// spec.md §4.1's shell=True behavior.
func shellInvocation(s string) []string {
	return append(append([]string{}, shellCmd()...), s)
}

// resolveArgv resolves argv[0] to an executable path, applying the
// platform's script-interpreter rules (see command_windows.go) on top of
// the standard PATH/PATHEXT lookup exec.LookPath already performs.
func resolveArgv(argv []string) ([]string, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty argv", ErrNotFound)
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, argv[0])
	}

	if interp, ok := scriptInterpreter(path); ok {
		interpPath, err := exec.LookPath(interp)
		if err != nil {
			return nil, fmt.Errorf("%w: interpreter %s for %s", ErrNotFound, interp, path)
		}
		out := make([]string, 0, len(argv)+1)
		out = append(out, interpPath, path)
		out = append(out, argv[1:]...)
		return out, nil
	}

	out := make([]string, len(argv))
	copy(out, argv)
	out[0] = path
	return out, nil
}

func hasSuffixFold(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && strings.EqualFold(s[len(s)-len(suf):], suf) {
			return true
		}
	}
	return false
}
