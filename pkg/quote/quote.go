// Package quote provides shell-safe quoting and template formatting, per
// spec.md §4.3/§9's fixed POSIX contract: the single-quote + `'\''`-escape
// form, never the dollar-quote form some shells also accept.
package quote

import (
	"fmt"
	"strconv"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// ShellQuote returns s quoted for safe use as a single shell word: empty
// becomes `''`; a string made only of `A-Za-z0-9_./-` passes through
// unchanged; anything else is wrapped in single quotes with embedded single
// quotes escaped as `'\''`.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	unsafe := strings.IndexFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || strings.ContainsRune("_./-", r))
	})
	if unsafe < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join quotes and space-joins a full argv, e.g. for logging a command line
// in a form that could be pasted back into a shell.
func Join(args ...string) string {
	return shellquote.Join(args...)
}

// Split does POSIX shell-style word splitting, honoring quotes and
// backslash escapes. pkg/command uses this to split a plain command
// string into argv when no shell is requested.
func Split(s string) ([]string, error) {
	return shellquote.Split(s)
}

// ShellFormat formats template, substituting `{n}` with the shell-quoted
// form of args[n] and `{n!s}` with its raw (unquoted) form.
//
// Only positional, 0-indexed placeholders are supported, matching spec.md
// §4.3/§9's `shell_format(template, *args)`.
func ShellFormat(template string, args ...string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(template) {
		c := template[i]
		if c != '{' {
			out.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return "", fmt.Errorf("quote: unterminated placeholder in %q", template)
		}
		spec := template[i+1 : i+end]
		i += end + 1

		raw := false
		idxText := spec
		if strings.HasSuffix(spec, "!s") {
			raw = true
			idxText = strings.TrimSuffix(spec, "!s")
		}
		n, err := strconv.Atoi(idxText)
		if err != nil {
			return "", fmt.Errorf("quote: invalid placeholder %q in %q: %w", spec, template, err)
		}
		if n < 0 || n >= len(args) {
			return "", fmt.Errorf("quote: placeholder {%s} out of range (%d args given)", spec, len(args))
		}
		if raw {
			out.WriteString(args[n])
		} else {
			out.WriteString(ShellQuote(args[n]))
		}
	}
	return out.String(), nil
}
