package shparse

import (
	"fmt"
	"strconv"

	"github.com/edirooss/procpipe/pkg/shlex"
)

// Parser is a recursive-descent parser over a shlex token stream,
// implementing the grammar from spec.md §4.2:
//
//	pipeline  := sequence ( ';' sequence | '&' sequence )* [';' | '&']
//	sequence  := logical
//	logical   := piped ( ('&&' | '||') piped )*
//	piped     := stage ( ('|' | '|&') stage )*
//	stage     := '(' pipeline ')' redirects? | simple
//	simple    := word+ redirects?
//	redirects := ( fd? op target )+
//
// It is strict: every failure mode in spec.md §4.2 is detected here, before
// ParseCommandLine returns, so the executor never partially spawns a
// pipeline it cannot fully describe.
type Parser struct {
	tz   *shlex.Tokenizer
	buf  []shlex.Token
	done bool // underlying tokenizer has been drained
}

func newParser(src string, posix bool) *Parser {
	return &Parser{tz: shlex.New(src, posix, true)}
}

// ParseCommandLine parses source into a pipeline Tree. posix selects POSIX
// quote handling (see pkg/shlex). It fails on any syntax error described in
// spec.md §4.2, including trailing garbage left over after a complete
// pipeline (most commonly an unmatched ')').
func ParseCommandLine(source string, posix bool) (Tree, error) {
	p := newParser(source, posix)
	tree, err := p.Parse()
	if err != nil {
		return nil, err
	}
	tok, ok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("shparse: unexpected token %q after complete pipeline", tok.Text)
	}
	return tree, nil
}

// fill buffers tokens until indices 0..n are available or the tokenizer
// is drained; it returns only a tokenizer error, and callers compare
// len(p.buf) against n to see how many tokens there are.
func (p *Parser) fill(n int) error {
	for len(p.buf) <= n && !p.done {
		tok, ok, err := p.tz.Next()
		if err != nil {
			return err
		}
		if !ok {
			p.done = true
			break
		}
		p.buf = append(p.buf, tok)
	}
	return nil
}

func (p *Parser) peek() (shlex.Token, bool, error) {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) (shlex.Token, bool, error) {
	if err := p.fill(n); err != nil {
		return shlex.Token{}, false, err
	}
	if n >= len(p.buf) {
		return shlex.Token{}, false, nil
	}
	return p.buf[n], true, nil
}

func (p *Parser) next() (shlex.Token, bool, error) {
	tok, ok, err := p.peek()
	if err != nil || !ok {
		return tok, ok, err
	}
	p.buf = p.buf[1:]
	return tok, true, nil
}

// Parse parses one `pipeline` production, stopping (without error, without
// consuming) at EOF or at an unmatched ')'.
func (p *Parser) Parse() (Tree, error) {
	tree, err := p.parseLogical()
	if err != nil {
		return nil, err
	}

	for {
		tok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || tok.Kind != shlex.Control || (tok.Text != ";" && tok.Text != "&") {
			return tree, nil
		}

		op := OpSeq
		if tok.Text == "&" {
			op = OpBackground
		}
		if _, _, err := p.next(); err != nil {
			return nil, err
		}

		nextTok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || (nextTok.Kind == shlex.Control && nextTok.Text == ")") {
			// Trailing terminator: "a;" is a no-op, "a&" backgrounds a.
			if op == OpBackground {
				tree = &BinOp{Op: OpBackground, Left: tree}
			}
			return tree, nil
		}

		right, err := p.parseLogical()
		if err != nil {
			return nil, err
		}
		tree = &BinOp{Op: op, Left: tree, Right: right}
	}
}

func (p *Parser) parseLogical() (Tree, error) {
	left, err := p.parsePiped()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || tok.Kind != shlex.Control || (tok.Text != "&&" && tok.Text != "||") {
			return left, nil
		}
		if _, _, err := p.next(); err != nil {
			return nil, err
		}

		nextTok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || isClosingOrTerminator(nextTok) || isLogicalOpToken(nextTok) {
			return nil, fmt.Errorf("shparse: %q requires a command on both sides", tok.Text)
		}

		right, err := p.parsePiped()
		if err != nil {
			return nil, err
		}
		op := OpAnd
		if tok.Text == "||" {
			op = OpOr
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parsePiped() (Tree, error) {
	left, err := p.parseStage()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || tok.Kind != shlex.Control || (tok.Text != "|" && tok.Text != "|&") {
			return left, nil
		}
		if _, _, err := p.next(); err != nil {
			return nil, err
		}
		op := OpPipe
		if tok.Text == "|&" {
			op = OpPipeBoth
		}
		if err := checkPipeRedirectConflict(left, op); err != nil {
			return nil, err
		}
		right, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseStage() (Tree, error) {
	tok, ok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if ok && tok.Kind == shlex.Control && tok.Text == "(" {
		if _, _, err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.Parse()
		if err != nil {
			return nil, err
		}
		closeTok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || closeTok.Kind != shlex.Control || closeTok.Text != ")" {
			return nil, fmt.Errorf("shparse: unbalanced parentheses")
		}
		if _, _, err := p.next(); err != nil {
			return nil, err
		}
		redirs, err := p.parseRedirects()
		if err != nil {
			return nil, err
		}
		return &Group{Inner: inner, Redirects: redirs}, nil
	}
	return p.parseSimple()
}

func (p *Parser) parseSimple() (Tree, error) {
	node := newNode()
	gotWord := false

	for {
		tok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || tok.Kind == shlex.Control {
			break
		}
		if isAllDigits(tok.Text) {
			isFDPrefix, err := p.looksLikeFDPrefix(tok)
			if err != nil {
				return nil, err
			}
			if isFDPrefix {
				break
			}
		}
		if _, _, err := p.next(); err != nil {
			return nil, err
		}
		node.Argv = append(node.Argv, tok.Text)
		gotWord = true
	}

	if !gotWord {
		tok, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, fmt.Errorf("shparse: unexpected token %q, expected a command", tok.Text)
		}
		return nil, fmt.Errorf("shparse: unexpected end of input, expected a command")
	}

	if err := p.parseRedirectsInto(node); err != nil {
		return nil, err
	}
	return node, nil
}

// looksLikeFDPrefix reports whether the current token (a run of digits) is
// immediately followed, with no intervening whitespace, by a redirection
// operator -- the "2>" vs "2 >" distinction from spec.md §4.2.
func (p *Parser) looksLikeFDPrefix(tok shlex.Token) (bool, error) {
	next, ok, err := p.peekAt(1)
	if err != nil {
		return false, err
	}
	if !ok || next.Kind != shlex.Control || !isRedirOpText(next.Text) {
		return false, nil
	}
	return tok.End == next.Start, nil
}

// parseRedirects parses a standalone `redirects?` production not attached
// to a simple command (used for groups).
func (p *Parser) parseRedirects() (map[int]Redirect, error) {
	node := newNode()
	if err := p.parseRedirectsInto(node); err != nil {
		return nil, err
	}
	return node.Redirects, nil
}

func (p *Parser) parseRedirectsInto(node *Node) error {
	for {
		tok, ok, err := p.peek()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		fd := -1
		opTok := tok
		if tok.Kind == shlex.Word && isAllDigits(tok.Text) {
			isPrefix, err := p.looksLikeFDPrefix(tok)
			if err != nil {
				return err
			}
			if !isPrefix {
				return nil
			}
			n, err := strconv.Atoi(tok.Text)
			if err != nil {
				return fmt.Errorf("shparse: invalid fd %q: %w", tok.Text, err)
			}
			fd = n
			if _, _, err := p.next(); err != nil { // consume digit
				return err
			}
			opTok, ok, err = p.peek()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("shparse: dangling fd %d with no redirect operator", fd)
			}
		}

		if opTok.Kind != shlex.Control || !isRedirOpText(opTok.Text) {
			return nil
		}
		if _, _, err := p.next(); err != nil { // consume operator
			return err
		}

		var op RedirOp
		switch opTok.Text {
		case ">":
			op = RedirWrite
		case ">>":
			op = RedirAppend
		case "<":
			op = RedirRead
		}
		if fd == -1 {
			if op == RedirRead {
				fd = FDStdin
			} else {
				fd = FDStdout
			}
		}
		if fd != FDStdin && fd != FDStdout && fd != FDStderr {
			return fmt.Errorf("shparse: invalid redirect source fd %d (only 0, 1, 2 are allowed)", fd)
		}
		if fd == FDStdin && op != RedirRead {
			return fmt.Errorf("shparse: fd 0 may only be used with '<'")
		}
		if fd != FDStdin && op == RedirRead {
			return fmt.Errorf("shparse: fd %d may only be used with '>' or '>>'", fd)
		}
		if _, dup := node.Redirects[fd]; dup {
			return fmt.Errorf("shparse: duplicate redirect for fd %d", fd)
		}

		target, ok, err := p.peek()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("shparse: missing target after redirect operator %q", opTok.Text)
		}

		var redir Redirect
		redir.Op = op
		switch {
		case target.Kind == shlex.Control && target.Text == "&":
			amp := target
			if _, _, err := p.next(); err != nil { // consume '&'
				return err
			}
			numTok, ok, err := p.peek()
			if err != nil {
				return err
			}
			if !ok || numTok.Kind != shlex.Word || !isAllDigits(numTok.Text) || numTok.Start != amp.End {
				return fmt.Errorf("shparse: invalid fd redirect target after '&'")
			}
			if _, _, err := p.next(); err != nil {
				return err
			}
			n, err := strconv.Atoi(numTok.Text)
			if err != nil {
				return fmt.Errorf("shparse: invalid fd target %q: %w", numTok.Text, err)
			}
			redir.IsFDTarget = true
			redir.TargetFD = n
		case target.Kind == shlex.Word || target.Kind == shlex.Quoted:
			if _, _, err := p.next(); err != nil {
				return err
			}
			redir.File = target.Text
		default:
			return fmt.Errorf("shparse: missing target after redirect operator %q", opTok.Text)
		}

		node.Redirects[fd] = redir
	}
}

func isRedirOpText(s string) bool {
	return s == ">" || s == ">>" || s == "<"
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isClosingOrTerminator(tok shlex.Token) bool {
	if tok.Kind != shlex.Control {
		return false
	}
	switch tok.Text {
	case ")", ";", "&":
		return true
	default:
		return false
	}
}

func isLogicalOpToken(tok shlex.Token) bool {
	return tok.Kind == shlex.Control && (tok.Text == "&&" || tok.Text == "||")
}

// rightmostRedirects returns the redirect map of the rightmost leaf in t,
// used to detect conflicts between an explicit redirect and a pipe that
// would also claim the same fd.
func rightmostRedirects(t Tree) map[int]Redirect {
	switch v := t.(type) {
	case *Node:
		return v.Redirects
	case *Group:
		return v.Redirects
	case *BinOp:
		return rightmostRedirects(v.Right)
	default:
		return nil
	}
}

func checkPipeRedirectConflict(left Tree, op Op) error {
	redirs := rightmostRedirects(left)
	if redirs == nil {
		return nil
	}
	if _, ok := redirs[FDStdout]; ok {
		return fmt.Errorf("shparse: cannot combine explicit redirect of fd %d with piping", FDStdout)
	}
	if op == OpPipeBoth {
		if _, ok := redirs[FDStderr]; ok {
			return fmt.Errorf("shparse: cannot combine explicit redirect of fd %d with piping", FDStderr)
		}
	}
	return nil
}
