// Package template parses the message template text format into protocol
// descriptors.
//
// Grammar, whitespace separated, `//` comments to end of line:
//
//	version <n>
//	{ Name High|Medium|Low|Fixed <id> Trusted|NotTrusted Zerocoded|Unencoded [flag...]
//		{ Block Single|Multiple <n>|Variable
//			{ Field Type [size] }
//		}
//	}
package template

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/rs/zerolog/log"
)

// ErrSyntax is matched by every parse error.
var ErrSyntax = errors.New("template: syntax error")

// SyntaxError reports a parse failure at a source line.
type SyntaxError struct {
	Line int
	Msg  string
	Err  error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template: line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("template: line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrSyntax, e.Err}
	}
	return []error{ErrSyntax}
}

// Template is a parsed message template.
type Template struct {
	Version  string
	Messages []*protocol.Descriptor
	// Lines maps message names to the line their declaration opens on.
	Lines map[string]int
}

// Registry builds a registry from the parsed messages.
func (t *Template) Registry() (*protocol.Registry, error) {
	return protocol.NewRegistry(t.Messages...)
}

// Parse reads a whole template from r.
func Parse(r io.Reader) (*Template, error) {
	toks, err := lex(r)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	t, err := p.template()
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("version", t.Version).
		Int("messages", len(t.Messages)).
		Msg("template.Parse")
	return t, nil
}

func ParseString(s string) (*Template, error) {
	return Parse(strings.NewReader(s))
}

// Load parses r and builds its registry.
func Load(r io.Reader) (*protocol.Registry, error) {
	t, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return t.Registry()
}

type token struct {
	text string
	line int
}

func lex(r io.Reader) ([]token, error) {
	var toks []token
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		start := -1
		flush := func(end int) {
			if start >= 0 {
				toks = append(toks, token{text: text[start:end], line: line})
				start = -1
			}
		}
		for i := 0; i < len(text); i++ {
			switch c := text[i]; {
			case c == '{' || c == '}':
				flush(i)
				toks = append(toks, token{text: string(c), line: line})
			case c == ' ' || c == '\t' || c == '\r':
				flush(i)
			default:
				if start < 0 {
					start = i
				}
			}
		}
		flush(len(text))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("template: read: %w", err)
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) line() int {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].line
	}
	if len(p.toks) > 0 {
		return p.toks[len(p.toks)-1].line
	}
	return 1
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line(), Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].text
	}
	return ""
}

func (p *parser) next(what string) (token, error) {
	if p.pos >= len(p.toks) {
		return token{}, p.errorf("unexpected end of template, want %s", what)
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *parser) expect(text string) error {
	t, err := p.next(strconv.Quote(text))
	if err != nil {
		return err
	}
	if t.text != text {
		p.pos--
		return p.errorf("want %q, got %q", text, t.text)
	}
	return nil
}

func (p *parser) word(what string) (string, error) {
	t, err := p.next(what)
	if err != nil {
		return "", err
	}
	if t.text == "{" || t.text == "}" {
		p.pos--
		return "", p.errorf("want %s, got %q", what, t.text)
	}
	return t.text, nil
}

func (p *parser) number(what string, bits int) (uint64, error) {
	s, err := p.word(what)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		p.pos--
		return 0, &SyntaxError{Line: p.line(), Msg: fmt.Sprintf("bad %s %q", what, s), Err: err}
	}
	return n, nil
}

func (p *parser) template() (*Template, error) {
	t := &Template{Lines: make(map[string]int)}
	if p.peek() == "version" {
		p.pos++
		v, err := p.word("version number")
		if err != nil {
			return nil, err
		}
		t.Version = v
	}
	keys := make(map[protocol.Key]string)
	for p.pos < len(p.toks) {
		line := p.line()
		d, err := p.message()
		if err != nil {
			return nil, err
		}
		if prev, ok := t.Lines[d.Name]; ok {
			return nil, &SyntaxError{Line: line, Msg: fmt.Sprintf("message %s already declared on line %d", d.Name, prev), Err: protocol.ErrDuplicateMessage}
		}
		if other, ok := keys[d.Key()]; ok {
			return nil, &SyntaxError{Line: line, Msg: fmt.Sprintf("message %s reuses %s of %s", d.Name, d.Key(), other), Err: protocol.ErrDuplicateMessage}
		}
		if err := d.Validate(); err != nil {
			return nil, &SyntaxError{Line: line, Msg: "message " + d.Name, Err: err}
		}
		t.Lines[d.Name] = line
		keys[d.Key()] = d.Name
		t.Messages = append(t.Messages, d)
	}
	return t, nil
}

func (p *parser) message() (*protocol.Descriptor, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	name, err := p.word("message name")
	if err != nil {
		return nil, err
	}
	freqName, err := p.word("frequency")
	if err != nil {
		return nil, err
	}
	freq, ok := protocol.ParseFrequency(freqName)
	if !ok {
		p.pos--
		return nil, p.errorf("message %s: unknown frequency %q", name, freqName)
	}
	id, err := p.number("message id", 32)
	if err != nil {
		return nil, err
	}
	d := &protocol.Descriptor{Name: name, Frequency: freq, ID: uint32(id)}

	trust, err := p.word("trust")
	if err != nil {
		return nil, err
	}
	switch trust {
	case "Trusted":
		d.Trusted = true
	case "NotTrusted":
	default:
		p.pos--
		return nil, p.errorf("message %s: want Trusted or NotTrusted, got %q", name, trust)
	}

	enc, err := p.word("encoding")
	if err != nil {
		return nil, err
	}
	switch enc {
	case "Zerocoded":
		d.ZeroCoded = true
	case "Unencoded":
	default:
		p.pos--
		return nil, p.errorf("message %s: want Zerocoded or Unencoded, got %q", name, enc)
	}

	for tok := p.peek(); tok != "{" && tok != "}" && tok != ""; tok = p.peek() {
		switch tok {
		case "Deprecated", "UDPDeprecated", "UDPBlackListed":
			d.Deprecated = true
			p.pos++
		default:
			return nil, p.errorf("message %s: unexpected %q", name, tok)
		}
	}

	for p.peek() == "{" {
		b, err := p.block(name)
		if err != nil {
			return nil, err
		}
		d.Blocks = append(d.Blocks, b)
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *parser) block(msg string) (protocol.BlockSpec, error) {
	var b protocol.BlockSpec
	if err := p.expect("{"); err != nil {
		return b, err
	}
	name, err := p.word("block name")
	if err != nil {
		return b, err
	}
	b.Name = name
	rep, err := p.word("block repeat")
	if err != nil {
		return b, err
	}
	switch rep {
	case "Single":
		b.Repeat = protocol.RepeatSingle
	case "Variable":
		b.Repeat = protocol.RepeatVariable
	case "Multiple":
		b.Repeat = protocol.RepeatMultiple
		n, err := p.number("block count", 8)
		if err != nil {
			return b, err
		}
		if n == 0 {
			p.pos--
			return b, p.errorf("%s.%s: multiple count must be positive", msg, name)
		}
		b.Count = int(n)
	default:
		p.pos--
		return b, p.errorf("%s.%s: unknown repeat %q", msg, name, rep)
	}
	for p.peek() == "{" {
		f, err := p.field(msg, name)
		if err != nil {
			return b, err
		}
		b.Fields = append(b.Fields, f)
	}
	if err := p.expect("}"); err != nil {
		return b, err
	}
	return b, nil
}

func (p *parser) field(msg, block string) (protocol.FieldSpec, error) {
	var f protocol.FieldSpec
	if err := p.expect("{"); err != nil {
		return f, err
	}
	name, err := p.word("field name")
	if err != nil {
		return f, err
	}
	f.Name = name
	typ, err := p.word("field type")
	if err != nil {
		return f, err
	}
	switch typ {
	case "Fixed":
		n, err := p.number("fixed size", 16)
		if err != nil {
			return f, err
		}
		if n == 0 {
			p.pos--
			return f, p.errorf("%s.%s.%s: fixed size must be positive", msg, block, name)
		}
		f.Kind, f.Size = protocol.KindFixed, int(n)
	case "Variable":
		n, err := p.number("variable prefix width", 8)
		if err != nil {
			return f, err
		}
		switch n {
		case 1:
			f.Kind = protocol.KindVariable1
		case 2:
			f.Kind = protocol.KindVariable2
		default:
			p.pos--
			return f, p.errorf("%s.%s.%s: variable prefix width must be 1 or 2, got %d", msg, block, name, n)
		}
	default:
		k, ok := protocol.ParseKind(typ)
		if !ok {
			p.pos--
			return f, p.errorf("%s.%s.%s: unknown type %q", msg, block, name, typ)
		}
		f.Kind = k
	}
	if err := p.expect("}"); err != nil {
		return f, err
	}
	return f, nil
}
