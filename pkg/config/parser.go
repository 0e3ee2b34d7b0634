package config

import (
	"fmt"
	"log/slog"
	"os"
)

type parseMode int

const (
	modeHeader parseMode = iota
	modeBody
	modeFooter
)

// Parser builds a Config from configuration text in a single forward pass.
//
// Lines before the first section are kept as the header. The body ends at
// the first line that is neither a section opener, a closer, nor an entry
// inside an open section (typically the blank line in front of the trailing
// comment block of config.boot); that line and everything after it become
// the footer.
type Parser struct {
	lex      *Lexer
	policy   Policy
	config   *Config
	stack    []*Section // open sections, innermost last
	mode     parseMode
	warnings []Warning
}

// NewParser creates a parser for input. policy selects the entry keys whose
// order is significant.
func NewParser(input string, policy Policy) *Parser {
	return &Parser{
		lex:    NewLexer(input),
		policy: policy,
		config: NewConfig(),
	}
}

// Parse consumes the whole input. On error no Config is returned.
func (p *Parser) Parse() (*Config, error) {
	last := 0
	for {
		line, ok := p.lex.Next()
		if !ok {
			break
		}
		last = line.Number
		if err := p.line(line); err != nil {
			return nil, &ParseError{Line: line.Number, Err: err}
		}
	}
	if p.mode == modeBody && len(p.stack) > 0 {
		p.warn(last, fmt.Sprintf("input ended with %d unclosed section(s), innermost %q",
			len(p.stack), p.top().Name()))
	}
	return p.config, nil
}

// Warnings returns the non-fatal observations made while parsing.
func (p *Parser) Warnings() []Warning {
	return p.warnings
}

func (p *Parser) line(l Line) error {
	switch p.mode {
	case modeHeader:
		switch l.Type {
		case LineClose:
			return ErrUnexpectedClose
		case LineOpen:
			p.mode = modeBody
			return p.open(l)
		default:
			p.config.Header = append(p.config.Header, l.Raw)
		}

	case modeBody:
		switch {
		case l.Type == LineOpen:
			return p.open(l)
		case l.Type == LineClose:
			if len(p.stack) == 0 {
				return ErrUnexpectedClose
			}
			p.stack = p.stack[:len(p.stack)-1]
		case l.Type == LineContent && len(p.stack) > 0:
			e := NewEntry(l.Key, l.Value)
			if l.Bare {
				e = NewBareEntry(l.Key)
			}
			return p.top().AddEntry(e, p.policy)
		default:
			if len(p.stack) > 0 {
				p.warn(l.Number, fmt.Sprintf("body ended inside %q at depth %d, rest kept as footer",
					p.top().Name(), len(p.stack)))
			}
			p.mode = modeFooter
			p.config.Footer = append(p.config.Footer, l.Raw)
		}

	case modeFooter:
		p.config.Footer = append(p.config.Footer, l.Raw)
	}
	return nil
}

func (p *Parser) open(l Line) error {
	s := NewSection(l.Indent, l.Name)
	var err error
	if len(p.stack) == 0 {
		err = p.config.AddSection(s)
	} else {
		err = p.top().AddSection(s)
	}
	if err != nil {
		return err
	}
	p.stack = append(p.stack, s)
	return nil
}

func (p *Parser) top() *Section {
	return p.stack[len(p.stack)-1]
}

func (p *Parser) warn(line int, msg string) {
	w := Warning{Line: line, Message: msg}
	slog.Debug("config parse warning", "line", line, "msg", msg)
	p.warnings = append(p.warnings, w)
}

// Parse parses text with policy.
func Parse(text string, policy Policy) (*Config, error) {
	return NewParser(text, policy).Parse()
}

// ParseFile reads and parses the file at path.
func ParseFile(path string, policy Policy) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(string(data), policy)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
