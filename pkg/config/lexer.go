// Package config implements the EdgeRouter configuration parser, data model
// and structural diff.
package config

import (
	"fmt"
	"strings"
)

// LineType classifies a single line of configuration text.
type LineType int

const (
	LineBlank   LineType = iota // empty after trimming
	LineOpen                    // name {
	LineClose                   // }
	LineContent                 // key value, or a bare keyword
)

func (t LineType) String() string {
	switch t {
	case LineBlank:
		return "blank"
	case LineOpen:
		return "'{'"
	case LineClose:
		return "'}'"
	case LineContent:
		return "content"
	default:
		return "unknown"
	}
}

// Line is one classified line of input.
type Line struct {
	Type   LineType
	Indent string // leading whitespace
	Name   string // section name for LineOpen
	Key    string // entry key for LineContent
	Value  string // entry value for LineContent, empty for bare keywords
	Bare   bool   // LineContent without a value
	Raw    string // the right-trimmed line
	Number int    // 1-based
}

func (l Line) String() string {
	switch l.Type {
	case LineOpen:
		return fmt.Sprintf("%s(%q)", l.Type, l.Name)
	case LineContent:
		if l.Bare {
			return fmt.Sprintf("%s(%q)", l.Type, l.Key)
		}
		return fmt.Sprintf("%s(%q %q)", l.Type, l.Key, l.Value)
	}
	return l.Type.String()
}

// Lexer splits configuration text into classified lines.
type Lexer struct {
	lines []string
	pos   int
}

// NewLexer creates a new Lexer for the given input string. A single trailing
// newline terminates the last line instead of starting an empty one.
func NewLexer(input string) *Lexer {
	input = strings.TrimSuffix(input, "\n")
	var lines []string
	if input != "" {
		lines = strings.Split(input, "\n")
	}
	return &Lexer{lines: lines}
}

// Next returns the next line and false once the input is exhausted.
func (l *Lexer) Next() (Line, bool) {
	if l.pos >= len(l.lines) {
		return Line{}, false
	}
	raw := l.lines[l.pos]
	l.pos++
	line := Classify(raw)
	line.Number = l.pos
	return line, true
}

// Classify trims trailing whitespace from raw and determines its shape.
func Classify(raw string) Line {
	raw = strings.TrimRight(raw, " \t\r")
	body := strings.TrimLeft(raw, " \t")
	line := Line{
		Indent: raw[:len(raw)-len(body)],
		Raw:    raw,
	}

	switch {
	case body == "":
		line.Type = LineBlank
	case body == "}":
		line.Type = LineClose
	case strings.HasSuffix(body, " {") && isSectionName(strings.TrimSuffix(body, " {")):
		line.Type = LineOpen
		line.Name = strings.TrimRight(strings.TrimSuffix(body, " {"), " \t")
	default:
		line.Type = LineContent
		if key, value, ok := strings.Cut(body, " "); ok {
			line.Key, line.Value = key, value
		} else {
			line.Key, line.Bare = body, true
		}
	}
	return line
}

// isSectionName rejects openers whose name would be empty.
func isSectionName(s string) bool {
	return strings.TrimSpace(s) != ""
}
