// Package jsonc formats and cleans JSON-with-comments documents.
//
// DESIGN: A small tokenizer splits the input into strings, literals,
// structural characters and comments. Everything that looks like a comment
// inside a string literal stays part of the string:
//
//	{"url": "https://example.com"}  // the "//" in the URL is not a comment
//
// Prettify re-emits the token stream with 2-space indentation and keeps
// comments where they were (trailing comments stay on their line, comments
// on their own line stay on their own line). StripComments removes comments
// and leaves every other byte untouched.
package jsonc

import (
	"strings"

	"github.com/tidwall/gjson"
)

// indentUnit is the indentation emitted per nesting level.
const indentUnit = "  "

// StripComments removes // and /* */ comments that are outside string
// literals. Line comments keep their terminating newline so line numbers
// in later parse errors still match the source.
func StripComments(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '"':
			end := scanString(text, i)
			b.WriteString(text[i:end])
			i = end
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			i = scanLineComment(text, i)
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i = scanBlockComment(text, i)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// Valid reports whether text is valid JSON once its comments are removed.
func Valid(text string) bool {
	return gjson.Valid(StripComments(text))
}

// Prettify reformats a JSONC document with 2-space indentation while
// preserving comments. Empty objects and arrays stay on one line and empty
// input yields empty output. Malformed input is formatted on a best-effort
// basis and never rejected.
func Prettify(text string) string {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return ""
	}

	p := printer{}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.kind {
		case tokOpen:
			p.writeValue(tok.text)
			if i+1 < len(tokens) && tokens[i+1].kind == tokClose && closes(tok.text, tokens[i+1].text) {
				p.b.WriteString(tokens[i+1].text)
				i++
				continue
			}
			p.indent++
			p.pending = true
		case tokClose:
			if p.indent > 0 {
				p.indent--
			}
			p.pending = false
			p.needSpace = false
			p.newline()
			p.b.WriteString(tok.text)
		case tokComma:
			p.needSpace = false
			p.b.WriteString(",")
			p.pending = true
		case tokColon:
			p.needSpace = false
			p.b.WriteString(": ")
			p.afterColon = true
		case tokLineComment:
			p.writeComment(tok)
			p.pending = true
		case tokBlockComment:
			wasPending := p.pending
			if p.writeComment(tok) || wasPending {
				p.pending = true
			} else {
				p.needSpace = true
			}
		default:
			p.writeValue(tok.text)
		}
	}
	return p.b.String()
}

// =============================================================================
// PRINTER
// =============================================================================

type printer struct {
	b          strings.Builder
	indent     int
	pending    bool // next value starts on a new line
	needSpace  bool // an inline block comment precedes the next value
	afterColon bool
	written    bool
}

func (p *printer) newline() {
	if !p.written {
		return
	}
	p.b.WriteByte('\n')
	p.b.WriteString(strings.Repeat(indentUnit, p.indent))
}

func (p *printer) writeValue(s string) {
	switch {
	case p.pending:
		p.newline()
		p.pending = false
	case p.needSpace:
		p.b.WriteByte(' ')
	}
	p.needSpace = false
	p.afterColon = false
	p.b.WriteString(s)
	p.written = true
}

// writeComment emits a comment and reports whether it sits on its own line.
func (p *printer) writeComment(tok token) bool {
	ownLine := true
	switch {
	case !p.written:
	case !tok.newlineBefore:
		ownLine = false
		if !p.afterColon {
			p.b.WriteByte(' ')
		}
	default:
		p.newline()
		p.pending = false
	}
	p.needSpace = false
	p.afterColon = false
	p.b.WriteString(tok.text)
	p.written = true
	return ownLine
}

// =============================================================================
// TOKENIZER
// =============================================================================

type tokenKind int

const (
	tokLiteral tokenKind = iota
	tokString
	tokOpen
	tokClose
	tokComma
	tokColon
	tokLineComment
	tokBlockComment
)

type token struct {
	kind          tokenKind
	text          string
	newlineBefore bool // source had a line break between this and the previous token
}

func tokenize(text string) []token {
	var tokens []token
	sawNewline := false

	for i := 0; i < len(text); {
		c := text[i]
		start := i
		var kind tokenKind

		switch {
		case c == '\n':
			sawNewline = true
			i++
			continue
		case c == ' ' || c == '\t' || c == '\r':
			i++
			continue
		case c == '"':
			kind = tokString
			i = scanString(text, i)
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			kind = tokLineComment
			i = scanLineComment(text, i)
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			kind = tokBlockComment
			i = scanBlockComment(text, i)
		case c == '{' || c == '[':
			kind = tokOpen
			i++
		case c == '}' || c == ']':
			kind = tokClose
			i++
		case c == ',':
			kind = tokComma
			i++
		case c == ':':
			kind = tokColon
			i++
		default:
			kind = tokLiteral
			i = scanLiteral(text, i)
		}

		tokens = append(tokens, token{
			kind:          kind,
			text:          strings.TrimRight(text[start:i], "\r"),
			newlineBefore: sawNewline,
		})
		sawNewline = false
	}
	return tokens
}

// scanString returns the index just past the string literal starting at
// text[start] == '"'. An unterminated string runs to the end of input.
func scanString(text string, start int) int {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(text)
}

// scanLineComment returns the index of the newline ending the comment,
// leaving the newline itself in the input.
func scanLineComment(text string, start int) int {
	if idx := strings.IndexByte(text[start:], '\n'); idx >= 0 {
		return start + idx
	}
	return len(text)
}

// scanBlockComment returns the index just past the closing "*/".
func scanBlockComment(text string, start int) int {
	if idx := strings.Index(text[start+2:], "*/"); idx >= 0 {
		return start + 2 + idx + 2
	}
	return len(text)
}

func scanLiteral(text string, start int) int {
	i := start
	for i < len(text) {
		c := text[i]
		if strings.IndexByte(" \t\r\n{}[],:\"", c) >= 0 {
			break
		}
		if c == '/' && i+1 < len(text) && (text[i+1] == '/' || text[i+1] == '*') {
			break
		}
		i++
	}
	if i == start {
		i++
	}
	return i
}

func closes(opening, closing string) bool {
	return (opening == "{" && closing == "}") || (opening == "[" && closing == "]")
}
