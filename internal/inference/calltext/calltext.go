// Package calltext parses structured action calls out of free-form model
// output. It implements a small explicit grammar:
//
//	call:<name>{<key>:<value>(,<key>:<value>)*}
//
// where <name> and <key> are word characters and values are coerced
// number > boolean > string. A single JSON object of the form
// {"name":"...","arguments":{...}} is accepted as an alternative. The
// package is deliberately independent of any backend or transport code.
package calltext

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Call is one parsed action call.
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Parse extracts the first action call found in text. It tries the call:
// grammar first and falls back to a single JSON object. Returns an error
// when neither form is present.
func Parse(text string) (*Call, error) {
	if call, err := parseCallSyntax(text); err == nil {
		return call, nil
	}
	if call, err := parseJSONObject(text); err == nil {
		return call, nil
	}
	return nil, fmt.Errorf("no action call found in text")
}

// ═══════════════════════════════════════════════════════════════════════════════
// call:<name>{...} GRAMMAR
// ═══════════════════════════════════════════════════════════════════════════════

const marker = "call:"

func parseCallSyntax(text string) (*Call, error) {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return nil, fmt.Errorf("no %q marker", marker)
	}

	lx := &lexer{input: text, pos: idx + len(marker)}

	name := lx.readWord()
	if name == "" {
		return nil, fmt.Errorf("missing call name at offset %d", lx.pos)
	}

	lx.skipSpace()
	if !lx.consume('{') {
		return nil, fmt.Errorf("expected '{' after call name %q", name)
	}

	args := make(map[string]any)
	lx.skipSpace()
	if lx.consume('}') {
		return &Call{Name: name, Arguments: args}, nil
	}

	for {
		lx.skipSpace()
		key := lx.readWord()
		if key == "" {
			return nil, fmt.Errorf("expected argument key at offset %d", lx.pos)
		}
		lx.skipSpace()
		if !lx.consume(':') {
			return nil, fmt.Errorf("expected ':' after key %q", key)
		}
		raw, terminator := lx.readValue()
		args[key] = Coerce(strings.TrimSpace(raw))

		if terminator == '}' {
			break
		}
		if terminator != ',' {
			return nil, fmt.Errorf("unterminated argument list for call %q", name)
		}
	}

	return &Call{Name: name, Arguments: args}, nil
}

// lexer walks the input byte by byte. Values run until an unquoted ',' or
// '}' so they may contain spaces.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *lexer) consume(c byte) bool {
	if l.pos < len(l.input) && l.input[l.pos] == c {
		l.pos++
		return true
	}
	return false
}

// readWord reads [A-Za-z0-9_]+.
func (l *lexer) readWord() string {
	start := l.pos
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		break
	}
	return l.input[start:l.pos]
}

// readValue reads up to the next unquoted ',' or '}' and returns the raw
// value plus the terminator consumed (0 when input ran out).
func (l *lexer) readValue() (string, byte) {
	start := l.pos
	inQuote := byte(0)
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			l.pos++
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
			l.pos++
		case ',', '}':
			raw := l.input[start:l.pos]
			l.pos++
			return raw, c
		default:
			l.pos++
		}
	}
	return l.input[start:l.pos], 0
}

// ═══════════════════════════════════════════════════════════════════════════════
// VALUE COERCION
// ═══════════════════════════════════════════════════════════════════════════════

// Coerce converts a raw value string to number, then boolean, then string.
// Surrounding quotes force string interpretation and are stripped.
func Coerce(raw string) any {
	if len(raw) >= 2 {
		if raw[0] == '"' && raw[len(raw)-1] == '"' || raw[0] == '\'' && raw[len(raw)-1] == '\'' {
			return raw[1 : len(raw)-1]
		}
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	if raw == "true" {
		return true
	}
	if raw == "false" {
		return false
	}
	return raw
}

// ═══════════════════════════════════════════════════════════════════════════════
// JSON FALLBACK
// ═══════════════════════════════════════════════════════════════════════════════

func parseJSONObject(text string) (*Call, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in text")
	}

	var call Call
	if err := json.Unmarshal([]byte(text[start:end+1]), &call); err != nil {
		return nil, fmt.Errorf("parse JSON call: %w", err)
	}
	if call.Name == "" {
		return nil, fmt.Errorf("JSON object has no name field")
	}
	if call.Arguments == nil {
		call.Arguments = make(map[string]any)
	}
	return &call, nil
}
