// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package textextractpdftextlib

import (
	"bytes"
	"fmt"
	"strconv"
)

// OperandKind identifies the type of a content stream operand
type OperandKind int

const (
	OperandNumber OperandKind = iota
	OperandString
	OperandName
	OperandArray
	OperandDict
	OperandBool
	OperandNull
)

// Operand is one parsed operand of a content stream operation.
type Operand struct {
	Kind  OperandKind
	Num   float64
	Str   []byte
	Name  string
	Array []Operand
	Dict  map[string]Operand
}

// Operation is an operator with its operands. Start and End delimit the
// operation's bytes in the source stream so an editor can splice it out.
type Operation struct {
	Operator string
	Operands []Operand
	Start    int
	End      int
}

// Float returns operand i as a number, or zero when absent or not numeric.
func (op Operation) Float(i int) float64 {
	if i < 0 || i >= len(op.Operands) || op.Operands[i].Kind != OperandNumber {
		return 0
	}
	return op.Operands[i].Num
}

// NameAt returns operand i as a name, or "".
func (op Operation) NameAt(i int) string {
	if i < 0 || i >= len(op.Operands) || op.Operands[i].Kind != OperandName {
		return ""
	}
	return op.Operands[i].Name
}

// SyntaxError reports a malformed content stream.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("content stream syntax error at byte %d: %s", e.Offset, e.Msg)
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

type lexer struct {
	data []byte
	pos  int
}

// Tokenize parses a decoded content stream into operations. On a syntax
// error the operations parsed so far are returned with the error.
func Tokenize(data []byte) ([]Operation, error) {
	lx := &lexer{data: data}
	var ops []Operation
	var operands []Operand
	start := -1

	for {
		lx.skipSpace()
		if lx.pos >= len(lx.data) {
			break
		}
		tokStart := lx.pos
		if start < 0 {
			start = tokStart
		}

		c := lx.data[lx.pos]
		if isDelimiter(c) && c != '{' && c != '}' {
			operand, err := lx.readObject()
			if err != nil {
				return ops, err
			}
			operands = append(operands, operand)
			continue
		}

		word := lx.readRegular()
		if word == "" {
			// stray '{' or '}'
			lx.pos++
			start = -1
			operands = nil
			continue
		}
		if operand, ok := parseAtom(word); ok {
			operands = append(operands, operand)
			continue
		}

		if word == "BI" {
			op, err := lx.readInlineImage(start)
			if err != nil {
				return ops, err
			}
			ops = append(ops, op)
		} else {
			ops = append(ops, Operation{Operator: word, Operands: operands, Start: start, End: lx.pos})
		}
		operands = nil
		start = -1
	}
	return ops, nil
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if isWhitespace(c) {
			lx.pos++
			continue
		}
		if c == '%' {
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
			continue
		}
		return
	}
}

func (lx *lexer) readRegular() string {
	start := lx.pos
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		lx.pos++
	}
	return string(lx.data[start:lx.pos])
}

func parseAtom(word string) (Operand, bool) {
	switch word {
	case "true":
		return Operand{Kind: OperandBool, Num: 1}, true
	case "false":
		return Operand{Kind: OperandBool}, true
	case "null":
		return Operand{Kind: OperandNull}, true
	}
	c := word[0]
	if (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.' {
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return Operand{Kind: OperandNumber, Num: f}, true
		}
		// malformed numbers such as "--1" or "1.2.3" read as zero
		return Operand{Kind: OperandNumber}, true
	}
	return Operand{}, false
}

func (lx *lexer) readObject() (Operand, error) {
	lx.skipSpace()
	if lx.pos >= len(lx.data) {
		return Operand{}, &SyntaxError{Offset: lx.pos, Msg: "unexpected end of stream"}
	}
	switch c := lx.data[lx.pos]; {
	case c == '(':
		s, err := lx.readLiteralString()
		return Operand{Kind: OperandString, Str: s}, err
	case c == '<' && lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '<':
		d, err := lx.readDict(">>")
		return Operand{Kind: OperandDict, Dict: d}, err
	case c == '<':
		s, err := lx.readHexString()
		return Operand{Kind: OperandString, Str: s}, err
	case c == '[':
		lx.pos++
		var arr []Operand
		for {
			lx.skipSpace()
			if lx.pos >= len(lx.data) {
				return Operand{}, &SyntaxError{Offset: lx.pos, Msg: "unterminated array"}
			}
			if lx.data[lx.pos] == ']' {
				lx.pos++
				return Operand{Kind: OperandArray, Array: arr}, nil
			}
			item, err := lx.readObject()
			if err != nil {
				return Operand{}, err
			}
			arr = append(arr, item)
		}
	case c == '/':
		lx.pos++
		return Operand{Kind: OperandName, Name: decodeName(lx.readRegular())}, nil
	case c == ')' || c == '>' || c == ']':
		return Operand{}, &SyntaxError{Offset: lx.pos, Msg: fmt.Sprintf("unexpected %q", c)}
	default:
		word := lx.readRegular()
		if word == "" {
			lx.pos++
			return Operand{Kind: OperandNull}, nil
		}
		if operand, ok := parseAtom(word); ok {
			return operand, nil
		}
		// bare keyword inside an array or dict
		return Operand{Kind: OperandName, Name: word}, nil
	}
}

// readDict reads a dictionary up to the closing token: ">>" for a normal
// dictionary or "ID" for inline image parameters.
func (lx *lexer) readDict(closing string) (map[string]Operand, error) {
	if closing == ">>" {
		lx.pos += 2
	}
	d := make(map[string]Operand)
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.data) {
			return d, &SyntaxError{Offset: lx.pos, Msg: "unterminated dictionary"}
		}
		if closing == ">>" && bytes.HasPrefix(lx.data[lx.pos:], []byte(">>")) {
			lx.pos += 2
			return d, nil
		}
		if closing == "ID" && bytes.HasPrefix(lx.data[lx.pos:], []byte("ID")) {
			end := lx.pos + 2
			if end >= len(lx.data) || isWhitespace(lx.data[end]) {
				lx.pos = end
				return d, nil
			}
		}
		key, err := lx.readObject()
		if err != nil {
			return d, err
		}
		if key.Kind != OperandName {
			return d, &SyntaxError{Offset: lx.pos, Msg: "dictionary key is not a name"}
		}
		value, err := lx.readObject()
		if err != nil {
			return d, err
		}
		d[key.Name] = value
	}
}

func (lx *lexer) readInlineImage(start int) (Operation, error) {
	params, err := lx.readDict("ID")
	if err != nil {
		return Operation{}, err
	}
	// exactly one whitespace byte separates ID from the image data
	if lx.pos < len(lx.data) {
		lx.pos++
	}
	for i := lx.pos; i+1 < len(lx.data); i++ {
		if lx.data[i] != 'E' || lx.data[i+1] != 'I' {
			continue
		}
		if i > 0 && !isWhitespace(lx.data[i-1]) {
			continue
		}
		after := i + 2
		if after < len(lx.data) && !isWhitespace(lx.data[after]) && !isDelimiter(lx.data[after]) {
			continue
		}
		lx.pos = after
		return Operation{
			Operator: "BI",
			Operands: []Operand{{Kind: OperandDict, Dict: params}},
			Start:    start,
			End:      after,
		}, nil
	}
	return Operation{}, &SyntaxError{Offset: lx.pos, Msg: "inline image without EI"}
}

func (lx *lexer) readLiteralString() ([]byte, error) {
	lx.pos++ // (
	var out []byte
	depth := 1
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, c)
		case '\\':
			if lx.pos >= len(lx.data) {
				break
			}
			e := lx.data[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if lx.pos < len(lx.data) && lx.data[lx.pos] == '\n' {
					lx.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && lx.pos < len(lx.data); k++ {
						d := lx.data[lx.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						lx.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out, &SyntaxError{Offset: lx.pos, Msg: "unterminated string"}
}

func (lx *lexer) readHexString() ([]byte, error) {
	lx.pos++ // <
	var out []byte
	var hi byte
	half := false
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return out, nil
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
			half = false
		} else {
			hi = v
			half = true
		}
	}
	return out, &SyntaxError{Offset: lx.pos, Msg: "unterminated hex string"}
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// decodeName resolves #xx escapes in a name token.
func decodeName(s string) string {
	if !bytes.Contains([]byte(s), []byte("#")) {
		return s
	}
	var out []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && i+2 < len(s) {
			h, ok1 := hexValue(s[i+1])
			l, ok2 := hexValue(s[i+2])
			if ok1 && ok2 {
				out = append(out, h<<4|l)
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}
