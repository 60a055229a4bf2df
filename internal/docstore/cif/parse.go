package cif

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("cif syntax error")

type tokenKind int

const (
	tokValue tokenKind = iota
	tokTag
	tokLoop
	tokData
)

type token struct {
	kind tokenKind
	text string
	null bool
	line int
}

type lexer struct {
	src  string
	pos  int
	line int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n'
}

func (l *lexer) atLineStart() bool {
	return l.pos == 0 || l.src[l.pos-1] == '\n'
}

func (l *lexer) next() (*token, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case isSpace(c):
			l.pos++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return l.token()
		}
	}
	return nil, io.EOF
}

func (l *lexer) token() (*token, error) {
	start := l.pos
	line := l.line + 1
	c := l.src[l.pos]

	if c == ';' && l.atLineStart() {
		end := strings.Index(l.src[start+1:], "\n;")
		if end < 0 {
			return nil, fmt.Errorf("%w: line %d: unterminated text field", ErrSyntax, line)
		}
		text := l.src[start+1 : start+1+end]
		l.line += strings.Count(text, "\n") + 1
		l.pos = start + 1 + end + 2
		return &token{kind: tokValue, text: text, line: line}, nil
	}

	if c == '\'' || c == '"' {
		i := start + 1
		for {
			j := strings.IndexByte(l.src[i:], c)
			if j < 0 {
				return nil, fmt.Errorf("%w: line %d: unterminated quoted value", ErrSyntax, line)
			}
			end := i + j
			if end+1 >= len(l.src) || isSpace(l.src[end+1]) {
				text := l.src[start+1 : end]
				if strings.Contains(text, "\n") {
					return nil, fmt.Errorf("%w: line %d: newline in quoted value", ErrSyntax, line)
				}
				l.pos = end + 1
				return &token{kind: tokValue, text: text, line: line}, nil
			}
			i = end + 1
		}
	}

	for l.pos < len(l.src) && !isSpace(l.src[l.pos]) {
		l.pos++
	}
	text := l.src[start:l.pos]
	lower := strings.ToLower(text)

	switch {
	case c == '_':
		return &token{kind: tokTag, text: text[1:], line: line}, nil
	case lower == "loop_":
		return &token{kind: tokLoop, line: line}, nil
	case strings.HasPrefix(lower, "data_"):
		return &token{kind: tokData, text: text[5:], line: line}, nil
	case text == "?" || text == ".":
		return &token{kind: tokValue, null: true, line: line}, nil
	}
	return &token{kind: tokValue, text: text, line: line}, nil
}

func splitTag(tag string, line int) (string, string, error) {
	i := strings.IndexByte(tag, '.')
	if i <= 0 || i == len(tag)-1 {
		return "", "", fmt.Errorf("%w: line %d: malformed tag _%s", ErrSyntax, line, tag)
	}
	return tag[:i], tag[i+1:], nil
}

func tokenValue(t *token) (string, error) {
	if t.null {
		return "", nil
	}
	v, err := Unescape(t.text)
	if err != nil {
		return "", fmt.Errorf("%w: line %d: %w", ErrSyntax, t.line, err)
	}
	return v, nil
}

// Parse reads a single-block document. Only the first data block is kept.
func Parse(r io.Reader) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(raw)
}

// Unmarshal parses b as a document.
func Unmarshal(b []byte) (*Document, error) {
	src := string(bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n")))
	lx := &lexer{src: src}
	doc := &Document{}
	seenBlock := false

	var pending *token
	next := func() (*token, error) {
		if pending != nil {
			t := pending
			pending = nil
			return t, nil
		}
		return lx.next()
	}

	for {
		t, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t.kind {
		case tokData:
			if seenBlock {
				return doc, nil
			}
			seenBlock = true
			doc.Block = t.text

		case tokTag:
			cat, col, err := splitTag(t.text, t.line)
			if err != nil {
				return nil, err
			}
			vt, err := next()
			if err != nil || vt.kind != tokValue {
				return nil, fmt.Errorf("%w: line %d: missing value for _%s", ErrSyntax, t.line, t.text)
			}
			v, err := tokenValue(vt)
			if err != nil {
				return nil, err
			}
			tbl := doc.Table(cat)
			if tbl == nil {
				tbl = doc.AddTable(cat)
				tbl.Rows = [][]string{{}}
			}
			if len(tbl.Rows) != 1 {
				return nil, fmt.Errorf("%w: line %d: pair _%s follows loop of same category", ErrSyntax, t.line, t.text)
			}
			if tbl.ColumnIndex(col) >= 0 {
				return nil, fmt.Errorf("%w: line %d: duplicate item _%s", ErrSyntax, t.line, t.text)
			}
			tbl.Columns = append(tbl.Columns, col)
			tbl.Rows[0] = append(tbl.Rows[0], v)

		case tokLoop:
			var tbl *Table
			for {
				tt, err := next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return nil, err
				}
				if tt.kind != tokTag {
					pending = tt
					break
				}
				cat, col, err := splitTag(tt.text, tt.line)
				if err != nil {
					return nil, err
				}
				if tbl == nil {
					if doc.Table(cat) != nil {
						return nil, fmt.Errorf("%w: line %d: category %s defined twice", ErrSyntax, tt.line, cat)
					}
					tbl = doc.AddTable(cat)
				} else if tbl.Name != cat {
					return nil, fmt.Errorf("%w: line %d: loop mixes categories %s and %s", ErrSyntax, tt.line, tbl.Name, cat)
				}
				tbl.Columns = append(tbl.Columns, col)
			}
			if tbl == nil {
				return nil, fmt.Errorf("%w: line %d: loop_ without tags", ErrSyntax, t.line)
			}

			var row []string
			for {
				vt, err := next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return nil, err
				}
				if vt.kind != tokValue {
					pending = vt
					break
				}
				v, err := tokenValue(vt)
				if err != nil {
					return nil, err
				}
				row = append(row, v)
				if len(row) == len(tbl.Columns) {
					tbl.Rows = append(tbl.Rows, row)
					row = nil
				}
			}
			if len(row) != 0 {
				return nil, fmt.Errorf("%w: loop %s: value count is not a multiple of %d", ErrSyntax, tbl.Name, len(tbl.Columns))
			}

		case tokValue:
			return nil, fmt.Errorf("%w: line %d: unexpected value", ErrSyntax, t.line)
		}
	}

	if !seenBlock {
		return nil, fmt.Errorf("%w: no data block", ErrSyntax)
	}
	return doc, nil
}
