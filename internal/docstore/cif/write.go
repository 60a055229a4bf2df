package cif

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var bareToken = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.+\-:/@%,]*$`)

var reservedPrefixes = []string{"data_", "loop_", "save_", "global_", "stop_"}

// encodeValue returns the on-disk token for v and whether it must be written
// as a semicolon text field.
func encodeValue(v string) (string, bool) {
	if v == "" {
		return "?", false
	}
	e := Escape(v)
	if strings.Contains(e, "\n") {
		return e, true
	}
	if bareToken.MatchString(e) && !isReserved(e) {
		return e, false
	}
	if !strings.Contains(e, "'") {
		return "'" + e + "'", false
	}
	if !strings.Contains(e, `"`) {
		return `"` + e + `"`, false
	}
	return e, true
}

func isReserved(s string) bool {
	l := strings.ToLower(s)
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	return false
}

type lineWriter struct {
	w         *bufio.Writer
	lineStart bool
}

func (lw *lineWriter) value(v string) {
	tok, text := encodeValue(v)
	if text {
		if !lw.lineStart {
			lw.w.WriteByte('\n')
		}
		lw.w.WriteByte(';')
		lw.w.WriteString(tok)
		lw.w.WriteString("\n;\n")
		lw.lineStart = true
		return
	}
	if !lw.lineStart {
		lw.w.WriteByte(' ')
	}
	lw.w.WriteString(tok)
	lw.lineStart = false
}

func (lw *lineWriter) endLine() {
	if !lw.lineStart {
		lw.w.WriteByte('\n')
		lw.lineStart = true
	}
}

// Write renders d. Tables with a single row use pair form, others use loop_.
// Tables without rows are omitted.
func Write(w io.Writer, d *Document) error {
	bw := bufio.NewWriter(w)
	lw := &lineWriter{w: bw, lineStart: true}

	block := d.Block
	if block == "" {
		block = "messages"
	}
	fmt.Fprintf(bw, "data_%s\n", block)

	for _, t := range d.Tables {
		if len(t.Rows) == 0 {
			continue
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("table %q has no columns", t.Name)
		}
		bw.WriteString("#\n")

		if len(t.Rows) == 1 {
			for i, c := range t.Columns {
				fmt.Fprintf(bw, "_%s.%s", t.Name, c)
				lw.lineStart = false
				lw.value(cell(t.Rows[0], i))
				lw.endLine()
			}
			continue
		}

		bw.WriteString("loop_\n")
		for _, c := range t.Columns {
			fmt.Fprintf(bw, "_%s.%s\n", t.Name, c)
		}
		for _, row := range t.Rows {
			for i := range t.Columns {
				lw.value(cell(row, i))
			}
			lw.endLine()
		}
	}
	bw.WriteString("#\n")
	return bw.Flush()
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// Marshal is Write into a byte slice.
func Marshal(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
