package cif

// Table is one category. Name excludes the leading underscore.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Document is a single data block.
type Document struct {
	Block  string
	Tables []*Table
}

func NewDocument(block string) *Document {
	return &Document{Block: block}
}

// Table returns the named category or nil.
func (d *Document) Table(name string) *Table {
	for _, t := range d.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// AddTable appends a new category with the given columns.
func (d *Document) AddTable(name string, columns ...string) *Table {
	t := &Table{Name: name, Columns: columns}
	d.Tables = append(d.Tables, t)
	return t
}

// AddRow appends a row; missing trailing values are stored as empty.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// ColumnIndex returns the index of col or -1.
func (t *Table) ColumnIndex(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Value returns the cell at row/col and whether the column exists.
func (t *Table) Value(row int, col string) (string, bool) {
	i := t.ColumnIndex(col)
	if i < 0 || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return "", false
	}
	return t.Rows[row][i], true
}

// RowMap returns row as a column -> value map.
func (t *Table) RowMap(row int) map[string]string {
	m := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(t.Rows[row]) {
			m[c] = t.Rows[row][i]
		}
	}
	return m
}
