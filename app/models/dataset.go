package models

// NormalizedRecord maps a logical field name to its normalized value.
type NormalizedRecord map[string]string

// Dataset is a CSV file held in memory: the header and every data row.
type Dataset struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`

	lastIndex map[string]int
}

// NewDataset indexes header names. When a name repeats, the last column
// with that name is the one read back through Value.
func NewDataset(header []string, rows [][]string) *Dataset {
	d := &Dataset{Header: header, Rows: rows, lastIndex: make(map[string]int, len(header))}
	for i, h := range header {
		d.lastIndex[h] = i
	}
	return d
}

// Len returns the number of data rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// HasColumn reports whether header contains name exactly.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.lastIndex[name]
	return ok
}

// Value returns the cell of row under header, or "" when the row is short
// or the header is unknown.
func (d *Dataset) Value(row int, header string) string {
	idx, ok := d.lastIndex[header]
	if !ok {
		return ""
	}
	r := d.Rows[row]
	if idx >= len(r) {
		return ""
	}
	return r[idx]
}

// View returns the values of row aligned to Header.
func (d *Dataset) View(row int) []string {
	out := make([]string, len(d.Header))
	for i, h := range d.Header {
		out[i] = d.Value(row, h)
	}
	return out
}
