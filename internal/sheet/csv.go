package sheet

import "strings"

// CSV encodes the file as CSV: unquoted header row, quoted data cells with `"`
// escaped by doubling, CRLF row separators. An empty sheet encodes to the
// empty string (no header row).
func (f File) CSV() string {
	if len(f.Sheet) == 0 {
		return ""
	}

	columns := f.ExportColumns()
	rows := make([]string, 0, len(f.Sheet)+1)
	rows = append(rows, strings.Join(columns, ","))

	for _, r := range f.Sheet {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = quote(r.value(c))
		}
		rows = append(rows, strings.Join(cells, ","))
	}

	return strings.Join(rows, "\r\n")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
