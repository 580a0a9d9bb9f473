package sheet

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Column keys for the page number and in-page sequence number stamped onto
// every row. These are assigned by the extractor, never by the model.
const (
	PageColumn = "رقم الصفحة"
	SeqColumn  = "رقم النص"
)

// Row is a single extracted record. Fields holds the mode-specific columns
// (dialogue line or foreign-name entry); Page and Seq locate the row in the
// source document.
type Row struct {
	Fields map[string]string
	Page   int
	Seq    int
}

// MarshalJSON flattens the row into one object, field columns alongside the
// page/sequence columns, matching the persisted sheet format.
func (r Row) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		m[k] = v
	}
	m[PageColumn] = r.Page
	m[SeqColumn] = r.Seq
	return json.Marshal(m)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.Fields = make(map[string]string, len(m))
	for k, v := range m {
		switch k {
		case PageColumn:
			r.Page = asInt(v)
		case SeqColumn:
			r.Seq = asInt(v)
		default:
			r.Fields[k] = asString(v)
		}
	}
	return nil
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return 0
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Sheet is the ordered table of rows for one document. Insertion order is
// completion order of extraction calls.
type Sheet []Row

// Sorted returns a copy ordered page ascending, then in-page sequence
// ascending. Sheets are always sorted before persistence.
func (s Sheet) Sorted() Sheet {
	out := make(Sheet, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// File is the terminal artifact for one document: source filename, column
// order for exports, and the sheet itself.
type File struct {
	PDFFilename string   `json:"pdfFilename"`
	Columns     []string `json:"columns,omitempty"`
	Sheet       Sheet    `json:"sheet"`
}

// ExportColumns returns the full column list for tabular exports: the
// mode-specific columns followed by the page and sequence columns. When the
// stored file predates the columns field, the order falls back to the first
// row's keys, sorted.
func (f File) ExportColumns() []string {
	cols := f.Columns
	if len(cols) == 0 && len(f.Sheet) > 0 {
		for k := range f.Sheet[0].Fields {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	return append(append([]string{}, cols...), PageColumn, SeqColumn)
}

func (r Row) value(column string) string {
	switch column {
	case PageColumn:
		return fmt.Sprintf("%d", r.Page)
	case SeqColumn:
		return fmt.Sprintf("%d", r.Seq)
	default:
		return r.Fields[column]
	}
}
