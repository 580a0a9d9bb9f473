package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSX encodes the file as a single-sheet workbook, header row first. An
// empty sheet yields a workbook with just the header row.
func (f File) XLSX() ([]byte, error) {
	wb := excelize.NewFile()
	defer wb.Close()

	const name = "Sheet1"
	columns := f.ExportColumns()

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := wb.SetSheetRow(name, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, r := range f.Sheet {
		cells := make([]any, len(columns))
		for j, c := range columns {
			switch c {
			case PageColumn:
				cells[j] = r.Page
			case SeqColumn:
				cells[j] = r.Seq
			default:
				cells[j] = r.Fields[c]
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := wb.SetSheetRow(name, cell, &cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
