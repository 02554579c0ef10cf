package loader

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/table"
)

// parseXLSX reads the first sheet of a workbook. The first row is the
// header; cells go through the same inference as CSV fields.
func parseXLSX(data []byte, opts Options) (*table.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, qerr.New(qerr.KindParse, "cannot open XLSX workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, qerr.New(qerr.KindParse, "no sheets found in XLSX workbook")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, qerr.New(qerr.KindParse, "cannot read sheet %q: %v", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, qerr.New(qerr.KindParse, "sheet %q is empty: no header row", sheets[0])
	}
	return fromText(rows[0], rows[1:], opts)
}
