package marketdata

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"swing-backtest/internal/model"
)

// LoadXLSX reads an index export saved as a workbook. The first sheet whose
// first row carries the Date and Close headers is used.
func LoadXLSX(path string) ([]model.Bar, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		p, err := newRowParser(rows[0])
		if err != nil {
			continue
		}
		bars := make([]model.Bar, 0, len(rows)-1)
		for i, rec := range rows[1:] {
			if blank(rec) {
				continue
			}
			b, err := p.parse(rec)
			if err != nil {
				return nil, fmt.Errorf("%s: sheet %q row %d: %w", path, sheet, i+2, err)
			}
			bars = append(bars, b)
		}
		bars, err = finish(bars)
		if err != nil {
			return nil, fmt.Errorf("%s: sheet %q: %w", path, sheet, err)
		}
		return bars, nil
	}
	return nil, fmt.Errorf("%s: no sheet with %s", path, strings.Join([]string{ColDate, ColOpen, ColHigh, ColLow, ColClose}, "/"))
}
