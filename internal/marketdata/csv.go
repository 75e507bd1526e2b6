// Package marketdata loads daily price series and resamples them.
//
// Series come from NSE-style index exports (CSV or XLSX) with the columns
// Date, Open, High, Low, Close, Shares Traded and Turnover, or from the
// SQLite bars table. Whatever the source, the result is sorted ascending
// with no duplicate dates.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"swing-backtest/internal/model"
)

// DateLayout is the date format of the index exports (e.g. 14-Jan-2019).
const DateLayout = "02-Jan-2006"

// Column names.
const (
	ColDate     = "Date"
	ColOpen     = "Open"
	ColHigh     = "High"
	ColLow      = "Low"
	ColClose    = "Close"
	ColVolume   = "Shares Traded"
	ColTurnover = "Turnover"
)

var (
	ErrMissingColumn = errors.New("missing column")
	ErrBlankPrice    = errors.New("blank price")
	ErrDuplicateDate = errors.New("duplicate date")
	ErrEmptySeries   = errors.New("no rows")
)

// rowParser maps header positions to bar fields.
type rowParser struct {
	idx map[string]int
}

func newRowParser(header []string) (*rowParser, error) {
	p := &rowParser{idx: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		p.idx[h] = i
	}
	for _, c := range []string{ColDate, ColOpen, ColHigh, ColLow, ColClose} {
		if _, ok := p.idx[c]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, c)
		}
	}
	return p, nil
}

func (p *rowParser) field(rec []string, col string) string {
	i, ok := p.idx[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// number parses a numeric cell. Blank cells read as zero unless the column
// is required.
func (p *rowParser) number(rec []string, col string, required bool) (float64, error) {
	s := p.field(rec, col)
	if s == "" {
		if required {
			return 0, fmt.Errorf("column %q: %w", col, ErrBlankPrice)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", col, err)
	}
	return v, nil
}

func (p *rowParser) parse(rec []string) (model.Bar, error) {
	date, err := ParseDate(p.field(rec, ColDate))
	if err != nil {
		return model.Bar{}, err
	}
	b := model.Bar{Date: date}
	for _, f := range []struct {
		col      string
		dst      *float64
		required bool
	}{
		{ColOpen, &b.Open, true},
		{ColHigh, &b.High, true},
		{ColLow, &b.Low, true},
		{ColClose, &b.Close, true},
		{ColVolume, &b.Volume, false},
		{ColTurnover, &b.Turnover, false},
	} {
		if *f.dst, err = p.number(rec, f.col, f.required); err != nil {
			return model.Bar{}, err
		}
	}
	return b, nil
}

// ParseDate parses an export date (02-Jan-2006), falling back to ISO
// (2006-01-02). The result is UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want DD-Mon-YYYY", s)
	}
	return t, nil
}

// ReadCSV parses an index export.
func ReadCSV(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySeries
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	p, err := newRowParser(header)
	if err != nil {
		return nil, err
	}

	var bars []model.Bar
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		b, err := p.parse(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return finish(bars)
}

// LoadCSV reads an index export from path.
func LoadCSV(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// finish sorts bars ascending and rejects duplicate dates.
func finish(bars []model.Bar) ([]model.Bar, error) {
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	for i := 1; i < len(bars); i++ {
		if bars[i].Date.Equal(bars[i-1].Date) {
			return nil, fmt.Errorf("%w %s", ErrDuplicateDate, bars[i].Date.Format(time.DateOnly))
		}
	}
	return bars, nil
}
