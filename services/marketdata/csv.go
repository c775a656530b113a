// Package marketdata loads OHLCV series for the engine from CSV datasets or
// ClickHouse.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"sp500-backtest/services/engine"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrBadDate       = errors.New("unparseable date")
	ErrBadNumber     = errors.New("non-numeric value")
)

// Column names, matched case-insensitively against the header row
const (
	ColDate   = "Date"
	ColOpen   = "Open"
	ColHigh   = "High"
	ColLow    = "Low"
	ColClose  = "Close"
	ColVolume = "Volume"
)

var RequiredColumns = []string{ColDate, ColOpen, ColHigh, ColLow, ColClose, ColVolume}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"01/02/2006",
	"01/02/2006 15:04",
}

// ParseError locates a malformed cell
type ParseError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %s: %v (%q)", e.Line, e.Column, e.Err, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadCSV reads a dataset file
func LoadCSV(path string) ([]engine.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV parses a header-led OHLCV table. Any BOM (UTF-8 or UTF-16) is
// honored. The first malformed cell aborts the whole read.
func ReadCSV(r io.Reader) ([]engine.Bar, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Line: 1, Err: fmt.Errorf("%w: empty input, want %s", ErrMissingColumn, strings.Join(RequiredColumns, ","))}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	bars := make([]engine.Bar, 0, 1_000)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		b, err := parseRow(rec, idx, line)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(RequiredColumns))
	for i, h := range header {
		h = strings.TrimSpace(h)
		for _, want := range RequiredColumns {
			if strings.EqualFold(h, want) {
				if _, dup := idx[want]; !dup {
					idx[want] = i
				}
			}
		}
	}
	var missing []string
	for _, want := range RequiredColumns {
		if _, ok := idx[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Line: 1, Err: fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ","))}
	}
	return idx, nil
}

func parseRow(rec []string, idx map[string]int, line int) (engine.Bar, error) {
	cell := func(col string) string {
		if i := idx[col]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var b engine.Bar
	date, err := ParseDate(cell(ColDate))
	if err != nil {
		return b, &ParseError{Line: line, Column: ColDate, Value: cell(ColDate), Err: err}
	}
	b.Date = date

	for _, f := range []struct {
		col string
		dst *decimal.Decimal
	}{
		{ColOpen, &b.Open},
		{ColHigh, &b.High},
		{ColLow, &b.Low},
		{ColClose, &b.Close},
		{ColVolume, &b.Volume},
	} {
		v, err := decimal.NewFromString(cell(f.col))
		if err != nil {
			return b, &ParseError{Line: line, Column: f.col, Value: cell(f.col), Err: ErrBadNumber}
		}
		*f.dst = v
	}
	return b, nil
}

// ParseDate accepts calendar dates, date-times and unix timestamps: 10 digits
// are seconds, 13 digits are milliseconds. Values without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadDate
	}
	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, ErrBadDate
		}
		switch len(s) {
		case 10:
			return time.Unix(n, 0).UTC(), nil
		case 13:
			return time.UnixMilli(n).UTC(), nil
		default:
			return time.Time{}, ErrBadDate
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrBadDate
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
