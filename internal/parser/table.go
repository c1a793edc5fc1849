// Package parser turns exchange HTML pages into typed records.
//
// Every function here is pure: the same bytes always produce the same
// records in the same order. Pages are matched by their header row rather
// than by position, and rows are accepted or rejected one at a time so a
// few malformed rows never cost the whole page.
package parser

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// column identifies a logical column independent of its header spelling.
type column int

const (
	colUnknown column = iota
	colRank
	colSymbol
	colDate
	colLTP
	colHigh
	colLow
	colOpen
	colClose
	colYCP
	colChange
	colChangePct
	colTrade
	colValue
	colVolume
)

// headerAliases maps a normalised header label onto a column.
// Labels are normalised by normaliseHeader before lookup.
var headerAliases = map[string]column{
	"#":               colRank,
	"SL":              colRank,
	"SLNO":            colRank,
	"NO":              colRank,
	"RANK":            colRank,
	"TRADINGCODE":     colSymbol,
	"CODE":            colSymbol,
	"SYMBOL":          colSymbol,
	"INSTRUMENT":      colSymbol,
	"SCRIP":           colSymbol,
	"DATE":            colDate,
	"TRADEDATE":       colDate,
	"LTP":             colLTP,
	"LASTTRADEDPRICE": colLTP,
	"LASTTRADEPRICE":  colLTP,
	"LASTPRICE":       colLTP,
	"HIGH":            colHigh,
	"LOW":             colLow,
	"OPENP":           colOpen,
	"OPEN":            colOpen,
	"OPENINGPRICE":    colOpen,
	"CLOSEP":          colClose,
	"CLOSE":           colClose,
	"CLOSINGPRICE":    colClose,
	"YCP":             colYCP,
	"YESTERDAYCLOSE":  colYCP,
	"CHANGE":          colChange,
	"%CHANGE":         colChangePct,
	"CHANGE%":         colChangePct,
	"CHANGEPCT":       colChangePct,
	"CHANGEPERCENT":   colChangePct,
	"TRADE":           colTrade,
	"TRADES":          colTrade,
	"NOOFTRADE":       colTrade,
	"VALUEMN":         colValue,
	"VALUE":           colValue,
	"VALUEINMN":       colValue,
	"VOLUME":          colVolume,
	"VOL":             colVolume,
}

// normaliseHeader upper-cases a header label and keeps only letters,
// digits, '%' and '#', so "LTP*", "Value (mn)" and "% Change" all collapse
// to stable keys.
func normaliseHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '%' || r == '#' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// row is one data row keyed by logical column.
type row map[column]string

func (r row) get(c column) string { return r[c] }

func (r row) has(c column) bool {
	_, ok := r[c]
	return ok
}

// table is the recognised data table of a page.
type table struct {
	columns map[column]bool
	rows    []row
}

func (t *table) hasColumn(c column) bool { return t.columns[c] }

// cleanText trims a cell's text and collapses runs of whitespace, including NBSP.
func cleanText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// findTable returns the first table whose header carries every required
// column, preferring one with data rows. ok is false when no table matches.
func findTable(payload []byte, required ...column) (*table, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, false
	}

	var found *table
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		t := readTable(tbl)
		if t == nil {
			return true
		}
		for _, c := range required {
			if !t.hasColumn(c) {
				return true
			}
		}
		if found == nil || (len(found.rows) == 0 && len(t.rows) > 0) {
			found = t
		}
		return len(found.rows) == 0
	})

	return found, found != nil
}

// readTable maps the header row of tbl and collects its data rows.
// Rows of nested tables are ignored.
func readTable(tbl *goquery.Selection) *table {
	trs := tbl.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(tbl)
	})
	if trs.Length() == 0 {
		return nil
	}

	headerIdx := -1
	trs.EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if tr.ChildrenFiltered("th").Length() > 0 {
			headerIdx = i
			return false
		}
		return true
	})
	if headerIdx < 0 {
		headerIdx = 0 // header-less markup: first row holds the labels
	}

	var layout []column
	t := &table{columns: map[column]bool{}}
	trs.Eq(headerIdx).ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
		c := headerAliases[normaliseHeader(cell.Text())]
		// a label seen twice keeps its first position
		if c != colUnknown && t.columns[c] {
			c = colUnknown
		}
		if c != colUnknown {
			t.columns[c] = true
		}
		layout = append(layout, c)
	})
	if len(t.columns) == 0 {
		return nil
	}

	trs.Slice(headerIdx+1, trs.Length()).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() == 0 {
			return
		}
		r := row{}
		blank := true
		cells.Each(func(i int, cell *goquery.Selection) {
			if i >= len(layout) || layout[i] == colUnknown {
				return
			}
			text := cleanText(cell.Text())
			if text != "" {
				blank = false
			}
			r[layout[i]] = text
		})
		if !blank {
			t.rows = append(t.rows, r)
		}
	})

	return t
}
