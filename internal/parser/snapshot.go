package parser

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/models"
)

// DsexIndexName tags every record produced from the DSEX page.
const DsexIndexName = "DSEX"

var hundred = decimal.NewFromInt(100)

// quoteFromRow builds a Quote from a snapshot row. Symbol and LTP are
// required; every other field defaults to zero when missing or malformed.
func quoteFromRow(r row) (models.Quote, bool) {
	symbol := cleanSymbol(r.get(colSymbol))
	if symbol == "" {
		return models.Quote{}, false
	}
	ltp, ok := parseDecimal(r.get(colLTP))
	if !ok {
		return models.Quote{}, false
	}

	q := models.Quote{
		Symbol:         symbol,
		LastPrice:      ltp,
		High:           optionalDecimal(r.get(colHigh)),
		Low:            optionalDecimal(r.get(colLow)),
		Open:           optionalDecimal(r.get(colOpen)),
		Close:          optionalDecimal(r.get(colClose)),
		YesterdayClose: optionalDecimal(r.get(colYCP)),
		Trades:         optionalCount(r.get(colTrade)),
		ValueMn:        optionalDecimal(r.get(colValue)),
		Volume:         optionalCount(r.get(colVolume)),
	}

	change, haveChange := parseDecimal(r.get(colChange))
	if !haveChange && !q.YesterdayClose.IsZero() {
		change = ltp.Sub(q.YesterdayClose)
	}
	q.Change = change

	if pct, ok := parseDecimal(r.get(colChangePct)); ok {
		q.ChangePercent = pct
	} else if !q.YesterdayClose.IsZero() {
		q.ChangePercent = q.Change.Div(q.YesterdayClose).Mul(hundred).Round(2)
	}

	return q, true
}

// collectQuotes converts every acceptable row of t, dropping repeated
// symbols after their first appearance. It returns the quotes, their
// source rows and the number of rows skipped.
func collectQuotes(t *table) ([]models.Quote, []row, int) {
	seen := make(map[string]bool, len(t.rows))
	quotes := make([]models.Quote, 0, len(t.rows))
	rows := make([]row, 0, len(t.rows))
	skipped := 0
	for _, r := range t.rows {
		q, ok := quoteFromRow(r)
		if !ok || seen[q.Symbol] {
			skipped++
			continue
		}
		seen[q.Symbol] = true
		quotes = append(quotes, q)
		rows = append(rows, r)
	}
	return quotes, rows, skipped
}

// snapshotQuotes locates the snapshot table in payload and extracts its
// quotes, or returns a ParseError when nothing usable was found.
func snapshotQuotes(view models.View, payload []byte) ([]models.Quote, []row, error) {
	t, found := findTable(payload, colSymbol, colLTP)
	if !found {
		return nil, nil, &common.ParseError{Kind: common.NoRecognizableData, View: string(view)}
	}
	quotes, rows, skipped := collectQuotes(t)
	if len(quotes) == 0 {
		return nil, nil, &common.ParseError{
			Kind:       common.NoRecognizableData,
			View:       string(view),
			TableFound: true,
			Rows:       len(t.rows),
			Skipped:    skipped,
		}
	}
	return quotes, rows, nil
}

// ParseLatest parses the latest share price page. Records keep page order.
func ParseLatest(payload []byte) ([]models.StockRecord, error) {
	quotes, _, err := snapshotQuotes(models.ViewLatest, payload)
	if err != nil {
		return nil, err
	}
	records := make([]models.StockRecord, len(quotes))
	for i, q := range quotes {
		records[i] = models.StockRecord{Quote: q}
	}
	return records, nil
}

// ParseDsex parses the DSEX constituents page. The page carries no usable
// time of its own, so every record is stamped with ts, the fetch time.
func ParseDsex(payload []byte, ts time.Time) ([]models.DsexRecord, error) {
	quotes, _, err := snapshotQuotes(models.ViewDsex, payload)
	if err != nil {
		return nil, err
	}
	records := make([]models.DsexRecord, len(quotes))
	for i, q := range quotes {
		records[i] = models.DsexRecord{Quote: q, Index: DsexIndexName, Timestamp: ts}
	}
	return records, nil
}

// ParseTop30 parses the DS30 page. Entries are ordered by the page's own
// serial column when present, ranked 1..n without gaps and capped at
// models.MaxTop30.
func ParseTop30(payload []byte) ([]models.Top30Entry, error) {
	quotes, rows, err := snapshotQuotes(models.ViewTop30, payload)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		quote models.Quote
		pos   int
		ok    bool
	}
	items := make([]ranked, len(quotes))
	for i, q := range quotes {
		pos, perr := strconv.Atoi(rows[i].get(colRank))
		items[i] = ranked{quote: q, pos: pos, ok: perr == nil}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok
		}
		return items[i].ok && items[i].pos < items[j].pos
	})

	if len(items) > models.MaxTop30 {
		items = items[:models.MaxTop30]
	}
	entries := make([]models.Top30Entry, len(items))
	for i, it := range items {
		entries[i] = models.Top30Entry{Quote: it.quote, Rank: i + 1}
	}
	return entries, nil
}
