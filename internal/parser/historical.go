package parser

import (
	"sort"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/models"
)

type historicalKey struct {
	date string
	code string
}

// ParseHistorical parses the day-end archive page. A row needs a date, a
// trading code and a closing price (falling back to LTP). Records are
// sorted by date then code, and a repeated (date, code) pair keeps its
// first row.
func ParseHistorical(payload []byte) ([]models.HistoricalRecord, error) {
	t, found := findTable(payload, colDate, colSymbol)
	if !found || !(t.hasColumn(colClose) || t.hasColumn(colLTP)) {
		return nil, &common.ParseError{Kind: common.NoRecognizableData, View: string(models.ViewHistorical)}
	}

	seen := make(map[historicalKey]bool, len(t.rows))
	records := make([]models.HistoricalRecord, 0, len(t.rows))
	skipped := 0
	for _, r := range t.rows {
		rec, ok := historicalFromRow(r)
		if !ok {
			skipped++
			continue
		}
		key := historicalKey{date: rec.Date.Format(models.DateLayout), code: rec.Code}
		if seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, &common.ParseError{
			Kind:       common.NoRecognizableData,
			View:       string(models.ViewHistorical),
			TableFound: true,
			Rows:       len(t.rows),
			Skipped:    skipped,
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].Code < records[j].Code
	})
	return records, nil
}

func historicalFromRow(r row) (models.HistoricalRecord, bool) {
	date, ok := parseDate(r.get(colDate))
	if !ok {
		return models.HistoricalRecord{}, false
	}
	code := cleanSymbol(r.get(colSymbol))
	if code == "" {
		return models.HistoricalRecord{}, false
	}

	ltp, haveLTP := parseDecimal(r.get(colLTP))
	closing, haveClose := parseDecimal(r.get(colClose))
	switch {
	case !haveClose && !haveLTP:
		return models.HistoricalRecord{}, false
	case !haveClose:
		closing = ltp
	case !haveLTP:
		ltp = closing
	}

	return models.HistoricalRecord{
		Date:           models.TruncateDate(date),
		Code:           code,
		LastPrice:      ltp,
		Open:           optionalDecimal(r.get(colOpen)),
		High:           optionalDecimal(r.get(colHigh)),
		Low:            optionalDecimal(r.get(colLow)),
		Close:          closing,
		YesterdayClose: optionalDecimal(r.get(colYCP)),
		Trades:         optionalCount(r.get(colTrade)),
		ValueMn:        optionalDecimal(r.get(colValue)),
		Volume:         optionalCount(r.get(colVolume)),
	}, true
}
