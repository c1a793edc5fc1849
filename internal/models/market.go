// Package models defines data structures for dsefeed
package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used by the API and the upstream archive.
const DateLayout = "2006-01-02"

// AllInstruments is the historical code meaning "do not filter by instrument".
const AllInstruments = "All Instrument"

// Quote is the attribute set shared by every snapshot row of the exchange
// price pages (latest, DSEX constituents, DS30).
type Quote struct {
	Symbol         string          `json:"symbol"`
	LastPrice      decimal.Decimal `json:"ltp"`
	High           decimal.Decimal `json:"high"`
	Low            decimal.Decimal `json:"low"`
	Open           decimal.Decimal `json:"open"`
	Close          decimal.Decimal `json:"close"`
	YesterdayClose decimal.Decimal `json:"ycp"`
	Change         decimal.Decimal `json:"change"`
	ChangePercent  decimal.Decimal `json:"change_percent"`
	Trades         int64           `json:"trade"`
	ValueMn        decimal.Decimal `json:"value_mn"`
	Volume         int64           `json:"volume"`
}

// StockRecord is one instrument in the latest-price snapshot.
type StockRecord struct {
	Quote
}

// DsexRecord is one data point of the DSEX index page.
type DsexRecord struct {
	Quote
	Index     string    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// Top30Entry is a DS30 constituent with its position on the page.
type Top30Entry struct {
	Quote
	Rank int `json:"rank"`
}

// MaxTop30 bounds the number of ranked entries.
const MaxTop30 = 30

// HistoricalRecord is one (date, instrument) observation from the day-end archive.
type HistoricalRecord struct {
	Date           time.Time       `json:"date"`
	Code           string          `json:"code"`
	LastPrice      decimal.Decimal `json:"ltp"`
	Open           decimal.Decimal `json:"open"`
	High           decimal.Decimal `json:"high"`
	Low            decimal.Decimal `json:"low"`
	Close          decimal.Decimal `json:"close"`
	YesterdayClose decimal.Decimal `json:"ycp"`
	Trades         int64           `json:"trade"`
	ValueMn        decimal.Decimal `json:"value_mn"`
	Volume         int64           `json:"volume"`
}

// MarshalJSON renders Date without a time component.
func (r HistoricalRecord) MarshalJSON() ([]byte, error) {
	type alias HistoricalRecord
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(r), Date: r.Date.Format(DateLayout)})
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether Start is not after End.
func (r DateRange) Valid() bool {
	return !r.Start.After(r.End)
}

// Contains reports whether d falls within [Start, End].
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// TruncateDate drops the time component, keeping the calendar date of t in its own location.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
