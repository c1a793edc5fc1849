package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRange_ContainsIsInclusive(t *testing.T) {
	r := DateRange{Start: date(2024, 1, 1), End: date(2024, 1, 31)}

	tests := []struct {
		d    time.Time
		want bool
	}{
		{date(2023, 12, 31), false},
		{date(2024, 1, 1), true},
		{date(2024, 1, 15), true},
		{date(2024, 1, 31), true},
		{date(2024, 2, 1), false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.d); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.d.Format(DateLayout), got, tt.want)
		}
	}
}

func TestDateRange_Valid(t *testing.T) {
	if !(DateRange{Start: date(2024, 1, 1), End: date(2024, 1, 1)}).Valid() {
		t.Error("single-day range should be valid")
	}
	if (DateRange{Start: date(2024, 1, 2), End: date(2024, 1, 1)}).Valid() {
		t.Error("reversed range should be invalid")
	}
}

func TestTruncateDate_KeepsLocalCalendarDay(t *testing.T) {
	dhaka := time.FixedZone("BDT", 6*60*60)
	got := TruncateDate(time.Date(2024, 1, 7, 2, 30, 0, 0, dhaka))
	if !got.Equal(date(2024, 1, 7)) {
		t.Errorf("TruncateDate = %v, want 2024-01-07 UTC", got)
	}
}

func TestHistoricalRecord_MarshalJSONDateOnly(t *testing.T) {
	rec := HistoricalRecord{Date: date(2024, 1, 7), Code: "GP", Close: decimal.RequireFromString("250.5")}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"date":"2024-01-07"`) {
		t.Errorf("expected date-only field, got %s", s)
	}
	if !strings.Contains(s, `"close":"250.5"`) {
		t.Errorf("expected close field, got %s", s)
	}
}

func TestParseView(t *testing.T) {
	for _, v := range Views {
		got, err := ParseView(string(v))
		if err != nil || got != v {
			t.Errorf("ParseView(%q) = %q, %v", v, got, err)
		}
	}
	if _, err := ParseView("weekly"); err == nil {
		t.Error("expected error for unknown view")
	}
}
