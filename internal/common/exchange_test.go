package common

import (
	"testing"
	"time"
)

func TestIsTradingHours(t *testing.T) {
	// 2024-01-07 is a Sunday, a trading day in Dhaka
	dhaka := func(day, hour, min int) time.Time {
		return time.Date(2024, 1, day, hour, min, 0, 0, ExchangeLocation)
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"sunday before open", dhaka(7, 9, 59), false},
		{"sunday open", dhaka(7, 10, 0), true},
		{"sunday midday", dhaka(7, 12, 30), true},
		{"thursday close", dhaka(11, 14, 30), true},
		{"thursday tail", dhaka(11, 14, 44), true},
		{"thursday after tail", dhaka(11, 14, 45), false},
		{"friday", dhaka(12, 11, 0), false},
		{"saturday", dhaka(13, 11, 0), false},
		{"utc input", time.Date(2024, 1, 7, 5, 0, 0, 0, time.UTC), true}, // 11:00 in Dhaka
	}

	for _, tt := range tests {
		if got := IsTradingHours(tt.at); got != tt.want {
			t.Errorf("%s: IsTradingHours(%v) = %v, want %v", tt.name, tt.at, got, tt.want)
		}
	}
}

func TestExchangeDate(t *testing.T) {
	// 20:00 UTC on the 6th is 02:00 on the 7th in Dhaka
	got := ExchangeDate(time.Date(2024, 1, 6, 20, 0, 0, 0, time.UTC))
	want := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ExchangeDate = %v, want %v", got, want)
	}
}
