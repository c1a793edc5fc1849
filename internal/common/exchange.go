package common

import "time"

// ExchangeLocation is the Asia/Dhaka timezone the exchange trades in.
var ExchangeLocation = mustLoadLocation("Asia/Dhaka")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Bangladesh has no DST, a fixed zone is exact when tzdata is missing
		return time.FixedZone("BDT", 6*60*60)
	}
	return loc
}

// ExchangeDate returns the exchange-local calendar date of t as UTC midnight,
// the form every HistoricalRecord date takes.
func ExchangeDate(t time.Time) time.Time {
	y, m, d := t.In(ExchangeLocation).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Trading session bounds in exchange-local minutes of the day.
const (
	SessionOpenMinute  = 10 * 60    // 10:00
	SessionCloseMinute = 14*60 + 30 // 14:30
	SessionTail        = 15 * time.Minute
)

// IsTradingHours reports whether t falls inside the DSE session,
// Sunday to Thursday 10:00–14:30 Asia/Dhaka, extended by SessionTail so the
// closing prints are picked up.
func IsTradingHours(t time.Time) bool {
	local := t.In(ExchangeLocation)
	switch local.Weekday() {
	case time.Friday, time.Saturday:
		return false
	}
	hour, min, _ := local.Clock()
	minuteOfDay := hour*60 + min
	return minuteOfDay >= SessionOpenMinute && minuteOfDay < SessionCloseMinute+int(SessionTail/time.Minute)
}
