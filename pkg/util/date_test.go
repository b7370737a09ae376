package util

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tod.Hour != 9 || tod.Minute != 30 {
		t.Fatalf("unexpected time of day %v", tod)
	}
}

func TestParseTimeOfDayRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "9", "24:00", "09:60", "half past"} {
		if _, err := ParseTimeOfDay(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestTimeOfDayOn(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, loc)
	got := TimeOfDay{Hour: 16, Minute: 0}.On(day, loc)
	if got.Hour() != 16 || got.Minute() != 0 || got.Day() != 14 {
		t.Fatalf("unexpected instant %v", got)
	}
}

func TestIsTradingDay(t *testing.T) {
	fri := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	sat := fri.AddDate(0, 0, 1)
	if !IsTradingDay(fri) {
		t.Fatalf("friday should be a trading day")
	}
	if IsTradingDay(sat) {
		t.Fatalf("saturday should not be a trading day")
	}
}

func TestNextTradingDaySkipsWeekend(t *testing.T) {
	fri := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	next := NextTradingDay(fri)
	if next.Weekday() != time.Monday {
		t.Fatalf("expected monday, got %v", next.Weekday())
	}
	if next.Day() != 17 {
		t.Fatalf("expected the 17th, got %d", next.Day())
	}
}
