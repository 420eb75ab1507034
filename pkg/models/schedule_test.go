package models

import (
	"testing"
	"time"
)

func TestFrequencyNext(t *testing.T) {
	base := time.Date(2026, 1, 31, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		freq Frequency
		want time.Time
	}{
		{Every30Minutes, base.Add(30 * time.Minute)},
		{Every4Hours, base.Add(4 * time.Hour)},
		{Hourly, base.Add(time.Hour)},
		{Daily, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)},
		{Weekly, time.Date(2026, 2, 7, 10, 30, 0, 0, time.UTC)},
		// Jan 31 + 1 calendar month normalizes per time.AddDate.
		{Monthly, base.AddDate(0, 1, 0)},
	}

	for _, tc := range cases {
		if got := tc.freq.Next(base); !got.Equal(tc.want) {
			t.Fatalf("%s.Next = %v, want %v", tc.freq, got, tc.want)
		}
	}
}

func TestParseFrequency(t *testing.T) {
	for _, valid := range []string{"every_30_minutes", "every_4_hours", "hourly", "daily", "weekly", "monthly"} {
		if _, err := ParseFrequency(valid); err != nil {
			t.Fatalf("ParseFrequency(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseFrequency("fortnightly"); err == nil {
		t.Fatalf("expected error for unknown frequency")
	}
}

func TestScheduleDue(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	sched := &Schedule{IsActive: true, NextExecution: now}
	if !sched.Due(now) {
		t.Fatalf("schedule at NextExecution should be due")
	}
	if !sched.Due(now.Add(time.Hour)) {
		t.Fatalf("overdue schedule should be due")
	}
	if sched.Due(now.Add(-time.Second)) {
		t.Fatalf("future schedule should not be due")
	}

	sched.IsActive = false
	if sched.Due(now) {
		t.Fatalf("inactive schedule should never be due")
	}

	if (&Schedule{IsActive: true}).Due(now) {
		t.Fatalf("schedule without NextExecution should not be due")
	}
}
