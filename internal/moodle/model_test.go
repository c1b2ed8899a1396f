package moodle

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthsInRange(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  []MonthKey
	}{
		{
			name:  "same month",
			start: date(2025, time.March, 5),
			end:   date(2025, time.March, 20),
			want:  []MonthKey{{2025, time.March}},
		},
		{
			name:  "adjacent months",
			start: date(2025, time.March, 28),
			end:   date(2025, time.April, 2),
			want:  []MonthKey{{2025, time.March}, {2025, time.April}},
		},
		{
			name:  "crosses year boundary",
			start: date(2024, time.November, 15),
			end:   date(2025, time.February, 1),
			want: []MonthKey{
				{2024, time.November}, {2024, time.December},
				{2025, time.January}, {2025, time.February},
			},
		},
		{
			name:  "day of month is irrelevant",
			start: date(2025, time.January, 31),
			end:   date(2025, time.March, 1),
			want:  []MonthKey{{2025, time.January}, {2025, time.February}, {2025, time.March}},
		},
		{
			name:  "single day",
			start: date(2025, time.June, 10),
			end:   date(2025, time.June, 10),
			want:  []MonthKey{{2025, time.June}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthsInRange(tt.start, tt.end)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d months, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("month %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMonthsInRangeContiguous(t *testing.T) {
	// No gaps and no duplicates across a long span.
	months := MonthsInRange(date(2023, time.May, 17), date(2025, time.August, 3))
	if len(months) != 28 {
		t.Fatalf("expected 28 months, got %d", len(months))
	}
	for i := 1; i < len(months); i++ {
		prev := time.Date(months[i-1].Year, months[i-1].Month, 1, 0, 0, 0, 0, time.UTC)
		cur := time.Date(months[i].Year, months[i].Month, 1, 0, 0, 0, 0, time.UTC)
		if !prev.AddDate(0, 1, 0).Equal(cur) {
			t.Errorf("months %v and %v are not contiguous", months[i-1], months[i])
		}
	}
}
