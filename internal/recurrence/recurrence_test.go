package recurrence

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		freq     Freq
		interval int
		byDay    []time.Weekday
		count    int
	}{
		{"FREQ=DAILY", Daily, 1, nil, 0},
		{"RRULE:FREQ=WEEKLY;INTERVAL=2", Weekly, 2, nil, 0},
		{"freq=weekly;byday=mo,we,fr", Weekly, 1, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, 0},
		{"FREQ=WEEKLY;BYDAY=MO,MO", Weekly, 1, []time.Weekday{time.Monday}, 0},
		{"FREQ=MONTHLY;BYMONTHDAY=15", Monthly, 1, nil, 0},
		{"FREQ=YEARLY;COUNT=3", Yearly, 1, nil, 3},
	}

	for _, tt := range tests {
		r, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		if r.Freq != tt.freq {
			t.Errorf("Parse(%q).Freq = %d, want %d", tt.input, r.Freq, tt.freq)
		}
		if r.Interval != tt.interval {
			t.Errorf("Parse(%q).Interval = %d, want %d", tt.input, r.Interval, tt.interval)
		}
		if len(r.ByDay) != len(tt.byDay) {
			t.Errorf("Parse(%q).ByDay = %v, want %v", tt.input, r.ByDay, tt.byDay)
		} else {
			for i := range r.ByDay {
				if r.ByDay[i] != tt.byDay[i] {
					t.Errorf("Parse(%q).ByDay[%d] = %v, want %v", tt.input, i, r.ByDay[i], tt.byDay[i])
				}
			}
		}
		if r.Count != tt.count {
			t.Errorf("Parse(%q).Count = %d, want %d", tt.input, r.Count, tt.count)
		}
	}
}

func TestParseUntil(t *testing.T) {
	r, err := Parse("FREQ=WEEKLY;UNTIL=20260301T000000Z")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Until == nil || !r.Until.Equal(date(2026, 3, 1, 0, 0)) {
		t.Errorf("Until = %v, want 2026-03-01", r.Until)
	}

	r, err = Parse("FREQ=DAILY;UNTIL=20260301")
	if err != nil {
		t.Fatalf("Parse date-only error: %v", err)
	}
	if want := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC); !r.Until.Equal(want) {
		t.Errorf("Until = %v, want %v", r.Until, want)
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"",
		"BYDAY=MO",
		"FREQ=HOURLY",
		"FREQ=WEEKLY;INTERVAL=0",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=DAILY;COUNT=0",
		"FREQ=DAILY;UNKNOWN=1",
		"FREQ=DAILY;COUNT=2;UNTIL=20260301",
		"FREQ",
	}
	for _, input := range inputs {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should error", input)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid("") {
		t.Error("empty rule should be valid")
	}
	if !Valid("FREQ=DAILY") {
		t.Error("FREQ=DAILY should be valid")
	}
	if Valid("FREQ=SOMETIMES") {
		t.Error("unknown frequency should be invalid")
	}
}

func TestStringRoundTrip(t *testing.T) {
	inputs := []string{
		"FREQ=DAILY",
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE",
		"FREQ=MONTHLY;BYMONTHDAY=31",
		"FREQ=YEARLY;COUNT=5",
		"FREQ=DAILY;UNTIL=20261231T090000Z",
	}
	for _, in := range inputs {
		r, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := r.String(); got != in {
			t.Errorf("String() = %q, want %q", got, in)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		rule string
		want string
	}{
		{"FREQ=DAILY", "Every day"},
		{"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE", "Every 2 weeks on Mon, Wed"},
		{"FREQ=MONTHLY;BYMONTHDAY=15", "Every month on day 15"},
		{"FREQ=YEARLY;COUNT=3", "Every year, 3 times"},
	}
	for _, tt := range tests {
		r, _ := Parse(tt.rule)
		if got := r.Describe(); got != tt.want {
			t.Errorf("Describe(%q) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}

func collect(rule Rule, start time.Time, n int) []time.Time {
	var out []time.Time
	for s := range Starts(rule, start) {
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}

func TestStarts(t *testing.T) {
	// 2026-02-02 is a Monday.
	start := date(2026, 2, 2, 9, 30)

	tests := []struct {
		name string
		rule string
		want []time.Time
	}{
		{
			name: "daily interval",
			rule: "FREQ=DAILY;INTERVAL=3",
			want: []time.Time{date(2026, 2, 2, 9, 30), date(2026, 2, 5, 9, 30), date(2026, 2, 8, 9, 30)},
		},
		{
			name: "weekly by day",
			rule: "FREQ=WEEKLY;BYDAY=FR,WE",
			want: []time.Time{date(2026, 2, 4, 9, 30), date(2026, 2, 6, 9, 30), date(2026, 2, 11, 9, 30)},
		},
		{
			name: "biweekly same day",
			rule: "FREQ=WEEKLY;INTERVAL=2",
			want: []time.Time{date(2026, 2, 2, 9, 30), date(2026, 2, 16, 9, 30), date(2026, 3, 2, 9, 30)},
		},
		{
			name: "weekly with sunday",
			rule: "FREQ=WEEKLY;BYDAY=SU",
			want: []time.Time{date(2026, 2, 8, 9, 30), date(2026, 2, 15, 9, 30)},
		},
		{
			name: "count limit",
			rule: "FREQ=DAILY;COUNT=2",
			want: []time.Time{date(2026, 2, 2, 9, 30), date(2026, 2, 3, 9, 30)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.rule)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			got := collect(r, start, len(tt.want)+1)
			if tt.name != "count limit" {
				got = got[:len(tt.want)]
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d starts %v, want %v", len(got), got, tt.want)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("start[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStartsMonthlySkipsShortMonths(t *testing.T) {
	r, _ := Parse("FREQ=MONTHLY")
	got := collect(r, date(2026, 1, 31, 8, 0), 3)
	want := []time.Time{date(2026, 1, 31, 8, 0), date(2026, 3, 31, 8, 0), date(2026, 5, 31, 8, 0)}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("start[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStartsYearlyLeapDay(t *testing.T) {
	r, _ := Parse("FREQ=YEARLY")
	got := collect(r, date(2024, 2, 29, 12, 0), 2)
	if !got[1].Equal(date(2028, 2, 29, 12, 0)) {
		t.Errorf("second = %v, want 2028-02-29", got[1])
	}
}

func TestStartsUntil(t *testing.T) {
	r, _ := Parse("FREQ=DAILY;UNTIL=20260204")
	got := collect(r, date(2026, 2, 2, 9, 0), 10)
	if len(got) != 3 {
		t.Errorf("got %d starts, want 3", len(got))
	}
}

func TestExpand(t *testing.T) {
	r, _ := Parse("FREQ=WEEKLY;BYDAY=MO,TH")
	start := date(2026, 2, 2, 10, 0)
	end := date(2026, 2, 2, 11, 0)

	occs := Expand(r, start, end, date(2026, 2, 9, 0, 0), date(2026, 2, 16, 0, 0))
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(occs))
	}
	if !occs[0].Start.Equal(date(2026, 2, 9, 10, 0)) || !occs[0].End.Equal(date(2026, 2, 9, 11, 0)) {
		t.Errorf("first = %v-%v", occs[0].Start, occs[0].End)
	}
	if !occs[1].Start.Equal(date(2026, 2, 12, 10, 0)) {
		t.Errorf("second = %v", occs[1].Start)
	}
}

func TestExpandOverlapAtRangeStart(t *testing.T) {
	r, _ := Parse("FREQ=DAILY")
	start := date(2026, 2, 1, 23, 0)
	end := date(2026, 2, 2, 1, 0)

	occs := Expand(r, start, end, date(2026, 2, 2, 0, 0), date(2026, 2, 3, 0, 0))
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences, want 2 (one spilling over midnight)", len(occs))
	}
	if !occs[0].Start.Equal(start) {
		t.Errorf("first = %v, want %v", occs[0].Start, start)
	}
}

func TestNext(t *testing.T) {
	r, _ := Parse("FREQ=WEEKLY;BYDAY=MO")
	start := date(2026, 2, 2, 9, 0)

	got, ok := Next(r, start, date(2026, 2, 2, 9, 0))
	if !ok || !got.Equal(date(2026, 2, 9, 9, 0)) {
		t.Errorf("Next = %v %v, want 2026-02-09 09:00", got, ok)
	}

	r, _ = Parse("FREQ=DAILY;COUNT=2")
	if _, ok := Next(r, start, date(2026, 2, 5, 0, 0)); ok {
		t.Error("expected no occurrence after count is exhausted")
	}
}
