package recurrence

import (
	"iter"
	"slices"
	"time"
)

// maxSteps bounds generation for rules that can never produce a date,
// such as BYMONTHDAY=31 with a 12 month interval starting in April.
const maxSteps = 10000

// Occurrence is one generated instance of a recurring schedule.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Starts yields every occurrence start of rule anchored at start, in order.
// The first occurrence is start itself unless BYDAY excludes its weekday.
func Starts(rule Rule, start time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		n := 0
		emit := func(t time.Time) bool {
			if rule.Until != nil && t.After(*rule.Until) {
				return false
			}
			n++
			if rule.Count > 0 && n > rule.Count {
				return false
			}
			return yield(t)
		}

		interval := max(rule.Interval, 1)
		switch rule.Freq {
		case Daily:
			for i := 0; i < maxSteps; i++ {
				if !emit(at(start, 0, 0, i*interval)) {
					return
				}
			}
		case Weekly:
			days := weekOffsets(rule.ByDay, start)
			monday := at(start, 0, 0, -mondayOffset(start.Weekday()))
			for w := 0; w < maxSteps; w++ {
				for _, off := range days {
					t := at(monday, 0, 0, w*7*interval+off)
					if t.Before(start) {
						continue
					}
					if !emit(t) {
						return
					}
				}
			}
		case Monthly:
			day := rule.ByMonthDay
			if day == 0 {
				day = start.Day()
			}
			for i := 0; i < maxSteps; i++ {
				first := time.Date(start.Year(), start.Month()+time.Month(i*interval), 1,
					start.Hour(), start.Minute(), start.Second(), 0, start.Location())
				if day > daysInMonth(first.Year(), first.Month()) {
					continue
				}
				t := first.AddDate(0, 0, day-1)
				if t.Before(start) {
					continue
				}
				if !emit(t) {
					return
				}
			}
		case Yearly:
			for i := 0; i < maxSteps; i++ {
				y := start.Year() + i*interval
				if start.Month() == time.February && start.Day() == 29 && daysInMonth(y, time.February) < 29 {
					continue
				}
				if !emit(time.Date(y, start.Month(), start.Day(),
					start.Hour(), start.Minute(), start.Second(), 0, start.Location())) {
					return
				}
			}
		}
	}
}

// Expand returns the occurrences overlapping [rangeStart, rangeEnd). The
// duration of every occurrence is that of the first one.
func Expand(rule Rule, eventStart, eventEnd, rangeStart, rangeEnd time.Time) []Occurrence {
	dur := eventEnd.Sub(eventStart)
	var out []Occurrence
	for s := range Starts(rule, eventStart) {
		if !s.Before(rangeEnd) {
			break
		}
		if e := s.Add(dur); e.After(rangeStart) || (dur == 0 && !s.Before(rangeStart)) {
			out = append(out, Occurrence{Start: s, End: e})
		}
	}
	return out
}

// Next returns the first occurrence start strictly after the given time.
func Next(rule Rule, start, after time.Time) (time.Time, bool) {
	for s := range Starts(rule, start) {
		if s.After(after) {
			return s, true
		}
	}
	return time.Time{}, false
}

// at adds a calendar offset keeping the wall clock time of t.
func at(t time.Time, years, months, days int) time.Time {
	return time.Date(t.Year()+years, t.Month()+time.Month(months), t.Day()+days,
		t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

// mondayOffset is the number of days since Monday, weeks starting on Monday.
func mondayOffset(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func weekOffsets(byDay []time.Weekday, start time.Time) []int {
	if len(byDay) == 0 {
		return []int{mondayOffset(start.Weekday())}
	}
	offs := make([]int, 0, len(byDay))
	for _, d := range byDay {
		offs = append(offs, mondayOffset(d))
	}
	slices.Sort(offs)
	return slices.Compact(offs)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
