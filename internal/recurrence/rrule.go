package recurrence

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
	Monthly
	Yearly
)

var freqNames = [...]string{
	Daily:   "DAILY",
	Weekly:  "WEEKLY",
	Monthly: "MONTHLY",
	Yearly:  "YEARLY",
}

var dayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// Rule is the subset of RFC 5545 RRULE that schedules can repeat by.
type Rule struct {
	Freq       Freq
	Interval   int            // 1 when unset
	ByDay      []time.Weekday // WEEKLY only; empty means the start weekday
	ByMonthDay int            // MONTHLY only; 0 means the start day
	Count      int            // 0 means unbounded
	Until      *time.Time
}

// Parse reads an RRULE value such as "FREQ=WEEKLY;BYDAY=MO,WE;INTERVAL=2".
// A leading "RRULE:" is accepted and keys are case-insensitive.
func Parse(rule string) (Rule, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(strings.TrimPrefix(rule, "RRULE:"), "rrule:")
	if rule == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	r := Rule{Interval: 1}
	hasFreq := false

	for _, part := range strings.Split(rule, ";") {
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.ToUpper(strings.TrimSpace(val))

		switch key {
		case "FREQ":
			i := slices.Index(freqNames[:], val)
			if i < 0 {
				return Rule{}, fmt.Errorf("unknown frequency: %q", val)
			}
			r.Freq = Freq(i)
			hasFreq = true
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid interval: %q", val)
			}
			r.Interval = n
		case "BYDAY":
			for _, code := range strings.Split(val, ",") {
				i := slices.Index(dayCodes[:], strings.TrimSpace(code))
				if i < 0 {
					return Rule{}, fmt.Errorf("unknown day: %q", code)
				}
				if !slices.Contains(r.ByDay, time.Weekday(i)) {
					r.ByDay = append(r.ByDay, time.Weekday(i))
				}
			}
		case "BYMONTHDAY":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 31 {
				return Rule{}, fmt.Errorf("invalid BYMONTHDAY: %q", val)
			}
			r.ByMonthDay = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid count: %q", val)
			}
			r.Count = n
		case "UNTIL":
			t, err := parseUntil(val)
			if err != nil {
				return Rule{}, err
			}
			r.Until = &t
		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if r.Count > 0 && r.Until != nil {
		return Rule{}, fmt.Errorf("COUNT and UNTIL are mutually exclusive")
	}
	return r, nil
}

func parseUntil(val string) (time.Time, error) {
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t, nil
	}
	t, err := time.Parse("20060102", val)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid UNTIL: %q", val)
	}
	// A date-only UNTIL includes the whole day.
	return t.Add(24*time.Hour - time.Second), nil
}

// Valid reports whether s is empty or parses as a rule.
func Valid(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	_, err := Parse(s)
	return err == nil
}

// String serializes the rule in canonical key order.
func (r Rule) String() string {
	parts := []string{"FREQ=" + freqNames[r.Freq]}

	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			codes[i] = dayCodes[d]
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if r.ByMonthDay > 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.ByMonthDay))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ";")
}

var unitNames = [...]string{
	Daily:   "day",
	Weekly:  "week",
	Monthly: "month",
	Yearly:  "year",
}

// Describe renders the rule for display, e.g. "Every 2 weeks on Mon, Wed".
func (r Rule) Describe() string {
	var b strings.Builder
	if r.Interval > 1 {
		fmt.Fprintf(&b, "Every %d %ss", r.Interval, unitNames[r.Freq])
	} else {
		b.WriteString("Every " + unitNames[r.Freq])
	}

	if r.Freq == Weekly && len(r.ByDay) > 0 {
		names := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			names[i] = d.String()[:3]
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	}
	if r.Freq == Monthly && r.ByMonthDay > 0 {
		fmt.Fprintf(&b, " on day %d", r.ByMonthDay)
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, ", %d times", r.Count)
	}
	if r.Until != nil {
		b.WriteString(", until " + r.Until.Format("Jan 2, 2006"))
	}
	return b.String()
}
