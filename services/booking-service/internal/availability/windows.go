package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidWindow = errors.New("invalid time window")

// Schedule describes the house-call day: visits are booked in fixed windows
// between Open and Close hours.
type Schedule struct {
	Open     int
	Close    int
	Length   time.Duration
	Location *time.Location
}

func DefaultSchedule(loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{Open: 8, Close: 18, Length: 2 * time.Hour, Location: loc}
}

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Slot is a bookable window together with its display label.
type Slot struct {
	Label string    `json:"time_slot"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DaySlots lists the windows on date that are free of busy labels and not in
// the past relative to now.
func (s Schedule) DaySlots(date string, busyLabels []string, now time.Time) ([]Slot, error) {
	day, err := time.ParseInLocation(DateLayout, date, s.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidWindow)
	}
	busy := make([]Interval, 0, len(busyLabels))
	for _, label := range busyLabels {
		iv, err := ParseWindow(day, label)
		if err != nil {
			continue
		}
		busy = append(busy, iv)
	}

	open := day.Add(time.Duration(s.Open) * time.Hour)
	closing := day.Add(time.Duration(s.Close) * time.Hour)
	out := []Slot{}
	if s.Length <= 0 {
		return out, nil
	}
	for st := open; !st.Add(s.Length).After(closing); st = st.Add(s.Length) {
		win := Interval{Start: st, End: st.Add(s.Length)}
		if st.Before(now) || overlapsAny(win, busy) {
			continue
		}
		out = append(out, Slot{Label: FormatWindow(win.Start, win.End), Start: win.Start, End: win.End})
	}
	return out, nil
}

func overlapsAny(win Interval, busy []Interval) bool {
	for _, b := range busy {
		if win.Overlaps(b) {
			return true
		}
	}
	return false
}

// FormatWindow renders a window the way owners and vets see it, with the
// meridiem on the end time only: "10:00 - 12:00 PM".
func FormatWindow(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.Format("03:04"), end.Format("03:04 PM"))
}

// ParseWindow resolves a label such as "10:00 - 12:00 PM" on day into an
// interval. The start carries no meridiem and is taken as the latest matching
// clock time before the end.
func ParseWindow(day time.Time, label string) (Interval, error) {
	parts := strings.Split(label, "-")
	if len(parts) != 2 {
		return Interval{}, ErrInvalidWindow
	}
	endRaw := strings.TrimSpace(parts[1])
	end, err := time.ParseInLocation("3:04 PM", endRaw, day.Location())
	if err != nil {
		if end, err = time.ParseInLocation("03:04 PM", endRaw, day.Location()); err != nil {
			return Interval{}, ErrInvalidWindow
		}
	}
	sh, sm, err := clock(strings.TrimSpace(parts[0]))
	if err != nil {
		return Interval{}, err
	}

	endMin := end.Hour()*60 + end.Minute()
	startMin := -1
	for _, h := range []int{sh % 12, sh%12 + 12} {
		m := h*60 + sm
		if m < endMin && m > startMin {
			startMin = m
		}
	}
	if startMin < 0 {
		return Interval{}, ErrInvalidWindow
	}

	base := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Interval{
		Start: base.Add(time.Duration(startMin) * time.Minute),
		End:   base.Add(time.Duration(endMin) * time.Minute),
	}, nil
}

// ValidWindow reports whether label parses as a window.
func ValidWindow(label string) bool {
	_, err := ParseWindow(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), label)
	return err == nil
}

func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

func clock(s string) (int, int, error) {
	hm := strings.Split(s, ":")
	if len(hm) != 2 {
		return 0, 0, ErrInvalidWindow
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 12 {
		return 0, 0, ErrInvalidWindow
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, ErrInvalidWindow
	}
	return h, m, nil
}
