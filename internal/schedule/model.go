package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Day is the symbol a ScheduleEntry is bound to: a weekday name or Holiday.
type Day string

const (
	Sunday    Day = "Sunday"
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
	Saturday  Day = "Saturday"
	Holiday   Day = "Holiday"
)

var Days = []Day{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Holiday}

// ParseDay accepts a day symbol in any letter case.
func ParseDay(s string) (Day, bool) {
	for _, d := range Days {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, true
		}
	}
	return "", false
}

// DayOf returns the weekday symbol of t. Holiday is never returned; it only
// matches entries literally named Holiday.
func DayOf(t time.Time) Day {
	return Day(t.Weekday().String())
}

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses HH:MM or HH:MM:SS. Seconds are dropped.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the wall-clock minute of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// ClockFromMinutes converts minutes since midnight.
func ClockFromMinutes(m int) Clock {
	return Clock{Hour: m / 60, Minute: m % 60}
}

func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) Before(o Clock) bool {
	return c.Minutes() < o.Minutes()
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On places c on the calendar date of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeSlot is a reusable time-of-day window with a booking capacity.
type TimeSlot struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Start      Clock     `json:"start_time"`
	End        Clock     `json:"end_time"`
	Capacity   int       `json:"capacity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Contains reports whether the wall-clock minute c lies in [Start, End].
// Matching is by minute, not by hour: 09:00 is outside a 09:30-10:30 slot.
func (s TimeSlot) Contains(c Clock) bool {
	return c.Minutes() >= s.Start.Minutes() && c.Minutes() <= s.End.Minutes()
}

// Window instantiates the slot on date. end is exclusive and covers the
// whole end minute, so an instant at End:59s is still inside.
func (s TimeSlot) Window(date time.Time) (start, end time.Time) {
	return s.Start.On(date), s.End.On(date).Add(time.Minute)
}

// Entry binds a provider's day symbol to a set of time slots.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	Day        Day        `json:"day"`
	Slots      []TimeSlot `json:"time_slots"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Availability is a provider's recurring weekly schedule.
type Availability struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Entries    []Entry   `json:"entries"`
}

func (a Availability) HasSchedule() bool {
	return len(a.Entries) > 0
}

// WindowsForDay returns the slots active on day ordered by start time.
func (a Availability) WindowsForDay(day Day) []TimeSlot {
	out := []TimeSlot{}
	for _, e := range a.Entries {
		if e.Day == day {
			out = append(out, e.Slots...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Match finds the slot whose window contains at's weekday and wall-clock
// minute. at must already be in the reference location.
func (a Availability) Match(at time.Time) (TimeSlot, bool) {
	clock := ClockOf(at)
	for _, slot := range a.WindowsForDay(DayOf(at)) {
		if slot.Contains(clock) {
			return slot, true
		}
	}
	return TimeSlot{}, false
}
