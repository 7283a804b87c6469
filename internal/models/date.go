package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay is the length of a calendar day on the engine clock
	MinutesPerDay = 24 * 60

	secondsPerDay = 24 * 60 * 60
	dateLayout    = "2006-01-02"

	// SeasonYear is assumed for dates written in the short MM-DD form
	SeasonYear = 2021
)

// Date is a calendar day counted from 1970-01-01. All schedule arithmetic
// happens on whole days and minutes, in UTC.
type Date int32

// DateOf truncates t to its UTC calendar day
func DateOf(t time.Time) Date {
	secs := t.UTC().Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return Date(days)
}

// ParseDate accepts YYYY-MM-DD or the short MM-DD form
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	full := s
	if len(s) == 5 {
		full = fmt.Sprintf("%04d-%s", SeasonYear, s)
	}
	t, err := time.Parse(dateLayout, full)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or MM-DD", s)
	}
	return DateOf(t), nil
}

// MustParseDate panics on malformed input. Intended for tests and constants.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns midnight UTC of the day
func (d Date) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

// At returns the instant that lies the given number of minutes after the
// start of the day. Minutes past 24h roll into the following days.
func (d Date) At(minutes int) time.Time {
	return d.Time().Add(time.Duration(minutes) * time.Minute)
}

// Minutes is the absolute minute at the start of the day
func (d Date) Minutes() int64 {
	return int64(d) * MinutesPerDay
}

// AddDays shifts the date
func (d Date) AddDays(n int) Date {
	return d + Date(n)
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements the driver.Valuer interface
func (d Date) Value() (driver.Value, error) {
	return d.Time(), nil
}

// Scan implements the sql.Scanner interface
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.UnmarshalText([]byte(v[:min(len(v), len(dateLayout))]))
	case []byte:
		return d.UnmarshalText(v[:min(len(v), len(dateLayout))])
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// ClockTime is a time of day in minutes after midnight
type ClockTime int

// ParseClock accepts HH:MM
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText implements encoding.TextMarshaler
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements the driver.Valuer interface
func (c ClockTime) Value() (driver.Value, error) {
	return int64(c), nil
}

// Scan implements the sql.Scanner interface
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*c = ClockTime(v)
	case int32:
		*c = ClockTime(v)
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
	return nil
}
