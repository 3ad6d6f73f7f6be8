package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DateFormat is the on-disk representation of a Date.
const DateFormat = "2006-01-02"

// DateStampFormat is ISO-8601 without a timezone. All timestamps are stored
// in this format; broker statements carry local exchange time and we keep it
// as-is rather than guessing a zone.
const DateStampFormat = "2006-01-02T15:04:05"

// Date is a civil date with day granularity. It is comparable, so it can key
// the per-day movement histogram.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	// Normalize through time.Date so e.g. Feb 30 rolls over.
	y, m, d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Date()
	return Date{Year: y, Month: m, Day: d}
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func Today() Date { return DateOf(time.Now()) }

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last representable instant of the day, so inclusive
// day-bounded filters catch every intraday timestamp.
func (d Date) EndOfDay() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, 999999999, time.UTC)
}

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

func (d Date) String() string { return d.Time().Format(DateFormat) }

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool  { return d.Time().After(o.Time()) }

// DaysUntil returns the number of days from d to o; negative when o is
// earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.Time().Sub(d.Time()) / (24 * time.Hour))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) { return d.String(), nil }

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = DateOf(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// DateStamp is a point in time serialized without timezone information.
type DateStamp struct {
	t time.Time
}

func NewDateStamp(t time.Time) DateStamp { return DateStamp{t: t} }

func ParseDateStamp(s string) (DateStamp, error) {
	t, err := time.Parse(DateStampFormat, s)
	if err != nil {
		return DateStamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return DateStamp{t: t}, nil
}

func (ds DateStamp) Time() time.Time { return ds.t }
func (ds DateStamp) Date() Date      { return DateOf(ds.t) }
func (ds DateStamp) IsZero() bool    { return ds.t.IsZero() }
func (ds DateStamp) String() string  { return ds.t.Format(DateStampFormat) }

func (ds DateStamp) Before(o DateStamp) bool { return ds.t.Before(o.t) }
func (ds DateStamp) After(o DateStamp) bool  { return ds.t.After(o.t) }

func (ds DateStamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ds.String() + `"`), nil
}

func (ds *DateStamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDateStamp(s)
	if err != nil {
		return err
	}
	*ds = parsed
	return nil
}

func (ds DateStamp) Value() (driver.Value, error) { return ds.String(), nil }

func (ds *DateStamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ds.t = time.Time{}
		return nil
	case string:
		parsed, err := ParseDateStamp(v)
		if err != nil {
			return err
		}
		*ds = parsed
		return nil
	case []byte:
		return ds.Scan(string(v))
	case time.Time:
		ds.t = v
		return nil
	default:
		return fmt.Errorf("cannot scan %T into DateStamp", src)
	}
}
