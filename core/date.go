package core

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")

// Date is a civil (UTC) calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, CleanString(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals; it panics on malformed input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Start is midnight UTC at the beginning of d.
func (d Date) Start() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// End is midnight UTC at the beginning of the day after d (exclusive bound).
func (d Date) End() time.Time {
	return d.Start().AddDate(0, 0, 1)
}

// Contains reports whether t falls on d (UTC).
func (d Date) Contains(t time.Time) bool {
	return DateOf(t) == d
}

func (d Date) Before(o Date) bool { return d.Start().Before(o.Start()) }
func (d Date) After(o Date) bool  { return d.Start().After(o.Start()) }
func (d Date) IsZero() bool       { return d == Date{} }

func (d Date) String() string {
	return d.Start().Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalParam lets echo bind `?from=2024-04-01` query params.
func (d *Date) UnmarshalParam(param string) error {
	parsed, err := ParseDate(param)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Start(), nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
	case string:
		parsed, err := time.Parse(DateLayout, v[:min(len(v), len(DateLayout))])
		if err != nil {
			return ErrInvalidDate
		}
		*d = DateOf(parsed)
	case []byte:
		return d.Scan(string(v))
	default:
		return errors.Errorf("core.Date: cannot scan %T", src)
	}
	return nil
}

// DateRange is an inclusive window of calendar dates; nil bounds are open.
type DateRange struct {
	From *Date
	To   *Date
}

func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(r.From.Start()) {
		return false
	}
	if r.To != nil && !t.Before(r.To.End()) {
		return false
	}
	return true
}

func (r DateRange) Valid() bool {
	return r.From == nil || r.To == nil || !r.From.After(*r.To)
}
