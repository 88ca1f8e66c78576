// Package journal projects a user's entries into list and calendar views.
package journal

import (
	"fmt"
	"time"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// DayLayout is the wire format of a calendar day.
const DayLayout = "2006-01-02"

// Day is a local calendar date.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses YYYY-MM-DD.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DayOf(t, time.UTC), nil
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Filter narrows the entry list. Zero-valued fields are inactive; active ones combine with AND.
type Filter struct {
	Date     *Day
	Category tags.Category
	Tags     []string
}

// ParseFilter builds a filter from query values; empty strings mean "not set".
func ParseFilter(date, category string, tagIDs []string) (Filter, error) {
	var f Filter
	if date != "" {
		d, err := ParseDay(date)
		if err != nil {
			return Filter{}, err
		}
		f.Date = &d
	}
	if category != "" {
		c, err := tags.ParseCategory(category)
		if err != nil {
			return Filter{}, err
		}
		f.Category = c
	}
	f.Tags = model.DedupeTags(tagIDs)
	return f, nil
}

// Match reports whether e passes every active dimension of f.
func (f Filter) Match(e model.MoodEntry, catalog *tags.Catalog, loc *time.Location) bool {
	if f.Date != nil && DayOf(e.CreatedAt, loc) != *f.Date {
		return false
	}
	if f.Category != "" && !catalog.AnyInCategory(e.Tags, f.Category) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(e.Tags, f.Tags) {
		return false
	}
	return true
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Apply keeps the entries matching f, preserving order.
func Apply(entries []model.MoodEntry, f Filter, catalog *tags.Catalog, loc *time.Location) []model.MoodEntry {
	out := make([]model.MoodEntry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e, catalog, loc) {
			out = append(out, e)
		}
	}
	return out
}
