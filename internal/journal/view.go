package journal

import (
	"time"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// EntryView is an entry ready for display. Only resolvable tags appear.
type EntryView struct {
	ID          string          `json:"id"`
	Text        string          `json:"text,omitempty"`
	Tags        []tags.Tag      `json:"tags"`
	CreatedAt   time.Time       `json:"createdAt"`
	Date        string          `json:"date"`
	Audio       *model.AudioRef `json:"audio,omitempty"`
	Highlighted bool            `json:"highlighted,omitempty"`
}

// Render converts entries to views in the same order.
func Render(entries []model.MoodEntry, catalog *tags.Catalog, loc *time.Location, highlightID string) []EntryView {
	out := make([]EntryView, len(entries))
	for i, e := range entries {
		out[i] = EntryView{
			ID:          e.ID,
			Text:        e.Text,
			Tags:        catalog.Resolve(e.Tags),
			CreatedAt:   e.CreatedAt.In(loc),
			Date:        DayOf(e.CreatedAt, loc).String(),
			Audio:       e.Audio,
			Highlighted: highlightID != "" && e.ID == highlightID,
		}
	}
	return out
}

// MaxIndicators is the number of entry markers shown per calendar day.
const MaxIndicators = 3

// Indicator marks one entry on a calendar day.
type Indicator struct {
	EntryID string `json:"entryId"`
	Color   string `json:"color,omitempty"`
}

// CalendarDay summarises one day of a month.
type CalendarDay struct {
	Date       string      `json:"date"`
	Day        int         `json:"day"`
	Weekday    string      `json:"weekday"`
	Count      int         `json:"count"`
	Indicators []Indicator `json:"indicators"`
	Overflow   int         `json:"overflow"`
}

// Month is the calendar grid for one month.
type Month struct {
	Year  int           `json:"year"`
	Month int           `json:"month"`
	Days  []CalendarDay `json:"days"`
}

// Calendar buckets entries by local day within year/month. Entries are
// expected newest first, so each day's indicators show its newest entries.
func Calendar(entries []model.MoodEntry, year int, month time.Month, catalog *tags.Catalog, loc *time.Location) Month {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	n := first.AddDate(0, 1, -1).Day()

	days := make([]CalendarDay, n)
	for i := range days {
		d := first.AddDate(0, 0, i)
		days[i] = CalendarDay{
			Date:       DayOf(d, loc).String(),
			Day:        i + 1,
			Weekday:    d.Weekday().String(),
			Indicators: []Indicator{},
		}
	}

	for _, e := range entries {
		d := DayOf(e.CreatedAt, loc)
		if d.Year != year || d.Month != month {
			continue
		}
		cd := &days[d.Day-1]
		cd.Count++
		if len(cd.Indicators) >= MaxIndicators {
			cd.Overflow++
			continue
		}
		ind := Indicator{EntryID: e.ID}
		if resolved := catalog.Resolve(e.Tags); len(resolved) > 0 {
			ind.Color = resolved[0].Color
		}
		cd.Indicators = append(cd.Indicators, ind)
	}
	return Month{Year: year, Month: int(month), Days: days}
}
