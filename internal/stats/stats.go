// Package stats computes tag frequencies and the recent mood trend.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/store"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// TagCount is one bar of the frequency chart.
type TagCount struct {
	Tag   string `json:"tag"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// TrendRow is one (entry, tag) occurrence inside the trend window.
type TrendRow struct {
	Date  string `json:"date"`
	Tag   string `json:"tag"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary is the statistics view.
type Summary struct {
	TopTags      []TagCount `json:"mostFrequentMoods"`
	Trend        []TrendRow `json:"moodTrends"`
	TotalEntries int        `json:"totalEntries"`
}

// Options sizes the computation.
type Options struct {
	TopN   int
	Window time.Duration
}

// DefaultOptions are top five tags over the trailing seven days.
var DefaultOptions = Options{TopN: 5, Window: 7 * 24 * time.Hour}

// Compute derives the summary from a full entry list.
// Ties in the top list are broken by tag id ascending; unknown ids are ignored.
func Compute(entries []model.MoodEntry, now time.Time, opts Options, catalog *tags.Catalog, loc *time.Location) Summary {
	counts := map[string]int{}
	for _, e := range entries {
		for _, t := range catalog.Resolve(e.Tags) {
			counts[t.ID]++
		}
	}
	top := make([]TagCount, 0, len(counts))
	for id, n := range counts {
		t, _ := catalog.Lookup(id)
		top = append(top, TagCount{Tag: id, Name: t.Name, Color: t.Color, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Tag < top[j].Tag
	})
	if opts.TopN > 0 && len(top) > opts.TopN {
		top = top[:opts.TopN]
	}

	since := now.Add(-opts.Window)
	recent := make([]model.MoodEntry, 0, len(entries))
	for _, e := range entries {
		if !e.CreatedAt.Before(since) {
			recent = append(recent, e)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.Before(recent[j].CreatedAt) })

	trend := []TrendRow{}
	for _, e := range recent {
		date := e.CreatedAt.In(loc).Format("2006-01-02")
		for _, t := range catalog.Resolve(e.Tags) {
			trend = append(trend, TrendRow{Date: date, Tag: t.ID, Name: t.Name, Count: 1})
		}
	}

	return Summary{TopTags: top, Trend: trend, TotalEntries: len(entries)}
}

// Service recomputes statistics from a fresh fetch on every call.
type Service struct {
	entries store.Entries
	catalog *tags.Catalog
	loc     *time.Location
	opts    Options
	now     func() time.Time
}

func NewService(entries store.Entries, catalog *tags.Catalog, loc *time.Location, opts Options, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{entries: entries, catalog: catalog, loc: loc, opts: opts, now: now}
}

// For fetches the user's entries and summarises them.
func (s *Service) For(ctx context.Context, userID string) (Summary, error) {
	rows, err := s.entries.ListByUser(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch entries for stats: %w", err)
	}
	entries := make([]model.MoodEntry, len(rows))
	for i, e := range rows {
		entries[i] = *e
	}
	return Compute(entries, s.now(), s.opts, s.catalog, s.loc), nil
}
