package service

import (
	"sort"

	"daily-tracker/internal/model"
)

// DailyStat is the folded completion count of one calendar day.
type DailyStat struct {
	Date           model.Date `json:"date"`
	CompletedCount int        `json:"completed_count"`
	TotalCount     int        `json:"total_count"`
}

// Rate is the completion percentage; a day without tasks rates 0.
func (s DailyStat) Rate() float64 {
	if s.TotalCount <= 0 {
		return 0
	}
	return float64(s.CompletedCount) / float64(s.TotalCount) * 100
}

// Band groups rates the way the calendar legend colours them.
type Band int

const (
	BandNone Band = iota // no completions
	BandLow              // below 50%
	BandMid              // below 100%
	BandFull
)

func (b Band) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandMid:
		return "mid"
	case BandFull:
		return "full"
	default:
		return "none"
	}
}

func (s DailyStat) Band() Band {
	rate := s.Rate()
	switch {
	case rate <= 0:
		return BandNone
	case rate < 50:
		return BandLow
	case rate < 100:
		return BandMid
	default:
		return BandFull
	}
}

// Live derives the stat of day from the current task collection.
func Live(day model.Date, tasks []model.Task) DailyStat {
	stat := DailyStat{Date: day, TotalCount: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			stat.CompletedCount++
		}
	}
	return stat
}

type contribution struct {
	day       model.Date
	completed int
	total     int
}

type bucket struct {
	stat DailyStat
	rows int
}

// Aggregator keeps the calendar's per-day stats for one displayed date range.
// It remembers each record's contribution so updates and deletes can be
// folded in without re-fetching the range.
type Aggregator struct {
	from    model.Date
	to      model.Date
	records map[string]contribution
	buckets map[model.Date]*bucket
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		records: make(map[string]contribution),
		buckets: make(map[model.Date]*bucket),
	}
}

// Load replaces the displayed range and folds records into it, summing rows
// that share a date. A record id seen twice counts once, with its last value.
func (a *Aggregator) Load(from, to model.Date, records []model.CompletionRecord) {
	a.from, a.to = from, to
	a.records = make(map[string]contribution, len(records))
	a.buckets = make(map[model.Date]*bucket)
	for _, rec := range records {
		if a.inRange(rec.Day()) {
			a.retract(rec.ID)
			a.add(rec)
		}
	}
}

// Range returns the displayed range; both are zero before the first Load.
func (a *Aggregator) Range() (model.Date, model.Date) {
	return a.from, a.to
}

// Apply folds one change event into its date's bucket and reports whether
// the displayed stats changed.
func (a *Aggregator) Apply(ev model.CompletionEvent) bool {
	switch ev.EventType {
	case model.EventInsert, model.EventUpdate:
		if ev.New == nil || ev.New.ID == "" {
			return false
		}
		changed := a.retract(ev.New.ID)
		if a.inRange(ev.New.Day()) {
			a.add(*ev.New)
			changed = true
		}
		return changed
	case model.EventDelete:
		return a.retract(ev.RecordID())
	default:
		return false
	}
}

// Stat returns the folded stat for day, zero-valued when nothing was recorded.
func (a *Aggregator) Stat(day model.Date) DailyStat {
	if b, ok := a.buckets[day]; ok {
		return b.stat
	}
	return DailyStat{Date: day}
}

// Stats returns every non-empty day in date order.
func (a *Aggregator) Stats() []DailyStat {
	stats := make([]DailyStat, 0, len(a.buckets))
	for _, b := range a.buckets {
		stats = append(stats, b.stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date < stats[j].Date })
	return stats
}

func (a *Aggregator) inRange(day model.Date) bool {
	if a.from.IsZero() || a.to.IsZero() {
		return false
	}
	return !day.Before(a.from) && !a.to.Before(day)
}

func (a *Aggregator) add(rec model.CompletionRecord) {
	c := contribution{day: rec.Day(), completed: rec.CompletedCount, total: rec.TotalCount}
	a.records[rec.ID] = c
	b, ok := a.buckets[c.day]
	if !ok {
		b = &bucket{stat: DailyStat{Date: c.day}}
		a.buckets[c.day] = b
	}
	b.stat.CompletedCount += c.completed
	b.stat.TotalCount += c.total
	b.rows++
}

func (a *Aggregator) retract(id string) bool {
	c, ok := a.records[id]
	if !ok {
		return false
	}
	delete(a.records, id)
	b := a.buckets[c.day]
	b.stat.CompletedCount -= c.completed
	b.stat.TotalCount -= c.total
	b.rows--
	if b.rows <= 0 {
		delete(a.buckets, c.day)
	}
	return true
}
