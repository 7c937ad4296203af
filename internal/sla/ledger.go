package sla

import (
	"sort"
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// Event is a single pause or resume timestamp. Seq is the insertion order
// and breaks ties between equal timestamps.
type Event struct {
	Seq int64
	At  time.Time
}

// Interval is a pause matched with the resume that ended it. Resume is nil
// when no later resume exists.
type Interval struct {
	Pause  Event
	Resume *Event
}

// Pair greedily matches every pause, in time order, with the earliest
// still-unused resume strictly later than it.
func Pair(pauses, resumes []Event) []Interval {
	ps := sortedEvents(pauses)
	rs := sortedEvents(resumes)
	used := make([]bool, len(rs))

	out := make([]Interval, 0, len(ps))
	for _, p := range ps {
		iv := Interval{Pause: p}
		for i := range rs {
			if used[i] || !rs[i].At.After(p.At) {
				continue
			}
			used[i] = true
			r := rs[i]
			iv.Resume = &r
			break
		}
		out = append(out, iv)
	}
	return out
}

// PairAndSum returns the total paused duration described by separate pause
// and resume timestamp lists. Pauses with no matching resume count up to
// now; a pause later than now contributes nothing.
func PairAndSum(pauses, resumes []time.Time, now time.Time) time.Duration {
	var total time.Duration
	for _, iv := range Pair(indexed(pauses), indexed(resumes)) {
		end := now
		if iv.Resume != nil {
			end = iv.Resume.At
		}
		total += nonNegative(end.Sub(iv.Pause.At))
	}
	return total
}

func indexed(ts []time.Time) []Event {
	events := make([]Event, len(ts))
	for i, t := range ts {
		events[i] = Event{Seq: int64(i), At: t}
	}
	return events
}

func sortedEvents(events []Event) []Event {
	out := append([]Event(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// Ledger holds the pause intervals of one timer. At most one interval is
// open at a time.
type Ledger struct {
	timerID   int64
	intervals []domain.PauseInterval
}

// NewLedger builds a ledger from stored rows. Rows carrying both timestamps
// are complete intervals. Rows with only one side set come from the older
// split layout and are paired with Pair, ordered by row id.
func NewLedger(timerID int64, rows []domain.PauseInterval) *Ledger {
	l := &Ledger{timerID: timerID}

	var pauses, resumes []Event
	byID := make(map[int64]domain.PauseInterval, len(rows))
	for _, row := range rows {
		switch {
		case row.PausedAt != nil && row.ResumedAt != nil:
			row.Duration = nonNegative(row.ResumedAt.Sub(*row.PausedAt))
			l.intervals = append(l.intervals, row)
		case row.PausedAt != nil:
			pauses = append(pauses, Event{Seq: row.ID, At: *row.PausedAt})
			byID[row.ID] = row
		case row.ResumedAt != nil:
			resumes = append(resumes, Event{Seq: row.ID, At: *row.ResumedAt})
		}
	}

	for _, iv := range Pair(pauses, resumes) {
		row := byID[iv.Pause.Seq]
		if iv.Resume != nil {
			resumedAt := iv.Resume.At
			row.ResumedAt = &resumedAt
			row.Duration = nonNegative(resumedAt.Sub(*row.PausedAt))
		}
		l.intervals = append(l.intervals, row)
	}

	sort.SliceStable(l.intervals, func(i, j int) bool {
		a, b := l.intervals[i], l.intervals[j]
		if a.PausedAt.Equal(*b.PausedAt) {
			return a.ID < b.ID
		}
		return a.PausedAt.Before(*b.PausedAt)
	})
	l.collapseOpen()
	return l
}

// collapseOpen keeps only the latest open interval open. Earlier unmatched
// pauses are closed by the next pause that followed them.
func (l *Ledger) collapseOpen() {
	for i := 0; i < len(l.intervals)-1; i++ {
		iv := &l.intervals[i]
		if iv.ResumedAt != nil {
			continue
		}
		next := *l.intervals[i+1].PausedAt
		iv.ResumedAt = &next
		iv.Duration = nonNegative(next.Sub(*iv.PausedAt))
	}
}

// Intervals returns a copy of the ledger rows in pause order.
func (l *Ledger) Intervals() []domain.PauseInterval {
	return append([]domain.PauseInterval(nil), l.intervals...)
}

// Open returns the interval that has not been resumed yet.
func (l *Ledger) Open() (domain.PauseInterval, bool) {
	if n := len(l.intervals); n > 0 && l.intervals[n-1].ResumedAt == nil {
		return l.intervals[n-1], true
	}
	return domain.PauseInterval{}, false
}

// RecordPause opens a new interval at at. It returns false when a pause is
// already open.
func (l *Ledger) RecordPause(at time.Time) (domain.PauseInterval, bool) {
	if _, open := l.Open(); open {
		return domain.PauseInterval{}, false
	}
	at = at.UTC()
	iv := domain.PauseInterval{TimerID: l.timerID, PausedAt: &at}
	l.intervals = append(l.intervals, iv)
	return iv, true
}

// RecordResume closes the open interval at at. It returns false when the
// timer is not paused.
func (l *Ledger) RecordResume(at time.Time) (domain.PauseInterval, bool) {
	n := len(l.intervals)
	if n == 0 || l.intervals[n-1].ResumedAt != nil {
		return domain.PauseInterval{}, false
	}
	at = at.UTC()
	iv := &l.intervals[n-1]
	iv.ResumedAt = &at
	iv.Duration = nonNegative(at.Sub(*iv.PausedAt))
	return *iv, true
}

// AssignOpenID records the storage id of the open interval after insert.
func (l *Ledger) AssignOpenID(id int64) {
	if n := len(l.intervals); n > 0 && l.intervals[n-1].ResumedAt == nil {
		l.intervals[n-1].ID = id
	}
}

// ClosedTotal sums completed intervals.
func (l *Ledger) ClosedTotal() time.Duration {
	var total time.Duration
	for _, iv := range l.intervals {
		if iv.ResumedAt != nil {
			total += iv.Duration
		}
	}
	return total
}

// Total is ClosedTotal plus the running length of the open pause at now.
func (l *Ledger) Total(now time.Time) time.Duration {
	total := l.ClosedTotal()
	if open, ok := l.Open(); ok {
		total += nonNegative(now.Sub(*open.PausedAt))
	}
	return total
}
