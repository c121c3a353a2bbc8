package chart

import (
	"fmt"
	"sync"
	"time"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

// HistoryLog is the per-patient append-only list of immutable history entries,
// newest first: index 0 is always the most recently written entry. Every entry
// going in or out is a deep copy, so nothing appended ever aliases live state.
type HistoryLog struct {
	mu       sync.Mutex
	patients map[string]*patientLog
}

type patientLog struct {
	entries   []models.HistoryEntry
	lastVisit *time.Time
}

func NewHistoryLog() *HistoryLog {
	return &HistoryLog{patients: make(map[string]*patientLog)}
}

func (l *HistoryLog) logFor(patientID string) *patientLog {
	pl, ok := l.patients[patientID]
	if !ok {
		pl = &patientLog{}
		l.patients[patientID] = pl
	}
	return pl
}

// Append prepends the entry to the patient's history. Visit snapshots also
// update the denormalized last-visit date; both happen under one lock so the
// log and the date can never disagree.
func (l *HistoryLog) Append(patientID string, entry models.HistoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := entry.Clone()
	if e.Date.IsZero() {
		e.Date = time.Now().UTC()
	}

	pl := l.logFor(patientID)
	pl.entries = append([]models.HistoryEntry{e}, pl.entries...)
	if e.Kind == models.KindVisitSnapshot {
		date := e.Date
		pl.lastVisit = &date
	}
}

// Update replaces the first entry satisfying match with the given entry,
// keeping its position; when nothing matches it appends instead. This models
// "save now creates the first draft, later saves update it". The replacement
// is whole-entry, never an in-place field mutation.
func (l *HistoryLog) Update(patientID string, entry models.HistoryEntry, match func(models.HistoryEntry) bool) {
	l.mu.Lock()
	pl := l.logFor(patientID)
	for i := range pl.entries {
		if match(pl.entries[i]) {
			e := entry.Clone()
			if e.Date.IsZero() {
				e.Date = time.Now().UTC()
			}
			pl.entries[i] = e
			l.mu.Unlock()
			return
		}
	}
	l.mu.Unlock()

	l.Append(patientID, entry)
}

// ListFor returns a deep copy of the patient's history, newest first.
func (l *HistoryLog) ListFor(patientID string) []models.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.patients[patientID]
	if !ok {
		return nil
	}
	out := make([]models.HistoryEntry, len(pl.entries))
	for i, e := range pl.entries {
		out[i] = e.Clone()
	}
	return out
}

// EntryAt returns a copy of the entry at index i (0 = newest).
func (l *HistoryLog) EntryAt(patientID string, i int) (models.HistoryEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.patients[patientID]
	if !ok || i < 0 || i >= len(pl.entries) {
		return models.HistoryEntry{}, false
	}
	return pl.entries[i].Clone(), true
}

// LastVisit returns the denormalized date of the most recent visit snapshot.
func (l *HistoryLog) LastVisit(patientID string) *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.patients[patientID]
	if !ok || pl.lastVisit == nil {
		return nil
	}
	date := *pl.lastVisit
	return &date
}

// RecentSummaries returns the summaries of the most recent snapshot- or
// report-bearing entries, newest first, bounded by n. It feeds the AI prompt
// window; note and bookmark entries carry no clinical content worth prompting
// with.
func (l *HistoryLog) RecentSummaries(patientID string, n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.patients[patientID]
	if !ok {
		return nil
	}
	var out []string
	for _, e := range pl.entries {
		if len(out) >= n {
			break
		}
		if e.Kind.SnapshotBearing() || e.Kind.ReportBearing() {
			out = append(out, fmt.Sprintf("%s (%s): %s", e.Date.Format("2006-01-02"), e.Kind, e.Summary))
		}
	}
	return out
}

// Load hydrates a patient's history from persisted entries (newest first),
// replacing anything already held, and rebuilds the last-visit denorm.
func (l *HistoryLog) Load(patientID string, entries []models.HistoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl := l.logFor(patientID)
	pl.entries = make([]models.HistoryEntry, len(entries))
	pl.lastVisit = nil
	for i, e := range entries {
		pl.entries[i] = e.Clone()
	}
	for _, e := range pl.entries {
		if e.Kind == models.KindVisitSnapshot {
			date := e.Date
			pl.lastVisit = &date
			break
		}
	}
}
