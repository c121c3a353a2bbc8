package chart

import (
	"errors"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

// ErrNotReviewing is returned by ExitReview when no review session is active.
var ErrNotReviewing = errors.New("chart: no active review session")

// ReviewController orchestrates time travel over the history log. It swaps a
// historical snapshot into the state store without losing unsaved live work,
// and restores the live state on exit. While a session is active the store
// rejects writes (see ErrReviewing).
type ReviewController struct {
	store *Store

	// persistLive flushes the current live state into the patient aggregate;
	// loadLive reads it back. Both are supplied by the owning workspace.
	persistLive func()
	loadLive    func() models.ClinicalState

	// showReport loads a report-bearing entry into the report surface instead
	// of touching issues and vitals.
	showReport func(models.Report)

	active *models.HistoryEntry
}

func NewReviewController(store *Store, persistLive func(), loadLive func() models.ClinicalState, showReport func(models.Report)) *ReviewController {
	return &ReviewController{
		store:       store,
		persistLive: persistLive,
		loadLive:    loadLive,
		showReport:  showReport,
	}
}

// EnterReview starts (or re-targets) a review session on the given entry.
// From Live it first persists the live state so review never discards unsaved
// work; selecting another entry while already Reviewing re-enters directly,
// since there is nothing live to flush. The snapshot put into the store is a
// deep copy; a shared reference would leak edits back into history.
func (c *ReviewController) EnterReview(entry models.HistoryEntry) {
	if c.active == nil {
		c.persistLive()
	}

	e := entry.Clone()
	switch {
	case e.Snapshot != nil:
		c.store.swap(e.Snapshot.Clone())
	case e.Kind.ReportBearing():
		c.showReport(e.Report.Clone())
	}

	c.store.setReadOnly(true)
	c.active = &e
}

// ExitReview ends the session and reloads the persisted live state into the
// store. This is a full reload, not an undo: anything written to the store
// while nominally Reviewing (there should be nothing, writes are rejected) is
// discarded.
func (c *ReviewController) ExitReview() error {
	if c.active == nil {
		return ErrNotReviewing
	}

	c.store.setReadOnly(false)
	c.store.swap(c.loadLive())
	c.active = nil
	return nil
}

// Reviewing reports whether a review session is active.
func (c *ReviewController) Reviewing() bool {
	return c.active != nil
}

// Active returns a copy of the entry under review, if any.
func (c *ReviewController) Active() (models.HistoryEntry, bool) {
	if c.active == nil {
		return models.HistoryEntry{}, false
	}
	return c.active.Clone(), true
}
