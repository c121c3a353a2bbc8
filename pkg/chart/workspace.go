package chart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-health/chartcore/pkg/annotation"
	"github.com/meridian-health/chartcore/pkg/autosave"
	"github.com/meridian-health/chartcore/pkg/common/logger"
	"github.com/meridian-health/chartcore/pkg/common/models"
)

var (
	// ErrNoPatient is returned when an operation needs a selected patient.
	ErrNoPatient = errors.New("chart: no patient selected")
	// ErrUnknownPatient is returned for ids the workspace has never seen.
	ErrUnknownPatient = errors.New("chart: unknown patient")
	// ErrNoSuchEntry is returned for out-of-range history references.
	ErrNoSuchEntry = errors.New("chart: no such history entry")
)

// ReportGenerator is the AI backend boundary. Implementations must return a
// complete report or an error, never a partial result.
type ReportGenerator interface {
	Generate(ctx context.Context, state models.ClinicalState, recentSummaries []string) (models.Report, error)
}

// AuditPublisher receives an advisory event for every history write. Failures
// are logged and never block or corrupt the write.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, patientID, entryKind, summary string) error
}

// ReportCache holds the latest generated report per patient so a reopened
// chart can skip an AI round trip.
type ReportCache interface {
	Put(ctx context.Context, patientID string, report models.Report) error
	Get(ctx context.Context, patientID string) (models.Report, bool, error)
}

// PatientRepository persists patient aggregates across sessions.
type PatientRepository interface {
	Save(ctx context.Context, patient *models.Patient) error
	Get(ctx context.Context, id string) (*models.Patient, error)
	List(ctx context.Context) ([]models.Patient, error)
}

// WorkspaceOptions configures the collaborators of a Workspace. All of them
// are optional; a zero options value yields a purely in-memory workspace.
type WorkspaceOptions struct {
	AutosaveDelay time.Duration
	PromptWindow  int
	Generator     ReportGenerator
	Audit         AuditPublisher
	Cache         ReportCache
	Repository    PatientRepository
}

// Workspace owns the single current-patient context: the state store, the
// history log, the review session, the annotation index, and the autosave
// scheduler. Switching patients flushes autosave, persists the outgoing
// patient's live state, and swaps the store, history view, and annotation
// index as one logical step.
type Workspace struct {
	mu sync.Mutex

	patients  map[string]*models.Patient
	currentID string

	store    *Store
	history  *HistoryLog
	review   *ReviewController
	index    *annotation.Index
	autosave *autosave.Scheduler

	generator    ReportGenerator
	audit        AuditPublisher
	cache        ReportCache
	repo         PatientRepository
	promptWindow int

	currentReport models.Report
	liveReport    models.Report
	reportErr     error
}

func NewWorkspace(opts WorkspaceOptions) *Workspace {
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = time.Second
	}
	if opts.PromptWindow <= 0 {
		opts.PromptWindow = 5
	}

	w := &Workspace{
		patients:     make(map[string]*models.Patient),
		store:        NewStore(),
		history:      NewHistoryLog(),
		index:        annotation.NewIndex(),
		generator:    opts.Generator,
		audit:        opts.Audit,
		cache:        opts.Cache,
		repo:         opts.Repository,
		promptWindow: opts.PromptWindow,
	}
	w.review = NewReviewController(w.store, w.persistLiveLocked, w.loadLiveLocked, w.showReportLocked)
	w.autosave = autosave.New(opts.AutosaveDelay, w.commitAnnotations)
	return w
}

// Store exposes the state store for mutations that carry no history side
// effects (vitals, goals, care plan, draft items). Issue edits go through the
// workspace so note lifecycle entries are recorded.
func (w *Workspace) Store() *Store {
	return w.store
}

// History exposes the append-only history log.
func (w *Workspace) History() *HistoryLog {
	return w.history
}

// CreatePatient registers a new patient with an empty, well-formed state.
// The first patient created becomes the current one.
func (w *Workspace) CreatePatient(demo models.Demographics) models.Patient {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := &models.Patient{
		ID:           uuid.New().String(),
		Demographics: demo,
		State:        models.NewClinicalState(),
		CreatedAt:    time.Now().UTC(),
	}
	w.patients[p.ID] = p

	if w.currentID == "" {
		w.activateLocked(p)
	}
	return p.Clone()
}

// ImportPatient registers a previously exported or persisted aggregate,
// hydrating its history into the log.
func (w *Workspace) ImportPatient(p models.Patient) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cp := p.Clone()
	cp.State = normalize(cp.State)
	w.history.Load(cp.ID, cp.History)
	cp.History = nil
	w.patients[cp.ID] = &cp

	if w.currentID == "" {
		w.activateLocked(&cp)
	}
}

// SelectPatient makes the patient current. The outgoing patient's pending
// autosave is flushed and its live state persisted before anything is
// swapped; store contents, history view, and annotation index then switch
// together. Unknown ids are looked up in the repository when one is wired.
func (w *Workspace) SelectPatient(ctx context.Context, id string) error {
	// Flush outside the lock; the commit callback takes it.
	w.autosave.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.patients[id]
	if !ok && w.repo != nil {
		loaded, err := w.repo.Get(ctx, id)
		if err == nil && loaded != nil {
			cp := loaded.Clone()
			cp.State = normalize(cp.State)
			w.history.Load(cp.ID, cp.History)
			cp.History = nil
			w.patients[cp.ID] = &cp
			p, ok = &cp, true
		}
	}
	if !ok {
		return ErrUnknownPatient
	}

	if w.review.Reviewing() {
		if err := w.review.ExitReview(); err != nil {
			return err
		}
	}

	if w.currentID != "" {
		w.persistLiveLocked()
		if w.repo != nil {
			outgoing := w.exportLocked(w.currentID)
			if err := w.repo.Save(ctx, &outgoing); err != nil {
				logger.Log.WithError(err).WithField("patient_id", w.currentID).
					Error("failed to persist outgoing patient")
			}
		}
	}

	w.activateLocked(p)

	// No report in the incoming patient's history: fall back to the cached
	// last run, if any. A miss or cache failure just means an empty surface.
	if w.currentReport == nil && w.cache != nil {
		if cached, ok, err := w.cache.Get(ctx, p.ID); err != nil {
			logger.Log.WithError(err).Warn("failed to read cached report")
		} else if ok {
			w.currentReport = cached
			w.liveReport = cached.Clone()
		}
	}
	return nil
}

// activateLocked swaps every piece of per-patient context in one step.
func (w *Workspace) activateLocked(p *models.Patient) {
	w.currentID = p.ID
	w.store.swap(p.State)
	w.reportErr = nil

	w.currentReport = nil
	w.index.Restore(nil)
	for _, e := range w.history.ListFor(p.ID) {
		if e.Kind == models.KindFinalizedReport {
			w.index.Restore(e.Annotations)
			break
		}
	}
	for _, e := range w.history.ListFor(p.ID) {
		if e.Kind.ReportBearing() {
			w.currentReport = e.Report.Clone()
			break
		}
	}
	w.liveReport = w.currentReport.Clone()
}

// ListPatients returns every known patient, demographics and live state only
// (history stays in the log until export). Patients persisted by an earlier
// session but not yet loaded are included when a repository is wired.
func (w *Workspace) ListPatients(ctx context.Context) ([]models.Patient, error) {
	w.mu.Lock()
	out := make([]models.Patient, 0, len(w.patients))
	seen := make(map[string]bool, len(w.patients))
	for _, p := range w.patients {
		out = append(out, p.Clone())
		seen[p.ID] = true
	}
	w.mu.Unlock()

	if w.repo != nil {
		persisted, err := w.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range persisted {
			if !seen[p.ID] {
				out = append(out, p)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CurrentPatientID returns the id of the selected patient, or "".
func (w *Workspace) CurrentPatientID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentID
}

// ExportPatient assembles the full aggregate for a patient: demographics,
// live state, history from the log, bookmarks, denormalized last visit.
func (w *Workspace) ExportPatient(id string) (models.Patient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.patients[id]; !ok {
		return models.Patient{}, ErrUnknownPatient
	}
	if id == w.currentID && !w.review.Reviewing() {
		w.persistLiveLocked()
	}
	return w.exportLocked(id), nil
}

func (w *Workspace) exportLocked(id string) models.Patient {
	p := w.patients[id].Clone()
	p.History = w.history.ListFor(id)
	p.LastVisitDate = w.history.LastVisit(id)
	return p
}

// UpdateIssue upserts an issue in the current chart. A missing NoteID marks a
// brand-new note and is assigned here; ids are never reused. New notes emit a
// note_created history entry carrying back-references only.
func (w *Workspace) UpdateIssue(bodyPartID string, issue models.Issue) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentID == "" {
		return ErrNoPatient
	}
	if issue.NoteID == "" {
		issue.NoteID = uuid.New().String()
	}

	created, err := w.store.UpdateIssue(bodyPartID, issue)
	if err != nil {
		return err
	}
	if created {
		w.appendLocked(w.currentID, models.HistoryEntry{
			Kind:       models.KindNoteCreated,
			Summary:    fmt.Sprintf("Note added for %s", issue.DisplayName),
			BodyPartID: bodyPartID,
			NoteID:     issue.NoteID,
		})
	}
	return nil
}

// RemoveIssue deletes an issue; removing an unknown note is a no-op and
// records nothing. Actual deletions emit a note_deleted entry.
func (w *Workspace) RemoveIssue(bodyPartID, noteID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentID == "" {
		return ErrNoPatient
	}

	removed, err := w.store.RemoveIssue(bodyPartID, noteID)
	if err != nil {
		return err
	}
	if removed {
		w.appendLocked(w.currentID, models.HistoryEntry{
			Kind:       models.KindNoteDeleted,
			Summary:    "Note deleted",
			BodyPartID: bodyPartID,
			NoteID:     noteID,
		})
	}
	return nil
}

// SaveVisit snapshots the live state into a visit_snapshot history entry.
func (w *Workspace) SaveVisit(summary string) error {
	return w.snapshotEntry(models.KindVisitSnapshot, summary)
}

// ArchiveChart snapshots the live state into an archived_chart entry.
func (w *Workspace) ArchiveChart(summary string) error {
	return w.snapshotEntry(models.KindArchivedChart, summary)
}

func (w *Workspace) snapshotEntry(kind models.EntryKind, summary string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentID == "" {
		return ErrNoPatient
	}
	if w.review.Reviewing() {
		// Snapshotting while reviewing would archive archived data.
		return ErrReviewing
	}

	state := w.store.Get()
	w.appendLocked(w.currentID, models.HistoryEntry{
		Kind:     kind,
		Summary:  summary,
		Snapshot: &state,
	})
	return nil
}

// AddBookmark records a bookmark on the aggregate and in the history.
func (w *Workspace) AddBookmark(label, lens, contentKey string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentID == "" {
		return ErrNoPatient
	}

	bm := models.Bookmark{
		ID:         uuid.New().String(),
		Label:      label,
		Lens:       lens,
		ContentKey: contentKey,
		CreatedAt:  time.Now().UTC(),
	}
	w.patients[w.currentID].Bookmarks = append(w.patients[w.currentID].Bookmarks, bm)
	w.appendLocked(w.currentID, models.HistoryEntry{
		Kind:     models.KindBookmarkAdded,
		Summary:  fmt.Sprintf("Bookmark: %s", label),
		Bookmark: &bm,
	})
	return nil
}

// GenerateReport asks the AI backend for a fresh report. On success the run
// is appended to the history and becomes the current report; on failure the
// error lands in the error slot and neither the store nor the log changes.
// No partial analysis run is ever appended.
func (w *Workspace) GenerateReport(ctx context.Context) (models.Report, error) {
	w.mu.Lock()
	if w.currentID == "" {
		w.mu.Unlock()
		return nil, ErrNoPatient
	}
	if w.review.Reviewing() {
		w.mu.Unlock()
		return nil, ErrReviewing
	}
	if w.generator == nil {
		w.mu.Unlock()
		return nil, errors.New("chart: no report generator configured")
	}
	patientID := w.currentID
	state := w.store.Get()
	recent := w.history.RecentSummaries(patientID, w.promptWindow)
	w.mu.Unlock()

	result, err := w.generator.Generate(ctx, state, recent)

	w.mu.Lock()
	defer w.mu.Unlock()

	// The patient may have been switched, or a review session entered, while
	// the generator was in flight. The run belongs to the patient it was
	// requested for; the viewing surfaces belong to whoever is current now.
	current := w.currentID == patientID
	if err != nil {
		if current {
			w.reportErr = err
		}
		return nil, err
	}

	w.appendLocked(patientID, models.HistoryEntry{
		Kind:    models.KindAnalysisRun,
		Summary: "AI analysis generated",
		Report:  result.Clone(),
	})
	if current {
		w.reportErr = nil
		w.liveReport = result.Clone()
		if !w.review.Reviewing() {
			w.currentReport = result.Clone()
		}
	}

	if w.cache != nil {
		if cacheErr := w.cache.Put(ctx, patientID, result); cacheErr != nil {
			logger.Log.WithError(cacheErr).Warn("failed to cache generated report")
		}
	}
	return result.Clone(), nil
}

// LastReportError is the error slot the UI reads after a failed generation.
func (w *Workspace) LastReportError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reportErr
}

// CurrentReport returns the report on the viewing surface, which is either
// the latest generated run or, during review, the reviewed entry's report.
func (w *Workspace) CurrentReport() models.Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentReport.Clone()
}

// GetAnnotation resolves the annotation for a derived content key; missing
// keys yield the default (empty note, normal mark).
func (w *Workspace) GetAnnotation(lens, key string) models.Annotation {
	return w.index.Get(lens, key)
}

// SetAnnotation merges a note/mark patch and schedules an autosave commit.
func (w *Workspace) SetAnnotation(lens, key string, patch annotation.Patch) {
	w.index.Set(lens, key, patch)
	w.autosave.Trigger()
}

// ToggleAnnotationMark cycles the mark ring and schedules an autosave commit.
func (w *Workspace) ToggleAnnotationMark(lens, key string) models.MarkState {
	mark := w.index.ToggleMark(lens, key)
	w.autosave.Trigger()
	return mark
}

// FlushAnnotations commits any pending annotation edits immediately. Callers
// owning the report view must invoke it on every exit path.
func (w *Workspace) FlushAnnotations() {
	w.autosave.Flush()
}

// commitAnnotations is the autosave commit callback: it writes the current
// report plus the annotation snapshot into the single in-progress
// finalized_report entry, creating it on the first save and updating it on
// later ones.
func (w *Workspace) commitAnnotations() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentID == "" {
		return
	}

	// During review the viewing surface holds the reviewed entry's historical
	// report; annotations always finalize against the in-progress one.
	report := w.currentReport
	if w.review.Reviewing() {
		report = w.liveReport
	}
	if report == nil && w.index.Empty() {
		return
	}

	entry := models.HistoryEntry{
		Kind:        models.KindFinalizedReport,
		Date:        time.Now().UTC(),
		Summary:     "Annotated report",
		Report:      report.Clone(),
		Annotations: w.index.Snapshot(),
	}
	w.history.Update(w.currentID, entry, func(e models.HistoryEntry) bool {
		return e.Kind == models.KindFinalizedReport
	})
	w.publishAudit(w.currentID, entry)
}

// EnterReviewAt starts a review session on the history entry at index i
// (0 = newest). Selecting another entry while reviewing re-enters directly.
// A pending autosave is flushed first: a commit firing mid-review would pair
// the live annotation index with the reviewed entry's report. The entry is
// resolved before the flush so the committed finalized_report entry does not
// shift the caller's index.
func (w *Workspace) EnterReviewAt(i int) error {
	w.mu.Lock()
	if w.currentID == "" {
		w.mu.Unlock()
		return ErrNoPatient
	}
	entry, ok := w.history.EntryAt(w.currentID, i)
	if !ok {
		w.mu.Unlock()
		return ErrNoSuchEntry
	}
	w.mu.Unlock()

	// Flush outside the lock; the commit callback takes it.
	w.autosave.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.review.EnterReview(entry)
	return nil
}

// ExitReview ends the review session and restores the live state.
func (w *Workspace) ExitReview() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.review.ExitReview()
}

// Reviewing reports whether a review session is active.
func (w *Workspace) Reviewing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.review.Reviewing()
}

// Close flushes pending autosave work and persists the current patient.
func (w *Workspace) Close(ctx context.Context) error {
	w.autosave.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentID == "" {
		return nil
	}
	if w.review.Reviewing() {
		if err := w.review.ExitReview(); err != nil {
			return err
		}
	}
	w.persistLiveLocked()
	if w.repo != nil {
		p := w.exportLocked(w.currentID)
		return w.repo.Save(ctx, &p)
	}
	return nil
}

// persistLiveLocked flushes the store into the current patient aggregate and
// stashes the live report surface. Review entry depends on it so unsaved
// work is never discarded.
func (w *Workspace) persistLiveLocked() {
	if w.currentID == "" {
		return
	}
	w.patients[w.currentID].State = w.store.Get()
	w.liveReport = w.currentReport.Clone()
}

// loadLiveLocked reads the persisted live state back and restores the live
// report surface. Review exit depends on it.
func (w *Workspace) loadLiveLocked() models.ClinicalState {
	w.currentReport = w.liveReport.Clone()
	if w.currentID == "" {
		return models.NewClinicalState()
	}
	return w.patients[w.currentID].State.Clone()
}

// showReportLocked loads a reviewed entry's report onto the viewing surface.
func (w *Workspace) showReportLocked(r models.Report) {
	w.currentReport = r
}

// appendLocked writes a history entry for the given patient and publishes the
// advisory audit event. Audit failures are logged and never fail the append.
func (w *Workspace) appendLocked(patientID string, entry models.HistoryEntry) {
	w.history.Append(patientID, entry)
	w.publishAudit(patientID, entry)
}

func (w *Workspace) publishAudit(patientID string, entry models.HistoryEntry) {
	if w.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.audit.PublishAudit(ctx, patientID, string(entry.Kind), entry.Summary); err != nil {
		logger.Log.WithError(err).WithField("entry_kind", entry.Kind).
			Warn("failed to publish chart audit event")
	}
}
