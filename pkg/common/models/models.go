package models

import (
	"encoding/json"
	"time"
)

// Vitals are stored as display strings, not parsed numerics: the source data is
// user-typed and may be partial or malformed. Validation belongs to the UI boundary.
type Vitals struct {
	BloodPressure    string `json:"blood_pressure"`
	HeartRate        string `json:"heart_rate"`
	Temperature      string `json:"temperature"`
	OxygenSaturation string `json:"oxygen_saturation"`
	Weight           string `json:"weight"`
	Height           string `json:"height"`
}

// Issue is a single body-part complaint. NoteID is globally unique within a
// patient across all time and is never reused, even after delete, so history
// entries referencing it remain resolvable.
type Issue struct {
	BodyPartID     string `json:"body_part_id"`
	NoteID         string `json:"note_id"`
	DisplayName    string `json:"display_name"`
	PainLevel      int    `json:"pain_level"` // 0-10
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ClinicalState is the single mutable "current" patient record.
type ClinicalState struct {
	Issues             map[string][]Issue `json:"issues"`
	Goals              string             `json:"goals"`
	Vitals             Vitals             `json:"vitals"`
	ActiveCarePlan     *string            `json:"active_care_plan,omitempty"`
	DraftCarePlanItems []string           `json:"draft_care_plan_items,omitempty"`
}

// NewClinicalState returns an empty but well-formed state: the issues map is
// allocated and every vitals field is present as an empty string.
func NewClinicalState() ClinicalState {
	return ClinicalState{
		Issues: make(map[string][]Issue),
	}
}

// Clone returns a deep, independent copy. Later mutation of the receiver must
// never be observable through the copy.
func (s ClinicalState) Clone() ClinicalState {
	out := s
	out.Issues = make(map[string][]Issue, len(s.Issues))
	for part, issues := range s.Issues {
		out.Issues[part] = append([]Issue(nil), issues...)
	}
	if s.ActiveCarePlan != nil {
		plan := *s.ActiveCarePlan
		out.ActiveCarePlan = &plan
	}
	if s.DraftCarePlanItems != nil {
		out.DraftCarePlanItems = append([]string(nil), s.DraftCarePlanItems...)
	}
	return out
}

// Report maps lens name to generated text. The content is opaque to the core.
type Report map[string]string

func (r Report) Clone() Report {
	if r == nil {
		return nil
	}
	out := make(Report, len(r))
	for lens, text := range r {
		out[lens] = text
	}
	return out
}

// MarkState is the clinician's 3-way stance on a piece of report content.
// Rejected and normal are semantically different: rejected means actively
// struck, normal means no opinion yet.
type MarkState string

const (
	MarkNormal   MarkState = "normal"
	MarkAccepted MarkState = "accepted"
	MarkRejected MarkState = "rejected"
)

// Next cycles the normal -> accepted -> rejected -> normal ring.
func (m MarkState) Next() MarkState {
	switch m {
	case MarkAccepted:
		return MarkRejected
	case MarkRejected:
		return MarkNormal
	default:
		return MarkAccepted
	}
}

// Annotation is a clinician note attached to a content-addressed report block.
type Annotation struct {
	Note string    `json:"note"`
	Mark MarkState `json:"mark"`
}

// AnnotationSnapshot is the persisted form of an annotation index:
// lens name -> content key -> annotation.
type AnnotationSnapshot map[string]map[string]Annotation

func (a AnnotationSnapshot) Clone() AnnotationSnapshot {
	if a == nil {
		return nil
	}
	out := make(AnnotationSnapshot, len(a))
	for lens, keys := range a {
		view := make(map[string]Annotation, len(keys))
		for key, ann := range keys {
			view[key] = ann
		}
		out[lens] = view
	}
	return out
}

// Bookmark marks a report location the clinician wants to return to.
type Bookmark struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Lens       string    `json:"lens,omitempty"`
	ContentKey string    `json:"content_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntryKind tags a history entry variant. The tag set is a closed, versioned
// contract; readers must tolerate kinds they do not recognize.
type EntryKind string

const (
	KindVisitSnapshot   EntryKind = "visit_snapshot"
	KindArchivedChart   EntryKind = "archived_chart"
	KindAnalysisRun     EntryKind = "analysis_run"
	KindFinalizedReport EntryKind = "finalized_report"
	KindNoteCreated     EntryKind = "note_created"
	KindNoteDeleted     EntryKind = "note_deleted"
	KindBookmarkAdded   EntryKind = "bookmark_added"
)

func (k EntryKind) Known() bool {
	switch k {
	case KindVisitSnapshot, KindArchivedChart, KindAnalysisRun, KindFinalizedReport,
		KindNoteCreated, KindNoteDeleted, KindBookmarkAdded:
		return true
	}
	return false
}

// SnapshotBearing reports whether the kind carries a full clinical state copy.
func (k EntryKind) SnapshotBearing() bool {
	return k == KindVisitSnapshot || k == KindArchivedChart
}

// ReportBearing reports whether the kind carries an AI report.
func (k EntryKind) ReportBearing() bool {
	return k == KindAnalysisRun || k == KindFinalizedReport
}

// HistoryEntry is one immutable record in a patient's append-only history.
// Exactly one variant's payload fields are set, selected by Kind. Entries of
// unrecognized kinds keep their raw JSON so exports round-trip losslessly.
type HistoryEntry struct {
	Kind    EntryKind `json:"kind"`
	Date    time.Time `json:"date"`
	Summary string    `json:"summary"`

	Snapshot    *ClinicalState     `json:"snapshot,omitempty"`
	Report      Report             `json:"report,omitempty"`
	Annotations AnnotationSnapshot `json:"annotations,omitempty"`
	BodyPartID  string             `json:"body_part_id,omitempty"`
	NoteID      string             `json:"note_id,omitempty"`
	Bookmark    *Bookmark          `json:"bookmark,omitempty"`

	raw json.RawMessage
}

func (e HistoryEntry) Clone() HistoryEntry {
	out := e
	if e.Snapshot != nil {
		snap := e.Snapshot.Clone()
		out.Snapshot = &snap
	}
	out.Report = e.Report.Clone()
	out.Annotations = e.Annotations.Clone()
	if e.Bookmark != nil {
		bm := *e.Bookmark
		out.Bookmark = &bm
	}
	if e.raw != nil {
		out.raw = append(json.RawMessage(nil), e.raw...)
	}
	return out
}

type historyEntryAlias HistoryEntry

func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var a historyEntryAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = HistoryEntry(a)
	if !e.Kind.Known() {
		e.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	if !e.Kind.Known() && len(e.raw) > 0 {
		return e.raw, nil
	}
	return json.Marshal(historyEntryAlias(e))
}

// Demographics are the identity fields of a patient chart. Birth date is a
// display string for the same reason vitals are.
type Demographics struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date,omitempty"`
	Gender    string `json:"gender,omitempty"`
	MRN       string `json:"mrn,omitempty"`
}

// Patient is the aggregate root: demographics plus the live clinical state,
// the full history, and bookmarks. LastVisitDate is denormalized from the most
// recent visit snapshot.
type Patient struct {
	ID            string         `json:"id"`
	Demographics  Demographics   `json:"demographics"`
	State         ClinicalState  `json:"state"`
	History       []HistoryEntry `json:"history"`
	Bookmarks     []Bookmark     `json:"bookmarks,omitempty"`
	LastVisitDate *time.Time     `json:"last_visit_date,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (p Patient) Clone() Patient {
	out := p
	out.State = p.State.Clone()
	if p.History != nil {
		out.History = make([]HistoryEntry, len(p.History))
		for i, e := range p.History {
			out.History[i] = e.Clone()
		}
	}
	if p.Bookmarks != nil {
		out.Bookmarks = append([]Bookmark(nil), p.Bookmarks...)
	}
	if p.LastVisitDate != nil {
		d := *p.LastVisitDate
		out.LastVisitDate = &d
	}
	return out
}
