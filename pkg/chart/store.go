// Package chart implements the patient clinical state and history versioning
// engine: a mutable current-state store, an append-only history log, and the
// review session controller that swaps between them without losing live edits.
package chart

import (
	"errors"
	"sync"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

// ErrReviewing is returned by every mutating store operation while a review
// session is active. Reviewing is read-only; silently accepting writes there
// is the classic source of "my edits vanished" reports.
var ErrReviewing = errors.New("chart: state is read-only while reviewing history")

// Store holds the single current clinical state. All reads return deep copies
// and all writes store deep copies, so no caller ever holds a reference into
// the live record.
type Store struct {
	mu        sync.Mutex
	state     models.ClinicalState
	readOnly  bool
	observers []func(models.ClinicalState)
}

func NewStore() *Store {
	return &Store{state: models.NewClinicalState()}
}

// Subscribe registers an observer invoked after each completed mutation with a
// copy of the new state. Observers must not write back into the store from the
// callback; reactive recomputation is read-only by design.
func (s *Store) Subscribe(fn func(models.ClinicalState)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Store) Get() models.ClinicalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Replace(state models.ClinicalState) error {
	return s.mutate(func() {
		s.state = normalize(state.Clone())
	})
}

// UpdateIssue upserts by NoteID within the body-part bucket. Matching is by
// identity, never by array index: two edits in flight would otherwise clobber
// the wrong entry.
func (s *Store) UpdateIssue(bodyPartID string, issue models.Issue) (created bool, err error) {
	err = s.mutate(func() {
		issue.BodyPartID = bodyPartID
		bucket := s.state.Issues[bodyPartID]
		for i := range bucket {
			if bucket[i].NoteID == issue.NoteID {
				bucket[i] = issue
				return
			}
		}
		s.state.Issues[bodyPartID] = append(bucket, issue)
		created = true
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// RemoveIssue deletes the issue with the given NoteID. Unknown ids are a
// no-op, and a bucket emptied by the delete is removed from the map entirely
// so "does this body part have any issue" checks stay truthful.
func (s *Store) RemoveIssue(bodyPartID, noteID string) (removed bool, err error) {
	err = s.mutate(func() {
		bucket, ok := s.state.Issues[bodyPartID]
		if !ok {
			return
		}
		for i := range bucket {
			if bucket[i].NoteID == noteID {
				bucket = append(bucket[:i], bucket[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return
		}
		if len(bucket) == 0 {
			delete(s.state.Issues, bodyPartID)
		} else {
			s.state.Issues[bodyPartID] = bucket
		}
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Vital field names accepted by UpdateVital.
const (
	VitalBloodPressure    = "blood_pressure"
	VitalHeartRate        = "heart_rate"
	VitalTemperature      = "temperature"
	VitalOxygenSaturation = "oxygen_saturation"
	VitalWeight           = "weight"
	VitalHeight           = "height"
)

// UpdateVital stores the display string for a named vital. Unknown field names
// are a no-op: vitals are a fixed set and the core never throws for bad keys.
func (s *Store) UpdateVital(field, value string) error {
	return s.mutate(func() {
		switch field {
		case VitalBloodPressure:
			s.state.Vitals.BloodPressure = value
		case VitalHeartRate:
			s.state.Vitals.HeartRate = value
		case VitalTemperature:
			s.state.Vitals.Temperature = value
		case VitalOxygenSaturation:
			s.state.Vitals.OxygenSaturation = value
		case VitalWeight:
			s.state.Vitals.Weight = value
		case VitalHeight:
			s.state.Vitals.Height = value
		}
	})
}

func (s *Store) SetGoals(text string) error {
	return s.mutate(func() { s.state.Goals = text })
}

func (s *Store) SetActiveCarePlan(text *string) error {
	return s.mutate(func() {
		if text == nil {
			s.state.ActiveCarePlan = nil
			return
		}
		plan := *text
		s.state.ActiveCarePlan = &plan
	})
}

func (s *Store) AddDraftItem(item string) error {
	return s.mutate(func() {
		s.state.DraftCarePlanItems = append(s.state.DraftCarePlanItems, item)
	})
}

// RemoveDraftItem removes the item at index i; out-of-range indexes are a no-op.
func (s *Store) RemoveDraftItem(i int) error {
	return s.mutate(func() {
		if i < 0 || i >= len(s.state.DraftCarePlanItems) {
			return
		}
		s.state.DraftCarePlanItems = append(
			s.state.DraftCarePlanItems[:i],
			s.state.DraftCarePlanItems[i+1:]...,
		)
	})
}

func (s *Store) ClearDraftItems() error {
	return s.mutate(func() { s.state.DraftCarePlanItems = nil })
}

// Clear resets to an empty but well-formed state. Every vitals field stays
// present as an empty string; downstream consumers assume the keys exist.
func (s *Store) Clear() error {
	return s.mutate(func() { s.state = models.NewClinicalState() })
}

// mutate runs fn under the lock, rejecting the write when the store is in
// read-only review mode, then notifies observers with a copy of the result.
func (s *Store) mutate(fn func()) error {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return ErrReviewing
	}
	fn()
	snapshot := s.state.Clone()
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
	return nil
}

// swap replaces the contents bypassing the read-only guard. Only the review
// controller and the patient workspace use it; observers are not notified
// because a swap is a context change, not an edit.
func (s *Store) swap(state models.ClinicalState) {
	s.mu.Lock()
	s.state = normalize(state.Clone())
	s.mu.Unlock()
}

func (s *Store) setReadOnly(v bool) {
	s.mu.Lock()
	s.readOnly = v
	s.mu.Unlock()
}

func normalize(state models.ClinicalState) models.ClinicalState {
	if state.Issues == nil {
		state.Issues = make(map[string][]models.Issue)
	}
	return state
}
