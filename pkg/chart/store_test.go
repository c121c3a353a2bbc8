package chart

import (
	"reflect"
	"testing"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

func TestStoreUpsertsByNoteIdentity(t *testing.T) {
	store := NewStore()

	created, err := store.UpdateIssue("head", models.Issue{NoteID: "n1", DisplayName: "Headache", PainLevel: 7, Description: "ache"})
	if err != nil {
		t.Fatalf("update issue: %v", err)
	}
	if !created {
		t.Fatal("expected first upsert to create")
	}

	created, err = store.UpdateIssue("head", models.Issue{NoteID: "n1", DisplayName: "Headache", PainLevel: 2, Description: "improved"})
	if err != nil {
		t.Fatalf("update issue: %v", err)
	}
	if created {
		t.Fatal("expected second upsert to replace, not create")
	}

	bucket := store.Get().Issues["head"]
	if len(bucket) != 1 {
		t.Fatalf("expected exactly one issue in bucket, got %d", len(bucket))
	}
	if bucket[0].Description != "improved" || bucket[0].PainLevel != 2 {
		t.Fatalf("expected latest issue content, got %+v", bucket[0])
	}
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	store := NewStore()
	if _, err := store.UpdateIssue("knee", models.Issue{NoteID: "n1", Description: "swelling"}); err != nil {
		t.Fatalf("update issue: %v", err)
	}

	before := store.Get()
	removed, err := store.RemoveIssue("knee", "does-not-exist")
	if err != nil {
		t.Fatalf("remove issue: %v", err)
	}
	if removed {
		t.Fatal("expected removal of unknown note to be a no-op")
	}
	if _, err := store.RemoveIssue("no-such-part", "n1"); err != nil {
		t.Fatalf("remove from unknown bucket: %v", err)
	}

	if !reflect.DeepEqual(before, store.Get()) {
		t.Fatal("expected state unchanged after no-op removals")
	}
}

func TestStoreRemoveDeletesEmptyBucket(t *testing.T) {
	store := NewStore()
	if _, err := store.UpdateIssue("knee", models.Issue{NoteID: "n1"}); err != nil {
		t.Fatalf("update issue: %v", err)
	}

	removed, err := store.RemoveIssue("knee", "n1")
	if err != nil {
		t.Fatalf("remove issue: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	if _, ok := store.Get().Issues["knee"]; ok {
		t.Fatal("expected empty bucket to be deleted, not left as empty slice")
	}
}

func TestStoreClearYieldsWellFormedState(t *testing.T) {
	store := NewStore()
	if _, err := store.UpdateIssue("head", models.Issue{NoteID: "n1"}); err != nil {
		t.Fatalf("update issue: %v", err)
	}
	if err := store.UpdateVital(VitalHeartRate, "72"); err != nil {
		t.Fatalf("update vital: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	state := store.Get()
	if state.Issues == nil || len(state.Issues) != 0 {
		t.Fatalf("expected allocated empty issues map, got %v", state.Issues)
	}
	if state.Vitals != (models.Vitals{}) {
		t.Fatalf("expected all vitals reset to empty strings, got %+v", state.Vitals)
	}
}

func TestStoreUnknownVitalFieldIsNoOp(t *testing.T) {
	store := NewStore()
	before := store.Get()
	if err := store.UpdateVital("shoe_size", "42"); err != nil {
		t.Fatalf("update vital: %v", err)
	}
	if !reflect.DeepEqual(before, store.Get()) {
		t.Fatal("expected unknown vital field to change nothing")
	}
}

func TestStoreDraftItems(t *testing.T) {
	store := NewStore()
	for _, item := range []string{"rest", "ice", "elevate"} {
		if err := store.AddDraftItem(item); err != nil {
			t.Fatalf("add draft item: %v", err)
		}
	}

	if err := store.RemoveDraftItem(1); err != nil {
		t.Fatalf("remove draft item: %v", err)
	}
	got := store.Get().DraftCarePlanItems
	want := []string{"rest", "elevate"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if err := store.RemoveDraftItem(99); err != nil {
		t.Fatalf("out-of-range remove: %v", err)
	}
	if len(store.Get().DraftCarePlanItems) != 2 {
		t.Fatal("expected out-of-range remove to be a no-op")
	}

	if err := store.ClearDraftItems(); err != nil {
		t.Fatalf("clear draft items: %v", err)
	}
	if len(store.Get().DraftCarePlanItems) != 0 {
		t.Fatal("expected draft items cleared")
	}
}

func TestStoreGetReturnsIndependentCopy(t *testing.T) {
	store := NewStore()
	if _, err := store.UpdateIssue("head", models.Issue{NoteID: "n1", Description: "ache"}); err != nil {
		t.Fatalf("update issue: %v", err)
	}

	snapshot := store.Get()
	snapshot.Issues["head"][0].Description = "tampered"
	snapshot.Goals = "tampered"

	if store.Get().Issues["head"][0].Description != "ache" {
		t.Fatal("mutating a returned copy leaked into the store")
	}
	if store.Get().Goals != "" {
		t.Fatal("mutating a returned copy leaked into the store")
	}
}

func TestStoreRejectsWritesWhileReadOnly(t *testing.T) {
	store := NewStore()
	store.setReadOnly(true)

	if _, err := store.UpdateIssue("head", models.Issue{NoteID: "n1"}); err != ErrReviewing {
		t.Fatalf("expected ErrReviewing, got %v", err)
	}
	if err := store.SetGoals("walk daily"); err != ErrReviewing {
		t.Fatalf("expected ErrReviewing, got %v", err)
	}
	if err := store.Clear(); err != ErrReviewing {
		t.Fatalf("expected ErrReviewing, got %v", err)
	}

	store.setReadOnly(false)
	if err := store.SetGoals("walk daily"); err != nil {
		t.Fatalf("expected write to succeed after leaving review, got %v", err)
	}
}

func TestStoreObserversSeeCompletedMutations(t *testing.T) {
	store := NewStore()
	var seen []string
	store.Subscribe(func(state models.ClinicalState) {
		seen = append(seen, state.Goals)
	})

	if err := store.SetGoals("first"); err != nil {
		t.Fatalf("set goals: %v", err)
	}
	if err := store.SetGoals("second"); err != nil {
		t.Fatalf("set goals: %v", err)
	}

	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Fatalf("expected observer to see each completed mutation, got %v", seen)
	}
}
