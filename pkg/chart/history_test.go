package chart

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

func TestHistoryNewestFirst(t *testing.T) {
	log := NewHistoryLog()
	for i := 0; i < 5; i++ {
		log.Append("p1", models.HistoryEntry{
			Kind:    models.KindNoteCreated,
			Summary: fmt.Sprintf("entry %d", i),
		})
	}

	entries := log.ListFor("p1")
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[0].Summary != "entry 4" {
		t.Fatalf("expected index 0 to be the most recent append, got %q", entries[0].Summary)
	}
	if entries[4].Summary != "entry 0" {
		t.Fatalf("expected oldest entry last, got %q", entries[4].Summary)
	}
}

func TestHistorySnapshotIsolation(t *testing.T) {
	log := NewHistoryLog()

	state := models.NewClinicalState()
	state.Issues["head"] = []models.Issue{{NoteID: "n1", PainLevel: 7, Description: "ache"}}
	log.Append("p1", models.HistoryEntry{
		Kind:     models.KindVisitSnapshot,
		Summary:  "initial visit",
		Snapshot: &state,
	})

	// Live edits after the snapshot must not bleed into the stored entry.
	state.Issues["head"][0].PainLevel = 2
	state.Issues["head"][0].Description = "improved"

	stored := log.ListFor("p1")[0]
	if stored.Snapshot.Issues["head"][0].PainLevel != 7 {
		t.Fatalf("snapshot aliased live state: pain level is %d", stored.Snapshot.Issues["head"][0].PainLevel)
	}
	if stored.Snapshot.Issues["head"][0].Description != "ache" {
		t.Fatal("snapshot aliased live state: description changed")
	}

	// Mutating a listed copy must not reach the log either.
	stored.Snapshot.Issues["head"][0].PainLevel = 0
	if log.ListFor("p1")[0].Snapshot.Issues["head"][0].PainLevel != 7 {
		t.Fatal("listed entry aliased the stored entry")
	}
}

func TestHistoryVisitUpdatesLastVisitAtomically(t *testing.T) {
	log := NewHistoryLog()

	if log.LastVisit("p1") != nil {
		t.Fatal("expected no last visit before any append")
	}

	date := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	state := models.NewClinicalState()
	log.Append("p1", models.HistoryEntry{
		Kind:     models.KindVisitSnapshot,
		Date:     date,
		Summary:  "visit",
		Snapshot: &state,
	})

	last := log.LastVisit("p1")
	if last == nil || !last.Equal(date) {
		t.Fatalf("expected last visit %v, got %v", date, last)
	}

	// Non-visit entries never touch the denormalized date.
	log.Append("p1", models.HistoryEntry{Kind: models.KindNoteCreated, Summary: "note"})
	if got := log.LastVisit("p1"); got == nil || !got.Equal(date) {
		t.Fatalf("expected last visit unchanged, got %v", got)
	}
}

func TestHistoryUpdateOrInsert(t *testing.T) {
	log := NewHistoryLog()
	isFinalized := func(e models.HistoryEntry) bool { return e.Kind == models.KindFinalizedReport }

	// First save creates the draft.
	log.Update("p1", models.HistoryEntry{
		Kind:    models.KindFinalizedReport,
		Summary: "first draft",
		Report:  models.Report{"Overview": "v1"},
	}, isFinalized)

	log.Append("p1", models.HistoryEntry{Kind: models.KindNoteCreated, Summary: "note"})

	// Later saves update it in place, keeping its position.
	log.Update("p1", models.HistoryEntry{
		Kind:    models.KindFinalizedReport,
		Summary: "second draft",
		Report:  models.Report{"Overview": "v2"},
	}, isFinalized)

	entries := log.ListFor("p1")
	var finalized []models.HistoryEntry
	for _, e := range entries {
		if e.Kind == models.KindFinalizedReport {
			finalized = append(finalized, e)
		}
	}
	if len(finalized) != 1 {
		t.Fatalf("expected exactly one finalized entry, got %d", len(finalized))
	}
	if finalized[0].Report["Overview"] != "v2" {
		t.Fatalf("expected updated report, got %q", finalized[0].Report["Overview"])
	}
	if entries[0].Kind != models.KindNoteCreated {
		t.Fatal("expected update to keep the entry's position, not re-prepend it")
	}
}

func TestHistoryRecentSummariesSkipsNoteEntries(t *testing.T) {
	log := NewHistoryLog()
	state := models.NewClinicalState()

	for i := 0; i < 4; i++ {
		log.Append("p1", models.HistoryEntry{
			Kind:     models.KindVisitSnapshot,
			Summary:  fmt.Sprintf("visit %d", i),
			Snapshot: &state,
		})
		log.Append("p1", models.HistoryEntry{Kind: models.KindNoteCreated, Summary: fmt.Sprintf("note %d", i)})
	}
	log.Append("p1", models.HistoryEntry{Kind: models.KindAnalysisRun, Summary: "analysis", Report: models.Report{}})

	window := log.RecentSummaries("p1", 3)
	if len(window) != 3 {
		t.Fatalf("expected window of 3, got %d", len(window))
	}
	for _, s := range window {
		if s == "" {
			t.Fatal("expected non-empty summaries")
		}
	}
	if want := "analysis"; !strings.Contains(window[0], want) {
		t.Fatalf("expected newest relevant entry first, got %q", window[0])
	}
	for _, s := range window {
		if strings.Contains(s, "note ") {
			t.Fatalf("note entries must not enter the prompt window: %q", s)
		}
	}
}

func TestHistoryLoadRebuildsDenorm(t *testing.T) {
	log := NewHistoryLog()
	state := models.NewClinicalState()
	older := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)

	log.Load("p1", []models.HistoryEntry{
		{Kind: models.KindNoteCreated, Date: newer.Add(time.Hour), Summary: "note"},
		{Kind: models.KindVisitSnapshot, Date: newer, Summary: "recent visit", Snapshot: &state},
		{Kind: models.KindVisitSnapshot, Date: older, Summary: "old visit", Snapshot: &state},
	})

	last := log.LastVisit("p1")
	if last == nil || !last.Equal(newer) {
		t.Fatalf("expected rebuilt last visit %v, got %v", newer, last)
	}
}

func TestHistoryEntryAt(t *testing.T) {
	log := NewHistoryLog()
	log.Append("p1", models.HistoryEntry{Kind: models.KindNoteCreated, Summary: "first"})
	log.Append("p1", models.HistoryEntry{Kind: models.KindNoteCreated, Summary: "second"})

	entry, ok := log.EntryAt("p1", 0)
	if !ok || entry.Summary != "second" {
		t.Fatalf("expected newest entry at index 0, got %+v ok=%v", entry, ok)
	}
	if _, ok := log.EntryAt("p1", 5); ok {
		t.Fatal("expected out-of-range index to report not found")
	}
	if _, ok := log.EntryAt("unknown", 0); ok {
		t.Fatal("expected unknown patient to report not found")
	}
}
