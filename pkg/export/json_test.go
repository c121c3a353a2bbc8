package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/meridian-health/chartcore/pkg/common/models"
	"github.com/stretchr/testify/assert"
)

func TestExportImportRoundTrip(t *testing.T) {
	plan := "weekly physio"
	patient := models.Patient{
		ID:           "p1",
		Demographics: models.Demographics{Name: "Ada Byron", MRN: "MRN-001"},
		State: models.ClinicalState{
			Issues: map[string][]models.Issue{
				"head": {{NoteID: "n1", DisplayName: "Headache", PainLevel: 7, Description: "ache"}},
			},
			Goals:          "sleep more",
			Vitals:         models.Vitals{HeartRate: "88"},
			ActiveCarePlan: &plan,
		},
		History: []models.HistoryEntry{
			{Kind: models.KindNoteCreated, Date: time.Now().UTC(), Summary: "note", BodyPartID: "head", NoteID: "n1"},
		},
		CreatedAt: time.Now().UTC(),
	}

	data, err := ExportPatient(patient)
	assert.NoError(t, err)

	restored, err := ImportPatient(data)
	assert.NoError(t, err)
	assert.Equal(t, patient.ID, restored.ID)
	assert.Equal(t, patient.Demographics, restored.Demographics)
	assert.Equal(t, patient.State.Issues, restored.State.Issues)
	assert.Equal(t, *patient.State.ActiveCarePlan, *restored.State.ActiveCarePlan)
	assert.Len(t, restored.History, 1)
}

func TestImportNormalizesState(t *testing.T) {
	restored, err := ImportPatient([]byte(`{"id":"p1","demographics":{"name":"X"},"state":{"goals":"g"}}`))
	assert.NoError(t, err)
	assert.NotNil(t, restored.State.Issues, "imported state must have an allocated issues map")
}

func TestImportRejectsMalformedJSON(t *testing.T) {
	_, err := ImportPatient([]byte(`{"id":`))
	assert.Error(t, err)
}

func TestUnknownHistoryKindSurvivesRoundTrip(t *testing.T) {
	// An export written by a newer version may contain entry kinds this
	// version does not recognize; they must pass through byte-for-byte.
	exported := []byte(`{
		"id": "p1",
		"demographics": {"name": "Ada Byron"},
		"state": {"issues": {}},
		"history": [
			{"kind": "medication_change", "date": "2026-08-01T10:00:00Z", "summary": "dose adjusted", "dosage_mg": 50},
			{"kind": "visit_snapshot", "date": "2026-07-01T10:00:00Z", "summary": "visit", "snapshot": {"issues": {}}}
		],
		"created_at": "2026-06-01T10:00:00Z"
	}`)

	patient, err := ImportPatient(exported)
	assert.NoError(t, err)
	assert.Len(t, patient.History, 2)
	assert.False(t, patient.History[0].Kind.Known())

	out, err := ExportPatient(patient)
	assert.NoError(t, err)

	var doc struct {
		History []json.RawMessage `json:"history"`
	}
	assert.NoError(t, json.Unmarshal(out, &doc))

	var unknown map[string]interface{}
	assert.NoError(t, json.Unmarshal(doc.History[0], &unknown))
	assert.Equal(t, "medication_change", unknown["kind"])
	assert.Equal(t, float64(50), unknown["dosage_mg"], "fields this version does not model must survive")
}
