package export

import (
	"encoding/json"
	"fmt"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

// ExportPatient serializes a patient aggregate to JSON. History entries of
// unrecognized kinds pass through byte-for-byte, so exports written by a
// newer version survive a round trip here.
func ExportPatient(patient models.Patient) ([]byte, error) {
	return json.MarshalIndent(patient, "", "  ")
}

// ImportPatient deserializes a patient aggregate. The result always carries a
// well-formed clinical state (allocated issues map, all vitals fields).
func ImportPatient(data []byte) (models.Patient, error) {
	var patient models.Patient
	if err := json.Unmarshal(data, &patient); err != nil {
		return models.Patient{}, fmt.Errorf("importing patient: %w", err)
	}
	if patient.State.Issues == nil {
		patient.State.Issues = make(map[string][]models.Issue)
	}
	return patient, nil
}
