// Package export serializes patient aggregates for interchange: FHIR
// resources for clinical exchange and plain JSON for backup/restore. Both are
// pure functions over the aggregate; neither mutates core state.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meridian-health/chartcore/pkg/common/models"
)

// FHIRHumanName represents a FHIR HumanName data type.
type FHIRHumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// FHIRPatientResource is a simplified FHIR Patient resource covering core
// demographics.
type FHIRPatientResource struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id,omitempty"`
	Name         []FHIRHumanName `json:"name,omitempty"`
	BirthDate    string          `json:"birthDate,omitempty"`
	Gender       string          `json:"gender,omitempty"`
}

// FHIRCodeableConcept carries a display-only concept; the core stores no
// coded terminology.
type FHIRCodeableConcept struct {
	Text string `json:"text"`
}

// FHIRObservationResource is a simplified FHIR Observation. Vitals are
// display strings in the core, so values export as valueString rather than
// valueQuantity; consumers needing numerics parse downstream.
type FHIRObservationResource struct {
	ResourceType string              `json:"resourceType"`
	Status       string              `json:"status"`
	Code         FHIRCodeableConcept `json:"code"`
	Subject      map[string]string   `json:"subject"`
	ValueString  string              `json:"valueString,omitempty"`
}

// FHIRBundle wraps exported resources.
type FHIRBundle struct {
	ResourceType string            `json:"resourceType"`
	Type         string            `json:"type"`
	Entry        []json.RawMessage `json:"entry"`
}

// MapPatientToFHIR converts a patient aggregate's demographics to a FHIR
// Patient resource.
func MapPatientToFHIR(patient models.Patient) (json.RawMessage, error) {
	if patient.Demographics.Name == "" {
		return nil, fmt.Errorf("patient name is required for FHIR mapping")
	}

	name := FHIRHumanName{Use: "official"}
	fields := strings.Fields(patient.Demographics.Name)
	if len(fields) > 1 {
		name.Family = fields[len(fields)-1]
		name.Given = fields[:len(fields)-1]
	} else {
		name.Given = fields
	}

	gender := strings.ToLower(patient.Demographics.Gender)
	switch gender {
	case "male", "female", "other":
	default:
		gender = "unknown"
	}

	resource := FHIRPatientResource{
		ResourceType: "Patient",
		ID:           patient.ID,
		Name:         []FHIRHumanName{name},
		BirthDate:    patient.Demographics.BirthDate,
		Gender:       gender,
	}
	return json.Marshal(resource)
}

// MapVitalsToFHIR converts the non-empty vitals of a patient's live state to
// Observation resources. Empty fields export nothing: absence of a typed-in
// value is not a zero reading.
func MapVitalsToFHIR(patient models.Patient) ([]json.RawMessage, error) {
	subject := map[string]string{"reference": "Patient/" + patient.ID}
	vitals := []struct {
		label string
		value string
	}{
		{"Blood pressure", patient.State.Vitals.BloodPressure},
		{"Heart rate", patient.State.Vitals.HeartRate},
		{"Body temperature", patient.State.Vitals.Temperature},
		{"Oxygen saturation", patient.State.Vitals.OxygenSaturation},
		{"Body weight", patient.State.Vitals.Weight},
		{"Body height", patient.State.Vitals.Height},
	}

	var out []json.RawMessage
	for _, v := range vitals {
		if v.value == "" {
			continue
		}
		resource := FHIRObservationResource{
			ResourceType: "Observation",
			Status:       "final",
			Code:         FHIRCodeableConcept{Text: v.label},
			Subject:      subject,
			ValueString:  v.value,
		}
		data, err := json.Marshal(resource)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// MapPatientToFHIRBundle assembles the Patient resource and vitals
// Observations into a collection bundle.
func MapPatientToFHIRBundle(patient models.Patient) (json.RawMessage, error) {
	patientResource, err := MapPatientToFHIR(patient)
	if err != nil {
		return nil, err
	}
	observations, err := MapVitalsToFHIR(patient)
	if err != nil {
		return nil, err
	}

	bundle := FHIRBundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Entry:        append([]json.RawMessage{patientResource}, observations...),
	}
	return json.Marshal(bundle)
}
