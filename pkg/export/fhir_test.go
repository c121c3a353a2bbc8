package export

import (
	"encoding/json"
	"testing"

	"github.com/meridian-health/chartcore/pkg/common/models"
	"github.com/stretchr/testify/assert"
)

func TestMapPatientToFHIRSplitsName(t *testing.T) {
	patient := models.Patient{
		ID: "p1",
		Demographics: models.Demographics{
			Name:      "Ada Augusta Byron",
			BirthDate: "1990-12-10",
			Gender:    "Female",
		},
	}

	raw, err := MapPatientToFHIR(patient)
	assert.NoError(t, err)

	var resource FHIRPatientResource
	assert.NoError(t, json.Unmarshal(raw, &resource))
	assert.Equal(t, "Patient", resource.ResourceType)
	assert.Equal(t, "p1", resource.ID)
	assert.Equal(t, "Byron", resource.Name[0].Family)
	assert.Equal(t, []string{"Ada", "Augusta"}, resource.Name[0].Given)
	assert.Equal(t, "female", resource.Gender)
	assert.Equal(t, "1990-12-10", resource.BirthDate)
}

func TestMapPatientToFHIRSingleName(t *testing.T) {
	raw, err := MapPatientToFHIR(models.Patient{Demographics: models.Demographics{Name: "Cher"}})
	assert.NoError(t, err)

	var resource FHIRPatientResource
	assert.NoError(t, json.Unmarshal(raw, &resource))
	assert.Empty(t, resource.Name[0].Family)
	assert.Equal(t, []string{"Cher"}, resource.Name[0].Given)
	assert.Equal(t, "unknown", resource.Gender)
}

func TestMapPatientToFHIRRequiresName(t *testing.T) {
	_, err := MapPatientToFHIR(models.Patient{ID: "p1"})
	assert.Error(t, err)
}

func TestMapVitalsToFHIRSkipsEmptyFields(t *testing.T) {
	patient := models.Patient{ID: "p1", State: models.NewClinicalState()}
	patient.State.Vitals.HeartRate = "88"
	patient.State.Vitals.BloodPressure = "120/80"

	resources, err := MapVitalsToFHIR(patient)
	assert.NoError(t, err)
	assert.Len(t, resources, 2, "empty vitals must not export as zero readings")

	var obs FHIRObservationResource
	assert.NoError(t, json.Unmarshal(resources[0], &obs))
	assert.Equal(t, "Observation", obs.ResourceType)
	assert.Equal(t, "final", obs.Status)
	assert.Equal(t, "Patient/p1", obs.Subject["reference"])
	assert.Equal(t, "120/80", obs.ValueString)
}

func TestMapPatientToFHIRBundle(t *testing.T) {
	patient := models.Patient{
		ID:           "p1",
		Demographics: models.Demographics{Name: "Grace Hopper"},
		State:        models.NewClinicalState(),
	}
	patient.State.Vitals.Temperature = "37.1"

	raw, err := MapPatientToFHIRBundle(patient)
	assert.NoError(t, err)

	var bundle FHIRBundle
	assert.NoError(t, json.Unmarshal(raw, &bundle))
	assert.Equal(t, "Bundle", bundle.ResourceType)
	assert.Equal(t, "collection", bundle.Type)
	assert.Len(t, bundle.Entry, 2, "patient resource plus one observation")
}
