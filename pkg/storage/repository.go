// Package storage persists patient aggregates in PostgreSQL and caches
// generated reports in Redis.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/meridian-health/chartcore/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("storage: patient not found")

// PatientRecord is the database shape of a patient aggregate. The clinical
// state, history, and bookmarks are object graphs, not relational data, so
// they live in JSON columns; the queryable fields are flattened.
type PatientRecord struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	BirthDate     string
	Gender        string
	MRN           string
	State         datatypes.JSON
	History       datatypes.JSON
	Bookmarks     datatypes.JSON
	LastVisitDate *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (PatientRecord) TableName() string {
	return "patients"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PatientRecord{})
}

func (r *Repository) Save(ctx context.Context, patient *models.Patient) error {
	rec, err := toRecord(patient)
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Patient, error) {
	var rec PatientRecord
	result := r.db.WithContext(ctx).First(&rec, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return fromRecord(&rec)
}

func (r *Repository) List(ctx context.Context) ([]models.Patient, error) {
	var recs []PatientRecord
	if err := r.db.WithContext(ctx).Order("updated_at desc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]models.Patient, 0, len(recs))
	for i := range recs {
		p, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func toRecord(patient *models.Patient) (*PatientRecord, error) {
	state, err := json.Marshal(patient.State)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(patient.History)
	if err != nil {
		return nil, err
	}
	bookmarks, err := json.Marshal(patient.Bookmarks)
	if err != nil {
		return nil, err
	}
	return &PatientRecord{
		ID:            patient.ID,
		Name:          patient.Demographics.Name,
		BirthDate:     patient.Demographics.BirthDate,
		Gender:        patient.Demographics.Gender,
		MRN:           patient.Demographics.MRN,
		State:         datatypes.JSON(state),
		History:       datatypes.JSON(history),
		Bookmarks:     datatypes.JSON(bookmarks),
		LastVisitDate: patient.LastVisitDate,
		CreatedAt:     patient.CreatedAt,
	}, nil
}

func fromRecord(rec *PatientRecord) (*models.Patient, error) {
	p := &models.Patient{
		ID: rec.ID,
		Demographics: models.Demographics{
			Name:      rec.Name,
			BirthDate: rec.BirthDate,
			Gender:    rec.Gender,
			MRN:       rec.MRN,
		},
		State:         models.NewClinicalState(),
		LastVisitDate: rec.LastVisitDate,
		CreatedAt:     rec.CreatedAt,
	}
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &p.State); err != nil {
			return nil, err
		}
	}
	if p.State.Issues == nil {
		p.State.Issues = make(map[string][]models.Issue)
	}
	if len(rec.History) > 0 {
		if err := json.Unmarshal(rec.History, &p.History); err != nil {
			return nil, err
		}
	}
	if len(rec.Bookmarks) > 0 {
		if err := json.Unmarshal(rec.Bookmarks, &p.Bookmarks); err != nil {
			return nil, err
		}
	}
	return p, nil
}
