// Package ops holds the hospital-operations domain: the five live
// collections' entities, the typed mutation gateway that writes them, and the
// pure KPI and insight derivations computed from their current state.
package ops

import (
	"fmt"
	"time"

	"github.com/opsboard/opsboard/internal/docstore"
)

// Collection names in the document store.
const (
	ColPatients  = "patients"
	ColRecords   = "records"
	ColStaff     = "staff"
	ColResources = "resources"
	ColAlerts    = "alerts"
)

// Collections lists every collection the dashboard synchronizes.
var Collections = []string{ColPatients, ColRecords, ColStaff, ColResources, ColAlerts}

// PatientStatus is the patient's place in the care flow.
type PatientStatus string

const (
	StatusAdmitted       PatientStatus = "Admitted"
	StatusUnderTreatment PatientStatus = "Under Treatment"
	StatusICU            PatientStatus = "ICU"
	StatusPreSurgery     PatientStatus = "Pre-Surgery"
	StatusDischarged     PatientStatus = "Discharged"
	StatusOutpatient     PatientStatus = "Outpatient"
)

func (s PatientStatus) Valid() bool {
	switch s {
	case StatusAdmitted, StatusUnderTreatment, StatusICU, StatusPreSurgery, StatusDischarged, StatusOutpatient:
		return true
	}
	return false
}

// Active reports whether the patient counts toward the current load.
// Discharged and outpatient patients do not.
func (s PatientStatus) Active() bool {
	return s != StatusDischarged && s != StatusOutpatient
}

type StaffRole string

const (
	RoleDoctor     StaffRole = "Doctor"
	RoleNurse      StaffRole = "Nurse"
	RoleTechnician StaffRole = "Technician"
	RoleAdmin      StaffRole = "Admin"
)

func (r StaffRole) Valid() bool {
	switch r {
	case RoleDoctor, RoleNurse, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}

type StaffShift string

const (
	ShiftMorning   StaffShift = "Morning"
	ShiftAfternoon StaffShift = "Afternoon"
	ShiftNight     StaffShift = "Night"
)

func (s StaffShift) Valid() bool {
	switch s {
	case ShiftMorning, ShiftAfternoon, ShiftNight:
		return true
	}
	return false
}

type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
	AlertInfo     AlertType = "info"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertWarning, AlertCritical, AlertInfo:
		return true
	}
	return false
}

type Patient struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Age       int           `json:"age"`
	Diagnosis string        `json:"diagnosis"`
	Date      string        `json:"date"` // admission date, YYYY-MM-DD
	Status    PatientStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// MedicalRecord references a patient by id and by a denormalized name copy.
// The copy is not kept in sync when the patient is renamed; consumers must
// treat it as display data only.
type MedicalRecord struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patientId"`
	Patient     string    `json:"patient"`
	Type        string    `json:"type"`
	Date        string    `json:"date"`
	Doctor      string    `json:"doctor"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Staff struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Role       StaffRole  `json:"role"`
	Department string     `json:"department"`
	Shift      StaffShift `json:"shift"`
	Phone      string     `json:"phone,omitempty"`
	Email      string     `json:"email,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type Resource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Used      int       `json:"used"`
	Total     int       `json:"total"`
	Unit      string    `json:"unit,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Utilization returns used as a percentage of total, 0 when total is 0.
func (r Resource) Utilization() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Used) / float64(r.Total) * 100
}

type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Message      string    `json:"message"`
	Department   string    `json:"department,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// DashboardKPI is derived from current state and never persisted.
type DashboardKPI struct {
	TotalPatients     int `json:"totalPatients"`
	BedOccupancy      int `json:"bedOccupancy"`
	TotalBeds         int `json:"totalBeds"`
	ICUUsage          int `json:"icuUsage"`
	ICUBeds           int `json:"icuBeds"`
	OxygenConsumption int `json:"oxygenConsumption"`
	OxygenCylinders   int `json:"oxygenCylinders"`
	AvailableDoctors  int `json:"availableDoctors"`
}

// ---------------------------------------------------------------------------
// Document conversions
// ---------------------------------------------------------------------------

func PatientFromDoc(d docstore.Document) Patient {
	return Patient{
		ID:        d.ID,
		Name:      docstore.String(d.Data, "name"),
		Age:       docstore.Int(d.Data, "age"),
		Diagnosis: docstore.String(d.Data, "diagnosis"),
		Date:      docstore.String(d.Data, "date"),
		Status:    PatientStatus(docstore.String(d.Data, "status")),
		CreatedAt: docstore.Time(d.Data, "createdAt"),
		UpdatedAt: docstore.Time(d.Data, "updatedAt"),
	}
}

func RecordFromDoc(d docstore.Document) MedicalRecord {
	return MedicalRecord{
		ID:          d.ID,
		PatientID:   docstore.String(d.Data, "patientId"),
		Patient:     docstore.String(d.Data, "patient"),
		Type:        docstore.String(d.Data, "type"),
		Date:        docstore.String(d.Data, "date"),
		Doctor:      docstore.String(d.Data, "doctor"),
		Description: docstore.String(d.Data, "description"),
		CreatedAt:   docstore.Time(d.Data, "createdAt"),
		UpdatedAt:   docstore.Time(d.Data, "updatedAt"),
	}
}

func StaffFromDoc(d docstore.Document) Staff {
	return Staff{
		ID:         d.ID,
		Name:       docstore.String(d.Data, "name"),
		Role:       StaffRole(docstore.String(d.Data, "role")),
		Department: docstore.String(d.Data, "department"),
		Shift:      StaffShift(docstore.String(d.Data, "shift")),
		Phone:      docstore.String(d.Data, "phone"),
		Email:      docstore.String(d.Data, "email"),
		CreatedAt:  docstore.Time(d.Data, "createdAt"),
		UpdatedAt:  docstore.Time(d.Data, "updatedAt"),
	}
}

func ResourceFromDoc(d docstore.Document) Resource {
	return Resource{
		ID:        d.ID,
		Name:      docstore.String(d.Data, "name"),
		Used:      docstore.Int(d.Data, "used"),
		Total:     docstore.Int(d.Data, "total"),
		Unit:      docstore.String(d.Data, "unit"),
		UpdatedAt: docstore.Time(d.Data, "updatedAt"),
	}
}

func AlertFromDoc(d docstore.Document) Alert {
	return Alert{
		ID:           d.ID,
		Type:         AlertType(docstore.String(d.Data, "type")),
		Message:      docstore.String(d.Data, "message"),
		Department:   docstore.String(d.Data, "department"),
		Timestamp:    docstore.Time(d.Data, "timestamp"),
		Acknowledged: docstore.Bool(d.Data, "acknowledged"),
	}
}

// CollectionQuery returns the store ordering for a collection: patients,
// records and staff by creation time descending, alerts by event time
// descending, resources unordered.
func CollectionQuery(collection string) (docstore.Query, error) {
	switch collection {
	case ColPatients, ColRecords, ColStaff:
		return docstore.Query{OrderBy: "createdAt", Desc: true}, nil
	case ColAlerts:
		return docstore.Query{OrderBy: "timestamp", Desc: true}, nil
	case ColResources:
		return docstore.Query{}, nil
	}
	return docstore.Query{}, fmt.Errorf("unknown collection %q", collection)
}
