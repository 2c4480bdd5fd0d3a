// Package sandbox seeds the document store with a small, fixed sample data
// set for demos and development. Each collection is seeded only when it is
// empty, so re-running the seeder against a populated store is a no-op.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsboard/opsboard/internal/docstore"
	"github.com/opsboard/opsboard/internal/domain/ops"
)

var samplePatients = []map[string]any{
	{"name": "Rajesh Kumar", "age": 45, "diagnosis": "Pneumonia", "date": "2026-02-19", "status": "Admitted"},
	{"name": "Anita Sharma", "age": 32, "diagnosis": "Fracture - Left Arm", "date": "2026-02-20", "status": "Under Treatment"},
	{"name": "Mohammed Ali", "age": 67, "diagnosis": "Cardiac Arrest", "date": "2026-02-18", "status": "ICU"},
	{"name": "Priya Patel", "age": 28, "diagnosis": "Appendicitis", "date": "2026-02-21", "status": "Pre-Surgery"},
	{"name": "Suresh Reddy", "age": 55, "diagnosis": "Diabetes - Type 2", "date": "2026-02-15", "status": "Discharged"},
	{"name": "Fatima Begum", "age": 41, "diagnosis": "Dengue Fever", "date": "2026-02-20", "status": "Admitted"},
	{"name": "Vikram Singh", "age": 73, "diagnosis": "COPD Exacerbation", "date": "2026-02-17", "status": "ICU"},
	{"name": "Lakshmi Nair", "age": 36, "diagnosis": "Migraine", "date": "2026-02-21", "status": "Outpatient"},
}

var sampleRecords = []map[string]any{
	{"patientId": "P-1001", "patient": "Rajesh Kumar", "type": "Lab Report", "date": "2026-02-19", "doctor": "Dr. Mehta", "description": "Blood test results"},
	{"patientId": "P-1002", "patient": "Anita Sharma", "type": "X-Ray", "date": "2026-02-20", "doctor": "Dr. Gupta", "description": "Fracture confirmed"},
	{"patientId": "P-1003", "patient": "Mohammed Ali", "type": "ECG Report", "date": "2026-02-18", "doctor": "Dr. Khan", "description": "Cardiac monitoring"},
	{"patientId": "P-1004", "patient": "Priya Patel", "type": "Blood Work", "date": "2026-02-21", "doctor": "Dr. Shah", "description": "Pre-surgery tests"},
	{"patientId": "P-1005", "patient": "Suresh Reddy", "type": "Prescription", "date": "2026-02-15", "doctor": "Dr. Rao", "description": "Diabetes medication"},
	{"patientId": "P-1006", "patient": "Fatima Begum", "type": "Discharge Summary", "date": "2026-02-20", "doctor": "Dr. Ahmed", "description": "Treatment complete"},
}

var sampleStaff = []map[string]any{
	{"name": "Dr. Rajesh Mehta", "role": "Doctor", "department": "ER", "shift": "Morning", "phone": "+91-9876543210", "email": "mehta@hospital.com"},
	{"name": "Dr. Priya Gupta", "role": "Doctor", "department": "ICU", "shift": "Morning", "phone": "+91-9876543211", "email": "gupta@hospital.com"},
	{"name": "Dr. Ahmed Khan", "role": "Doctor", "department": "ICU", "shift": "Afternoon", "phone": "+91-9876543212", "email": "khan@hospital.com"},
	{"name": "Nurse Sunita Sharma", "role": "Nurse", "department": "ER", "shift": "Morning", "phone": "+91-9876543213", "email": "sunita@hospital.com"},
	{"name": "Nurse Mary Thomas", "role": "Nurse", "department": "ICU", "shift": "Night", "phone": "+91-9876543214", "email": "mary@hospital.com"},
	{"name": "Dr. Vikram Shah", "role": "Doctor", "department": "Surgery", "shift": "Morning", "phone": "+91-9876543215", "email": "shah@hospital.com"},
	{"name": "Nurse John D'Souza", "role": "Nurse", "department": "General", "shift": "Afternoon", "phone": "+91-9876543216", "email": "john@hospital.com"},
	{"name": "Technician Ravi Kumar", "role": "Technician", "department": "Lab", "shift": "Morning", "phone": "+91-9876543217", "email": "ravi@hospital.com"},
}

var sampleResources = []map[string]any{
	{"name": "Beds", "used": 78, "total": 100, "unit": "beds"},
	{"name": "ICU", "used": 18, "total": 20, "unit": "beds"},
	{"name": "Ventilators", "used": 12, "total": 25, "unit": "units"},
	{"name": "O₂ Cylinders", "used": 45, "total": 60, "unit": "cylinders"},
	{"name": "OR Rooms", "used": 6, "total": 8, "unit": "rooms"},
}

var sampleAlerts = []map[string]any{
	{"type": "critical", "message": "ICU bed capacity at 90%", "department": "ICU", "acknowledged": false},
	{"type": "warning", "message": "Oxygen supply running low", "department": "General", "acknowledged": false},
	{"type": "info", "message": "Scheduled maintenance: Ventilator check", "department": "Maintenance", "acknowledged": false},
	{"type": "warning", "message": "Staff shortage in Night shift", "department": "HR", "acknowledged": false},
}

// Seeder writes the sample data set through the document store.
type Seeder struct {
	store docstore.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewSeeder(store docstore.Store, log zerolog.Logger) *Seeder {
	return &Seeder{
		store: store,
		log:   log.With().Str("component", "sandbox").Logger(),
		now:   time.Now,
	}
}

// Seed populates every empty collection with its sample rows. Collections
// that already contain documents are left untouched.
func (s *Seeder) Seed(ctx context.Context) error {
	plans := []struct {
		collection string
		rows       []map[string]any
		stamp      func(row map[string]any, now time.Time)
	}{
		{ops.ColPatients, samplePatients, stampCreated},
		{ops.ColRecords, sampleRecords, stampCreated},
		{ops.ColStaff, sampleStaff, stampCreated},
		{ops.ColResources, sampleResources, stampUpdated},
		{ops.ColAlerts, sampleAlerts, stampTimestamp},
	}

	for _, plan := range plans {
		docs, err := s.store.Query(ctx, plan.collection, docstore.Query{})
		if err != nil {
			return fmt.Errorf("check %s: %w", plan.collection, err)
		}
		if len(docs) > 0 {
			s.log.Debug().Str("collection", plan.collection).Msg("already populated, skipping")
			continue
		}

		for _, row := range plan.rows {
			data := make(map[string]any, len(row)+2)
			for k, v := range row {
				data[k] = v
			}
			plan.stamp(data, s.now())
			if _, err := s.store.Add(ctx, plan.collection, data); err != nil {
				return fmt.Errorf("seed %s: %w", plan.collection, err)
			}
		}
		s.log.Info().Str("collection", plan.collection).Int("rows", len(plan.rows)).Msg("seeded")
	}
	return nil
}

func stampCreated(row map[string]any, now time.Time) {
	row["createdAt"] = now
	row["updatedAt"] = now
}

func stampUpdated(row map[string]any, now time.Time) {
	row["updatedAt"] = now
}

func stampTimestamp(row map[string]any, now time.Time) {
	row["timestamp"] = now
}
