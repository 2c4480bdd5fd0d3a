package ops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsboard/opsboard/internal/docstore"
)

// ErrInvalidInput marks write failures caused by the caller's payload rather
// than by the store. Every validation failure in this package wraps it.
var ErrInvalidInput = errors.New("invalid input")

// ErrUsedExceedsTotal is returned by resource updates under the reject
// policy when used would exceed total. It is a payload fault and wraps
// ErrInvalidInput.
var ErrUsedExceedsTotal = fmt.Errorf("%w: resource used exceeds total", ErrInvalidInput)

// invalidInput builds a validation error carrying the ErrInvalidInput mark.
func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// ResourcePolicy decides what happens when a resource update carries
// used > total. The store itself never validates this.
type ResourcePolicy string

const (
	// PolicyPassthrough writes the values unchanged.
	PolicyPassthrough ResourcePolicy = "passthrough"
	// PolicyClamp caps used at total.
	PolicyClamp ResourcePolicy = "clamp"
	// PolicyReject fails the update with ErrUsedExceedsTotal.
	PolicyReject ResourcePolicy = "reject"
)

func ParseResourcePolicy(s string) (ResourcePolicy, error) {
	switch ResourcePolicy(s) {
	case PolicyPassthrough, PolicyClamp, PolicyReject:
		return ResourcePolicy(s), nil
	case "":
		return PolicyPassthrough, nil
	}
	return "", fmt.Errorf("unknown resource policy %q", s)
}

// Gateway is the single write path to the document store. It validates
// enums at the boundary, stamps timestamps at write time, and never retries;
// failures propagate to the caller and the refreshed state arrives through
// the live subscription, not the write's return value.
type Gateway struct {
	store  docstore.Store
	policy ResourcePolicy
	log    zerolog.Logger
	now    func() time.Time
}

func NewGateway(store docstore.Store, policy ResourcePolicy, log zerolog.Logger) *Gateway {
	return &Gateway{
		store:  store,
		policy: policy,
		log:    log.With().Str("component", "gateway").Logger(),
		now:    time.Now,
	}
}

// ---------------------------------------------------------------------------
// Inputs and partial updates
// ---------------------------------------------------------------------------

// PatientInput is a patient minus the store-assigned id and the
// gateway-stamped timestamps.
type PatientInput struct {
	Name      string        `json:"name"`
	Age       int           `json:"age"`
	Diagnosis string        `json:"diagnosis"`
	Date      string        `json:"date"`
	Status    PatientStatus `json:"status"`
}

func (in PatientInput) Validate() error {
	if in.Name == "" {
		return invalidInput("name is required")
	}
	if in.Age < 0 {
		return invalidInput("age must not be negative")
	}
	if !in.Status.Valid() {
		return invalidInput("unknown patient status %q", in.Status)
	}
	return nil
}

// PatientUpdate carries the fields to change; nil fields are left untouched.
type PatientUpdate struct {
	Name      *string        `json:"name"`
	Age       *int           `json:"age"`
	Diagnosis *string        `json:"diagnosis"`
	Date      *string        `json:"date"`
	Status    *PatientStatus `json:"status"`
}

type RecordInput struct {
	PatientID   string `json:"patientId"`
	Patient     string `json:"patient"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Doctor      string `json:"doctor"`
	Description string `json:"description"`
}

func (in RecordInput) Validate() error {
	if in.Patient == "" {
		return invalidInput("patient is required")
	}
	if in.Type == "" {
		return invalidInput("type is required")
	}
	return nil
}

type RecordUpdate struct {
	PatientID   *string `json:"patientId"`
	Patient     *string `json:"patient"`
	Type        *string `json:"type"`
	Date        *string `json:"date"`
	Doctor      *string `json:"doctor"`
	Description *string `json:"description"`
}

type StaffInput struct {
	Name       string     `json:"name"`
	Role       StaffRole  `json:"role"`
	Department string     `json:"department"`
	Shift      StaffShift `json:"shift"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email"`
}

func (in StaffInput) Validate() error {
	if in.Name == "" {
		return invalidInput("name is required")
	}
	if !in.Role.Valid() {
		return invalidInput("unknown staff role %q", in.Role)
	}
	if !in.Shift.Valid() {
		return invalidInput("unknown staff shift %q", in.Shift)
	}
	return nil
}

type StaffUpdate struct {
	Name       *string     `json:"name"`
	Role       *StaffRole  `json:"role"`
	Department *string     `json:"department"`
	Shift      *StaffShift `json:"shift"`
	Phone      *string     `json:"phone"`
	Email      *string     `json:"email"`
}

// ResourceUpdate is the only mutation resources support; creation happens
// through seeding only.
type ResourceUpdate struct {
	Used  *int    `json:"used"`
	Total *int    `json:"total"`
	Unit  *string `json:"unit"`
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

func (g *Gateway) AddPatient(ctx context.Context, in PatientInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	now := g.now()
	_, err := g.store.Add(ctx, ColPatients, map[string]any{
		"name":      in.Name,
		"age":       in.Age,
		"diagnosis": in.Diagnosis,
		"date":      in.Date,
		"status":    string(in.Status),
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return fmt.Errorf("add patient: %w", err)
	}
	return nil
}

func (g *Gateway) UpdatePatient(ctx context.Context, id string, upd PatientUpdate) error {
	fields := map[string]any{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Age != nil {
		if *upd.Age < 0 {
			return invalidInput("age must not be negative")
		}
		fields["age"] = *upd.Age
	}
	if upd.Diagnosis != nil {
		fields["diagnosis"] = *upd.Diagnosis
	}
	if upd.Date != nil {
		fields["date"] = *upd.Date
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return invalidInput("unknown patient status %q", *upd.Status)
		}
		fields["status"] = string(*upd.Status)
	}
	fields["updatedAt"] = g.now()

	if err := g.store.Update(ctx, ColPatients, id, fields); err != nil {
		return fmt.Errorf("update patient %s: %w", id, err)
	}
	return nil
}

// DeletePatient removes the patient only. Medical records referencing it are
// left in place and become orphaned.
func (g *Gateway) DeletePatient(ctx context.Context, id string) error {
	if err := g.store.Delete(ctx, ColPatients, id); err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) BulkAddPatients(ctx context.Context, inputs []PatientInput) error {
	return g.bulk(ctx, "patients", len(inputs), func(ctx context.Context, i int) error {
		return g.AddPatient(ctx, inputs[i])
	})
}

// ---------------------------------------------------------------------------
// Medical records
// ---------------------------------------------------------------------------

func (g *Gateway) AddRecord(ctx context.Context, in RecordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	now := g.now()
	_, err := g.store.Add(ctx, ColRecords, map[string]any{
		"patientId":   in.PatientID,
		"patient":     in.Patient,
		"type":        in.Type,
		"date":        in.Date,
		"doctor":      in.Doctor,
		"description": in.Description,
		"createdAt":   now,
		"updatedAt":   now,
	})
	if err != nil {
		return fmt.Errorf("add record: %w", err)
	}
	return nil
}

func (g *Gateway) UpdateRecord(ctx context.Context, id string, upd RecordUpdate) error {
	fields := map[string]any{}
	if upd.PatientID != nil {
		fields["patientId"] = *upd.PatientID
	}
	if upd.Patient != nil {
		fields["patient"] = *upd.Patient
	}
	if upd.Type != nil {
		fields["type"] = *upd.Type
	}
	if upd.Date != nil {
		fields["date"] = *upd.Date
	}
	if upd.Doctor != nil {
		fields["doctor"] = *upd.Doctor
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	fields["updatedAt"] = g.now()

	if err := g.store.Update(ctx, ColRecords, id, fields); err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) DeleteRecord(ctx context.Context, id string) error {
	if err := g.store.Delete(ctx, ColRecords, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) BulkAddRecords(ctx context.Context, inputs []RecordInput) error {
	return g.bulk(ctx, "records", len(inputs), func(ctx context.Context, i int) error {
		return g.AddRecord(ctx, inputs[i])
	})
}

// ---------------------------------------------------------------------------
// Staff
// ---------------------------------------------------------------------------

func (g *Gateway) AddStaff(ctx context.Context, in StaffInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	now := g.now()
	_, err := g.store.Add(ctx, ColStaff, map[string]any{
		"name":       in.Name,
		"role":       string(in.Role),
		"department": in.Department,
		"shift":      string(in.Shift),
		"phone":      in.Phone,
		"email":      in.Email,
		"createdAt":  now,
		"updatedAt":  now,
	})
	if err != nil {
		return fmt.Errorf("add staff: %w", err)
	}
	return nil
}

func (g *Gateway) UpdateStaff(ctx context.Context, id string, upd StaffUpdate) error {
	fields := map[string]any{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return invalidInput("unknown staff role %q", *upd.Role)
		}
		fields["role"] = string(*upd.Role)
	}
	if upd.Department != nil {
		fields["department"] = *upd.Department
	}
	if upd.Shift != nil {
		if !upd.Shift.Valid() {
			return invalidInput("unknown staff shift %q", *upd.Shift)
		}
		fields["shift"] = string(*upd.Shift)
	}
	if upd.Phone != nil {
		fields["phone"] = *upd.Phone
	}
	if upd.Email != nil {
		fields["email"] = *upd.Email
	}
	fields["updatedAt"] = g.now()

	if err := g.store.Update(ctx, ColStaff, id, fields); err != nil {
		return fmt.Errorf("update staff %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) DeleteStaff(ctx context.Context, id string) error {
	if err := g.store.Delete(ctx, ColStaff, id); err != nil {
		return fmt.Errorf("delete staff %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) BulkAddStaff(ctx context.Context, inputs []StaffInput) error {
	return g.bulk(ctx, "staff", len(inputs), func(ctx context.Context, i int) error {
		return g.AddStaff(ctx, inputs[i])
	})
}

// ---------------------------------------------------------------------------
// Resources and alerts
// ---------------------------------------------------------------------------

// UpdateResource applies the configured used>total policy. When only one of
// the two fields is present the policy cannot compare against the stored
// counterpart and the value passes through unchanged.
func (g *Gateway) UpdateResource(ctx context.Context, id string, upd ResourceUpdate) error {
	fields := map[string]any{}
	if upd.Used != nil {
		if *upd.Used < 0 {
			return invalidInput("used must not be negative")
		}
		fields["used"] = *upd.Used
	}
	if upd.Total != nil {
		if *upd.Total < 0 {
			return invalidInput("total must not be negative")
		}
		fields["total"] = *upd.Total
	}
	if upd.Unit != nil {
		fields["unit"] = *upd.Unit
	}

	if upd.Used != nil && upd.Total != nil && *upd.Used > *upd.Total {
		switch g.policy {
		case PolicyClamp:
			fields["used"] = *upd.Total
		case PolicyReject:
			return fmt.Errorf("update resource %s: %w", id, ErrUsedExceedsTotal)
		}
	}
	fields["updatedAt"] = g.now()

	if err := g.store.Update(ctx, ColResources, id, fields); err != nil {
		return fmt.Errorf("update resource %s: %w", id, err)
	}
	return nil
}

// AcknowledgeAlert sets acknowledged to true unconditionally. Acknowledging
// an already-acknowledged alert is a no-op that succeeds.
func (g *Gateway) AcknowledgeAlert(ctx context.Context, id string) error {
	if err := g.store.Update(ctx, ColAlerts, id, map[string]any{"acknowledged": true}); err != nil {
		return fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	return nil
}

// AddAlert raises a new operational alert.
func (g *Gateway) AddAlert(ctx context.Context, typ AlertType, message, department string) error {
	if !typ.Valid() {
		return invalidInput("unknown alert type %q", typ)
	}
	if message == "" {
		return invalidInput("message is required")
	}
	_, err := g.store.Add(ctx, ColAlerts, map[string]any{
		"type":         string(typ),
		"message":      message,
		"department":   department,
		"timestamp":    g.now(),
		"acknowledged": false,
	})
	if err != nil {
		return fmt.Errorf("add alert: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Bulk machinery
// ---------------------------------------------------------------------------

// BulkError reports which sub-operations of a bulk create failed. The
// remaining writes may have committed; the store offers no multi-document
// transaction.
type BulkError struct {
	Total    int
	Failures map[int]error
}

func (e *BulkError) Error() string {
	idxs := make([]int, 0, len(e.Failures))
	for i := range e.Failures {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	parts := make([]string, 0, len(idxs))
	for _, i := range idxs {
		parts = append(parts, fmt.Sprintf("row %d: %v", i, e.Failures[i]))
	}
	return fmt.Sprintf("%d of %d writes failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// bulk issues n independent writes concurrently and waits for all of them.
// An empty batch succeeds with zero writes. Best-effort: rows that committed
// before another row failed stay committed.
func (g *Gateway) bulk(ctx context.Context, kind string, n int, op func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = op(ctx, i)
		}(i)
	}
	wg.Wait()

	failures := map[int]error{}
	for i, err := range errs {
		if err != nil {
			failures[i] = err
			g.log.Error().Err(err).Str("kind", kind).Int("row", i).Msg("bulk write failed")
		}
	}
	if len(failures) > 0 {
		return &BulkError{Total: n, Failures: failures}
	}
	return nil
}
