package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsboard/opsboard/internal/docstore"
	"github.com/opsboard/opsboard/internal/domain/ops"
)

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func notify() (chan struct{}, func(string)) {
	ch := make(chan struct{}, 64)
	return ch, func(string) { ch <- struct{}{} }
}

func TestSyncerInitialLoad(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	store.Add(ctx, ops.ColPatients, map[string]any{"name": "Aarav", "age": 34, "status": "Admitted", "createdAt": time.Now()})
	store.Add(ctx, ops.ColStaff, map[string]any{"name": "Dr. Rao", "role": "Doctor", "department": "ER", "shift": "Morning", "createdAt": time.Now()})
	store.Add(ctx, ops.ColResources, map[string]any{"name": "Beds", "used": 78, "total": 100})

	s := NewSyncer(store, zerolog.Nop())
	loaded, fn := notify()
	for _, col := range ops.Collections {
		s.OnCollection(col, fn)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	for range ops.Collections {
		waitFor(t, loaded, "initial snapshots")
	}

	st := s.Status()
	for col, loading := range st.Loading {
		if loading {
			t.Errorf("collection %s still loading after initial snapshot", col)
		}
	}
	if len(s.Patients()) != 1 || len(s.Staff()) != 1 || len(s.Resources()) != 1 {
		t.Errorf("unexpected state sizes: %d patients, %d staff, %d resources",
			len(s.Patients()), len(s.Staff()), len(s.Resources()))
	}

	kpi := s.KPI()
	if kpi == nil {
		t.Fatal("expected KPI after patients and resources loaded")
	}
	if kpi.TotalPatients != 1 || kpi.BedOccupancy != 78 || kpi.AvailableDoctors != 1 {
		t.Errorf("unexpected KPI: %+v", kpi)
	}
}

func TestSyncerKPIRecomputedOnStaffOnlyChange(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	store.Add(ctx, ops.ColPatients, map[string]any{"name": "Aarav", "age": 34, "status": "Admitted", "createdAt": time.Now()})

	s := NewSyncer(store, zerolog.Nop())
	staffSeen, fn := notify()
	s.OnCollection(ops.ColStaff, fn)

	kpiSeen := make(chan ops.DashboardKPI, 16)
	s.OnKPI(func(kpi ops.DashboardKPI) { kpiSeen <- kpi })

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	waitFor(t, staffSeen, "initial staff snapshot")
	drain(staffSeen)

	store.Add(ctx, ops.ColStaff, map[string]any{"name": "Dr. Rao", "role": "Doctor", "department": "ER", "shift": "Night", "createdAt": time.Now()})
	waitFor(t, staffSeen, "staff snapshot after add")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case kpi := <-kpiSeen:
			if kpi.AvailableDoctors == 1 {
				if kpi.TotalPatients != 1 {
					t.Errorf("totalPatients should be stable across a staff-only change, got %d", kpi.TotalPatients)
				}
				return
			}
		case <-deadline:
			t.Fatal("KPI never reflected the staff-only change")
		}
	}
}

func TestSyncerRecordsChangeDoesNotComputeKPI(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()

	s := NewSyncer(store, zerolog.Nop())
	recSeen, fn := notify()
	s.OnCollection(ops.ColRecords, fn)

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	waitFor(t, recSeen, "initial records snapshot")
	store.Add(ctx, ops.ColRecords, map[string]any{"patient": "Aarav", "type": "Lab Report", "createdAt": time.Now()})
	waitFor(t, recSeen, "records snapshot after add")

	if kpi := s.KPI(); kpi != nil {
		t.Errorf("KPI should stay uncomputed while patients and resources are empty, got %+v", kpi)
	}
}

func TestSyncerKeepsLastKPIWhenStateEmpties(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemStore()
	id, err := store.Add(ctx, ops.ColPatients, map[string]any{"name": "Aarav", "age": 34, "status": "Admitted", "createdAt": time.Now()})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	s := NewSyncer(store, zerolog.Nop())
	patSeen, fn := notify()
	s.OnCollection(ops.ColPatients, fn)

	kpiSeen := make(chan ops.DashboardKPI, 16)
	s.OnKPI(func(kpi ops.DashboardKPI) { kpiSeen <- kpi })

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	waitFor(t, patSeen, "initial patients snapshot")
	kpi := s.KPI()
	if kpi == nil || kpi.TotalPatients != 1 {
		t.Fatalf("expected KPI with 1 patient after load, got %+v", kpi)
	}

	// Emptying the last populated collection leaves nothing to derive from;
	// the dashboard keeps showing the last computed KPI.
	if err := store.Delete(ctx, ops.ColPatients, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitFor(t, patSeen, "patients snapshot after delete")

	if len(s.Patients()) != 0 {
		t.Fatalf("expected empty patients after delete, got %d", len(s.Patients()))
	}
	kpi = s.KPI()
	if kpi == nil {
		t.Fatal("KPI was reset to nil; the last computed value should be kept")
	}
	if kpi.TotalPatients != 1 {
		t.Errorf("expected last computed KPI (1 patient), got %+v", kpi)
	}

	// No replacement should have been announced for the empty snapshot.
	for {
		select {
		case got := <-kpiSeen:
			if got.TotalPatients != 1 {
				t.Errorf("observer saw a KPI derived from empty state: %+v", got)
			}
		default:
			return
		}
	}
}

func TestSyncerCloseStops(t *testing.T) {
	ctx := context.Background()
	s := NewSyncer(docstore.NewMemStore(), zerolog.Nop())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	waitFor(t, done, "Close to return")
}

// errStore injects subscription errors for one collection.
type errStore struct {
	*docstore.MemStore
	failCol string
	errs    chan error
}

func (e *errStore) Watch(ctx context.Context, collection string, q docstore.Query) (*docstore.Subscription, error) {
	sub, err := e.MemStore.Watch(ctx, collection, q)
	if err != nil || collection != e.failCol {
		return sub, err
	}
	return docstore.NewSubscription(sub.Snapshots, e.errs, sub.Close), nil
}

func TestSyncerSurfacesSubscriptionErrors(t *testing.T) {
	ctx := context.Background()
	store := &errStore{
		MemStore: docstore.NewMemStore(),
		failCol:  ops.ColAlerts,
		errs:     make(chan error, 1),
	}

	s := NewSyncer(store, zerolog.Nop())
	alertSeen, fn := notify()
	s.OnCollection(ops.ColAlerts, fn)

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	waitFor(t, alertSeen, "initial alerts snapshot")

	store.errs <- errors.New("connection reset")

	deadline := time.After(2 * time.Second)
	for {
		st := s.Status()
		if msg, ok := st.Errors[ops.ColAlerts]; ok {
			if msg != "connection reset" {
				t.Errorf("unexpected error message %q", msg)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("subscription error never surfaced in Status")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A fresh snapshot clears the recorded error.
	store.Add(ctx, ops.ColAlerts, map[string]any{"type": "info", "message": "x", "timestamp": time.Now()})
	waitFor(t, alertSeen, "alerts snapshot after recovery")

	deadline = time.After(2 * time.Second)
	for {
		if _, ok := s.Status().Errors[ops.ColAlerts]; !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("error not cleared after fresh snapshot")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
