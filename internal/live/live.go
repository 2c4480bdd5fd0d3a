// Package live owns the synchronized state of the five dashboard
// collections. One Syncer holds a standing subscription per collection,
// applies every full snapshot to its state on a single run loop, recomputes
// the derived KPI whenever patients, staff, or resources change, and fans
// changes out to registered observers. Readers get copies; all mutation
// flows through the run loop.
package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opsboard/opsboard/internal/docstore"
	"github.com/opsboard/opsboard/internal/domain/ops"
)

// Status reports, per collection, whether the first snapshot is still
// pending and the last subscription error if one occurred. A collection can
// be both loaded and errored when its transport failed after the initial
// snapshot.
type Status struct {
	Loading map[string]bool   `json:"loading"`
	Errors  map[string]string `json:"errors"`
}

// CollectionObserver is invoked on the run loop after a collection's state
// has been replaced.
type CollectionObserver func(collection string)

// KPIObserver is invoked on the run loop after the derived KPI has been
// replaced.
type KPIObserver func(kpi ops.DashboardKPI)

type event struct {
	collection string
	snap       *docstore.Snapshot
	err        error
}

// Syncer is the composition root of the synchronization layer.
type Syncer struct {
	store docstore.Store
	log   zerolog.Logger

	cancel context.CancelFunc
	events chan event
	done   chan struct{}

	mu        sync.RWMutex
	patients  []ops.Patient
	records   []ops.MedicalRecord
	staff     []ops.Staff
	resources []ops.Resource
	alerts    []ops.Alert
	kpi       *ops.DashboardKPI
	loading   map[string]bool
	errs      map[string]error

	// Observer registration happens before Start; the run loop reads these
	// without further locking.
	collObservers map[string][]CollectionObserver
	kpiObservers  []KPIObserver
}

func NewSyncer(store docstore.Store, log zerolog.Logger) *Syncer {
	loading := make(map[string]bool, len(ops.Collections))
	for _, col := range ops.Collections {
		loading[col] = true
	}
	return &Syncer{
		store:         store,
		log:           log.With().Str("component", "live").Logger(),
		events:        make(chan event, 64),
		done:          make(chan struct{}),
		loading:       loading,
		errs:          make(map[string]error),
		collObservers: make(map[string][]CollectionObserver),
	}
}

// OnCollection registers an observer for one collection's state
// replacements. Must be called before Start.
func (s *Syncer) OnCollection(collection string, fn CollectionObserver) {
	s.collObservers[collection] = append(s.collObservers[collection], fn)
}

// OnKPI registers an observer for KPI replacements. Must be called before
// Start.
func (s *Syncer) OnKPI(fn KPIObserver) {
	s.kpiObservers = append(s.kpiObservers, fn)
}

// Start opens all five subscriptions and launches the run loop. If any
// subscription cannot be established the ones already opened are torn down
// and the error is returned.
func (s *Syncer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, col := range ops.Collections {
		q, err := ops.CollectionQuery(col)
		if err != nil {
			cancel()
			close(s.done)
			return err
		}
		// Cancelling runCtx tears down every subscription opened so far,
		// including on a partial-start failure.
		sub, err := s.store.Watch(runCtx, col, q)
		if err != nil {
			cancel()
			close(s.done)
			return fmt.Errorf("watch %s: %w", col, err)
		}
		go s.forward(runCtx, col, sub)
	}

	go s.run(runCtx)
	return nil
}

// Close cancels all subscriptions as a group and waits for the run loop to
// stop. A Syncer that never started is closed trivially.
func (s *Syncer) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// forward funnels one subscription's snapshots and errors into the run
// loop's event channel.
func (s *Syncer) forward(ctx context.Context, collection string, sub *docstore.Subscription) {
	snaps, errs := sub.Snapshots, sub.Errs
	for snaps != nil || errs != nil {
		var ev event
		select {
		case snap, ok := <-snaps:
			if !ok {
				snaps = nil
				continue
			}
			ev = event{collection: collection, snap: &snap}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			ev = event{collection: collection, err: err}
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Syncer) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if ev.err != nil {
				s.applyError(ev.collection, ev.err)
				continue
			}
			s.applySnapshot(ev.collection, *ev.snap)
		}
	}
}

func (s *Syncer) applyError(collection string, err error) {
	s.log.Error().Err(err).Str("collection", collection).Msg("subscription error")
	s.mu.Lock()
	s.errs[collection] = err
	s.mu.Unlock()
}

func (s *Syncer) applySnapshot(collection string, snap docstore.Snapshot) {
	s.mu.Lock()
	switch collection {
	case ops.ColPatients:
		s.patients = make([]ops.Patient, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			s.patients = append(s.patients, ops.PatientFromDoc(d))
		}
	case ops.ColRecords:
		s.records = make([]ops.MedicalRecord, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			s.records = append(s.records, ops.RecordFromDoc(d))
		}
	case ops.ColStaff:
		s.staff = make([]ops.Staff, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			s.staff = append(s.staff, ops.StaffFromDoc(d))
		}
	case ops.ColResources:
		s.resources = make([]ops.Resource, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			s.resources = append(s.resources, ops.ResourceFromDoc(d))
		}
	case ops.ColAlerts:
		s.alerts = make([]ops.Alert, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			s.alerts = append(s.alerts, ops.AlertFromDoc(d))
		}
	}
	s.loading[collection] = false
	delete(s.errs, collection)

	// KPI depends on patients, staff, and resources; a change to any one
	// recomputes against the latest values of all three. With both patients
	// and resources empty there is nothing to derive from, and the last
	// computed KPI stays in place rather than resetting to nil.
	var newKPI *ops.DashboardKPI
	kpiChanged := false
	switch collection {
	case ops.ColPatients, ops.ColStaff, ops.ColResources:
		if derived := ops.DeriveKPI(s.patients, s.staff, s.resources); derived != nil {
			newKPI = derived
			s.kpi = derived
			kpiChanged = true
		}
	}
	s.mu.Unlock()

	s.log.Debug().Str("collection", collection).Int("docs", len(snap.Docs)).Msg("snapshot applied")

	for _, fn := range s.collObservers[collection] {
		fn(collection)
	}
	if kpiChanged {
		for _, fn := range s.kpiObservers {
			fn(*newKPI)
		}
	}
}

// ---------------------------------------------------------------------------
// Read accessors
// ---------------------------------------------------------------------------

func (s *Syncer) Patients() []ops.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ops.Patient, len(s.patients))
	copy(out, s.patients)
	return out
}

func (s *Syncer) Records() []ops.MedicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ops.MedicalRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Syncer) Staff() []ops.Staff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ops.Staff, len(s.staff))
	copy(out, s.staff)
	return out
}

func (s *Syncer) Resources() []ops.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ops.Resource, len(s.resources))
	copy(out, s.resources)
	return out
}

func (s *Syncer) Alerts() []ops.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ops.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// KPI returns the derived KPI, or nil while it has not been computed yet.
func (s *Syncer) KPI() *ops.DashboardKPI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kpi == nil {
		return nil
	}
	kpi := *s.kpi
	return &kpi
}

// Insights derives the recommendation cards from current state.
func (s *Syncer) Insights() []ops.Insight {
	s.mu.RLock()
	patients, staff, resources := s.patients, s.staff, s.resources
	s.mu.RUnlock()
	return ops.GenerateInsights(patients, staff, resources)
}

func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Loading: make(map[string]bool, len(s.loading)),
		Errors:  make(map[string]string, len(s.errs)),
	}
	for col, l := range s.loading {
		st.Loading[col] = l
	}
	for col, err := range s.errs {
		st.Errors[col] = err.Error()
	}
	return st
}
