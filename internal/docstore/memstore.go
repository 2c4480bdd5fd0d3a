package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const watchBuffer = 16

// MemStore is a thread-safe, in-memory Store. It backs unit tests and the
// development mode that runs without a database. Snapshots are fanned out to
// watchers on every mutation; when a watcher's buffer is full the oldest
// pending snapshot is dropped in favour of the newest, preserving the
// latest-state-wins contract of a full-snapshot subscription.
type MemStore struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	watchers    map[*memWatcher]struct{}
}

type memCollection struct {
	docs  map[string]map[string]any
	order []string // insertion order of ids
}

type memWatcher struct {
	collection string
	q          Query
	snaps      chan Snapshot
	errs       chan error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]*memCollection),
		watchers:    make(map[*memWatcher]struct{}),
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) collection(name string) *memCollection {
	col, ok := s.collections[name]
	if !ok {
		col = &memCollection{docs: make(map[string]map[string]any)}
		s.collections[name] = col
	}
	return col
}

func (s *MemStore) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(collection, q), nil
}

func (s *MemStore) Add(_ context.Context, collection string, data map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	id := uuid.New().String()
	col.docs[id] = copyData(data)
	col.order = append(col.order, id)

	s.notifyLocked(collection)
	return id, nil
}

func (s *MemStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	doc, ok := col.docs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}

	s.notifyLocked(collection)
	return nil
}

func (s *MemStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	if _, ok := col.docs[id]; !ok {
		return ErrNotFound
	}
	delete(col.docs, id)
	for i, oid := range col.order {
		if oid == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}

	s.notifyLocked(collection)
	return nil
}

// Watch delivers the current result set immediately, then a fresh full
// snapshot after every mutation of the collection.
func (s *MemStore) Watch(ctx context.Context, collection string, q Query) (*Subscription, error) {
	wctx, cancel := context.WithCancel(ctx)

	w := &memWatcher{
		collection: collection,
		q:          q,
		snaps:      make(chan Snapshot, watchBuffer),
		errs:       make(chan error, 1),
	}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	w.push(Snapshot{Collection: collection, Docs: s.snapshotLocked(collection, q), At: time.Now()})
	s.mu.Unlock()

	go func() {
		<-wctx.Done()
		// Channel closes happen under the store lock so no push can race
		// with them: once the watcher is removed, notifyLocked cannot
		// reach it.
		s.mu.Lock()
		delete(s.watchers, w)
		close(w.snaps)
		close(w.errs)
		s.mu.Unlock()
	}()

	return &Subscription{Snapshots: w.snaps, Errs: w.errs, cancel: cancel}, nil
}

func (s *MemStore) notifyLocked(collection string) {
	for w := range s.watchers {
		if w.collection != collection {
			continue
		}
		w.push(Snapshot{Collection: collection, Docs: s.snapshotLocked(collection, w.q), At: time.Now()})
	}
}

// push enqueues a snapshot without blocking; if the watcher is saturated the
// oldest pending snapshot is discarded so the newest state is always seen.
func (w *memWatcher) push(snap Snapshot) {
	for {
		select {
		case w.snaps <- snap:
			return
		default:
			select {
			case <-w.snaps:
			default:
			}
		}
	}
}

func (s *MemStore) snapshotLocked(collection string, q Query) []Document {
	col, ok := s.collections[collection]
	if !ok {
		return []Document{}
	}

	docs := make([]Document, 0, len(col.order))
	for _, id := range col.order {
		docs = append(docs, Document{ID: id, Data: copyData(col.docs[id])})
	}

	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			if q.Desc {
				return fieldLess(docs[j].Data[q.OrderBy], docs[i].Data[q.OrderBy])
			}
			return fieldLess(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
		})
	}
	return docs
}

func fieldLess(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case int:
		if bv, ok := b.(int); ok {
			return av < bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	}
	return false
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
