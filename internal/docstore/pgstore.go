package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// notifyChannel is the Postgres channel the documents trigger notifies on.
// The payload is the mutated collection's name.
const notifyChannel = "documents_changed"

const listenRetryDelay = 2 * time.Second

var orderFieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGStore is the Postgres-backed Store. Documents live in a single JSONB
// table; a trigger emits NOTIFY on every mutation and one listener
// connection fans notifications out to watchers, each of which re-queries
// its collection's full result set. Listener failures are surfaced on each
// watcher's error channel and the listener reconnects with a fixed delay.
type PGStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	mu       sync.Mutex
	watchers map[*pgWatcher]struct{}
}

type pgWatcher struct {
	collection string
	q          Query
	snaps      chan Snapshot
	errs       chan error
}

// NewPGStore creates a PGStore over an existing pool and starts its listener.
// The listener runs until ctx is cancelled.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) *PGStore {
	s := &PGStore{
		pool:     pool,
		log:      log.With().Str("component", "docstore").Logger(),
		watchers: make(map[*pgWatcher]struct{}),
	}
	go s.listen(ctx)
	return s
}

var _ Store = (*PGStore)(nil)

// orderClause builds the ORDER BY fragment for a collection query. Ordered
// fields hold RFC3339 timestamps, and the JSON encoder trims trailing zeros
// from fractional seconds, so the stored strings do not compare
// chronologically ("10:00:00Z" sorts after "10:00:00.5Z"). The value is cast
// to timestamptz before sorting.
func orderClause(q Query) (string, error) {
	if q.OrderBy == "" {
		return " ORDER BY inserted_at ASC", nil
	}
	if !orderFieldPattern.MatchString(q.OrderBy) {
		return "", fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY (doc->>'%s')::timestamptz %s", q.OrderBy, dir), nil
}

func (s *PGStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	clause, err := orderClause(q)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, doc FROM documents WHERE collection = $1` + clause

	rows, err := s.pool.Query(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		data := map[string]any{}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", collection, err)
	}
	return docs, nil
}

func (s *PGStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.New().String()
	doc, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)`,
		collection, id, doc,
	)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

func (s *PGStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET doc = doc || $3::jsonb WHERE collection = $1 AND id = $2`,
		collection, id, patch,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Watch registers a watcher and delivers the current result set immediately.
// Subsequent snapshots arrive whenever a notification for the collection is
// received.
func (s *PGStore) Watch(ctx context.Context, collection string, q Query) (*Subscription, error) {
	docs, err := s.Query(ctx, collection, q)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &pgWatcher{
		collection: collection,
		q:          q,
		snaps:      make(chan Snapshot, watchBuffer),
		errs:       make(chan error, watchBuffer),
	}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	w.push(Snapshot{Collection: collection, Docs: docs, At: time.Now()})
	s.mu.Unlock()

	go func() {
		<-wctx.Done()
		s.mu.Lock()
		delete(s.watchers, w)
		close(w.snaps)
		close(w.errs)
		s.mu.Unlock()
	}()

	return &Subscription{Snapshots: w.snaps, Errs: w.errs, cancel: cancel}, nil
}

// listen holds one dedicated connection on the notify channel and dispatches
// every notification to the watchers of the named collection. The connection
// is re-acquired after failures; each failure is reported to all watchers so
// consumers can expose the degraded state instead of silently stalling.
func (s *PGStore) listen(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.listenOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("notification listener failed, reconnecting")
			s.broadcastError(fmt.Errorf("change listener: %w", err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(listenRetryDelay):
			}
		}
	}
}

func (s *PGStore) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen on %s: %w", notifyChannel, err)
	}
	s.log.Debug().Str("channel", notifyChannel).Msg("listening for document changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		s.dispatch(ctx, n.Payload)
	}
}

// dispatch re-queries the collection once per distinct watcher query and
// pushes the fresh result set to every watcher of that collection.
func (s *PGStore) dispatch(ctx context.Context, collection string) {
	s.mu.Lock()
	targets := make([]*pgWatcher, 0, len(s.watchers))
	for w := range s.watchers {
		if w.collection == collection {
			targets = append(targets, w)
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	for _, w := range targets {
		docs, err := s.Query(ctx, collection, w.q)
		at := time.Now()

		s.mu.Lock()
		if _, live := s.watchers[w]; live {
			if err != nil {
				w.pushErr(fmt.Errorf("refresh %s: %w", collection, err))
			} else {
				w.push(Snapshot{Collection: collection, Docs: docs, At: at})
			}
		}
		s.mu.Unlock()
	}
}

func (s *PGStore) broadcastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		w.pushErr(err)
	}
}

// push and pushErr never block; when a buffer is full the oldest pending
// element is dropped so the newest state always gets through.
func (w *pgWatcher) push(snap Snapshot) {
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

func (w *pgWatcher) pushErr(err error) {
	for {
		select {
		case w.errs <- err:
			return
		default:
			select {
			case <-w.errs:
			default:
			}
		}
	}
}
