package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

// WriteHook may veto a write before it is applied. op is "create", "update" or "delete".
type WriteHook func(op, collection, id string) error

// MemoryStore is an in-process Store. Documents are kept in their JSON form, the
// way they would look after a round trip through a real document store.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]map[string]map[string]any
	watchers map[int]*watcher
	nextID   int
	offline  bool
	hook     WriteHook
	now      func() time.Time
}

type watcher struct {
	query    Query
	callback func([]Document, error)
	signal   chan struct{}
	errs     chan error
	stop     chan struct{}
	once     sync.Once
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]map[string]map[string]any),
		watchers: make(map[int]*watcher),
		now:      time.Now,
	}
}

// SetOffline makes every read and write fail with ErrUnavailable while true.
func (s *MemoryStore) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

func (s *MemoryStore) SetWriteHook(hook WriteHook) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// SetClock replaces the clock used to resolve ServerTimestamp.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// InjectSubscriptionError delivers err to every live subscription on collection.
func (s *MemoryStore) InjectSubscriptionError(collection string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.watchers {
		if w.query.Collection == collection {
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// Count returns the number of documents in collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

// Watchers reports how many subscriptions are still registered.
func (s *MemoryStore) Watchers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.offline {
		return Document{}, ErrUnavailable
	}
	data, ok := s.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: copyMap(data)}, nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.offline {
		return nil, ErrUnavailable
	}
	return s.match(q)
}

func (s *MemoryStore) Subscribe(ctx context.Context, q Query, callback func([]Document, error)) (Unsubscribe, error) {
	w := &watcher{
		query:    q,
		callback: callback,
		signal:   make(chan struct{}, 1),
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()

	w.signal <- struct{}{}
	go s.watch(ctx, w)

	return func() error {
		w.once.Do(func() {
			close(w.stop)
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
		return nil
	}, nil
}

// watch delivers the current result set each time the watcher is signalled.
// Signals coalesce, so a slow callback only ever sees the latest state.
func (s *MemoryStore) watch(ctx context.Context, w *watcher) {
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case err := <-w.errs:
			w.callback(nil, err)
		case <-w.signal:
			s.mu.RLock()
			docs, err := s.match(w.query)
			s.mu.RUnlock()
			w.callback(docs, err)
		}
	}
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, payload map[string]any) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.write(ctx, "create", collection, id, payload); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, payload map[string]any) error {
	return s.write(ctx, "update", collection, id, payload)
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.write(ctx, "delete", collection, id, nil)
}

func (s *MemoryStore) write(ctx context.Context, op, collection, id string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return ErrUnavailable
	}
	if s.hook != nil {
		if err := s.hook(op, collection, id); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	switch op {
	case "delete":
		delete(s.docs[collection], id)
	default:
		if op == "update" {
			if _, ok := s.docs[collection][id]; !ok {
				s.mu.Unlock()
				return ErrNotFound
			}
		}
		stored, err := s.normalize(payload)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
		}
		if s.docs[collection] == nil {
			s.docs[collection] = make(map[string]map[string]any)
		}
		s.docs[collection][id] = stored
	}

	for _, w := range s.watchers {
		if w.query.Collection == collection {
			select {
			case w.signal <- struct{}{}:
			default:
			}
		}
	}
	s.mu.Unlock()
	return nil
}

// normalize resolves placeholders and stores the payload in its JSON shape.
func (s *MemoryStore) normalize(payload map[string]any) (map[string]any, error) {
	resolved := resolveTimestamps(Sanitize(payload), s.now())
	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MemoryStore) match(q Query) ([]Document, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		if f.Op != OpEqual {
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
		value, err := jsonValue(f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: value}
	}

	ids := make([]string, 0, len(s.docs[q.Collection]))
	for id := range s.docs[q.Collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		data := s.docs[q.Collection][id]
		if !matches(data, filters) {
			continue
		}
		docs = append(docs, Document{ID: id, Data: copyMap(data)})
		if q.Limit > 0 && len(docs) == q.Limit {
			break
		}
	}
	return docs, nil
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

func jsonValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

func resolveTimestamps(v map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = resolveValue(val, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch val := v.(type) {
	case serverTimestamp:
		return now
	case map[string]any:
		return resolveTimestamps(val, now)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, now)
		}
		return out
	default:
		return v
	}
}

// copyMap copies the top level and any nested maps or slices.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
