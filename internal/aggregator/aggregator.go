package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/yukikurage/family-task-sync/internal/constants"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/remote"
)

// Segment is one of the live queries feeding a user's task list. Segments are
// merged in declaration order, so later segments override earlier ones.
type Segment int

const (
	SegmentFamily Segment = iota
	SegmentCreatedBy
	SegmentAssigned
)

var mergeOrder = []Segment{SegmentFamily, SegmentCreatedBy, SegmentAssigned}

func (s Segment) String() string {
	switch s {
	case SegmentFamily:
		return "family"
	case SegmentCreatedBy:
		return "createdBy"
	case SegmentAssigned:
		return "assigned"
	default:
		return fmt.Sprintf("segment(%d)", int(s))
	}
}

type segmentQuery struct {
	segment Segment
	query   remote.Query
}

// queries returns the segment queries for session. The family segment is
// omitted when the session has no family.
func queries(session models.SessionContext) []segmentQuery {
	tasks := remote.Query{Collection: constants.CollectionTasks}
	queries := []segmentQuery{
		{SegmentCreatedBy, tasks.Where("createdBy", session.UserID)},
		{SegmentAssigned, tasks.Where("assignedTo", session.UserID).Where("private", false)},
	}
	if session.HasFamily() {
		queries = append(queries, segmentQuery{SegmentFamily, tasks.Where("familyId", *session.FamilyID).Where("private", false)})
	}
	return queries
}

// Merge unions the segment maps, drops any private task not authored by
// userID and sorts the result by last touched time.
func Merge(userID string, segments map[Segment]map[string]models.Task) []models.Task {
	merged := make(map[string]models.Task)
	for _, seg := range mergeOrder {
		for id, task := range segments[seg] {
			merged[id] = task
		}
	}

	out := make([]models.Task, 0, len(merged))
	for _, task := range merged {
		// second line of defense against a misconfigured segment query
		if !task.VisibleTo(userID) {
			continue
		}
		out = append(out, task)
	}
	models.SortByLastTouched(out)
	return out
}

// Aggregator maintains the live, privacy-filtered task list of one session.
type Aggregator struct {
	store   remote.Store
	session models.SessionContext
}

func New(store remote.Store, session models.SessionContext) *Aggregator {
	return &Aggregator{store: store, session: session}
}

type update struct {
	segment Segment
	tasks   map[string]models.Task
	err     error
}

// Subscribe calls callback with the merged list after every segment change.
// Callbacks run on a single goroutine and never receive errors; a failing
// segment keeps its last snapshot. The returned function tears everything down
// exactly once and must not be called from inside callback.
func (a *Aggregator) Subscribe(ctx context.Context, callback func([]models.Task)) (remote.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	updates := make(chan update, constants.AggregatorUpdateBuffer)
	done := make(chan struct{})
	go a.run(ctx, updates, callback, done)

	var unsubs []remote.Unsubscribe
	closeAll := func() error {
		var errs []error
		for _, unsub := range unsubs {
			if err := unsub(); err != nil {
				errs = append(errs, err)
			}
		}
		cancel()
		<-done
		return errors.Join(errs...)
	}

	for _, sq := range queries(a.session) {
		segment := sq.segment
		unsub, err := a.store.Subscribe(ctx, sq.query, func(docs []remote.Document, err error) {
			u := update{segment: segment, err: err}
			if err == nil {
				u.tasks = decodeTasks(docs)
			}
			select {
			case updates <- u:
			case <-ctx.Done():
			}
		})
		if err != nil {
			closeErr := closeAll()
			return nil, errors.Join(fmt.Errorf("failed to subscribe to %s segment: %w", segment, err), closeErr)
		}
		unsubs = append(unsubs, unsub)
	}

	var once sync.Once
	var closeErr error
	return func() error {
		once.Do(func() {
			closeErr = closeAll()
		})
		return closeErr
	}, nil
}

// run owns the segment maps, so every merge sees one consistent state.
func (a *Aggregator) run(ctx context.Context, updates <-chan update, callback func([]models.Task), done chan<- struct{}) {
	defer close(done)

	segments := make(map[Segment]map[string]models.Task, len(mergeOrder))
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if u.err != nil {
				log.Printf("Task %s subscription failed for user %s, keeping last snapshot: %v", u.segment, a.session.UserID, u.err)
				continue
			}
			segments[u.segment] = u.tasks
			callback(Merge(a.session.UserID, segments))
		}
	}
}

// Stream delivers merged lists on a channel that only ever holds the newest
// one. The channel closes once ctx ends.
func (a *Aggregator) Stream(ctx context.Context) (<-chan []models.Task, error) {
	out := make(chan []models.Task, 1)
	unsubscribe, err := a.Subscribe(ctx, func(tasks []models.Task) {
		select {
		case out <- tasks:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
		out <- tasks
	})
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		if err := unsubscribe(); err != nil {
			log.Printf("Failed to close task stream for user %s: %v", a.session.UserID, err)
		}
		close(out)
	}()
	return out, nil
}

// Snapshot queries the same segments once and merges them.
func Snapshot(ctx context.Context, store remote.Store, session models.SessionContext) ([]models.Task, error) {
	segments := make(map[Segment]map[string]models.Task, len(mergeOrder))
	for _, sq := range queries(session) {
		docs, err := store.Query(ctx, sq.query)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s segment: %w", sq.segment, err)
		}
		segments[sq.segment] = decodeTasks(docs)
	}
	return Merge(session.UserID, segments), nil
}

func decodeTasks(docs []remote.Document) map[string]models.Task {
	tasks := make(map[string]models.Task, len(docs))
	for _, doc := range docs {
		task, err := models.DecodeTask(doc.ID, doc.Data)
		if err != nil {
			log.Printf("Skipping undecodable task %s: %v", doc.ID, err)
			continue
		}
		tasks[task.ID] = task
	}
	return tasks
}
