package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/yukikurage/family-task-sync/internal/aggregator"
	"github.com/yukikurage/family-task-sync/internal/constants"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/outbox"
	"github.com/yukikurage/family-task-sync/internal/remote"
	"github.com/yukikurage/family-task-sync/internal/repository"
)

var (
	ErrDraining = errors.New("a drain is already in progress")
	ErrOffline  = errors.New("sync engine is offline")
)

// Config wires an Engine. Session is optional; when set, every drain ends by
// refreshing the offline cache with the session's visible tasks.
type Config struct {
	Outbox        *outbox.Outbox
	Store         remote.Store
	Offline       repository.OfflineRepository
	Session       *models.SessionContext
	StartOnline   bool
	FailureBuffer int
	Now           func() time.Time
}

// Engine flushes the outbox whenever connectivity comes back and on demand.
// Only one drain runs at a time; overlapping requests are dropped.
type Engine struct {
	outbox   *outbox.Outbox
	store    remote.Store
	offline  repository.OfflineRepository
	session  *models.SessionContext
	now      func() time.Time
	online   atomic.Bool
	draining atomic.Bool
	failures chan outbox.Failure
	dropped  uint64
}

var _ repository.Connectivity = (*Engine)(nil)

// Status is a point-in-time view of the engine.
type Status struct {
	Online          bool   `json:"online"`
	Draining        bool   `json:"draining"`
	Pending         int64  `json:"pending"`
	Failed          int64  `json:"failed"`
	LastSync        int64  `json:"lastSync"`
	DroppedFailures uint64 `json:"droppedFailures"`
}

func New(cfg Config) *Engine {
	buffer := cfg.FailureBuffer
	if buffer <= 0 {
		buffer = constants.FailureBufferSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		outbox:   cfg.Outbox,
		store:    cfg.Store,
		offline:  cfg.Offline,
		session:  cfg.Session,
		now:      now,
		failures: make(chan outbox.Failure, buffer),
	}
	e.online.Store(cfg.StartOnline)
	return e
}

func (e *Engine) IsOnline() bool {
	return e.online.Load()
}

// Failures delivers operations that ran out of retries. Deliveries never block
// the engine; when the channel is full the failure is counted in Dropped.
func (e *Engine) Failures() <-chan outbox.Failure {
	return e.failures
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

// SetOnline records a connectivity change. Only the offline to online edge
// starts a drain, which runs before SetOnline returns.
func (e *Engine) SetOnline(ctx context.Context, online bool) error {
	was := e.online.Swap(online)
	switch {
	case online && !was:
		log.Println("Connectivity restored, draining pending operations")
		if _, err := e.drain(ctx); err != nil && !errors.Is(err, ErrDraining) {
			return err
		}
	case !online && was:
		log.Println("Connectivity lost, writes will be queued locally")
	}
	return nil
}

// Trigger drains the outbox now. It fails with ErrOffline while offline and
// with ErrDraining when another drain is running.
func (e *Engine) Trigger(ctx context.Context) (outbox.DrainResult, error) {
	if !e.online.Load() {
		return outbox.DrainResult{}, ErrOffline
	}
	return e.drain(ctx)
}

// Run feeds connectivity events into SetOnline until ctx ends or the channel closes.
func (e *Engine) Run(ctx context.Context, connectivity <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online, ok := <-connectivity:
			if !ok {
				return nil
			}
			if err := e.SetOnline(ctx, online); err != nil {
				log.Printf("Drain after reconnect failed: %v", err)
			}
		}
	}
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, failed, err := e.outbox.Counts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to count pending operations: %w", err)
	}
	lastSync, err := e.offline.LastSync(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read last sync time: %w", err)
	}
	return Status{
		Online:          e.online.Load(),
		Draining:        e.draining.Load(),
		Pending:         pending,
		Failed:          failed,
		LastSync:        lastSync,
		DroppedFailures: e.Dropped(),
	}, nil
}

// OfflineData exports the persisted local state the session may read.
func (e *Engine) OfflineData(ctx context.Context, session models.SessionContext) (models.OfflineData, error) {
	data, err := e.offline.Snapshot(ctx)
	if err != nil {
		return models.OfflineData{}, fmt.Errorf("failed to read offline state: %w", err)
	}
	return data.ScopedTo(session), nil
}

func (e *Engine) drain(ctx context.Context) (outbox.DrainResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return outbox.DrainResult{}, ErrDraining
	}
	defer e.draining.Store(false)

	result, err := e.outbox.Drain(ctx, e.apply)
	if err != nil {
		return result, fmt.Errorf("failed to drain outbox: %w", err)
	}

	for _, op := range result.Applied {
		e.reconcile(ctx, op)
	}
	for _, failure := range result.Exhausted {
		log.Printf("Giving up on %s %s: %v", failure.Operation.Type, failure.Operation.DocKey(), failure.Err)
		e.publish(failure)
	}
	if err := e.offline.SetLastSync(ctx, e.now().UnixMilli()); err != nil {
		log.Printf("Failed to record last sync time: %v", err)
	}
	if e.session != nil {
		e.refresh(ctx)
	}

	log.Printf("Drain finished: %d applied, %d retrying, %d failed, %d held back",
		len(result.Applied), len(result.Retried), len(result.Exhausted), result.Skipped)
	return result, nil
}

// apply turns a queued operation back into a remote call.
func (e *Engine) apply(ctx context.Context, op models.PendingOperation) error {
	if op.Type == models.OperationDelete {
		return repository.Apply(ctx, e.store, op.Type, op.Collection, op.DocumentID, nil)
	}
	doc, err := translate(op)
	if err != nil {
		return err
	}
	return repository.Apply(ctx, e.store, op.Type, op.Collection, op.DocumentID, doc)
}

type document interface {
	ToDocument() map[string]any
}

func translate(op models.PendingOperation) (map[string]any, error) {
	switch op.Collection {
	case constants.CollectionTasks:
		return decodePayload[models.Task](op)
	case constants.CollectionApprovals:
		return decodePayload[models.ApprovalRequest](op)
	case constants.CollectionHistory:
		return decodePayload[models.HistoryItem](op)
	case constants.CollectionNotifications:
		return decodePayload[models.Notification](op)
	default:
		return nil, fmt.Errorf("unknown collection %q", op.Collection)
	}
}

func decodePayload[T document](op models.PendingOperation) (map[string]any, error) {
	var entity T
	if err := json.Unmarshal([]byte(op.Payload), &entity); err != nil {
		return nil, fmt.Errorf("failed to decode payload of %s: %w", op.DocKey(), err)
	}
	return entity.ToDocument(), nil
}

// reconcile updates the offline cache after the remote store confirmed op.
// Rows stay dirty while later writes to the same document are still queued.
func (e *Engine) reconcile(ctx context.Context, op models.PendingOperation) {
	var err error
	switch op.Collection {
	case constants.CollectionTasks:
		if op.Type == models.OperationDelete {
			err = e.offline.DeleteTask(ctx, op.DocumentID)
			break
		}
		if e.stillQueued(ctx, op) {
			return
		}
		err = e.offline.MarkTaskSynced(ctx, op.DocumentID, e.now())
	case constants.CollectionApprovals:
		if op.Type == models.OperationDelete || e.stillQueued(ctx, op) {
			return
		}
		err = e.offline.MarkApprovalSynced(ctx, op.DocumentID)
	default:
		return
	}
	if err != nil {
		log.Printf("Failed to reconcile cache for %s: %v", op.DocKey(), err)
	}
}

func (e *Engine) stillQueued(ctx context.Context, op models.PendingOperation) bool {
	queued, err := e.outbox.HasPending(ctx, op.Collection, op.DocumentID)
	if err != nil {
		log.Printf("Failed to inspect outbox for %s: %v", op.DocKey(), err)
		return true
	}
	return queued
}

// refresh pulls the session's visible tasks into the offline cache, leaving
// rows with unconfirmed local changes alone.
func (e *Engine) refresh(ctx context.Context) {
	started := time.Now()
	tasks, err := aggregator.Snapshot(ctx, e.store, *e.session)
	if err != nil {
		log.Printf("Failed to refresh offline cache: %v", err)
		return
	}
	if err := e.offline.RefreshTasks(ctx, *e.session, tasks, started); err != nil {
		log.Printf("Failed to refresh offline cache: %v", err)
	}
}

func (e *Engine) publish(failure outbox.Failure) {
	select {
	case e.failures <- failure:
	default:
		atomic.AddUint64(&e.dropped, 1)
	}
}
