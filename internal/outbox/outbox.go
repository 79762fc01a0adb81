package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yukikurage/family-task-sync/internal/constants"
	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/repository"
)

var (
	ErrOperationNotFound = errors.New("pending operation not found")
	ErrNotFailed         = errors.New("operation has not failed")
)

// ApplyFunc performs one queued operation against the remote store.
type ApplyFunc func(ctx context.Context, op models.PendingOperation) error

// Failure is an operation that used up its retries.
type Failure struct {
	Operation models.PendingOperation
	Err       error
}

// DrainResult summarises one drain cycle.
type DrainResult struct {
	Applied   []models.PendingOperation
	Retried   []models.PendingOperation
	Exhausted []Failure
	Skipped   int
}

// Outbox is the durable queue of writes the remote store has not confirmed.
type Outbox struct {
	repo       repository.OutboxRepository
	maxRetries int
	now        func() time.Time
}

var _ repository.Enqueuer = (*Outbox)(nil)

func New(repo repository.OutboxRepository, maxRetries int) *Outbox {
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxSyncRetries
	}
	return &Outbox{repo: repo, maxRetries: maxRetries, now: time.Now}
}

func (o *Outbox) MaxRetries() int {
	return o.maxRetries
}

// Enqueue stores op before returning. Id and enqueue time are assigned when missing.
func (o *Outbox) Enqueue(ctx context.Context, op models.PendingOperation) (models.PendingOperation, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = o.now()
	}
	op.Retry = 0
	op.LastError = ""
	op.Status = models.OperationPending

	if err := o.repo.Append(ctx, &op); err != nil {
		return models.PendingOperation{}, fmt.Errorf("failed to enqueue %s %s: %w", op.Type, op.DocKey(), err)
	}
	return op, nil
}

// HasPending reports whether any pending or failed entry targets the document.
func (o *Outbox) HasPending(ctx context.Context, collection, documentID string) (bool, error) {
	count, err := o.repo.CountForDocument(ctx, collection, documentID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Drain walks pending entries in enqueue order. A success removes the entry; a
// failure bumps its retry counter and holds back later entries for the same
// document until the next cycle. Entries reaching the retry cap become failed.
// Documents with a failed entry are not touched until it is requeued or discarded.
func (o *Outbox) Drain(ctx context.Context, apply ApplyFunc) (DrainResult, error) {
	var result DrainResult

	failed, err := o.repo.ListByStatus(ctx, models.OperationFailed)
	if err != nil {
		return result, fmt.Errorf("failed to list failed operations: %w", err)
	}
	blocked := make(map[string]bool, len(failed))
	for _, op := range failed {
		blocked[op.DocKey()] = true
	}

	ops, err := o.repo.ListByStatus(ctx, models.OperationPending)
	if err != nil {
		return result, fmt.Errorf("failed to list pending operations: %w", err)
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if blocked[op.DocKey()] {
			result.Skipped++
			continue
		}

		applyErr := apply(ctx, op)
		if applyErr == nil {
			op.Retry = 0
			op.LastError = ""
			if err := o.repo.Delete(ctx, op.ID); err != nil {
				return result, fmt.Errorf("failed to remove applied operation %s: %w", op.ID, err)
			}
			result.Applied = append(result.Applied, op)
			continue
		}

		blocked[op.DocKey()] = true
		op.Retry++
		op.LastError = applyErr.Error()
		if op.Retry >= o.maxRetries {
			op.Status = models.OperationFailed
		}
		if err := o.repo.Update(ctx, &op); err != nil {
			return result, fmt.Errorf("failed to record retry for %s: %w", op.ID, err)
		}

		if op.Status == models.OperationFailed {
			result.Exhausted = append(result.Exhausted, Failure{
				Operation: op,
				Err: apperrors.SyncRetryExhausted(
					fmt.Sprintf("%s %s gave up after %d attempts", op.Type, op.DocKey(), op.Retry), applyErr),
			})
		} else {
			result.Retried = append(result.Retried, op)
		}
	}
	return result, nil
}

func (o *Outbox) Pending(ctx context.Context) ([]models.PendingOperation, error) {
	return o.repo.ListByStatus(ctx, models.OperationPending)
}

func (o *Outbox) Failed(ctx context.Context) ([]models.PendingOperation, error) {
	return o.repo.ListByStatus(ctx, models.OperationFailed)
}

// Counts returns the number of pending and failed entries.
func (o *Outbox) Counts(ctx context.Context) (pending, failed int64, err error) {
	if pending, err = o.repo.CountByStatus(ctx, models.OperationPending); err != nil {
		return 0, 0, err
	}
	if failed, err = o.repo.CountByStatus(ctx, models.OperationFailed); err != nil {
		return 0, 0, err
	}
	return pending, failed, nil
}

// Requeue gives a failed entry a fresh set of retries. It keeps its place in the queue.
func (o *Outbox) Requeue(ctx context.Context, id string) (models.PendingOperation, error) {
	op, err := o.findFailed(ctx, id)
	if err != nil {
		return models.PendingOperation{}, err
	}
	op.Status = models.OperationPending
	op.Retry = 0
	op.LastError = ""
	if err := o.repo.Update(ctx, op); err != nil {
		return models.PendingOperation{}, fmt.Errorf("failed to requeue %s: %w", id, err)
	}
	return *op, nil
}

// Discard drops a failed entry for good.
func (o *Outbox) Discard(ctx context.Context, id string) (models.PendingOperation, error) {
	op, err := o.findFailed(ctx, id)
	if err != nil {
		return models.PendingOperation{}, err
	}
	if err := o.repo.Delete(ctx, id); err != nil {
		return models.PendingOperation{}, fmt.Errorf("failed to discard %s: %w", id, err)
	}
	return *op, nil
}

func (o *Outbox) findFailed(ctx context.Context, id string) (*models.PendingOperation, error) {
	op, err := o.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load operation %s: %w", id, err)
	}
	if op.Status != models.OperationFailed {
		return nil, ErrNotFailed
	}
	return op, nil
}
