package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/remote"
)

// Router sends writes straight to the remote store while online and to the
// outbox otherwise. A write also goes to the outbox while earlier writes to
// the same document are still queued, so one document's writes never reorder.
type Router struct {
	store  remote.Store
	outbox Enqueuer
	conn   Connectivity
}

func NewRouter(store remote.Store, outbox Enqueuer, conn Connectivity) *Router {
	return &Router{store: store, outbox: outbox, conn: conn}
}

func (r *Router) Store() remote.Store {
	return r.store
}

func (r *Router) Online() bool {
	return r.conn.IsOnline()
}

// Write applies one mutation. entity is the typed value behind doc and is what
// the outbox persists; it is ignored for deletes. queued reports whether the
// write was deferred.
func (r *Router) Write(ctx context.Context, op models.OperationType, collection, id string, entity any, doc map[string]any) (queued bool, err error) {
	if r.conn.IsOnline() {
		pending, err := r.outbox.HasPending(ctx, collection, id)
		if err != nil {
			return false, apperrors.Repository("failed to inspect outbox", err)
		}
		if !pending {
			err := Apply(ctx, r.store, op, collection, id, doc)
			if err == nil {
				return false, nil
			}
			if !remote.IsUnavailable(err) {
				return false, apperrors.Repository(fmt.Sprintf("failed to %s %s/%s", op, collection, id), err)
			}
			log.Printf("Remote store unavailable, queueing %s %s/%s: %v", op, collection, id, err)
		}
	}

	var payload []byte
	if op != models.OperationDelete {
		payload, err = json.Marshal(entity)
		if err != nil {
			return false, apperrors.Repository("failed to encode pending operation", err)
		}
	}
	if _, err := r.outbox.Enqueue(ctx, models.PendingOperation{
		Type:       op,
		Collection: collection,
		DocumentID: id,
		Payload:    string(payload),
	}); err != nil {
		return false, apperrors.Repository("failed to queue pending operation", err)
	}
	return true, nil
}

// Apply performs one mutation against the remote store. Creates and updates
// carry the full document; deleting a missing document succeeds.
func Apply(ctx context.Context, store remote.Store, op models.OperationType, collection, id string, doc map[string]any) error {
	switch op {
	case models.OperationCreate:
		_, err := store.Create(ctx, collection, id, RemoteDocument(doc))
		return err
	case models.OperationUpdate:
		return store.Update(ctx, collection, id, RemoteDocument(doc))
	case models.OperationDelete:
		err := store.Delete(ctx, collection, id)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown operation type %q", op)
	}
}

// RemoteDocument prepares doc for the wire: unset fields are stripped and the
// store stamps its own write time.
func RemoteDocument(doc map[string]any) map[string]any {
	out := remote.Sanitize(doc)
	out["serverUpdatedAt"] = remote.ServerTimestamp
	return out
}
