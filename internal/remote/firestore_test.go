package remote

import (
	"context"
	"errors"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(status.Error(codes.NotFound, "gone")), ErrNotFound)
	assert.ErrorIs(t, mapError(status.Error(codes.PermissionDenied, "rules")), ErrPermissionDenied)
	assert.ErrorIs(t, mapError(status.Error(codes.Unauthenticated, "token")), ErrPermissionDenied)
	assert.True(t, IsUnavailable(mapError(status.Error(codes.Unavailable, "down"))))
	assert.True(t, IsUnavailable(mapError(status.Error(codes.DeadlineExceeded, "slow"))))

	other := errors.New("boom")
	assert.Same(t, other, mapError(other))
}

func TestToFirestore(t *testing.T) {
	var missing *string
	data := toFirestore(map[string]any{
		"title":     "Dishes",
		"updatedAt": ServerTimestamp,
		"time":      missing,
		"assignee":  nil,
	})

	assert.Equal(t, "Dishes", data["title"])
	assert.Equal(t, firestore.ServerTimestamp, data["updatedAt"])
	assert.NotContains(t, data, "time")
	assert.Contains(t, data, "assignee")
}

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func TestFirestoreStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "demo-family-task-sync")
	require.NoError(t, err)
	store := NewFirestoreStoreFromClient(client)
	t.Cleanup(func() { store.Close() })

	collection := "tasks-" + uuid.NewString()
	id, err := store.Create(ctx, collection, "t1", map[string]any{"title": "a", "createdBy": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", id)

	require.NoError(t, store.Update(ctx, collection, "t1", map[string]any{"title": "b", "createdBy": "u1"}))
	assert.ErrorIs(t, store.Update(ctx, collection, "missing", map[string]any{"title": "x"}), ErrNotFound)

	docs, err := store.Query(ctx, Query{Collection: collection}.Where("createdBy", "u1"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].Data["title"])

	require.NoError(t, store.Delete(ctx, collection, "t1"))
	docs, err = store.Query(ctx, Query{Collection: collection})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
