package remote

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore adapts a Cloud Firestore database to Store.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore initializes a Firebase app and opens its Firestore client.
// An empty credentialsFile falls back to application default credentials.
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firestore client: %w", err)
	}
	return NewFirestoreStoreFromClient(client), nil
}

func NewFirestoreStoreFromClient(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]Document, error) {
	iter := s.buildQuery(q).Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapError(err)
		}
		docs = append(docs, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

func (s *FirestoreStore) Subscribe(ctx context.Context, q Query, callback func([]Document, error)) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	snapshots := s.buildQuery(q).Snapshots(ctx)

	go func() {
		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled || err == iterator.Done {
					return
				}
				callback(nil, mapError(err))
				return
			}

			refs, err := snap.Documents.GetAll()
			if err != nil {
				callback(nil, mapError(err))
				continue
			}
			docs := make([]Document, 0, len(refs))
			for _, ref := range refs {
				docs = append(docs, Document{ID: ref.Ref.ID, Data: ref.Data()})
			}
			callback(docs, nil)
		}
	}()

	var once sync.Once
	return func() error {
		once.Do(func() {
			cancel()
			snapshots.Stop()
		})
		return nil
	}, nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection, id string, payload map[string]any) (string, error) {
	coll := s.client.Collection(collection)
	ref := coll.NewDoc()
	if id != "" {
		ref = coll.Doc(id)
	}
	if _, err := ref.Set(ctx, toFirestore(payload)); err != nil {
		return "", mapError(err)
	}
	return ref.ID, nil
}

// Update replaces an existing document. A missing document yields ErrNotFound.
func (s *FirestoreStore) Update(ctx context.Context, collection, id string, payload map[string]any) error {
	ref := s.client.Collection(collection).Doc(id)
	data := toFirestore(payload)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, data)
	})
	return mapError(err)
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return mapError(err)
}

func (s *FirestoreStore) buildQuery(q Query) firestore.Query {
	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, string(f.Op), f.Value)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

func toFirestore(payload map[string]any) map[string]any {
	clean := Sanitize(payload)
	for k, v := range clean {
		if _, ok := v.(serverTimestamp); ok {
			clean[k] = firestore.ServerTimestamp
		}
	}
	return clean
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
