// Package mongo provides a store.Store backed by MongoDB, an alternative to
// store/inmem for deployments that need the Paused-State Store to survive a
// process restart independent of the Cache API backend. Sliding TTL is
// enforced natively via a Mongo TTL index on expires_at rather than
// re-implemented in application code.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/store"
)

const defaultCollection = "atp_executions"

// recordDocument is the on-disk shape: the execution.Record itself is kept
// as an opaque JSON blob (matching store/inmem's own encoding) so the
// document schema doesn't have to track every Record field change, with
// tenant/expires_at broken out as real fields because those are what the
// TTL index and any future tenant-scoped query need.
type recordDocument struct {
	ID        string    `bson:"_id"`
	Tenant    string    `bson:"tenant"`
	Data      []byte    `bson:"data"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// collection hides the driver's option-builder types behind plain Go
// signatures so this package's own interface doesn't have to track the
// mongo-driver major version's option API.
type collection interface {
	FindOne(ctx context.Context, id string) (recordDocument, bool, error)
	Upsert(ctx context.Context, doc recordDocument) error
	Delete(ctx context.Context, id string) error
	EnsureTTLIndex(ctx context.Context) error
}

// Store implements store.Store against a MongoDB collection.
type Store struct {
	coll collection

	locksMu sync.Mutex
	locks   map[atp.ExecutionID]*sync.Mutex
}

// New builds a Store using the given database/collection on client. It
// ensures the TTL index exists before returning.
func New(client *mongodriver.Client, database, collectionName string) (*Store, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	if database == "" {
		return nil, errors.New("database name is required")
	}
	if collectionName == "" {
		collectionName = defaultCollection
	}
	coll := mongoCollection{coll: client.Database(database).Collection(collectionName)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coll.EnsureTTLIndex(ctx); err != nil {
		return nil, err
	}
	return newStore(coll), nil
}

func newStore(coll collection) *Store {
	return &Store{coll: coll, locks: map[atp.ExecutionID]*sync.Mutex{}}
}

func (s *Store) Save(ctx context.Context, rec execution.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	doc := recordDocument{
		ID:        string(rec.ID),
		Tenant:    rec.Tenant,
		Data:      data,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	return s.coll.Upsert(ctx, doc)
}

func (s *Store) Load(ctx context.Context, id atp.ExecutionID) (execution.Record, error) {
	doc, ok, err := s.coll.FindOne(ctx, string(id))
	if err != nil {
		return execution.Record{}, err
	}
	if !ok {
		return execution.Record{}, store.ErrNotFound
	}
	var rec execution.Record
	if err := json.Unmarshal(doc.Data, &rec); err != nil {
		return execution.Record{}, err
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id atp.ExecutionID) error {
	return s.coll.Delete(ctx, string(id))
}

// Lock serializes resumes within this process. Mongo gives the store
// durability across restarts, not distributed locking; a multi-replica
// deployment still needs a cross-process lock (e.g. a lease document with
// findOneAndUpdate), which this package does not yet implement.
func (s *Store) Lock(_ context.Context, id atp.ExecutionID) (func(), error) {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return func() { mu.Unlock() }, nil
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, id string) (recordDocument, bool, error) {
	var doc recordDocument
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return recordDocument{}, false, nil
		}
		return recordDocument{}, false, err
	}
	return doc, true, nil
}

func (c mongoCollection) Upsert(ctx context.Context, doc recordDocument) error {
	filter := bson.M{"_id": doc.ID}
	update := bson.M{"$set": bson.M{
		"tenant":     doc.Tenant,
		"data":       doc.Data,
		"expires_at": doc.ExpiresAt,
	}}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (c mongoCollection) Delete(ctx context.Context, id string) error {
	_, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (c mongoCollection) EnsureTTLIndex(ctx context.Context) error {
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	_, err := c.coll.Indexes().CreateOne(ctx, idx)
	return err
}
