package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rendis/flowcanvas/pkg/schema"
)

const (
	mongoElements  = "elements"
	mongoSyncState = "sync_state"
)

// mongoDoc is the stored form of a Record. Fields are kept as a JSON string
// so nested arrays and objects come back exactly as they went in.
type mongoDoc struct {
	ID        string     `bson:"_id"`
	Type      string     `bson:"type"`
	Body      string     `bson:"body"`
	Version   int        `bson:"version"`
	Source    string     `bson:"source,omitempty"`
	Seq       int64      `bson:"seq"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
	SyncedAt  *time.Time `bson:"syncedAt,omitempty"`
}

type mongoSync struct {
	ID          int       `bson:"_id"`
	BeforeCount int       `bson:"beforeCount"`
	AfterCount  int       `bson:"afterCount"`
	SyncedAt    time.Time `bson:"syncedAt"`
}

// MongoStore implements ElementStore on a MongoDB collection. Batch and
// replace operations are not transactional; a failed batch may leave a
// prefix of its records inserted.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	seq    atomic.Int64
}

// NewMongoStore connects to uri and uses the named database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	s.seq.Store(time.Now().UnixNano())
	return s, nil
}

func (s *MongoStore) elements() *mongo.Collection { return s.db.Collection(mongoElements) }

// Migrate creates the collection indexes.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.elements().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "seq", Value: 1}}},
	})
	if err != nil {
		return storeError("create indexes", err)
	}
	return nil
}

func (s *MongoStore) toDoc(r *Record) (*mongoDoc, error) {
	body, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal element %s: %w", r.ID, err)
	}
	return &mongoDoc{
		ID:        r.ID,
		Type:      string(r.Type),
		Body:      string(body),
		Version:   r.Version,
		Source:    r.Source,
		Seq:       s.seq.Add(1),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		SyncedAt:  r.SyncedAt,
	}, nil
}

func fromDoc(d *mongoDoc) (*Record, error) {
	r := &Record{
		ID:        d.ID,
		Type:      schema.ElementType(d.Type),
		Version:   d.Version,
		Source:    d.Source,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		SyncedAt:  d.SyncedAt,
	}
	if err := json.Unmarshal([]byte(d.Body), &r.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal element %s: %w", d.ID, err)
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	return r, nil
}

func (s *MongoStore) Create(ctx context.Context, r *Record) (*Record, error) {
	c := prepareNew(r, nowUTC())
	doc, err := s.toDoc(c)
	if err != nil {
		return nil, err
	}
	if _, err := s.elements().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, storeConflict(c.ID)
		}
		return nil, storeError("create element", err)
	}
	return c, nil
}

func (s *MongoStore) getDoc(ctx context.Context, id string) (*mongoDoc, error) {
	var d mongoDoc
	err := s.elements().FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storeNotFound(id)
	}
	if err != nil {
		return nil, storeError("get element", err)
	}
	return &d, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Record, error) {
	d, err := s.getDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromDoc(d)
}

// Update uses the stored version as an optimistic lock.
func (s *MongoStore) Update(ctx context.Context, id string, fields map[string]any) (*Record, error) {
	d, err := s.getDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := fromDoc(d)
	if err != nil {
		return nil, err
	}
	if err := applyUpdate(r, fields, nowUTC()); err != nil {
		return nil, err
	}
	next, err := s.toDoc(r)
	if err != nil {
		return nil, err
	}
	next.Seq = d.Seq

	res, err := s.elements().ReplaceOne(ctx, bson.M{"_id": id, "version": d.Version}, next)
	if err != nil {
		return nil, storeError("update element", err)
	}
	if res.MatchedCount == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "element %q changed concurrently", id).WithElement(id)
	}
	return r, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.elements().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeError("delete element", err)
	}
	if res.DeletedCount == 0 {
		return storeNotFound(id)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, filter ElementFilter) ([]*Record, error) {
	query := bson.M{}
	if filter.Type != "" {
		query["type"] = string(filter.Type)
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if len(filter.Fields) == 0 && filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit)).SetSkip(int64(filter.Offset))
	}

	cur, err := s.elements().Find(ctx, query, opts)
	if err != nil {
		return nil, storeError("list elements", err)
	}
	var docs []*mongoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, storeError("decode elements", err)
	}

	recs := make([]*Record, 0, len(docs))
	for _, d := range docs {
		r, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if len(filter.Fields) == 0 && filter.Limit > 0 {
		return recs, nil
	}
	return page(recs, filter), nil
}

func (s *MongoStore) insertAll(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]any, len(recs))
	for i, r := range recs {
		d, err := s.toDoc(r)
		if err != nil {
			return err
		}
		docs[i] = d
	}
	if _, err := s.elements().InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return schema.NewError(schema.ErrCodeConflict, "duplicate element id in batch").WithCause(err)
		}
		return storeError("insert elements", err)
	}
	return nil
}

func (s *MongoStore) BatchCreate(ctx context.Context, recs []*Record) ([]*Record, error) {
	now := nowUTC()
	out := make([]*Record, len(recs))
	for i, r := range recs {
		out[i] = prepareNew(r, now)
	}
	if err := s.insertAll(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert writes documents one by one. Unlike the SQL store it is not atomic:
// a failure part way leaves the earlier records written.
func (s *MongoStore) Upsert(ctx context.Context, recs []*Record) ([]*Record, error) {
	now := nowUTC()
	out := make([]*Record, len(recs))
	for i, r := range recs {
		var d *mongoDoc
		if r.ID != "" {
			var err error
			d, err = s.getDoc(ctx, r.ID)
			if err != nil && schema.CodeOf(err) != schema.ErrCodeNotFound {
				return nil, err
			}
		}
		if d == nil {
			c, err := s.Create(ctx, r)
			if err != nil {
				return nil, err
			}
			out[i] = c
			continue
		}

		prev, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		c := prepareOverwrite(r, prev, now)
		next, err := s.toDoc(c)
		if err != nil {
			return nil, err
		}
		next.Seq = d.Seq
		res, err := s.elements().ReplaceOne(ctx, bson.M{"_id": c.ID, "version": d.Version}, next)
		if err != nil {
			return nil, storeError("overwrite element", err)
		}
		if res.MatchedCount == 0 {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "element %q changed concurrently", c.ID).WithElement(c.ID)
		}
		out[i] = c
	}
	return out, nil
}

func (s *MongoStore) Replace(ctx context.Context, recs []*Record) (*SyncResult, error) {
	res := &SyncResult{SyncedAt: nowUTC()}
	before, err := s.elements().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, storeError("count elements", err)
	}
	res.BeforeCount = int(before)

	if _, err := s.elements().DeleteMany(ctx, bson.M{}); err != nil {
		return nil, storeError("clear elements", err)
	}

	// Keep the last record per id, in first-seen order.
	index := make(map[string]int, len(recs))
	var fresh []*Record
	for _, r := range recs {
		c := prepareNew(r, res.SyncedAt)
		c.SyncedAt = &res.SyncedAt
		if i, ok := index[c.ID]; ok {
			fresh[i] = c
			continue
		}
		index[c.ID] = len(fresh)
		fresh = append(fresh, c)
	}
	if err := s.insertAll(ctx, fresh); err != nil {
		return nil, err
	}
	res.AfterCount = len(fresh)

	state := mongoSync{ID: 1, BeforeCount: res.BeforeCount, AfterCount: res.AfterCount, SyncedAt: res.SyncedAt}
	if _, err := s.db.Collection(mongoSyncState).ReplaceOne(ctx, bson.M{"_id": 1}, state,
		options.Replace().SetUpsert(true)); err != nil {
		return nil, storeError("record sync", err)
	}
	return res, nil
}

func (s *MongoStore) LastSync(ctx context.Context) (*SyncResult, error) {
	var state mongoSync
	err := s.db.Collection(mongoSyncState).FindOne(ctx, bson.M{"_id": 1}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read sync state", err)
	}
	return &SyncResult{BeforeCount: state.BeforeCount, AfterCount: state.AfterCount, SyncedAt: state.SyncedAt.UTC()}, nil
}

func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.elements().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, storeError("count elements", err)
	}
	return int(n), nil
}

// Vacuum is a no-op; storage compaction is left to the server.
func (s *MongoStore) Vacuum(context.Context) error { return nil }

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
