package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueue implements Queue on top of a MongoDB collection.
//
// Document schema:
//
//	{
//	  _id:        string,    // task ID
//	  payload:    []byte,    // gob-encoded Task
//	  not_before: int64,     // unix nanos
//	  created_at: time.Time,
//	}
//
// A task is claimed by FindOneAndDelete, so each task is handed to exactly
// one worker.
type MongoQueue struct {
	coll *mongo.Collection
	poll time.Duration
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "docflow", collName to "queue_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "docflow"
	}
	if collName == "" {
		collName = "queue_tasks"
	}
	return &MongoQueue{
		coll: client.Database(dbName).Collection(collName),
		poll: 100 * time.Millisecond,
	}
}

// Ensure MongoQueue implements Queue.
var _ Queue = (*MongoQueue)(nil)

type mongoQueueDoc struct {
	ID        string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	NotBefore int64     `bson:"not_before"`
	CreatedAt time.Time `bson:"created_at"`
}

// EnsureIndexes creates the index used to find the next due task.
func (q *MongoQueue) EnsureIndexes(ctx context.Context) error {
	_, err := q.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "not_before", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (q *MongoQueue) Enqueue(ctx context.Context, t Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.coll.InsertOne(ctx, mongoQueueDoc{
		ID:        t.ID,
		Payload:   data,
		NotBefore: t.due().UnixNano(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("enqueue task %s: %w", t.ID, err)
	}
	return nil
}

// Dequeue blocks (via polling) until a due task is available or ctx is
// cancelled.
func (q *MongoQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		filter := bson.M{"not_before": bson.M{"$lte": time.Now().UnixNano()}}
		opts := options.FindOneAndDelete().
			SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "created_at", Value: 1}})

		var doc mongoQueueDoc
		err := q.coll.FindOneAndDelete(ctx, filter, opts).Decode(&doc)
		if err == nil {
			return DecodeTask(doc.Payload)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}

		tmr.Reset(q.poll)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

// Len returns an approximate number of queued tasks.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		slog.Warn("mongo_queue_len_failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
