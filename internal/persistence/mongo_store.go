package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/docflow/pkg/api"
)

// MongoHistoryStore is a HistoryStore backed by MongoDB.
//
// Each instance is one document holding its entries in an array plus an
// entry count. Appends are conditional updates on the count, so they are
// atomic without multi-document transactions.
type MongoHistoryStore struct {
	coll *mongo.Collection
}

// Ensure it implements HistoryStore.
var _ HistoryStore = (*MongoHistoryStore)(nil)

// NewMongoHistoryStore creates a Mongo-backed history store.
// dbName defaults to "docflow" if empty, collName defaults to "history".
func NewMongoHistoryStore(client *mongo.Client, dbName, collName string) *MongoHistoryStore {
	if dbName == "" {
		dbName = "docflow"
	}
	if collName == "" {
		collName = "history"
	}

	return &MongoHistoryStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoEntryDoc struct {
	Seq        int64     `bson:"seq"`
	Kind       string    `bson:"kind"`
	Name       string    `bson:"name,omitempty"`
	RecordedAt time.Time `bson:"recorded_at"`
	Payload    []byte    `bson:"payload,omitempty"`
}

type mongoHistoryDoc struct {
	ID      string          `bson:"_id"`
	Count   int64           `bson:"count"`
	Entries []mongoEntryDoc `bson:"entries"`
}

func toMongoEntries(entries []api.HistoryEntry) []mongoEntryDoc {
	docs := make([]mongoEntryDoc, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, mongoEntryDoc{
			Seq:        e.Sequence,
			Kind:       string(e.Kind),
			Name:       e.Name,
			RecordedAt: e.RecordedAt,
			Payload:    e.Payload,
		})
	}
	return docs
}

func (s *MongoHistoryStore) Append(ctx context.Context, instanceID string, entries ...api.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	last := entries[0].Sequence - 1
	if err := checkContiguous(instanceID, last, entries); err != nil {
		return err
	}
	docs := toMongoEntries(entries)

	if last == 0 {
		_, err := s.coll.InsertOne(ctx, mongoHistoryDoc{
			ID:      instanceID,
			Count:   int64(len(docs)),
			Entries: docs,
		})
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: instance %s already exists", api.ErrSequenceConflict, instanceID)
		}
		return err
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": instanceID, "count": last},
		bson.M{
			"$push": bson.M{"entries": bson.M{"$each": docs}},
			"$inc":  bson.M{"count": len(docs)},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: instance %s is not at sequence %d", api.ErrSequenceConflict, instanceID, last)
	}
	return nil
}

func (s *MongoHistoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEntry, error) {
	var doc mongoHistoryDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": instanceID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, api.ErrInstanceNotFound
		}
		return nil, err
	}

	out := make([]api.HistoryEntry, 0, len(doc.Entries))
	for _, d := range doc.Entries {
		out = append(out, api.HistoryEntry{
			Sequence:   d.Seq,
			Kind:       api.EntryKind(d.Kind),
			Name:       d.Name,
			RecordedAt: d.RecordedAt.UTC(),
			Payload:    d.Payload,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MongoHistoryStore) InstanceIDs(ctx context.Context) ([]string, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}
