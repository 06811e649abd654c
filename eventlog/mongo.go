package eventlog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoCollection 默认集合名
const DefaultMongoCollection = "turn_events"

// MongoStore MongoDB 文档存储
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore 创建 MongoDB 存储
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultMongoCollection
	}
	return &MongoStore{coll: db.Collection(collection)}
}

// EnsureIndexes 创建查询所需索引
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "started_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create turn event indexes: %w", err)
	}
	return nil
}

// Name 实现 Store
func (s *MongoStore) Name() string { return "mongo" }

// Append 实现 Store
func (s *MongoStore) Append(ctx context.Context, events ...TurnEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, len(events))
	for i := range events {
		docs[i] = events[i]
	}
	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert turn events: %w", err)
	}
	return nil
}

// List 实现 Store
func (s *MongoStore) List(ctx context.Context, q Query) ([]TurnEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(q.limit()))

	cur, err := s.coll.Find(ctx, mongoFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find turn events: %w", err)
	}
	var out []TurnEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode turn events: %w", err)
	}
	return out, nil
}

// Close 实现 Store；客户端归调用方所有
func (s *MongoStore) Close() error { return nil }

func mongoFilter(q Query) bson.D {
	filter := bson.D{}
	if q.SessionID != "" {
		filter = append(filter, bson.E{Key: "session_id", Value: q.SessionID})
	}
	if q.DeviceID != "" {
		filter = append(filter, bson.E{Key: "device_id", Value: q.DeviceID})
	}
	if !q.Since.IsZero() {
		filter = append(filter, bson.E{Key: "started_at", Value: bson.D{{Key: "$gte", Value: q.Since}}})
	}
	return filter
}
