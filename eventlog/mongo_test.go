package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// =============================================================================
// 🍃 MongoDB 存储测试
// =============================================================================

func TestMongoFilter(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query Query
		want  bson.D
	}{
		{"empty", Query{}, bson.D{}},
		{"session", Query{SessionID: "s1"}, bson.D{{Key: "session_id", Value: "s1"}}},
		{
			"all fields",
			Query{SessionID: "s1", DeviceID: "d1", Since: since},
			bson.D{
				{Key: "session_id", Value: "s1"},
				{Key: "device_id", Value: "d1"},
				{Key: "started_at", Value: bson.D{{Key: "$gte", Value: since}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mongoFilter(tt.query))
		})
	}
}

func TestMongoStore_Collection(t *testing.T) {
	// 驱动惰性连接，构造客户端不需要可用的服务器
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	store := NewMongoStore(client.Database("teddyvoice"), "")
	assert.Equal(t, DefaultMongoCollection, store.coll.Name())
	assert.Equal(t, "mongo", store.Name())
	assert.NoError(t, store.Append(context.Background()))
}

func TestTurnEvent_BSONFieldNames(t *testing.T) {
	raw, err := bson.Marshal(sampleEvent("t1", "s1", "d1", time.Now()))
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "t1", doc["_id"])
	assert.Equal(t, "s1", doc["session_id"])
	assert.Equal(t, "hello", doc["input_text"])
	assert.Contains(t, doc, "started_at")
}
