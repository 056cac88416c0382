package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaychat/relay/internal/domain"
)

// MessageRepo persists chat messages. Message ids are numeric and
// monotonically increasing, allocated from a counters collection.
type MessageRepo struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	coll := db.Collection("messages")
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("channel_ts_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), idx)
	return &MessageRepo{coll: coll, counters: db.Collection("counters")}
}

func (r *MessageRepo) nextID(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "messages"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// Create commits a new message and returns it with its allocated id and
// timestamp filled in.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	m.ID = id
	m.Timestamp = time.Now().UTC()
	_, err = r.coll.InsertOne(ctx, m)
	return err
}

// Get returns one message by channel and id.
func (r *MessageRepo) Get(ctx context.Context, channelID string, id int64) (*domain.Message, error) {
	var m domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "channel_id": channelID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateContent rewrites a message's content. Only the author may edit, so
// the filter carries the author id.
func (r *MessageRepo) UpdateContent(ctx context.Context, channelID string, id int64, authorID, content string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "channel_id": channelID, "author._id": authorID},
		bson.M{"$set": bson.M{"content": content}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, channelID string, id int64) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "channel_id": channelID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Fetch returns up to count messages of a channel in ascending timestamp
// order. A non-nil before bounds the page to strictly older messages; after
// bounds it to strictly newer ones.
func (r *MessageRepo) Fetch(ctx context.Context, channelID string, count int, after, before *time.Time) ([]domain.Message, error) {
	filter := bson.M{"channel_id": channelID}
	ts := bson.M{}
	if before != nil {
		ts["$lt"] = before.UTC()
	}
	if after != nil {
		ts["$gt"] = after.UTC()
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(count))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var desc []domain.Message
	if err := cur.All(ctx, &desc); err != nil {
		return nil, err
	}
	// newest-first from the index, flipped to the order clients render
	out := make([]domain.Message, len(desc))
	for i, m := range desc {
		out[len(desc)-1-i] = m
	}
	return out, nil
}
