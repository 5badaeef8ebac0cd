package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/chatlist-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoStore struct {
	client  *mongo.Client
	msgColl *mongo.Collection
	users   *mongo.Collection
	timeout time.Duration
}

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable("mongo connect", err)
	}
	return client, nil
}

// NewMongoStore wraps the messages and users collections of db and makes sure
// the indexes the aggregation relies on exist.
func NewMongoStore(ctx context.Context, client *mongo.Client, db, messages, users string, timeout time.Duration) (*MongoStore, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	s := &MongoStore{
		client:  client,
		msgColl: client.Database(db).Collection(messages),
		users:   client.Database(db).Collection(users),
		timeout: timeout,
	}
	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.msgColl.Indexes().CreateMany(ictx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("sender_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("recipient_created_idx"),
		},
	})
	if err != nil {
		return nil, unavailable("mongo indexes", err)
	}
	return s, nil
}

// latestPipeline groups the messages of userID by counterpart, keeps the newest
// message of each group and joins the counterpart profile.
func latestPipeline(userID, usersColl string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"recipient_id": userID},
		}}}},
		{{Key: "$addFields", Value: bson.M{"counterpart": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$sender_id", userID}}, "$recipient_id", "$sender_id",
		}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$counterpart"},
			{Key: "message_id", Value: bson.M{"$first": "$_id"}},
			{Key: "content", Value: bson.M{"$first": "$content"}},
			{Key: "created_at", Value: bson.M{"$first": "$created_at"}},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         usersColl,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$user", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{
			"message_id":      1,
			"content":         1,
			"created_at":      1,
			"name":            "$user.name",
			"profile_picture": "$user.profile_picture",
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func (r *MongoStore) LatestPerCounterpart(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cur, err := r.msgColl.Aggregate(ctx, latestPipeline(userID, r.users.Name()), options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, unavailable("mongo aggregate", err)
	}
	defer cur.Close(ctx)

	out := []domain.ConversationSummary{}
	for cur.Next(ctx) {
		var s domain.ConversationSummary
		if err := cur.Decode(&s); err != nil {
			return nil, malformed("mongo decode", err)
		}
		s.LastMessageAt = s.LastMessageAt.UTC()
		out = append(out, s)
	}
	if err := cur.Err(); err != nil {
		return nil, unavailable("mongo cursor", err)
	}
	if err := checkSummaries("mongo latest", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoStore) UpsertUser(ctx context.Context, u domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return unavailable("mongo upsert user", err)
	}
	return nil
}

func (r *MongoStore) SaveMessage(ctx context.Context, m domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	m = m.Normalized()
	doc := bson.M{
		"sender_id":    m.SenderID,
		"recipient_id": m.RecipientID,
		"content":      m.Content,
		"created_at":   m.CreatedAt,
	}
	_, err := r.msgColl.UpdateOne(ctx, bson.M{"_id": m.ID}, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return unavailable("mongo save message", err)
	}
	return nil
}

func (r *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("mongo ping", err)
	}
	return nil
}

func (r *MongoStore) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
