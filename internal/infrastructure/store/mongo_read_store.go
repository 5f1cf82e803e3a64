package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoReadStore keeps each read model collection in its own Mongo collection.
// Documents are the JSON form of the read model with the id as _id.
type MongoReadStore struct {
	db     *mongo.Database
	decode Decoder
}

func NewMongoReadStore(db *mongo.Database, decode Decoder) *MongoReadStore {
	return &MongoReadStore{db: db, decode: decode}
}

// ConnectMongo opens a client and verifies it with a ping
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

func toDocument(id string, data any) (bson.M, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = id
	return doc, nil
}

func (rs *MongoReadStore) fromDocument(collection string, raw bson.Raw) (any, error) {
	doc, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert %s document: %w", collection, err)
	}
	return rs.decode(collection, doc)
}

func (rs *MongoReadStore) Set(ctx context.Context, collection, id string, data any) error {
	doc, err := toDocument(id, data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = rs.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (rs *MongoReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	raw, err := rs.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	v, err := rs.fromDocument(collection, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (rs *MongoReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	cur, err := rs.db.Collection(collection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var items []any
	for cur.Next(ctx) {
		v, err := rs.fromDocument(collection, cur.Current)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, cur.Err()
}

func (rs *MongoReadStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := rs.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update is read-modify-write; projections are the single writer of a document.
func (rs *MongoReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	current, ok, err := rs.Get(ctx, collection, id)
	if err != nil || !ok {
		return false, err
	}
	if err := rs.Set(ctx, collection, id, updateFn(current)); err != nil {
		return false, err
	}
	return true, nil
}
