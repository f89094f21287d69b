package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/persist/pkg/errors"
)

// MongoConfig configures a MongoStore.
type MongoConfig struct {
	URI        string
	Database   string // default "persist"
	Collection string // default "assets"
}

// MongoStore keeps documents in a MongoDB collection keyed by _id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo store needs a connection URI")
	}
	if cfg.Database == "" {
		cfg.Database = "persist"
	}
	if cfg.Collection == "" {
		cfg.Collection = "assets"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (s *MongoStore) Put(ctx context.Context, doc *Document) (*Document, error) {
	next, err := prepare(doc)
	if err != nil {
		return nil, err
	}

	if doc.Revision == "" {
		_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key}, next, options.Replace().SetUpsert(true))
		if err != nil {
			return nil, fmt.Errorf("write asset: %w", err)
		}
		return next, nil
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key, "revision": doc.Revision}, next)
	if err != nil {
		return nil, fmt.Errorf("write asset: %w", err)
	}
	if res.MatchedCount == 0 {
		old, err := s.Get(ctx, doc.Key)
		switch {
		case errors.Is(err, errors.ErrCodeNotFound):
			return nil, checkRevision(doc.Key, doc.Revision, "")
		case err != nil:
			return nil, err
		}
		if err := checkRevision(doc.Key, doc.Revision, old.Revision); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s changed during the write", ErrConflict, doc.Key)
	}
	return next, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (*Document, error) {
	var doc Document
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if res.DeletedCount == 0 {
		return notFound(key)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, prefix string) ([]Info, error) {
	filter := bson.M{}
	if prefix != "" {
		filter["_id"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer cur.Close(ctx)

	var infos []Info
	for cur.Next(ctx) {
		var doc Document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode asset: %w", err)
		}
		doc.UpdatedAt = doc.UpdatedAt.UTC()
		infos = append(infos, doc.Info())
	}
	return infos, cur.Err()
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ Store = (*MongoStore)(nil)
