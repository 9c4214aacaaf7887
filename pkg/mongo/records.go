package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"uchef.app/cart-api/pkg/cart"
)

type cartRecord struct {
	Key       string    `bson:"_id"`
	Snapshot  string    `bson:"snapshot"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// CartStorage keeps one document per cart record, keyed by the record key
type CartStorage struct {
	db         *mongo.Database
	collection *mongo.Collection
	now        func() time.Time
}

func NewCartStorage(db *mongo.Database) *CartStorage {
	return &CartStorage{
		db:         db,
		collection: db.Collection(RecordsCollection),
		now:        time.Now,
	}
}

func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var rec cartRecord
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, cart.ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", key, err)
	}
	return []byte(rec.Snapshot), nil
}

func (s *CartStorage) Save(ctx context.Context, key string, data []byte) error {
	rec := cartRecord{Key: key, Snapshot: string(data), UpdatedAt: s.now().UTC()}
	_, err := s.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *CartStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *CartStorage) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *CartStorage) Close() error {
	return s.db.Client().Disconnect(context.Background())
}
