package mongo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const RecordsCollection = "cart_records"

type IndexConfig struct {
	CollectionName string
	IndexModel     mongo.IndexModel
}

var requiredIndexes = []IndexConfig{
	// stale cart sweeps
	{
		CollectionName: RecordsCollection,
		IndexModel: mongo.IndexModel{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_cart_updated_at"),
		},
	},
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, idxConfig := range requiredIndexes {
		indexName, err := db.Collection(idxConfig.CollectionName).Indexes().CreateOne(ctx, idxConfig.IndexModel)
		if err != nil {
			return fmt.Errorf("failed to create index on collection %s: %w", idxConfig.CollectionName, err)
		}
		log.Info().Str("index", indexName).Str("collection", idxConfig.CollectionName).Msg("index ensured")
	}
	return nil
}
