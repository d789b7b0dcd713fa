package client

import (
	"context"
	"fmt"

	"craftchain/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func InitMongoClient(ctx context.Context, mongoCfg *config.Mongo) (*mongo.Client, *mongo.Database, error) {
	clientOptions := options.Client().ApplyURI(mongoCfg.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(mongoCfg.Database), nil
}
