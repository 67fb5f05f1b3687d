package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/memengine"
	"github.com/hydromelvictor/gogoose/odm/mongoengine"
	"github.com/hydromelvictor/gogoose/odm/postgresengine"
)

var ErrConnectingFailed = errors.New("connecting to the store failed")

// storeOpener opens the store named by cfg. The returned function releases its connections.
type storeOpener func(ctx context.Context, cfg config, logger odm.Logger) (odm.Store, func(), error)

func openStore(ctx context.Context, cfg config, logger odm.Logger) (odm.Store, func(), error) {
	switch cfg.Engine {
	case enginePostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, errors.Join(ErrConnectingFailed, err)
		}

		store, err := postgresengine.NewStoreFromPGXPool(pool, postgresengine.WithLogger(logger))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		return store, pool.Close, nil

	case engineMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, nil, errors.Join(ErrConnectingFailed, err)
		}

		disconnect := func() { _ = client.Disconnect(context.Background()) }

		store, err := mongoengine.NewStore(client, cfg.Database, mongoengine.WithLogger(logger))
		if err != nil {
			disconnect()
			return nil, nil, err
		}

		return store, disconnect, nil

	default:
		store, err := memengine.New(memengine.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}

		return store, func() {}, nil
	}
}
