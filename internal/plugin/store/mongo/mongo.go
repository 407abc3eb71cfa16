package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/metanexus/metadata-service/internal/config"
	registrymigrate "github.com/metanexus/metadata-service/internal/registry/migrate"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, &registrystore.StorageUnavailableError{Err: fmt.Errorf("connect to MongoDB: %w", err)}
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, &registrystore.StorageUnavailableError{Err: fmt.Errorf("ping MongoDB: %w", err)}
			}
			return &MongoStore{
				client: client,
				db:     client.Database(cfg.DBName),
			}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }

func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.DBName)

	collections := map[string][]mongo.IndexModel{
		registrystore.CollectionEntities: {
			{Keys: bson.D{{Key: "name", Value: 1}}},
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "deleted", Value: 1}}},
			{Keys: bson.D{{Key: "archived", Value: 1}}},
			{Keys: bson.D{{Key: "projects", Value: 1}}},
			{Keys: bson.D{{Key: "collections", Value: 1}}},
			{Keys: bson.D{{Key: "created", Value: 1}}},
		},
		registrystore.CollectionProjects: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "entities", Value: 1}}},
			{Keys: bson.D{{Key: "deleted", Value: 1}}},
		},
		registrystore.CollectionCollections: {
			{Keys: bson.D{{Key: "entities", Value: 1}}},
			{Keys: bson.D{{Key: "deleted", Value: 1}}},
		},
		registrystore.CollectionTemplates: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "archived", Value: 1}}},
		},
		registrystore.CollectionActivity: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "target.id", Value: 1}}},
			{Keys: bson.D{{Key: "actor", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		// Ensure collection exists before indexing.
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// MongoStore implements DocumentStore using MongoDB. Documents are encoded
// through the driver's bson codec; callers own the struct tags.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *MongoStore) collection(name string) *mongo.Collection { return s.db.Collection(name) }

func (s *MongoStore) GetOne(ctx context.Context, collection string, id string, out any) error {
	err := s.collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &registrystore.NotFoundError{Resource: collection, ID: id}
	}
	if err != nil {
		return &registrystore.StorageUnavailableError{Err: fmt.Errorf("find %s/%s: %w", collection, id, err)}
	}
	return nil
}

func (s *MongoStore) GetMany(ctx context.Context, collection string, ids []string, out any) error {
	cursor, err := s.collection(collection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return &registrystore.StorageUnavailableError{Err: fmt.Errorf("find many in %s: %w", collection, err)}
	}
	if err := cursor.All(ctx, out); err != nil {
		return &registrystore.StorageUnavailableError{Err: fmt.Errorf("decode many in %s: %w", collection, err)}
	}
	return nil
}

func (s *MongoStore) All(ctx context.Context, collection string, out any) error {
	cursor, err := s.collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return &registrystore.StorageUnavailableError{Err: fmt.Errorf("find all in %s: %w", collection, err)}
	}
	if err := cursor.All(ctx, out); err != nil {
		return &registrystore.StorageUnavailableError{Err: fmt.Errorf("decode all in %s: %w", collection, err)}
	}
	return nil
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc any) error {
	_, err := s.collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.ConflictError{Message: fmt.Sprintf("duplicate id in %s", collection)}
	}
	if err != nil {
		return &registrystore.StorageUnavailableError{Err: fmt.Errorf("insert into %s: %w", collection, err)}
	}
	return nil
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, id string, fields map[string]any) (bool, error) {
	result, err := s.collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return false, &registrystore.StorageUnavailableError{Err: fmt.Errorf("update %s/%s: %w", collection, id, err)}
	}
	return result.ModifiedCount == 1, nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, id string) error {
	result, err := s.collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return &registrystore.StorageUnavailableError{Err: fmt.Errorf("delete %s/%s: %w", collection, id, err)}
	}
	if result.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: collection, ID: id}
	}
	return nil
}

func (s *MongoStore) Exists(ctx context.Context, collection string, id string) (bool, error) {
	count, err := s.collection(collection).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, &registrystore.StorageUnavailableError{Err: fmt.Errorf("count %s/%s: %w", collection, id, err)}
	}
	return count > 0, nil
}

var _ registrystore.DocumentStore = (*MongoStore)(nil)
