// Package mongodb stores metadata records in MongoDB. Filters are lowered to
// query documents over the data field; batch writes run in a transaction.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	RecordsCollection = "metadata"
	AliasCollection   = "metadata_alias"
	IndexCollection   = "metadata_index"
)

var _ repository.MetadataStore = (*Store)(nil)

// Config selects the database and whether multi-document writes use
// transactions (which need a replica set).
type Config struct {
	URI             string
	Database        string
	UseTransactions bool
}

// Store implements repository.MetadataStore on MongoDB
type Store struct {
	client          *mongo.Client
	records         *mongo.Collection
	aliases         *mongo.Collection
	indexes         *IndexOperations
	useTransactions bool
	logger          logger.Logger
	now             func() time.Time
}

// Connect dials MongoDB, verifies the connection and prepares collections
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	store := NewStore(client, client.Database(cfg.Database), cfg.UseTransactions, log)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// NewStore builds a store over an existing client
func NewStore(client *mongo.Client, db *mongo.Database, useTransactions bool, log logger.Logger) *Store {
	records := db.Collection(RecordsCollection)
	log = log.WithComponent("mongodb-store")
	return &Store{
		client:          client,
		records:         records,
		aliases:         db.Collection(AliasCollection),
		indexes:         NewIndexOperations(db.Collection(IndexCollection), records.Indexes(), log),
		useTransactions: useTransactions,
		logger:          log,
		now:             time.Now,
	}
}

// EnsureSchema creates the secondary indexes the store relies on
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.aliases.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guid", Value: 1}},
		Options: options.Index().SetName("alias_guid_idx"),
	})
	if err != nil {
		return apperrors.WrapStoreError(err, "failed to create alias index")
	}
	_, err = s.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "baseid", Value: 1}},
		Options: options.Index().SetName("baseid_idx").SetSparse(true),
	})
	return apperrors.WrapStoreError(err, "failed to create baseid index")
}

func notFound(guid string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
}

// withTransaction runs fn atomically when transactions are enabled
func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.useTransactions {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return apperrors.WrapStoreError(err, "failed to start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) Get(ctx context.Context, guid string) (*model.MetadataRecord, error) {
	var doc recordDocument
	err := s.records.FindOne(ctx, bson.M{"_id": guid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(guid)
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read record")
	}
	return doc.toModel(), nil
}

func (s *Store) List(ctx context.Context, q repository.ListQuery) ([]*model.MetadataRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.records.Find(ctx, buildMongoFilter(q.Filter), opts)
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to query records")
	}
	defer cursor.Close(ctx)

	out := make([]*model.MetadataRecord, 0)
	for cursor.Next(ctx) {
		var doc recordDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, apperrors.WrapStoreError(err, "failed to decode record")
		}
		out = append(out, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to iterate records")
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, records []*model.MetadataRecord, overwrite bool) error {
	now := s.now().UTC()
	docs := make([]interface{}, 0, len(records))
	for _, rec := range records {
		doc := toDocument(rec)
		if doc.CreatedDate == nil {
			doc.CreatedDate = &now
		}
		docs = append(docs, doc)
	}

	err := s.withTransaction(ctx, func(ctx context.Context) error {
		if overwrite {
			for _, d := range docs {
				doc := d.(recordDocument)
				_, err := s.records.ReplaceOne(ctx, bson.M{"_id": doc.GUID}, doc, options.Replace().SetUpsert(true))
				if err != nil {
					return err
				}
			}
			return nil
		}
		if !s.useTransactions {
			// best effort without a transaction: refuse the whole batch up front
			if err := s.requireAbsent(ctx, records); err != nil {
				return err
			}
		}
		_, err := s.records.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.NewConflictError("one or more guids already exist").WithCause(err)
	}
	return apperrors.WrapStoreError(err, "failed to create records")
}

func (s *Store) Update(ctx context.Context, guid string, data map[string]interface{}, merge bool) (*model.MetadataRecord, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	var update interface{}
	if merge {
		update = mongo.Pipeline{
			{{Key: "$set", Value: bson.D{{Key: dataField, Value: bson.D{{
				Key: "$mergeObjects", Value: bson.A{"$" + dataField, bson.D{{Key: "$literal", Value: data}}},
			}}}}}},
		}
	} else {
		update = bson.M{"$set": bson.M{dataField: data}}
	}

	var doc recordDocument
	err := s.records.FindOneAndUpdate(ctx, bson.M{"_id": guid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(guid)
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to update record")
	}
	return doc.toModel(), nil
}

func (s *Store) Delete(ctx context.Context, guid string) (*model.MetadataRecord, error) {
	var doc recordDocument
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		if err := s.records.FindOneAndDelete(ctx, bson.M{"_id": guid}).Decode(&doc); err != nil {
			return err
		}
		_, err := s.aliases.DeleteMany(ctx, bson.M{"guid": guid})
		return err
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(guid)
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to delete record")
	}
	return doc.toModel(), nil
}

func (s *Store) requireAbsent(ctx context.Context, records []*model.MetadataRecord) error {
	guids := make(bson.A, 0, len(records))
	for _, rec := range records {
		guids = append(guids, rec.GUID)
	}
	n, err := s.records.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": guids}})
	if err != nil {
		return err
	}
	if n > 0 {
		return apperrors.NewConflictError("one or more guids already exist")
	}
	return nil
}

func (s *Store) requireRecord(ctx context.Context, guid string) error {
	n, err := s.records.CountDocuments(ctx, bson.M{"_id": guid}, options.Count().SetLimit(1))
	if err != nil {
		return apperrors.WrapStoreError(err, "failed to look up record")
	}
	if n == 0 {
		return notFound(guid)
	}
	return nil
}

func (s *Store) GetAlias(ctx context.Context, alias string) (string, error) {
	var doc aliasDocument
	err := s.aliases.FindOne(ctx, bson.M{"_id": alias}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("alias %q", alias))
	}
	if err != nil {
		return "", apperrors.WrapStoreError(err, "failed to read alias")
	}
	return doc.GUID, nil
}

func (s *Store) ListAliases(ctx context.Context, guid string) ([]string, error) {
	if err := s.requireRecord(ctx, guid); err != nil {
		return nil, err
	}
	cursor, err := s.aliases.Find(ctx, bson.M{"guid": guid}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to list aliases")
	}
	var docs []aliasDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to decode aliases")
	}
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Alias)
	}
	return out, nil
}

func aliasDocs(guid string, aliases []string) []interface{} {
	docs := make([]interface{}, 0, len(aliases))
	for _, a := range aliases {
		docs = append(docs, aliasDocument{Alias: a, GUID: guid})
	}
	return docs
}

func (s *Store) CreateAliases(ctx context.Context, guid string, aliases []string) error {
	if err := s.requireRecord(ctx, guid); err != nil {
		return err
	}
	if len(aliases) == 0 {
		return nil
	}
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		_, err := s.aliases.InsertMany(ctx, aliasDocs(guid, aliases))
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.NewConflictError("one or more aliases already exist").WithCause(err)
	}
	return apperrors.WrapStoreError(err, "failed to create aliases")
}

func (s *Store) ReplaceAliases(ctx context.Context, guid string, aliases []string) error {
	if err := s.requireRecord(ctx, guid); err != nil {
		return err
	}
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		taken, err := s.aliases.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": aliases}, "guid": bson.M{"$ne": guid}})
		if err != nil {
			return err
		}
		if taken > 0 {
			return apperrors.NewConflictError("one or more aliases belong to another guid")
		}
		if _, err := s.aliases.DeleteMany(ctx, bson.M{"guid": guid}); err != nil {
			return err
		}
		if len(aliases) == 0 {
			return nil
		}
		_, err = s.aliases.InsertMany(ctx, aliasDocs(guid, aliases))
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.NewConflictError("one or more aliases already exist").WithCause(err)
	}
	return apperrors.WrapStoreError(err, "failed to replace aliases")
}

func (s *Store) DeleteAlias(ctx context.Context, guid, alias string) error {
	res, err := s.aliases.DeleteOne(ctx, bson.M{"_id": alias, "guid": guid})
	if err != nil {
		return apperrors.WrapStoreError(err, "failed to delete alias")
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("alias %q for guid %q", alias, guid))
	}
	return nil
}

func (s *Store) DeleteAliases(ctx context.Context, guid string) error {
	if err := s.requireRecord(ctx, guid); err != nil {
		return err
	}
	_, err := s.aliases.DeleteMany(ctx, bson.M{"guid": guid})
	return apperrors.WrapStoreError(err, "failed to delete aliases")
}

func (s *Store) ListIndexPaths(ctx context.Context) ([]string, error) {
	return s.indexes.List(ctx)
}

func (s *Store) CreateIndexPath(ctx context.Context, path string) error {
	return s.indexes.Create(ctx, path)
}

func (s *Store) DeleteIndexPath(ctx context.Context, path string) error {
	return s.indexes.Delete(ctx, path)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
