package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/service"
)

// metadataCollection holds one document per holder, keyed by holder id.
const metadataCollection = "account_metadata"

// ErrNilMongoConnection reports a repository built without a client.
var ErrNilMongoConnection = errors.New("mongo client is required")

// MetadataMongoRepository stores free-form account metadata documents.
// Upserts replace the whole document; metadata never participates in
// balance accounting.
type MetadataMongoRepository struct {
	client *Client
}

var _ service.MetadataRepository = (*MetadataMongoRepository)(nil)

// NewMetadataMongoRepository wires a metadata repository to the mongo client.
func NewMetadataMongoRepository(client *Client) (*MetadataMongoRepository, error) {
	if client == nil {
		return nil, ErrNilMongoConnection
	}

	return &MetadataMongoRepository{client: client}, nil
}

type metadataDocument struct {
	HolderID  string         `bson:"_id"`
	Metadata  map[string]any `bson:"metadata"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// Upsert replaces the holder's metadata document.
func (r *MetadataMongoRepository) Upsert(ctx context.Context, holderID string, metadata map[string]any) error {
	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "mongo.upsert_metadata")
	defer span.End()

	span.SetAttributes(
		attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB),
		attribute.String(constant.AttrDBMongoDBCollection, metadataCollection),
	)

	collection, err := r.collection(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to resolve metadata collection", err)

		return fmt.Errorf("resolving metadata collection: %w", err)
	}

	now := time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"metadata":   metadata,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)

	if _, err := collection.UpdateOne(ctx, bson.M{"_id": holderID}, update, opts); err != nil {
		opentelemetry.HandleSpanError(span, "Failed to upsert metadata document", err)
		logger.Log(ctx, log.LevelError, "failed to upsert metadata document",
			log.String("holder_id", holderID), log.Err(err))

		return fmt.Errorf("upserting metadata document: %w", err)
	}

	return nil
}

// Find returns the holder's metadata, or nil when none was ever stored.
func (r *MetadataMongoRepository) Find(ctx context.Context, holderID string) (map[string]any, error) {
	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "mongo.find_metadata")
	defer span.End()

	span.SetAttributes(
		attribute.String(constant.AttrDBSystem, constant.DBSystemMongoDB),
		attribute.String(constant.AttrDBMongoDBCollection, metadataCollection),
	)

	collection, err := r.collection(ctx)
	if err != nil {
		opentelemetry.HandleSpanError(span, "Failed to resolve metadata collection", err)

		return nil, fmt.Errorf("resolving metadata collection: %w", err)
	}

	var document metadataDocument

	if err := collection.FindOne(ctx, bson.M{"_id": holderID}).Decode(&document); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}

		opentelemetry.HandleSpanError(span, "Failed to find metadata document", err)
		logger.Log(ctx, log.LevelError, "failed to find metadata document",
			log.String("holder_id", holderID), log.Err(err))

		return nil, fmt.Errorf("finding metadata document: %w", err)
	}

	if document.Metadata == nil {
		return map[string]any{}, nil
	}

	return document.Metadata, nil
}

// collection resolves the metadata collection, reconnecting lazily when the
// client dropped its connection.
func (r *MetadataMongoRepository) collection(ctx context.Context) (*mongo.Collection, error) {
	client, err := r.client.ResolveClient(ctx)
	if err != nil {
		return nil, err
	}

	databaseName, err := r.client.DatabaseName()
	if err != nil {
		return nil, err
	}

	return client.Database(databaseName).Collection(metadataCollection), nil
}
