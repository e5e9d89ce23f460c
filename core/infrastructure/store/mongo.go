package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
	apperrors "github.com/hyperterse/widgetquery/core/shared/errors"
)

const (
	DefaultMongoDatabase   = "widgetquery"
	DefaultMongoCollection = "widgets"
)

// widgetDocument keeps the definition as its JSON form so parameter sources
// round-trip through the same codec as the other stores
type widgetDocument struct {
	ID         string    `bson:"_id"`
	Definition string    `bson:"definition"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// MongoStore keeps widget definitions in a MongoDB collection
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        logging.Logger
}

var (
	_ interfaces.WidgetStore  = (*MongoStore)(nil)
	_ interfaces.WidgetWriter = (*MongoStore)(nil)
)

// OpenMongoStore connects to uri and uses database/collection, defaulting to
// widgetquery/widgets
func OpenMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	log := logging.New("store:mongodb")
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}

	log.Debugf("Opening MongoDB connection")
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Debugf("Using collection %s.%s", database, collection)
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		log:        log,
	}, nil
}

// GetWidgetDefinition returns the widget or NOT_FOUND
func (s *MongoStore) GetWidgetDefinition(ctx context.Context, id string) (*domain.WidgetDefinition, error) {
	var doc widgetDocument
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load widget '%s': %w", id, err)
	}
	return decodeWidget(doc.ID, []byte(doc.Definition))
}

// ListWidgetDefinitions returns all widgets ordered by id
func (s *MongoStore) ListWidgetDefinitions(ctx context.Context) ([]*domain.WidgetDefinition, error) {
	cursor, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domain.WidgetDefinition
	for cursor.Next(ctx) {
		var doc widgetDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		w, err := decodeWidget(doc.ID, []byte(doc.Definition))
		if err != nil {
			s.log.Warnf("Skipping widget '%s': %v", doc.ID, err)
			continue
		}
		out = append(out, w)
	}
	return out, cursor.Err()
}

// PutWidgetDefinition validates w and upserts it
func (s *MongoStore) PutWidgetDefinition(ctx context.Context, w *domain.WidgetDefinition) error {
	if err := Check(w); err != nil {
		return apperrors.NewAppError(apperrors.ErrCodeValidationError, err.Error(), err)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}

	doc := widgetDocument{ID: w.ID, Definition: string(raw), UpdatedAt: time.Now().UTC()}
	_, err = s.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: w.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store widget '%s': %w", w.ID, err)
	}
	return nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
