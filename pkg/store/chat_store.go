package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
)

// maxReferenceURLs caps how many source references are persisted per chat.
const maxReferenceURLs = 10

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string        `json:"uri"`
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultMongoConfig returns the default chat store settings.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "forsa",
		Collection: "chats",
		Timeout:    10 * time.Second,
	}
}

// QAMap is a nested question mapping, category to question ID to text.
// The same shape carries questions on the way in and answers on the way out.
type QAMap map[string]map[string]string

// ChatRecord is one persisted question/answer exchange. Question and
// Response are isomorphic nested maps.
type ChatRecord struct {
	ID            string    `bson:"_id" json:"id"`
	Equipe        string    `bson:"equipe,omitempty" json:"equipe,omitempty"`
	Question      QAMap     `bson:"question" json:"question"`
	Response      QAMap     `bson:"response" json:"response"`
	ReferenceURLs []string  `bson:"reference_urls,omitempty" json:"reference_urls,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// SingleQA wraps a lone question/answer pair into the nested map shape,
// keyed by category (or "general" when none was given).
func SingleQA(category, text string) QAMap {
	if category == "" {
		category = "general"
	}
	return QAMap{category: {"1": text}}
}

// ChatStore persists chat history in MongoDB.
type ChatStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewChatStore connects to MongoDB and verifies the connection.
func NewChatStore(ctx context.Context, config *MongoConfig, logger *slog.Logger) (*ChatStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("Connected to MongoDB",
		"database", config.Database,
		"collection", config.Collection,
	)

	return &ChatStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		logger:     logger.With("component", "chat-store"),
	}, nil
}

// Create persists a new chat exchange and returns the stored record.
// Reference URLs beyond the cap are dropped.
func (s *ChatStore) Create(ctx context.Context, equipe string, question, response QAMap, referenceURLs []string) (*ChatRecord, error) {
	builder := apperrors.NewErrorBuilder("store", "create_chat", s.logger)

	if !hasQuestionText(question) {
		return nil, builder.ValidationError("empty_question", "question cannot be empty")
	}
	if len(referenceURLs) > maxReferenceURLs {
		referenceURLs = referenceURLs[:maxReferenceURLs]
	}

	record := &ChatRecord{
		ID:            uuid.NewString(),
		Equipe:        equipe,
		Question:      question,
		Response:      response,
		ReferenceURLs: referenceURLs,
		CreatedAt:     time.Now().UTC(),
	}

	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		return nil, builder.DatabaseError("failed to insert chat record", err)
	}
	return record, nil
}

// GetAll returns chat history, newest first.
func (s *ChatStore) GetAll(ctx context.Context, limit int64) ([]ChatRecord, error) {
	builder := apperrors.NewErrorBuilder("store", "list_chats", s.logger)

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, builder.DatabaseError("failed to query chat records", err)
	}
	defer cursor.Close(ctx)

	records := make([]ChatRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, builder.DatabaseError("failed to decode chat records", err)
	}
	return records, nil
}

// GetByID returns one chat record, or a typed not-found error.
func (s *ChatStore) GetByID(ctx context.Context, id string) (*ChatRecord, error) {
	builder := apperrors.NewErrorBuilder("store", "get_chat", s.logger)

	var record ChatRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, builder.NotFoundError("chat", id)
		}
		return nil, builder.DatabaseError("failed to fetch chat record", err)
	}
	return &record, nil
}

// Delete removes one chat record, or returns a typed not-found error.
func (s *ChatStore) Delete(ctx context.Context, id string) error {
	builder := apperrors.NewErrorBuilder("store", "delete_chat", s.logger)

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return builder.DatabaseError("failed to delete chat record", err)
	}
	if result.DeletedCount == 0 {
		return builder.NotFoundError("chat", id)
	}
	return nil
}

func hasQuestionText(question QAMap) bool {
	for _, byID := range question {
		for _, text := range byID {
			if strings.TrimSpace(text) != "" {
				return true
			}
		}
	}
	return false
}

// Close disconnects from MongoDB.
func (s *ChatStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
