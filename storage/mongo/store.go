// Package mongo implements storage.ConversationStore against MongoDB,
// grounded on the teacher's features/memory/mongo package: one document per
// conversation, a unique index on the lookup key, and a health.Pinger so
// the store can be wired into the same health-check surface as the rest of
// the deployment. Unlike the teacher's append-only event log, Save here
// replaces the document wholesale, since the Memory Compressor rewrites
// (not just appends to) the stored history.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/flowforge-ai/agentcore/model"
)

const (
	defaultCollection = "agentcore_conversations"
	defaultTimeout    = 5 * time.Second
	clientName        = "agentcore-conversation-mongo"
)

// Options configures the Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements storage.ConversationStore and health.Pinger against
// MongoDB.
type Store struct {
	client  *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

var _ health.Pinger = (*Store)(nil)

// New builds a Mongo-backed conversation store, ensuring the lookup index
// exists before returning.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}

	return &Store{client: opts.Client, coll: coll, timeout: timeout}, nil
}

// Name identifies the store to health.Pinger consumers.
func (s *Store) Name() string { return clientName }

// Ping checks connectivity to the backing MongoDB deployment.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Load returns the stored message history for conversationID, or nil if
// nothing has been saved yet.
func (s *Store) Load(ctx context.Context, conversationID string) ([]*model.Message, error) {
	if conversationID == "" {
		return nil, errors.New("mongo: conversation id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc conversationDocument
	err := s.coll.FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(doc.MessagesJSON) == 0 {
		return nil, nil
	}
	var msgs []*model.Message
	if err := json.Unmarshal(doc.MessagesJSON, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Save replaces the stored message history for conversationID. Messages are
// marshaled through model.Message's own Kind-tagged JSON codec and stored as
// a single BSON binary field rather than as a native BSON document, since
// Message.Parts is a Part interface slice the generic BSON struct codec
// cannot round-trip on its own.
func (s *Store) Save(ctx context.Context, conversationID string, messages []*model.Message) error {
	if conversationID == "" {
		return errors.New("mongo: conversation id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	encoded, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	filter := bson.M{"conversation_id": conversationID}
	update := bson.M{
		"$set": bson.M{
			"conversation_id": conversationID,
			"messages_json":   encoded,
			"updated_at":      time.Now().UTC(),
		},
	}
	_, err = s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type conversationDocument struct {
	ConversationID string    `bson:"conversation_id"`
	MessagesJSON   []byte    `bson:"messages_json"`
	UpdatedAt      time.Time `bson:"updated_at,omitempty"`
}
