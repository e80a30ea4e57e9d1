package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"frevagpt/pkg/chatbot"
)

// topicLimit caps the raw topic taken from the first user message.
const topicLimit = 5000

// TopicSummarizer condenses a user request into a few words for the
// frontend's history view. Implementations must not fail: on any problem
// they return a placeholder string instead.
type TopicSummarizer interface {
	SummarizeTopic(ctx context.Context, topic string) string
}

// StoredThread is the document shape of one conversation. The frontend
// needs the user id, thread id, date and topic beside the content.
type StoredThread struct {
	UserID   string               `bson:"user_id" json:"user_id"`
	ThreadID string               `bson:"thread_id" json:"thread_id"`
	Date     string               `bson:"date" json:"date"` // ISO 8601, updated on each append
	Topic    string               `bson:"topic" json:"topic"`
	Content  chatbot.Conversation `bson:"content" json:"content"`
}

// MongoStore persists threads in a MongoDB collection, one document per
// thread. This is the active backend in production.
type MongoStore struct {
	collection *mongo.Collection
	summarizer TopicSummarizer // optional; nil keeps the raw topic
}

// NewMongoStore connects to the database and pings it so a broken URI fails
// at startup instead of on the first append.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}
	return &MongoStore{
		collection: client.Database(database).Collection(collection),
	}, nil
}

// SetSummarizer enables LLM topic summaries for newly stored threads.
func (s *MongoStore) SetSummarizer(summarizer TopicSummarizer) {
	s.summarizer = summarizer
}

// Append merges the cleaned frames into the stored document, creating it if
// the thread is new. The topic is derived from the user input; the date is
// refreshed on every append.
func (s *MongoStore) Append(ctx context.Context, threadID, userID string, content chatbot.Conversation) error {
	content = CleanupConversation(content)
	if len(content) == 0 {
		slog.Debug("Content is empty, will not append to thread", "thread_id", threadID)
		return nil
	}

	existing, err := s.read(ctx, threadID)
	if err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("loading existing thread: %w", err)
	}

	merged := content
	if existing != nil {
		merged = append(append(chatbot.Conversation{}, existing.Content...), content...)
	}

	topic := extractTopic(merged)
	if existing == nil && s.summarizer != nil {
		topic = s.summarizer.SummarizeTopic(ctx, topic)
	} else if existing != nil {
		topic = existing.Topic
	}

	date := time.Now().UTC().Format(time.RFC3339)

	if existing != nil {
		_, err := s.collection.UpdateOne(ctx,
			bson.D{{Key: "thread_id", Value: threadID}},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "content", Value: merged},
				{Key: "date", Value: date},
				{Key: "topic", Value: topic},
				{Key: "user_id", Value: userID},
			}}},
		)
		if err != nil {
			return fmt.Errorf("updating thread: %w", err)
		}
		return nil
	}

	_, err = s.collection.InsertOne(ctx, StoredThread{
		UserID:   userID,
		ThreadID: threadID,
		Date:     date,
		Topic:    topic,
		Content:  merged,
	})
	if err != nil {
		return fmt.Errorf("inserting thread: %w", err)
	}
	return nil
}

// Read returns the stored conversation, or os-style not-found semantics via
// mongo.ErrNoDocuments wrapped into a NotFound error.
func (s *MongoStore) Read(ctx context.Context, threadID string) (chatbot.Conversation, error) {
	thread, err := s.read(ctx, threadID)
	if err == mongo.ErrNoDocuments {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	return thread.Content, nil
}

func (s *MongoStore) read(ctx context.Context, threadID string) (*StoredThread, error) {
	var thread StoredThread
	err := s.collection.FindOne(ctx, bson.D{{Key: "thread_id", Value: threadID}}).Decode(&thread)
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// ReadUserThreads returns the user's latest threads, newest first. A single
// query fetches all of them. limit defaults to 10 when non-positive; a
// non-negative page number (0-based) skips the preceding pages.
func (s *MongoStore) ReadUserThreads(ctx context.Context, userID string, limit, page int64) ([]StoredThread, error) {
	if limit <= 0 {
		limit = 10
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(limit)
	if page > 0 {
		opts = opts.SetSkip(page * limit)
	}

	cursor, err := s.collection.Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer cursor.Close(ctx)

	var threads []StoredThread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, fmt.Errorf("decoding threads: %w", err)
	}
	return threads, nil
}

// SetTopic overwrites the stored topic of a thread, so a user can rename a
// conversation in the history view. The user id must match the stored
// document; a mismatch or an unknown thread reports ErrThreadNotFound.
func (s *MongoStore) SetTopic(ctx context.Context, threadID, userID, topic string) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.D{
			{Key: "thread_id", Value: threadID},
			{Key: "user_id", Value: userID},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: "topic", Value: topic}}}},
	)
	if err != nil {
		return fmt.Errorf("updating thread topic: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// extractTopic takes the most recent user input of the merged conversation,
// truncated to the topic limit. There is normally always one because even
// the example conversations contain a user message.
func extractTopic(conv chatbot.Conversation) string {
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Variant == chatbot.VariantUser {
			topic := conv[i].Content
			if len(topic) > topicLimit {
				return topic[:topicLimit] + "..."
			}
			return topic
		}
	}
	slog.Debug("No topic found, using a placeholder")
	return "No topic found"
}
