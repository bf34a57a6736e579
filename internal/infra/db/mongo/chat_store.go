package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "bakramandi/internal/domain/chat"
)

// ChatStore persists conversations, messages, and read markers in three
// collections. Timestamps are stored as unix milliseconds.
type ChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	reads         *mongo.Collection
}

func NewChatStore(db *mongo.Database) *ChatStore {
	return &ChatStore{
		conversations: db.Collection("chat_conversations"),
		messages:      db.Collection("chat_messages"),
		reads:         db.Collection("chat_reads"),
	}
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) error {
	doc := newConversationDocument(conv)
	opts := options.Update().SetUpsert(true)
	_, err := s.conversations.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

func (s *ChatStore) ConversationByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (s *ChatStore) ConversationByListing(ctx context.Context, listingID, buyerID, sellerID string) (*domainchat.Conversation, error) {
	filter := bson.M{
		"listing_id": listingID,
		"buyer_id":   buyerID,
		"seller_id":  sellerID,
	}
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyer_id": userID}, bson.M{"seller_id": userID}}}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cur, err := s.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]domainchat.Conversation, 0)
	for cur.Next(ctx) {
		var doc conversationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toAggregate())
	}
	return out, cur.Err()
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg *domainchat.Message) error {
	doc := newMessageDocument(msg)
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{
		"last_message_at": doc.CreatedAt,
		"latest_message": bson.M{
			"id":         doc.ID,
			"sender_id":  doc.SenderID,
			"content":    doc.Content,
			"created_at": doc.CreatedAt,
		},
	}}
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": doc.ConversationID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	if _, err := s.ConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]domainchat.Message, 0)
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toAggregate())
	}
	return out, cur.Err()
}

func (s *ChatStore) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	filter := bson.M{"conversation_id": conversationID, "user_id": userID}
	update := bson.M{"$max": bson.M{"read_at": at.UnixMilli()}}
	opts := options.Update().SetUpsert(true)
	_, err := s.reads.UpdateOne(ctx, filter, update, opts)
	return err
}

func (s *ChatStore) ReadMarker(ctx context.Context, conversationID, userID string) (time.Time, error) {
	var doc readDocument
	err := s.reads.FindOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return timestampToTime(doc.ReadAt), nil
}

func (s *ChatStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	marker, err := s.ReadMarker(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	filter := bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": userID},
		"created_at":      bson.M{"$gt": marker.UnixMilli()},
	}
	n, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type conversationDocument struct {
	ID            string                 `bson:"_id"`
	ListingID     string                 `bson:"listing_id"`
	BuyerID       string                 `bson:"buyer_id"`
	SellerID      string                 `bson:"seller_id"`
	LatestMessage *latestMessageDocument `bson:"latest_message,omitempty"`
	CreatedAt     int64                  `bson:"created_at"`
	LastMessageAt int64                  `bson:"last_message_at"`
}

type latestMessageDocument struct {
	ID        string `bson:"id"`
	SenderID  string `bson:"sender_id"`
	Content   string `bson:"content"`
	CreatedAt int64  `bson:"created_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:            c.ID,
		ListingID:     c.ListingID,
		BuyerID:       c.BuyerID,
		SellerID:      c.SellerID,
		CreatedAt:     c.CreatedAt.UnixMilli(),
		LastMessageAt: c.LastMessageAt.UnixMilli(),
	}
	if c.LatestMessage != nil {
		doc.LatestMessage = &latestMessageDocument{
			ID:        c.LatestMessage.ID,
			SenderID:  c.LatestMessage.SenderID,
			Content:   c.LatestMessage.Content,
			CreatedAt: c.LatestMessage.CreatedAt.UnixMilli(),
		}
	}
	return doc
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:            d.ID,
		ListingID:     d.ListingID,
		BuyerID:       d.BuyerID,
		SellerID:      d.SellerID,
		CreatedAt:     timestampToTime(d.CreatedAt),
		LastMessageAt: timestampToTime(d.LastMessageAt),
	}
	if d.LatestMessage != nil {
		conv.LatestMessage = &domainchat.LatestMessage{
			ID:        d.LatestMessage.ID,
			SenderID:  d.LatestMessage.SenderID,
			Content:   d.LatestMessage.Content,
			CreatedAt: timestampToTime(d.LatestMessage.CreatedAt),
		}
	}
	return conv
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Content        string `bson:"content"`
	CreatedAt      int64  `bson:"created_at"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	return messageDocument{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

func (d messageDocument) toAggregate() *domainchat.Message {
	return &domainchat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
}

type readDocument struct {
	ConversationID string `bson:"conversation_id"`
	UserID         string `bson:"user_id"`
	ReadAt         int64  `bson:"read_at"`
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ domainchat.Store = (*ChatStore)(nil)
