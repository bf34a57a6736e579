package chat

import (
	"errors"
	"testing"
	"time"
)

func TestNewConversationValidation(t *testing.T) {
	cases := []struct {
		name   string
		params CreateConversationParams
		want   error
	}{
		{"missing id", CreateConversationParams{ListingID: "l1", BuyerID: "b", SellerID: "s"}, ErrIDRequired},
		{"missing listing", CreateConversationParams{ID: "c1", BuyerID: "b", SellerID: "s"}, ErrListingRequired},
		{"missing buyer", CreateConversationParams{ID: "c1", ListingID: "l1", SellerID: "s"}, ErrBuyerRequired},
		{"missing seller", CreateConversationParams{ID: "c1", ListingID: "l1", BuyerID: "b"}, ErrSellerRequired},
		{"self conversation", CreateConversationParams{ID: "c1", ListingID: "l1", BuyerID: "b", SellerID: "b"}, ErrSelfConversation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewConversation(tc.params); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewConversationDefaults(t *testing.T) {
	conv, err := NewConversation(CreateConversationParams{
		ID:        " c1 ",
		ListingID: "l1",
		BuyerID:   "buyer",
		SellerID:  "seller",
	})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if conv.ID != "c1" {
		t.Fatalf("id not trimmed: %q", conv.ID)
	}
	if conv.CreatedAt.IsZero() || !conv.LastMessageAt.Equal(conv.CreatedAt) {
		t.Fatalf("timestamps not initialized: %+v", conv)
	}
}

func TestConversationParticipants(t *testing.T) {
	conv, err := NewConversation(CreateConversationParams{
		ID: "c1", ListingID: "l1", BuyerID: "buyer", SellerID: "seller",
	})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if !conv.HasParticipant("buyer") || !conv.HasParticipant("seller") {
		t.Fatal("participants not recognized")
	}
	if conv.HasParticipant("stranger") || conv.HasParticipant("") {
		t.Fatal("non-participant recognized")
	}
	if got := conv.Counterpart("buyer"); got != "seller" {
		t.Fatalf("Counterpart(buyer) = %q", got)
	}
	if got := conv.Counterpart("seller"); got != "buyer" {
		t.Fatalf("Counterpart(seller) = %q", got)
	}
	if got := conv.Counterpart("stranger"); got != "" {
		t.Fatalf("Counterpart(stranger) = %q", got)
	}
}

func TestRecordMessageUpdatesSummary(t *testing.T) {
	conv, err := NewConversation(CreateConversationParams{
		ID: "c1", ListingID: "l1", BuyerID: "buyer", SellerID: "seller",
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	msg, err := NewMessage(CreateMessageParams{
		ID: "m1", ConversationID: "c1", SenderID: "buyer", Content: "asalam o alaikum",
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	conv.RecordMessage(msg)
	if conv.LatestMessage == nil || conv.LatestMessage.Content != "asalam o alaikum" {
		t.Fatalf("summary = %+v", conv.LatestMessage)
	}
	if conv.LatestMessage.ID != "m1" || conv.LatestMessage.SenderID != "buyer" {
		t.Fatalf("summary identity = %+v, want message m1 from buyer", conv.LatestMessage)
	}
	if !conv.LastMessageAt.Equal(msg.CreatedAt) {
		t.Fatalf("LastMessageAt = %v, want %v", conv.LastMessageAt, msg.CreatedAt)
	}
	conv.RecordMessage(nil)
	if conv.LatestMessage == nil {
		t.Fatal("nil message wiped the summary")
	}
}

func TestNewMessageValidation(t *testing.T) {
	cases := []struct {
		name   string
		params CreateMessageParams
		want   error
	}{
		{"missing id", CreateMessageParams{ConversationID: "c1", SenderID: "u", Content: "x"}, ErrIDRequired},
		{"missing conversation", CreateMessageParams{ID: "m1", SenderID: "u", Content: "x"}, ErrConversationNotFound},
		{"missing sender", CreateMessageParams{ID: "m1", ConversationID: "c1", Content: "x"}, ErrSenderRequired},
		{"blank content", CreateMessageParams{ID: "m1", ConversationID: "c1", SenderID: "u", Content: "   "}, ErrContentRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewMessage(tc.params); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewMessageTrimsContent(t *testing.T) {
	msg, err := NewMessage(CreateMessageParams{
		ID: "m1", ConversationID: "c1", SenderID: "u", Content: "  deal done  ",
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if msg.Content != "deal done" {
		t.Fatalf("content = %q", msg.Content)
	}
	if msg.Read {
		t.Fatal("new message must start unread")
	}
}
