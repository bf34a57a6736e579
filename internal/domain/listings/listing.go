package listings

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired     = errors.New("listings: id is required")
	ErrTitleRequired  = errors.New("listings: title is required")
	ErrSellerRequired = errors.New("listings: seller is required")
	ErrNotFound       = errors.New("listings: not found")
)

type ListingID string

// Listing carries the minimum a conversation needs to reference: the animal
// on offer and who is selling it. Catalog search, pricing, and photos live
// outside this service.
type Listing struct {
	ID        ListingID
	Title     string
	SellerID  string
	CreatedAt time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
}

func New(id ListingID, title, sellerID string, createdAt time.Time) (*Listing, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, ErrIDRequired
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, ErrSellerRequired
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Listing{
		ID:        ListingID(strings.TrimSpace(string(id))),
		Title:     title,
		SellerID:  sellerID,
		CreatedAt: createdAt.UTC(),
	}, nil
}
