package memory

import (
	"context"
	"sync"

	domainlistings "bakramandi/internal/domain/listings"
)

// ListingRepository stores listings in memory.
type ListingRepository struct {
	mu   sync.RWMutex
	byID map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{byID: make(map[domainlistings.ListingID]*domainlistings.Listing)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if listing, ok := r.byID[id]; ok {
		copyListing := *listing
		return &copyListing, nil
	}
	return nil, domainlistings.ErrNotFound
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if listing == nil {
		return domainlistings.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copyListing := *listing
	r.byID[listing.ID] = &copyListing
	return nil
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
