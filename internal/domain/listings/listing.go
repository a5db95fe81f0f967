package listings

import (
	"context"
	"errors"

	"marketchat/internal/domain/user"
)

var ErrNotFound = errors.New("listings: not found")

type ListingID string

// Listing is the read model the messaging core needs about a listing:
// enough to label a conversation and to bind it to its seller.
type Listing struct {
	ID     ListingID
	Title  string
	Seller user.ID
}

// Directory resolves listings owned by the catalog service.
type Directory interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
}
