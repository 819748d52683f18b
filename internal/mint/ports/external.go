package ports

//go:generate mockgen -source=external.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"mintgate/internal/mint/models"
)

// Provider is the external minting provider.
type Provider interface {
	// CreateMintRequest submits one mint. Returns sentinel.ErrUnavailable when
	// the circuit is open or the provider cannot be reached.
	CreateMintRequest(ctx context.Context, req models.MintRequest) error

	// GetMintRequest returns sentinel.ErrNotFound when the provider has no record.
	GetMintRequest(ctx context.Context, collection, referenceID string) (*models.ProviderStatus, error)

	// Available reports whether calls are currently allowed through.
	Available() bool
}

// MetadataSource resolves token metadata. A missing token yields nil, nil.
type MetadataSource interface {
	Metadata(ctx context.Context, tokenID int64) (*models.NFTMetadata, error)
}

// EventPublisher emits mint lifecycle events. Failures never affect ledger state.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}
