package models

import "time"

// NFTMetadata is the token metadata forwarded to the provider with a mint request.
type NFTMetadata struct {
	Image       string      `json:"image,omitempty"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// MintRequest is what the engine asks the provider to mint.
type MintRequest struct {
	CollectionAddress string
	OwnerAddress      string
	ReferenceID       string
	TokenID           int64
	Metadata          *NFTMetadata
}

// ProviderStatus is the provider's view of a mint request.
type ProviderStatus struct {
	ReferenceID  string `json:"referenceId"`
	Status       Status `json:"status"`
	TokenID      string `json:"tokenID,omitempty"`
	OwnerAddress string `json:"ownerAddress,omitempty"`
}

// EventMintRequestUpdated is the only webhook event acted on.
const EventMintRequestUpdated = "mint_request_updated"

// Notification is a provider status update, from a webhook or a poll.
type Notification struct {
	ReferenceID  string `json:"reference_id"`
	TokenID      string `json:"token_id"`
	Status       string `json:"status"`
	OwnerAddress string `json:"owner_address"`
}

// EventType names a mint lifecycle event.
type EventType string

const (
	EventAdmitted  EventType = "mint.admitted"
	EventSucceeded EventType = "mint.succeeded"
	EventFailed    EventType = "mint.failed"
)

// Event is published after the ledger change it describes has committed.
type Event struct {
	Type              EventType `json:"type"`
	ReferenceID       string    `json:"uuid"`
	TokenID           int64     `json:"tokenID"`
	CollectionAddress string    `json:"collectionAddress"`
	WalletAddress     string    `json:"walletAddress"`
	Phase             int       `json:"phase"`
	OccurredAt        time.Time `json:"occurredAt"`
}
