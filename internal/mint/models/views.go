package models

// PhaseView is a phase as published by GET /config.
type PhaseView struct {
	Name                  string `json:"name"`
	StartTime             int64  `json:"startTime"`
	EndTime               int64  `json:"endTime"`
	EnableAllowList       bool   `json:"enableAllowList"`
	StartTokenID          *int64 `json:"startTokenID,omitempty"`
	EndTokenID            *int64 `json:"endTokenID,omitempty"`
	MaxTokensPerWallet    *int64 `json:"maxTokensPerWallet,omitempty"`
	EnableTokenIDRollOver bool   `json:"enableTokenIDRollOver,omitempty"`
	MaxTokenSupply        *int64 `json:"maxTokenSupply,omitempty"`
	Capacity              int64  `json:"capacity"`
	TotalMinted           int64  `json:"totalMinted"`
}

// CollectionConfig is the public sale configuration.
type CollectionConfig struct {
	ChainName                     string      `json:"chainName"`
	CollectionAddress             string      `json:"collectionAddress"`
	MaxTokenSupplyAcrossAllPhases *int64      `json:"maxTokenSupplyAcrossAllPhases,omitempty"`
	TotalMinted                   int64       `json:"totalMinted"`
	MintPhases                    []PhaseView `json:"mintPhases"`
}

// PhaseEligibility is one wallet's standing in one phase.
// IsEligible is true when the phase has no allowlist or the wallet is on it.
type PhaseEligibility struct {
	Name                 string `json:"name"`
	StartTime            int64  `json:"startTime"`
	EndTime              int64  `json:"endTime"`
	StartTokenID         *int64 `json:"startTokenID,omitempty"`
	EndTokenID           *int64 `json:"endTokenID,omitempty"`
	IsActive             bool   `json:"isActive"`
	IsEligible           bool   `json:"isEligible"`
	WalletTokenAllowance *int64 `json:"walletTokenAllowance,omitempty"`
	MaxTokensPerWallet   *int64 `json:"maxTokensPerWallet,omitempty"`
}

// Eligibility is the response of GET /eligibility/{address}.
type Eligibility struct {
	ChainName                     string             `json:"chainName"`
	CollectionAddress             string             `json:"collectionAddress"`
	MaxTokenSupplyAcrossAllPhases *int64             `json:"maxTokenSupplyAcrossAllPhases,omitempty"`
	Address                       string             `json:"address"`
	IsLocked                      bool               `json:"isLocked"`
	MintPhases                    []PhaseEligibility `json:"mintPhases"`
}
