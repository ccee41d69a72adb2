package model

import "time"

// Direction of a transaction relative to the queried wallet.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Type classifies what a transaction did, from the queried wallet's view.
type Type string

const (
	TypeSent                Type = "sent"
	TypeReceived            Type = "received"
	TypeTokenTransfer       Type = "token_transfer"
	TypeContractInteraction Type = "contract_interaction"
)

// Status of a transaction as reported by its source.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Transaction is the unified, source-independent record for one on-chain
// event. Hash is the idempotency key for persistence; Direction and Type
// are always derived relative to the wallet the record was aggregated for
// and never trusted from a source.
type Transaction struct {
	Hash        string    `json:"hash"`
	From        string    `json:"fromAddress"`
	To          string    `json:"toAddress"`
	Amount      string    `json:"amount"`
	Fee         string    `json:"fee,omitempty"`
	Status      Status    `json:"status"`
	Network     string    `json:"network"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Type        Type      `json:"type"`
	Direction   Direction `json:"direction"`

	TokenSymbol   string `json:"tokenSymbol,omitempty"`
	TokenName     string `json:"tokenName,omitempty"`
	TokenDecimals int    `json:"tokenDecimals,omitempty"`

	ExplorerURL string `json:"explorerUrl,omitempty"`

	// Metadata carries source-specific extras (method id, function name,
	// contract address). Advisory only; never used for identity or sorting.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RawRecord is one on-chain event in near-source shape. Adapters fill the
// fields their source provides verbatim (integer amounts in smallest
// units, unix timestamps); all derivation happens in the normalizer.
// Token fields are set only for token-transfer rows.
type RawRecord struct {
	Hash        string
	From        string
	To          string
	Value       string // smallest-unit integer, decimal string
	BlockNumber uint64
	TimeStamp   int64 // unix seconds

	GasUsed  string // empty when the source does not report it
	GasPrice string

	IsError       bool
	ReceiptStatus string // "0" failed, "1" ok, "" unknown

	ContractAddress string
	TokenSymbol     string
	TokenName       string
	TokenDecimal    int

	MethodID     string
	FunctionName string
	Input        string
}
