package claim

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type Kind string

type Status string

const (
	KindAll       Kind = "claim_all"
	KindValidator Kind = "claim_validator"
)

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusUnknown   Status = "unknown"
)

const (
	CodeSuccess  = 0
	CodeReverted = 1
	CodeUnknown  = 2

	logSuccess = "Transaction successful"
	logFailed  = "Transaction failed"
)

// Outcome is the normalized terminal result of a claim.
type Outcome struct {
	TxHash string `json:"txhash"`
	Code   int    `json:"code"`
	RawLog string `json:"raw_log"`
}

func (o Outcome) Succeeded() bool { return o.Code == CodeSuccess && o.TxHash != "" }

// Record is the persisted history entry of one claim attempt.
type Record struct {
	ClaimID     string   `json:"claim_id"`
	Kind        Kind     `json:"kind"`
	Status      Status   `json:"status"`
	ChainID     int64    `json:"chain_id"`
	Account     string   `json:"account"`
	Validator   string   `json:"validator,omitempty"`
	MaxRetrieve uint32   `json:"max_retrieve,omitempty"`
	TxHash      string   `json:"tx_hash,omitempty"`
	Outcome     *Outcome `json:"outcome,omitempty"`
	Error       string   `json:"error,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func NewClaimID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "claim-unknown"
	}
	return fmt.Sprintf("clm_%s", hex.EncodeToString(b))
}

func (r *Record) touch(now time.Time) {
	r.UpdatedAt = now.UTC().Format(time.RFC3339)
}
