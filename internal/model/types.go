package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string     `json:"request_id"`
	Timestamp time.Time  `json:"timestamp"`
	Command   string     `json:"command"`
	Chain     string     `json:"chain,omitempty"`
	Account   string     `json:"account,omitempty"`
	RPC       *RPCStatus `json:"rpc,omitempty"`
	ViewState ViewStatus `json:"view_state"`
}

// RPCStatus reports the endpoint a command talked to.
type RPCStatus struct {
	URL       string `json:"url"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

// ViewStatus describes the last-query state a command read or wrote.
type ViewStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
}

// WalletStatus is the data of `wallet status` and `wallet connect`.
type WalletStatus struct {
	Connected   bool   `json:"connected"`
	Address     string `json:"address,omitempty"`
	ChainID     int64  `json:"chain_id,omitempty"`
	ChainName   string `json:"chain_name,omitempty"`
	RPCURL      string `json:"rpc_url,omitempty"`
	ConnectorID *int   `json:"connector_id,omitempty"`
	ConnectedAt string `json:"connected_at,omitempty"`
}

// FeeEstimate pairs a claim fee estimate with its display amount.
type FeeEstimate struct {
	Method     string `json:"method"`
	Fee        string `json:"fee"`
	GasPrice   string `json:"gas_price"`
	GasUsed    string `json:"gas_used"`
	FeeDisplay string `json:"fee_display"`
	Symbol     string `json:"symbol"`
}

// ClaimResult is the data of claim commands.
type ClaimResult struct {
	ClaimID string `json:"claim_id"`
	Status  string `json:"status"`
	TxHash  string `json:"txhash"`
	Code    int    `json:"code"`
	RawLog  string `json:"raw_log"`
}
