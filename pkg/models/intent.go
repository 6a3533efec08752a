package models

// IntentState is the relay-side lifecycle state of a signed intent
type IntentState string

const (
	IntentPending           IntentState = "PENDING"
	IntentTxBroadcasted     IntentState = "TX_BROADCASTED"
	IntentSettled           IntentState = "SETTLED"
	IntentNotFoundOrInvalid IntentState = "NOT_FOUND_OR_NOT_VALID"
)

// IntentStatus represents one status observation returned by the solver relay.
// TxHash is only meaningful for TX_BROADCASTED and SETTLED.
type IntentStatus struct {
	IntentHash string      `json:"intent_hash"`
	Status     IntentState `json:"status"`
	TxHash     string      `json:"tx_hash,omitempty"`
}

// SettlementResult is the terminal outcome of tracking an intent
type SettlementResult struct {
	Status     IntentState `json:"status"`
	TxHash     string      `json:"tx_hash,omitempty"` // empty when no hash was ever observed
	IntentHash string      `json:"intent_hash"`
}
