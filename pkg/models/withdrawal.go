package models

import "strings"

// WithdrawalState is the bridge-side state of one withdrawal
type WithdrawalState string

const (
	WithdrawalPending   WithdrawalState = "PENDING"
	WithdrawalCompleted WithdrawalState = "COMPLETED"
)

// WithdrawalData is the payload the bridge reports for a withdrawal
type WithdrawalData struct {
	TxHash         string `json:"tx_hash"`
	TransferTxHash string `json:"transfer_tx_hash"` // destination chain hash, set once completed
	Chain          string `json:"chain"`
	NearTokenID    string `json:"near_token_id"`
	DefuseAssetID  string `json:"defuse_asset_identifier,omitempty"`
	Decimals       int    `json:"decimals"`
	Amount         string `json:"amount"`
	AccountID      string `json:"account_id"`
	Address        string `json:"address"`
}

// WithdrawalRecord represents one withdrawal contained in a bridge transaction
type WithdrawalRecord struct {
	Status WithdrawalState `json:"status"`
	Data   WithdrawalData  `json:"data"`
}

// AssetID computes the intents asset identifier of the withdrawn token
func (r WithdrawalRecord) AssetID() string {
	if r.Data.DefuseAssetID != "" {
		return r.Data.DefuseAssetID
	}
	if r.Data.NearTokenID == "" {
		return ""
	}
	if strings.Contains(r.Data.NearTokenID, ":") {
		return r.Data.NearTokenID
	}
	return "nep141:" + r.Data.NearTokenID
}

// WithdrawalCriteria selects one withdrawal among those returned for a transaction
type WithdrawalCriteria struct {
	AssetID string `json:"asset_id"`
}

// WithdrawalResult is the terminal outcome of a completed withdrawal
type WithdrawalResult struct {
	DestinationTxHash string `json:"destination_tx_hash"`
	Chain             string `json:"chain"`
}
