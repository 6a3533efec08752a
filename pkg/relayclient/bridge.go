package relayclient

import (
	"context"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
)

const methodWithdrawalStatus = "withdrawal_status"

type withdrawalParams struct {
	WithdrawalHash string `json:"withdrawal_hash"`
}

type withdrawalResult struct {
	Withdrawals []models.WithdrawalRecord `json:"withdrawals"`
}

// GetWithdrawalStatus returns the withdrawals contained in a bridge transaction.
// A transaction the bridge has not indexed yet is answered with an RPC error.
func (c *Client) GetWithdrawalStatus(ctx context.Context, txHash string) ([]models.WithdrawalRecord, error) {
	var res withdrawalResult
	if err := c.call(ctx, c.bridge, methodWithdrawalStatus, withdrawalParams{WithdrawalHash: txHash}, &res); err != nil {
		return nil, err
	}
	return res.Withdrawals, nil
}
