package relayclient

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const (
	methodGetStatus = "get_status"
	methodQuote     = "quote"
)

type statusParams struct {
	IntentHash string `json:"intent_hash"`
}

type statusResult struct {
	IntentHash string             `json:"intent_hash"`
	Status     models.IntentState `json:"status"`
	Data       *struct {
		Hash string `json:"hash"`
	} `json:"data,omitempty"`
}

// GetIntentStatus returns the relay's current status of an intent
func (c *Client) GetIntentStatus(ctx context.Context, intentHash string) (models.IntentStatus, error) {
	var res statusResult
	if err := c.call(ctx, c.relay, methodGetStatus, statusParams{IntentHash: intentHash}, &res); err != nil {
		return models.IntentStatus{}, err
	}
	if res.Status == "" {
		return models.IntentStatus{}, trackerr.New(trackerr.InvariantViolation, c.relay.name+"."+methodGetStatus, "status missing from response").
			With("intent_hash", intentHash)
	}

	status := models.IntentStatus{IntentHash: res.IntentHash, Status: res.Status}
	if status.IntentHash == "" {
		status.IntentHash = intentHash
	}
	if res.Data != nil {
		status.TxHash = res.Data.Hash
	}
	return status, nil
}

type quoteParams struct {
	AssetIn        string `json:"defuse_asset_identifier_in"`
	AssetOut       string `json:"defuse_asset_identifier_out"`
	ExactAmountIn  string `json:"exact_amount_in,omitempty"`
	ExactAmountOut string `json:"exact_amount_out,omitempty"`
	MinDeadlineMs  int64  `json:"min_deadline_ms,omitempty"`
}

// quoteResult is either a quote or, when Type is set, a failed quote
type quoteResult struct {
	QuoteHash      string `json:"quote_hash"`
	AssetIn        string `json:"defuse_asset_identifier_in"`
	AssetOut       string `json:"defuse_asset_identifier_out"`
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
	ExpirationTime string `json:"expiration_time"`

	Type      string `json:"type"`
	MinAmount string `json:"min_amount"`
}

// GetQuote asks the solvers for quotes. A null result means no liquidity and yields an empty list.
func (c *Client) GetQuote(ctx context.Context, req models.QuoteRequest) ([]models.QuoteEntry, error) {
	params := quoteParams{
		AssetIn:       req.AssetIn,
		AssetOut:      req.AssetOut,
		MinDeadlineMs: req.MinDeadline.Milliseconds(),
	}
	if req.Direction == models.ExactOut {
		params.ExactAmountOut = req.Amount.String()
	} else {
		params.ExactAmountIn = req.Amount.String()
	}

	var results []quoteResult
	if err := c.call(ctx, c.relay, methodQuote, params, &results); err != nil {
		return nil, err
	}

	op := c.relay.name + "." + methodQuote
	entries := make([]models.QuoteEntry, 0, len(results))
	for _, r := range results {
		entry, err := r.toEntry()
		if err != nil {
			return nil, trackerr.Wrap(trackerr.InvariantViolation, op, err, "malformed quote").
				With("quote_hash", r.QuoteHash)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r quoteResult) toEntry() (models.QuoteEntry, error) {
	if r.Type != "" {
		failed := &models.FailedQuote{Type: r.Type}
		if r.MinAmount != "" {
			amount, err := parseAmount("min_amount", r.MinAmount)
			if err != nil {
				return models.QuoteEntry{}, err
			}
			failed.MinAmount = amount
		}
		return models.QuoteEntry{Failed: failed}, nil
	}

	amountIn, err := parseAmount("amount_in", r.AmountIn)
	if err != nil {
		return models.QuoteEntry{}, err
	}
	amountOut, err := parseAmount("amount_out", r.AmountOut)
	if err != nil {
		return models.QuoteEntry{}, err
	}

	q := &models.Quote{
		QuoteHash: r.QuoteHash,
		AssetIn:   r.AssetIn,
		AssetOut:  r.AssetOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
	}
	if r.ExpirationTime != "" {
		expiry, err := time.Parse(time.RFC3339, r.ExpirationTime)
		if err != nil {
			return models.QuoteEntry{}, err
		}
		q.ExpirationTime = expiry
	}
	return models.QuoteEntry{Quote: q}, nil
}

func parseAmount(field, s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.Errorf("invalid %s %q", field, s)
	}
	return amount, nil
}
