// Package quote selects the economically best quote out of a price-discovery response.
package quote

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

const opSelect = "quote.select"

// SelectBest returns the best valid quote for dir: the most AmountOut for exact_in and the
// least AmountIn for exact_out, compared as integers. When no quote is valid the error is
// QuoteUnavailable, wrapping the first FailedQuote if the response carried one.
func SelectBest(entries []models.QuoteEntry, dir models.TradeDirection) (models.Quote, error) {
	key, err := sortKey(dir)
	if err != nil {
		return models.Quote{}, err
	}

	if len(entries) == 0 {
		return models.Quote{}, trackerr.New(trackerr.QuoteUnavailable, opSelect, "no quote")
	}

	var (
		valid  []*models.Quote
		failed []*models.FailedQuote
	)
	for _, e := range entries {
		switch {
		case e.Quote != nil && key(e.Quote) != nil:
			valid = append(valid, e.Quote)
		case e.Failed != nil:
			failed = append(failed, e.Failed)
		}
	}

	if len(valid) > 0 {
		sort.SliceStable(valid, func(i, j int) bool {
			c := key(valid[i]).Cmp(key(valid[j]))
			if dir == models.ExactIn {
				return c > 0
			}
			return c < 0
		})
		return *valid[0], nil
	}

	if len(failed) > 0 {
		return models.Quote{}, trackerr.Wrap(trackerr.QuoteUnavailable, opSelect, failed[0], "no valid quote").
			With("failed_quotes", fmt.Sprint(len(failed)))
	}

	return models.Quote{}, trackerr.New(trackerr.QuoteUnavailable, opSelect, "no quote")
}

// sortKey returns the amount a direction is ranked by
func sortKey(dir models.TradeDirection) (func(*models.Quote) *big.Int, error) {
	switch dir {
	case models.ExactIn:
		return func(q *models.Quote) *big.Int { return q.AmountOut }, nil
	case models.ExactOut:
		return func(q *models.Quote) *big.Int { return q.AmountIn }, nil
	}
	return nil, fmt.Errorf("unknown trade direction %q", dir)
}
