package models

import (
	"fmt"
	"math/big"
	"time"
)

// TradeDirection tells which side of a swap is fixed
type TradeDirection string

const (
	// ExactIn fixes the input amount; the best quote yields the most output
	ExactIn TradeDirection = "exact_in"
	// ExactOut fixes the output amount; the best quote costs the least input
	ExactOut TradeDirection = "exact_out"
)

// Quote represents a priced offer from a solver
type Quote struct {
	QuoteHash      string
	AssetIn        string
	AssetOut       string
	AmountIn       *big.Int
	AmountOut      *big.Int
	ExpirationTime time.Time
}

// FailedQuote is a solver response explaining why no price was offered
type FailedQuote struct {
	Type      string   // e.g. INSUFFICIENT_AMOUNT
	MinAmount *big.Int // may be nil
}

func (f *FailedQuote) Error() string {
	if f.MinAmount != nil {
		return fmt.Sprintf("quote failed: %s (min amount %s)", f.Type, f.MinAmount.String())
	}
	return "quote failed: " + f.Type
}

// QuoteEntry is one element of a price-discovery response: exactly one of Quote or Failed is set
type QuoteEntry struct {
	Quote  *Quote
	Failed *FailedQuote
}

// QuoteRequest holds the parameters of a price-discovery call
type QuoteRequest struct {
	AssetIn     string
	AssetOut    string
	Amount      *big.Int
	Direction   TradeDirection
	MinDeadline time.Duration
}
