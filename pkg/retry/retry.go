package retry

import (
	"context"

	"github.com/speedrun-hq/settlement-tracker/pkg/models"
)

// Unbounded is passed to a Classifier as attemptsLeft when the policy has no attempt cap
const Unbounded = -1

// Classifier decides after a failed attempt whether to try again. It may replace the
// error, e.g. to promote a retryable condition into a terminal one when attemptsLeft is 0.
// The returned error is what the caller sees if no further attempt is made.
type Classifier func(err error, attemptsLeft int) (retry bool, out error)

// Do calls fn until it succeeds, classify refuses a retry, the policy's attempt budget is
// spent or ctx is cancelled. Waits between attempts follow the policy's backoff.
func Do[T any](
	ctx context.Context,
	clock Clock,
	policy models.RetryPolicy,
	fn func(ctx context.Context, attempt int) (T, error),
	classify Classifier,
) (T, error) {
	var result T

	err := Run(ctx, clock, Backoff{Policy: policy}, func(ctx context.Context, n int) (bool, error) {
		v, err := fn(ctx, n)
		if err == nil {
			result = v
			return true, nil
		}
		if cerr := Cancelled(ctx); cerr != nil {
			return false, cerr
		}

		attemptsLeft := Unbounded
		if policy.MaxAttempts > 0 {
			attemptsLeft = policy.MaxAttempts - n - 1
		}

		again, out := classify(err, attemptsLeft)
		if !again || attemptsLeft == 0 {
			return false, out
		}
		return false, nil
	})

	return result, err
}
