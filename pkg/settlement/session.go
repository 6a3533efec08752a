package settlement

import (
	"github.com/speedrun-hq/settlement-tracker/pkg/logger"
	"github.com/speedrun-hq/settlement-tracker/pkg/metrics"
	"github.com/speedrun-hq/settlement-tracker/pkg/models"
	"github.com/speedrun-hq/settlement-tracker/pkg/trackerr"
)

// session is the state of one Track call. Observations arrive strictly in
// request-completion order from a single goroutine, so it needs no locking.
type session struct {
	intentHash    string
	threshold     int
	onTxHashKnown func(string)
	logger        logger.Logger

	lastSeen      *models.IntentStatus
	invalidStreak int
	txHash        string
	txHashKnown   bool

	result models.SettlementResult
}

// observe folds one validated status into the session and reports whether tracking is finished
func (s *session) observe(status models.IntentStatus) (bool, error) {
	prev := s.lastSeen
	s.lastSeen = &status

	s.logger.Debug("Intent %s status %s", s.intentHash, status.Status)

	switch status.Status {
	case models.IntentSettled:
		if status.TxHash != "" {
			s.txHash = status.TxHash
		}
		if s.txHash == "" {
			return false, trackerr.New(trackerr.InvariantViolation, opTrack, "intent settled without a transaction hash")
		}
		s.markTxHashKnown()
		s.finish(models.IntentSettled)
		return true, nil

	case models.IntentTxBroadcasted:
		if status.TxHash == "" {
			return false, trackerr.New(trackerr.InvariantViolation, opTrack, "intent broadcast without a transaction hash")
		}
		s.txHash = status.TxHash
		s.markTxHashKnown()
		s.invalidStreak = 0
		return false, nil

	case models.IntentPending:
		s.invalidStreak = 0
		return false, nil

	case models.IntentNotFoundOrInvalid:
		if prev != nil && prev.Status != status.Status {
			// a transition into NOT_FOUND_OR_NOT_VALID is final on its own
			s.finish(models.IntentNotFoundOrInvalid)
			return true, nil
		}
		s.invalidStreak++
		if s.invalidStreak >= s.threshold {
			s.finish(models.IntentNotFoundOrInvalid)
			return true, nil
		}
		return false, nil
	}

	return false, trackerr.New(trackerr.InvariantViolation, opTrack, "unknown intent status "+string(status.Status))
}

// markTxHashKnown fires the callback the first time a hash is observed
func (s *session) markTxHashKnown() {
	if s.txHashKnown {
		return
	}
	s.txHashKnown = true
	metrics.TxHashKnown.Inc()
	s.logger.Info("Intent %s has destination tx %s", s.intentHash, s.txHash)
	if s.onTxHashKnown != nil {
		s.onTxHashKnown(s.txHash)
	}
}

func (s *session) finish(status models.IntentState) {
	s.result = models.SettlementResult{
		Status:     status,
		TxHash:     s.txHash,
		IntentHash: s.intentHash,
	}
}

// annotate attaches the intent and the last observed status to a classified terminal error.
// Cancellation causes and unclassified errors are returned unchanged.
func (s *session) annotate(err error) error {
	te, ok := err.(*trackerr.Error)
	if !ok {
		return err
	}
	te = te.With("intent_hash", s.intentHash)
	if s.lastSeen != nil {
		te = te.With("last_status", string(s.lastSeen.Status))
	}
	if s.txHash != "" {
		te = te.With("tx_hash", s.txHash)
	}
	return te
}
