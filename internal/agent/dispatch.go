package agent

import (
	"github.com/oranlabs/ricagent/internal/e2ap"
	"github.com/oranlabs/ricagent/internal/observability"
)

// Outcome reports what the dispatcher did with one inbound PDU.
type Outcome uint8

const (
	OutcomeHandled Outcome = iota
	OutcomeDroppedUnknown
	OutcomeDroppedStale
	OutcomeDroppedState
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeDroppedUnknown:
		return "dropped-unknown"
	case OutcomeDroppedStale:
		return "dropped-stale"
	case OutcomeDroppedState:
		return "dropped-state"
	default:
		return "outcome(?)"
	}
}

// dispatch routes one decoded PDU to its procedure handler. The switch
// below is the complete protocol surface: every payload shape the codec
// can produce has an arm here. Unknown procedures and uncorrelated
// outcomes are logged and dropped; nothing in this path tears the
// session down.
func (a *Agent) dispatch(pdu *e2ap.PDU) Outcome {
	var outcome Outcome
	switch p := pdu.Payload.(type) {
	// Initiating messages.
	case e2ap.SetupRequest:
		outcome = a.handleSetupRequest(pdu, p)
	case e2ap.ResetRequest:
		outcome = a.handleResetRequest(pdu, p)
	case e2ap.SubscriptionRequest:
		outcome = a.handleSubscriptionRequest(pdu, p)
	case e2ap.SubscriptionDeleteRequest:
		outcome = a.handleSubscriptionDeleteRequest(pdu, p)
	case e2ap.SubscriptionModifyRequest:
		outcome = a.handleSubscriptionModifyRequest(pdu, p)

	// Successful outcomes.
	case e2ap.SetupResponse:
		outcome = a.handleSetupResponse(pdu, p)
	case e2ap.ResetResponse:
		outcome = a.handleResetResponse(pdu, p)
	case e2ap.SubscriptionResponse:
		outcome = a.handleUninitiatedOutcome(pdu)
	case e2ap.SubscriptionDeleteResponse:
		outcome = a.handleUninitiatedOutcome(pdu)
	case e2ap.SubscriptionModifyConfirm:
		outcome = a.handleUninitiatedOutcome(pdu)

	// Unsuccessful outcomes.
	case e2ap.SetupFailure:
		outcome = a.handleSetupFailure(pdu, p)
	case e2ap.SubscriptionFailure:
		outcome = a.handleUninitiatedOutcome(pdu)
	case e2ap.SubscriptionDeleteFailure:
		outcome = a.handleUninitiatedOutcome(pdu)
	case e2ap.SubscriptionModifyRefuse:
		outcome = a.handleUninitiatedOutcome(pdu)

	case e2ap.RawPayload:
		a.log.Warn().
			Stringer("class", pdu.Class).
			Stringer("procedure", pdu.Procedure).
			Uint64("transaction_id", pdu.TransactionID).
			Msg("unknown procedure, message dropped")
		outcome = OutcomeDroppedUnknown

	default:
		a.log.Warn().
			Stringer("class", pdu.Class).
			Stringer("procedure", pdu.Procedure).
			Msg("unhandled payload shape, message dropped")
		outcome = OutcomeDroppedUnknown
	}

	if outcome != OutcomeHandled {
		observability.RecordDrop(outcome.String())
	}
	return outcome
}

// handleUninitiatedOutcome covers outcome envelopes for procedures this
// agent never initiates: with no pending procedure to correlate to they
// are stale by definition.
func (a *Agent) handleUninitiatedOutcome(pdu *e2ap.PDU) Outcome {
	key := PendingKey{Procedure: pdu.Procedure, TransactionID: pdu.TransactionID}
	if _, ok := a.sess.takePending(key); ok {
		a.log.Warn().Stringer("procedure", pdu.Procedure).Msg("unexpected pending procedure consumed")
		return OutcomeHandled
	}
	a.log.Warn().
		Stringer("class", pdu.Class).
		Stringer("procedure", pdu.Procedure).
		Uint64("transaction_id", pdu.TransactionID).
		Msg("stale outcome, no matching pending procedure")
	return OutcomeDroppedStale
}
