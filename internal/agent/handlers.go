package agent

import (
	"github.com/oranlabs/ricagent/internal/e2ap"
	"github.com/oranlabs/ricagent/internal/observability"
)

// handleSetupRequest covers an inbound setup request. This agent is the
// setup initiator, so a peer-initiated setup is answered with a setup
// failure carrying a protocol cause and the session is left untouched.
func (a *Agent) handleSetupRequest(pdu *e2ap.PDU, req e2ap.SetupRequest) Outcome {
	a.log.Warn().
		Uint64("peer_node_id", req.NodeID).
		Uint64("transaction_id", pdu.TransactionID).
		Msg("peer-initiated setup request rejected")
	a.queueSend(&e2ap.PDU{
		Class:         e2ap.ClassUnsuccessfulOutcome,
		Procedure:     e2ap.ProcedureSetup,
		TransactionID: pdu.TransactionID,
		Payload:       e2ap.SetupFailure{Cause: e2ap.CauseProtocol},
	})
	return OutcomeHandled
}

// handleSetupResponse completes the setup procedure and records the
// peer-assigned identifier.
func (a *Agent) handleSetupResponse(pdu *e2ap.PDU, resp e2ap.SetupResponse) Outcome {
	key := PendingKey{Procedure: e2ap.ProcedureSetup, TransactionID: pdu.TransactionID}
	pending, ok := a.sess.takePending(key)
	if !ok {
		a.log.Warn().
			Uint64("transaction_id", pdu.TransactionID).
			Msg("stale setup response, no matching pending procedure")
		return OutcomeDroppedStale
	}
	pending.timer.Stop()

	if a.sess.state != StateAwaitingSetupResponse {
		a.log.Warn().Stringer("state", a.sess.state).Msg("setup response outside setup procedure")
		return OutcomeDroppedState
	}

	a.sess.ricID = resp.RICID
	a.sess.hasRICID = true
	a.attempt = 0
	a.log.Info().
		Uint32("ric_id", resp.RICID).
		Ints32("accepted_functions", int32Slice(resp.AcceptedFunctions)).
		Msg("setup complete")
	a.transition(StateEstablished, "setup success")
	return OutcomeHandled
}

// handleSetupFailure aborts the pending setup and schedules a retry,
// honoring the peer's time-to-wait hint when it exceeds the backoff.
func (a *Agent) handleSetupFailure(pdu *e2ap.PDU, fail e2ap.SetupFailure) Outcome {
	key := PendingKey{Procedure: e2ap.ProcedureSetup, TransactionID: pdu.TransactionID}
	pending, ok := a.sess.takePending(key)
	if !ok {
		a.log.Warn().
			Uint64("transaction_id", pdu.TransactionID).
			Msg("stale setup failure, no matching pending procedure")
		return OutcomeDroppedStale
	}
	pending.timer.Stop()

	a.log.Warn().
		Stringer("cause", fail.Cause).
		Uint32("time_to_wait", fail.TimeToWait).
		Msg("setup rejected by peer")
	if a.sess.state == StateAwaitingSetupResponse {
		a.transition(StateConnecting, "setup failure")
		delay := nextBackoffTicks(a.cfg.Backoff, a.attempt, a.rng)
		if uint64(fail.TimeToWait) > delay {
			delay = uint64(fail.TimeToWait)
		}
		a.retryTimer = a.sched.StartTimer(delay, func() {
			a.queue.Push(a.sendSetupRequest)
		})
	}
	return OutcomeHandled
}

// handleResetRequest answers every reset request, including ones that
// arrive while another is outstanding, and clears all subscription and
// pending-procedure state. The transport stays up.
func (a *Agent) handleResetRequest(pdu *e2ap.PDU, req e2ap.ResetRequest) Outcome {
	a.log.Info().
		Stringer("cause", req.Cause).
		Uint64("transaction_id", pdu.TransactionID).
		Msg("reset request received")

	wasAwaitingSetup := a.sess.state == StateAwaitingSetupResponse
	a.sess.clearPending()
	a.sess.clearSubscriptions()
	observability.SetSubscriptions(0)

	a.queueSend(&e2ap.PDU{
		Class:         e2ap.ClassSuccessfulOutcome,
		Procedure:     e2ap.ProcedureReset,
		TransactionID: pdu.TransactionID,
		Payload:       e2ap.ResetResponse{},
	})

	// A reset that lands mid-setup wipes the pending setup; start over.
	if wasAwaitingSetup {
		a.transition(StateConnecting, "reset during setup")
		a.queue.Push(a.sendSetupRequest)
	}
	return OutcomeHandled
}

// handleResetResponse completes a reset this agent initiated.
func (a *Agent) handleResetResponse(pdu *e2ap.PDU, _ e2ap.ResetResponse) Outcome {
	key := PendingKey{Procedure: e2ap.ProcedureReset, TransactionID: pdu.TransactionID}
	pending, ok := a.sess.takePending(key)
	if !ok {
		a.log.Warn().
			Uint64("transaction_id", pdu.TransactionID).
			Msg("stale reset response, no matching pending procedure")
		return OutcomeDroppedStale
	}
	pending.timer.Stop()
	a.sess.clearSubscriptions()
	observability.SetSubscriptions(0)
	a.log.Info().Uint64("transaction_id", pdu.TransactionID).Msg("reset complete")
	return OutcomeHandled
}

// handleSubscriptionRequest grants or explicitly refuses a standing
// request; a well-formed request is never silently dropped.
func (a *Agent) handleSubscriptionRequest(pdu *e2ap.PDU, req e2ap.SubscriptionRequest) Outcome {
	log := a.log.With().
		Uint32("requestor_id", req.RequestorID).
		Uint32("instance_id", req.InstanceID).
		Uint32("function_id", req.FunctionID).
		Logger()

	refuse := func(cause e2ap.Cause, reason string) Outcome {
		log.Warn().Stringer("cause", cause).Str("reason", reason).Msg("subscription refused")
		a.queueSend(&e2ap.PDU{
			Class:         e2ap.ClassUnsuccessfulOutcome,
			Procedure:     e2ap.ProcedureSubscription,
			TransactionID: pdu.TransactionID,
			Payload: e2ap.SubscriptionFailure{
				RequestorID: req.RequestorID,
				InstanceID:  req.InstanceID,
				Cause:       cause,
			},
		})
		return OutcomeHandled
	}

	if a.sess.state != StateEstablished {
		return refuse(e2ap.CauseProtocol, "session not established")
	}
	if !a.knownFunction(req.FunctionID) {
		return refuse(e2ap.CauseRICRequest, "unknown function id")
	}
	key := SubscriptionKey{RequestorID: req.RequestorID, InstanceID: req.InstanceID}
	if _, exists := a.sess.subscription(key); !exists && len(a.sess.subs) >= a.cfg.MaxSubscriptions {
		return refuse(e2ap.CauseMisc, "subscription limit reached")
	}

	a.sess.putSubscription(Subscription{
		RequestorID: req.RequestorID,
		InstanceID:  req.InstanceID,
		FunctionID:  req.FunctionID,
		Actions:     req.Actions,
	})
	observability.SetSubscriptions(len(a.sess.subs))

	admitted := make([]uint16, 0, len(req.Actions))
	for _, action := range req.Actions {
		admitted = append(admitted, action.ID)
	}
	log.Info().Int("actions", len(admitted)).Msg("subscription granted")
	a.queueSend(&e2ap.PDU{
		Class:         e2ap.ClassSuccessfulOutcome,
		Procedure:     e2ap.ProcedureSubscription,
		TransactionID: pdu.TransactionID,
		Payload: e2ap.SubscriptionResponse{
			RequestorID: req.RequestorID,
			InstanceID:  req.InstanceID,
			FunctionID:  req.FunctionID,
			Admitted:    admitted,
		},
	})
	return OutcomeHandled
}

// handleSubscriptionDeleteRequest removes a grant or refuses when the
// key is unknown.
func (a *Agent) handleSubscriptionDeleteRequest(pdu *e2ap.PDU, req e2ap.SubscriptionDeleteRequest) Outcome {
	key := SubscriptionKey{RequestorID: req.RequestorID, InstanceID: req.InstanceID}
	if !a.sess.deleteSubscription(key) {
		a.log.Warn().
			Uint32("requestor_id", req.RequestorID).
			Uint32("instance_id", req.InstanceID).
			Msg("subscription delete refused: unknown key")
		a.queueSend(&e2ap.PDU{
			Class:         e2ap.ClassUnsuccessfulOutcome,
			Procedure:     e2ap.ProcedureSubscriptionDelete,
			TransactionID: pdu.TransactionID,
			Payload: e2ap.SubscriptionDeleteFailure{
				RequestorID: req.RequestorID,
				InstanceID:  req.InstanceID,
				Cause:       e2ap.CauseRICRequest,
			},
		})
		return OutcomeHandled
	}
	observability.SetSubscriptions(len(a.sess.subs))
	a.log.Info().
		Uint32("requestor_id", req.RequestorID).
		Uint32("instance_id", req.InstanceID).
		Msg("subscription deleted")
	a.queueSend(&e2ap.PDU{
		Class:         e2ap.ClassSuccessfulOutcome,
		Procedure:     e2ap.ProcedureSubscriptionDelete,
		TransactionID: pdu.TransactionID,
		Payload: e2ap.SubscriptionDeleteResponse{
			RequestorID: req.RequestorID,
			InstanceID:  req.InstanceID,
		},
	})
	return OutcomeHandled
}

// handleSubscriptionModifyRequest replaces the action set of an
// existing grant, or refuses when the key is unknown.
func (a *Agent) handleSubscriptionModifyRequest(pdu *e2ap.PDU, req e2ap.SubscriptionModifyRequest) Outcome {
	key := SubscriptionKey{RequestorID: req.RequestorID, InstanceID: req.InstanceID}
	sub, ok := a.sess.subscription(key)
	if !ok {
		a.log.Warn().
			Uint32("requestor_id", req.RequestorID).
			Uint32("instance_id", req.InstanceID).
			Msg("subscription modify refused: unknown key")
		a.queueSend(&e2ap.PDU{
			Class:         e2ap.ClassUnsuccessfulOutcome,
			Procedure:     e2ap.ProcedureSubscriptionModify,
			TransactionID: pdu.TransactionID,
			Payload: e2ap.SubscriptionModifyRefuse{
				RequestorID: req.RequestorID,
				InstanceID:  req.InstanceID,
				Cause:       e2ap.CauseRICRequest,
			},
		})
		return OutcomeHandled
	}

	sub.Actions = req.Actions
	if req.FunctionID != 0 {
		sub.FunctionID = req.FunctionID
	}
	a.sess.putSubscription(sub)
	a.log.Info().
		Uint32("requestor_id", req.RequestorID).
		Uint32("instance_id", req.InstanceID).
		Int("actions", len(req.Actions)).
		Msg("subscription modified")
	a.queueSend(&e2ap.PDU{
		Class:         e2ap.ClassSuccessfulOutcome,
		Procedure:     e2ap.ProcedureSubscriptionModify,
		TransactionID: pdu.TransactionID,
		Payload: e2ap.SubscriptionModifyConfirm{
			RequestorID: req.RequestorID,
			InstanceID:  req.InstanceID,
		},
	})
	return OutcomeHandled
}

func (a *Agent) knownFunction(id uint32) bool {
	for _, fn := range a.cfg.Functions {
		if fn.ID == id {
			return true
		}
	}
	return false
}

func int32Slice(in []uint32) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}
