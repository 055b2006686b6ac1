package agent

import "sort"

// PendingStatus describes one outstanding procedure for reporting.
type PendingStatus struct {
	Procedure     string `json:"procedure"`
	TransactionID uint64 `json:"transaction_id"`
	Deadline      uint64 `json:"deadline_tick"`
}

// SubscriptionStatus describes one grant for reporting.
type SubscriptionStatus struct {
	RequestorID uint32 `json:"requestor_id"`
	InstanceID  uint32 `json:"instance_id"`
	FunctionID  uint32 `json:"function_id"`
	Actions     int    `json:"actions"`
}

// Status is a point-in-time view of the session, safe to read from any
// goroutine.
type Status struct {
	Name          string               `json:"name"`
	SessionTag    string               `json:"session_tag"`
	State         string               `json:"state"`
	NodeID        uint64               `json:"node_id"`
	RICID         uint32               `json:"ric_id"`
	HasRICID      bool                 `json:"has_ric_id"`
	Pending       []PendingStatus      `json:"pending_procedures"`
	Subscriptions []SubscriptionStatus `json:"subscriptions"`
}

// publishStatus snapshots the session for out-of-band readers. It runs
// on the scheduler goroutine after state mutations.
func (a *Agent) publishStatus() {
	st := &Status{
		Name:       a.cfg.Name,
		SessionTag: a.sess.tag.String(),
		State:      a.sess.state.String(),
		NodeID:     a.sess.nodeID,
		RICID:      a.sess.ricID,
		HasRICID:   a.sess.hasRICID,
	}
	for key, p := range a.sess.pending {
		st.Pending = append(st.Pending, PendingStatus{
			Procedure:     key.Procedure.String(),
			TransactionID: key.TransactionID,
			Deadline:      p.deadline,
		})
	}
	sort.Slice(st.Pending, func(i, j int) bool {
		return st.Pending[i].TransactionID < st.Pending[j].TransactionID
	})
	for _, sub := range a.sess.subs {
		st.Subscriptions = append(st.Subscriptions, SubscriptionStatus{
			RequestorID: sub.RequestorID,
			InstanceID:  sub.InstanceID,
			FunctionID:  sub.FunctionID,
			Actions:     len(sub.Actions),
		})
	}
	sort.Slice(st.Subscriptions, func(i, j int) bool {
		if st.Subscriptions[i].RequestorID != st.Subscriptions[j].RequestorID {
			return st.Subscriptions[i].RequestorID < st.Subscriptions[j].RequestorID
		}
		return st.Subscriptions[i].InstanceID < st.Subscriptions[j].InstanceID
	})
	a.status.Store(st)
}

// Snapshot returns the last published session status.
func (a *Agent) Snapshot() Status {
	if st := a.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

// Now reports the scheduler's current virtual time in ticks.
func (a *Agent) Now() uint64 {
	return a.sched.Now()
}
