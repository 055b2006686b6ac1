package agent

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/oranlabs/ricagent/internal/e2ap"
	"github.com/oranlabs/ricagent/internal/sched"
)

// State is the session lifecycle position.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingSetupResponse
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingSetupResponse:
		return "awaiting-setup-response"
	case StateEstablished:
		return "established"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var (
	ErrSetupPending     = errors.New("agent: setup procedure already pending")
	ErrDuplicatePending = errors.New("agent: duplicate pending procedure key")
)

// PendingKey correlates a response envelope to its originating request.
type PendingKey struct {
	Procedure     e2ap.Procedure
	TransactionID uint64
}

type pendingProcedure struct {
	key       PendingKey
	createdAt uint64
	deadline  uint64
	timer     *sched.Timer
}

// SubscriptionKey identifies one standing grant.
type SubscriptionKey struct {
	RequestorID uint32
	InstanceID  uint32
}

// Subscription is one granted standing request from the peer.
type Subscription struct {
	RequestorID uint32
	InstanceID  uint32
	FunctionID  uint32
	Actions     []e2ap.Action
}

// session holds all per-peer protocol state. It is owned by the
// scheduler goroutine; nothing else touches it.
type session struct {
	tag      uuid.UUID
	state    State
	nodeID   uint64
	ricID    uint32
	hasRICID bool
	pending  map[PendingKey]*pendingProcedure
	subs     map[SubscriptionKey]Subscription
}

func newSession(nodeID uint64) *session {
	return &session{
		tag:     uuid.New(),
		state:   StateDisconnected,
		nodeID:  nodeID,
		pending: make(map[PendingKey]*pendingProcedure),
		subs:    make(map[SubscriptionKey]Subscription),
	}
}

// addPending registers an outstanding procedure. At most one setup may
// be pending; correlation keys must be unique per procedure kind.
func (s *session) addPending(p *pendingProcedure) error {
	if p.key.Procedure == e2ap.ProcedureSetup && s.hasPendingSetup() {
		return ErrSetupPending
	}
	if _, dup := s.pending[p.key]; dup {
		return ErrDuplicatePending
	}
	s.pending[p.key] = p
	return nil
}

// takePending removes and returns the pending procedure for key.
func (s *session) takePending(key PendingKey) (*pendingProcedure, bool) {
	p, ok := s.pending[key]
	if !ok {
		return nil, false
	}
	delete(s.pending, key)
	return p, true
}

func (s *session) hasPendingSetup() bool {
	for key := range s.pending {
		if key.Procedure == e2ap.ProcedureSetup {
			return true
		}
	}
	return false
}

// clearPending cancels every expiry timer and empties the set.
func (s *session) clearPending() {
	for key, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, key)
	}
}

func (s *session) putSubscription(sub Subscription) {
	s.subs[SubscriptionKey{RequestorID: sub.RequestorID, InstanceID: sub.InstanceID}] = sub
}

func (s *session) subscription(key SubscriptionKey) (Subscription, bool) {
	sub, ok := s.subs[key]
	return sub, ok
}

func (s *session) deleteSubscription(key SubscriptionKey) bool {
	if _, ok := s.subs[key]; !ok {
		return false
	}
	delete(s.subs, key)
	return true
}

func (s *session) clearSubscriptions() {
	s.subs = make(map[SubscriptionKey]Subscription)
}
