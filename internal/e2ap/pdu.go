// Package e2ap models the control-plane application protocol spoken
// between the agent and the RIC: a three-way PDU envelope (initiating
// message, successful outcome, unsuccessful outcome) carrying one
// procedure-specific payload, encoded as a fixed header plus TLV fields.
package e2ap

import "fmt"

// Class is the outer envelope alternative of a PDU.
type Class uint8

const (
	ClassInitiatingMessage   Class = 1
	ClassSuccessfulOutcome   Class = 2
	ClassUnsuccessfulOutcome Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassInitiatingMessage:
		return "initiating-message"
	case ClassSuccessfulOutcome:
		return "successful-outcome"
	case ClassUnsuccessfulOutcome:
		return "unsuccessful-outcome"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Procedure identifies one request/response exchange pattern.
type Procedure uint16

const (
	ProcedureSetup              Procedure = 1
	ProcedureReset              Procedure = 2
	ProcedureSubscription       Procedure = 3
	ProcedureSubscriptionDelete Procedure = 4
	ProcedureSubscriptionModify Procedure = 5
)

func (p Procedure) String() string {
	switch p {
	case ProcedureSetup:
		return "setup"
	case ProcedureReset:
		return "reset"
	case ProcedureSubscription:
		return "subscription"
	case ProcedureSubscriptionDelete:
		return "subscription-delete"
	case ProcedureSubscriptionModify:
		return "subscription-modify"
	default:
		return fmt.Sprintf("procedure(%d)", uint16(p))
	}
}

// Cause is the failure taxonomy carried by unsuccessful outcomes.
type Cause uint8

const (
	CauseMisc       Cause = 0
	CauseTransport  Cause = 1
	CauseProtocol   Cause = 2
	CauseRICRequest Cause = 3
)

func (c Cause) String() string {
	switch c {
	case CauseMisc:
		return "misc"
	case CauseTransport:
		return "transport"
	case CauseProtocol:
		return "protocol"
	case CauseRICRequest:
		return "ric-request"
	default:
		return fmt.Sprintf("cause(%d)", uint8(c))
	}
}

// ActionType classifies one requested subscription action.
type ActionType uint8

const (
	ActionReport ActionType = 1
	ActionInsert ActionType = 2
	ActionPolicy ActionType = 3
)

// Action is one action item inside a subscription request.
type Action struct {
	ID   uint16
	Type ActionType
}

// RANFunction describes one function the agent exposes during setup.
type RANFunction struct {
	ID          uint32
	Revision    uint16
	Description string
}

// PDU is one complete application message.
type PDU struct {
	Class         Class
	Procedure     Procedure
	TransactionID uint64
	Payload       Payload
}

// Payload is the closed set of procedure-specific message bodies.
// Implementations live in this package only.
type Payload interface {
	isPayload()
}

// SetupRequest starts the setup procedure (agent -> RIC).
type SetupRequest struct {
	NodeID    uint64
	Functions []RANFunction
}

// SetupResponse is the successful setup outcome; RICID is the
// peer-assigned identifier for this session.
type SetupResponse struct {
	RICID             uint32
	AcceptedFunctions []uint32
}

// SetupFailure is the unsuccessful setup outcome. TimeToWait is a hint
// in ticks before the next attempt; zero means no hint.
type SetupFailure struct {
	Cause      Cause
	TimeToWait uint32
}

// ResetRequest asks the receiver to clear all procedure and
// subscription state. Either side may initiate it.
type ResetRequest struct {
	Cause Cause
}

// ResetResponse acknowledges a reset request.
type ResetResponse struct{}

// SubscriptionRequest asks the agent for a standing grant.
type SubscriptionRequest struct {
	RequestorID uint32
	InstanceID  uint32
	FunctionID  uint32
	Actions     []Action
}

// SubscriptionResponse grants a subscription, listing the admitted
// action identifiers.
type SubscriptionResponse struct {
	RequestorID uint32
	InstanceID  uint32
	FunctionID  uint32
	Admitted    []uint16
}

// SubscriptionFailure refuses a subscription request.
type SubscriptionFailure struct {
	RequestorID uint32
	InstanceID  uint32
	Cause       Cause
}

// SubscriptionDeleteRequest removes a standing grant.
type SubscriptionDeleteRequest struct {
	RequestorID uint32
	InstanceID  uint32
	FunctionID  uint32
}

// SubscriptionDeleteResponse acknowledges a delete.
type SubscriptionDeleteResponse struct {
	RequestorID uint32
	InstanceID  uint32
}

// SubscriptionDeleteFailure refuses a delete.
type SubscriptionDeleteFailure struct {
	RequestorID uint32
	InstanceID  uint32
	Cause       Cause
}

// SubscriptionModifyRequest replaces the action set of a grant.
type SubscriptionModifyRequest struct {
	RequestorID uint32
	InstanceID  uint32
	FunctionID  uint32
	Actions     []Action
}

// SubscriptionModifyConfirm acknowledges a modification.
type SubscriptionModifyConfirm struct {
	RequestorID uint32
	InstanceID  uint32
}

// SubscriptionModifyRefuse declines a modification.
type SubscriptionModifyRefuse struct {
	RequestorID uint32
	InstanceID  uint32
	Cause       Cause
}

// RawPayload carries the undecoded fields of a structurally valid PDU
// whose (class, procedure) pair this implementation does not know. The
// dispatcher logs and drops these.
type RawPayload struct {
	Fields []Field
}

func (SetupRequest) isPayload()               {}
func (SetupResponse) isPayload()              {}
func (SetupFailure) isPayload()               {}
func (ResetRequest) isPayload()               {}
func (ResetResponse) isPayload()              {}
func (SubscriptionRequest) isPayload()        {}
func (SubscriptionResponse) isPayload()       {}
func (SubscriptionFailure) isPayload()        {}
func (SubscriptionDeleteRequest) isPayload()  {}
func (SubscriptionDeleteResponse) isPayload() {}
func (SubscriptionDeleteFailure) isPayload()  {}
func (SubscriptionModifyRequest) isPayload()  {}
func (SubscriptionModifyConfirm) isPayload()  {}
func (SubscriptionModifyRefuse) isPayload()   {}
func (RawPayload) isPayload()                 {}
