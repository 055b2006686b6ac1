package e2ap

import "encoding/binary"

const (
	// Magic marks the start of every encoded PDU.
	Magic uint32 = 0x45325041
	// Version is the wire format revision this codec speaks.
	Version uint16 = 1
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 32

	fieldHeaderSize = 2 + 1 + 4

	// MaxPayloadBytes bounds decode-side allocations.
	MaxPayloadBytes = 1 << 20
)

// Encode serializes pdu into the canonical wire form.
func Encode(pdu *PDU) ([]byte, error) {
	if pdu == nil || pdu.Payload == nil {
		return nil, ErrNilPDU
	}
	if err := checkShape(pdu); err != nil {
		return nil, err
	}
	fields, err := payloadFields(pdu.Payload)
	if err != nil {
		return nil, err
	}

	payloadLen := 0
	for _, f := range fields {
		payloadLen += fieldHeaderSize + len(f.Value)
	}
	if payloadLen > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, HeaderSize, HeaderSize+payloadLen)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	binary.BigEndian.PutUint16(buf[6:8], HeaderSize)
	binary.BigEndian.PutUint64(buf[8:16], pdu.TransactionID)
	binary.BigEndian.PutUint32(buf[16:20], messageType(pdu.Class, pdu.Procedure))
	binary.BigEndian.PutUint32(buf[20:24], 0) // flags, reserved
	binary.BigEndian.PutUint64(buf[24:32], uint64(payloadLen))

	for _, f := range fields {
		var fh [fieldHeaderSize]byte
		binary.BigEndian.PutUint16(fh[0:2], f.ID)
		fh[2] = byte(f.Type)
		binary.BigEndian.PutUint32(fh[3:7], uint32(len(f.Value)))
		buf = append(buf, fh[:]...)
		buf = append(buf, f.Value...)
	}
	return buf, nil
}

func messageType(c Class, p Procedure) uint32 {
	return uint32(c)<<16 | uint32(p)
}

// checkShape rejects payloads paired with the wrong envelope. RawPayload
// is only valid for shapes this codec has no typed payload for.
func checkShape(pdu *PDU) error {
	c, p, ok := payloadShape(pdu.Payload)
	if !ok {
		if _, raw := pdu.Payload.(RawPayload); raw {
			if _, known := typedShape(pdu.Class, pdu.Procedure); known {
				return ErrUnencodablePayload
			}
			return nil
		}
		return ErrUnencodablePayload
	}
	if c != pdu.Class || p != pdu.Procedure {
		return ErrUnencodablePayload
	}
	return nil
}

func payloadShape(p Payload) (Class, Procedure, bool) {
	switch p.(type) {
	case SetupRequest:
		return ClassInitiatingMessage, ProcedureSetup, true
	case SetupResponse:
		return ClassSuccessfulOutcome, ProcedureSetup, true
	case SetupFailure:
		return ClassUnsuccessfulOutcome, ProcedureSetup, true
	case ResetRequest:
		return ClassInitiatingMessage, ProcedureReset, true
	case ResetResponse:
		return ClassSuccessfulOutcome, ProcedureReset, true
	case SubscriptionRequest:
		return ClassInitiatingMessage, ProcedureSubscription, true
	case SubscriptionResponse:
		return ClassSuccessfulOutcome, ProcedureSubscription, true
	case SubscriptionFailure:
		return ClassUnsuccessfulOutcome, ProcedureSubscription, true
	case SubscriptionDeleteRequest:
		return ClassInitiatingMessage, ProcedureSubscriptionDelete, true
	case SubscriptionDeleteResponse:
		return ClassSuccessfulOutcome, ProcedureSubscriptionDelete, true
	case SubscriptionDeleteFailure:
		return ClassUnsuccessfulOutcome, ProcedureSubscriptionDelete, true
	case SubscriptionModifyRequest:
		return ClassInitiatingMessage, ProcedureSubscriptionModify, true
	case SubscriptionModifyConfirm:
		return ClassSuccessfulOutcome, ProcedureSubscriptionModify, true
	case SubscriptionModifyRefuse:
		return ClassUnsuccessfulOutcome, ProcedureSubscriptionModify, true
	default:
		return 0, 0, false
	}
}

func payloadFields(p Payload) ([]Field, error) {
	switch v := p.(type) {
	case SetupRequest:
		fields := []Field{NewFieldUint64(fieldNodeID, v.NodeID)}
		for _, fn := range v.Functions {
			fields = append(fields, NewFieldBytes(fieldRANFunction, encodeRANFunction(fn)))
		}
		return fields, nil
	case SetupResponse:
		fields := []Field{NewFieldUint32(fieldRICID, v.RICID)}
		for _, id := range v.AcceptedFunctions {
			fields = append(fields, NewFieldUint32(fieldAcceptedFunction, id))
		}
		return fields, nil
	case SetupFailure:
		fields := []Field{NewFieldUint8(fieldCause, uint8(v.Cause))}
		if v.TimeToWait > 0 {
			fields = append(fields, NewFieldUint32(fieldTimeToWait, v.TimeToWait))
		}
		return fields, nil
	case ResetRequest:
		return []Field{NewFieldUint8(fieldCause, uint8(v.Cause))}, nil
	case ResetResponse:
		return nil, nil
	case SubscriptionRequest:
		fields := requestKeyFields(v.RequestorID, v.InstanceID)
		fields = append(fields, NewFieldUint32(fieldFunctionID, v.FunctionID))
		for _, a := range v.Actions {
			fields = append(fields, NewFieldBytes(fieldAction, encodeAction(a)))
		}
		return fields, nil
	case SubscriptionResponse:
		fields := requestKeyFields(v.RequestorID, v.InstanceID)
		fields = append(fields, NewFieldUint32(fieldFunctionID, v.FunctionID))
		for _, id := range v.Admitted {
			fields = append(fields, NewFieldUint16(fieldAdmittedAction, id))
		}
		return fields, nil
	case SubscriptionFailure:
		fields := requestKeyFields(v.RequestorID, v.InstanceID)
		return append(fields, NewFieldUint8(fieldCause, uint8(v.Cause))), nil
	case SubscriptionDeleteRequest:
		fields := requestKeyFields(v.RequestorID, v.InstanceID)
		return append(fields, NewFieldUint32(fieldFunctionID, v.FunctionID)), nil
	case SubscriptionDeleteResponse:
		return requestKeyFields(v.RequestorID, v.InstanceID), nil
	case SubscriptionDeleteFailure:
		fields := requestKeyFields(v.RequestorID, v.InstanceID)
		return append(fields, NewFieldUint8(fieldCause, uint8(v.Cause))), nil
	case SubscriptionModifyRequest:
		fields := requestKeyFields(v.RequestorID, v.InstanceID)
		fields = append(fields, NewFieldUint32(fieldFunctionID, v.FunctionID))
		for _, a := range v.Actions {
			fields = append(fields, NewFieldBytes(fieldAction, encodeAction(a)))
		}
		return fields, nil
	case SubscriptionModifyConfirm:
		return requestKeyFields(v.RequestorID, v.InstanceID), nil
	case SubscriptionModifyRefuse:
		fields := requestKeyFields(v.RequestorID, v.InstanceID)
		return append(fields, NewFieldUint8(fieldCause, uint8(v.Cause))), nil
	case RawPayload:
		return v.Fields, nil
	default:
		return nil, ErrUnencodablePayload
	}
}

func requestKeyFields(requestorID, instanceID uint32) []Field {
	return []Field{
		NewFieldUint32(fieldRequestorID, requestorID),
		NewFieldUint32(fieldInstanceID, instanceID),
	}
}

func encodeRANFunction(fn RANFunction) []byte {
	buf := make([]byte, 6+len(fn.Description))
	binary.BigEndian.PutUint32(buf[0:4], fn.ID)
	binary.BigEndian.PutUint16(buf[4:6], fn.Revision)
	copy(buf[6:], fn.Description)
	return buf
}

func encodeAction(a Action) []byte {
	buf := make([]byte, 3)
	binary.BigEndian.PutUint16(buf[0:2], a.ID)
	buf[2] = byte(a.Type)
	return buf
}
